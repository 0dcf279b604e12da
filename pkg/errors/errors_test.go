// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	basterr "github.com/bastion-dev/bastion/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// New / Errorf
// ---------------------------------------------------------------------------

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := basterr.New(
		basterr.CodeConfigValidateInvalidValue,
		"invalid sandbox root",
		basterr.FieldScope("streams/ab12"),
		basterr.Field("root", "/pc"),
	)

	require.Error(t, err)
	assert.Equal(t, basterr.CodeConfigValidateInvalidValue, basterr.CodeOf(err))
	assert.True(t, basterr.HasCode(err, basterr.CodeConfigValidateInvalidValue))

	fields := basterr.FieldsOf(err)
	assert.Equal(t, "streams/ab12", fields["scope"])
	assert.Equal(t, "/pc", fields["root"])
}

func TestNewWithNoFields(t *testing.T) {
	err := basterr.New(basterr.CodeStoreDatabaseFailure, "connection lost")
	require.Error(t, err)
	assert.Equal(t, basterr.CodeStoreDatabaseFailure, basterr.CodeOf(err))
	assert.Contains(t, err.Error(), "connection lost")
}

func TestErrorfFormatsMessage(t *testing.T) {
	err := basterr.Errorf(basterr.CodeToolHandlerFailure, "running tool %s: exit %d", "execute_command", 127)
	require.Error(t, err)
	assert.Equal(t, basterr.CodeToolHandlerFailure, basterr.CodeOf(err))
	assert.Contains(t, err.Error(), "running tool execute_command: exit 127")
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := basterr.Errorf(basterr.CodeStoreDatabaseFailure, "write failed: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, basterr.CodeStoreDatabaseFailure, basterr.CodeOf(err))
}

// ---------------------------------------------------------------------------
// Wrap / Wrapf
// ---------------------------------------------------------------------------

func TestWrapPreservesWrappedErrorAndCode(t *testing.T) {
	root := stderrors.New("record missing")
	err := basterr.Wrap(
		root,
		basterr.CodeToolNotFound,
		"resolving tool",
		basterr.FieldTool("read_file"),
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.Equal(t, basterr.CodeToolNotFound, basterr.CodeOf(err))
	assert.True(t, basterr.IsNotFound(err))
	assert.Equal(t, "read_file", basterr.FieldsOf(err)["tool"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, basterr.Wrap(nil, basterr.CodeServerInternalFailure, "ignored"))
}

func TestWrapfNilReturnsNil(t *testing.T) {
	assert.NoError(t, basterr.Wrapf(nil, basterr.CodeServerInternalFailure, "ignored %s", "arg"))
}

func TestWrapfFormatsAndPreservesChain(t *testing.T) {
	root := stderrors.New("timeout")
	err := basterr.Wrapf(root, basterr.CodeGatewayCallFailure, "calling %s model %s", "openai", "gpt-4o")

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.Equal(t, basterr.CodeGatewayCallFailure, basterr.CodeOf(err))
	assert.Contains(t, err.Error(), "calling openai model gpt-4o")
}

func TestWrapWithFields(t *testing.T) {
	root := stderrors.New("denied")
	err := basterr.Wrap(root, basterr.CodePolicyToolDenied, "policy check",
		basterr.FieldTool("execute_command"),
		basterr.FieldScope("streams/ops"),
	)

	fields := basterr.FieldsOf(err)
	assert.Equal(t, "execute_command", fields["tool"])
	assert.Equal(t, "streams/ops", fields["scope"])
}

// ---------------------------------------------------------------------------
// With
// ---------------------------------------------------------------------------

func TestWithAddsContextWithoutChangingCode(t *testing.T) {
	base := basterr.New(basterr.CodePolicyToolDenied, "not in allow-list")
	withCtx := basterr.With(base, basterr.FieldTool("write_file"))

	require.Error(t, withCtx)
	assert.Equal(t, basterr.CodePolicyToolDenied, basterr.CodeOf(withCtx))
	assert.Equal(t, "write_file", basterr.FieldsOf(withCtx)["tool"])
}

func TestWithNilReturnsNil(t *testing.T) {
	assert.NoError(t, basterr.With(nil, basterr.FieldTool("x")))
}

func TestWithOnPlainErrorDefaultsToInternalCode(t *testing.T) {
	plain := stderrors.New("something broke")
	enriched := basterr.With(plain, basterr.FieldActor("key-1"))

	require.Error(t, enriched)
	assert.Equal(t, basterr.CodeServerInternalFailure, basterr.CodeOf(enriched))
	assert.Equal(t, "key-1", basterr.FieldsOf(enriched)["actor"])
}

// ---------------------------------------------------------------------------
// HasCode
// ---------------------------------------------------------------------------

func TestHasCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code basterr.Code
		want bool
	}{
		{
			name: "matching code",
			err:  basterr.New(basterr.CodeStoreNotFound, "gone"),
			code: basterr.CodeStoreNotFound,
			want: true,
		},
		{
			name: "non-matching code",
			err:  basterr.New(basterr.CodeStoreNotFound, "gone"),
			code: basterr.CodeStoreDatabaseFailure,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			code: basterr.CodeStoreNotFound,
			want: false,
		},
		{
			name: "plain stdlib error has no code",
			err:  stderrors.New("plain"),
			code: basterr.CodeServerInternalFailure,
			want: false,
		},
		{
			name: "wrapped coded error returns innermost code",
			err: basterr.Wrap(
				basterr.New(basterr.CodeStoreDatabaseFailure, "inner"),
				basterr.CodeServerInternalFailure, "outer",
			),
			code: basterr.CodeStoreDatabaseFailure,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, basterr.HasCode(tt.err, tt.code))
		})
	}
}

// ---------------------------------------------------------------------------
// CodeOf / FieldsOf
// ---------------------------------------------------------------------------

func TestCodeOfNil(t *testing.T) {
	assert.Equal(t, basterr.Code(""), basterr.CodeOf(nil))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, basterr.Code(""), basterr.CodeOf(stderrors.New("plain")))
}

func TestCodeOfReturnsInnermostCodedError(t *testing.T) {
	inner := basterr.New(basterr.CodeStoreDatabaseFailure, "db")
	outer := basterr.Wrap(inner, basterr.CodeServerInternalFailure, "handler")
	// oops.AsOops walks to the deepest oops error, so CodeOf returns the innermost code.
	assert.Equal(t, basterr.CodeStoreDatabaseFailure, basterr.CodeOf(outer))
}

func TestFieldsOfNil(t *testing.T) {
	assert.Nil(t, basterr.FieldsOf(nil))
}

func TestFieldsOfPlainError(t *testing.T) {
	assert.Nil(t, basterr.FieldsOf(stderrors.New("plain")))
}

// ---------------------------------------------------------------------------
// Typed field helpers
// ---------------------------------------------------------------------------

func TestTypedFieldHelpers(t *testing.T) {
	tests := []struct {
		name string
		attr basterr.Attr
		key  string
		val  string
	}{
		{"scope", basterr.FieldScope("streams/ab12"), "scope", "streams/ab12"},
		{"tool", basterr.FieldTool("read_file"), "tool", "read_file"},
		{"actor", basterr.FieldActor("key-1"), "actor", "key-1"},
		{"key_id", basterr.FieldKeyID("k-42"), "key_id", "k-42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.key, tt.attr.Key)
			assert.Equal(t, tt.val, tt.attr.Value)
		})
	}
}

func TestFieldsWithEmptyKeyAreIgnored(t *testing.T) {
	err := basterr.New(basterr.CodeStoreDatabaseFailure, "oops",
		basterr.Field("", "should-be-dropped"),
		basterr.FieldTool("kept"),
	)
	fields := basterr.FieldsOf(err)
	assert.Equal(t, "kept", fields["tool"])
	assert.NotContains(t, fields, "")
}

// ---------------------------------------------------------------------------
// errors.Is / errors.As unwrapping
// ---------------------------------------------------------------------------

func TestErrorIsWithWrappedChain(t *testing.T) {
	sentinel := stderrors.New("root cause")
	mid := fmt.Errorf("mid: %w", sentinel)
	outer := basterr.Wrap(mid, basterr.CodeServerInternalFailure, "handler")

	assert.ErrorIs(t, outer, sentinel)
}

func TestErrorIsWithMultiWrap(t *testing.T) {
	sentinel := stderrors.New("original")
	first := basterr.Wrap(sentinel, basterr.CodeStoreDatabaseFailure, "layer 1")
	second := basterr.Wrap(first, basterr.CodeServerInternalFailure, "layer 2")

	assert.ErrorIs(t, second, sentinel)
	// CodeOf returns the innermost coded error (first wrap layer).
	assert.Equal(t, basterr.CodeStoreDatabaseFailure, basterr.CodeOf(second))
}

// ---------------------------------------------------------------------------
// Classification helpers
// ---------------------------------------------------------------------------

func TestClassificationAndStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		code   basterr.Code
		status int
		check  func(error) bool
	}{
		{name: "tool not found", code: basterr.CodeToolNotFound, status: 404, check: basterr.IsNotFound},
		{name: "key not found", code: basterr.CodeAuthKeyNotFound, status: 404, check: basterr.IsNotFound},
		{name: "server entity not found", code: basterr.CodeServerEntityNotFound, status: 404, check: basterr.IsNotFound},
		{name: "register conflict", code: basterr.CodeToolAlreadyRegistered, status: 409, check: basterr.IsConflict},
		{name: "store conflict", code: basterr.CodeStoreConflict, status: 409, check: basterr.IsConflict},
		{name: "invalid value", code: basterr.CodeConfigValidateInvalidValue, status: 400, check: basterr.IsInvalidInput},
		{name: "invalid format", code: basterr.CodeConfigParseInvalidFormat, status: 400, check: basterr.IsInvalidInput},
		{name: "args violation", code: basterr.CodeToolArgsViolation, status: 400, check: basterr.IsInvalidInput},
		{name: "unauthorized", code: basterr.CodeServerAuthUnauthorized, status: 401, check: basterr.IsUnauthorized},
		{name: "revoked key", code: basterr.CodeAuthKeyRevoked, status: 401, check: basterr.IsUnauthorized},
		{name: "forbidden", code: basterr.CodeServerAuthForbidden, status: 403, check: basterr.IsUnauthorized},
		{name: "policy denied", code: basterr.CodePolicyToolDenied, status: 403, check: basterr.IsUnauthorized},
		{name: "command blocked", code: basterr.CodeSecurityCommandBlocked, status: 403, check: basterr.IsUnauthorized},
		{name: "iteration exceeded", code: basterr.CodeAgentIterationExceeded, status: 429, check: basterr.IsExceeded},
		{name: "tool timeout", code: basterr.CodeToolHandlerTimeout, status: 504, check: basterr.IsTimeout},
		{name: "gateway failure", code: basterr.CodeGatewayCallFailure, status: 502, check: basterr.IsUpstreamFailure},
		{name: "internal", code: basterr.CodeServerInternalFailure, status: 500, check: func(err error) bool { return !basterr.IsNotFound(err) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := basterr.New(tt.code, "boom")
			assert.Equal(t, tt.status, basterr.HTTPStatus(err))
			assert.True(t, tt.check(err))
		})
	}
}

func TestClassificationNegativeCases(t *testing.T) {
	err := basterr.New(basterr.CodeStoreDatabaseFailure, "db error")
	assert.False(t, basterr.IsNotFound(err))
	assert.False(t, basterr.IsConflict(err))
	assert.False(t, basterr.IsInvalidInput(err))
	assert.False(t, basterr.IsUnauthorized(err))
	assert.False(t, basterr.IsExceeded(err))
	assert.False(t, basterr.IsTimeout(err))
	assert.False(t, basterr.IsUpstreamFailure(err))
}

func TestClassificationOnNilError(t *testing.T) {
	assert.False(t, basterr.IsNotFound(nil))
	assert.False(t, basterr.IsConflict(nil))
	assert.False(t, basterr.IsInvalidInput(nil))
	assert.False(t, basterr.IsUnauthorized(nil))
	assert.False(t, basterr.IsExceeded(nil))
	assert.False(t, basterr.IsTimeout(nil))
	assert.False(t, basterr.IsUpstreamFailure(nil))
}

// ---------------------------------------------------------------------------
// HTTPStatus edge cases
// ---------------------------------------------------------------------------

func TestHTTPStatusNilReturnsInternalServerError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, basterr.HTTPStatus(nil))
}

func TestHTTPStatusPlainErrorReturnsInternalServerError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, basterr.HTTPStatus(stderrors.New("oops")))
}

// ---------------------------------------------------------------------------
// Join
// ---------------------------------------------------------------------------

func TestJoinCombinesErrors(t *testing.T) {
	a := stderrors.New("first")
	b := stderrors.New("second")
	joined := basterr.Join(a, b)

	require.Error(t, joined)
	assert.ErrorIs(t, joined, a)
	assert.ErrorIs(t, joined, b)
	assert.Equal(t, basterr.CodeServerInternalFailure, basterr.CodeOf(joined))
}

// ---------------------------------------------------------------------------
// Error message content
// ---------------------------------------------------------------------------

func TestWrapMessageIncludesContext(t *testing.T) {
	root := stderrors.New("EOF")
	err := basterr.Wrap(root, basterr.CodeStoreDatabaseFailure, "reading rows")

	msg := err.Error()
	assert.Contains(t, msg, "reading rows")
	assert.Contains(t, msg, "EOF")
}

func TestNewMessageContent(t *testing.T) {
	err := basterr.New(basterr.CodeAgentIterationExceeded, "iteration cap reached")
	assert.Contains(t, err.Error(), "iteration cap reached")
}
