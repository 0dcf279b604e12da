// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeAuthKeyInvalid  Code = "auth.key.unauthorized"
	CodeAuthKeyRevoked  Code = "auth.key.revoked.unauthorized"
	CodeAuthKeyUnknown  Code = "auth.key.unknown.unauthorized"
	CodeAuthKeyNotFound Code = "auth.key.not_found"

	CodeSecurityCommandBlocked Code = "security.command.denied"
	CodeSecurityPathBlocked    Code = "security.path.denied"

	CodeToolNotFound          Code = "tool.registry.not_found"
	CodeToolAlreadyRegistered Code = "tool.registry.register.conflict"
	CodeToolSchemaInvalid     Code = "tool.schema.invalid"
	CodeToolArgsViolation     Code = "tool.args.invalid_input"
	CodeToolHandlerFailure    Code = "tool.handler.failure"
	CodeToolHandlerTimeout    Code = "tool.handler.timeout"

	CodePolicyToolDenied   Code = "policy.tool.denied"
	CodePolicyLoadFailure  Code = "policy.load.failure"
	CodePolicyParseInvalid Code = "policy.parse.invalid_format"

	CodeGatewayCallFailure     Code = "gateway.call.upstream.failure"
	CodeGatewayRequestInvalid  Code = "gateway.request.invalid"
	CodeGatewayResponseInvalid Code = "gateway.response.invalid"
	CodeGatewayNotConfigured   Code = "gateway.provider.not_found"

	CodeAgentLoopInvalidInput  Code = "agent.loop.invalid_input"
	CodeAgentLoopFailure       Code = "agent.loop.failure"
	CodeAgentIterationExceeded Code = "agent.loop.iteration.exceeded"
	CodeAgentScopeDisabled     Code = "agent.scope.disabled.forbidden"

	CodeStoreHistoryAppendInvalid Code = "store.history.append.invalid_input"
	CodeStoreHistoryWriteFailure  Code = "store.history.write.failure"
	CodeStoreAuditWriteFailure    Code = "store.audit.write.failure"
	CodeStoreDatabaseFailure      Code = "store.database.failure"
	CodeStoreBackendUnsupported   Code = "store.backend.unsupported"
	CodeStoreNotFound             Code = "store.entity.not_found"
	CodeStoreConflict             Code = "store.conflict"
	CodeStoreInvalidInput         Code = "store.invalid_input"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeSecretResolveFailure Code = "secret.resolve.failure"
	CodeSecretRefInvalid     Code = "secret.ref.invalid_format"
	CodeSecretNotFound       Code = "secret.not_found"
	CodeSecretStoreFailure   Code = "secret.store.failure"

	CodeServerRequestInvalid   Code = "server.request.invalid"
	CodeServerAuthUnauthorized Code = "server.auth.unauthorized"
	CodeServerAuthForbidden    Code = "server.auth.forbidden"
	CodeServerInternalFailure  Code = "server.internal.failure"
	CodeServerEntityNotFound   Code = "server.entity.not_found"
	CodeServerStartFailure     Code = "server.start.failure"
	CodeServerShutdownFailure  Code = "server.shutdown.failure"

	CodeCLIRequestFailure  Code = "cli.request.failure"
	CodeCLIResponseInvalid Code = "cli.response.invalid"
	CodeCLISetupFailure    Code = "cli.setup.failure"
	CodeCLIInputInvalid    Code = "cli.input.invalid"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldScope(value string) Attr {
	return Field("scope", value)
}

func FieldTool(value string) Attr {
	return Field("tool", value)
}

func FieldActor(value string) Attr {
	return Field("actor", value)
}

func FieldKeyID(value string) Attr {
	return Field("key_id", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsUnauthorized(err error) bool {
	r := reason(CodeOf(err))
	return r == "unauthorized" || r == "forbidden" || r == "denied"
}

func IsExceeded(err error) bool {
	return reason(CodeOf(err)) == "exceeded"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsUnauthorized(err):
		if reason(CodeOf(err)) == "forbidden" || reason(CodeOf(err)) == "denied" {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case IsExceeded(err):
		return http.StatusTooManyRequests
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
