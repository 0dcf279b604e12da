// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package tool

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

func echoHandler(_ context.Context, args map[string]any) (string, error) {
	return fmt.Sprintf("%v", args), nil
}

func testDescriptor(name string) Descriptor {
	return Descriptor{
		Name:        name,
		Description: "test tool " + name,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
			},
			"required": []any{"path"},
		},
		AllowedByDefault: true,
		Handler:          echoHandler,
	}
}

// --- Register / Resolve ---

func TestRegistryRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testDescriptor("read_file")))

	desc, err := r.Resolve("read_file")
	require.NoError(t, err)
	assert.Equal(t, "read_file", desc.Name)
	assert.True(t, desc.AllowedByDefault)
	assert.NotNil(t, desc.Handler)
}

func TestRegistryResolveUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve("nope")
	require.Error(t, err)
	assert.True(t, basterr.HasCode(err, basterr.CodeToolNotFound))
	assert.True(t, basterr.IsNotFound(err))
}

func TestRegistryRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testDescriptor("read_file")))

	err := r.Register(testDescriptor("read_file"))
	require.Error(t, err)
	assert.True(t, basterr.HasCode(err, basterr.CodeToolAlreadyRegistered))
	assert.True(t, basterr.IsConflict(err))
}

func TestRegistryRegisterInvalid(t *testing.T) {
	tests := []struct {
		name string
		desc Descriptor
	}{
		{
			name: "empty name",
			desc: Descriptor{Handler: echoHandler},
		},
		{
			name: "nil handler",
			desc: Descriptor{Name: "broken"},
		},
		{
			name: "malformed schema",
			desc: Descriptor{
				Name:       "bad_schema",
				Parameters: map[string]any{"type": 12345},
				Handler:    echoHandler,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			err := r.Register(tt.desc)
			require.Error(t, err)
			assert.True(t, basterr.HasCode(err, basterr.CodeToolSchemaInvalid))
		})
	}
}

func TestRegistryNoParametersSchema(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{
		Name:    "get_system_info",
		Handler: echoHandler,
	}))

	// Any object is accepted when the tool declares no schema.
	args, err := r.Bind("get_system_info", `{"extra": true}`)
	require.NoError(t, err)
	assert.Equal(t, true, args["extra"])
}

// --- List ordering ---

func TestRegistryListPreservesOrder(t *testing.T) {
	r := NewRegistry()
	names := []string{"zeta", "alpha", "mid"}
	for _, n := range names {
		require.NoError(t, r.Register(testDescriptor(n)))
	}

	listed := r.List()
	require.Len(t, listed, 3)
	for i, n := range names {
		assert.Equal(t, n, listed[i].Name)
	}
}

func TestRegistryListAllowed(t *testing.T) {
	r := NewRegistry()
	for _, n := range []string{"a", "b", "c"} {
		require.NoError(t, r.Register(testDescriptor(n)))
	}

	out := r.ListAllowed(map[string]bool{"c": true, "a": true, "missing": true})
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Name)
	assert.Equal(t, "c", out[1].Name)
}

// --- Bind ---

func TestRegistryBind(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testDescriptor("read_file")))

	tests := []struct {
		name     string
		argsJSON string
		wantCode basterr.Code
	}{
		{
			name:     "valid arguments",
			argsJSON: `{"path": "notes.txt"}`,
		},
		{
			name:     "missing required property",
			argsJSON: `{}`,
			wantCode: basterr.CodeToolArgsViolation,
		},
		{
			name:     "wrong property type",
			argsJSON: `{"path": 42}`,
			wantCode: basterr.CodeToolArgsViolation,
		},
		{
			name:     "malformed JSON",
			argsJSON: `{"path": `,
			wantCode: basterr.CodeToolArgsViolation,
		},
		{
			name:     "non-object arguments",
			argsJSON: `["notes.txt"]`,
			wantCode: basterr.CodeToolArgsViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := r.Bind("read_file", tt.argsJSON)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, basterr.HasCode(err, tt.wantCode))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "notes.txt", args["path"])
		})
	}
}

func TestRegistryBindEmptyArguments(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{
		Name:    "list_files",
		Handler: echoHandler,
	}))

	// Gateways sometimes emit "" instead of "{}" for no-arg calls.
	args, err := r.Bind("list_files", "")
	require.NoError(t, err)
	assert.Empty(t, args)
}

func TestRegistryBindUnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Bind("ghost", `{}`)
	require.Error(t, err)
	assert.True(t, basterr.HasCode(err, basterr.CodeToolNotFound))
}
