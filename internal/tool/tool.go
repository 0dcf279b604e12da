// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

// Package tool defines tool descriptors and the registry the agent loop
// resolves tool calls against. Each tool declares a JSON Schema for its
// arguments; the registry compiles the schema once at registration time
// and validates every invocation against it before the handler runs.
package tool

import (
	"context"
)

// Handler executes a tool with already-validated arguments and returns
// the textual observation to feed back to the model. Handlers must honor
// ctx cancellation for long-running work.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Descriptor describes a single tool: its identity, the JSON Schema its
// arguments must satisfy, and its risk posture.
type Descriptor struct {
	// Name is the unique tool identifier that models call it by.
	Name string

	// Description tells the model what the tool does and when to use it.
	Description string

	// Parameters is the JSON Schema (draft 2020-12) for the tool's
	// arguments object. A nil value means the tool takes no arguments.
	Parameters map[string]any

	// Dangerous marks tools with destructive or high-impact side effects.
	// Dangerous tools are never allowed implicitly; a policy must name
	// them explicitly regardless of AllowedByDefault.
	Dangerous bool

	// AllowedByDefault marks tools usable in scopes with no explicit
	// allow-list. Ignored when Dangerous is set.
	AllowedByDefault bool

	// Handler runs the tool. Required.
	Handler Handler
}
