// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package tool

import (
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

// entry pairs a descriptor with its compiled argument schema.
type entry struct {
	desc   Descriptor
	schema *jsonschema.Schema // nil when the tool takes no arguments
}

// Registry is a thread-safe tool registry. Registration compiles each
// tool's argument schema once; Bind validates call arguments against it.
// List and Definitions preserve registration order so tool listings are
// deterministic across runs.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*entry
	ordered []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*entry),
	}
}

// Register adds a tool to the registry. The descriptor's Parameters
// schema is compiled here so schema errors surface at startup rather
// than on first call. Registering a name twice is a conflict.
func (r *Registry) Register(desc Descriptor) error {
	if desc.Name == "" {
		return basterr.New(basterr.CodeToolSchemaInvalid, "tool name is required")
	}
	if desc.Handler == nil {
		return basterr.Errorf(basterr.CodeToolSchemaInvalid, "tool %q has no handler", desc.Name)
	}

	var compiled *jsonschema.Schema
	if desc.Parameters != nil {
		sch, err := compileSchema(desc.Parameters)
		if err != nil {
			return basterr.With(
				basterr.Wrapf(err, basterr.CodeToolSchemaInvalid, "compiling argument schema for tool %q", desc.Name),
				basterr.FieldTool(desc.Name),
			)
		}
		compiled = sch
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[desc.Name]; exists {
		return basterr.With(
			basterr.Errorf(basterr.CodeToolAlreadyRegistered, "tool %q is already registered", desc.Name),
			basterr.FieldTool(desc.Name),
		)
	}
	r.tools[desc.Name] = &entry{desc: desc, schema: compiled}
	r.ordered = append(r.ordered, desc.Name)
	return nil
}

// Resolve returns the descriptor for the given tool name.
func (r *Registry) Resolve(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return Descriptor{}, basterr.With(
			basterr.Errorf(basterr.CodeToolNotFound, "tool %q is not registered", name),
			basterr.FieldTool(name),
		)
	}
	return e.desc, nil
}

// List returns all registered descriptors in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.ordered))
	for _, name := range r.ordered {
		out = append(out, r.tools[name].desc)
	}
	return out
}

// ListAllowed returns descriptors for the given names in registration
// order, skipping names that are not registered.
func (r *Registry) ListAllowed(names map[string]bool) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(names))
	for _, name := range r.ordered {
		if names[name] {
			out = append(out, r.tools[name].desc)
		}
	}
	return out
}

// Bind parses the raw JSON arguments for a tool call and validates them
// against the tool's compiled schema. Malformed JSON and schema
// violations both surface as argument errors so the caller can feed a
// uniform rejection back to the model.
func (r *Registry) Bind(name, argsJSON string) (map[string]any, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, basterr.With(
			basterr.Errorf(basterr.CodeToolNotFound, "tool %q is not registered", name),
			basterr.FieldTool(name),
		)
	}

	if argsJSON == "" {
		argsJSON = "{}"
	}

	var decoded any
	if err := json.Unmarshal([]byte(argsJSON), &decoded); err != nil {
		return nil, basterr.With(
			basterr.Wrapf(err, basterr.CodeToolArgsViolation, "arguments for tool %q are not valid JSON", name),
			basterr.FieldTool(name),
		)
	}

	args, ok := decoded.(map[string]any)
	if !ok {
		return nil, basterr.With(
			basterr.Errorf(basterr.CodeToolArgsViolation, "arguments for tool %q must be a JSON object", name),
			basterr.FieldTool(name),
		)
	}

	if e.schema != nil {
		if err := e.schema.Validate(decoded); err != nil {
			return nil, basterr.With(
				basterr.Wrapf(err, basterr.CodeToolArgsViolation, "arguments for tool %q violate schema", name),
				basterr.FieldTool(name),
			)
		}
	}

	return args, nil
}

// compileSchema round-trips the schema map through JSON and compiles it.
// The round-trip normalizes Go-typed values (ints, nested maps) into the
// plain JSON shapes the compiler expects.
func compileSchema(schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, err
	}
	return c.Compile("schema.json")
}
