// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package policy

import (
	"log/slog"

	"github.com/bastion-dev/bastion/internal/store"
	"github.com/bastion-dev/bastion/internal/tool"
	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

// ToolCatalog is the registry view the gate needs: the full descriptor
// list, for danger and default-allow flags.
type ToolCatalog interface {
	List() []tool.Descriptor
}

// Gate resolves effective policy for a scope. It is read-only after
// construction; lookups need no locking.
//
// Merge semantics: the scope's own entry overrides the defaults block
// field by field. A tool is allowed when it is named in the effective
// allow-list, or when it is flagged allowed-by-default and not named in
// the scope's denied_tools. Dangerous tools are the exception: they are
// admitted only by the scope's own allowed_tools, never by the defaults
// block and never by the default-allow flag.
type Gate struct {
	doc     *Document
	catalog ToolCatalog
	logger  *slog.Logger
}

// Resolved is the effective policy for one scope.
type Resolved struct {
	Enabled         bool
	IterationCap    int
	Lookback        int
	RequiresMention bool

	// AllowedTools is the effective allow-set of tool names.
	AllowedTools map[string]bool
}

// NewGate creates a Gate over the given document and tool catalog.
// A nil document behaves as an empty one (built-in defaults only).
func NewGate(doc *Document, catalog ToolCatalog, logger *slog.Logger) *Gate {
	if doc == nil {
		doc = &Document{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{doc: doc, catalog: catalog, logger: logger}
}

// entryFor returns the scope-specific entry, if any. Stream scopes match
// "stream/topic" before falling back to the bare stream key.
func (g *Gate) entryFor(scope store.Scope) (Entry, bool) {
	switch scope.Kind {
	case store.ScopeKindPrivate:
		e, ok := g.doc.Users[scope.UserID]
		return e, ok
	case store.ScopeKindStream:
		if e, ok := g.doc.Streams[scope.Stream+"/"+scope.Topic]; ok {
			return e, true
		}
		e, ok := g.doc.Streams[scope.Stream]
		return e, ok
	default:
		return Entry{}, false
	}
}

// Resolve computes the effective policy for a scope.
func (g *Gate) Resolve(scope store.Scope) Resolved {
	entry, hasEntry := g.entryFor(scope)
	defaults := g.doc.Defaults

	r := Resolved{
		Enabled:      true,
		IterationCap: DefaultIterationCap,
		Lookback:     DefaultLookback,
	}
	applyEntry(&r, defaults)
	if hasEntry {
		applyEntry(&r, entry)
	}

	// The scope's own allow-list is the only place a dangerous tool can
	// be admitted from. The defaults allow-list is inherited when the
	// scope sets none, but inherited names never admit dangerous tools.
	scopeExplicit := make(map[string]bool)
	inherited := make(map[string]bool)
	if hasEntry && entry.AllowedTools != nil {
		for _, name := range entry.AllowedTools {
			scopeExplicit[name] = true
		}
	} else {
		for _, name := range defaults.AllowedTools {
			inherited[name] = true
		}
	}

	denied := make(map[string]bool)
	if hasEntry {
		for _, name := range entry.DeniedTools {
			denied[name] = true
		}
	}

	allowed := make(map[string]bool)
	for _, d := range g.catalog.List() {
		if denied[d.Name] {
			continue
		}
		switch {
		case scopeExplicit[d.Name]:
			allowed[d.Name] = true
		case d.Dangerous:
			// never implicit
		case inherited[d.Name]:
			allowed[d.Name] = true
		case d.AllowedByDefault:
			allowed[d.Name] = true
		}
	}
	r.AllowedTools = allowed

	return r
}

// applyEntry overlays set fields of e onto r.
func applyEntry(r *Resolved, e Entry) {
	if e.Enabled != nil {
		r.Enabled = *e.Enabled
	}
	if e.MaxIterations != nil {
		r.IterationCap = *e.MaxIterations
	}
	if e.Lookback != nil {
		r.Lookback = *e.Lookback
	}
	if e.RequiresMention != nil {
		r.RequiresMention = *e.RequiresMention
	}
}

// AllowedTools returns the effective allow-set of tool names for a scope.
func (g *Gate) AllowedTools(scope store.Scope) map[string]bool {
	return g.Resolve(scope).AllowedTools
}

// IterationCap returns the maximum tool-call rounds per turn for a scope.
func (g *Gate) IterationCap(scope store.Scope) int {
	return g.Resolve(scope).IterationCap
}

// Lookback returns the history lookback bound for a scope.
func (g *Gate) Lookback(scope store.Scope) int {
	return g.Resolve(scope).Lookback
}

// RequiresMention reports whether the agent only responds when
// explicitly mentioned in this scope.
func (g *Gate) RequiresMention(scope store.Scope) bool {
	return g.Resolve(scope).RequiresMention
}

// Check returns nil when the named tool is allowed in the scope, and a
// policy-denied error otherwise.
func (g *Gate) Check(scope store.Scope, toolName string) error {
	if g.Resolve(scope).AllowedTools[toolName] {
		return nil
	}
	return basterr.With(
		basterr.Errorf(basterr.CodePolicyToolDenied,
			"tool %q is not allowed in scope %s", toolName, scope.String()),
		basterr.FieldTool(toolName),
		basterr.FieldScope(scope.String()),
	)
}
