// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/bastion-dev/bastion/internal/agent"
	"github.com/bastion-dev/bastion/internal/security"
	"github.com/bastion-dev/bastion/internal/store"
	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "run-turn",
		Method:      http.MethodPost,
		Path:        "/v1/turns",
		Summary:     "Run one agent turn",
		Tags:        []string{"agent"},
	}, s.handleRunTurn)

	huma.Register(s.api, huma.Operation{
		OperationID: "read-history",
		Method:      http.MethodGet,
		Path:        "/v1/history",
		Summary:     "Read recent history for a scope",
		Tags:        []string{"history"},
	}, s.handleReadHistory)

	huma.Register(s.api, huma.Operation{
		OperationID: "append-history",
		Method:      http.MethodPost,
		Path:        "/v1/history",
		Summary:     "Append a history record",
		Tags:        []string{"history"},
	}, s.handleAppendHistory)

	huma.Register(s.api, huma.Operation{
		OperationID: "clear-history",
		Method:      http.MethodDelete,
		Path:        "/v1/history",
		Summary:     "Clear all history for a scope",
		Tags:        []string{"history"},
	}, s.handleClearHistory)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-tools",
		Method:      http.MethodGet,
		Path:        "/v1/tools",
		Summary:     "List tools advertised to a scope",
		Tags:        []string{"tools"},
	}, s.handleListTools)

	huma.Register(s.api, huma.Operation{
		OperationID: "rotate-key",
		Method:      http.MethodPost,
		Path:        "/v1/keys/rotate",
		Summary:     "Issue a new API key, optionally revoking an old one",
		Tags:        []string{"keys"},
	}, s.handleRotateKey)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-keys",
		Method:      http.MethodGet,
		Path:        "/v1/keys",
		Summary:     "List API key metadata",
		Tags:        []string{"keys"},
	}, s.handleListKeys)

	huma.Register(s.api, huma.Operation{
		OperationID: "query-audit",
		Method:      http.MethodGet,
		Path:        "/v1/audit",
		Summary:     "Query the audit log, most recent first",
		Tags:        []string{"audit"},
	}, s.handleQueryAudit)
}

// --- Scope encoding ---

// ScopeBody identifies a conversation partition in request bodies.
type ScopeBody struct {
	Kind   string `json:"kind" enum:"stream,private" default:"stream" doc:"Scope kind"`
	Stream string `json:"stream,omitempty" doc:"Stream name (stream scopes)"`
	Topic  string `json:"topic,omitempty" doc:"Topic within the stream (stream scopes)"`
	User   string `json:"user,omitempty" doc:"User identifier (private scopes)"`
}

// ScopeParams identifies a conversation partition in query strings.
type ScopeParams struct {
	Kind   string `query:"kind" enum:"stream,private" default:"stream" doc:"Scope kind"`
	Stream string `query:"stream" doc:"Stream name (stream scopes)"`
	Topic  string `query:"topic" doc:"Topic within the stream (stream scopes)"`
	User   string `query:"user" doc:"User identifier (private scopes)"`
}

func buildScope(kind, stream, topic, user string) (store.Scope, error) {
	var scope store.Scope
	if kind == string(store.ScopeKindPrivate) {
		scope = store.PrivateScope(user)
	} else {
		scope = store.StreamScope(stream, topic)
	}
	if err := scope.Validate(); err != nil {
		return store.Scope{}, huma.Error400BadRequest("invalid scope", err)
	}
	return scope, nil
}

func (b ScopeBody) scope() (store.Scope, error) {
	return buildScope(b.Kind, b.Stream, b.Topic, b.User)
}

func (p ScopeParams) scope() (store.Scope, error) {
	return buildScope(p.Kind, p.Stream, p.Topic, p.User)
}

// apiError maps an internal error onto the HTTP status its code implies.
func apiError(err error, msg string) error {
	return huma.NewError(basterr.HTTPStatus(err), msg, err)
}

// --- Turns ---

type runTurnInput struct {
	Body struct {
		Scope   ScopeBody `json:"scope"`
		Sender  string    `json:"sender,omitempty" doc:"Display identity recorded in history"`
		Content string    `json:"content" minLength:"1" doc:"User message for this turn"`
	}
}

// UsageBody reports model token consumption for one turn.
type UsageBody struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type runTurnOutput struct {
	Body struct {
		Text       string    `json:"text" doc:"Final assistant answer"`
		Outcome    string    `json:"outcome" enum:"done,iteration_exceeded"`
		Truncated  bool      `json:"truncated" doc:"True when the iteration cap cut the turn short"`
		Iterations int       `json:"iterations" doc:"Completed tool-execution cycles"`
		Usage      UsageBody `json:"usage"`
	}
}

func (s *Server) handleRunTurn(ctx context.Context, input *runTurnInput) (*runTurnOutput, error) {
	scope, err := input.Body.Scope.scope()
	if err != nil {
		return nil, err
	}

	result, err := s.deps.Loop.Run(ctx, agent.TurnRequest{
		Scope:     scope,
		Sender:    input.Body.Sender,
		Requester: RequesterFromContext(ctx),
		Content:   input.Body.Content,
	})
	if err != nil {
		return nil, apiError(err, "running turn")
	}

	out := &runTurnOutput{}
	out.Body.Text = result.Text
	out.Body.Outcome = string(result.Outcome)
	out.Body.Truncated = result.Truncated
	out.Body.Iterations = result.Iterations
	out.Body.Usage = UsageBody{
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
	}
	return out, nil
}

// --- History ---

// HistoryRecordBody is one history record as served over the API.
type HistoryRecordBody struct {
	Seq       int64     `json:"seq"`
	Role      string    `json:"role"`
	Sender    string    `json:"sender,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type readHistoryInput struct {
	ScopeParams
	Lookback int `query:"lookback" minimum:"0" maximum:"1000" default:"50" doc:"Number of most recent records to return"`
}

type readHistoryOutput struct {
	Body struct {
		Records []HistoryRecordBody `json:"records"`
	}
}

func (s *Server) handleReadHistory(ctx context.Context, input *readHistoryInput) (*readHistoryOutput, error) {
	scope, err := input.scope()
	if err != nil {
		return nil, err
	}

	records, err := s.deps.History.Read(ctx, scope, input.Lookback)
	if err != nil {
		return nil, apiError(err, "reading history")
	}

	out := &readHistoryOutput{}
	out.Body.Records = make([]HistoryRecordBody, 0, len(records))
	for _, rec := range records {
		out.Body.Records = append(out.Body.Records, HistoryRecordBody{
			Seq:       rec.Seq,
			Role:      string(rec.Role),
			Sender:    rec.Sender,
			Content:   rec.Content,
			CreatedAt: rec.CreatedAt,
		})
	}
	return out, nil
}

type appendHistoryInput struct {
	Body struct {
		Scope   ScopeBody `json:"scope"`
		Role    string    `json:"role" enum:"user,assistant,system,tool" default:"user"`
		Sender  string    `json:"sender,omitempty"`
		Content string    `json:"content" minLength:"1"`
	}
}

type appendHistoryOutput struct {
	Body struct {
		Seq int64 `json:"seq" doc:"Assigned sequence number"`
	}
}

func (s *Server) handleAppendHistory(ctx context.Context, input *appendHistoryInput) (*appendHistoryOutput, error) {
	scope, err := input.Body.Scope.scope()
	if err != nil {
		return nil, err
	}

	// History content is redacted before persistence, same as records
	// written by the agent loop.
	rec := &store.HistoryRecord{
		Role:      store.MessageRole(input.Body.Role),
		Content:   security.Redact(input.Body.Content),
		Sender:    input.Body.Sender,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.deps.History.Append(ctx, scope, rec); err != nil {
		return nil, apiError(err, "appending history record")
	}

	out := &appendHistoryOutput{}
	out.Body.Seq = rec.Seq
	return out, nil
}

type clearHistoryOutput struct {
	Body struct {
		Status string `json:"status" example:"cleared"`
	}
}

func (s *Server) handleClearHistory(ctx context.Context, input *ScopeParams) (*clearHistoryOutput, error) {
	scope, err := input.scope()
	if err != nil {
		return nil, err
	}

	if err := s.deps.History.Clear(ctx, scope); err != nil {
		return nil, apiError(err, "clearing history")
	}

	// Scope clears are administrative and rare; a failed audit write here
	// is surfaced rather than swallowed.
	entry := &store.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Action:    store.AuditActionScopeClear,
		Actor:     RequesterFromContext(ctx),
		Scope:     scope.String(),
		Result:    "ok",
	}
	if err := s.deps.Audit.Append(ctx, entry); err != nil {
		return nil, apiError(err, "recording scope clear")
	}

	out := &clearHistoryOutput{}
	out.Body.Status = "cleared"
	return out, nil
}

// --- Tools ---

// ToolBody is one advertised tool.
type ToolBody struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Dangerous   bool   `json:"dangerous"`
}

type listToolsOutput struct {
	Body struct {
		Tools []ToolBody `json:"tools"`
	}
}

func (s *Server) handleListTools(_ context.Context, input *ScopeParams) (*listToolsOutput, error) {
	scope, err := input.scope()
	if err != nil {
		return nil, err
	}

	allowed := s.deps.Gate.AllowedTools(scope)
	out := &listToolsOutput{}
	out.Body.Tools = make([]ToolBody, 0)
	for _, desc := range s.deps.Registry.ListAllowed(allowed) {
		out.Body.Tools = append(out.Body.Tools, ToolBody{
			Name:        desc.Name,
			Description: desc.Description,
			Dangerous:   desc.Dangerous,
		})
	}
	return out, nil
}

// --- Keys ---

type rotateKeyInput struct {
	Body struct {
		KeyID string `json:"key_id,omitempty" doc:"Key to revoke; empty issues without revoking"`
	}
}

type rotateKeyOutput struct {
	Body struct {
		KeyID     string    `json:"key_id"`
		Secret    string    `json:"secret" doc:"Shown once; not retrievable later"`
		Prefix    string    `json:"prefix"`
		CreatedAt time.Time `json:"created_at"`
	}
}

func (s *Server) handleRotateKey(ctx context.Context, input *rotateKeyInput) (*rotateKeyOutput, error) {
	issued, err := s.deps.Keys.Rotate(ctx, input.Body.KeyID)
	if err != nil {
		return nil, apiError(err, "rotating key")
	}

	out := &rotateKeyOutput{}
	out.Body.KeyID = issued.KeyID
	out.Body.Secret = issued.Secret
	out.Body.Prefix = issued.Prefix
	out.Body.CreatedAt = issued.CreatedAt
	return out, nil
}

// KeyBody is one key's metadata. Secrets and hashes are never served.
type KeyBody struct {
	KeyID     string     `json:"key_id"`
	Prefix    string     `json:"prefix"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

type listKeysOutput struct {
	Body struct {
		Keys []KeyBody `json:"keys"`
	}
}

func (s *Server) handleListKeys(ctx context.Context, _ *struct{}) (*listKeysOutput, error) {
	keys, err := s.deps.Keys.List(ctx)
	if err != nil {
		return nil, apiError(err, "listing keys")
	}

	out := &listKeysOutput{}
	out.Body.Keys = make([]KeyBody, 0, len(keys))
	for _, k := range keys {
		out.Body.Keys = append(out.Body.Keys, KeyBody{
			KeyID:     k.KeyID,
			Prefix:    k.Prefix,
			CreatedAt: k.CreatedAt,
			RevokedAt: k.RevokedAt,
		})
	}
	return out, nil
}

// --- Audit ---

type queryAuditInput struct {
	Action string `query:"action" doc:"Filter by action"`
	Actor  string `query:"actor" doc:"Filter by actor"`
	Tool   string `query:"tool" doc:"Filter by tool name"`
	Limit  int    `query:"limit" minimum:"1" maximum:"1000" default:"50"`
	Offset int    `query:"offset" minimum:"0" default:"0"`
}

// AuditEntryBody is one audit entry as served over the API.
type AuditEntryBody struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Actor     string         `json:"actor,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Scope     string         `json:"scope,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Result    string         `json:"result"`
}

type queryAuditOutput struct {
	Body struct {
		Entries []AuditEntryBody `json:"entries"`
	}
}

func (s *Server) handleQueryAudit(ctx context.Context, input *queryAuditInput) (*queryAuditOutput, error) {
	entries, err := s.deps.Audit.Query(ctx, store.AuditFilter{
		Action: input.Action,
		Actor:  input.Actor,
		Tool:   input.Tool,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return nil, apiError(err, "querying audit log")
	}

	out := &queryAuditOutput{}
	out.Body.Entries = make([]AuditEntryBody, 0, len(entries))
	for _, e := range entries {
		out.Body.Entries = append(out.Body.Entries, AuditEntryBody{
			ID:        e.ID,
			Timestamp: e.Timestamp,
			Action:    e.Action,
			Actor:     e.Actor,
			Tool:      e.Tool,
			Scope:     e.Scope,
			Details:   e.Details,
			Result:    e.Result,
		})
	}
	return out, nil
}
