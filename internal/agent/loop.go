// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

// Package agent implements the turn controller: it drives the model/tool
// cycle for one user turn, enforcing the scope's policy, the per-call
// security checks, and the iteration bound.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/bastion-dev/bastion/internal/gateway"
	"github.com/bastion-dev/bastion/internal/policy"
	"github.com/bastion-dev/bastion/internal/security"
	"github.com/bastion-dev/bastion/internal/store"
	"github.com/bastion-dev/bastion/internal/tool"
	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

// defaultCallTimeout bounds a single tool handler execution when
// CallTimeout is not configured.
const defaultCallTimeout = 60 * time.Second

// state tracks the turn's position in the model/tool cycle.
type state int

const (
	stateStart state = iota
	stateAwaitingModel
	stateExecutingTools
	stateDone
	stateIterationExceeded
	stateFailed
)

// Outcome is the terminal result of a turn.
type Outcome string

const (
	OutcomeDone              Outcome = "done"
	OutcomeIterationExceeded Outcome = "iteration_exceeded"
)

// TurnRequest is one inbound user turn.
type TurnRequest struct {
	Scope     store.Scope
	Sender    string // display identity recorded in history
	Requester string // authenticated key identity recorded in audit entries
	Content   string
}

// TurnResult is the outcome of a completed turn.
type TurnResult struct {
	Text       string
	Outcome    Outcome
	Truncated  bool
	Iterations int // completed tool-execution cycles
	Usage      gateway.Usage
}

// Config holds the Loop's collaborators.
type Config struct {
	Gateway      gateway.Completer
	Registry     *tool.Registry
	Gate         *policy.Gate
	History      store.HistoryStore
	Audit        store.AuditStore
	SystemPrompt string
	CallTimeout  time.Duration
	Logger       *slog.Logger
}

// Loop runs one user turn at a time through the model/tool state machine.
type Loop struct {
	gateway      gateway.Completer
	registry     *tool.Registry
	gate         *policy.Gate
	history      store.HistoryStore
	auditor      *auditor
	systemPrompt string
	callTimeout  time.Duration
	logger       *slog.Logger
}

// NewLoop creates a Loop. The gateway is wrapped so a completion fault is
// retried once before failing the turn.
func NewLoop(cfg Config) (*Loop, error) {
	if cfg.Gateway == nil {
		return nil, basterr.New(basterr.CodeAgentLoopInvalidInput, "Gateway is required")
	}
	if cfg.Registry == nil {
		return nil, basterr.New(basterr.CodeAgentLoopInvalidInput, "Registry is required")
	}
	if cfg.Gate == nil {
		return nil, basterr.New(basterr.CodeAgentLoopInvalidInput, "Gate is required")
	}
	if cfg.History == nil {
		return nil, basterr.New(basterr.CodeAgentLoopInvalidInput, "History is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}

	return &Loop{
		gateway:      gateway.WithRetry(cfg.Gateway, logger),
		registry:     cfg.Registry,
		gate:         cfg.Gate,
		history:      cfg.History,
		auditor:      newAuditor(cfg.Audit, logger),
		systemPrompt: prompt,
		callTimeout:  timeout,
		logger:       logger.With("component", "agent"),
	}, nil
}

// Run executes one user turn: assemble context, call the gateway, execute
// requested tool calls in order, and repeat until the model stops asking
// for tools or the scope's iteration cap is reached. The user turn, every
// rejected-call observation, and the final answer are persisted to history
// in that order.
func (l *Loop) Run(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if err := l.validate(req); err != nil {
		return nil, err
	}

	resolved := l.gate.Resolve(req.Scope)
	if !resolved.Enabled {
		return nil, basterr.New(basterr.CodeAgentScopeDisabled,
			"agent is disabled for scope "+req.Scope.String(),
			basterr.FieldScope(req.Scope.String()))
	}

	// History is read before the current turn is appended so the lookback
	// window holds prior turns only; the current content rides as the
	// explicit user message.
	lookback, err := l.history.Read(ctx, req.Scope, resolved.Lookback)
	if err != nil {
		return nil, basterr.Wrap(err, basterr.CodeAgentLoopFailure, "reading history for "+req.Scope.String())
	}

	if err := l.persist(ctx, req.Scope, store.MessageRoleUser, req.Content, req.Sender); err != nil {
		return nil, err
	}

	messages := []gateway.Message{{Role: gateway.RoleUser, Content: req.Content}}
	greq := gateway.Request{
		SystemPrompt: buildSystemPrompt(l.systemPrompt, lookback),
		Tools:        l.toolDefinitions(resolved),
	}

	st := stateStart
	var (
		gatewayCalls int
		usage        gateway.Usage
		lastText     string
	)

	for {
		// AwaitingModel: the iteration cap bounds gateway calls for the
		// whole turn, no matter how eagerly the model requests tools.
		if gatewayCalls >= resolved.IterationCap {
			st = stateIterationExceeded
			break
		}
		st = stateAwaitingModel

		greq.Messages = messages
		resp, err := l.gateway.Complete(ctx, greq)
		if err != nil {
			// Failed is terminal: the retry wrapper has already absorbed
			// one gateway fault by the time this surfaces.
			return nil, basterr.Wrap(err, basterr.CodeGatewayCallFailure,
				"completion failed for "+req.Scope.String())
		}
		gatewayCalls++
		usage.InputTokens += resp.Usage.InputTokens
		usage.OutputTokens += resp.Usage.OutputTokens

		if len(resp.ToolCalls) == 0 {
			lastText = resp.Text
			st = stateDone
			break
		}
		if resp.Text != "" {
			lastText = resp.Text
		}

		// ExecutingTools: calls run in the order the model listed them; a
		// failing call becomes an error observation and its siblings still
		// run.
		st = stateExecutingTools
		messages = append(messages, gateway.Message{
			Role:      gateway.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			obs := l.dispatch(ctx, req, call, resolved)
			messages = append(messages, gateway.Message{
				Role:       gateway.RoleTool,
				Content:    obs.content,
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
			if obs.rejected {
				if err := l.persist(ctx, req.Scope, store.MessageRoleTool, obs.content, call.Name); err != nil {
					return nil, err
				}
			}
		}
	}

	result := &TurnResult{
		Text:       lastText,
		Outcome:    OutcomeDone,
		Iterations: gatewayCalls - 1,
		Usage:      usage,
	}
	if st == stateIterationExceeded {
		result.Outcome = OutcomeIterationExceeded
		result.Truncated = true
		result.Iterations = gatewayCalls
		if result.Text == "" {
			result.Text = "I could not finish this request: the tool iteration limit was reached."
		}
		l.logger.Warn("iteration cap reached",
			"scope", req.Scope.String(),
			"cap", resolved.IterationCap)
	}

	if err := l.persist(ctx, req.Scope, store.MessageRoleAssistant, result.Text, "bastion"); err != nil {
		return nil, err
	}
	return result, nil
}

func (l *Loop) validate(req TurnRequest) error {
	if err := req.Scope.Validate(); err != nil {
		return basterr.Wrap(err, basterr.CodeAgentLoopInvalidInput, "invalid scope")
	}
	if req.Content == "" {
		return basterr.New(basterr.CodeAgentLoopInvalidInput, "turn content must not be empty",
			basterr.FieldScope(req.Scope.String()))
	}
	return nil
}

// persist appends one redacted record to the scope's history. A write
// failure is fatal for the in-flight turn: losing history silently would
// break the durability guarantee.
func (l *Loop) persist(ctx context.Context, scope store.Scope, role store.MessageRole, content, sender string) error {
	rec := &store.HistoryRecord{
		Role:      role,
		Content:   security.Redact(content),
		Sender:    sender,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.history.Append(ctx, scope, rec); err != nil {
		return basterr.Wrap(err, basterr.CodeStoreHistoryWriteFailure,
			"persisting "+string(role)+" record for "+scope.String())
	}
	return nil
}

// toolDefinitions builds the model-facing tool list for the scope: only
// tools the policy admits, in registry insertion order so the schemas the
// model sees are reproducible.
func (l *Loop) toolDefinitions(resolved policy.Resolved) []gateway.ToolDefinition {
	allowed := l.registry.ListAllowed(resolved.AllowedTools)
	defs := make([]gateway.ToolDefinition, 0, len(allowed))
	for _, desc := range allowed {
		defs = append(defs, gateway.ToolDefinition{
			Name:        desc.Name,
			Description: desc.Description,
			InputSchema: desc.Parameters,
		})
	}
	return defs
}
