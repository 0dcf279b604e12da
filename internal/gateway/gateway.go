// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

// Package gateway defines the completion contract the agent loop drives:
// one synchronous call per loop iteration, returning either final text
// or a batch of tool-call requests.
package gateway

import (
	"context"
)

// Completer is the interface LLM backends implement.
type Completer interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request is one completion call: the assembled context plus the tool
// schemas the scope's policy advertises.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDefinition
	MaxTokens    int
	Temperature  float32
}

// Role identifies a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the completion transcript. Assistant messages
// that requested tools carry their ToolCalls so the backend can replay
// the exchange; tool messages answer one call via ToolCallID.
type Message struct {
	Role       Role
	Content    string
	ToolCallID string
	ToolName   string
	ToolCalls  []ToolCall
}

// ToolDefinition describes one tool advertised to the model.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON
}

// Response is the model's answer for one iteration: final text, or one
// or more tool calls in the order the model listed them (possibly with
// accompanying text).
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
}

// Usage tracks token consumption for one completion call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}
