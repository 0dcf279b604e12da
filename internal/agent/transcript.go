// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package agent

import (
	"strings"

	"github.com/bastion-dev/bastion/internal/store"
)

// defaultSystemPrompt is used when no system prompt is configured.
const defaultSystemPrompt = "You are a helpful assistant with access to tools. " +
	"Use the provided tools when they help answer the request, and answer " +
	"in plain text when they do not."

// buildSystemPrompt folds the scope's lookback window into the system
// prompt as plain text lines. Prior turns ride as context rather than as
// replayed chat messages, so stored tool observations never have to be
// reconstructed into provider-specific tool-call transcripts.
func buildSystemPrompt(base string, history []*store.HistoryRecord) string {
	var b strings.Builder
	b.WriteString(base)

	wrote := false
	for _, rec := range history {
		line := historyLine(rec)
		if line == "" {
			continue
		}
		if !wrote {
			b.WriteString("\n\nConversation history (oldest first):\n")
			wrote = true
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func historyLine(rec *store.HistoryRecord) string {
	prefix := ""
	if !rec.CreatedAt.IsZero() {
		prefix = "[" + rec.CreatedAt.UTC().Format("2006-01-02 15:04:05") + "] "
	}

	switch rec.Role {
	case store.MessageRoleUser:
		sender := rec.Sender
		if sender == "" {
			sender = "user"
		}
		return prefix + sender + ": " + rec.Content
	case store.MessageRoleAssistant:
		return prefix + "assistant: " + rec.Content
	case store.MessageRoleTool:
		return prefix + "tool " + rec.Sender + ": " + rec.Content
	default:
		return ""
	}
}
