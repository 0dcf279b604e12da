// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package agent

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bastion-dev/bastion/internal/gateway"
	"github.com/bastion-dev/bastion/internal/store"
)

// auditEscalationThreshold is the number of consecutive audit append
// failures after which the failure log escalates from Warn to Error.
const auditEscalationThreshold = 3

// maxAuditArgBytes bounds the tool arguments stored in an audit entry.
const maxAuditArgBytes = 1024

// auditor writes best-effort audit entries. An append failure never fails
// the tool call it describes, but persistent failures escalate in the log
// so operators notice a broken trail.
type auditor struct {
	audit  store.AuditStore
	logger *slog.Logger

	// consecutive resets on every successful append; total never does, so
	// intermittent failure patterns stay visible.
	consecutive atomic.Int64
	total       atomic.Int64
}

func newAuditor(audit store.AuditStore, logger *slog.Logger) *auditor {
	return &auditor{audit: audit, logger: logger}
}

// toolCall records one tool invocation attempt: executed, denied, blocked,
// rejected, or failed.
func (a *auditor) toolCall(ctx context.Context, action, actor string, call gateway.ToolCall, scope, result string) {
	if a.audit == nil {
		return
	}

	entry := &store.AuditEntry{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Action:    action,
		Actor:     actor,
		Tool:      call.Name,
		Scope:     scope,
		Details:   map[string]any{"arguments": truncateArgs(call.Arguments)},
		Result:    result,
	}

	if err := a.audit.Append(ctx, entry); err != nil {
		consecutive := a.consecutive.Add(1)
		total := a.total.Add(1)
		level := slog.LevelWarn
		attrs := []slog.Attr{
			slog.Any("error", err),
			slog.String("tool", call.Name),
			slog.String("scope", scope),
			slog.Int64("consecutive_failures", consecutive),
		}
		if consecutive >= auditEscalationThreshold {
			level = slog.LevelError
			attrs = append(attrs, slog.Int64("total_failures", total))
		}
		a.logger.LogAttrs(ctx, level, "audit store append failed", attrs...)
		return
	}
	a.consecutive.Store(0)
}

// truncateArgs bounds argument text at maxAuditArgBytes, walking back to a
// UTF-8 rune boundary so the stored prefix is always valid text.
func truncateArgs(args string) string {
	if len(args) <= maxAuditArgBytes {
		return args
	}
	i := maxAuditArgBytes
	for i > 0 && !utf8.RuneStart(args[i]) {
		i--
	}
	return args[:i]
}
