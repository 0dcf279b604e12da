// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package agent

import (
	"context"
	"errors"

	"github.com/bastion-dev/bastion/internal/gateway"
	"github.com/bastion-dev/bastion/internal/policy"
	"github.com/bastion-dev/bastion/internal/security"
	"github.com/bastion-dev/bastion/internal/store"
	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

// observation is what one tool call contributes to the in-flight
// conversation. Rejected or failed calls carry an error observation so
// the model can see what went wrong and adapt; they are never dropped
// silently.
type observation struct {
	content  string
	rejected bool
}

// dispatch runs one tool call through the full check chain: policy gate
// membership, registry schema binding, then the handler itself (command
// and path tools run the security validator inside their handlers). Every
// stage that rejects the call turns into an error observation, and every
// call produces exactly one audit entry.
func (l *Loop) dispatch(ctx context.Context, req TurnRequest, call gateway.ToolCall, resolved policy.Resolved) observation {
	scope := req.Scope.String()

	// Stage 1: policy. Unknown tools fail here too, since they are never
	// in the scope's allow-set.
	if err := l.gate.Check(req.Scope, call.Name); err != nil {
		l.auditor.toolCall(ctx, store.AuditActionPolicyDenied, req.Requester, call, scope, "denied")
		return errObservation(err)
	}

	// Stage 2: schema. Binding validates the argument JSON against the
	// tool's declared parameters before the handler ever sees it.
	desc, err := l.registry.Resolve(call.Name)
	if err != nil {
		l.auditor.toolCall(ctx, store.AuditActionToolCall, req.Requester, call, scope, "rejected")
		return errObservation(err)
	}
	args, err := l.registry.Bind(call.Name, call.Arguments)
	if err != nil {
		l.auditor.toolCall(ctx, store.AuditActionToolCall, req.Requester, call, scope, "rejected")
		return errObservation(err)
	}

	// Stage 3: execute under the per-invocation wall clock.
	execCtx, cancel := context.WithTimeout(ctx, l.callTimeout)
	defer cancel()

	out, err := desc.Handler(execCtx, args)
	if err != nil {
		switch {
		case basterr.HasCode(err, basterr.CodeSecurityCommandBlocked),
			basterr.HasCode(err, basterr.CodeSecurityPathBlocked):
			l.auditor.toolCall(ctx, store.AuditActionSecurityBlock, req.Requester, call, scope, "blocked")
		case basterr.HasCode(err, basterr.CodeToolHandlerTimeout):
			// Handlers that enforce their own deadline report the timeout
			// code directly.
			l.auditor.toolCall(ctx, store.AuditActionToolCall, req.Requester, call, scope, "timeout")
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			l.auditor.toolCall(ctx, store.AuditActionToolCall, req.Requester, call, scope, "timeout")
			err = basterr.Wrapf(err, basterr.CodeToolHandlerTimeout, "tool %q timed out", call.Name)
		default:
			l.auditor.toolCall(ctx, store.AuditActionToolCall, req.Requester, call, scope, "error")
		}
		return errObservation(err)
	}

	l.auditor.toolCall(ctx, store.AuditActionToolCall, req.Requester, call, scope, "ok")
	return observation{content: security.Redact(out)}
}

func errObservation(err error) observation {
	return observation{content: "error: " + err.Error(), rejected: true}
}
