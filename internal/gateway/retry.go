// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package gateway

import (
	"context"
	"log/slog"
)

// retrying wraps a Completer and retries a failed completion call
// exactly once. A second failure surfaces to the caller as the gateway
// error of the retry attempt.
type retrying struct {
	inner  Completer
	logger *slog.Logger
}

// WithRetry wraps c so that one transient gateway fault per call is
// absorbed by an immediate retry.
func WithRetry(c Completer, logger *slog.Logger) Completer {
	if logger == nil {
		logger = slog.Default()
	}
	return &retrying{inner: c, logger: logger.With("component", "gateway")}
}

func (r *retrying) Name() string { return r.inner.Name() }

func (r *retrying) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := r.inner.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	r.logger.Warn("completion call failed, retrying once", "error", err)
	return r.inner.Complete(ctx, req)
}
