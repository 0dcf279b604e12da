// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package gateway

import (
	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

// Config selects and configures the completion backend.
type Config struct {
	// Provider is the backend name: "openai" or "anthropic".
	Provider string

	// Model is the model identifier passed through to the backend.
	Model string

	// APIKey authenticates against the backend. Supports keyring
	// references when resolved by the secrets layer before reaching here.
	APIKey string

	// BaseURL overrides the backend endpoint, useful for tests.
	BaseURL string

	MaxTokens   int
	Temperature float32
}

// ApplyDefaults fills unset request fields from the backend config, so
// callers only override model parameters when they need to.
func (c Config) ApplyDefaults(req Request) Request {
	if req.Model == "" {
		req.Model = c.Model
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.MaxTokens
	}
	if req.Temperature == 0 {
		req.Temperature = c.Temperature
	}
	return req
}

// Factory builds a Completer from config. Backend packages register
// themselves here from init().
type Factory func(cfg Config) (Completer, error)

var factories = map[string]Factory{}

// RegisterBackend registers a factory for a named completion backend.
// Called from backend package init(); not safe for concurrent use after
// startup, matching the read-mostly registry model.
func RegisterBackend(name string, f Factory) {
	factories[name] = f
}

// New creates the configured completion backend.
func New(cfg Config) (Completer, error) {
	f, ok := factories[cfg.Provider]
	if !ok {
		return nil, basterr.Errorf(basterr.CodeGatewayNotConfigured,
			"unknown gateway provider %q", cfg.Provider)
	}
	return f(cfg)
}
