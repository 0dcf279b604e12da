// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/bastion-dev/bastion/internal/agent"
	"github.com/bastion-dev/bastion/internal/auth"
	"github.com/bastion-dev/bastion/internal/config"
	"github.com/bastion-dev/bastion/internal/gateway"
	_ "github.com/bastion-dev/bastion/internal/gateway/anthropic" // register anthropic backend
	_ "github.com/bastion-dev/bastion/internal/gateway/openai"    // register openai backend
	"github.com/bastion-dev/bastion/internal/policy"
	"github.com/bastion-dev/bastion/internal/security"
	"github.com/bastion-dev/bastion/internal/server"
	"github.com/bastion-dev/bastion/internal/store"
	_ "github.com/bastion-dev/bastion/internal/store/sqlite" // register sqlite backend
	"github.com/bastion-dev/bastion/internal/tool"
	"github.com/bastion-dev/bastion/internal/tool/builtin"
	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

// App holds the wired subsystems and owns their lifecycle.
type App struct {
	Server *server.Server
	Store  store.Store
}

// Close releases persistent resources. Safe to call after a failed Start.
func (a *App) Close() {
	if a.Store != nil {
		_ = a.Store.Close()
	}
}

// wireApp creates all subsystems and wires them together.
func wireApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, basterr.Errorf(basterr.CodeCLISetupFailure, "creating data directory: %w", err)
	}

	st, err := store.New(&store.StorageConfig{Backend: cfg.Storage.Backend}, cfg.Storage.DataDir)
	if err != nil {
		return nil, basterr.Errorf(basterr.CodeCLISetupFailure, "creating store: %w", err)
	}

	validator, err := security.NewValidator(security.Config{
		Root:              cfg.Security.Root,
		AllowedCommands:   cfg.Security.AllowedCommands,
		MaxCommandTimeout: cfg.Security.MaxCommandTimeout,
	}, logger)
	if err != nil {
		_ = st.Close()
		return nil, basterr.Errorf(basterr.CodeCLISetupFailure, "creating security validator: %w", err)
	}

	registry := tool.NewRegistry()
	if err := builtin.RegisterAll(registry, builtin.Config{
		Validator:      validator,
		CommandTimeout: cfg.Tools.CommandTimeout,
		SearchAPIKey:   cfg.Tools.SearchAPIKey,
		SearchEndpoint: cfg.Tools.SearchEndpoint,
		Logger:         logger,
	}); err != nil {
		_ = st.Close()
		return nil, basterr.Errorf(basterr.CodeCLISetupFailure, "registering built-in tools: %w", err)
	}

	var doc *policy.Document
	if cfg.Policy.Path != "" {
		doc, err = policy.Load(cfg.Policy.Path)
		if err != nil {
			_ = st.Close()
			return nil, basterr.Errorf(basterr.CodeCLISetupFailure, "loading policy document: %w", err)
		}
	}
	gate := policy.NewGate(doc, registry, logger)

	completer, err := gateway.New(gateway.Config{
		Provider:    cfg.Gateway.Provider,
		Model:       cfg.Gateway.Model,
		APIKey:      cfg.Gateway.APIKey,
		BaseURL:     cfg.Gateway.BaseURL,
		MaxTokens:   cfg.Gateway.MaxTokens,
		Temperature: cfg.Gateway.Temperature,
	})
	if err != nil {
		_ = st.Close()
		return nil, basterr.Errorf(basterr.CodeCLISetupFailure, "creating model gateway: %w", err)
	}

	keychain, err := auth.NewKeychain(ctx, st.Keys(), st.AuditLog(), auth.Config{
		GraceWindow: cfg.Auth.GraceWindow,
		MaxLiveKeys: cfg.Auth.MaxLiveKeys,
	}, logger)
	if err != nil {
		_ = st.Close()
		return nil, basterr.Errorf(basterr.CodeCLISetupFailure, "creating keychain: %w", err)
	}

	loop, err := agent.NewLoop(agent.Config{
		Gateway:      completer,
		Registry:     registry,
		Gate:         gate,
		History:      st.History(),
		Audit:        st.AuditLog(),
		SystemPrompt: cfg.Agent.SystemPrompt,
		CallTimeout:  cfg.Agent.CallTimeout,
		Logger:       logger,
	})
	if err != nil {
		_ = st.Close()
		return nil, basterr.Errorf(basterr.CodeCLISetupFailure, "creating agent loop: %w", err)
	}

	srv, err := server.New(server.Config{ListenAddr: cfg.Server.Listen}, server.Deps{
		Loop:     loop,
		History:  st.History(),
		Audit:    st.AuditLog(),
		Registry: registry,
		Gate:     gate,
		Keys:     keychain,
		Logger:   logger,
	})
	if err != nil {
		_ = st.Close()
		return nil, basterr.Errorf(basterr.CodeCLISetupFailure, "creating server: %w", err)
	}

	return &App{Server: srv, Store: st}, nil
}
