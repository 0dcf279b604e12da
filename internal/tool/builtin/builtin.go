// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

// Package builtin provides the built-in tool set: sandboxed file
// operations, shell command execution, host inspection, and web search.
// All filesystem and command tools are confined by the security
// validator they are constructed with.
package builtin

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bastion-dev/bastion/internal/security"
	"github.com/bastion-dev/bastion/internal/tool"
)

// DefaultCommandTimeout bounds execute_command when the caller does not
// declare a timeout.
const DefaultCommandTimeout = 30 * time.Second

// Config holds dependencies for the built-in tool set.
type Config struct {
	// Validator confines file paths and screens shell commands. Required.
	Validator *security.Validator

	// CommandTimeout is the default wall-clock bound for
	// execute_command. Zero means DefaultCommandTimeout.
	CommandTimeout time.Duration

	// SearchAPIKey enables the web_search tool. When empty the tool is
	// still registered but every call fails with a configuration error.
	SearchAPIKey string

	// SearchEndpoint overrides the search API URL, useful for tests.
	SearchEndpoint string

	// HTTPClient is used by web_search. Nil means a client with a 15s
	// timeout.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// RegisterAll registers every built-in tool on the registry.
func RegisterAll(reg *tool.Registry, cfg Config) error {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}

	descriptors := []tool.Descriptor{
		listFilesTool(cfg),
		readFileTool(cfg),
		writeFileTool(cfg),
		deleteFileTool(cfg),
		executeCommandTool(cfg),
		systemInfoTool(),
		diskSpaceTool(cfg),
		webSearchTool(cfg),
	}
	for _, d := range descriptors {
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}
