// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

// Package config loads and validates the service configuration:
// defaults, then config file, then BASTION_* environment overrides.
// keyring:// values are resolved against the OS keyring after loading.
package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bastion-dev/bastion/internal/secrets"
	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

// Config is the top-level Bastion configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Security SecurityConfig `mapstructure:"security"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Tools    ToolsConfig    `mapstructure:"tools"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// StorageConfig selects the storage backend and its location.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	DataDir string `mapstructure:"data_dir"`
}

// SecurityConfig feeds the command/path validator.
type SecurityConfig struct {
	Root              string        `mapstructure:"root"`
	AllowedCommands   []string      `mapstructure:"allowed_commands"`
	MaxCommandTimeout time.Duration `mapstructure:"max_command_timeout"`
}

// PolicyConfig points at the policy document.
type PolicyConfig struct {
	Path string `mapstructure:"path"`
}

// AuthConfig controls API key lifecycle behavior.
type AuthConfig struct {
	GraceWindow time.Duration `mapstructure:"grace_window"`
	MaxLiveKeys int           `mapstructure:"max_live_keys"`
}

// AgentConfig controls the turn loop.
type AgentConfig struct {
	SystemPrompt string        `mapstructure:"system_prompt"`
	CallTimeout  time.Duration `mapstructure:"call_timeout"`
}

// GatewayConfig holds the LLM backend selection and credentials.
type GatewayConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
}

// ToolsConfig controls builtin tool behavior.
type ToolsConfig struct {
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	SearchAPIKey   string        `mapstructure:"search_api_key"`
	SearchEndpoint string        `mapstructure:"search_endpoint"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the given path (or defaults only when
// path is empty) with environment variable overrides (prefix BASTION_).
// keyring://service/name values are resolved against the OS keyring.
func Load(path string) (*Config, error) {
	return load(path, secrets.NewOSKeyring())
}

func load(path string, keyring secrets.Store) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.listen", "127.0.0.1:8710")
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.data_dir", "bastion-data")
	v.SetDefault("security.root", "bastion-data/sandbox")
	v.SetDefault("security.max_command_timeout", 5*time.Minute)
	v.SetDefault("auth.grace_window", time.Duration(0))
	v.SetDefault("auth.max_live_keys", 5)
	v.SetDefault("agent.call_timeout", 60*time.Second)
	v.SetDefault("gateway.provider", "openai")
	v.SetDefault("gateway.model", "gpt-4o-mini")
	v.SetDefault("tools.command_timeout", 30*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Environment
	v.SetEnvPrefix("BASTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, basterr.Errorf(basterr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	if keyring != nil {
		secrets.ResolveViper(v, keyring)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, basterr.Errorf(basterr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, basterr.Errorf(basterr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns all
// validation errors found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateSecurity()...)
	errs = append(errs, c.validateAuth()...)
	errs = append(errs, c.validateGateway()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, basterr.Errorf(basterr.CodeConfigValidateInvalidValue, "config: server.listen must not be empty"))
		return errs
	}

	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		errs = append(errs, basterr.Errorf(basterr.CodeConfigValidateInvalidValue,
			"config: server.listen must be a valid host:port address, got %q: %w",
			c.Server.Listen, err,
		))
		return errs
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, basterr.Errorf(basterr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, basterr.Errorf(basterr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be between 1 and 65535, got %d", port))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true, "memory": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, basterr.Errorf(basterr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [sqlite, memory], got %q", c.Storage.Backend))
	}
	if c.Storage.Backend == "sqlite" && c.Storage.DataDir == "" {
		errs = append(errs, basterr.Errorf(basterr.CodeConfigValidateInvalidValue,
			"config: storage.data_dir must not be empty for the sqlite backend"))
	}

	return errs
}

func (c *Config) validateSecurity() []error {
	var errs []error

	if c.Security.Root == "" {
		errs = append(errs, basterr.Errorf(basterr.CodeConfigValidateInvalidValue,
			"config: security.root must not be empty"))
	}
	if c.Security.MaxCommandTimeout <= 0 {
		errs = append(errs, basterr.Errorf(basterr.CodeConfigValidateInvalidValue,
			"config: security.max_command_timeout must be positive, got %s", c.Security.MaxCommandTimeout))
	}

	return errs
}

func (c *Config) validateAuth() []error {
	var errs []error

	if c.Auth.GraceWindow < 0 {
		errs = append(errs, basterr.Errorf(basterr.CodeConfigValidateInvalidValue,
			"config: auth.grace_window must not be negative, got %s", c.Auth.GraceWindow))
	}
	if c.Auth.MaxLiveKeys < 1 {
		errs = append(errs, basterr.Errorf(basterr.CodeConfigValidateInvalidValue,
			"config: auth.max_live_keys must be at least 1, got %d", c.Auth.MaxLiveKeys))
	}

	return errs
}

func (c *Config) validateGateway() []error {
	var errs []error

	validProviders := map[string]bool{"openai": true, "anthropic": true}
	if !validProviders[c.Gateway.Provider] {
		errs = append(errs, basterr.Errorf(basterr.CodeConfigValidateInvalidValue,
			"config: gateway.provider must be one of [openai, anthropic], got %q", c.Gateway.Provider))
	}
	if c.Gateway.Model == "" {
		errs = append(errs, basterr.Errorf(basterr.CodeConfigValidateInvalidValue,
			"config: gateway.model must not be empty"))
	}
	if c.Gateway.MaxTokens < 0 {
		errs = append(errs, basterr.Errorf(basterr.CodeConfigValidateInvalidValue,
			"config: gateway.max_tokens must not be negative, got %d", c.Gateway.MaxTokens))
	}
	if c.Gateway.Temperature < 0 || c.Gateway.Temperature > 2 {
		errs = append(errs, basterr.Errorf(basterr.CodeConfigValidateInvalidValue,
			"config: gateway.temperature must be between 0 and 2, got %g", c.Gateway.Temperature))
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, basterr.Errorf(basterr.CodeConfigValidateInvalidValue,
			"config: logging.level must be one of [debug, info, warn, error], got %q", c.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, basterr.Errorf(basterr.CodeConfigValidateInvalidValue,
			"config: logging.format must be one of [text, json], got %q", c.Logging.Format))
	}

	return errs
}
