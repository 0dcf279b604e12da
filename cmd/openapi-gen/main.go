// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

// Command openapi-gen writes the OpenAPI spec huma derives from the
// server's route annotations. Handlers are never invoked.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bastion-dev/bastion/internal/agent"
	"github.com/bastion-dev/bastion/internal/auth"
	"github.com/bastion-dev/bastion/internal/policy"
	"github.com/bastion-dev/bastion/internal/server"
	"github.com/bastion-dev/bastion/internal/store"
	"github.com/bastion-dev/bastion/internal/tool"
	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec creates a server with all routes registered and extracts
// the OpenAPI spec huma generates from the Go type annotations.
func generateSpec() ([]byte, error) {
	st := store.NewMemoryStore()
	defer func() { _ = st.Close() }()

	registry := tool.NewRegistry()

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"}, server.Deps{
		Loop:     stubLoop{},
		History:  st.History(),
		Audit:    st.AuditLog(),
		Registry: registry,
		Gate:     policy.NewGate(nil, registry, nil),
		Keys:     stubKeys{},
	})
	if err != nil {
		return nil, basterr.Errorf(basterr.CodeCLISetupFailure, "creating server: %w", err)
	}

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// No-op stubs for spec generation. Methods are never called.

type stubLoop struct{}

func (stubLoop) Run(context.Context, agent.TurnRequest) (*agent.TurnResult, error) {
	return nil, nil
}

type stubKeys struct{}

func (stubKeys) Authenticate(context.Context, string) (string, error) { return "", nil }
func (stubKeys) Rotate(context.Context, string) (*auth.IssuedKey, error) {
	return nil, nil
}
func (stubKeys) List(context.Context) ([]*store.APIKey, error) { return nil, nil }
