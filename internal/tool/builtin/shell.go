// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package builtin

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/bastion-dev/bastion/internal/tool"
	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

func executeCommandTool(cfg Config) tool.Descriptor {
	return tool.Descriptor{
		Name:        "execute_command",
		Description: "Run a shell command in the working root. Commands pass pattern screening first; chaining and dangerous patterns are blocked.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "The command line to execute.",
				},
				"timeout_seconds": map[string]any{
					"type":        "integer",
					"description": "Wall-clock bound for the command. Defaults to 30 seconds.",
				},
			},
			"required": []any{"command"},
		},
		Dangerous: true,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			command, _ := args["command"].(string)

			if res := cfg.Validator.ValidateCommand(command); !res.Allowed {
				return "", basterr.With(
					basterr.New(basterr.CodeSecurityCommandBlocked, res.Reason),
					basterr.Field("command", command),
				)
			}

			timeout := cfg.CommandTimeout
			if secs, ok := args["timeout_seconds"].(float64); ok && secs > 0 {
				timeout = time.Duration(secs) * time.Second
			}
			if res := cfg.Validator.ValidateTimeout(timeout); !res.Allowed {
				return "", basterr.New(basterr.CodeSecurityCommandBlocked, res.Reason)
			}

			execCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			cmd := exec.CommandContext(execCtx, "/bin/sh", "-c", command)
			cmd.Dir = cfg.Validator.Root()
			out, err := cmd.CombinedOutput()

			if execCtx.Err() == context.DeadlineExceeded {
				return "", basterr.With(
					basterr.Errorf(basterr.CodeToolHandlerTimeout,
						"command exceeded %s timeout", timeout),
					basterr.Field("command", command),
				)
			}

			output := strings.TrimRight(string(out), "\n")
			if err != nil {
				var exitErr *exec.ExitError
				if errors.As(err, &exitErr) {
					// Non-zero exit is an observation for the model, not
					// a handler fault.
					if output == "" {
						return fmt.Sprintf("(exit status %d, no output)", exitErr.ExitCode()), nil
					}
					return fmt.Sprintf("%s\n(exit status %d)", output, exitErr.ExitCode()), nil
				}
				return "", basterr.Wrapf(err, basterr.CodeToolHandlerFailure, "running command")
			}

			if output == "" {
				return "(no output)", nil
			}
			return output, nil
		},
	}
}
