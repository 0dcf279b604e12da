// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bastion-dev/bastion/internal/tool"
	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

// maxReadBytes caps read_file output so a single large file cannot
// flood the model context.
const maxReadBytes = 100 * 1024

const truncationMarker = "\n... [output truncated at 100 KiB]"

func pathSchema(description string, required bool) map[string]any {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": description,
			},
		},
	}
	if required {
		schema["required"] = []any{"path"}
	}
	return schema
}

func listFilesTool(cfg Config) tool.Descriptor {
	return tool.Descriptor{
		Name:             "list_files",
		Description:      "List files and directories at a path inside the working root. Omit path to list the root.",
		Parameters:       pathSchema("Directory to list, absolute or relative to the working root.", false),
		AllowedByDefault: true,
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			if path == "" {
				path = cfg.Validator.Root()
			}
			resolved, res := cfg.Validator.ValidatePath(path)
			if !res.Allowed {
				return "", basterr.New(basterr.CodeSecurityPathBlocked, res.Reason)
			}

			entries, err := os.ReadDir(resolved)
			if err != nil {
				return "", basterr.Wrapf(err, basterr.CodeToolHandlerFailure, "listing %q", path)
			}

			names := make([]string, 0, len(entries))
			for _, e := range entries {
				name := e.Name()
				if e.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			sort.Strings(names)
			if len(names) == 0 {
				return "(empty directory)", nil
			}
			return strings.Join(names, "\n"), nil
		},
	}
}

func readFileTool(cfg Config) tool.Descriptor {
	return tool.Descriptor{
		Name:             "read_file",
		Description:      "Read a text file inside the working root. Output is truncated at 100 KiB.",
		Parameters:       pathSchema("File to read, absolute or relative to the working root.", true),
		AllowedByDefault: true,
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			resolved, res := cfg.Validator.ValidatePath(path)
			if !res.Allowed {
				return "", basterr.New(basterr.CodeSecurityPathBlocked, res.Reason)
			}

			data, err := os.ReadFile(resolved)
			if err != nil {
				return "", basterr.Wrapf(err, basterr.CodeToolHandlerFailure, "reading %q", path)
			}
			if len(data) > maxReadBytes {
				return string(data[:maxReadBytes]) + truncationMarker, nil
			}
			return string(data), nil
		},
	}
}

func writeFileTool(cfg Config) tool.Descriptor {
	return tool.Descriptor{
		Name:        "write_file",
		Description: "Write content to a file inside the working root, creating parent directories as needed. Overwrites existing files.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Destination file, absolute or relative to the working root.",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "Full file content to write.",
				},
			},
			"required": []any{"path", "content"},
		},
		Dangerous: true,
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			content, _ := args["content"].(string)

			resolved, res := cfg.Validator.ValidateWritePath(path)
			if !res.Allowed {
				return "", basterr.New(basterr.CodeSecurityPathBlocked, res.Reason)
			}

			if err := os.MkdirAll(filepath.Dir(resolved), 0o750); err != nil {
				return "", basterr.Wrapf(err, basterr.CodeToolHandlerFailure, "creating parent directory for %q", path)
			}
			if err := os.WriteFile(resolved, []byte(content), 0o640); err != nil {
				return "", basterr.Wrapf(err, basterr.CodeToolHandlerFailure, "writing %q", path)
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
		},
	}
}

func deleteFileTool(cfg Config) tool.Descriptor {
	return tool.Descriptor{
		Name:        "delete_file",
		Description: "Delete a single file in the working root by name. Directories and paths are rejected.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"filename": map[string]any{
					"type":        "string",
					"description": "Bare file name inside the working root. No directories, no wildcards.",
				},
			},
			"required": []any{"filename"},
		},
		Dangerous: true,
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			name, _ := args["filename"].(string)
			if name == "" || name == "." || name == ".." {
				return "", basterr.New(basterr.CodeSecurityPathBlocked, "filename must be a bare file name")
			}
			if strings.ContainsAny(name, "/\\") {
				return "", basterr.New(basterr.CodeSecurityPathBlocked, "filename must not contain path separators")
			}
			if strings.ContainsAny(name, "*?[") {
				return "", basterr.New(basterr.CodeSecurityPathBlocked, "filename must not contain wildcard characters")
			}

			resolved, res := cfg.Validator.ValidateWritePath(filepath.Join(cfg.Validator.Root(), name))
			if !res.Allowed {
				return "", basterr.New(basterr.CodeSecurityPathBlocked, res.Reason)
			}

			info, err := os.Lstat(resolved)
			if err != nil {
				return "", basterr.Wrapf(err, basterr.CodeToolHandlerFailure, "stat %q", name)
			}
			if info.IsDir() {
				return "", basterr.New(basterr.CodeSecurityPathBlocked, "refusing to delete a directory")
			}
			if err := os.Remove(resolved); err != nil {
				return "", basterr.Wrapf(err, basterr.CodeToolHandlerFailure, "deleting %q", name)
			}
			return "deleted " + name, nil
		},
	}
}
