// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package builtin

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/bastion-dev/bastion/internal/tool"
	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

func systemInfoTool() tool.Descriptor {
	return tool.Descriptor{
		Name:             "get_system_info",
		Description:      "Report host basics: hostname, operating system, architecture, CPU count, and runtime version.",
		AllowedByDefault: true,
		Handler: func(_ context.Context, _ map[string]any) (string, error) {
			hostname, err := os.Hostname()
			if err != nil {
				hostname = "unknown"
			}
			var b strings.Builder
			fmt.Fprintf(&b, "hostname: %s\n", hostname)
			fmt.Fprintf(&b, "os: %s\n", runtime.GOOS)
			fmt.Fprintf(&b, "arch: %s\n", runtime.GOARCH)
			fmt.Fprintf(&b, "cpus: %d\n", runtime.NumCPU())
			fmt.Fprintf(&b, "runtime: %s", runtime.Version())
			return b.String(), nil
		},
	}
}

func diskSpaceTool(cfg Config) tool.Descriptor {
	return tool.Descriptor{
		Name:             "check_disk_space",
		Description:      "Report total, used, and free disk space for the filesystem holding the working root.",
		AllowedByDefault: true,
		Handler: func(_ context.Context, _ map[string]any) (string, error) {
			total, used, free, err := diskUsage(cfg.Validator.Root())
			if err != nil {
				return "", basterr.Wrapf(err, basterr.CodeToolHandlerFailure, "disk usage on working root")
			}

			return fmt.Sprintf("total: %s\nused: %s\nfree: %s",
				humanBytes(total), humanBytes(used), humanBytes(free)), nil
		},
	}
}

// humanBytes renders a byte count with a binary-unit suffix.
func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
