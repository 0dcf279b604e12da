// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root bastion command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bastion",
		Short:         "Bastion, a tool-execution sidecar for chat agents",
		Long:          "Bastion runs side-effecting tools on behalf of an LLM-driven chat agent with a bounded blast radius: sandboxed files, screened commands, per-scope policy, and a full audit trail.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")

	root.AddCommand(
		newStartCmd(),
		newKeysCmd(),
		newSecretCmd(),
		newVersionCmd(),
	)

	return root
}

func configPathFromFlags(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
