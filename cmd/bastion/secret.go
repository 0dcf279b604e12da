// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bastion-dev/bastion/internal/secrets"
	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

// serviceName is the keyring service under which Bastion stores secrets.
// Config values reference them as keyring://bastion/<name>.
const serviceName = "bastion"

// secretStoreFactory creates a secrets.Store. Package-level so tests can
// substitute a mock implementation.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewOSKeyring()
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets stored in the OS keyring",
		Long:  "Store, list, and delete secrets kept under the Bastion service in the operating system keyring. Config values reference them as keyring://bastion/<name>.",
	}

	cmd.AddCommand(
		newSecretSetCmd(),
		newSecretListCmd(),
		newSecretDeleteCmd(),
	)

	return cmd
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> <value>",
		Short: "Store a secret under a name",
		Args:  cobra.ExactArgs(2),
		RunE:  runSecretSet,
	}
}

func newSecretListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all stored secret names",
		RunE:  runSecretList,
	}
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a secret by name",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretDelete,
	}
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	name, value := args[0], args[1]
	if err := secretStoreFactory().Put(serviceName, name, value); err != nil {
		return basterr.Errorf(basterr.CodeSecretStoreFailure, "storing secret %q: %w", name, err)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Stored secret: %s (reference it as keyring://%s/%s)\n",
		name, serviceName, name)
	return err
}

func runSecretList(cmd *cobra.Command, _ []string) error {
	names, err := secretStoreFactory().Names(serviceName)
	if err != nil {
		return basterr.Errorf(basterr.CodeSecretStoreFailure, "listing secrets: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(names) == 0 {
		_, err := fmt.Fprintln(out, "No secrets stored.")
		return err
	}
	for _, n := range names {
		if _, err := fmt.Fprintln(out, n); err != nil {
			return err
		}
	}
	return nil
}

func runSecretDelete(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := secretStoreFactory().Delete(serviceName, name); err != nil {
		if basterr.HasCode(err, basterr.CodeSecretNotFound) {
			return basterr.Errorf(basterr.CodeSecretNotFound, "secret %q not found", name)
		}
		return basterr.Errorf(basterr.CodeSecretStoreFailure, "deleting secret %q: %w", name, err)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret: %s\n", name)
	return err
}
