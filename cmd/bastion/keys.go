// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bastion-dev/bastion/internal/auth"
	"github.com/bastion-dev/bastion/internal/config"
	"github.com/bastion-dev/bastion/internal/store"
	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

// openKeychain opens the configured store and builds a keychain over it.
// Package-level so tests can substitute an in-memory store.
var openKeychain = func(cmd *cobra.Command) (*auth.Keychain, func(), error) {
	cfg, err := config.Load(configPathFromFlags(cmd))
	if err != nil {
		return nil, nil, basterr.Errorf(basterr.CodeCLISetupFailure, "loading config: %w", err)
	}
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, nil, basterr.Errorf(basterr.CodeCLISetupFailure, "creating data directory: %w", err)
	}

	st, err := store.New(&store.StorageConfig{Backend: cfg.Storage.Backend}, cfg.Storage.DataDir)
	if err != nil {
		return nil, nil, basterr.Errorf(basterr.CodeCLISetupFailure, "opening store: %w", err)
	}

	kc, err := auth.NewKeychain(cmd.Context(), st.Keys(), st.AuditLog(), auth.Config{
		GraceWindow: cfg.Auth.GraceWindow,
		MaxLiveKeys: cfg.Auth.MaxLiveKeys,
	}, nil)
	if err != nil {
		_ = st.Close()
		return nil, nil, basterr.Errorf(basterr.CodeCLISetupFailure, "creating keychain: %w", err)
	}

	return kc, func() { _ = st.Close() }, nil
}

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys",
		Long:  "Provision, rotate, list, and revoke the API keys callers authenticate with.",
	}

	cmd.AddCommand(
		newKeysProvisionCmd(),
		newKeysRotateCmd(),
		newKeysListCmd(),
		newKeysRevokeCmd(),
	)

	return cmd
}

func newKeysProvisionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Issue a new API key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kc, done, err := openKeychain(cmd)
			if err != nil {
				return err
			}
			defer done()

			issued, err := kc.Provision(cmd.Context())
			if err != nil {
				return err
			}
			return printIssued(cmd, issued)
		},
	}
}

func newKeysRotateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Issue a new API key, optionally revoking an old one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kc, done, err := openKeychain(cmd)
			if err != nil {
				return err
			}
			defer done()

			oldKeyID, _ := cmd.Flags().GetString("revoke")
			issued, err := kc.Rotate(cmd.Context(), oldKeyID)
			if err != nil {
				return err
			}
			return printIssued(cmd, issued)
		},
	}
	cmd.Flags().String("revoke", "", "key ID to revoke after issuing")
	return cmd
}

func newKeysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API key metadata",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kc, done, err := openKeychain(cmd)
			if err != nil {
				return err
			}
			defer done()

			keys, err := kc.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No keys provisioned.")
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY ID\tPREFIX\tCREATED\tSTATUS")
			for _, k := range keys {
				status := "live"
				if k.Revoked() {
					status = "revoked " + k.RevokedAt.Format("2006-01-02")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					k.KeyID, k.Prefix, k.CreatedAt.Format("2006-01-02 15:04"), status)
			}
			return w.Flush()
		},
	}
}

func newKeysRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, done, err := openKeychain(cmd)
			if err != nil {
				return err
			}
			defer done()

			if err := kc.Revoke(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Revoked key: %s\n", args[0])
			return err
		},
	}
}

func printIssued(cmd *cobra.Command, issued *auth.IssuedKey) error {
	out := cmd.OutOrStdout()
	if _, err := fmt.Fprintf(out, "Key ID: %s\n", issued.KeyID); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, "Secret: %s\n", issued.Secret); err != nil {
		return err
	}
	_, err := fmt.Fprintln(out, "Store the secret now; it is not retrievable later.")
	return err
}
