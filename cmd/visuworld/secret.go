// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/visuworld/visuworld/internal/secrets"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

// secretStoreFactory creates a secrets.Store. It is a package-level variable
// so tests can substitute an in-memory implementation.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyring()
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage provider API keys stored in the OS keyring",
		Long: "Store, list and delete secrets under the visuworld service in the operating system keyring. " +
			"Reference a stored key from the config as keyring://visuworld/<name>.",
	}

	cmd.AddCommand(
		newSecretSetCmd(),
		newSecretListCmd(),
		newSecretDeleteCmd(),
	)

	return cmd
}

func newSecretSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Store a secret; the value is read from stdin unless --value is given",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretSet,
	}
	cmd.Flags().String("value", "", "secret value (visible in shell history; prefer stdin)")
	return cmd
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
	name := args[0]
	value, _ := cmd.Flags().GetString("value")
	if value == "" {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return vwerr.Errorf(vwerr.CodeCLIInputInvalid, "reading secret value from stdin: %w", err)
		}
		value = strings.TrimSpace(line)
	}
	if value == "" {
		return vwerr.New(vwerr.CodeCLIInputInvalid, "secret value must not be empty")
	}

	if err := secretStoreFactory().Set(secrets.Service, name, value); err != nil {
		return err
	}

	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Stored secret: %s (reference it as keyring://%s/%s)\n",
		name, secrets.Service, name)
	return err
}

func runSecretList(cmd *cobra.Command, _ []string) error {
	keys, err := secretStoreFactory().List(secrets.Service)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		_, _ = fmt.Fprintln(out, "No secrets stored.")
		return nil
	}

	for _, k := range keys {
		_, _ = fmt.Fprintln(out, k)
	}
	return nil
}

func runSecretDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	if err := secretStoreFactory().Delete(secrets.Service, name); err != nil {
		if vwerr.HasCode(err, vwerr.CodeSecretNotFound) {
			return vwerr.Errorf(vwerr.CodeSecretNotFound, "secret %q not found", name)
		}
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret: %s\n", name)
	return nil
}
