// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package main

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nyaya-dev/nyaya/internal/secrets"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage API keys stored in the OS keyring",
		Long: fmt.Sprintf(`Store, list and delete API keys under the %q keyring service.

Reference a stored key from the config file as %s.
Known names: %s.`, secrets.Service, secrets.URI("<name>"), strings.Join(secrets.KnownNames(), ", ")),
		Annotations: map[string]string{annotationNoConfig: "true"},
	}

	set := &cobra.Command{
		Use:   "set <name>",
		Short: "Store a secret, read from --value or stdin",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretSet,
	}
	set.Flags().String("value", "", "secret value; prefer stdin so it stays out of shell history")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List all stored secret names",
			Args:  cobra.NoArgs,
			RunE:  runSecretList,
		},
		set,
		&cobra.Command{
			Use:   "delete <name>",
			Short: "Delete a secret by name",
			Args:  cobra.ExactArgs(1),
			RunE:  runSecretDelete,
		},
	)

	return cmd
}

func runSecretList(cmd *cobra.Command, _ []string) error {
	store := secretStoreFactory()
	keys, err := store.List(secrets.Service)
	if err != nil {
		return nyayaerr.Errorf(nyayaerr.CodeSecretListFailure, "listing secrets: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		_, _ = fmt.Fprintln(out, "No secrets stored.")
		return nil
	}

	slices.Sort(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintln(out, k)
	}
	return nil
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	name := args[0]
	if _, ok := secrets.Known[name]; !ok {
		return nyayaerr.Errorf(nyayaerr.CodeSecretInvalidInput,
			"unknown secret %q (want one of %s)", name, strings.Join(secrets.KnownNames(), ", "))
	}

	value, _ := cmd.Flags().GetString("value")
	if value == "" {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Enter %s: ", name)
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && err != io.EOF {
			return nyayaerr.Wrap(err, nyayaerr.CodeSecretInvalidInput, "reading secret")
		}
		value = strings.TrimSpace(line)
	}
	if value == "" {
		return nyayaerr.New(nyayaerr.CodeSecretInvalidInput, "secret value must not be empty")
	}

	if err := secretStoreFactory().Store(secrets.Service, name, value); err != nil {
		return nyayaerr.Errorf(nyayaerr.CodeSecretStoreFailure, "storing secret %q: %w", name, err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored secret: %s\nReference it as %s: %s\n",
		name, secrets.Known[name], secrets.URI(name))
	return nil
}

func runSecretDelete(cmd *cobra.Command, args []string) error {
	name := args[0]
	store := secretStoreFactory()

	if err := store.Delete(secrets.Service, name); err != nil {
		if nyayaerr.HasCode(err, nyayaerr.CodeSecretNotFound) {
			return nyayaerr.Errorf(nyayaerr.CodeSecretNotFound, "secret %q not found", name)
		}
		return nyayaerr.Errorf(nyayaerr.CodeSecretDeleteFailure, "deleting secret %q: %w", name, err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret: %s\n", name)
	return nil
}
