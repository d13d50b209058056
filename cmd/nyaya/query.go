// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/nyaya-dev/nyaya/internal/chat"
	"github.com/nyaya-dev/nyaya/internal/rag"
	"github.com/nyaya-dev/nyaya/internal/tui"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

func newAskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAsk(cmd, strings.Join(args, " "))
		},
	}
	cmd.Flags().Bool("detailed", false, "print the full response with sources as JSON")
	return cmd
}

func (a *app) runAsk(cmd *cobra.Command, question string) error {
	ctx := cmd.Context()
	s, err := a.queryStack(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	svc, err := a.ragService(s)
	if err != nil {
		return err
	}

	resp, err := svc.Chat(ctx, question)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if detailed, _ := cmd.Flags().GetBool("detailed"); detailed {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	_, err = fmt.Fprintln(out, resp.Answer)
	return err
}

func newChatCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively",
		Long: `Start an interactive session. Type quit, exit, bye or q to leave.

A full-screen interface is used when attached to a terminal; --plain
forces the line-based prompt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runChat(cmd)
		},
	}
	cmd.Flags().Bool("plain", false, "use the line-based prompt even on a terminal")
	return cmd
}

func (a *app) runChat(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := a.queryStack(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	svc, err := a.ragService(s)
	if err != nil {
		return err
	}

	plain, _ := cmd.Flags().GetBool("plain")
	if !plain && isTerminal(cmd.InOrStdin()) && isTerminal(cmd.OutOrStdout()) {
		return tui.Run(ctx, svc, a.sessionSummary(ctx, s))
	}

	out := cmd.OutOrStdout()
	chat.Banner(out)
	return chat.New(svc, cmd.InOrStdin(), out).Run(ctx)
}

// sessionSummary describes the collection and model for the chat header.
func (a *app) sessionSummary(ctx context.Context, s *stack) string {
	model := a.cfg.Generation.Provider + "/" + a.cfg.Generation.Model
	info, err := s.index.Info(ctx)
	if err != nil {
		return fmt.Sprintf("%s | collection unavailable", model)
	}
	return fmt.Sprintf("%s | %s: %d chunks", model, info.Name, info.Count)
}

func newSearchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "List the passages most relevant to a query, without generating an answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSearch(cmd, strings.Join(args, " "))
		},
	}
	cmd.Flags().IntP("top-k", "k", 0, "number of passages (default: retrieval.top_k)")
	cmd.Flags().String("document", "", "restrict to one document (default: retrieval.document_name)")
	cmd.Flags().Bool("all-documents", false, "search every document in the collection")
	cmd.Flags().Bool("json", false, "print sources as JSON")
	return cmd
}

func (a *app) runSearch(cmd *cobra.Command, query string) error {
	ctx := cmd.Context()
	s, err := a.retrievalStack(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	svc, err := a.ragService(s)
	if err != nil {
		return err
	}

	k, _ := cmd.Flags().GetInt("top-k")
	opts := []rag.RetrieveOption{rag.WithTopK(k)}
	if doc, _ := cmd.Flags().GetString("document"); doc != "" {
		opts = append(opts, rag.WithDocument(doc))
	}
	if all, _ := cmd.Flags().GetBool("all-documents"); all {
		opts = append(opts, rag.WithDocument(""))
	}

	retrieval, err := svc.Retrieve(ctx, query, opts...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(retrieval.Sources)
	}
	if len(retrieval.Sources) == 0 {
		_, err := fmt.Fprintln(out, "No matching passages.")
		return err
	}
	for _, src := range retrieval.Sources {
		if _, err := fmt.Fprintf(out, "%s  [%s]\n\n", strings.TrimRight(rag.FormatSource(src.Rank, src.Relevance, src.Text), "\n"), src.RecordID); err != nil {
			return err
		}
	}
	return nil
}

// isTerminal reports whether v is a file attached to a terminal.
func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// cliInputError marks a usage problem the user can fix.
func cliInputError(format string, args ...any) error {
	return nyayaerr.Errorf(nyayaerr.CodeCLIInputInvalid, format, args...)
}
