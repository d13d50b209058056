// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nyaya-dev/nyaya/internal/document"
	"github.com/nyaya-dev/nyaya/internal/ingest"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

func newIngestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [path]",
		Short: "Chunk, embed and store a document",
		Long: `Load a document (docling JSON, Markdown or text), split it into
contextualized chunks, embed them and save them to the vector store.

A failed upload reports how many chunks were stored; rerun with
--offset to resume from there.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runIngest(cmd, args)
		},
	}

	cmd.Flags().String("name", "", "document name stored with every chunk (default: document.name)")
	cmd.Flags().Int("offset", 0, "skip the first N chunks, resuming a partial upload")
	cmd.Flags().Bool("clear", false, "empty the collection before uploading")
	cmd.Flags().Bool("purge-cache", false, "drop cached embeddings so every chunk is embedded again")

	return cmd
}

func (a *app) runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	path := a.cfg.Document.Path
	if len(args) == 1 {
		path = args[0]
	}
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = a.cfg.Document.Name
	}
	offset, _ := cmd.Flags().GetInt("offset")
	clearFirst, _ := cmd.Flags().GetBool("clear")
	purgeCache, _ := cmd.Flags().GetBool("purge-cache")

	doc, err := document.Load(path, a.cfg.Document.SupportedFormats)
	if err != nil {
		return err
	}

	s, err := a.retrievalStack(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if purgeCache && s.cache != nil {
		n, err := s.cache.Len()
		if err != nil {
			return err
		}
		if err := s.cache.Purge(); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Purged %d cached embeddings.\n", n)
	}

	p, err := a.pipeline(s)
	if err != nil {
		return err
	}

	report, err := p.Run(ctx, doc, ingest.RunOptions{DocumentName: name, Offset: offset, Clear: clearFirst})
	if err != nil {
		if nyayaerr.IsBatchUpload(err) {
			_, _ = fmt.Fprintf(out, "Uploaded %d/%d chunks before the failure.\n", report.Stored(), report.TotalChunks)
			_, _ = fmt.Fprintf(out, "Resume with: nyaya ingest %s --name %s --offset %d\n", path, name, report.Save.NextOffset())
		}
		return err
	}

	_, _ = fmt.Fprintf(out, "Uploaded %d/%d chunks of %s to %s (run %s, %s)\n",
		report.Stored(), report.TotalChunks, report.Document, a.cfg.Store.Collection,
		report.RunID, report.Duration.Round(time.Millisecond))
	return nil
}
