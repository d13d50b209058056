// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nyaya-dev/nyaya/internal/vectorstore"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate --to <backend>",
		Short: "Copy every record into another vector store backend",
		Long: `Copy ids, texts, metadata and vectors from the configured store into
another backend without re-embedding. The target uses the same collection
name and the credentials from its own config section. The source must be
able to enumerate its records.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runMigrate(cmd)
		},
	}
	cmd.Flags().String("to", "", "target backend (sqlite, chroma or pinecone)")
	cmd.Flags().Bool("clear", false, "empty the target collection first")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (a *app) runMigrate(cmd *cobra.Command) error {
	ctx := cmd.Context()
	to, _ := cmd.Flags().GetString("to")
	if to == a.cfg.Store.Backend {
		return cliInputError("target backend %q is the configured backend", to)
	}

	s, err := a.storeStack(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	records, err := s.index.GetAll(ctx)
	if err != nil {
		return err
	}

	target, err := a.openStore(ctx, to)
	if err != nil {
		return err
	}
	defer func() { _ = target.Close() }()

	if clearFirst, _ := cmd.Flags().GetBool("clear"); clearFirst {
		if err := target.Clear(ctx); err != nil {
			return err
		}
	}

	n, err := copyRecords(ctx, target, records, a.cfg.Store.BatchSize, cmd.OutOrStdout())
	if err != nil {
		return nyayaerr.With(err, nyayaerr.Field("uploaded", n), nyayaerr.Field("total", len(records)))
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Copied %d records from %s to %s.\n", n, a.cfg.Store.Backend, to)
	return err
}

// copyRecords upserts records in batches no larger than batchSize or the
// target's limit, returning how many were written.
func copyRecords(ctx context.Context, target vectorstore.Store, records []vectorstore.Record, batchSize int, progress io.Writer) (int, error) {
	size := len(records)
	if batchSize > 0 {
		size = batchSize
	}
	if limit := target.MaxBatchSize(); limit > 0 && (size == 0 || size > limit) {
		size = limit
	}
	if size == 0 {
		return 0, nil
	}

	written := 0
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		if err := target.Upsert(ctx, records[start:end]); err != nil {
			return written, nyayaerr.Wrapf(err, nyayaerr.CodeStoreSaveBatchFailure,
				"copying records %d-%d", start, end-1)
		}
		written = end
		_, _ = fmt.Fprintf(progress, "  %d/%d\n", written, len(records))
	}
	return written, nil
}
