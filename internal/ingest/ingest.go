// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

// Package ingest turns a document into stored, embedded chunks: chunk,
// embed, validate, save.
package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nyaya-dev/nyaya/internal/chunker"
	"github.com/nyaya-dev/nyaya/internal/document"
	"github.com/nyaya-dev/nyaya/internal/vectorstore"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// DefaultEmbedBatchSize is the number of chunk texts per embedding call.
const DefaultEmbedBatchSize = 64

type Chunker interface {
	Chunk(doc *document.Document) ([]chunker.Chunk, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

type Options struct {
	EmbedBatchSize int
	Logger         *slog.Logger
}

// RunOptions scope a single Run.
type RunOptions struct {
	// DocumentName overrides doc.Name as the id prefix and filter value.
	DocumentName string
	// Offset skips the first Offset chunks, for resuming a partial upload.
	Offset int
	// Clear empties the collection before saving.
	Clear bool
}

type Report struct {
	Document    string                 `json:"document"`
	RunID       string                 `json:"run_id"`
	TotalChunks int                    `json:"total_chunks"`
	Cleared     bool                   `json:"cleared"`
	Save        vectorstore.SaveReport `json:"save"`
	Duration    time.Duration          `json:"duration"`
}

// Stored is the number of chunks of the document now in the store,
// counting those skipped by the offset.
func (r Report) Stored() int {
	return r.Save.NextOffset()
}

type Pipeline struct {
	chunker  Chunker
	embedder Embedder
	index    *vectorstore.Index
	opts     Options
	logger   *slog.Logger
}

func New(c Chunker, e Embedder, ix *vectorstore.Index, opts Options) (*Pipeline, error) {
	if c == nil || e == nil || ix == nil {
		return nil, nyayaerr.New(nyayaerr.CodeConfigValidateInvalidValue, "ingest: chunker, embedder and index are required")
	}
	if opts.EmbedBatchSize < 0 {
		return nil, nyayaerr.Errorf(nyayaerr.CodeConfigValidateInvalidValue,
			"ingest: embed batch size must not be negative, got %d", opts.EmbedBatchSize)
	}
	if opts.EmbedBatchSize == 0 {
		opts.EmbedBatchSize = DefaultEmbedBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{chunker: c, embedder: e, index: ix, opts: opts, logger: logger}, nil
}

// Embed chunks doc and embeds every chunk without saving.
func (p *Pipeline) Embed(ctx context.Context, doc *document.Document) ([]vectorstore.EmbeddedChunk, error) {
	chunks, err := p.chunker.Chunk(doc)
	if err != nil {
		return nil, err
	}
	return p.embed(ctx, chunks)
}

// Run ingests doc. On a failed save the returned report still carries the
// progress so far; Report.Stored is the offset to resume from.
func (p *Pipeline) Run(ctx context.Context, doc *document.Document, opts RunOptions) (Report, error) {
	start := time.Now()
	name := opts.DocumentName
	if name == "" && doc != nil {
		name = doc.Name
	}

	report := Report{Document: name, RunID: uuid.NewString()}
	report.Save.Offset = opts.Offset
	if strings.TrimSpace(name) == "" {
		return report, nyayaerr.New(nyayaerr.CodeDocumentValidateInvalid, "ingest: document name must not be empty")
	}
	if opts.Offset < 0 {
		return report, nyayaerr.Errorf(nyayaerr.CodeStoreRecordInvalid, "ingest: offset must not be negative, got %d", opts.Offset)
	}

	chunks, err := p.chunker.Chunk(doc)
	if err != nil {
		return report, err
	}
	report.TotalChunks = len(chunks)
	if opts.Offset > len(chunks) {
		return report, nyayaerr.New(nyayaerr.CodeStoreRecordInvalid, "ingest: offset is past the last chunk",
			nyayaerr.FieldDocument(name), nyayaerr.Field("offset", opts.Offset), nyayaerr.Field("chunks", len(chunks)))
	}
	p.logger.Info("chunked document", "document", name, "chunks", len(chunks), "offset", opts.Offset)

	if opts.Clear {
		if err := p.index.Clear(ctx); err != nil {
			return report, err
		}
		report.Cleared = true
	}

	embedded, err := p.embed(ctx, chunks[opts.Offset:])
	if err != nil {
		return report, nyayaerr.With(err, nyayaerr.FieldDocument(name), nyayaerr.Field("offset", opts.Offset))
	}

	if issues := vectorstore.ValidateChunks(embedded, p.embedder.Dimension()); len(embedded) > 0 && len(issues) > 0 {
		return report, nyayaerr.New(nyayaerr.CodeStoreRecordInvalid,
			"ingest: chunk validation failed: "+strings.Join(issues, "; "),
			nyayaerr.FieldDocument(name), nyayaerr.Field("issues", len(issues)))
	}

	report.Save, err = p.index.Save(ctx, embedded, name,
		vectorstore.WithOffset(opts.Offset), vectorstore.WithRunID(report.RunID))
	report.Duration = time.Since(start)
	if err != nil {
		return report, err
	}

	p.logger.Info("ingest complete",
		"document", name,
		"run_id", report.RunID,
		"uploaded", report.Save.Uploaded,
		"stored", report.Stored(),
		"total", report.TotalChunks,
		"duration", report.Duration)
	return report, nil
}

func (p *Pipeline) embed(ctx context.Context, chunks []chunker.Chunk) ([]vectorstore.EmbeddedChunk, error) {
	out := make([]vectorstore.EmbeddedChunk, 0, len(chunks))
	for start := 0; start < len(chunks); start += p.opts.EmbedBatchSize {
		end := min(start+p.opts.EmbedBatchSize, len(chunks))
		texts := make([]string, end-start)
		for i, c := range chunks[start:end] {
			texts[i] = c.Text
		}

		vecs, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(texts) {
			return nil, nyayaerr.Errorf(nyayaerr.CodeEmbeddingResponseInvalid,
				"ingest: embedder returned %d vectors for %d texts", len(vecs), len(texts))
		}

		for i, c := range chunks[start:end] {
			out = append(out, vectorstore.EmbeddedChunk{Text: c.Text, Embedding: vecs[i], Metadata: c.Metadata.Clone()})
		}
		p.logger.Debug("embedded chunks", "done", end, "total", len(chunks))
	}
	return out, nil
}
