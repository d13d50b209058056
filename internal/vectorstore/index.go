// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// ConflictPolicy decides what Save does when a record id already exists.
type ConflictPolicy string

const (
	// ConflictError refuses to write a batch containing an existing id.
	ConflictError ConflictPolicy = "error"
	// ConflictOverwrite upserts over existing ids.
	ConflictOverwrite ConflictPolicy = "overwrite"
)

func (p ConflictPolicy) Valid() bool {
	return p == ConflictError || p == ConflictOverwrite
}

// QueryEmbedder turns query text into a vector in the collection's space.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// IndexOptions configures an Index.
type IndexOptions struct {
	// BatchSize caps records per Upsert. 0 leaves only the backend's limit.
	BatchSize int
	// OnConflict defaults to ConflictError.
	OnConflict ConflictPolicy
	// BatchesPerSecond paces uploads. 0 disables pacing.
	BatchesPerSecond float64
	// EmbeddingModel is stamped into record metadata.
	EmbeddingModel string

	Logger *slog.Logger
	Now    func() time.Time
}

// Index is the document-level view of a Store: it assigns ids, stamps
// metadata, batches writes and embeds queries.
type Index struct {
	store    Store
	embedder QueryEmbedder
	opts     IndexOptions
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewIndex wraps store. embedder may be nil when only SearchByEmbedding and
// the maintenance operations are needed.
func NewIndex(store Store, embedder QueryEmbedder, opts IndexOptions) (*Index, error) {
	if store == nil {
		return nil, nyayaerr.New(nyayaerr.CodeStoreConnectFailure, "vector store is nil")
	}
	if opts.OnConflict == "" {
		opts.OnConflict = ConflictError
	}
	if !opts.OnConflict.Valid() {
		return nil, nyayaerr.Errorf(nyayaerr.CodeConfigValidateInvalidValue,
			"unknown conflict policy %q (want error or overwrite)", opts.OnConflict)
	}
	if opts.BatchSize < 0 {
		return nil, nyayaerr.Errorf(nyayaerr.CodeConfigValidateInvalidValue, "batch size must not be negative, got %d", opts.BatchSize)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ix := &Index{store: store, embedder: embedder, opts: opts, logger: logger}
	if opts.BatchesPerSecond > 0 {
		ix.limiter = rate.NewLimiter(rate.Limit(opts.BatchesPerSecond), 1)
	}
	return ix, nil
}

func (ix *Index) Store() Store { return ix.store }

// BatchSize is the effective number of records per write: the configured
// size capped by the backend maximum, where 0 means unlimited.
func (ix *Index) BatchSize() int {
	size, limit := ix.opts.BatchSize, ix.store.MaxBatchSize()
	switch {
	case size == 0:
		return limit
	case limit == 0:
		return size
	default:
		return min(size, limit)
	}
}

// SaveReport describes how far a Save got.
type SaveReport struct {
	Total    int    `json:"total"`
	Offset   int    `json:"offset"`
	Uploaded int    `json:"uploaded"`
	Batches  int    `json:"batches"`
	RunID    string `json:"run_id"`
	// FailedBatch is the 1-based number of the batch that failed, or 0.
	FailedBatch int  `json:"failed_batch,omitempty"`
	Completed   bool `json:"completed"`
}

// NextOffset is the offset to pass to a retried Save so it resumes right
// after the last committed record.
func (r SaveReport) NextOffset() int {
	return r.Offset + r.Uploaded
}

type saveConfig struct {
	offset int
	runID  string
}

// SaveOption adjusts a single Save call.
type SaveOption func(*saveConfig)

// WithOffset numbers ids from n instead of 0. Use it to resume a partial
// upload with the chunks that were not yet stored.
func WithOffset(n int) SaveOption {
	return func(c *saveConfig) { c.offset = n }
}

// WithRunID stamps id as the ingest run instead of a fresh UUID.
func WithRunID(id string) SaveOption {
	return func(c *saveConfig) { c.runID = id }
}

// RecordID is the id a chunk at position i of documentName is stored under.
func RecordID(documentName string, i int) string {
	return fmt.Sprintf("%s_%d", documentName, i)
}

// Save stores chunks under ids {documentName}_{offset+i}. Batches run in
// order and the first failure stops the upload; the returned report counts
// only batches that were committed.
func (ix *Index) Save(ctx context.Context, chunks []EmbeddedChunk, documentName string, opts ...SaveOption) (SaveReport, error) {
	cfg := saveConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runID == "" {
		cfg.runID = uuid.NewString()
	}

	report := SaveReport{Total: len(chunks), Offset: cfg.offset, RunID: cfg.runID}

	if strings.TrimSpace(documentName) == "" {
		return report, nyayaerr.New(nyayaerr.CodeStoreRecordInvalid, "document name must not be empty")
	}
	if cfg.offset < 0 {
		return report, nyayaerr.Errorf(nyayaerr.CodeStoreRecordInvalid, "offset must not be negative, got %d", cfg.offset)
	}
	if len(chunks) == 0 {
		report.Completed = true
		return report, nil
	}

	dim := ix.store.Dimension()
	for i, c := range chunks {
		if len(c.Embedding) != dim {
			return report, nyayaerr.New(nyayaerr.CodeStoreRecordDimensionInvalid,
				fmt.Sprintf("chunk %d has %d dimensions, collection expects %d", i, len(c.Embedding), dim),
				nyayaerr.FieldCollection(ix.store.Collection()),
				nyayaerr.Field("chunk", i),
				nyayaerr.Field("dimension", len(c.Embedding)),
				nyayaerr.Field("expected", dim))
		}
	}

	records := ix.records(chunks, documentName, cfg)
	batches := Batches(len(records), ix.BatchSize())

	for n, b := range batches {
		batch := records[b[0]:b[1]]
		if err := ix.writeBatch(ctx, batch); err != nil {
			report.FailedBatch = n + 1
			ix.logger.Error("batch upload failed",
				"collection", ix.store.Collection(),
				"batch", n+1,
				"batches", len(batches),
				"uploaded", report.Uploaded,
				"total", report.Total,
				"next_offset", report.NextOffset(),
				"error", err)
			return report, nyayaerr.Wrap(err, nyayaerr.CodeStoreSaveBatchFailure,
				fmt.Sprintf("batch %d of %d failed after %d of %d records", n+1, len(batches), report.Uploaded, report.Total),
				nyayaerr.FieldCollection(ix.store.Collection()),
				nyayaerr.FieldDocument(documentName),
				nyayaerr.Field("batch", n+1),
				nyayaerr.Field("uploaded", report.Uploaded),
				nyayaerr.Field("total", report.Total),
				nyayaerr.Field("next_offset", report.NextOffset()))
		}
		report.Uploaded += len(batch)
		report.Batches++
		ix.logger.Info("batch uploaded",
			"collection", ix.store.Collection(),
			"batch", n+1,
			"batches", len(batches),
			"uploaded", report.Uploaded,
			"total", report.Total)
	}

	report.Completed = true
	return report, nil
}

func (ix *Index) records(chunks []EmbeddedChunk, documentName string, cfg saveConfig) []Record {
	created := ix.opts.Now().UTC().Format(time.RFC3339)
	dim := ix.store.Dimension()

	records := make([]Record, len(chunks))
	for i, c := range chunks {
		id := RecordID(documentName, cfg.offset+i)
		md := make(Metadata, len(c.Metadata)+7)
		for k, v := range c.Metadata {
			md[k] = v
		}
		md[KeyDocumentName] = String(documentName)
		md[KeyChunkID] = String(id)
		md[KeyTextLength] = Int(int64(len(c.Text)))
		md[KeyCreatedAt] = String(created)
		md[KeyEmbeddingModel] = String(ix.opts.EmbeddingModel)
		md[KeyEmbeddingDim] = Int(int64(dim))
		md[KeyIngestRun] = String(cfg.runID)

		records[i] = Record{ID: id, Text: c.Text, Vector: c.Embedding, Metadata: md}
	}
	return records
}

func (ix *Index) writeBatch(ctx context.Context, batch []Record) error {
	if ix.limiter != nil {
		if err := ix.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if ix.opts.OnConflict == ConflictError {
		ids := make([]string, len(batch))
		for i, r := range batch {
			ids[i] = r.ID
		}
		existing, err := ix.store.Existing(ctx, ids)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			sort.Strings(existing)
			return nyayaerr.New(nyayaerr.CodeStoreSaveConflict,
				fmt.Sprintf("%d record ids already exist (first %s); clear the collection or set store.on_conflict to overwrite",
					len(existing), existing[0]),
				nyayaerr.FieldCollection(ix.store.Collection()),
				nyayaerr.Field("existing", len(existing)))
		}
	}

	return ix.store.Upsert(ctx, batch)
}

// Search embeds text and returns at most k matches ordered by ascending
// distance.
func (ix *Index) Search(ctx context.Context, text string, k int, filter Filter) ([]SearchResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nyayaerr.New(nyayaerr.CodeStoreSearchInvalid, "search text must not be empty")
	}
	if ix.embedder == nil {
		return nil, nyayaerr.New(nyayaerr.CodeStoreSearchInvalid, "index has no query embedder")
	}
	vec, err := ix.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return ix.SearchByEmbedding(ctx, vec, k, filter)
}

// SearchByEmbedding ranks stored records against vec.
func (ix *Index) SearchByEmbedding(ctx context.Context, vec []float32, k int, filter Filter) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nyayaerr.Errorf(nyayaerr.CodeStoreSearchInvalid, "k must be positive, got %d", k)
	}
	if dim := ix.store.Dimension(); len(vec) != dim {
		return nil, nyayaerr.New(nyayaerr.CodeStoreRecordDimensionInvalid,
			fmt.Sprintf("query vector has %d dimensions, collection expects %d", len(vec), dim),
			nyayaerr.FieldCollection(ix.store.Collection()))
	}

	results, err := ix.store.Search(ctx, vec, k, filter)
	if err != nil {
		return nil, err
	}

	kept := results[:0]
	for _, r := range results {
		if filter.Matches(r.Metadata) {
			kept = append(kept, r)
		}
	}
	SortResults(kept)
	if len(kept) > k {
		kept = kept[:k]
	}
	return kept, nil
}

func (ix *Index) Info(ctx context.Context) (CollectionInfo, error) {
	return ix.store.Info(ctx)
}

// Clear removes every record in the collection. It cannot be undone.
func (ix *Index) Clear(ctx context.Context) error {
	if err := ix.store.Clear(ctx); err != nil {
		return err
	}
	ix.logger.Warn("collection cleared", "collection", ix.store.Collection(), "backend", ix.store.Backend())
	return nil
}

// GetAll returns every record with its vector.
func (ix *Index) GetAll(ctx context.Context) ([]Record, error) {
	return ix.store.Dump(ctx)
}

// DocumentChunks returns the records of one document in upload order.
func (ix *Index) DocumentChunks(ctx context.Context, documentName string) ([]Record, error) {
	all, err := ix.store.Dump(ctx)
	if err != nil {
		return nil, err
	}

	want := String(documentName)
	var out []Record
	for _, r := range all {
		if r.Metadata[KeyDocumentName].Equal(want) {
			out = append(out, r)
		}
	}
	prefix := documentName + "_"
	sort.SliceStable(out, func(i, j int) bool {
		return recordSeq(out[i].ID, prefix) < recordSeq(out[j].ID, prefix)
	})
	return out, nil
}

func recordSeq(id, prefix string) int {
	var n int
	if _, err := fmt.Sscanf(strings.TrimPrefix(id, prefix), "%d", &n); err != nil {
		return -1
	}
	return n
}

func (ix *Index) Close() error {
	return ix.store.Close()
}
