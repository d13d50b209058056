// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package ingest_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyaya-dev/nyaya/internal/chunker"
	"github.com/nyaya-dev/nyaya/internal/document"
	"github.com/nyaya-dev/nyaya/internal/ingest"
	"github.com/nyaya-dev/nyaya/internal/rag/ragtest"
	"github.com/nyaya-dev/nyaya/internal/vectorstore"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// stubChunker yields n numbered chunks regardless of the document.
type stubChunker struct{ n int }

func (s stubChunker) Chunk(doc *document.Document) ([]chunker.Chunk, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	out := make([]chunker.Chunk, s.n)
	for i := range out {
		text := fmt.Sprintf("Article %d. Provision number %d of the constitution.", i+1, i+1)
		out[i] = chunker.Chunk{
			Text:     text,
			RawText:  text,
			Metadata: vectorstore.Metadata{"chunk_type": vectorstore.String(chunker.ChunkType)},
		}
	}
	return out, nil
}

// countingEmbedder records the size of every Embed call.
type countingEmbedder struct {
	ragtest.Embedder
	mu    sync.Mutex
	calls []int
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.calls = append(c.calls, len(texts))
	c.mu.Unlock()
	return c.Embedder.Embed(ctx, texts)
}

// flakyStore fails its Nth Upsert.
type flakyStore struct {
	*vectorstore.Memory
	failOn  int
	upserts int
}

func (s *flakyStore) Upsert(ctx context.Context, records []vectorstore.Record) error {
	s.upserts++
	if s.upserts == s.failOn {
		return nyayaerr.New(nyayaerr.CodeStoreUpstreamFailure, "quota exceeded")
	}
	return s.Memory.Upsert(ctx, records)
}

var doc = &document.Document{Name: "indian_constitution"}

func newPipeline(t *testing.T, store vectorstore.Store, batch int, emb ingest.Embedder) *ingest.Pipeline {
	t.Helper()
	ix, err := vectorstore.NewIndex(store, nil, vectorstore.IndexOptions{BatchSize: batch, EmbeddingModel: "bag-of-words"})
	require.NoError(t, err)
	p, err := ingest.New(stubChunker{n: 378}, emb, ix, ingest.Options{})
	require.NoError(t, err)
	return p
}

func count(t *testing.T, s vectorstore.Store) int {
	t.Helper()
	info, err := s.Info(context.Background())
	require.NoError(t, err)
	return info.Count
}

func TestRun_PartialFailureThenResume(t *testing.T) {
	store := &flakyStore{Memory: vectorstore.NewMemory("constitution", ragtest.Dim), failOn: 2}
	p := newPipeline(t, store, 250, ragtest.Embedder{})

	report, err := p.Run(context.Background(), doc, ingest.RunOptions{})
	require.Error(t, err)
	assert.True(t, nyayaerr.IsBatchUpload(err))
	assert.Equal(t, 378, report.TotalChunks)
	assert.Equal(t, 250, report.Save.Uploaded)
	assert.Equal(t, 378, report.Save.Total)
	assert.Equal(t, 2, report.Save.FailedBatch)
	assert.Equal(t, 250, report.Stored())
	assert.Equal(t, 250, count(t, store))

	resumed, err := p.Run(context.Background(), doc, ingest.RunOptions{Offset: report.Stored()})
	require.NoError(t, err)
	assert.Equal(t, 128, resumed.Save.Total)
	assert.Equal(t, 128, resumed.Save.Uploaded)
	assert.Equal(t, 378, resumed.Stored())
	assert.True(t, resumed.Save.Completed)
	assert.Equal(t, 378, count(t, store))

	recs, err := store.Dump(context.Background())
	require.NoError(t, err)
	ids := make(map[string]bool, len(recs))
	for _, r := range recs {
		ids[r.ID] = true
	}
	assert.True(t, ids["indian_constitution_0"])
	assert.True(t, ids["indian_constitution_250"])
	assert.True(t, ids["indian_constitution_377"])
}

func TestRun_EmbedsInGroups(t *testing.T) {
	emb := &countingEmbedder{}
	ix, err := vectorstore.NewIndex(vectorstore.NewMemory("constitution", ragtest.Dim), nil, vectorstore.IndexOptions{})
	require.NoError(t, err)
	p, err := ingest.New(stubChunker{n: 130}, emb, ix, ingest.Options{EmbedBatchSize: 64})
	require.NoError(t, err)

	report, err := p.Run(context.Background(), doc, ingest.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int{64, 64, 2}, emb.calls)
	assert.Equal(t, 130, report.Stored())
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, report.RunID, report.Save.RunID)
}

func TestRun_StampsRunAndMetadata(t *testing.T) {
	store := vectorstore.NewMemory("constitution", ragtest.Dim)
	p := newPipeline(t, store, 0, ragtest.Embedder{})

	report, err := p.Run(context.Background(), doc, ingest.RunOptions{DocumentName: "coi"})
	require.NoError(t, err)
	assert.Equal(t, "coi", report.Document)

	recs, err := store.Dump(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 378)
	md := recs[0].Metadata
	assert.Equal(t, "coi", md[vectorstore.KeyDocumentName].Any())
	assert.Equal(t, report.RunID, md[vectorstore.KeyIngestRun].Any())
	assert.Equal(t, chunker.ChunkType, md["chunk_type"].Any())
}

func TestRun_RerunConflictsUnlessCleared(t *testing.T) {
	store := vectorstore.NewMemory("constitution", ragtest.Dim)
	p := newPipeline(t, store, 250, ragtest.Embedder{})
	ctx := context.Background()

	_, err := p.Run(ctx, doc, ingest.RunOptions{})
	require.NoError(t, err)

	report, err := p.Run(ctx, doc, ingest.RunOptions{})
	require.Error(t, err)
	assert.True(t, nyayaerr.HasCode(err, nyayaerr.CodeStoreSaveConflict))
	assert.Zero(t, report.Save.Uploaded)

	report, err = p.Run(ctx, doc, ingest.RunOptions{Clear: true})
	require.NoError(t, err)
	assert.True(t, report.Cleared)
	assert.Equal(t, 378, count(t, store))
}

func TestRun_InvalidInput(t *testing.T) {
	p := newPipeline(t, vectorstore.NewMemory("constitution", ragtest.Dim), 0, ragtest.Embedder{})
	ctx := context.Background()

	_, err := p.Run(ctx, &document.Document{}, ingest.RunOptions{})
	require.Error(t, err)
	assert.True(t, nyayaerr.IsDocumentFormat(err))

	_, err = p.Run(ctx, doc, ingest.RunOptions{Offset: -1})
	require.Error(t, err)

	_, err = p.Run(ctx, doc, ingest.RunOptions{Offset: 379})
	require.Error(t, err)
	assert.True(t, nyayaerr.IsInvalidInput(err))

	report, err := p.Run(ctx, doc, ingest.RunOptions{Offset: 378})
	require.NoError(t, err)
	assert.True(t, report.Save.Completed)
	assert.Equal(t, 378, report.Stored())
}

func TestRun_DimensionMismatchStoresNothing(t *testing.T) {
	store := vectorstore.NewMemory("constitution", ragtest.Dim+1)
	p := newPipeline(t, store, 0, ragtest.Embedder{})

	_, err := p.Run(context.Background(), doc, ingest.RunOptions{})
	require.Error(t, err)
	assert.Zero(t, count(t, store))
}

func TestEmbed_DoesNotSave(t *testing.T) {
	store := vectorstore.NewMemory("constitution", ragtest.Dim)
	p := newPipeline(t, store, 0, ragtest.Embedder{})

	chunks, err := p.Embed(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, chunks, 378)
	assert.Len(t, chunks[0].Embedding, ragtest.Dim)
	assert.Zero(t, count(t, store))
}

func TestNew_Validation(t *testing.T) {
	_, err := ingest.New(nil, ragtest.Embedder{}, nil, ingest.Options{})
	require.Error(t, err)
	assert.True(t, nyayaerr.IsConfiguration(err))
}
