// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package vectorstore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nyaya-dev/nyaya/internal/vectorstore"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIndex(t *testing.T, store vectorstore.Store, opts vectorstore.IndexOptions) *vectorstore.Index {
	t.Helper()
	ix, err := vectorstore.NewIndex(store, bagOfWords{}, opts)
	require.NoError(t, err)
	return ix
}

func TestIndex_SaveAssignsSequentialIDs(t *testing.T) {
	ctx := context.Background()
	mem := vectorstore.NewMemory("constitution", testDim)
	ix := newIndex(t, mem, vectorstore.IndexOptions{})

	report, err := ix.Save(ctx, numbered(3), "coi")
	require.NoError(t, err)
	assert.True(t, report.Completed)
	assert.Equal(t, 3, report.Uploaded)
	assert.Equal(t, 1, report.Batches)

	recs, err := ix.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "coi_0", recs[0].ID)
	assert.Equal(t, "coi_1", recs[1].ID)
	assert.Equal(t, "coi_2", recs[2].ID)
}

func TestIndex_SaveStampsMetadata(t *testing.T) {
	ctx := context.Background()
	mem := vectorstore.NewMemory("constitution", testDim)
	now := time.Date(2026, 1, 26, 10, 0, 0, 0, time.UTC)
	ix := newIndex(t, mem, vectorstore.IndexOptions{
		EmbeddingModel: "text-embedding-3-small",
		Now:            func() time.Time { return now },
	})

	chunks := embedded("Article 21. No person shall be deprived of his life or personal liberty.")
	chunks[0].Metadata = vectorstore.Metadata{
		"headings":      vectorstore.String("Part III > Article 21"),
		"document_name": vectorstore.String("spoofed"),
	}

	_, err := ix.Save(ctx, chunks, "coi", vectorstore.WithRunID("run-1"))
	require.NoError(t, err)

	recs, err := ix.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	md := recs[0].Metadata

	assert.Equal(t, vectorstore.String("coi"), md[vectorstore.KeyDocumentName])
	assert.Equal(t, vectorstore.String("coi_0"), md[vectorstore.KeyChunkID])
	assert.Equal(t, vectorstore.Int(int64(len(chunks[0].Text))), md[vectorstore.KeyTextLength])
	assert.Equal(t, vectorstore.String("2026-01-26T10:00:00Z"), md[vectorstore.KeyCreatedAt])
	assert.Equal(t, vectorstore.String("text-embedding-3-small"), md[vectorstore.KeyEmbeddingModel])
	assert.Equal(t, vectorstore.Int(testDim), md[vectorstore.KeyEmbeddingDim])
	assert.Equal(t, vectorstore.String("run-1"), md[vectorstore.KeyIngestRun])
	assert.Equal(t, vectorstore.String("Part III > Article 21"), md["headings"])
}

func TestIndex_SaveRejectsDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	mem := &flakyStore{Memory: vectorstore.NewMemory("constitution", testDim)}
	ix := newIndex(t, mem, vectorstore.IndexOptions{})

	chunks := numbered(5)
	chunks[3].Embedding = []float32{1, 2, 3}

	_, err := ix.Save(ctx, chunks, "coi")
	require.Error(t, err)
	assert.Equal(t, nyayaerr.CodeStoreRecordDimensionInvalid, nyayaerr.CodeOf(err))
	assert.True(t, nyayaerr.IsInvalidInput(err))
	assert.Zero(t, mem.upserts, "nothing may reach the backend")
}

func TestIndex_SavePartialFailureReportsCommittedPrefix(t *testing.T) {
	ctx := context.Background()
	mem := &flakyStore{Memory: vectorstore.NewMemory("constitution", testDim), failOn: 2}
	ix := newIndex(t, mem, vectorstore.IndexOptions{BatchSize: 250})

	chunks := numbered(378)
	report, err := ix.Save(ctx, chunks, "coi")
	require.Error(t, err)

	assert.True(t, nyayaerr.IsBatchUpload(err))
	assert.Equal(t, []int{250, 128}, mem.sizes)
	assert.Equal(t, 250, report.Uploaded)
	assert.Equal(t, 378, report.Total)
	assert.Equal(t, 1, report.Batches)
	assert.Equal(t, 2, report.FailedBatch)
	assert.False(t, report.Completed)
	assert.Equal(t, 250, report.NextOffset())

	fields := nyayaerr.FieldsOf(err)
	assert.Equal(t, 250, fields["uploaded"])
	assert.Equal(t, 378, fields["total"])

	info, err := ix.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, 250, info.Count)

	// Resume from the reported offset with the remaining chunks.
	report, err = ix.Save(ctx, chunks[report.NextOffset():], "coi", vectorstore.WithOffset(report.NextOffset()))
	require.NoError(t, err)
	assert.Equal(t, 128, report.Uploaded)

	info, err = ix.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, 378, info.Count)

	recs, err := ix.DocumentChunks(ctx, "coi")
	require.NoError(t, err)
	require.Len(t, recs, 378)
	for i, r := range recs {
		assert.Equal(t, fmt.Sprintf("coi_%d", i), r.ID)
	}
}

func TestIndex_BatchSizeCappedByBackend(t *testing.T) {
	mem := vectorstore.NewMemory("c", testDim)
	mem.SetMaxBatchSize(100)

	tests := []struct {
		configured int
		want       int
	}{
		{0, 100},
		{250, 100},
		{40, 40},
	}
	for _, tt := range tests {
		ix := newIndex(t, mem, vectorstore.IndexOptions{BatchSize: tt.configured})
		assert.Equal(t, tt.want, ix.BatchSize(), "configured %d", tt.configured)
	}

	unlimited := newIndex(t, vectorstore.NewMemory("c", testDim), vectorstore.IndexOptions{})
	assert.Zero(t, unlimited.BatchSize())
}

func TestIndex_SaveSplitsIntoBackendSizedBatches(t *testing.T) {
	ctx := context.Background()
	base := vectorstore.NewMemory("c", testDim)
	base.SetMaxBatchSize(100)
	mem := &flakyStore{Memory: base}
	ix := newIndex(t, mem, vectorstore.IndexOptions{BatchSize: 250})

	report, err := ix.Save(ctx, numbered(230), "coi")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, []int{100, 100, 30}, mem.sizes)
}

func TestIndex_ConflictPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("error refuses to overwrite", func(t *testing.T) {
		mem := vectorstore.NewMemory("c", testDim)
		ix := newIndex(t, mem, vectorstore.IndexOptions{})

		_, err := ix.Save(ctx, numbered(3), "coi")
		require.NoError(t, err)

		report, err := ix.Save(ctx, numbered(3), "coi")
		require.Error(t, err)
		assert.True(t, nyayaerr.IsBatchUpload(err))
		assert.True(t, nyayaerr.HasCode(err, nyayaerr.CodeStoreSaveConflict))
		assert.Zero(t, report.Uploaded)
	})

	t.Run("overwrite upserts", func(t *testing.T) {
		mem := vectorstore.NewMemory("c", testDim)
		ix := newIndex(t, mem, vectorstore.IndexOptions{OnConflict: vectorstore.ConflictOverwrite})

		_, err := ix.Save(ctx, numbered(3), "coi")
		require.NoError(t, err)
		_, err = ix.Save(ctx, numbered(3), "coi")
		require.NoError(t, err)

		info, err := ix.Info(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, info.Count)
	})

	t.Run("unknown policy", func(t *testing.T) {
		_, err := vectorstore.NewIndex(vectorstore.NewMemory("c", testDim), nil,
			vectorstore.IndexOptions{OnConflict: "merge"})
		require.Error(t, err)
		assert.True(t, nyayaerr.IsConfiguration(err))
	})
}

func TestIndex_SaveValidation(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t, vectorstore.NewMemory("c", testDim), vectorstore.IndexOptions{})

	_, err := ix.Save(ctx, numbered(1), " ")
	assert.Error(t, err)

	_, err = ix.Save(ctx, numbered(1), "coi", vectorstore.WithOffset(-1))
	assert.Error(t, err)

	report, err := ix.Save(ctx, nil, "coi")
	require.NoError(t, err)
	assert.True(t, report.Completed)
	assert.Zero(t, report.Total)
}

func TestIndex_SaveHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ix := newIndex(t, vectorstore.NewMemory("c", testDim), vectorstore.IndexOptions{BatchesPerSecond: 1})
	report, err := ix.Save(ctx, numbered(4), "coi")
	require.Error(t, err)
	assert.True(t, nyayaerr.IsBatchUpload(err))
	assert.Zero(t, report.Uploaded)
}

func TestIndex_SearchRoundTrip(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t, vectorstore.NewMemory("c", testDim), vectorstore.IndexOptions{})

	_, err := ix.Save(ctx, embedded(
		"Article 14 guarantees equality before the law",
		"Article 21 protects life and liberty",
		"Article 32 gives the right to constitutional remedies",
		"The President is the head of the Union executive",
	), "coi")
	require.NoError(t, err)

	results, err := ix.Search(ctx, "life and liberty protection", 3, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	assert.Contains(t, ids, "coi_1")

	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}
	assert.Empty(t, vectorstore.ValidateSearchResults(results))
}

func TestIndex_SearchFilter(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t, vectorstore.NewMemory("c", testDim), vectorstore.IndexOptions{})

	_, err := ix.Save(ctx, embedded("fundamental rights", "directive principles"), "coi")
	require.NoError(t, err)
	_, err = ix.Save(ctx, embedded("fundamental rights commentary", "rights of citizens"), "notes")
	require.NoError(t, err)

	results, err := ix.Search(ctx, "fundamental rights", 10,
		vectorstore.Eq(vectorstore.KeyDocumentName, vectorstore.String("notes")))
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, vectorstore.String("notes"), r.Metadata[vectorstore.KeyDocumentName])
	}
}

func TestIndex_SearchTruncatesToK(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t, vectorstore.NewMemory("c", testDim), vectorstore.IndexOptions{})
	_, err := ix.Save(ctx, numbered(20), "coi")
	require.NoError(t, err)

	results, err := ix.SearchByEmbedding(ctx, numbered(1)[0].Embedding, 5, nil)
	require.NoError(t, err)
	assert.Len(t, results, 5)
	assert.Equal(t, "coi_0", results[0].ID)
	assert.InDelta(t, 0, results[0].Distance, 1e-9)
}

func TestIndex_SearchValidation(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t, vectorstore.NewMemory("c", testDim), vectorstore.IndexOptions{})

	_, err := ix.Search(ctx, "", 5, nil)
	assert.Error(t, err)

	_, err = ix.SearchByEmbedding(ctx, make([]float32, testDim), 0, nil)
	assert.Error(t, err)

	_, err = ix.SearchByEmbedding(ctx, make([]float32, 3), 5, nil)
	require.Error(t, err)
	assert.Equal(t, nyayaerr.CodeStoreRecordDimensionInvalid, nyayaerr.CodeOf(err))

	noEmbedder, err := vectorstore.NewIndex(vectorstore.NewMemory("c", testDim), nil, vectorstore.IndexOptions{})
	require.NoError(t, err)
	_, err = noEmbedder.Search(ctx, "article", 5, nil)
	assert.Error(t, err)
}

func TestIndex_EmptyCollectionAndClear(t *testing.T) {
	ctx := context.Background()
	ix := newIndex(t, vectorstore.NewMemory("constitution", testDim), vectorstore.IndexOptions{})

	info, err := ix.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "constitution", info.Name)
	assert.Zero(t, info.Count)
	assert.Equal(t, vectorstore.MetricCosine, info.Metric)

	_, err = ix.Save(ctx, numbered(4), "coi")
	require.NoError(t, err)
	require.NoError(t, ix.Clear(ctx))

	info, err = ix.Info(ctx)
	require.NoError(t, err)
	assert.Zero(t, info.Count)
	assert.Equal(t, testDim, info.Dimension)
}
