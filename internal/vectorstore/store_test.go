// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package vectorstore_test

import (
	"context"
	"testing"

	"github.com/nyaya-dev/nyaya/internal/vectorstore"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	ctx := context.Background()

	t.Run("registered backend", func(t *testing.T) {
		st, err := vectorstore.Connect(ctx, vectorstore.ConnectConfig{
			Backend: vectorstore.BackendMemory, Collection: "constitution", Dimension: 8,
		})
		require.NoError(t, err)
		defer func() { _ = st.Close() }()

		assert.Equal(t, "constitution", st.Collection())
		assert.Equal(t, 8, st.Dimension())
		assert.Contains(t, vectorstore.Backends(), vectorstore.BackendMemory)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := vectorstore.Connect(ctx, vectorstore.ConnectConfig{
			Backend: "faiss", Collection: "c", Dimension: 8,
		})
		require.Error(t, err)
		assert.True(t, nyayaerr.IsUnsupported(err))
	})

	t.Run("missing collection", func(t *testing.T) {
		_, err := vectorstore.Connect(ctx, vectorstore.ConnectConfig{Backend: vectorstore.BackendMemory, Dimension: 8})
		require.Error(t, err)
		assert.True(t, nyayaerr.IsConnection(err))
	})

	t.Run("bad dimension", func(t *testing.T) {
		_, err := vectorstore.Connect(ctx, vectorstore.ConnectConfig{Backend: vectorstore.BackendMemory, Collection: "c"})
		require.Error(t, err)
		assert.True(t, nyayaerr.IsConnection(err))
	})
}

func TestMemory_RejectsOversizedBatch(t *testing.T) {
	mem := vectorstore.NewMemory("c", testDim)
	mem.SetMaxBatchSize(2)

	recs := make([]vectorstore.Record, 3)
	for i, c := range numbered(3) {
		recs[i] = vectorstore.Record{ID: vectorstore.RecordID("d", i), Vector: c.Embedding}
	}
	require.Error(t, mem.Upsert(context.Background(), recs))

	info, err := mem.Info(context.Background())
	require.NoError(t, err)
	assert.Zero(t, info.Count, "a rejected batch writes nothing")
}

func TestMemory_RejectsBadRecordAtomically(t *testing.T) {
	mem := vectorstore.NewMemory("c", testDim)
	recs := []vectorstore.Record{
		{ID: "a", Vector: make([]float32, testDim)},
		{ID: "b", Vector: make([]float32, 2)},
	}
	require.Error(t, mem.Upsert(context.Background(), recs))

	existing, err := mem.Existing(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, vectorstore.CosineDistance([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 1, vectorstore.CosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2, vectorstore.CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.InDelta(t, 1, vectorstore.CosineDistance([]float32{0, 0}, []float32{1, 0}), 1e-9)
}

func TestFilter_Matches(t *testing.T) {
	md := vectorstore.Metadata{"document_name": vectorstore.String("coi"), "part": vectorstore.Int(3)}

	assert.True(t, vectorstore.Filter(nil).Matches(md))
	assert.True(t, vectorstore.Eq("document_name", vectorstore.String("coi")).Matches(md))
	assert.False(t, vectorstore.Eq("document_name", vectorstore.String("other")).Matches(md))
	assert.False(t, vectorstore.Eq("missing", vectorstore.String("coi")).Matches(md))
	assert.True(t, vectorstore.Filter{"document_name": vectorstore.String("coi"), "part": vectorstore.Float(3)}.Matches(md))
}
