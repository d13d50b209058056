// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package embedding_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/nyaya-dev/nyaya/internal/embedding"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lengthEmbedder maps a text to {len(text), 1, 0} and records every call.
type lengthEmbedder struct {
	dim   int
	calls [][]string
	err   error
	drop  bool
	wrong bool
}

func (e *lengthEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls = append(e.calls, texts)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v := make([]float32, e.dim)
		v[0] = float32(len(t))
		if e.dim > 1 {
			v[1] = 1
		}
		if e.wrong {
			v = v[:1]
		}
		out = append(out, v)
	}
	if e.drop {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (e *lengthEmbedder) Dimension() int { return e.dim }
func (e *lengthEmbedder) Model() string  { return "length" }

type mapCache struct {
	mu sync.Mutex
	m  map[string][]float32
}

func (c *mapCache) Get(key string) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *mapCache) Put(key string, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = vec
	return nil
}

func (c *mapCache) Close() error { return nil }

func newService(t *testing.T, backend embedding.Embedder, opts embedding.Options) *embedding.Service {
	t.Helper()
	s, err := embedding.NewService(backend, opts)
	require.NoError(t, err)
	return s
}

func TestService_EmptyInputSkipsBackend(t *testing.T) {
	backend := &lengthEmbedder{dim: 3}
	s := newService(t, backend, embedding.Options{})

	vecs, err := s.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, vecs)
	assert.Empty(t, vecs)
	assert.Empty(t, backend.calls)
}

func TestService_OrderAndCountInOneCall(t *testing.T) {
	backend := &lengthEmbedder{dim: 3}
	s := newService(t, backend, embedding.Options{})

	texts := []string{"a", "bbb", "cc", "dddd"}
	vecs, err := s.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vecs[i][0])
	}
	require.Len(t, backend.calls, 1)
	assert.Equal(t, texts, backend.calls[0])
}

func TestService_Normalize(t *testing.T) {
	s := newService(t, &lengthEmbedder{dim: 2}, embedding.Options{Normalize: true})
	assert.True(t, s.Normalized())

	vecs, err := s.Embed(context.Background(), []string{"abc", "x"})
	require.NoError(t, err)
	for _, v := range vecs {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		assert.InDelta(t, 1, math.Sqrt(sum), 1e-6)
	}
	assert.InDelta(t, 3/math.Sqrt(10), vecs[0][0], 1e-6)
}

func TestService_QueryAndDocumentsAgree(t *testing.T) {
	s := newService(t, &lengthEmbedder{dim: 2}, embedding.Options{Normalize: true})

	docs, err := s.Embed(context.Background(), []string{"life and liberty"})
	require.NoError(t, err)
	q, err := s.EmbedQuery(context.Background(), "life and liberty")
	require.NoError(t, err)
	assert.Equal(t, docs[0], q)
}

func TestService_BackendErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unavailable", func(t *testing.T) {
		s := newService(t, &lengthEmbedder{dim: 2, err: errors.New("connection refused")}, embedding.Options{})
		_, err := s.Embed(ctx, []string{"a"})
		require.Error(t, err)
		assert.True(t, nyayaerr.IsUpstreamFailure(err))
	})

	t.Run("count mismatch", func(t *testing.T) {
		s := newService(t, &lengthEmbedder{dim: 2, drop: true}, embedding.Options{})
		_, err := s.Embed(ctx, []string{"a", "b"})
		require.Error(t, err)
		assert.Equal(t, nyayaerr.CodeEmbeddingResponseInvalid, nyayaerr.CodeOf(err))
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		s := newService(t, &lengthEmbedder{dim: 2, wrong: true}, embedding.Options{})
		_, err := s.Embed(ctx, []string{"a"})
		require.Error(t, err)
		assert.Equal(t, nyayaerr.CodeEmbeddingResponseInvalid, nyayaerr.CodeOf(err))
	})
}

func TestService_CacheSkipsKnownTexts(t *testing.T) {
	ctx := context.Background()
	backend := &lengthEmbedder{dim: 2}
	cache := &mapCache{m: map[string][]float32{}}
	s := newService(t, backend, embedding.Options{Normalize: true, Cache: cache})

	first, err := s.Embed(ctx, []string{"preamble", "article"})
	require.NoError(t, err)

	second, err := s.Embed(ctx, []string{"schedule", "preamble", "article"})
	require.NoError(t, err)

	require.Len(t, backend.calls, 2)
	assert.Equal(t, []string{"schedule"}, backend.calls[1])
	assert.Equal(t, first[0], second[1])
	assert.Equal(t, first[1], second[2])

	// Fully cached calls never reach the backend.
	_, err = s.Embed(ctx, []string{"article"})
	require.NoError(t, err)
	assert.Len(t, backend.calls, 2)
}

func TestService_CacheKeyIncludesSettings(t *testing.T) {
	ctx := context.Background()
	cache := &mapCache{m: map[string][]float32{}}

	raw := newService(t, &lengthEmbedder{dim: 2}, embedding.Options{Cache: cache})
	_, err := raw.Embed(ctx, []string{"abc"})
	require.NoError(t, err)

	backend := &lengthEmbedder{dim: 2}
	normalized := newService(t, backend, embedding.Options{Normalize: true, Cache: cache})
	vecs, err := normalized.Embed(ctx, []string{"abc"})
	require.NoError(t, err)
	assert.Len(t, backend.calls, 1, "a different normalisation setting must not reuse the cached vector")
	assert.InDelta(t, 3/math.Sqrt(10), vecs[0][0], 1e-6)
}

func TestNewService_Validation(t *testing.T) {
	_, err := embedding.NewService(nil, embedding.Options{})
	assert.Error(t, err)

	_, err = embedding.NewService(&lengthEmbedder{dim: 0}, embedding.Options{})
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []float32{0, 0}, embedding.Normalize([]float32{0, 0}))
	v := embedding.Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
}
