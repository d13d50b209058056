// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package vectorstore_test

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/nyaya-dev/nyaya/internal/vectorstore"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

const testDim = 32

// bagOfWords hashes lowercase words into a fixed number of buckets, so texts
// sharing words land close together.
type bagOfWords struct{}

func (bagOfWords) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return embedWords(text), nil
}

func embedWords(text string) []float32 {
	v := make([]float32, testDim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,;:")))
		v[h.Sum32()%testDim]++
	}
	return v
}

func embedded(texts ...string) []vectorstore.EmbeddedChunk {
	out := make([]vectorstore.EmbeddedChunk, len(texts))
	for i, t := range texts {
		out[i] = vectorstore.EmbeddedChunk{Text: t, Embedding: embedWords(t)}
	}
	return out
}

func numbered(n int) []vectorstore.EmbeddedChunk {
	out := make([]vectorstore.EmbeddedChunk, n)
	for i := range out {
		v := make([]float32, testDim)
		v[i%testDim] = 1
		out[i] = vectorstore.EmbeddedChunk{Text: "chunk", Embedding: v}
	}
	return out
}

// flakyStore fails the Nth Upsert call (1-based) and counts calls.
type flakyStore struct {
	*vectorstore.Memory

	mu      sync.Mutex
	failOn  int
	upserts int
	sizes   []int
}

func (s *flakyStore) Upsert(ctx context.Context, records []vectorstore.Record) error {
	s.mu.Lock()
	s.upserts++
	s.sizes = append(s.sizes, len(records))
	fail := s.upserts == s.failOn
	s.mu.Unlock()
	if fail {
		return nyayaerr.New(nyayaerr.CodeStoreUpstreamFailure, "quota exceeded")
	}
	return s.Memory.Upsert(ctx, records)
}
