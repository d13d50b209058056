// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

// Package ragtest provides in-memory stand-ins for the embedding model, the
// vector store and the generative provider.
package ragtest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nyaya-dev/nyaya/internal/provider"
	"github.com/nyaya-dev/nyaya/internal/rag"
	"github.com/nyaya-dev/nyaya/internal/vectorstore"
)

// Dim is the dimension of Embedder vectors.
const Dim = 64

// DocumentName is the document every Seed call saves under.
const DocumentName = "indian_constitution"

// Embedder hashes lowercase words into Dim buckets so texts sharing words
// rank close together.
type Embedder struct{}

func (Embedder) Dimension() int { return Dim }
func (Embedder) Model() string  { return "bag-of-words" }

func (e Embedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t)
	}
	return out, nil
}

func (Embedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return Vector(text), nil
}

func Vector(text string) []float32 {
	v := make([]float32, Dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,;:?!()\"'")))
		v[h.Sum32()%Dim]++
	}
	return v
}

// Provider answers every request with Answer, or fails with Err.
type Provider struct {
	Answer string
	Err    string

	mu       sync.Mutex
	requests []provider.ChatRequest
}

var _ provider.Provider = (*Provider)(nil)

func (p *Provider) Name() string                     { return "fake" }
func (p *Provider) Available(_ context.Context) bool { return true }
func (p *Provider) Close() error                     { return nil }

func (p *Provider) ListModels(_ context.Context) ([]provider.ModelInfo, error) {
	return []provider.ModelInfo{{ID: "fake-model", Name: "Fake", Provider: "fake"}}, nil
}

func (p *Provider) Status(_ context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: true, Provider: "fake", Message: "ok"}, nil
}

func (p *Provider) Chat(_ context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	ch := make(chan provider.ChatEvent, 3)
	if p.Err != "" {
		ch <- provider.ChatEvent{Type: provider.EventTypeError, Error: p.Err}
	} else {
		ch <- provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: p.Answer}
		ch <- provider.ChatEvent{Type: provider.EventTypeUsage, Usage: &provider.Usage{InputTokens: 10, OutputTokens: 5}}
		ch <- provider.ChatEvent{Type: provider.EventTypeDone}
	}
	close(ch)
	return ch, nil
}

// Requests returns every ChatRequest received so far.
func (p *Provider) Requests() []provider.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]provider.ChatRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// Registry routes to p as "fake/fake-model".
func Registry(t testing.TB, p provider.Provider) *provider.Registry {
	t.Helper()
	r := provider.NewRegistry()
	r.Register(p.Name(), p)
	require.NoError(t, r.SetDefault(p.Name()+"/fake-model"))
	return r
}

// Index returns an empty in-memory index embedding queries with Embedder.
func Index(t testing.TB) *vectorstore.Index {
	t.Helper()
	ix, err := vectorstore.NewIndex(vectorstore.NewMemory("constitution", Dim), Embedder{}, vectorstore.IndexOptions{})
	require.NoError(t, err)
	return ix
}

// Seed saves texts under documentName.
func Seed(t testing.TB, ix *vectorstore.Index, documentName string, texts ...string) {
	t.Helper()
	chunks := make([]vectorstore.EmbeddedChunk, len(texts))
	for i, text := range texts {
		chunks[i] = vectorstore.EmbeddedChunk{Text: text, Embedding: Vector(text)}
	}
	_, err := ix.Save(context.Background(), chunks, documentName)
	require.NoError(t, err)
}

// Articles is a small corpus of constitutional provisions.
var Articles = []string{
	"Article 14. Equality before law. The State shall not deny to any person equality before the law.",
	"Article 19. Protection of certain rights regarding freedom of speech and expression.",
	"Article 21. Protection of life and personal liberty. No person shall be deprived of his life or personal liberty except according to procedure established by law.",
	"Article 32. Remedies for enforcement of rights conferred by this Part.",
}

// Service wires a seeded in-memory index and p into a rag.Service.
func Service(t testing.TB, p provider.Provider) (*rag.Service, *vectorstore.Index) {
	t.Helper()
	ix := Index(t)
	Seed(t, ix, DocumentName, Articles...)
	svc, err := rag.New(ix, Registry(t, p), rag.Options{DocumentName: DocumentName, TopK: 3, MaxTokens: 256})
	require.NoError(t, err)
	return svc, ix
}
