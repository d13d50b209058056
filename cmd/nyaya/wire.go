// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package main

import (
	"context"
	"errors"
	"io"

	"github.com/nyaya-dev/nyaya/internal/chunker"
	"github.com/nyaya-dev/nyaya/internal/config"
	"github.com/nyaya-dev/nyaya/internal/embedding"
	"github.com/nyaya-dev/nyaya/internal/embedding/cache"
	googleemb "github.com/nyaya-dev/nyaya/internal/embedding/google"
	openaiemb "github.com/nyaya-dev/nyaya/internal/embedding/openai"
	"github.com/nyaya-dev/nyaya/internal/ingest"
	"github.com/nyaya-dev/nyaya/internal/provider"
	anthropicprov "github.com/nyaya-dev/nyaya/internal/provider/anthropic"
	googleprov "github.com/nyaya-dev/nyaya/internal/provider/google"
	openaiprov "github.com/nyaya-dev/nyaya/internal/provider/openai"
	"github.com/nyaya-dev/nyaya/internal/rag"
	"github.com/nyaya-dev/nyaya/internal/tokenizer"
	"github.com/nyaya-dev/nyaya/internal/vectorstore"
	_ "github.com/nyaya-dev/nyaya/internal/vectorstore/chroma"   // register chroma backend
	_ "github.com/nyaya-dev/nyaya/internal/vectorstore/pinecone" // register pinecone backend
	_ "github.com/nyaya-dev/nyaya/internal/vectorstore/sqlite"   // register sqlite backend
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// embeddingFactory builds an embedding backend from config.
type embeddingFactory func(ctx context.Context, cfg config.EmbeddingConfig) (embedding.Embedder, error)

// embeddingBackends maps embedding.provider values to constructors.
// Declared as a variable so tests can inject fakes.
var embeddingBackends = map[string]embeddingFactory{
	"openai": func(_ context.Context, c config.EmbeddingConfig) (embedding.Embedder, error) {
		return openaiemb.New(openaiemb.Config{APIKey: c.APIKey, BaseURL: c.BaseURL, Model: c.Model, Dimensions: c.Dimensions})
	},
	"google": func(ctx context.Context, c config.EmbeddingConfig) (embedding.Embedder, error) {
		return googleemb.New(ctx, googleemb.Config{APIKey: c.APIKey, BaseURL: c.BaseURL, Model: c.Model, Dimensions: c.Dimensions})
	},
}

// providerFactory builds a generative provider from config.
type providerFactory func(ctx context.Context, cfg config.GenerationConfig) (provider.Provider, error)

var generationProviders = map[string]providerFactory{
	provider.NameGoogle: func(ctx context.Context, c config.GenerationConfig) (provider.Provider, error) {
		return googleprov.New(ctx, googleprov.Config{APIKey: c.APIKey, BaseURL: c.BaseURL})
	},
	provider.NameOpenAI: func(_ context.Context, c config.GenerationConfig) (provider.Provider, error) {
		return openaiprov.New(openaiprov.Config{APIKey: c.APIKey, BaseURL: c.BaseURL})
	},
	provider.NameAnthropic: func(_ context.Context, c config.GenerationConfig) (provider.Provider, error) {
		return anthropicprov.New(anthropicprov.Config{APIKey: c.APIKey, BaseURL: c.BaseURL})
	},
}

// stack holds the wired subsystems of one command run.
type stack struct {
	embedder *embedding.Service
	cache    *cache.Badger
	index    *vectorstore.Index
	registry *provider.Registry
	closers  []io.Closer
}

// Close releases everything in reverse order of creation.
func (s *stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *stack) fail(err error) (*stack, error) {
	_ = s.Close()
	return nil, err
}

// embedder builds the embedding service, with the on-disk cache when enabled.
func (a *app) embedder(ctx context.Context, s *stack) error {
	c := a.cfg.Embedding
	if err := a.cfg.RequireEmbeddingCredentials(); err != nil {
		return err
	}
	factory, ok := embeddingBackends[c.Provider]
	if !ok {
		return nyayaerr.New(nyayaerr.CodeConfigValidateInvalidValue, "unknown embedding provider "+c.Provider)
	}
	backend, err := factory(ctx, c)
	if err != nil {
		return err
	}

	opts := embedding.Options{Normalize: c.Normalize, Logger: a.logger}
	if c.Cache.Enabled {
		bc, err := cache.Open(a.cfg.EmbeddingCacheDir())
		if err != nil {
			return err
		}
		s.closers = append(s.closers, bc)
		s.cache = bc
		opts.Cache = bc
	}

	svc, err := embedding.NewService(backend, opts)
	if err != nil {
		return err
	}
	s.embedder = svc
	return nil
}

// connectConfig maps the store section onto a backend connection.
func connectConfig(cfg *config.Config, backend string) vectorstore.ConnectConfig {
	st := cfg.Store
	return vectorstore.ConnectConfig{
		Backend:    backend,
		Collection: st.Collection,
		Dimension:  cfg.Embedding.Dimensions,
		Local:      vectorstore.LocalOptions{Dir: st.SQLite.Dir},
		Chroma: vectorstore.ChromaOptions{
			URL:      st.Chroma.URL,
			APIKey:   st.Chroma.APIKey,
			Tenant:   st.Chroma.Tenant,
			Database: st.Chroma.Database,
		},
		Pinecone: vectorstore.PineconeOptions{
			APIKey:     st.Pinecone.APIKey,
			Cloud:      st.Pinecone.Cloud,
			Region:     st.Pinecone.Region,
			Namespace:  st.Pinecone.Namespace,
			ControlURL: st.Pinecone.ControlURL,
		},
	}
}

// openStore connects to backend after checking its credentials.
func (a *app) openStore(ctx context.Context, backend string) (vectorstore.Store, error) {
	check := *a.cfg
	check.Store.Backend = backend
	if err := check.RequireStoreCredentials(); err != nil {
		return nil, err
	}
	return vectorstore.Connect(ctx, connectConfig(a.cfg, backend))
}

// indexOn wraps the configured store. s.embedder may be nil for maintenance
// commands.
func (a *app) indexOn(ctx context.Context, s *stack) error {
	store, err := a.openStore(ctx, a.cfg.Store.Backend)
	if err != nil {
		return err
	}

	var (
		qe    vectorstore.QueryEmbedder
		model string
	)
	if s.embedder != nil {
		qe = s.embedder
		model = s.embedder.Model()
	}

	ix, err := vectorstore.NewIndex(store, qe, vectorstore.IndexOptions{
		BatchSize:        a.cfg.Store.BatchSize,
		OnConflict:       vectorstore.ConflictPolicy(a.cfg.Store.OnConflict),
		BatchesPerSecond: a.cfg.Store.BatchesPerSecond,
		EmbeddingModel:   model,
		Logger:           a.logger,
	})
	if err != nil {
		_ = store.Close()
		return err
	}
	s.closers = append(s.closers, ix)
	s.index = ix
	return nil
}

// providers registers the configured generative provider as the default route.
func (a *app) providers(ctx context.Context, s *stack) error {
	g := a.cfg.Generation
	if err := a.cfg.RequireGenerationCredentials(); err != nil {
		return err
	}
	factory, ok := generationProviders[g.Provider]
	if !ok {
		return nyayaerr.New(nyayaerr.CodeConfigValidateInvalidValue, "unknown generation provider "+g.Provider)
	}
	p, err := factory(ctx, g)
	if err != nil {
		return err
	}

	reg := provider.NewRegistry()
	reg.Register(g.Provider, p)
	s.closers = append(s.closers, reg)
	if err := reg.SetDefault(g.Provider + "/" + g.Model); err != nil {
		return err
	}
	s.registry = reg
	return nil
}

// storeStack opens only the vector store.
func (a *app) storeStack(ctx context.Context) (*stack, error) {
	s := &stack{}
	if err := a.indexOn(ctx, s); err != nil {
		return s.fail(err)
	}
	return s, nil
}

// retrievalStack wires embedder and store, enough for search.
func (a *app) retrievalStack(ctx context.Context) (*stack, error) {
	s := &stack{}
	if err := a.embedder(ctx, s); err != nil {
		return s.fail(err)
	}
	if err := a.indexOn(ctx, s); err != nil {
		return s.fail(err)
	}
	return s, nil
}

// queryStack wires retrieval plus generation.
func (a *app) queryStack(ctx context.Context) (*stack, error) {
	s, err := a.retrievalStack(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.providers(ctx, s); err != nil {
		return s.fail(err)
	}
	return s, nil
}

// ragService builds the query service over s. A stack without a registry
// can retrieve but reports generation as unconfigured.
func (a *app) ragService(s *stack) (*rag.Service, error) {
	var router provider.Router
	if s.registry != nil {
		router = s.registry
	}
	return rag.New(s.index, router, rag.Options{
		TopK:         a.cfg.Retrieval.TopK,
		DocumentName: a.cfg.Retrieval.DocumentName,
		SystemPrompt: a.cfg.Generation.SystemPrompt,
		Temperature:  provider.Temperature(a.cfg.Generation.Temperature),
		MaxTokens:    a.cfg.Generation.MaxTokens,
		Logger:       a.logger,
	})
}

// pipeline builds the ingest pipeline over a retrieval stack.
func (a *app) pipeline(s *stack) (*ingest.Pipeline, error) {
	tok, err := tokenizer.New(a.cfg.Chunking.Encoding)
	if err != nil {
		return nil, err
	}
	ch, err := chunker.New(tok, chunker.Options{
		MaxTokens:  a.cfg.Chunking.MaxTokens,
		MergePeers: a.cfg.Chunking.MergePeers,
	})
	if err != nil {
		return nil, err
	}
	return ingest.New(ch, s.embedder, s.index, ingest.Options{
		EmbedBatchSize: a.cfg.Embedding.BatchSize,
		Logger:         a.logger,
	})
}
