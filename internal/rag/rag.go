// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

// Package rag answers questions by retrieving constitutional text from the
// vector store and conditioning a generative model on it.
package rag

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nyaya-dev/nyaya/internal/provider"
	"github.com/nyaya-dev/nyaya/internal/vectorstore"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// DefaultTopK is the number of sources retrieved per question.
const DefaultTopK = 5

// Searcher is the retrieval side of a vectorstore.Index.
type Searcher interface {
	Search(ctx context.Context, text string, k int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error)
}

type Options struct {
	TopK int
	// DocumentName restricts retrieval. Empty searches every document.
	DocumentName string
	SystemPrompt string
	Temperature  *float32
	MaxTokens    int
	Logger       *slog.Logger
}

// Source is one retrieved record, carried alongside the formatted context.
type Source struct {
	Rank      int            `json:"rank" yaml:"rank"`
	RecordID  string         `json:"record_id" yaml:"record_id"`
	Relevance float64        `json:"relevance" yaml:"relevance"`
	Distance  float64        `json:"distance" yaml:"distance"`
	Text      string         `json:"text" yaml:"text"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Retrieval is the output of the first stage.
type Retrieval struct {
	Question string
	Context  string
	Sources  []Source
}

// Response is the detailed answer returned by Chat.
type Response struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Context  string   `json:"context"`
	Sources  []Source `json:"sources"`
	Model    string   `json:"model,omitempty"`
	Provider string   `json:"provider,omitempty"`
}

type Service struct {
	searcher Searcher
	router   provider.Router
	opts     Options
	logger   *slog.Logger
}

// New builds a Service. router may be nil for retrieval-only use.
func New(searcher Searcher, router provider.Router, opts Options) (*Service, error) {
	if searcher == nil {
		return nil, nyayaerr.New(nyayaerr.CodeConfigValidateInvalidValue, "rag: searcher is required")
	}
	if opts.TopK < 0 {
		return nil, nyayaerr.Errorf(nyayaerr.CodeConfigValidateInvalidValue, "rag: top_k must not be negative, got %d", opts.TopK)
	}
	if opts.TopK == 0 {
		opts.TopK = DefaultTopK
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{searcher: searcher, router: router, opts: opts, logger: logger}, nil
}

type retrieveConfig struct {
	k        int
	document string
}

// RetrieveOption overrides the configured retrieval scope for one call.
type RetrieveOption func(*retrieveConfig)

func WithTopK(k int) RetrieveOption {
	return func(c *retrieveConfig) {
		if k > 0 {
			c.k = k
		}
	}
}

// WithDocument filters to documentName; "" removes the filter.
func WithDocument(documentName string) RetrieveOption {
	return func(c *retrieveConfig) { c.document = documentName }
}

// Retrieve embeds the question and collects the top matches in rank order.
func (s *Service) Retrieve(ctx context.Context, question string, opts ...RetrieveOption) (*Retrieval, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, nyayaerr.New(nyayaerr.CodeQueryInputInvalid, "question must not be empty")
	}

	cfg := retrieveConfig{k: s.opts.TopK, document: s.opts.DocumentName}
	for _, opt := range opts {
		opt(&cfg)
	}

	var filter vectorstore.Filter
	if cfg.document != "" {
		filter = vectorstore.Eq(vectorstore.KeyDocumentName, vectorstore.String(cfg.document))
	}

	results, err := s.searcher.Search(ctx, question, cfg.k, filter)
	if err != nil {
		return nil, nyayaerr.Wrap(err, nyayaerr.CodeQueryRetrieveFailure, "retrieving context",
			nyayaerr.FieldDocument(cfg.document), nyayaerr.Field("k", cfg.k))
	}

	sources := make([]Source, len(results))
	for i, r := range results {
		sources[i] = Source{
			Rank:      i + 1,
			RecordID:  r.ID,
			Relevance: r.Relevance(),
			Distance:  r.Distance,
			Text:      r.Text,
			Metadata:  r.Metadata.Map(),
		}
	}

	s.logger.Debug("retrieved context", "sources", len(sources), "document", cfg.document, "k", cfg.k)
	return &Retrieval{Question: question, Context: formatContext(sources), Sources: sources}, nil
}

// Ask returns the generated answer text.
func (s *Service) Ask(ctx context.Context, question string) (string, error) {
	resp, err := s.Chat(ctx, question)
	if err != nil {
		return "", err
	}
	return resp.Answer, nil
}

// Chat runs retrieval then generation. Sources come from the retrieval
// stage, in rank order.
func (s *Service) Chat(ctx context.Context, question string) (*Response, error) {
	retrieval, err := s.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}

	answer, p, model, err := s.generate(ctx, retrieval)
	if err != nil {
		return nil, err
	}

	return &Response{
		Question: retrieval.Question,
		Answer:   answer,
		Context:  retrieval.Context,
		Sources:  retrieval.Sources,
		Model:    model,
		Provider: p,
	}, nil
}

func (s *Service) generate(ctx context.Context, r *Retrieval) (answer, providerName, model string, err error) {
	if s.router == nil {
		return "", "", "", nyayaerr.New(nyayaerr.CodeQueryGenerateUpstreamFailure, "no generative provider configured")
	}

	p, model, err := s.router.Route(ctx)
	if err != nil {
		return "", "", "", nyayaerr.Wrap(err, nyayaerr.CodeQueryGenerateUpstreamFailure, "selecting generative provider")
	}

	start := time.Now()
	out, err := provider.Complete(ctx, p, provider.ChatRequest{
		Model:        model,
		SystemPrompt: s.opts.SystemPrompt,
		Messages:     []provider.Message{{Role: provider.RoleUser, Content: UserPrompt(r.Context, r.Question)}},
		Options: provider.ChatOptions{
			Temperature: s.opts.Temperature,
			MaxTokens:   s.opts.MaxTokens,
		},
	})
	if err != nil {
		return "", "", "", nyayaerr.Wrap(err, nyayaerr.CodeQueryGenerateUpstreamFailure, "generating answer",
			nyayaerr.FieldProvider(p.Name()), nyayaerr.Field("model", model))
	}

	s.logger.Info("answered question",
		"provider", p.Name(),
		"model", model,
		"sources", len(r.Sources),
		"input_tokens", out.Usage.InputTokens,
		"output_tokens", out.Usage.OutputTokens,
		"duration", time.Since(start),
	)
	return out.Text, p.Name(), model, nil
}
