// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

// Package google embeds text with the Gemini embeddings API.
package google

import (
	"context"

	"google.golang.org/genai"

	"github.com/nyaya-dev/nyaya/internal/embedding"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// Config holds Gemini embedding configuration.
type Config struct {
	APIKey     string
	BaseURL    string // optional, useful for testing against a mock server
	Model      string
	Dimensions int
}

var _ embedding.Embedder = (*Embedder)(nil)

// Embedder implements embedding.Embedder using genai EmbedContent.
type Embedder struct {
	client *genai.Client
	config Config
}

func New(ctx context.Context, cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, nyayaerr.New(nyayaerr.CodeConfigCredentialMissing, "google: missing api_key for embeddings",
			nyayaerr.FieldProvider("google"))
	}
	if cfg.Model == "" {
		return nil, nyayaerr.New(nyayaerr.CodeEmbeddingRequestInvalid, "google: embedding model is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, nyayaerr.Errorf(nyayaerr.CodeEmbeddingRequestInvalid, "google: dimensions must be positive, got %d", cfg.Dimensions)
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, nyayaerr.Wrapf(err, nyayaerr.CodeEmbeddingUpstreamFailure, "google: creating client")
	}
	return &Embedder{client: client, config: cfg}, nil
}

func (e *Embedder) Dimension() int { return e.config.Dimensions }
func (e *Embedder) Model() string  { return e.config.Model }

// Embed sends every text as one content entry of a single request.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	dims := int32(e.config.Dimensions)

	resp, err := e.client.Models.EmbedContent(ctx, e.config.Model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, nyayaerr.Wrap(err, nyayaerr.CodeEmbeddingUpstreamFailure, "google: embedding content",
			nyayaerr.FieldProvider("google"), nyayaerr.Field("model", e.config.Model))
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, nyayaerr.Errorf(nyayaerr.CodeEmbeddingResponseInvalid,
			"google: got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, nyayaerr.Errorf(nyayaerr.CodeEmbeddingResponseInvalid, "google: embedding %d is empty", i)
		}
		out[i] = emb.Values
	}
	return out, nil
}
