// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

// Package openai embeds text with the OpenAI embeddings API or any server
// speaking the same protocol.
package openai

import (
	"context"
	"sort"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/nyaya-dev/nyaya/internal/embedding"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// Config holds OpenAI embedding configuration.
type Config struct {
	APIKey     string
	BaseURL    string // optional, for compatible servers and tests
	Model      string
	Dimensions int
}

var _ embedding.Embedder = (*Embedder)(nil)

// Embedder implements embedding.Embedder using the OpenAI embeddings API.
type Embedder struct {
	client openaisdk.Client
	config Config
}

// New creates an OpenAI embedder. An API key is required unless a custom
// base URL is set.
func New(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, nyayaerr.New(nyayaerr.CodeConfigCredentialMissing, "openai: missing api_key for embeddings",
			nyayaerr.FieldProvider("openai"))
	}
	if cfg.Model == "" {
		return nil, nyayaerr.New(nyayaerr.CodeEmbeddingRequestInvalid, "openai: embedding model is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, nyayaerr.Errorf(nyayaerr.CodeEmbeddingRequestInvalid, "openai: dimensions must be positive, got %d", cfg.Dimensions)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Embedder{client: openaisdk.NewClient(opts...), config: cfg}, nil
}

func (e *Embedder) Dimension() int { return e.config.Dimensions }
func (e *Embedder) Model() string  { return e.config.Model }

// Embed sends all texts in one request and returns vectors in input order,
// reordering by the index the API reports.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Model:          openaisdk.EmbeddingModel(e.config.Model),
		Input:          openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Dimensions:     openaisdk.Int(int64(e.config.Dimensions)),
		EncodingFormat: openaisdk.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, nyayaerr.Wrap(err, nyayaerr.CodeEmbeddingUpstreamFailure, "openai: creating embeddings",
			nyayaerr.FieldProvider("openai"), nyayaerr.Field("model", e.config.Model))
	}

	data := resp.Data
	if len(data) != len(texts) {
		return nil, nyayaerr.Errorf(nyayaerr.CodeEmbeddingResponseInvalid,
			"openai: got %d embeddings for %d inputs", len(data), len(texts))
	}
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		if int(d.Index) != i {
			return nil, nyayaerr.Errorf(nyayaerr.CodeEmbeddingResponseInvalid,
				"openai: embedding indexes are not a permutation of the inputs (missing %d)", i)
		}
		vec := make([]float32, len(d.Embedding))
		for j, x := range d.Embedding {
			vec[j] = float32(x)
		}
		out[i] = vec
	}
	return out, nil
}
