// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

// Package embedding turns text into fixed-dimension vectors. Backends talk
// to a model; Service wraps one backend and enforces the contract every
// caller relies on.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// Embedder is a model backend. Embed receives every text of one call in a
// single request and returns one vector per text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
}

// Cache stores vectors by key. Implementations must be safe for concurrent
// use.
type Cache interface {
	Get(key string) ([]float32, bool, error)
	Put(key string, vec []float32) error
	Close() error
}

// Options configures a Service.
type Options struct {
	// Normalize scales every vector to unit length.
	Normalize bool
	// Cache is optional.
	Cache  Cache
	Logger *slog.Logger
}

// Service is the embedder used for both documents and queries, so both
// sides share one model, dimension and normalisation setting.
type Service struct {
	backend Embedder
	opts    Options
	logger  *slog.Logger
}

func NewService(backend Embedder, opts Options) (*Service, error) {
	if backend == nil {
		return nil, nyayaerr.New(nyayaerr.CodeEmbeddingRequestInvalid, "embedding backend is nil")
	}
	if backend.Dimension() <= 0 {
		return nil, nyayaerr.Errorf(nyayaerr.CodeEmbeddingRequestInvalid,
			"embedding dimension must be positive, got %d", backend.Dimension())
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: backend, opts: opts, logger: logger}, nil
}

func (s *Service) Dimension() int   { return s.backend.Dimension() }
func (s *Service) Model() string    { return s.backend.Model() }
func (s *Service) Normalized() bool { return s.opts.Normalize }

// Embed returns len(texts) vectors in input order. An empty input returns an
// empty result without calling the backend. Uncached texts go to the
// backend in one call.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))
	var (
		missing []string
		slots   []int
	)
	for i, text := range texts {
		if vec, ok := s.cached(text); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, text)
		slots = append(slots, i)
	}

	if len(missing) > 0 {
		vecs, err := s.backend.Embed(ctx, missing)
		if err != nil {
			return nil, nyayaerr.Wrap(err, nyayaerr.CodeEmbeddingUpstreamFailure, "embedding texts",
				nyayaerr.Field("model", s.Model()), nyayaerr.Field("texts", len(missing)))
		}
		if len(vecs) != len(missing) {
			return nil, nyayaerr.Errorf(nyayaerr.CodeEmbeddingResponseInvalid,
				"embedding backend returned %d vectors for %d texts", len(vecs), len(missing))
		}
		for j, vec := range vecs {
			if err := s.check(vec); err != nil {
				return nil, nyayaerr.With(err, nyayaerr.Field("text", slots[j]))
			}
			if s.opts.Normalize {
				vec = Normalize(vec)
			}
			out[slots[j]] = vec
			s.store(missing[j], vec)
		}
	}

	if hits := len(texts) - len(missing); hits > 0 {
		s.logger.Debug("embedding cache hits", "hits", hits, "misses", len(missing))
	}
	return out, nil
}

// EmbedQuery embeds a single query text.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (s *Service) check(vec []float32) error {
	if len(vec) != s.Dimension() {
		return nyayaerr.Errorf(nyayaerr.CodeEmbeddingResponseInvalid,
			"embedding has %d dimensions, model %s is configured for %d", len(vec), s.Model(), s.Dimension())
	}
	for _, x := range vec {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nyayaerr.New(nyayaerr.CodeEmbeddingResponseInvalid, "embedding contains a non-finite value")
		}
	}
	return nil
}

func (s *Service) cached(text string) ([]float32, bool) {
	if s.opts.Cache == nil {
		return nil, false
	}
	vec, ok, err := s.opts.Cache.Get(s.key(text))
	if err != nil {
		s.logger.Warn("embedding cache read failed", "error", err)
		return nil, false
	}
	if !ok || len(vec) != s.Dimension() {
		return nil, false
	}
	return vec, true
}

func (s *Service) store(text string, vec []float32) {
	if s.opts.Cache == nil {
		return
	}
	if err := s.opts.Cache.Put(s.key(text), vec); err != nil {
		s.logger.Warn("embedding cache write failed", "error", err)
	}
}

// key identifies a vector by everything that affects it.
func (s *Service) key(text string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%s|", s.Model(), s.Dimension(), strconv.FormatBool(s.opts.Normalize))
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Normalize returns v scaled to unit L2 length. Zero vectors are returned
// unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
