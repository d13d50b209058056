// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

// Package cache persists embeddings on disk so re-ingesting an unchanged
// document does not call the model again.
package cache

import (
	"errors"
	"os"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/nyaya-dev/nyaya/internal/embedding"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

var _ embedding.Cache = (*Badger)(nil)

// Entry is one cached vector.
type Entry struct {
	Key       string `badgerhold:"key"`
	Vector    []float32
	CreatedAt time.Time
}

// Badger is an embedding.Cache backed by a badgerhold store.
type Badger struct {
	store *badgerhold.Store
}

// Open opens or creates the cache in dir.
func Open(dir string) (*Badger, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, nyayaerr.Wrap(err, nyayaerr.CodeEmbeddingCacheFailure, "creating cache directory",
			nyayaerr.Field("dir", dir))
	}

	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, nyayaerr.Wrap(err, nyayaerr.CodeEmbeddingCacheFailure, "opening embedding cache",
			nyayaerr.Field("dir", dir))
	}
	return &Badger{store: store}, nil
}

func (b *Badger) Get(key string) ([]float32, bool, error) {
	var e Entry
	if err := b.store.Get(key, &e); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, nyayaerr.Wrap(err, nyayaerr.CodeEmbeddingCacheFailure, "reading cached embedding")
	}
	return e.Vector, true, nil
}

func (b *Badger) Put(key string, vec []float32) error {
	e := Entry{Key: key, Vector: vec, CreatedAt: time.Now().UTC()}
	if err := b.store.Upsert(key, &e); err != nil {
		return nyayaerr.Wrap(err, nyayaerr.CodeEmbeddingCacheFailure, "writing cached embedding")
	}
	return nil
}

// Len counts cached vectors.
func (b *Badger) Len() (int, error) {
	n, err := b.store.Count(&Entry{}, nil)
	if err != nil {
		return 0, nyayaerr.Wrap(err, nyayaerr.CodeEmbeddingCacheFailure, "counting cached embeddings")
	}
	return int(n), nil
}

// Purge removes every cached vector.
func (b *Badger) Purge() error {
	if err := b.store.DeleteMatching(&Entry{}, nil); err != nil {
		return nyayaerr.Wrap(err, nyayaerr.CodeEmbeddingCacheFailure, "purging embedding cache")
	}
	return nil
}

func (b *Badger) Close() error {
	return b.store.Close()
}
