// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

// Package vectorstore persists embedded chunks and answers nearest-neighbour
// queries over them, behind one contract shared by a local backend and
// hosted ones.
package vectorstore

import (
	"context"
	"sort"
	"sync"
	"time"

	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// Store is the contract a backend implements for one collection.
type Store interface {
	Backend() string
	Collection() string
	Dimension() int

	// MaxBatchSize is the most records one Upsert accepts; 0 means no limit.
	MaxBatchSize() int

	// Upsert writes all records or none of them.
	Upsert(ctx context.Context, records []Record) error

	// Existing returns the subset of ids already stored.
	Existing(ctx context.Context, ids []string) ([]string, error)

	// Search returns at most k records matching filter, ascending by
	// distance. The filter applies before ranking.
	Search(ctx context.Context, query []float32, k int, filter Filter) ([]SearchResult, error)

	Info(ctx context.Context) (CollectionInfo, error)

	// Clear removes every record, leaving an empty collection with the same
	// configuration.
	Clear(ctx context.Context) error

	// Dump returns every record with its vector. Backends that cannot
	// enumerate report CodeStoreDumpUnsupported.
	Dump(ctx context.Context) ([]Record, error)

	Close() error
}

// ConnectConfig carries the settings every backend may need. Each backend
// reads its own section.
type ConnectConfig struct {
	Backend    string
	Collection string
	Dimension  int
	Timeout    time.Duration

	Local    LocalOptions
	Chroma   ChromaOptions
	Pinecone PineconeOptions
}

type LocalOptions struct {
	Dir string
}

type ChromaOptions struct {
	URL      string
	APIKey   string
	Tenant   string
	Database string
}

type PineconeOptions struct {
	APIKey     string
	Cloud      string
	Region     string
	Namespace  string
	ControlURL string
}

// Factory opens a backend for cfg.
type Factory func(ctx context.Context, cfg ConnectConfig) (Store, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend makes a backend available to Connect. Backend packages
// call it from init.
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Backends lists registered backend names.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Connect opens the configured backend, creating the collection if it does
// not exist.
func Connect(ctx context.Context, cfg ConnectConfig) (Store, error) {
	factoriesMu.RLock()
	factory, ok := factories[cfg.Backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, nyayaerr.New(nyayaerr.CodeStoreBackendUnsupported,
			"unknown vector store backend "+cfg.Backend, nyayaerr.FieldBackend(cfg.Backend))
	}
	if cfg.Collection == "" {
		return nil, nyayaerr.New(nyayaerr.CodeStoreConnectFailure, "collection name must not be empty",
			nyayaerr.FieldBackend(cfg.Backend))
	}
	if cfg.Dimension <= 0 {
		return nil, nyayaerr.Errorf(nyayaerr.CodeStoreConnectFailure, "collection dimension must be positive, got %d", cfg.Dimension)
	}
	return factory(ctx, cfg)
}
