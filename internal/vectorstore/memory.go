// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// BackendMemory keeps records in process memory. Nothing survives Close; it
// exists for dry runs and tests.
const BackendMemory = "memory"

func init() {
	RegisterBackend(BackendMemory, func(_ context.Context, cfg ConnectConfig) (Store, error) {
		return NewMemory(cfg.Collection, cfg.Dimension), nil
	})
}

// Memory is an exact, brute-force Store.
type Memory struct {
	mu         sync.RWMutex
	collection string
	dim        int
	maxBatch   int
	records    map[string]Record
}

func NewMemory(collection string, dim int) *Memory {
	return &Memory{collection: collection, dim: dim, records: map[string]Record{}}
}

// SetMaxBatchSize makes Upsert reject larger batches, like a hosted backend.
func (m *Memory) SetMaxBatchSize(n int) { m.maxBatch = n }

func (m *Memory) Backend() string    { return BackendMemory }
func (m *Memory) Collection() string { return m.collection }
func (m *Memory) Dimension() int     { return m.dim }
func (m *Memory) MaxBatchSize() int  { return m.maxBatch }

func (m *Memory) Upsert(_ context.Context, records []Record) error {
	if m.maxBatch > 0 && len(records) > m.maxBatch {
		return nyayaerr.Errorf(nyayaerr.CodeStoreRecordInvalid, "batch of %d exceeds maximum %d", len(records), m.maxBatch)
	}
	if err := CheckRecords(records, m.dim); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		r.Metadata = r.Metadata.Clone()
		m.records[r.ID] = r
	}
	return nil
}

func (m *Memory) Existing(_ context.Context, ids []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, id := range ids {
		if _, ok := m.records[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *Memory) Search(_ context.Context, query []float32, k int, filter Filter) ([]SearchResult, error) {
	if len(query) != m.dim {
		return nil, nyayaerr.Errorf(nyayaerr.CodeStoreRecordDimensionInvalid, "query has %d dimensions, want %d", len(query), m.dim)
	}

	m.mu.RLock()
	results := make([]SearchResult, 0, len(m.records))
	for _, r := range m.records {
		if !filter.Matches(r.Metadata) {
			continue
		}
		results = append(results, SearchResult{
			ID:       r.ID,
			Text:     r.Text,
			Distance: CosineDistance(query, r.Vector),
			Metadata: r.Metadata.Clone(),
		})
	}
	m.mu.RUnlock()

	SortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *Memory) Info(_ context.Context) (CollectionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return CollectionInfo{
		Name:      m.collection,
		Backend:   BackendMemory,
		Count:     len(m.records),
		Dimension: m.dim,
		Metric:    MetricCosine,
	}, nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = map[string]Record{}
	return nil
}

func (m *Memory) Dump(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		r.Vector = append([]float32(nil), r.Vector...)
		r.Metadata = r.Metadata.Clone()
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Close() error { return nil }

// CosineDistance is 1 - cos(a, b). Zero vectors are at distance 1 from
// everything.
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// checkRecord is the per-record validation every backend applies before a
// write.
func checkRecord(r Record, dim int) error {
	if r.ID == "" {
		return nyayaerr.New(nyayaerr.CodeStoreRecordInvalid, "record id must not be empty")
	}
	if len(r.Vector) != dim {
		return nyayaerr.New(nyayaerr.CodeStoreRecordDimensionInvalid,
			fmt.Sprintf("record %s has %d dimensions, want %d", r.ID, len(r.Vector), dim))
	}
	return nil
}

// CheckRecords validates a batch against the collection dimension.
func CheckRecords(records []Record, dim int) error {
	for _, r := range records {
		if err := checkRecord(r, dim); err != nil {
			return err
		}
	}
	return nil
}
