// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package vectorstore

import "sort"

// Metadata keys stamped on every saved record.
const (
	KeyDocumentName   = "document_name"
	KeyChunkID        = "chunk_id"
	KeyTextLength     = "text_length"
	KeyCreatedAt      = "created_at"
	KeyEmbeddingModel = "embedding_model"
	KeyEmbeddingDim   = "embedding_dim"
	KeyIngestRun      = "ingest_run"
)

// MetricCosine is the only distance metric collections are created with.
const MetricCosine = "cosine"

// EmbeddedChunk is a chunk paired with its embedding, as handed to Save.
type EmbeddedChunk struct {
	Text      string
	Embedding []float32
	Metadata  Metadata
}

// Record is one stored entry of a collection.
type Record struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	Vector   []float32 `json:"vector,omitempty"`
	Metadata Metadata  `json:"metadata"`
}

// SearchResult is a stored record ranked against a query. Distance is cosine
// distance: 0 is identical, larger is less similar.
type SearchResult struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Distance float64  `json:"distance"`
	Metadata Metadata `json:"metadata"`
}

// Relevance is 1 - Distance.
func (r SearchResult) Relevance() float64 {
	return 1 - r.Distance
}

// Filter restricts search candidates to records whose metadata equals every
// entry. A nil Filter matches everything.
type Filter map[string]Value

// Eq builds a single-field Filter.
func Eq(field string, v Value) Filter {
	return Filter{field: v}
}

// Matches reports whether md satisfies f.
func (f Filter) Matches(md Metadata) bool {
	for k, want := range f {
		got, ok := md[k]
		if !ok || !got.Equal(want) {
			return false
		}
	}
	return true
}

// Fields returns the filter keys in sorted order.
func (f Filter) Fields() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CollectionInfo summarises a collection. Metadata is whatever the backend
// reports for the collection itself, if anything.
type CollectionInfo struct {
	Name      string         `json:"name" yaml:"name"`
	Backend   string         `json:"backend" yaml:"backend"`
	Count     int            `json:"count" yaml:"count"`
	Dimension int            `json:"dimension" yaml:"dimension"`
	Metric    string         `json:"metric" yaml:"metric"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// SortResults orders results by ascending distance, breaking ties by ID so
// output is stable.
func SortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})
}
