// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package vectorstore

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// The validators below are advisory. They describe every problem found and
// leave it to the caller to decide whether to proceed.

// ValidateMetadata flags entries that are not string, integer, float, bool
// or nil. An empty result means the map can be stored as is.
func ValidateMetadata(raw map[string]any) []string {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var issues []string
	for _, k := range keys {
		if k == "" {
			issues = append(issues, "metadata has an empty key")
			continue
		}
		if _, err := FromScalar(raw[k]); err != nil {
			issues = append(issues, fmt.Sprintf("metadata key %q has invalid type %T", k, raw[k]))
		}
	}
	return issues
}

// ValidateChunks checks text and embedding shape. When dim is positive every
// embedding must have exactly that length.
func ValidateChunks(chunks []EmbeddedChunk, dim int) []string {
	if len(chunks) == 0 {
		return []string{"no chunks provided"}
	}

	var issues []string
	for i, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			issues = append(issues, fmt.Sprintf("chunk %d: empty text", i))
		}
		switch {
		case c.Embedding == nil:
			issues = append(issues, fmt.Sprintf("chunk %d: missing embedding", i))
		case len(c.Embedding) == 0:
			issues = append(issues, fmt.Sprintf("chunk %d: empty embedding", i))
		case dim > 0 && len(c.Embedding) != dim:
			issues = append(issues, fmt.Sprintf("chunk %d: embedding has %d dimensions, want %d", i, len(c.Embedding), dim))
		default:
			if j := firstNonFinite(c.Embedding); j >= 0 {
				issues = append(issues, fmt.Sprintf("chunk %d: embedding component %d is not finite", i, j))
			}
		}
		for _, k := range c.Metadata.Keys() {
			if k == "" {
				issues = append(issues, fmt.Sprintf("chunk %d: metadata has an empty key", i))
			}
		}
	}
	return issues
}

// ValidateSearchResults checks that results carry an id, finite distances
// and ascending order.
func ValidateSearchResults(results []SearchResult) []string {
	if len(results) == 0 {
		return []string{"no search results"}
	}

	var issues []string
	for i, r := range results {
		if r.ID == "" {
			issues = append(issues, fmt.Sprintf("result %d: missing id", i))
		}
		if math.IsNaN(r.Distance) || math.IsInf(r.Distance, 0) {
			issues = append(issues, fmt.Sprintf("result %d: distance is not finite", i))
		}
		if r.Metadata == nil {
			issues = append(issues, fmt.Sprintf("result %d: missing metadata", i))
		}
		if i > 0 && r.Distance < results[i-1].Distance {
			issues = append(issues, fmt.Sprintf("result %d: distance %.4f is lower than the previous result", i, r.Distance))
		}
	}
	return issues
}

func firstNonFinite(v []float32) int {
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return i
		}
	}
	return -1
}

// Batches splits n items into consecutive [start, end) ranges of at most
// size items. size <= 0 yields a single range.
func Batches(n, size int) [][2]int {
	if n <= 0 {
		return nil
	}
	if size <= 0 || size >= n {
		return [][2]int{{0, n}}
	}
	out := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		out = append(out, [2]int{start, end})
	}
	return out
}
