// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package google_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nyaya-dev/nyaya/internal/embedding/google"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedder_BatchEmbed(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.True(t, strings.HasSuffix(r.URL.Path, ":batchEmbedContents"), r.URL.Path)

		var body struct {
			Requests []json.RawMessage `json:"requests"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		embeddings := make([]map[string]any, len(body.Requests))
		for i := range body.Requests {
			embeddings[i] = map[string]any{"values": []float32{float32(i), 1}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddings})
	}))
	defer srv.Close()

	e, err := google.New(context.Background(), google.Config{
		APIKey: "g-key", BaseURL: srv.URL, Model: "gemini-embedding-001", Dimensions: 2,
	})
	require.NoError(t, err)

	vecs, err := e.Embed(context.Background(), []string{"Article 14", "Article 21", "Article 32"})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}, {2, 1}}, vecs)
}

func TestEmbedder_EmptyInputMakesNoCall(t *testing.T) {
	e, err := google.New(context.Background(), google.Config{
		APIKey: "g-key", BaseURL: "http://127.0.0.1:1", Model: "gemini-embedding-001", Dimensions: 2,
	})
	require.NoError(t, err)

	vecs, err := e.Embed(context.Background(), []string{})
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := google.New(context.Background(), google.Config{Model: "m", Dimensions: 2})
	require.Error(t, err)
	assert.True(t, nyayaerr.IsConfiguration(err))
}
