// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package rag_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyaya-dev/nyaya/internal/provider"
	"github.com/nyaya-dev/nyaya/internal/rag"
	"github.com/nyaya-dev/nyaya/internal/rag/ragtest"
	"github.com/nyaya-dev/nyaya/internal/vectorstore"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

func TestRetrieve_FormatsRankedContext(t *testing.T) {
	svc, _ := ragtest.Service(t, &ragtest.Provider{})

	r, err := svc.Retrieve(context.Background(), "  protection of life and personal liberty  ")
	require.NoError(t, err)
	assert.Equal(t, "protection of life and personal liberty", r.Question)
	require.Len(t, r.Sources, 3)

	assert.Equal(t, "indian_constitution_2", r.Sources[0].RecordID)
	for i, s := range r.Sources {
		assert.Equal(t, i+1, s.Rank)
		assert.InDelta(t, 1-s.Distance, s.Relevance, 1e-9)
		assert.Equal(t, ragtest.DocumentName, s.Metadata[vectorstore.KeyDocumentName])
		if i > 0 {
			assert.LessOrEqual(t, r.Sources[i-1].Distance, s.Distance)
		}
	}

	blocks := make([]string, len(r.Sources))
	for i, s := range r.Sources {
		blocks[i] = fmt.Sprintf("Source %d (Relevance: %.2f):\n%s\n", i+1, s.Relevance, s.Text)
	}
	assert.Equal(t, strings.Join(blocks, "\n"), r.Context)
	assert.True(t, strings.HasPrefix(r.Context, "Source 1 (Relevance: "))
}

func TestRetrieve_FiltersToDocument(t *testing.T) {
	svc, ix := ragtest.Service(t, &ragtest.Provider{})
	ragtest.Seed(t, ix, "other_document", "Article 21 of another charter on life and personal liberty.")

	r, err := svc.Retrieve(context.Background(), "life and personal liberty", rag.WithTopK(10))
	require.NoError(t, err)
	require.Len(t, r.Sources, len(ragtest.Articles))
	for _, s := range r.Sources {
		assert.Equal(t, ragtest.DocumentName, s.Metadata[vectorstore.KeyDocumentName])
	}

	r, err = svc.Retrieve(context.Background(), "life and personal liberty", rag.WithDocument(""), rag.WithTopK(10))
	require.NoError(t, err)
	assert.Len(t, r.Sources, len(ragtest.Articles)+1)

	r, err = svc.Retrieve(context.Background(), "life and personal liberty", rag.WithDocument("other_document"))
	require.NoError(t, err)
	require.Len(t, r.Sources, 1)
	assert.Equal(t, "other_document_0", r.Sources[0].RecordID)
}

func TestRetrieve_EmptyCollection(t *testing.T) {
	svc, err := rag.New(ragtest.Index(t), nil, rag.Options{})
	require.NoError(t, err)

	r, err := svc.Retrieve(context.Background(), "Article 14")
	require.NoError(t, err)
	assert.Empty(t, r.Sources)
	assert.Empty(t, r.Context)
}

func TestRetrieve_Errors(t *testing.T) {
	svc, _ := ragtest.Service(t, &ragtest.Provider{})

	_, err := svc.Retrieve(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, nyayaerr.IsQuery(err))
	assert.True(t, nyayaerr.IsInvalidInput(err))

	broken, err := rag.New(failingSearcher{}, nil, rag.Options{})
	require.NoError(t, err)
	_, err = broken.Retrieve(context.Background(), "Article 14")
	require.Error(t, err)
	assert.Equal(t, nyayaerr.CodeQueryRetrieveFailure, nyayaerr.CodeOf(err))
	assert.True(t, nyayaerr.IsConnection(err))
	assert.True(t, nyayaerr.IsQuery(err))
}

func TestChat_UsesRetrievedSources(t *testing.T) {
	p := &ragtest.Provider{Answer: "Article 21 protects life and personal liberty."}
	svc, _ := ragtest.Service(t, p)

	resp, err := svc.Chat(context.Background(), "What protects personal liberty?")
	require.NoError(t, err)
	assert.Equal(t, "What protects personal liberty?", resp.Question)
	assert.Equal(t, p.Answer, resp.Answer)
	assert.Equal(t, "fake", resp.Provider)
	assert.Equal(t, "fake-model", resp.Model)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, 1, resp.Sources[0].Rank)

	reqs := p.Requests()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, "fake-model", req.Model)
	assert.Equal(t, rag.DefaultSystemPrompt, req.SystemPrompt)
	assert.Equal(t, 256, req.Options.MaxTokens)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, provider.RoleUser, req.Messages[0].Role)
	assert.Equal(t, rag.UserPrompt(resp.Context, resp.Question), req.Messages[0].Content)
	assert.Contains(t, req.Messages[0].Content, "Context about the Indian Constitution:\nSource 1 (Relevance: ")
	assert.Contains(t, req.Messages[0].Content, "\n\nQuestion: What protects personal liberty?\n\n")
}

func TestAsk(t *testing.T) {
	svc, _ := ragtest.Service(t, &ragtest.Provider{Answer: "Equality before law."})

	answer, err := svc.Ask(context.Background(), "What does Article 14 say?")
	require.NoError(t, err)
	assert.Equal(t, "Equality before law.", answer)
}

func TestAsk_GenerationFailureIsSurfaced(t *testing.T) {
	p := &ragtest.Provider{Err: "quota exceeded"}
	svc, _ := ragtest.Service(t, p)

	_, err := svc.Ask(context.Background(), "What does Article 14 say?")
	require.Error(t, err)
	assert.Equal(t, nyayaerr.CodeQueryGenerateUpstreamFailure, nyayaerr.CodeOf(err))
	assert.True(t, nyayaerr.IsQuery(err))
	assert.True(t, nyayaerr.IsUpstreamFailure(err))
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Len(t, p.Requests(), 1, "generation is not retried")
}

func TestAsk_NoProvider(t *testing.T) {
	svc, err := rag.New(ragtest.Index(t), nil, rag.Options{})
	require.NoError(t, err)

	_, err = svc.Ask(context.Background(), "Article 14")
	require.Error(t, err)
	assert.True(t, nyayaerr.IsQuery(err))
}

func TestNew_Validation(t *testing.T) {
	_, err := rag.New(nil, nil, rag.Options{})
	require.Error(t, err)
	assert.True(t, nyayaerr.IsConfiguration(err))

	_, err = rag.New(ragtest.Index(t), nil, rag.Options{TopK: -1})
	require.Error(t, err)
}

func TestFormatSource(t *testing.T) {
	assert.Equal(t, "Source 2 (Relevance: 0.87):\nArticle 14\n", rag.FormatSource(2, 0.8749, "Article 14"))
}

type failingSearcher struct{}

func (failingSearcher) Search(context.Context, string, int, vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	return nil, nyayaerr.New(nyayaerr.CodeStoreConnectFailure, "connection refused")
}
