// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package mcptools_test

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyaya-dev/nyaya/internal/mcptools"
	"github.com/nyaya-dev/nyaya/internal/rag/ragtest"
)

func tool(t *testing.T, p *ragtest.Provider, name string) server.ToolHandlerFunc {
	t.Helper()
	svc, _ := ragtest.Service(t, p)
	for _, st := range mcptools.Tools(svc, nil) {
		if st.Tool.Name == name {
			return st.Handler
		}
	}
	t.Fatalf("tool %s not registered", name)
	return nil
}

func call(t *testing.T, h server.ToolHandlerFunc, args map[string]any) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	require.NoError(t, err, "tool failures must be reported as results")
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text, res.IsError
}

func TestTools_Definitions(t *testing.T) {
	svc, _ := ragtest.Service(t, &ragtest.Provider{})
	tools := mcptools.Tools(svc, nil)
	require.Len(t, tools, 2)

	assert.Equal(t, mcptools.ToolAsk, tools[0].Tool.Name)
	assert.Contains(t, tools[0].Tool.InputSchema.Required, "question")
	assert.Equal(t, mcptools.ToolSearch, tools[1].Tool.Name)
	assert.Contains(t, tools[1].Tool.InputSchema.Required, "query")
	assert.NotContains(t, tools[1].Tool.InputSchema.Required, "limit")

	assert.NotNil(t, mcptools.NewServer(svc, "test", nil))
}

func TestAsk(t *testing.T) {
	p := &ragtest.Provider{Answer: "Article 21 protects life and personal liberty."}
	h := tool(t, p, mcptools.ToolAsk)

	text, isErr := call(t, h, map[string]any{"question": "protection of life and personal liberty"})
	assert.False(t, isErr)
	assert.True(t, strings.HasPrefix(text, p.Answer))
	assert.Contains(t, text, "Sources:")
	assert.Contains(t, text, "[1] indian_constitution_2 (relevance ")
	require.Len(t, p.Requests(), 1)
}

func TestAsk_Errors(t *testing.T) {
	tests := []struct {
		name     string
		provider *ragtest.Provider
		args     map[string]any
		want     string
	}{
		{"missing question", &ragtest.Provider{}, map[string]any{}, "question parameter is required"},
		{"blank question", &ragtest.Provider{}, map[string]any{"question": "  "}, "question parameter is required"},
		{"generation failure", &ragtest.Provider{Err: "quota exhausted"}, map[string]any{"question": "Article 32"}, "quota exhausted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isErr := call(t, tool(t, tt.provider, mcptools.ToolAsk), tt.args)
			assert.True(t, isErr)
			assert.Contains(t, text, tt.want)
		})
	}
}

func TestSearch(t *testing.T) {
	p := &ragtest.Provider{}
	h := tool(t, p, mcptools.ToolSearch)

	text, isErr := call(t, h, map[string]any{"query": "personal liberty", "limit": float64(1)})
	assert.False(t, isErr)
	assert.True(t, strings.HasPrefix(text, "Source 1 (Relevance: "), text)
	assert.Contains(t, text, "Article 21")
	assert.NotContains(t, text, "Source 2")
	assert.Empty(t, p.Requests(), "search must not call the generator")
}

func TestSearch_DefaultLimit(t *testing.T) {
	text, isErr := call(t, tool(t, &ragtest.Provider{}, mcptools.ToolSearch), map[string]any{"query": "article rights"})
	assert.False(t, isErr)
	assert.Contains(t, text, "Source 3 (Relevance: ")
	assert.NotContains(t, text, "Source 4")
}

func TestSearch_MissingQuery(t *testing.T) {
	text, isErr := call(t, tool(t, &ragtest.Provider{}, mcptools.ToolSearch), map[string]any{"limit": float64(2)})
	assert.True(t, isErr)
	assert.Contains(t, text, "query parameter is required")
}
