// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

// Package mcptools exposes the query service as Model Context Protocol tools
// over stdio.
package mcptools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nyaya-dev/nyaya/internal/rag"
)

const (
	ToolAsk    = "ask_constitution"
	ToolSearch = "search_constitution"

	maxSearchLimit = 20
)

// Querier answers and retrieves. *rag.Service satisfies it.
type Querier interface {
	Chat(ctx context.Context, question string) (*rag.Response, error)
	Retrieve(ctx context.Context, question string, opts ...rag.RetrieveOption) (*rag.Retrieval, error)
}

// Tools returns the tool definitions bound to q.
func Tools(q Querier, logger *slog.Logger) []server.ServerTool {
	if logger == nil {
		logger = slog.Default()
	}
	return []server.ServerTool{
		{Tool: askTool(), Handler: handleAsk(q, logger)},
		{Tool: searchTool(), Handler: handleSearch(q, logger)},
	}
}

// NewServer builds an MCP server carrying Tools.
func NewServer(q Querier, version string, logger *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("nyaya", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.AddTools(Tools(q, logger)...)
	return s
}

// Serve speaks MCP over in and out until ctx is cancelled or in closes.
// Nothing else may write to out.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s).Listen(ctx, in, out)
}

func askTool() mcp.Tool {
	return mcp.NewTool(ToolAsk,
		mcp.WithDescription("Answer a question about the Constitution of India, citing the retrieved articles"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Question in natural language, e.g. \"What does Article 21 guarantee?\""),
		),
	)
}

func searchTool() mcp.Tool {
	return mcp.NewTool(ToolSearch,
		mcp.WithDescription("Find passages of the Constitution of India relevant to a query, without generating an answer"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search text"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum passages to return (default: configured top_k, max: %d)", maxSearchLimit)),
		),
	)
}

func handleAsk(q Querier, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := request.RequireString("question")
		if err != nil || strings.TrimSpace(question) == "" {
			return mcp.NewToolResultError("Error: question parameter is required"), nil
		}

		resp, err := q.Chat(ctx, question)
		if err != nil {
			logger.Error("mcp ask failed", "error", err)
			return mcp.NewToolResultError(fmt.Sprintf("Error: %v", err)), nil
		}
		return mcp.NewToolResultText(formatAnswer(resp)), nil
	}
}

func handleSearch(q Querier, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("Error: query parameter is required"), nil
		}

		limit := request.GetInt("limit", 0)
		if limit > maxSearchLimit {
			limit = maxSearchLimit
		}

		retrieval, err := q.Retrieve(ctx, query, rag.WithTopK(limit))
		if err != nil {
			logger.Error("mcp search failed", "error", err)
			return mcp.NewToolResultError(fmt.Sprintf("Error: %v", err)), nil
		}
		if len(retrieval.Sources) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("No passages found for %q.", retrieval.Question)), nil
		}

		var b strings.Builder
		for _, s := range retrieval.Sources {
			b.WriteString(rag.FormatSource(s.Rank, s.Relevance, s.Text))
			b.WriteString("\n")
		}
		return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
	}
}

func formatAnswer(resp *rag.Response) string {
	var b strings.Builder
	b.WriteString(resp.Answer)
	if len(resp.Sources) > 0 {
		b.WriteString("\n\nSources:\n")
		for _, s := range resp.Sources {
			fmt.Fprintf(&b, "[%d] %s (relevance %.2f)\n", s.Rank, s.RecordID, s.Relevance)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
