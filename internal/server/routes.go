// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/nyaya-dev/nyaya/internal/provider"
	"github.com/nyaya-dev/nyaya/internal/rag"
	"github.com/nyaya-dev/nyaya/internal/vectorstore"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// HealthBody is the JSON body of the health endpoint response.
type HealthBody struct {
	Status     string                      `json:"status" example:"ok" doc:"ok, or degraded when the collection is unreachable"`
	Collection *vectorstore.CollectionInfo `json:"collection,omitempty"`
	Providers  []provider.ProviderStatus   `json:"providers,omitempty"`
	Error      string                      `json:"error,omitempty"`
}

// HealthResponse wraps the health check response.
type HealthResponse struct {
	Body HealthBody
}

type QuestionInput struct {
	Body struct {
		Question string `json:"question" minLength:"1" maxLength:"4000" doc:"Question about the Constitution of India"`
	}
}

type AskOutput struct {
	Body struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
}

type ChatOutput struct {
	Body *rag.Response
}

type SearchInput struct {
	Body struct {
		Query    string `json:"query" minLength:"1" maxLength:"4000"`
		K        int    `json:"k,omitempty" minimum:"1" maximum:"50" doc:"Number of sources; defaults to the configured top_k"`
		Document string `json:"document,omitempty" doc:"Restrict to one document; defaults to the configured document"`
	}
}

type SearchOutput struct {
	Body struct {
		Query   string       `json:"query"`
		Sources []rag.Source `json:"sources"`
	}
}

type CollectionOutput struct {
	Body vectorstore.CollectionInfo
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, s.handleHealth)

	huma.Register(s.api, huma.Operation{
		OperationID: "ask",
		Method:      http.MethodPost,
		Path:        "/api/v1/ask",
		Summary:     "Answer a question",
		Tags:        []string{"query"},
	}, s.handleAsk)

	huma.Register(s.api, huma.Operation{
		OperationID: "chat",
		Method:      http.MethodPost,
		Path:        "/api/v1/chat",
		Summary:     "Answer a question with its sources",
		Tags:        []string{"query"},
	}, s.handleChat)

	huma.Register(s.api, huma.Operation{
		OperationID: "search",
		Method:      http.MethodPost,
		Path:        "/api/v1/search",
		Summary:     "Retrieve matching passages without generation",
		Tags:        []string{"query"},
	}, s.handleSearch)

	huma.Register(s.api, huma.Operation{
		OperationID: "collection-info",
		Method:      http.MethodGet,
		Path:        "/api/v1/collection",
		Summary:     "Describe the vector collection",
		Tags:        []string{"collection"},
	}, s.handleCollection)
}

func (s *Server) handleHealth(ctx context.Context, _ *struct{}) (*HealthResponse, error) {
	out := &HealthResponse{Body: HealthBody{Status: "ok"}}

	info, err := s.deps.Collection.Info(ctx)
	if err != nil {
		out.Body.Status = "degraded"
		out.Body.Error = err.Error()
	} else {
		out.Body.Collection = &info
	}
	if s.deps.Providers != nil {
		out.Body.Providers = s.deps.Providers.Statuses(ctx)
	}
	return out, nil
}

func (s *Server) handleAsk(ctx context.Context, in *QuestionInput) (*AskOutput, error) {
	resp, err := s.deps.Query.Chat(ctx, in.Body.Question)
	if err != nil {
		return nil, s.apiError("ask", err)
	}
	out := &AskOutput{}
	out.Body.Question = resp.Question
	out.Body.Answer = resp.Answer
	return out, nil
}

func (s *Server) handleChat(ctx context.Context, in *QuestionInput) (*ChatOutput, error) {
	resp, err := s.deps.Query.Chat(ctx, in.Body.Question)
	if err != nil {
		return nil, s.apiError("chat", err)
	}
	return &ChatOutput{Body: resp}, nil
}

func (s *Server) handleSearch(ctx context.Context, in *SearchInput) (*SearchOutput, error) {
	opts := []rag.RetrieveOption{rag.WithTopK(in.Body.K)}
	if in.Body.Document != "" {
		opts = append(opts, rag.WithDocument(in.Body.Document))
	}

	retrieval, err := s.deps.Query.Retrieve(ctx, in.Body.Query, opts...)
	if err != nil {
		return nil, s.apiError("search", err)
	}
	out := &SearchOutput{}
	out.Body.Query = retrieval.Question
	out.Body.Sources = retrieval.Sources
	return out, nil
}

func (s *Server) handleCollection(ctx context.Context, _ *struct{}) (*CollectionOutput, error) {
	info, err := s.deps.Collection.Info(ctx)
	if err != nil {
		return nil, s.apiError("collection", err)
	}
	return &CollectionOutput{Body: info}, nil
}

// apiError maps a coded error onto its HTTP status. Server-side failures are
// logged with their fields since the client only sees the message.
func (s *Server) apiError(op string, err error) error {
	status := nyayaerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "op", op, "code", nyayaerr.CodeOf(err), "error", err)
	}
	return huma.NewError(status, err.Error())
}
