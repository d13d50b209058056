// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

// Command openapi-gen writes the HTTP API's OpenAPI document to disk.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nyaya-dev/nyaya/internal/rag"
	"github.com/nyaya-dev/nyaya/internal/server"
	"github.com/nyaya-dev/nyaya/internal/vectorstore"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec registers every route against stub dependencies and returns
// the document huma derives from the handler types.
func generateSpec() ([]byte, error) {
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"}, server.Deps{
		Query:      stubQuerier{},
		Collection: stubCollection{},
	})
	if err != nil {
		return nil, nyayaerr.Errorf(nyayaerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	defer func() { _ = srv.Close() }()

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// Handlers are never invoked during generation.

type stubQuerier struct{}

func (stubQuerier) Chat(context.Context, string) (*rag.Response, error) { return &rag.Response{}, nil }
func (stubQuerier) Retrieve(context.Context, string, ...rag.RetrieveOption) (*rag.Retrieval, error) {
	return &rag.Retrieval{}, nil
}

type stubCollection struct{}

func (stubCollection) Info(context.Context) (vectorstore.CollectionInfo, error) {
	return vectorstore.CollectionInfo{}, nil
}
