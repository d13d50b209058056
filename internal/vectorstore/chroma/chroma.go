// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

// Package chroma stores collections in a Chroma server, hosted or
// self-run, through its v2 REST API.
package chroma

import (
	"context"
	"fmt"
	"maps"
	"net/url"
	"strings"

	"github.com/nyaya-dev/nyaya/internal/vectorstore"
	"github.com/nyaya-dev/nyaya/internal/vectorstore/restapi"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

const (
	Backend = "chroma"

	DefaultURL      = "https://api.trychroma.com"
	DefaultTenant   = "default_tenant"
	DefaultDatabase = "default_database"

	// dumpPage is the page size used when enumerating a collection.
	dumpPage = 1000
)

func init() {
	vectorstore.RegisterBackend(Backend, func(ctx context.Context, cfg vectorstore.ConnectConfig) (vectorstore.Store, error) {
		return Open(ctx, cfg.Chroma, cfg.Collection, cfg.Dimension, restapi.WithTimeout(cfg.Timeout))
	})
}

var _ vectorstore.Store = (*Store)(nil)

// Store is one Chroma collection.
type Store struct {
	client     *restapi.Client
	prefix     string
	collection string
	id         string
	dim        int
	maxBatch   int
	metadata   map[string]any
}

type collectionResponse struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Dimension *int           `json:"dimension"`
	Metadata  map[string]any `json:"metadata"`
}

// Open gets or creates the collection with cosine space. Hosted Chroma
// needs an API key; a self-run server at a custom URL may not.
func Open(ctx context.Context, opts vectorstore.ChromaOptions, collection string, dim int, clientOpts ...restapi.Option) (*Store, error) {
	base := opts.URL
	if base == "" {
		base = DefaultURL
	}
	if base == DefaultURL && opts.APIKey == "" {
		return nil, nyayaerr.New(nyayaerr.CodeStoreConnectFailure,
			"chroma cloud requires an API key (set NYAYA_STORE_CHROMA_API_KEY or CHROMA_API_KEY)",
			nyayaerr.FieldBackend(Backend))
	}
	tenant := orDefault(opts.Tenant, DefaultTenant)
	database := orDefault(opts.Database, DefaultDatabase)

	clientOpts = append([]restapi.Option{restapi.WithHeader("x-chroma-token", opts.APIKey)}, clientOpts...)
	s := &Store{
		client:     restapi.New(Backend, base, clientOpts...),
		prefix:     fmt.Sprintf("/api/v2/tenants/%s/databases/%s/collections", url.PathEscape(tenant), url.PathEscape(database)),
		collection: collection,
		dim:        dim,
	}

	var preflight struct {
		MaxBatchSize int `json:"max_batch_size"`
	}
	if err := s.client.Get(ctx, "/api/v2/pre-flight-checks", nil, &preflight); err != nil {
		if nyayaerr.IsConnection(err) {
			return nil, err
		}
	} else if preflight.MaxBatchSize > 0 {
		s.maxBatch = preflight.MaxBatchSize
	}

	if err := s.getOrCreate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) getOrCreate(ctx context.Context) error {
	body := map[string]any{
		"name":          s.collection,
		"metadata":      map[string]any{"hnsw:space": vectorstore.MetricCosine},
		"get_or_create": true,
	}
	var resp collectionResponse
	if err := s.client.Post(ctx, s.prefix, body, &resp); err != nil {
		return nyayaerr.Wrap(err, nyayaerr.CodeStoreConnectFailure, "getting or creating chroma collection",
			nyayaerr.FieldBackend(Backend), nyayaerr.FieldCollection(s.collection))
	}
	if resp.ID == "" {
		return nyayaerr.New(nyayaerr.CodeStoreConnectFailure, "chroma returned a collection without an id",
			nyayaerr.FieldBackend(Backend), nyayaerr.FieldCollection(s.collection))
	}
	if resp.Dimension != nil && *resp.Dimension != s.dim {
		return nyayaerr.New(nyayaerr.CodeStoreConnectFailure,
			fmt.Sprintf("chroma collection %s has dimension %d, configured dimension is %d", s.collection, *resp.Dimension, s.dim),
			nyayaerr.FieldBackend(Backend), nyayaerr.FieldCollection(s.collection))
	}
	if space, ok := resp.Metadata["hnsw:space"].(string); ok && space != vectorstore.MetricCosine {
		return nyayaerr.New(nyayaerr.CodeStoreConnectFailure,
			fmt.Sprintf("chroma collection %s uses %s space, expected cosine", s.collection, space),
			nyayaerr.FieldBackend(Backend), nyayaerr.FieldCollection(s.collection))
	}
	s.id = resp.ID
	s.metadata = resp.Metadata
	return nil
}

func (s *Store) path(op string) string {
	return s.prefix + "/" + url.PathEscape(s.id) + "/" + op
}

func (s *Store) Backend() string    { return Backend }
func (s *Store) Collection() string { return s.collection }
func (s *Store) Dimension() int     { return s.dim }

// MaxBatchSize is the server's advertised limit, or 0 when unknown.
func (s *Store) MaxBatchSize() int { return s.maxBatch }

func (s *Store) Upsert(ctx context.Context, records []vectorstore.Record) error {
	if err := vectorstore.CheckRecords(records, s.dim); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	body := struct {
		IDs        []string         `json:"ids"`
		Embeddings [][]float32      `json:"embeddings"`
		Documents  []string         `json:"documents"`
		Metadatas  []map[string]any `json:"metadatas"`
	}{}
	for _, r := range records {
		body.IDs = append(body.IDs, r.ID)
		body.Embeddings = append(body.Embeddings, r.Vector)
		body.Documents = append(body.Documents, r.Text)
		body.Metadatas = append(body.Metadatas, withoutNulls(r.Metadata))
	}
	return s.client.Post(ctx, s.path("upsert"), body, nil)
}

type getResponse struct {
	IDs        []string               `json:"ids"`
	Documents  []*string              `json:"documents"`
	Metadatas  []vectorstore.Metadata `json:"metadatas"`
	Embeddings [][]float32            `json:"embeddings"`
}

func (s *Store) Existing(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var resp getResponse
	body := map[string]any{"ids": ids, "include": []string{}}
	if err := s.client.Post(ctx, s.path("get"), body, &resp); err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

type queryResponse struct {
	IDs       [][]string               `json:"ids"`
	Documents [][]*string              `json:"documents"`
	Metadatas [][]vectorstore.Metadata `json:"metadatas"`
	Distances [][]float64              `json:"distances"`
}

func (s *Store) Search(ctx context.Context, query []float32, k int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	if len(query) != s.dim {
		return nil, nyayaerr.Errorf(nyayaerr.CodeStoreRecordDimensionInvalid, "query has %d dimensions, want %d", len(query), s.dim)
	}

	body := map[string]any{
		"query_embeddings": [][]float32{query},
		"n_results":        k,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	if where := whereClause(filter); where != nil {
		body["where"] = where
	}

	var resp queryResponse
	if err := s.client.Post(ctx, s.path("query"), body, &resp); err != nil {
		return nil, err
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	ids := resp.IDs[0]
	results := make([]vectorstore.SearchResult, len(ids))
	for i, id := range ids {
		results[i] = vectorstore.SearchResult{
			ID:       id,
			Text:     at(resp.Documents, i),
			Distance: atFloat(resp.Distances, i),
			Metadata: atMetadata(resp.Metadatas, i),
		}
	}
	vectorstore.SortResults(results)
	return results, nil
}

func (s *Store) Info(ctx context.Context) (vectorstore.CollectionInfo, error) {
	var count int
	if err := s.client.Get(ctx, s.path("count"), nil, &count); err != nil {
		return vectorstore.CollectionInfo{}, err
	}
	return vectorstore.CollectionInfo{
		Name:      s.collection,
		Backend:   Backend,
		Count:     count,
		Dimension: s.dim,
		Metric:    vectorstore.MetricCosine,
		Metadata:  maps.Clone(s.metadata),
	}, nil
}

// Clear deletes the collection and creates it again with the same name and
// space. The new collection has a new id.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.Delete(ctx, s.prefix+"/"+url.PathEscape(s.collection)); err != nil {
		return err
	}
	return s.getOrCreate(ctx)
}

func (s *Store) Dump(ctx context.Context) ([]vectorstore.Record, error) {
	var out []vectorstore.Record
	for offset := 0; ; offset += dumpPage {
		body := map[string]any{
			"limit":   dumpPage,
			"offset":  offset,
			"include": []string{"documents", "metadatas", "embeddings"},
		}
		var resp getResponse
		if err := s.client.Post(ctx, s.path("get"), body, &resp); err != nil {
			return nil, err
		}
		for i, id := range resp.IDs {
			rec := vectorstore.Record{ID: id, Metadata: vectorstore.Metadata{}}
			if i < len(resp.Documents) && resp.Documents[i] != nil {
				rec.Text = *resp.Documents[i]
			}
			if i < len(resp.Metadatas) && resp.Metadatas[i] != nil {
				rec.Metadata = resp.Metadatas[i]
			}
			if i < len(resp.Embeddings) {
				rec.Vector = resp.Embeddings[i]
			}
			out = append(out, rec)
		}
		if len(resp.IDs) < dumpPage {
			return out, nil
		}
	}
}

func (s *Store) Close() error { return nil }

// whereClause renders an equality filter in Chroma's where syntax. Several
// fields are combined with $and.
func whereClause(filter vectorstore.Filter) map[string]any {
	fields := filter.Fields()
	clauses := make([]map[string]any, 0, len(fields))
	for _, f := range fields {
		clauses = append(clauses, map[string]any{f: map[string]any{"$eq": filter[f].Any()}})
	}
	switch len(clauses) {
	case 0:
		return nil
	case 1:
		return clauses[0]
	default:
		return map[string]any{"$and": clauses}
	}
}

// withoutNulls drops null values; Chroma metadata cannot hold them.
func withoutNulls(md vectorstore.Metadata) map[string]any {
	out := make(map[string]any, len(md))
	for k, v := range md {
		if !v.IsNull() {
			out[k] = v.Any()
		}
	}
	return out
}

func at(docs [][]*string, i int) string {
	if len(docs) == 0 || i >= len(docs[0]) || docs[0][i] == nil {
		return ""
	}
	return *docs[0][i]
}

func atFloat(v [][]float64, i int) float64 {
	if len(v) == 0 || i >= len(v[0]) {
		return 1
	}
	return v[0][i]
}

func atMetadata(v [][]vectorstore.Metadata, i int) vectorstore.Metadata {
	if len(v) == 0 || i >= len(v[0]) || v[0][i] == nil {
		return vectorstore.Metadata{}
	}
	return v[0][i]
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
