// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

// Package pinecone stores a collection as a Pinecone serverless index.
// Record text travels in the "text" metadata field because Pinecone keeps
// only ids, values and metadata.
package pinecone

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nyaya-dev/nyaya/internal/vectorstore"
	"github.com/nyaya-dev/nyaya/internal/vectorstore/restapi"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

const (
	Backend = "pinecone"

	DefaultControlURL = "https://api.pinecone.io"
	DefaultCloud      = "aws"
	DefaultRegion     = "us-east-1"
	APIVersion        = "2025-01"

	// MaxBatchSize is the most vectors sent in one upsert request.
	MaxBatchSize = 100

	textField = "text"
)

// ReadyTimeout and PollInterval bound the wait for a new index.
var (
	ReadyTimeout = 2 * time.Minute
	PollInterval = 2 * time.Second
)

func init() {
	vectorstore.RegisterBackend(Backend, func(ctx context.Context, cfg vectorstore.ConnectConfig) (vectorstore.Store, error) {
		return Open(ctx, cfg.Pinecone, cfg.Collection, cfg.Dimension, restapi.WithTimeout(cfg.Timeout))
	})
}

var _ vectorstore.Store = (*Store)(nil)

// Store is one Pinecone index, optionally scoped to a namespace.
type Store struct {
	data      *restapi.Client
	index     string
	namespace string
	dim       int
}

type indexDescription struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Host      string `json:"host"`
	Status    struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

// Open describes the index, creating a serverless cosine index when it does
// not exist, and waits until it is ready.
func Open(ctx context.Context, opts vectorstore.PineconeOptions, index string, dim int, clientOpts ...restapi.Option) (*Store, error) {
	if opts.APIKey == "" {
		return nil, nyayaerr.New(nyayaerr.CodeStoreConnectFailure,
			"pinecone requires an API key (set NYAYA_STORE_PINECONE_API_KEY or PINECONE_API_KEY)",
			nyayaerr.FieldBackend(Backend))
	}

	clientOpts = append([]restapi.Option{
		restapi.WithHeader("Api-Key", opts.APIKey),
		restapi.WithHeader("X-Pinecone-API-Version", APIVersion),
	}, clientOpts...)
	control := restapi.New(Backend, orDefault(opts.ControlURL, DefaultControlURL), clientOpts...)

	desc, err := describeOrCreate(ctx, control, opts, index, dim)
	if err != nil {
		return nil, err
	}
	if desc.Dimension != dim {
		return nil, nyayaerr.New(nyayaerr.CodeStoreConnectFailure,
			fmt.Sprintf("pinecone index %s has dimension %d, configured dimension is %d", index, desc.Dimension, dim),
			nyayaerr.FieldBackend(Backend), nyayaerr.FieldCollection(index))
	}
	if desc.Metric != "" && desc.Metric != vectorstore.MetricCosine {
		return nil, nyayaerr.New(nyayaerr.CodeStoreConnectFailure,
			fmt.Sprintf("pinecone index %s uses %s metric, expected cosine", index, desc.Metric),
			nyayaerr.FieldBackend(Backend), nyayaerr.FieldCollection(index))
	}

	host := desc.Host
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return &Store{
		data:      control.WithBaseURL(host),
		index:     index,
		namespace: opts.Namespace,
		dim:       dim,
	}, nil
}

func describeOrCreate(ctx context.Context, control *restapi.Client, opts vectorstore.PineconeOptions, index string, dim int) (indexDescription, error) {
	path := "/indexes/" + url.PathEscape(index)

	var desc indexDescription
	err := control.Get(ctx, path, nil, &desc)
	switch {
	case err == nil:
	case restapi.StatusOf(err) == http.StatusNotFound:
		body := map[string]any{
			"name":      index,
			"dimension": dim,
			"metric":    vectorstore.MetricCosine,
			"spec": map[string]any{
				"serverless": map[string]string{
					"cloud":  orDefault(opts.Cloud, DefaultCloud),
					"region": orDefault(opts.Region, DefaultRegion),
				},
			},
		}
		if err := control.Post(ctx, "/indexes", body, &desc); err != nil {
			return desc, connectErr(err, "creating pinecone index", index)
		}
	default:
		return desc, connectErr(err, "describing pinecone index", index)
	}

	if desc.Status.Ready && desc.Host != "" {
		return desc, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, ReadyTimeout)
	defer cancel()
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-waitCtx.Done():
			return desc, nyayaerr.Wrap(waitCtx.Err(), nyayaerr.CodeStoreConnectFailure,
				fmt.Sprintf("pinecone index %s not ready (state %s)", index, desc.Status.State),
				nyayaerr.FieldBackend(Backend), nyayaerr.FieldCollection(index))
		case <-ticker.C:
		}
		if err := control.Get(waitCtx, path, nil, &desc); err != nil {
			return desc, connectErr(err, "describing pinecone index", index)
		}
		if desc.Status.Ready && desc.Host != "" {
			return desc, nil
		}
	}
}

func connectErr(err error, msg, index string) error {
	return nyayaerr.Wrap(err, nyayaerr.CodeStoreConnectFailure, msg,
		nyayaerr.FieldBackend(Backend), nyayaerr.FieldCollection(index))
}

func (s *Store) Backend() string    { return Backend }
func (s *Store) Collection() string { return s.index }
func (s *Store) Dimension() int     { return s.dim }
func (s *Store) MaxBatchSize() int  { return MaxBatchSize }

type vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s *Store) Upsert(ctx context.Context, records []vectorstore.Record) error {
	if len(records) > MaxBatchSize {
		return nyayaerr.Errorf(nyayaerr.CodeStoreRecordInvalid, "pinecone accepts at most %d vectors per upsert, got %d",
			MaxBatchSize, len(records))
	}
	if err := vectorstore.CheckRecords(records, s.dim); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	vectors := make([]vector, len(records))
	for i, r := range records {
		md := make(map[string]any, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			if !v.IsNull() {
				md[k] = v.Any()
			}
		}
		md[textField] = r.Text
		vectors[i] = vector{ID: r.ID, Values: r.Vector, Metadata: md}
	}

	var resp struct {
		UpsertedCount int `json:"upsertedCount"`
	}
	body := map[string]any{"vectors": vectors, "namespace": s.namespace}
	if err := s.data.Post(ctx, "/vectors/upsert", body, &resp); err != nil {
		return err
	}
	if resp.UpsertedCount != len(records) {
		return nyayaerr.Errorf(nyayaerr.CodeStoreUpstreamFailure, "pinecone upserted %d of %d vectors",
			resp.UpsertedCount, len(records))
	}
	return nil
}

func (s *Store) Existing(ctx context.Context, ids []string) ([]string, error) {
	var found []string
	for start := 0; start < len(ids); start += MaxBatchSize {
		part := ids[start:min(start+MaxBatchSize, len(ids))]
		q := url.Values{"ids": part}
		if s.namespace != "" {
			q.Set("namespace", s.namespace)
		}
		var resp struct {
			Vectors map[string]vector `json:"vectors"`
		}
		if err := s.data.Get(ctx, "/vectors/fetch", q, &resp); err != nil {
			return nil, err
		}
		for _, id := range part {
			if _, ok := resp.Vectors[id]; ok {
				found = append(found, id)
			}
		}
	}
	return found, nil
}

func (s *Store) Search(ctx context.Context, query []float32, k int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	if len(query) != s.dim {
		return nil, nyayaerr.Errorf(nyayaerr.CodeStoreRecordDimensionInvalid, "query has %d dimensions, want %d", len(query), s.dim)
	}

	body := map[string]any{
		"vector":          query,
		"topK":            k,
		"includeMetadata": true,
		"includeValues":   false,
		"namespace":       s.namespace,
	}
	if len(filter) > 0 {
		f := make(map[string]any, len(filter))
		for _, field := range filter.Fields() {
			f[field] = map[string]any{"$eq": filter[field].Any()}
		}
		body["filter"] = f
	}

	var resp struct {
		Matches []struct {
			ID       string               `json:"id"`
			Score    float64              `json:"score"`
			Metadata vectorstore.Metadata `json:"metadata"`
		} `json:"matches"`
	}
	if err := s.data.Post(ctx, "/query", body, &resp); err != nil {
		return nil, err
	}

	results := make([]vectorstore.SearchResult, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		md := m.Metadata.Clone()
		text, _ := md[textField].AsString()
		delete(md, textField)
		results = append(results, vectorstore.SearchResult{
			ID:       m.ID,
			Text:     text,
			Distance: 1 - m.Score,
			Metadata: md,
		})
	}
	vectorstore.SortResults(results)
	return results, nil
}

func (s *Store) Info(ctx context.Context) (vectorstore.CollectionInfo, error) {
	var stats struct {
		Dimension        int `json:"dimension"`
		TotalVectorCount int `json:"totalVectorCount"`
		Namespaces       map[string]struct {
			VectorCount int `json:"vectorCount"`
		} `json:"namespaces"`
	}
	if err := s.data.Post(ctx, "/describe_index_stats", map[string]any{}, &stats); err != nil {
		return vectorstore.CollectionInfo{}, err
	}

	count := stats.TotalVectorCount
	if s.namespace != "" {
		count = stats.Namespaces[s.namespace].VectorCount
	}
	return vectorstore.CollectionInfo{
		Name:      s.index,
		Backend:   Backend,
		Count:     count,
		Dimension: s.dim,
		Metric:    vectorstore.MetricCosine,
	}, nil
}

// Clear deletes every vector in the namespace. The index itself stays.
func (s *Store) Clear(ctx context.Context) error {
	err := s.data.Post(ctx, "/vectors/delete", map[string]any{"deleteAll": true, "namespace": s.namespace}, nil)
	if restapi.StatusOf(err) == http.StatusNotFound {
		return nil
	}
	return err
}

// Dump is unsupported: serverless indexes cannot enumerate vectors with
// their values.
func (s *Store) Dump(context.Context) ([]vectorstore.Record, error) {
	return nil, nyayaerr.New(nyayaerr.CodeStoreDumpUnsupported,
		"pinecone indexes cannot be enumerated; re-ingest from the source document instead",
		nyayaerr.FieldBackend(Backend), nyayaerr.FieldCollection(s.index))
}

func (s *Store) Close() error { return nil }

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
