// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

// Package sqlite is the local persistent vector store: one SQLite database
// per data directory, with sqlite-vec providing cosine KNN.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nyaya-dev/nyaya/internal/vectorstore"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

const Backend = "sqlite"

// DBFile is the database file created inside the configured directory.
const DBFile = "vectors.db"

// idChunk bounds the number of bound parameters in one IN clause.
const idChunk = 500

func init() {
	sqlite_vec.Auto()
	vectorstore.RegisterBackend(Backend, func(ctx context.Context, cfg vectorstore.ConnectConfig) (vectorstore.Store, error) {
		return Open(ctx, cfg.Local.Dir, cfg.Collection, cfg.Dimension)
	})
}

// Compile-time interface check.
var _ vectorstore.Store = (*Store)(nil)

// Store is one collection inside a SQLite database. Each collection owns a
// vec0 table for embeddings and a plain table for text and metadata.
type Store struct {
	db         *sql.DB
	collection string
	dim        int
	vecTable   string
	recTable   string
}

// Open creates dir if needed, opens <dir>/vectors.db and gets or creates
// the collection. Reopening a collection with a different dimension fails.
func Open(ctx context.Context, dir, collection string, dim int) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, nyayaerr.New(nyayaerr.CodeStoreConnectFailure, "local store directory is not configured",
			nyayaerr.FieldBackend(Backend))
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, nyayaerr.Wrap(err, nyayaerr.CodeStoreConnectFailure, "creating store directory",
			nyayaerr.FieldBackend(Backend), nyayaerr.Field("dir", dir))
	}

	dbPath := filepath.Join(dir, DBFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, nyayaerr.Wrap(err, nyayaerr.CodeStoreConnectFailure, "opening sqlite db",
			nyayaerr.FieldBackend(Backend), nyayaerr.Field("path", dbPath))
	}
	// Single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nyayaerr.Wrap(err, nyayaerr.CodeStoreConnectFailure, "pinging sqlite db",
			nyayaerr.FieldBackend(Backend), nyayaerr.Field("path", dbPath))
	}

	s := &Store{db: db, collection: collection, dim: dim}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	const registryDDL = `
CREATE TABLE IF NOT EXISTS collections (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	dimension  INTEGER NOT NULL,
	metric     TEXT NOT NULL,
	created_at TEXT NOT NULL
)`
	if _, err := s.db.ExecContext(ctx, registryDDL); err != nil {
		return dbErr(err, "creating collections table")
	}

	const insertQ = `INSERT INTO collections(name, dimension, metric, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT(name) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, insertQ, s.collection, s.dim, vectorstore.MetricCosine,
		time.Now().UTC().Format(time.RFC3339)); err != nil {
		return dbErr(err, "registering collection")
	}

	var id int64
	var dim int
	err := s.db.QueryRowContext(ctx, `SELECT id, dimension FROM collections WHERE name = ?`, s.collection).Scan(&id, &dim)
	if err != nil {
		return dbErr(err, "loading collection")
	}
	if dim != s.dim {
		return nyayaerr.New(nyayaerr.CodeStoreConnectFailure,
			fmt.Sprintf("collection %s was created with dimension %d, configured dimension is %d; clear it or change embedding.dimensions",
				s.collection, dim, s.dim),
			nyayaerr.FieldBackend(Backend), nyayaerr.FieldCollection(s.collection))
	}

	s.vecTable = fmt.Sprintf("vec_%d", id)
	s.recTable = fmt.Sprintf("rec_%d", id)
	return s.createTables(ctx, s.db)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) createTables(ctx context.Context, db execer) error {
	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(id TEXT PRIMARY KEY, embedding float[%d] distance_metric=cosine)`,
		s.vecTable, s.dim,
	)
	if _, err := db.ExecContext(ctx, vecDDL); err != nil {
		return dbErr(err, "creating vector table")
	}

	recDDL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id       TEXT PRIMARY KEY,
	text     TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
)`, s.recTable)
	if _, err := db.ExecContext(ctx, recDDL); err != nil {
		return dbErr(err, "creating record table")
	}
	return nil
}

func (s *Store) Backend() string    { return Backend }
func (s *Store) Collection() string { return s.collection }
func (s *Store) Dimension() int     { return s.dim }
func (s *Store) MaxBatchSize() int  { return 0 }

// Upsert writes the batch in one transaction.
func (s *Store) Upsert(ctx context.Context, records []vectorstore.Record) error {
	if err := vectorstore.CheckRecords(records, s.dim); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	delVec := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.vecTable)
	insVec := fmt.Sprintf(`INSERT INTO %s(id, embedding) VALUES (?, ?)`, s.vecTable)
	upRec := fmt.Sprintf(`INSERT INTO %s(id, text, metadata) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET text = excluded.text, metadata = excluded.metadata`, s.recTable)

	for _, r := range records {
		blob, err := sqlite_vec.SerializeFloat32(r.Vector)
		if err != nil {
			return nyayaerr.Wrap(err, nyayaerr.CodeStoreRecordInvalid, "serializing embedding "+r.ID)
		}
		meta, err := encodeMetadata(r.Metadata)
		if err != nil {
			return nyayaerr.Wrap(err, nyayaerr.CodeStoreMetadataInvalid, "encoding metadata "+r.ID)
		}

		// vec0 does not support ON CONFLICT; delete first for upsert.
		if _, err := tx.ExecContext(ctx, delVec, r.ID); err != nil {
			return dbErr(err, "deleting existing vector "+r.ID)
		}
		if _, err := tx.ExecContext(ctx, insVec, r.ID, blob); err != nil {
			return dbErr(err, "inserting vector "+r.ID)
		}
		if _, err := tx.ExecContext(ctx, upRec, r.ID, r.Text, meta); err != nil {
			return dbErr(err, "upserting record "+r.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return dbErr(err, "committing batch")
	}
	return nil
}

func (s *Store) Existing(ctx context.Context, ids []string) ([]string, error) {
	var found []string
	for start := 0; start < len(ids); start += idChunk {
		part := ids[start:min(start+idChunk, len(ids))]
		args := make([]any, len(part))
		for i, id := range part {
			args[i] = id
		}
		q := fmt.Sprintf(`SELECT id FROM %s WHERE id IN (%s)`, s.recTable, placeholders(len(part)))

		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, dbErr(err, "checking existing ids")
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return nil, dbErr(err, "scanning id")
			}
			found = append(found, id)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, dbErr(err, "iterating ids")
		}
	}
	return found, nil
}

// Search runs a vec0 KNN query when unfiltered. With a filter it scans the
// matching rows and ranks them with vec_distance_cosine, so the filter
// applies before k is taken.
func (s *Store) Search(ctx context.Context, query []float32, k int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	if len(query) != s.dim {
		return nil, nyayaerr.Errorf(nyayaerr.CodeStoreRecordDimensionInvalid,
			"query has %d dimensions, want %d", len(query), s.dim)
	}
	if k <= 0 {
		return nil, nyayaerr.Errorf(nyayaerr.CodeStoreSearchInvalid, "k must be positive, got %d", k)
	}

	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, nyayaerr.Wrap(err, nyayaerr.CodeStoreSearchInvalid, "serializing query vector")
	}

	var (
		q    string
		args []any
	)
	if len(filter) == 0 {
		q = fmt.Sprintf(`SELECT v.id, v.distance, COALESCE(r.text, ''), COALESCE(r.metadata, '{}')
FROM %s v
LEFT JOIN %s r ON r.id = v.id
WHERE v.embedding MATCH ? AND k = ?
ORDER BY v.distance`, s.vecTable, s.recTable)
		args = []any{blob, k}
	} else {
		var where []string
		args = []any{blob}
		for _, field := range filter.Fields() {
			where = append(where, `json_extract(r.metadata, ?) IS ?`)
			args = append(args, jsonPath(field), filter[field].Any())
		}
		q = fmt.Sprintf(`SELECT r.id, vec_distance_cosine(v.embedding, ?) AS distance, r.text, r.metadata
FROM %s r
JOIN %s v ON v.id = r.id
WHERE %s
ORDER BY distance, r.id
LIMIT ?`, s.recTable, s.vecTable, strings.Join(where, " AND "))
		args = append(args, k)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, dbErr(err, "searching vectors")
	}
	defer func() { _ = rows.Close() }()

	var results []vectorstore.SearchResult
	for rows.Next() {
		var r vectorstore.SearchResult
		var meta string
		if err := rows.Scan(&r.ID, &r.Distance, &r.Text, &meta); err != nil {
			return nil, dbErr(err, "scanning search result")
		}
		if r.Metadata, err = vectorstore.ParseMetadata([]byte(meta)); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr(err, "iterating search results")
	}

	vectorstore.SortResults(results)
	return results, nil
}

func (s *Store) Info(ctx context.Context) (vectorstore.CollectionInfo, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.recTable)).Scan(&count); err != nil {
		return vectorstore.CollectionInfo{}, dbErr(err, "counting records")
	}
	return vectorstore.CollectionInfo{
		Name:      s.collection,
		Backend:   Backend,
		Count:     count,
		Dimension: s.dim,
		Metric:    vectorstore.MetricCosine,
	}, nil
}

// Clear drops both collection tables and recreates them empty.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{s.vecTable, s.recTable} {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
			return dbErr(err, "dropping "+table)
		}
	}
	if err := s.createTables(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return dbErr(err, "committing clear")
	}
	return nil
}

func (s *Store) Dump(ctx context.Context) ([]vectorstore.Record, error) {
	q := fmt.Sprintf(`SELECT r.id, r.text, r.metadata, vec_to_json(v.embedding)
FROM %s r
JOIN %s v ON v.id = r.id
ORDER BY r.id`, s.recTable, s.vecTable)

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, dbErr(err, "dumping records")
	}
	defer func() { _ = rows.Close() }()

	var out []vectorstore.Record
	for rows.Next() {
		var r vectorstore.Record
		var meta, vec string
		if err := rows.Scan(&r.ID, &r.Text, &meta, &vec); err != nil {
			return nil, dbErr(err, "scanning record")
		}
		if r.Metadata, err = vectorstore.ParseMetadata([]byte(meta)); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(vec), &r.Vector); err != nil {
			return nil, nyayaerr.Wrap(err, nyayaerr.CodeStoreDatabaseFailure, "decoding vector "+r.ID)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr(err, "iterating records")
	}
	return out, nil
}

// Collections lists every collection in the database with its dimension.
func (s *Store) Collections(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, dimension FROM collections ORDER BY name`)
	if err != nil {
		return nil, dbErr(err, "listing collections")
	}
	defer func() { _ = rows.Close() }()

	out := map[string]int{}
	for rows.Next() {
		var name string
		var dim int
		if err := rows.Scan(&name, &dim); err != nil {
			return nil, dbErr(err, "scanning collection")
		}
		out[name] = dim
	}
	return out, dbErr(rows.Err(), "iterating collections")
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func encodeMetadata(md vectorstore.Metadata) (string, error) {
	if len(md) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(md)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func jsonPath(field string) string {
	return `$."` + strings.ReplaceAll(field, `"`, `\"`) + `"`
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func dbErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nyayaerr.Wrap(err, nyayaerr.CodeStoreDatabaseFailure, msg+": canceled", nyayaerr.FieldBackend(Backend))
	}
	return nyayaerr.Wrap(err, nyayaerr.CodeStoreDatabaseFailure, msg, nyayaerr.FieldBackend(Backend))
}
