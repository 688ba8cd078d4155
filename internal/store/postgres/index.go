// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/visuworld/visuworld/internal/store"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

var _ store.VectorIndex = (*Index)(nil)

// Index implements store.VectorIndex on a pgvector column searched with the
// cosine distance operator.
type Index struct {
	pool       *pgxpool.Pool
	dimensions int
	ownsPool   bool
}

// NewIndex migrates the index tables on pool. An existing index built with
// a different dimensionality is rejected.
func NewIndex(ctx context.Context, pool *pgxpool.Pool, dimensions int) (*Index, error) {
	if dimensions <= 0 {
		return nil, vwerr.Errorf(vwerr.CodeIndexOpenUnavailable, "index dimensions must be positive, got %d", dimensions)
	}
	if err := migrateIndex(ctx, pool, dimensions); err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeIndexOpenUnavailable, "migrating vector index")
	}
	return &Index{pool: pool, dimensions: dimensions}, nil
}

func migrateIndex(ctx context.Context, pool *pgxpool.Pool, dimensions int) error {
	err := execAll(ctx, pool,
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS index_settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`,
	)
	if err != nil {
		return err
	}

	var stored string
	err = pool.QueryRow(ctx, `SELECT value FROM index_settings WHERE key = 'dimensions'`).Scan(&stored)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := pool.Exec(ctx, `INSERT INTO index_settings(key, value) VALUES ('dimensions', $1)`,
			strconv.Itoa(dimensions)); err != nil {
			return fmt.Errorf("recording index dimensions: %w", err)
		}
	case err != nil:
		return fmt.Errorf("reading index dimensions: %w", err)
	case stored != strconv.Itoa(dimensions):
		return fmt.Errorf("index was built with %s dimensions, configured %d", stored, dimensions)
	}

	return execAll(ctx, pool, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS shader_examples (
	id        TEXT PRIMARY KEY,
	code      TEXT NOT NULL,
	metadata  JSONB NOT NULL DEFAULT '{}',
	embedding vector(%d) NOT NULL
)`, dimensions))
}

func (x *Index) Dimensions() int { return x.dimensions }

func (x *Index) checkLength(embedding []float32, code vwerr.Code) error {
	if len(embedding) != x.dimensions {
		return vwerr.Errorf(code, "embedding has %d dimensions, index expects %d", len(embedding), x.dimensions)
	}
	return nil
}

func (x *Index) Upsert(ctx context.Context, example store.ShaderExample, embedding []float32) error {
	if example.ID == "" {
		return vwerr.New(vwerr.CodeIndexUpsertInvalid, "example ID is required")
	}
	if err := x.checkLength(embedding, vwerr.CodeIndexUpsertInvalid); err != nil {
		return err
	}
	meta, err := store.EncodeMetadata(example)
	if err != nil {
		return vwerr.Wrap(err, vwerr.CodeIndexUpsertInvalid, "encoding metadata")
	}

	const q = `INSERT INTO shader_examples(id, code, metadata, embedding) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`
	if _, err := x.pool.Exec(ctx, q, example.ID, example.Code, string(meta), pgvector.NewVector(embedding)); err != nil {
		return vwerr.Wrap(err, vwerr.CodeIndexUpsertUnavailable, "upserting example", vwerr.FieldShaderID(example.ID))
	}
	return nil
}

// Query orders by cosine distance and then ID. Malformed entries are skipped.
func (x *Index) Query(ctx context.Context, embedding []float32, k int) (store.RetrievalResult, error) {
	if k <= 0 {
		return store.RetrievalResult{}, nil
	}
	if err := x.checkLength(embedding, vwerr.CodeIndexQueryInvalid); err != nil {
		return nil, err
	}

	const q = `SELECT id, code, metadata::text, embedding <=> $1 AS distance
FROM shader_examples
ORDER BY distance, id
LIMIT $2`
	rows, err := x.pool.Query(ctx, q, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeIndexQueryUnavailable, "searching vectors",
			vwerr.FieldStage(vwerr.StageRetrieval))
	}
	defer rows.Close()

	result := store.RetrievalResult{}
	for rows.Next() {
		var (
			id, code, meta string
			distance       float64
		)
		if err := rows.Scan(&id, &code, &meta, &distance); err != nil {
			return nil, vwerr.Wrap(err, vwerr.CodeIndexQueryUnavailable, "scanning search row",
				vwerr.FieldStage(vwerr.StageRetrieval))
		}
		example, err := store.DecodeExample(id, code, []byte(meta))
		if err != nil {
			slog.Warn("skipping malformed index entry", "id", id, "error", err)
			continue
		}
		result = append(result, store.RetrievedExample{Example: example, Rank: len(result) + 1, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeIndexQueryUnavailable, "iterating search rows",
			vwerr.FieldStage(vwerr.StageRetrieval))
	}
	return result, nil
}

func (x *Index) Get(ctx context.Context, id string) (*store.ShaderExample, error) {
	var code, meta string
	err := x.pool.QueryRow(ctx, `SELECT code, metadata::text FROM shader_examples WHERE id = $1`, id).Scan(&code, &meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, vwerr.Wrap(store.ErrNotFound, vwerr.CodeIndexGetNotFound, "example "+id, vwerr.FieldShaderID(id))
	}
	if err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeIndexQueryUnavailable, "loading example", vwerr.FieldShaderID(id))
	}
	example, err := store.DecodeExample(id, code, []byte(meta))
	if err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeIndexQueryUnavailable, "decoding example", vwerr.FieldShaderID(id))
	}
	return &example, nil
}

func (x *Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := x.pool.Exec(ctx, `DELETE FROM shader_examples WHERE id = ANY($1)`, ids); err != nil {
		return vwerr.Wrap(err, vwerr.CodeIndexUpsertUnavailable, "deleting examples")
	}
	return nil
}

func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.pool.QueryRow(ctx, `SELECT COUNT(*) FROM shader_examples`).Scan(&n); err != nil {
		return 0, vwerr.Wrap(err, vwerr.CodeIndexQueryUnavailable, "counting examples")
	}
	return n, nil
}

func (x *Index) Close() error {
	if x.ownsPool {
		x.pool.Close()
	}
	return nil
}
