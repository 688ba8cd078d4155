// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/visuworld/visuworld/internal/store"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

var _ store.VectorIndex = (*Index)(nil)

// Index implements store.VectorIndex with a vec0 virtual table using cosine
// distance and a companion table holding each example's code and metadata.
type Index struct {
	db         *sql.DB
	dimensions int
}

// NewIndex opens (or creates) the index database at dbPath. Reopening an
// index with a different dimensionality fails.
func NewIndex(dbPath string, dimensions int) (*Index, error) {
	if dimensions <= 0 {
		return nil, vwerr.Errorf(vwerr.CodeIndexOpenUnavailable, "index dimensions must be positive, got %d", dimensions)
	}

	db, err := open(dbPath)
	if err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeIndexOpenUnavailable, "opening vector index")
	}

	if err := migrateIndex(db, dimensions); err != nil {
		_ = db.Close()
		return nil, vwerr.Wrap(err, vwerr.CodeIndexOpenUnavailable, "migrating vector index", vwerr.Field("path", dbPath))
	}

	return &Index{db: db, dimensions: dimensions}, nil
}

func migrateIndex(db *sql.DB, dimensions int) error {
	const settingsDDL = `
CREATE TABLE IF NOT EXISTS index_settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`
	if _, err := db.Exec(settingsDDL); err != nil {
		return fmt.Errorf("creating index_settings table: %w", err)
	}

	var stored string
	err := db.QueryRow(`SELECT value FROM index_settings WHERE key = 'dimensions'`).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.Exec(`INSERT INTO index_settings(key, value) VALUES ('dimensions', ?)`,
			strconv.Itoa(dimensions)); err != nil {
			return fmt.Errorf("recording index dimensions: %w", err)
		}
	case err != nil:
		return fmt.Errorf("reading index dimensions: %w", err)
	case stored != strconv.Itoa(dimensions):
		return fmt.Errorf("index was built with %s dimensions, configured %d", stored, dimensions)
	}

	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS shader_vectors USING vec0(id TEXT PRIMARY KEY, embedding float[%d] distance_metric=cosine)`,
		dimensions,
	)
	if _, err := db.Exec(vecDDL); err != nil {
		return fmt.Errorf("creating shader_vectors virtual table: %w", err)
	}

	const examplesDDL = `
CREATE TABLE IF NOT EXISTS shader_examples (
	id       TEXT PRIMARY KEY,
	code     TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
)`
	if _, err := db.Exec(examplesDDL); err != nil {
		return fmt.Errorf("creating shader_examples table: %w", err)
	}

	return nil
}

func (x *Index) Dimensions() int { return x.dimensions }

func (x *Index) checkLength(embedding []float32, code vwerr.Code) error {
	if len(embedding) != x.dimensions {
		return vwerr.Errorf(code, "embedding has %d dimensions, index expects %d", len(embedding), x.dimensions)
	}
	return nil
}

// Upsert replaces the vector, code and metadata of example.ID in one
// transaction.
func (x *Index) Upsert(ctx context.Context, example store.ShaderExample, embedding []float32) error {
	if example.ID == "" {
		return vwerr.New(vwerr.CodeIndexUpsertInvalid, "example ID is required")
	}
	if err := x.checkLength(embedding, vwerr.CodeIndexUpsertInvalid); err != nil {
		return err
	}

	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return vwerr.Wrap(err, vwerr.CodeIndexUpsertInvalid, "serializing embedding")
	}
	meta, err := store.EncodeMetadata(example)
	if err != nil {
		return vwerr.Wrap(err, vwerr.CodeIndexUpsertInvalid, "encoding metadata")
	}

	fail := func(err error, msg string) error {
		return vwerr.Wrap(err, vwerr.CodeIndexUpsertUnavailable, msg, vwerr.FieldShaderID(example.ID))
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	// vec0 does not support ON CONFLICT.
	if _, err := tx.ExecContext(ctx, `DELETE FROM shader_vectors WHERE id = ?`, example.ID); err != nil {
		return fail(err, "deleting previous vector")
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO shader_vectors(id, embedding) VALUES (?, ?)`, example.ID, blob); err != nil {
		return fail(err, "inserting vector")
	}

	const upsertExample = `INSERT INTO shader_examples(id, code, metadata) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET code = excluded.code, metadata = excluded.metadata`
	if _, err := tx.ExecContext(ctx, upsertExample, example.ID, example.Code, string(meta)); err != nil {
		return fail(err, "upserting example")
	}

	if err := tx.Commit(); err != nil {
		return fail(err, "committing upsert")
	}
	return nil
}

// Query runs a k-nearest-neighbour search. Entries whose metadata cannot be
// decoded are skipped with a warning; ranks stay contiguous.
func (x *Index) Query(ctx context.Context, embedding []float32, k int) (store.RetrievalResult, error) {
	if k <= 0 {
		return store.RetrievalResult{}, nil
	}
	if err := x.checkLength(embedding, vwerr.CodeIndexQueryInvalid); err != nil {
		return nil, err
	}

	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeIndexQueryInvalid, "serializing query vector")
	}

	const q = `WITH knn AS (
	SELECT id, distance FROM shader_vectors WHERE embedding MATCH ? AND k = ?
)
SELECT knn.id, knn.distance, e.code, e.metadata
FROM knn
LEFT JOIN shader_examples e ON e.id = knn.id
ORDER BY knn.distance, knn.id`

	rows, err := x.db.QueryContext(ctx, q, blob, k)
	if err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeIndexQueryUnavailable, "searching vectors",
			vwerr.FieldStage(vwerr.StageRetrieval))
	}
	defer func() { _ = rows.Close() }()

	result := store.RetrievalResult{}
	for rows.Next() {
		var (
			id       string
			distance float64
			code     sql.NullString
			meta     sql.NullString
		)
		if err := rows.Scan(&id, &distance, &code, &meta); err != nil {
			return nil, vwerr.Wrap(err, vwerr.CodeIndexQueryUnavailable, "scanning search row",
				vwerr.FieldStage(vwerr.StageRetrieval))
		}

		example, err := store.DecodeExample(id, code.String, []byte(meta.String))
		if err != nil {
			slog.Warn("skipping malformed index entry", "id", id, "error", err)
			continue
		}
		result = append(result, store.RetrievedExample{
			Example:  example,
			Rank:     len(result) + 1,
			Distance: distance,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeIndexQueryUnavailable, "iterating search rows",
			vwerr.FieldStage(vwerr.StageRetrieval))
	}

	return result, nil
}

func (x *Index) Get(ctx context.Context, id string) (*store.ShaderExample, error) {
	var code, meta string
	err := x.db.QueryRowContext(ctx, `SELECT code, metadata FROM shader_examples WHERE id = ?`, id).Scan(&code, &meta)
	if errors.Is(err, sql.ErrNoRows) {
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

// Delete removes examples by ID. Unknown IDs are ignored.
func (x *Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return vwerr.Wrap(err, vwerr.CodeIndexUpsertUnavailable, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM shader_vectors WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return vwerr.Wrap(err, vwerr.CodeIndexUpsertUnavailable, "deleting vectors")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM shader_examples WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return vwerr.Wrap(err, vwerr.CodeIndexUpsertUnavailable, "deleting examples")
	}
	if err := tx.Commit(); err != nil {
		return vwerr.Wrap(err, vwerr.CodeIndexUpsertUnavailable, "committing delete")
	}
	return nil
}

func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM shader_examples`).Scan(&n); err != nil {
		return 0, vwerr.Wrap(err, vwerr.CodeIndexQueryUnavailable, "counting examples")
	}
	return n, nil
}

func (x *Index) Close() error {
	return x.db.Close()
}
