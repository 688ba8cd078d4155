// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/visuworld/visuworld/internal/store"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

var _ store.ShaderStore = (*ShaderStore)(nil)

// ShaderStore implements store.ShaderStore on a SQLite table.
type ShaderStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewShaderStore opens (or creates) the gallery database at dbPath.
func NewShaderStore(dbPath string) (*ShaderStore, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeStoreDatabaseFailure, "opening shader store")
	}

	const ddl = `
CREATE TABLE IF NOT EXISTS saved_shaders (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	prompt      TEXT NOT NULL,
	code        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_saved_shaders_prompt ON saved_shaders(prompt);
`
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, vwerr.Wrap(err, vwerr.CodeStoreDatabaseFailure, "migrating shader store")
	}

	return &ShaderStore{db: db, now: time.Now}, nil
}

// Save normalizes the prompt, rejects exact duplicates and inserts shader,
// filling in its ID and CreatedAt.
func (s *ShaderStore) Save(ctx context.Context, shader *store.SavedShader) error {
	if shader == nil || shader.Code == "" {
		return vwerr.Wrap(store.ErrInvalidInput, vwerr.CodeStoreShaderInvalid, "shader code is required")
	}
	prompt := store.NormalizePrompt(shader.Prompt)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return vwerr.Wrap(err, vwerr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM saved_shaders WHERE prompt = ? AND code = ? ORDER BY seq LIMIT 1`,
		prompt, shader.Code,
	).Scan(&existing)
	switch {
	case err == nil:
		return vwerr.Wrap(store.ErrConflict, vwerr.CodeStoreShaderSaveConflict,
			"shader with the given prompt already exists", vwerr.FieldShaderID(existing))
	case !errors.Is(err, sql.ErrNoRows):
		return vwerr.Wrap(err, vwerr.CodeStoreDatabaseFailure, "checking for duplicate shader")
	}

	id := uuid.NewString()
	createdAt := s.now().UTC()
	const insert = `INSERT INTO saved_shaders(id, prompt, code, description, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insert, id, prompt, shader.Code, shader.Description, formatTime(createdAt)); err != nil {
		return vwerr.Wrap(err, vwerr.CodeStoreDatabaseFailure, "inserting shader")
	}
	if err := tx.Commit(); err != nil {
		return vwerr.Wrap(err, vwerr.CodeStoreDatabaseFailure, "committing shader")
	}

	shader.ID = id
	shader.Prompt = prompt
	shader.CreatedAt = createdAt
	return nil
}

func (s *ShaderStore) Get(ctx context.Context, id string) (*store.SavedShader, error) {
	const q = `SELECT id, prompt, code, description, created_at FROM saved_shaders WHERE id = ?`
	shader, err := scanShader(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vwerr.Wrap(store.ErrNotFound, vwerr.CodeStoreShaderGetNotFound, "shader not found",
			vwerr.FieldShaderID(id))
	}
	if err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeStoreDatabaseFailure, "loading shader", vwerr.FieldShaderID(id))
	}
	return shader, nil
}

func (s *ShaderStore) List(ctx context.Context, opts store.ListOpts) ([]*store.SavedShader, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := max(opts.Offset, 0)

	const q = `SELECT id, prompt, code, description, created_at FROM saved_shaders
ORDER BY created_at ASC, seq ASC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeStoreDatabaseFailure, "listing shaders")
	}
	defer func() { _ = rows.Close() }()

	shaders := []*store.SavedShader{}
	for rows.Next() {
		shader, err := scanShader(rows)
		if err != nil {
			return nil, vwerr.Wrap(err, vwerr.CodeStoreDatabaseFailure, "scanning shader row")
		}
		shaders = append(shaders, shader)
	}
	if err := rows.Err(); err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeStoreDatabaseFailure, "iterating shader rows")
	}
	return shaders, nil
}

func (s *ShaderStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanShader(row scanner) (*store.SavedShader, error) {
	var (
		shader    store.SavedShader
		createdAt string
	)
	if err := row.Scan(&shader.ID, &shader.Prompt, &shader.Code, &shader.Description, &createdAt); err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	shader.CreatedAt = t
	return &shader, nil
}
