// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/visuworld/visuworld/internal/store"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

var _ store.ShaderStore = (*ShaderStore)(nil)

type ShaderStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewShaderStore(ctx context.Context, pool *pgxpool.Pool) (*ShaderStore, error) {
	err := execAll(ctx, pool,
		`CREATE TABLE IF NOT EXISTS saved_shaders (
	seq         BIGSERIAL PRIMARY KEY,
	id          TEXT NOT NULL UNIQUE,
	prompt      TEXT NOT NULL,
	code        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_saved_shaders_prompt ON saved_shaders(prompt)`,
	)
	if err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeStoreDatabaseFailure, "migrating shader store")
	}
	return &ShaderStore{pool: pool, now: time.Now}, nil
}

func (s *ShaderStore) Save(ctx context.Context, shader *store.SavedShader) error {
	if shader == nil || shader.Code == "" {
		return vwerr.Wrap(store.ErrInvalidInput, vwerr.CodeStoreShaderInvalid, "shader code is required")
	}
	prompt := store.NormalizePrompt(shader.Prompt)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return vwerr.Wrap(err, vwerr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var existing string
	err = tx.QueryRow(ctx,
		`SELECT id FROM saved_shaders WHERE prompt = $1 AND code = $2 ORDER BY seq LIMIT 1`,
		prompt, shader.Code,
	).Scan(&existing)
	switch {
	case err == nil:
		return vwerr.Wrap(store.ErrConflict, vwerr.CodeStoreShaderSaveConflict,
			"shader with the given prompt already exists", vwerr.FieldShaderID(existing))
	case !errors.Is(err, pgx.ErrNoRows):
		return vwerr.Wrap(err, vwerr.CodeStoreDatabaseFailure, "checking for duplicate shader")
	}

	id := uuid.NewString()
	createdAt := s.now().UTC()
	if _, err := tx.Exec(ctx,
		`INSERT INTO saved_shaders(id, prompt, code, description, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, prompt, shader.Code, shader.Description, createdAt,
	); err != nil {
		return vwerr.Wrap(err, vwerr.CodeStoreDatabaseFailure, "inserting shader")
	}
	if err := tx.Commit(ctx); err != nil {
		return vwerr.Wrap(err, vwerr.CodeStoreDatabaseFailure, "committing shader")
	}

	shader.ID = id
	shader.Prompt = prompt
	shader.CreatedAt = createdAt
	return nil
}

func (s *ShaderStore) Get(ctx context.Context, id string) (*store.SavedShader, error) {
	var sh store.SavedShader
	err := s.pool.QueryRow(ctx,
		`SELECT id, prompt, code, description, created_at FROM saved_shaders WHERE id = $1`, id,
	).Scan(&sh.ID, &sh.Prompt, &sh.Code, &sh.Description, &sh.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, vwerr.Wrap(store.ErrNotFound, vwerr.CodeStoreShaderGetNotFound, "shader not found",
			vwerr.FieldShaderID(id))
	}
	if err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeStoreDatabaseFailure, "loading shader", vwerr.FieldShaderID(id))
	}
	sh.CreatedAt = sh.CreatedAt.UTC()
	return &sh, nil
}

func (s *ShaderStore) List(ctx context.Context, opts store.ListOpts) ([]*store.SavedShader, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := max(opts.Offset, 0)

	rows, err := s.pool.Query(ctx,
		`SELECT id, prompt, code, description, created_at FROM saved_shaders
ORDER BY created_at ASC, seq ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeStoreDatabaseFailure, "listing shaders")
	}
	defer rows.Close()

	shaders := []*store.SavedShader{}
	for rows.Next() {
		var sh store.SavedShader
		if err := rows.Scan(&sh.ID, &sh.Prompt, &sh.Code, &sh.Description, &sh.CreatedAt); err != nil {
			return nil, vwerr.Wrap(err, vwerr.CodeStoreDatabaseFailure, "scanning shader")
		}
		sh.CreatedAt = sh.CreatedAt.UTC()
		shaders = append(shaders, &sh)
	}
	if err := rows.Err(); err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeStoreDatabaseFailure, "iterating shaders")
	}
	return shaders, nil
}

// Close is a no-op; the pool belongs to the Index.
func (s *ShaderStore) Close() error { return nil }
