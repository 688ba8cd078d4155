// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

// Package postgres implements the vector index on pgvector and the shader
// gallery on a plain table, sharing one pgx pool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/visuworld/visuworld/internal/store"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

const connectTimeout = 10 * time.Second

func init() {
	store.RegisterBackend("postgres", openBackend)
}

func openBackend(cfg store.Config) (store.VectorIndex, store.ShaderStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := Connect(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}

	idx, err := NewIndex(ctx, pool, cfg.Dimensions)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	shaders, err := NewShaderStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	// The pool is shared; closing the index releases it.
	idx.ownsPool = true
	return idx, shaders, nil
}

// Connect opens and pings a pool for dsn.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, vwerr.New(vwerr.CodeStoreDatabaseFailure, "postgres backend requires storage.postgres_dsn")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeStoreDatabaseFailure, "creating postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, vwerr.Wrap(err, vwerr.CodeStoreDatabaseFailure, "pinging postgres")
	}
	return pool, nil
}

func execAll(ctx context.Context, pool *pgxpool.Pool, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("executing %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
