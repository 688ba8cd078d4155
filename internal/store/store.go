// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

// Package store defines the vector index of catalog shaders and the gallery
// of saved shaders, plus a registry of storage backends.
package store

import (
	"context"
	"io"
)

// VectorIndex is a persistent nearest-neighbour index of shader examples.
type VectorIndex interface {
	// Upsert inserts or wholly replaces the example with the same ID.
	Upsert(ctx context.Context, example ShaderExample, embedding []float32) error
	// Query returns up to k examples nearest to embedding by cosine
	// distance. An empty index or k <= 0 yields an empty result.
	Query(ctx context.Context, embedding []float32, k int) (RetrievalResult, error)
	Get(ctx context.Context, id string) (*ShaderExample, error)
	Delete(ctx context.Context, ids []string) error
	Count(ctx context.Context) (int, error)
	// Dimensions is the embedding length the index was created with.
	Dimensions() int
	io.Closer
}

// ShaderStore keeps saved shaders.
type ShaderStore interface {
	// Save stores shader under a fresh ID. A shader whose normalized prompt
	// and code both match an existing one is rejected with a conflict error
	// carrying the existing ID.
	Save(ctx context.Context, shader *SavedShader) error
	Get(ctx context.Context, id string) (*SavedShader, error)
	// List returns shaders in insertion order.
	List(ctx context.Context, opts ListOpts) ([]*SavedShader, error)
	io.Closer
}
