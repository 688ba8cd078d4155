// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package sqlite_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visuworld/visuworld/internal/store"
	"github.com/visuworld/visuworld/internal/store/sqlite"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

func newIndex(t *testing.T, path string) *sqlite.Index {
	t.Helper()
	idx, err := sqlite.NewIndex(path, 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func example(id string) store.ShaderExample {
	return store.ShaderExample{
		ID:          id,
		Code:        "void main(){ gl_FragColor = vec4(1.0); } // " + id,
		Title:       "Shader " + id,
		Author:      "author-" + id,
		Description: "description of " + id,
		Tags:        []string{"2d", id},
	}
}

func seedFive(t *testing.T, idx *sqlite.Index) {
	t.Helper()
	ctx := context.Background()
	entries := map[string][]float32{
		"e1": {1, 0, 0},
		"e2": {0.9, 0.1, 0},
		"e3": {0.5, 0.5, 0},
		"e4": {0, 1, 0},
		"e5": {-1, 0, 0},
	}
	for id, emb := range entries {
		require.NoError(t, idx.Upsert(ctx, example(id), emb))
	}
}

func TestIndex_QueryReturnsNearestInOrder(t *testing.T) {
	idx := newIndex(t, testDBPath(t, "vectors"))
	seedFive(t, idx)

	result, err := idx.Query(context.Background(), []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, result, 3)

	ids := []string{result[0].Example.ID, result[1].Example.ID, result[2].Example.ID}
	assert.Equal(t, []string{"e1", "e2", "e3"}, ids)
	for i, hit := range result {
		assert.Equal(t, i+1, hit.Rank)
		if i > 0 {
			assert.GreaterOrEqual(t, hit.Distance, result[i-1].Distance)
		}
	}
	assert.InDelta(t, 0.0, result[0].Distance, 1e-6)
	assert.Equal(t, "author-e1", result[0].Example.Author)
	assert.Equal(t, []string{"2d", "e1"}, result[0].Example.Tags)
}

func TestIndex_QueryIsStable(t *testing.T) {
	idx := newIndex(t, testDBPath(t, "vectors-stable"))
	seedFive(t, idx)

	first, err := idx.Query(context.Background(), []float32{0.3, 0.7, 0}, 5)
	require.NoError(t, err)
	second, err := idx.Query(context.Background(), []float32{0.3, 0.7, 0}, 5)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestIndex_TiesBrokenByID(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, testDBPath(t, "vectors-ties"))

	require.NoError(t, idx.Upsert(ctx, example("b"), []float32{0, 0, 1}))
	require.NoError(t, idx.Upsert(ctx, example("a"), []float32{0, 0, 1}))
	require.NoError(t, idx.Upsert(ctx, example("c"), []float32{0, 0, 1}))

	result, err := idx.Query(ctx, []float32{0, 0, 1}, 3)
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Equal(t, "a", result[0].Example.ID)
	assert.Equal(t, "b", result[1].Example.ID)
	assert.Equal(t, "c", result[2].Example.ID)
}

func TestIndex_EmptyIndexAndZeroK(t *testing.T) {
	idx := newIndex(t, testDBPath(t, "vectors-empty"))

	result, err := idx.Query(context.Background(), []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, result)

	seedFive(t, idx)
	result, err = idx.Query(context.Background(), []float32{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestIndex_KLargerThanIndex(t *testing.T) {
	idx := newIndex(t, testDBPath(t, "vectors-large-k"))
	seedFive(t, idx)

	result, err := idx.Query(context.Background(), []float32{1, 0, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, result, 5)
}

func TestIndex_UpsertReplacesEntirely(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, testDBPath(t, "vectors-upsert"))

	require.NoError(t, idx.Upsert(ctx, example("e1"), []float32{1, 0, 0}))
	replacement := store.ShaderExample{ID: "e1", Code: "void main(){}", Title: "Replaced"}
	require.NoError(t, idx.Upsert(ctx, replacement, []float32{0, 1, 0}))

	got, err := idx.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, replacement.Title, got.Title)
	assert.Equal(t, replacement.Code, got.Code)
	assert.Empty(t, got.Author, "metadata must not be merged with the previous version")
	assert.Empty(t, got.Tags)

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	result, err := idx.Query(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.InDelta(t, 0.0, result[0].Distance, 1e-6)
}

func TestIndex_MalformedEntriesSkipped(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, testDBPath(t, "vectors-malformed"))
	seedFive(t, idx)

	_, err := idx.DB().Exec(`UPDATE shader_examples SET metadata = '{"author":"nobody"}' WHERE id = 'e2'`)
	require.NoError(t, err)

	result, err := idx.Query(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "e1", result[0].Example.ID)
	assert.Equal(t, "e3", result[1].Example.ID)
	assert.Equal(t, 2, result[1].Rank)
}

func TestIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t, "vectors-dims")
	idx := newIndex(t, path)

	err := idx.Upsert(ctx, example("e1"), []float32{1, 0})
	require.Error(t, err)
	assert.True(t, vwerr.IsInvalidInput(err))

	_, err = idx.Query(ctx, []float32{1, 0, 0, 0}, 3)
	require.Error(t, err)
	assert.True(t, vwerr.IsInvalidInput(err))

	_, err = sqlite.NewIndex(path, 4)
	require.Error(t, err)
	assert.True(t, vwerr.HasCode(err, vwerr.CodeIndexOpenUnavailable))
}

func TestIndex_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t, "vectors-persist")

	idx, err := sqlite.NewIndex(path, 3)
	require.NoError(t, err)
	seedFive(t, idx)
	require.NoError(t, idx.Close())

	reopened := newIndex(t, path)
	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	result, err := reopened.Query(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "e1", result[0].Example.ID)
}

func TestIndex_GetAndDelete(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, testDBPath(t, "vectors-delete"))
	seedFive(t, idx)

	require.NoError(t, idx.Delete(ctx, []string{"e1", "e2", "missing"}))
	require.NoError(t, idx.Delete(ctx, nil))

	_, err := idx.Get(ctx, "e1")
	require.Error(t, err)
	assert.True(t, vwerr.IsNotFound(err))
	assert.True(t, errors.Is(err, store.ErrNotFound))

	result, err := idx.Query(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Len(t, result, 3)
	assert.Equal(t, "e3", result[0].Example.ID)
}
