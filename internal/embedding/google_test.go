// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package embedding_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visuworld/visuworld/internal/embedding"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

func TestGoogle_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "text-embedding-004")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embeddings":[{"values":[0.5,0.25,0.125]}]}`))
	}))
	t.Cleanup(srv.Close)

	e, err := embedding.NewGoogle(context.Background(), embedding.GoogleConfig{APIKey: "k", BaseURL: srv.URL, Dimensions: 3})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "plasma")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25, 0.125}, vec)
	assert.Equal(t, embedding.DefaultGoogleModel, e.Model())
}

func TestGoogle_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"bad input","status":"INVALID_ARGUMENT"}}`))
	}))
	t.Cleanup(srv.Close)

	e, err := embedding.NewGoogle(context.Background(), embedding.GoogleConfig{APIKey: "k", BaseURL: srv.URL, Dimensions: 3})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, vwerr.IsRejected(err))
	assert.Equal(t, http.StatusBadRequest, vwerr.UpstreamStatusOf(err))
}

func TestGoogle_RequiresKey(t *testing.T) {
	_, err := embedding.NewGoogle(context.Background(), embedding.GoogleConfig{})
	require.Error(t, err)
	assert.True(t, vwerr.HasCode(err, vwerr.CodeEmbeddingConfigInvalid))
}
