// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visuworld/visuworld/internal/config"
	"github.com/visuworld/visuworld/internal/embedding"
	"github.com/visuworld/visuworld/internal/provider"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

func TestWire_BuildsPipeline(t *testing.T) {
	env := newTestEnv(t)

	app, err := Wire(context.Background(), env.config())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	require.NotNil(t, app.Pipeline)
	assert.Equal(t, []string{"fake", "openai"}, app.Providers.Names())
	assert.Equal(t, 3, app.Index.Dimensions())

	shader, err := app.Pipeline.GenerateShader(context.Background(), "a warm sun", false)
	require.NoError(t, err)
	assert.Equal(t, cleanedReply, shader)
}

func TestWire_ServerServesGeneratedShader(t *testing.T) {
	env := newTestEnv(t)

	app, err := Wire(context.Background(), env.config())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	srv, err := newServer(app)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	assert.NotNil(t, srv.API().OpenAPI().Paths["/generate_shader"])
	assert.NotNil(t, srv.API().OpenAPI().Paths["/api/v1/providers/{name}/health"])
}

func TestWire_SkipsUnusableProviders(t *testing.T) {
	env := newTestEnv(t)
	cfg := env.config()
	cfg.Providers["mystery"] = config.ProviderConfig{APIKey: "x"}
	cfg.Providers["anthropic"] = config.ProviderConfig{}
	builtinProviderFactories["broken"] = func(config.ProviderConfig) (provider.Provider, error) {
		return nil, errors.New("bad endpoint")
	}
	t.Cleanup(func() { delete(builtinProviderFactories, "broken") })
	cfg.Providers["broken"] = config.ProviderConfig{APIKey: "x"}

	reg, err := newProviderRegistry(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	assert.Equal(t, []string{"fake", "openai"}, reg.Names())
}

func TestWire_FailoverMustBeRegistered(t *testing.T) {
	env := newTestEnv(t)
	cfg := env.config()
	cfg.Models.Failover = []string{"anthropic/claude-sonnet-4-5"}

	_, err := newProviderRegistry(cfg)
	require.Error(t, err)
	assert.True(t, vwerr.HasCode(err, vwerr.CodeProviderNotFound))
}

func TestWire_DimensionMismatch(t *testing.T) {
	env := newTestEnv(t)
	cfg := env.config()
	cfg.Embedding.Dimensions = 4

	_, err := WireRetrieval(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, vwerr.HasCode(err, vwerr.CodeCLISetupFailure))
	assert.Contains(t, err.Error(), "4 dimensions")
}

func TestWire_UnsupportedEmbeddingProvider(t *testing.T) {
	env := newTestEnv(t)
	embedderFactory = embedding.New
	cfg := env.config()
	cfg.Embedding.Provider = "cohere"

	_, err := WireRetrieval(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, vwerr.HasCode(err, vwerr.CodeEmbeddingConfigInvalid))
}
