// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/visuworld/visuworld/internal/config"
	"github.com/visuworld/visuworld/internal/embedding"
	"github.com/visuworld/visuworld/internal/generation"
	"github.com/visuworld/visuworld/internal/metrics"
	"github.com/visuworld/visuworld/internal/pipeline"
	"github.com/visuworld/visuworld/internal/prompt"
	"github.com/visuworld/visuworld/internal/provider"
	anthropicprov "github.com/visuworld/visuworld/internal/provider/anthropic"
	googleprov "github.com/visuworld/visuworld/internal/provider/google"
	openaiprov "github.com/visuworld/visuworld/internal/provider/openai"
	openrouterprov "github.com/visuworld/visuworld/internal/provider/openrouter"
	"github.com/visuworld/visuworld/internal/retry"
	"github.com/visuworld/visuworld/internal/store"
	_ "github.com/visuworld/visuworld/internal/store/postgres" // register postgres backend
	_ "github.com/visuworld/visuworld/internal/store/sqlite"   // register sqlite backend
	"github.com/visuworld/visuworld/internal/tokenizer"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

// App holds the wired subsystems of one process.
type App struct {
	Config    *config.Config
	Metrics   *metrics.Metrics
	Tokenizer embedding.Truncator
	Embedder  embedding.Embedder
	Index     store.VectorIndex
	Shaders   store.ShaderStore
	Providers *provider.Registry
	Pipeline  *pipeline.Pipeline
}

// Wire builds every subsystem the HTTP API and the generate commands need.
func Wire(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics.New()}

	if err := a.wireRetrieval(ctx); err != nil {
		return nil, err
	}

	reg, err := newProviderRegistry(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Providers = reg

	gen := generation.New(reg, generation.Config{
		Standard: cfg.Models.Standard,
		Pro:      cfg.Models.Pro,
	}, retryPolicy(cfg), a.Metrics)

	composer := prompt.New(prompt.Options{
		SnippetChars: cfg.Prompt.SnippetChars,
		MaxTokens:    cfg.Prompt.MaxTokens,
		Counter:      a.Tokenizer,
	})

	a.Pipeline = pipeline.New(pipeline.Deps{
		Embedder:  a.Embedder,
		Retriever: a.Index,
		Composer:  composer,
		Generator: gen,
		Metrics:   a.Metrics,
	}, pipeline.Config{
		TopK:           cfg.Index.TopK,
		RequestTimeout: cfg.Pipeline.RequestTimeout,
	})

	return a, nil
}

// WireRetrieval builds only the embedder and stores, for ingestion and index
// queries.
func WireRetrieval(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics.New()}
	if err := a.wireRetrieval(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) wireRetrieval(ctx context.Context) error {
	cfg := a.Config

	tok, err := tokenizerFactory(cfg)
	if err != nil {
		return err
	}
	a.Tokenizer = tok

	base, err := embedderFactory(ctx, embedding.Options{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		APIKey:     cfg.Providers[cfg.Embedding.Provider].APIKey,
		BaseURL:    cfg.Providers[cfg.Embedding.Provider].Endpoint,
	})
	if err != nil {
		return vwerr.Wrapf(err, vwerr.CodeCLISetupFailure, "creating %s embedder", cfg.Embedding.Provider)
	}
	a.Embedder = embedding.Chain(base, tok, cfg.Embedding.MaxTokens, retryPolicy(cfg), a.Metrics)

	idx, shaders, err := openStores(cfg)
	if err != nil {
		return err
	}
	a.Index, a.Shaders = idx, shaders

	if a.Index.Dimensions() != a.Embedder.Dimensions() {
		_ = a.Close()
		return vwerr.Errorf(vwerr.CodeCLISetupFailure,
			"index has %d dimensions but embedding model %s produces %d",
			a.Index.Dimensions(), a.Embedder.Model(), a.Embedder.Dimensions())
	}
	return nil
}

// Close releases all resources held by the app.
func (a *App) Close() error {
	type closer interface{ Close() error }
	var closers []closer
	if a.Providers != nil {
		closers = append(closers, a.Providers)
	}
	if a.Index != nil {
		closers = append(closers, a.Index)
	}
	if a.Shaders != nil {
		closers = append(closers, a.Shaders)
	}

	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func retryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy(cfg.Retry)
}

func storeConfig(cfg *config.Config) store.Config {
	return store.Config{
		Backend:    cfg.Storage.Backend,
		DataDir:    cfg.Storage.DataDir,
		DSN:        cfg.Storage.PostgresDSN,
		Dimensions: cfg.Embedding.Dimensions,
	}
}

// openStores opens the configured backend.
func openStores(cfg *config.Config) (store.VectorIndex, store.ShaderStore, error) {
	idx, shaders, err := store.Open(storeConfig(cfg))
	if err != nil {
		return nil, nil, vwerr.Wrapf(err, vwerr.CodeCLISetupFailure, "opening %s storage", cfg.Storage.Backend)
	}
	return idx, shaders, nil
}

// tokenizerFactory loads the embedding vocabulary. Tests replace it to stay
// offline.
var tokenizerFactory = func(cfg *config.Config) (embedding.Truncator, error) {
	tok, err := tokenizer.NewTruncator(tokenizer.Options{Encoding: cfg.Embedding.Encoding})
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// embedderFactory builds the base embedder. Tests replace it with a fake.
var embedderFactory = embedding.New

// providerFactory builds a provider.Provider from a ProviderConfig.
type providerFactory func(config.ProviderConfig) (provider.Provider, error)

// builtinProviderFactories maps provider names to their constructors.
// Declared as a variable so tests can inject fakes.
var builtinProviderFactories = map[string]providerFactory{
	"anthropic": func(pc config.ProviderConfig) (provider.Provider, error) {
		return anthropicprov.New(anthropicprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"google": func(pc config.ProviderConfig) (provider.Provider, error) {
		return googleprov.New(googleprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"openai": func(pc config.ProviderConfig) (provider.Provider, error) {
		return openaiprov.New(openaiprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
	"openrouter": func(pc config.ProviderConfig) (provider.Provider, error) {
		return openrouterprov.New(openrouterprov.Config{APIKey: pc.APIKey, BaseURL: pc.Endpoint})
	},
}

// newProviderRegistry registers every configured built-in provider and the
// failover chain. Unknown names or empty keys are logged and skipped; a tier
// whose provider is missing fails at request time.
func newProviderRegistry(cfg *config.Config) (*provider.Registry, error) {
	reg := provider.NewRegistry()

	for name, pc := range cfg.Providers {
		if pc.APIKey == "" {
			slog.Warn("skipping provider with empty API key", "provider", name)
			continue
		}
		factory, ok := builtinProviderFactories[name]
		if !ok {
			slog.Warn("unknown provider in config, skipping", "provider", name)
			continue
		}
		p, err := factory(pc)
		if err != nil {
			slog.Warn("failed to create provider", "provider", name, "error", err)
			continue
		}
		reg.Register(name, p)
		slog.Info("registered provider", "provider", name)
	}

	if len(cfg.Models.Failover) > 0 {
		if err := reg.SetFailover(cfg.Models.Failover); err != nil {
			_ = reg.Close()
			return nil, vwerr.Wrapf(err, vwerr.CodeCLISetupFailure, "setting failover chain")
		}
	}

	for _, ref := range []string{cfg.Models.Standard, cfg.Models.Pro} {
		name, _ := config.SplitModelRef(ref)
		if _, err := reg.Get(name); err != nil {
			slog.Warn("model tier references an unregistered provider", "model", ref, "provider", name)
		}
	}

	return reg, nil
}
