// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

// Package pipeline turns a user prompt into cleaned shader source: embed the
// prompt, retrieve similar examples, compose, generate, clean.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/visuworld/visuworld/internal/embedding"
	"github.com/visuworld/visuworld/internal/generation"
	"github.com/visuworld/visuworld/internal/glsl"
	"github.com/visuworld/visuworld/internal/metrics"
	"github.com/visuworld/visuworld/internal/prompt"
	"github.com/visuworld/visuworld/internal/store"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

const (
	DefaultTopK           = 10
	DefaultRequestTimeout = 120 * time.Second

	OperationGenerate = "generate_shader"
	OperationModify   = "modify_shader"
)

// Retriever is the query side of store.VectorIndex.
type Retriever interface {
	Query(ctx context.Context, embedding []float32, k int) (store.RetrievalResult, error)
}

// Composer is satisfied by *prompt.Composer.
type Composer interface {
	ComposeBounded(pc prompt.Context) (prompt.Composed, error)
}

// Generator is satisfied by *generation.Client.
type Generator interface {
	Generate(ctx context.Context, prompt string, tier generation.Tier) (string, error)
}

// Config tunes retrieval depth and the request deadline.
type Config struct {
	TopK int
	// RequestTimeout spans embedding, retrieval and generation. Zero uses
	// DefaultRequestTimeout; negative disables the deadline.
	RequestTimeout time.Duration
}

// Deps are the collaborators of a Pipeline, constructed once at startup.
type Deps struct {
	Embedder  embedding.Embedder
	Retriever Retriever
	Composer  Composer
	Generator Generator
	Metrics   *metrics.Metrics
}

// Pipeline serves generate and modify requests. It holds no per-request
// state and is safe for concurrent use.
type Pipeline struct {
	deps Deps
	cfg  Config
}

// New returns a Pipeline, filling DefaultTopK and DefaultRequestTimeout for
// zero values.
func New(deps Deps, cfg Config) *Pipeline {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Pipeline{deps: deps, cfg: cfg}
}

// GenerateShader creates a new shader for userPrompt.
func (p *Pipeline) GenerateShader(ctx context.Context, userPrompt string, pro bool) (string, error) {
	out, err := p.run(ctx, OperationGenerate, userPrompt, nil, pro)
	p.deps.Metrics.CountRequest(OperationGenerate, err)
	return out, err
}

// ModifyShader rewrites existingCode according to userPrompt.
func (p *Pipeline) ModifyShader(ctx context.Context, userPrompt, existingCode string, pro bool) (string, error) {
	if strings.TrimSpace(existingCode) == "" {
		err := vwerr.New(vwerr.CodePipelineRequestInvalid, "code is required",
			vwerr.FieldStage(vwerr.StagePipeline), vwerr.FieldRetryable(false))
		p.deps.Metrics.CountRequest(OperationModify, err)
		return "", err
	}
	out, err := p.run(ctx, OperationModify, userPrompt, &existingCode, pro)
	p.deps.Metrics.CountRequest(OperationModify, err)
	return out, err
}

func (p *Pipeline) run(ctx context.Context, op, userPrompt string, existingCode *string, pro bool) (string, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return "", vwerr.New(vwerr.CodePipelineRequestInvalid, "prompt is required",
			vwerr.FieldStage(vwerr.StagePipeline), vwerr.FieldRetryable(false))
	}

	if p.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RequestTimeout)
		defer cancel()
	}
	start := time.Now()
	defer p.deps.Metrics.Since(vwerr.StagePipeline, start)

	tier := generation.TierOf(pro)
	log := slog.With("operation", op, "tier", tier.String())

	stageStart := time.Now()
	vec, err := p.deps.Embedder.Embed(ctx, userPrompt)
	p.deps.Metrics.Since(vwerr.StageEmbedding, stageStart)
	if err != nil {
		return "", p.fail(ctx, err, vwerr.StageEmbedding)
	}
	log.Debug("prompt embedded", "dimensions", len(vec), "elapsed", time.Since(stageStart))

	stageStart = time.Now()
	retrieved, err := p.deps.Retriever.Query(ctx, vec, p.cfg.TopK)
	p.deps.Metrics.Since(vwerr.StageRetrieval, stageStart)
	if err != nil {
		return "", p.fail(ctx, err, vwerr.StageRetrieval)
	}
	p.deps.Metrics.ObserveRetrieved(len(retrieved))
	log.Debug("examples retrieved", "count", len(retrieved), "top_k", p.cfg.TopK, "elapsed", time.Since(stageStart))

	stageStart = time.Now()
	composed, err := p.deps.Composer.ComposeBounded(prompt.Context{
		UserPrompt:   userPrompt,
		Retrieved:    retrieved,
		ExistingCode: existingCode,
	})
	p.deps.Metrics.Since(vwerr.StageCompose, stageStart)
	if err != nil {
		return "", p.fail(ctx, err, vwerr.StageCompose)
	}
	if composed.Dropped > 0 {
		slog.Warn("examples dropped to fit the prompt ceiling",
			"operation", op, "kept", composed.Examples, "dropped", composed.Dropped, "tokens", composed.Tokens)
	}
	log.Debug("prompt composed", "chars", len(composed.Text), "examples", composed.Examples)

	stageStart = time.Now()
	raw, err := p.deps.Generator.Generate(ctx, composed.Text, tier)
	p.deps.Metrics.Since(vwerr.StageGeneration, stageStart)
	if err != nil {
		return "", p.fail(ctx, err, vwerr.StageGeneration)
	}
	log.Debug("shader generated", "chars", len(raw), "elapsed", time.Since(stageStart))

	stageStart = time.Now()
	cleaned := glsl.Clean(raw)
	p.deps.Metrics.Since(vwerr.StageClean, stageStart)

	log.Info("shader ready", "chars", len(cleaned), "examples", composed.Examples, "elapsed", time.Since(start))
	return cleaned, nil
}

// fail reports the request deadline as a timeout and otherwise makes sure the
// error names the stage it came from.
func (p *Pipeline) fail(ctx context.Context, err error, stage string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return vwerr.Recode(err, vwerr.CodePipelineRequestTimeout, "request deadline exceeded",
			vwerr.FieldStage(stage),
			vwerr.Field("timeout", p.cfg.RequestTimeout.String()),
			vwerr.FieldRetryable(true))
	}
	if vwerr.StageOf(err) == "" {
		return vwerr.With(err, vwerr.FieldStage(stage))
	}
	return err
}
