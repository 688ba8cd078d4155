// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

// Package embedding turns text into fixed-length vectors. The same Embedder
// chain serves ingestion and querying so corpus and query vectors are
// produced under identical truncation.
package embedding

import (
	"context"
	"log/slog"
	"time"

	"github.com/visuworld/visuworld/internal/metrics"
	"github.com/visuworld/visuworld/internal/retry"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

// Embedder maps text to a vector of Dimensions() floats.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Model() string
}

// Truncator bounds input length in tokens.
type Truncator interface {
	CountTokens(text string) int
	Truncate(text string, maxTokens int) (string, bool)
}

// Truncating cuts inputs to maxTokens before delegating. Truncation is
// logged and counted, never surfaced to the caller.
type Truncating struct {
	next      Embedder
	tok       Truncator
	maxTokens int
	metrics   *metrics.Metrics
}

func NewTruncating(next Embedder, tok Truncator, maxTokens int, m *metrics.Metrics) *Truncating {
	return &Truncating{next: next, tok: tok, maxTokens: maxTokens, metrics: m}
}

func (t *Truncating) Embed(ctx context.Context, text string) ([]float32, error) {
	if t.maxTokens > 0 {
		kept, cut := t.tok.Truncate(text, t.maxTokens)
		if cut {
			slog.Warn("embedding input truncated",
				"model", t.next.Model(),
				"original_tokens", t.tok.CountTokens(text),
				"kept_tokens", t.tok.CountTokens(kept),
				"max_tokens", t.maxTokens,
			)
			t.metrics.CountTruncation()
		}
		text = kept
	}
	return t.next.Embed(ctx, text)
}

func (t *Truncating) Dimensions() int { return t.next.Dimensions() }
func (t *Truncating) Model() string { return t.next.Model() }

// Retrying retries transient embedding failures under policy.
type Retrying struct {
	next    Embedder
	policy  retry.Policy
	metrics *metrics.Metrics
}

func NewRetrying(next Embedder, policy retry.Policy, m *metrics.Metrics) *Retrying {
	return &Retrying{next: next, policy: policy, metrics: m}
}

func (r *Retrying) Embed(ctx context.Context, text string) ([]float32, error) {
	call := retry.Call{
		Stage:     vwerr.StageEmbedding,
		Exhausted: vwerr.CodeEmbeddingRetryExhausted,
		Notify: func(int, error, time.Duration) {
			r.metrics.CountRetry(vwerr.StageEmbedding)
		},
	}
	return retry.Value(ctx, r.policy, call, func(ctx context.Context) ([]float32, error) {
		return r.next.Embed(ctx, text)
	})
}

func (r *Retrying) Dimensions() int { return r.next.Dimensions() }
func (r *Retrying) Model() string { return r.next.Model() }

// Chain wraps base with retry inside truncation: the input is cut once and
// the same text is retried.
func Chain(base Embedder, tok Truncator, maxTokens int, policy retry.Policy, m *metrics.Metrics) Embedder {
	return NewTruncating(NewRetrying(base, policy, m), tok, maxTokens, m)
}

// classify converts an SDK error into an embedding error. Transient statuses
// (network, 408, 429, 5xx) become upstream failures; the rest are rejections.
func classify(err error, status int, providerName, model string) error {
	retryable := vwerr.IsRetryableStatus(status)
	code := vwerr.CodeEmbeddingRequestRejected
	if retryable {
		code = vwerr.CodeEmbeddingRequestUpstreamFailure
	}
	return vwerr.Recode(err, code, providerName+" embedding request failed",
		vwerr.FieldStage(vwerr.StageEmbedding),
		vwerr.FieldProvider(providerName),
		vwerr.FieldModel(model),
		vwerr.FieldUpstreamStatus(status),
		vwerr.FieldRetryable(retryable),
	)
}

func checkDimensions(vec []float32, want int, providerName, model string) error {
	if len(vec) == 0 {
		return vwerr.New(vwerr.CodeEmbeddingResponseInvalid, "provider returned no embedding",
			vwerr.FieldStage(vwerr.StageEmbedding), vwerr.FieldProvider(providerName), vwerr.FieldModel(model),
			vwerr.FieldRetryable(false))
	}
	if want > 0 && len(vec) != want {
		return vwerr.New(vwerr.CodeEmbeddingResponseInvalid, "embedding has unexpected dimensions",
			vwerr.FieldStage(vwerr.StageEmbedding), vwerr.FieldProvider(providerName), vwerr.FieldModel(model),
			vwerr.Field("dimensions", len(vec)), vwerr.Field("expected", want),
			vwerr.FieldRetryable(false))
	}
	return nil
}
