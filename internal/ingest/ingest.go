// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

// Package ingest loads shader catalogs into the vector index. Each record is
// embedded as "title\ndescription\ncode" through the same embedder chain that
// serves queries.
package ingest

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/visuworld/visuworld/internal/embedding"
	"github.com/visuworld/visuworld/internal/metrics"
	"github.com/visuworld/visuworld/internal/store"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

// Record results counted on visuworld_ingested_examples_total.
const (
	ResultIndexed = "indexed"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

// DefaultRatePerSecond paces embedding calls.
const DefaultRatePerSecond = 5

// DefaultSkipPatterns excludes shaders that sample input channels; the
// generation environment provides none.
var DefaultSkipPatterns = []string{"iChannel"}

type Options struct {
	// RatePerSecond caps embedding calls; 0 or less disables pacing.
	RatePerSecond float64
	// Burst is the number of calls allowed back to back; values below 1
	// mean 1.
	Burst int
	// SkipPatterns drops records whose code contains any of them. Nil uses
	// DefaultSkipPatterns; an empty non-nil slice skips nothing.
	SkipPatterns []string
}

// Report counts what a run did with each record.
type Report struct {
	Total   int `json:"total"`
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Ingester embeds catalog records and upserts them into the index.
type Ingester struct {
	embedder embedding.Embedder
	index    store.VectorIndex
	limiter  *rate.Limiter
	skip     []string
	metrics  *metrics.Metrics
}

func New(embedder embedding.Embedder, index store.VectorIndex, opts Options, m *metrics.Metrics) *Ingester {
	burst := max(opts.Burst, 1)
	limiter := rate.NewLimiter(rate.Inf, burst)
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	skip := opts.SkipPatterns
	if skip == nil {
		skip = DefaultSkipPatterns
	}
	return &Ingester{embedder: embedder, index: index, limiter: limiter, skip: skip, metrics: m}
}

// Run ingests examples in order. Records that cannot be embedded or stored
// are logged and counted as failed; the run stops early only when ctx ends or
// the index becomes unavailable.
func (g *Ingester) Run(ctx context.Context, examples []store.ShaderExample) (Report, error) {
	var report Report
	for i, ex := range examples {
		report.Total++
		if reason := g.skipReason(ex); reason != "" {
			slog.Info("skipping catalog record", "index", i, "id", ex.ID, "reason", reason)
			report.Skipped++
			g.metrics.CountIngested(ResultSkipped)
			continue
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return report, err
		}

		err := g.ingestOne(ctx, ex)
		switch {
		case err == nil:
			report.Indexed++
			g.metrics.CountIngested(ResultIndexed)
			slog.Debug("indexed catalog record", "id", ex.ID, "title", ex.Title)
		case ctx.Err() != nil:
			return report, ctx.Err()
		default:
			report.Failed++
			g.metrics.CountIngested(ResultFailed)
			slog.Warn("catalog record failed", "id", ex.ID, "error", err,
				"code", vwerr.CodeOf(err), "stage", vwerr.StageOf(err))
			if vwerr.IsUnavailable(err) {
				return report, err
			}
		}
	}
	return report, nil
}

func (g *Ingester) skipReason(ex store.ShaderExample) string {
	switch {
	case ex.ID == "":
		return "missing id"
	case strings.TrimSpace(ex.Code) == "":
		return "missing code"
	case strings.TrimSpace(ex.Title) == "":
		return "missing title"
	}
	for _, pattern := range g.skip {
		if pattern != "" && strings.Contains(ex.Code, pattern) {
			return "code contains " + pattern
		}
	}
	return ""
}

func (g *Ingester) ingestOne(ctx context.Context, ex store.ShaderExample) error {
	vec, err := g.embedder.Embed(ctx, ex.EmbeddingText())
	if err != nil {
		return err
	}
	return g.index.Upsert(ctx, ex, vec)
}
