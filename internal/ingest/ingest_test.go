// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package ingest_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visuworld/visuworld/internal/ingest"
	"github.com/visuworld/visuworld/internal/metrics"
	"github.com/visuworld/visuworld/internal/store"
	"github.com/visuworld/visuworld/internal/store/sqlite"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

// keywordEmbedder maps text onto three axes by keyword so that retrieval
// order is predictable.
type keywordEmbedder struct {
	texts  []string
	failOn string
}

func (k *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	k.texts = append(k.texts, text)
	if k.failOn != "" && strings.Contains(text, k.failOn) {
		return nil, vwerr.New(vwerr.CodeEmbeddingRequestRejected, "rejected",
			vwerr.FieldStage(vwerr.StageEmbedding), vwerr.FieldUpstreamStatus(400))
	}
	vec := []float32{0.01, 0.01, 0.01}
	for i, word := range []string{"sphere", "noise", "tunnel"} {
		if strings.Contains(text, word) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func (k *keywordEmbedder) Dimensions() int { return 3 }
func (k *keywordEmbedder) Model() string { return "keyword" }

func newIndex(t *testing.T) *sqlite.Index {
	t.Helper()
	idx, err := sqlite.NewIndex(filepath.Join(t.TempDir(), "vectors.db"), 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func catalog() []store.ShaderExample {
	return []store.ShaderExample{
		{ID: "a", Title: "Glowing sphere", Description: "sphere", Code: "float sphere(){}"},
		{ID: "b", Title: "Noise field", Description: "value noise", Code: "float noise(){}"},
		{ID: "c", Title: "Webcam", Description: "uses a texture", Code: "texture(iChannel0, uv)"},
		{ID: "d", Title: "Empty", Code: "  "},
		{ID: "e", Title: "Tunnel", Description: "tunnel", Code: "float tunnel(){}"},
	}
}

func TestRun_IndexesAndSkips(t *testing.T) {
	idx := newIndex(t)
	emb := &keywordEmbedder{}
	m := metrics.New()
	g := ingest.New(emb, idx, ingest.Options{}, m)

	report, err := g.Run(context.Background(), catalog())
	require.NoError(t, err)
	assert.Equal(t, ingest.Report{Total: 5, Indexed: 3, Skipped: 2}, report)

	count, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	assert.Equal(t, "Glowing sphere\nsphere\nfloat sphere(){}", emb.texts[0])

	vec, err := emb.Embed(context.Background(), "a noise shader")
	require.NoError(t, err)
	got, err := idx.Query(context.Background(), vec, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Example.ID)

	n, err := testutil.GatherAndCount(m.Registry(), "visuworld_ingested_examples_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "indexed and skipped series")
}

func TestRun_CustomSkipPatterns(t *testing.T) {
	idx := newIndex(t)
	g := ingest.New(&keywordEmbedder{}, idx, ingest.Options{SkipPatterns: []string{}}, nil)

	report, err := g.Run(context.Background(), catalog())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Indexed, "iChannel shaders are kept when no patterns are set")
	assert.Equal(t, 1, report.Skipped)
}

func TestRun_RecordFailuresAreSkipped(t *testing.T) {
	idx := newIndex(t)
	g := ingest.New(&keywordEmbedder{failOn: "Noise"}, idx, ingest.Options{}, nil)

	report, err := g.Run(context.Background(), catalog())
	require.NoError(t, err)
	assert.Equal(t, ingest.Report{Total: 5, Indexed: 2, Skipped: 2, Failed: 1}, report)

	_, err = idx.Get(context.Background(), "b")
	assert.True(t, vwerr.IsNotFound(err))
}

func TestRun_ReingestReplaces(t *testing.T) {
	idx := newIndex(t)
	g := ingest.New(&keywordEmbedder{}, idx, ingest.Options{}, nil)

	_, err := g.Run(context.Background(), catalog()[:1])
	require.NoError(t, err)
	updated := store.ShaderExample{ID: "a", Title: "Renamed", Code: "float tunnel(){}"}
	_, err = g.Run(context.Background(), []store.ShaderExample{updated})
	require.NoError(t, err)

	got, err := idx.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Empty(t, got.Description)
}

func TestRun_RateLimited(t *testing.T) {
	idx := newIndex(t)
	g := ingest.New(&keywordEmbedder{}, idx, ingest.Options{RatePerSecond: 20}, nil)

	start := time.Now()
	report, err := g.Run(context.Background(), catalog())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Indexed)
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond, "three calls at 20/s wait two intervals")
}

func TestRun_StopsOnCancel(t *testing.T) {
	idx := newIndex(t)
	g := ingest.New(&keywordEmbedder{}, idx, ingest.Options{RatePerSecond: 0.001}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	report, err := g.Run(ctx, catalog())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "would exceed context deadline"))
	assert.Equal(t, 1, report.Indexed, "the first call uses the initial burst")
}
