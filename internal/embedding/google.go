// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package embedding

import (
	"context"

	"google.golang.org/genai"

	provgoogle "github.com/visuworld/visuworld/internal/provider/google"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

const (
	DefaultGoogleModel      = "text-embedding-004"
	DefaultGoogleDimensions = 768
)

type GoogleConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// Google embeds text with the Gemini embedContent API.
type Google struct {
	client     *genai.Client
	model      string
	dimensions int
}

var _ Embedder = (*Google)(nil)

func NewGoogle(ctx context.Context, cfg GoogleConfig) (*Google, error) {
	if cfg.APIKey == "" {
		return nil, vwerr.New(vwerr.CodeEmbeddingConfigInvalid, "google embeddings require an api_key",
			vwerr.FieldProvider("google"))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGoogleModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultGoogleDimensions
	}

	client, err := provgoogle.NewClient(ctx, provgoogle.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL})
	if err != nil {
		return nil, vwerr.Recode(err, vwerr.CodeEmbeddingConfigInvalid, "creating google embedding client")
	}
	return &Google{client: client, model: cfg.Model, dimensions: cfg.Dimensions}, nil
}

func (g *Google) Model() string { return g.model }
func (g *Google) Dimensions() int { return g.dimensions }

func (g *Google) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	cfg := &genai.EmbedContentConfig{OutputDimensionality: genai.Ptr(int32(g.dimensions))}

	resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, classify(err, provgoogle.StatusOf(err), "google", g.model)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, checkDimensions(nil, g.dimensions, "google", g.model)
	}

	vec := resp.Embeddings[0].Values
	if err := checkDimensions(vec, g.dimensions, "google", g.model); err != nil {
		return nil, err
	}
	return vec, nil
}
