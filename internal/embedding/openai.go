// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package embedding

import (
	"context"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	provopenai "github.com/visuworld/visuworld/internal/provider/openai"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

const (
	DefaultOpenAIModel      = "text-embedding-3-small"
	DefaultOpenAIDimensions = 1536
)

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// OpenAI embeds text with the OpenAI embeddings API.
type OpenAI struct {
	client     openaisdk.Client
	model      string
	dimensions int
}

var _ Embedder = (*OpenAI)(nil)

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, vwerr.New(vwerr.CodeEmbeddingConfigInvalid, "openai embeddings require an api_key",
			vwerr.FieldProvider("openai"))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultOpenAIDimensions
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAI{client: openaisdk.NewClient(opts...), model: cfg.Model, dimensions: cfg.Dimensions}, nil
}

func (o *OpenAI) Model() string { return o.model }
func (o *OpenAI) Dimensions() int { return o.dimensions }

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openaisdk.EmbeddingNewParams{
		Model:          openaisdk.EmbeddingModel(o.model),
		Input:          openaisdk.EmbeddingNewParamsInputUnion{OfString: openaisdk.String(text)},
		EncodingFormat: openaisdk.EmbeddingNewParamsEncodingFormatFloat,
	}
	// Only the text-embedding-3 family accepts a requested size.
	if strings.HasPrefix(o.model, "text-embedding-3") {
		params.Dimensions = openaisdk.Int(int64(o.dimensions))
	}

	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, classify(err, provopenai.StatusOf(err), "openai", o.model)
	}
	if len(resp.Data) == 0 {
		return nil, checkDimensions(nil, o.dimensions, "openai", o.model)
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	if err := checkDimensions(vec, o.dimensions, "openai", o.model); err != nil {
		return nil, err
	}
	return vec, nil
}
