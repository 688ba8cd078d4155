// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package embedding

import (
	"context"

	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

// Options selects the base embedding provider.
type Options struct {
	Provider   string
	Model      string
	Dimensions int
	APIKey     string
	BaseURL    string
}

// New builds the base embedder for opts.Provider ("openai" or "google").
func New(ctx context.Context, opts Options) (Embedder, error) {
	switch opts.Provider {
	case "", "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey: opts.APIKey, BaseURL: opts.BaseURL, Model: opts.Model, Dimensions: opts.Dimensions,
		})
	case "google":
		return NewGoogle(ctx, GoogleConfig{
			APIKey: opts.APIKey, BaseURL: opts.BaseURL, Model: opts.Model, Dimensions: opts.Dimensions,
		})
	default:
		return nil, vwerr.Errorf(vwerr.CodeEmbeddingConfigInvalid,
			"unsupported embedding provider %q (supported: openai, google)", opts.Provider)
	}
}
