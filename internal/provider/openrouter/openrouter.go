// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

// Package openrouter configures the OpenAI-compatible provider for the
// OpenRouter gateway.
package openrouter

import (
	"github.com/visuworld/visuworld/internal/provider"
	"github.com/visuworld/visuworld/internal/provider/openai"
)

const DefaultBaseURL = "https://openrouter.ai/api/v1"

type Config struct {
	APIKey  string
	BaseURL string
}

// New returns an OpenAI-compatible provider named "openrouter". Model names
// keep the upstream vendor prefix, e.g. "openrouter/google/gemini-2.5-pro".
func New(cfg Config) (*openai.Provider, error) {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return openai.New(openai.Config{
		APIKey:  cfg.APIKey,
		BaseURL: base,
		Name:    string(provider.ProviderOpenRouter),
		Models:  knownModels(),
	})
}

func knownModels() []provider.ModelInfo {
	const name = "openrouter"
	return []provider.ModelInfo{
		{ID: "google/gemini-2.5-pro", Name: "Gemini 2.5 Pro", Provider: name, MaxContextTokens: 1048576, MaxOutputTokens: 65536},
		{ID: "google/gemini-2.0-flash-001", Name: "Gemini 2.0 Flash", Provider: name, MaxContextTokens: 1048576, MaxOutputTokens: 8192},
		{ID: "anthropic/claude-sonnet-4", Name: "Claude Sonnet 4", Provider: name, MaxContextTokens: 200000, MaxOutputTokens: 64000},
		{ID: "openai/gpt-4.1", Name: "GPT-4.1", Provider: name, MaxContextTokens: 1047576, MaxOutputTokens: 32768},
	}
}
