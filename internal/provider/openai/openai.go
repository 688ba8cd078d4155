// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package openai

import (
	"context"
	"errors"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/visuworld/visuworld/internal/provider"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
	"github.com/visuworld/visuworld/pkg/health"
)

// Config holds OpenAI provider configuration.
type Config struct {
	APIKey string
	// BaseURL points the client at an OpenAI-compatible endpoint.
	BaseURL string
	// Name overrides the provider name for compatible endpoints.
	Name string
	// Models overrides the advertised model list.
	Models []provider.ModelInfo
}

// Provider implements provider.Provider on the Chat Completions API.
type Provider struct {
	client openaisdk.Client
	name   string
	models []provider.ModelInfo
	health *provider.HealthTracker
}

var (
	_ provider.Provider       = (*Provider)(nil)
	_ provider.HealthReporter = (*Provider)(nil)
)

func New(cfg Config) (*Provider, error) {
	name := cfg.Name
	if name == "" {
		name = string(provider.ProviderOpenAI)
	}
	if cfg.APIKey == "" {
		return nil, vwerr.New(vwerr.CodeProviderRequestInvalid, name+": missing api_key in config",
			vwerr.FieldProvider(name))
	}

	// Retries are driven by the generation client's policy.
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	tracker, err := provider.NewHealthTracker(provider.DefaultHealthCooldown)
	if err != nil {
		return nil, err
	}

	models := cfg.Models
	if models == nil {
		models = knownModels()
	}

	return &Provider{
		client: openaisdk.NewClient(opts...),
		name:   name,
		models: models,
		health: tracker,
	}, nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Available(_ context.Context) bool { return p.health.IsHealthy() }

func (p *Provider) RecordFailure(status int) { p.health.RecordFailure(status) }
func (p *Provider) RecordSuccess() { p.health.RecordSuccess() }
func (p *Provider) HealthMetrics() health.Metrics { return p.health.HealthMetrics() }

// Client exposes the SDK client for the embeddings API.
func (p *Provider) Client() openaisdk.Client { return p.client }

func knownModels() []provider.ModelInfo {
	return []provider.ModelInfo{
		{ID: "gpt-4.1", Name: "GPT-4.1", Provider: "openai", MaxContextTokens: 1047576, MaxOutputTokens: 32768},
		{ID: "gpt-4.1-mini", Name: "GPT-4.1 Mini", Provider: "openai", MaxContextTokens: 1047576, MaxOutputTokens: 32768},
		{ID: "gpt-4o", Name: "GPT-4o", Provider: "openai", MaxContextTokens: 128000, MaxOutputTokens: 16384},
		{ID: "o4-mini", Name: "o4-mini", Provider: "openai", MaxContextTokens: 200000, MaxOutputTokens: 100000},
	}
}

func (p *Provider) ListModels(_ context.Context) ([]provider.ModelInfo, error) {
	return p.models, nil
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeProviderRequestInvalid, p.name+": building request",
			vwerr.FieldProvider(p.name))
	}

	ch := make(chan provider.ChatEvent, 16)
	go func() {
		defer close(ch)
		p.streamChat(ctx, params, ch)
	}()
	return ch, nil
}

func (p *Provider) Status(ctx context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: p.Available(ctx), Provider: p.name, Message: "ok"}, nil
}

func (p *Provider) Close() error { return nil }

func buildParams(req provider.ChatRequest) (openaisdk.ChatCompletionNewParams, error) {
	var msgs []openaisdk.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		msgs = append(msgs, openaisdk.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case provider.MessageRoleUser:
			msgs = append(msgs, openaisdk.UserMessage(m.Content))
		case provider.MessageRoleAssistant:
			msgs = append(msgs, openaisdk.AssistantMessage(m.Content))
		case provider.MessageRoleSystem:
			msgs = append(msgs, openaisdk.SystemMessage(m.Content))
		default:
			return openaisdk.ChatCompletionNewParams{}, vwerr.Errorf(vwerr.CodeProviderRequestInvalid,
				"unsupported message role %q", m.Role)
		}
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
		StreamOptions: openaisdk.ChatCompletionStreamOptionsParam{
			IncludeUsage: param.NewOpt(true),
		},
	}
	if req.Options.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.Options.MaxTokens))
	}
	if req.Options.Temperature != nil {
		params.Temperature = param.NewOpt(float64(*req.Options.Temperature))
	}
	return params, nil
}

func (p *Provider) streamChat(ctx context.Context, params openaisdk.ChatCompletionNewParams, ch chan<- provider.ChatEvent) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				ch <- provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: choice.Delta.Content}
			}
		}
		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			ch <- provider.ChatEvent{
				Type: provider.EventTypeUsage,
				Usage: &provider.Usage{
					InputTokens:  int(chunk.Usage.PromptTokens),
					OutputTokens: int(chunk.Usage.CompletionTokens),
				},
			}
		}
	}

	if err := stream.Err(); err != nil {
		ch <- provider.ErrorEvent(err, StatusOf(err), p.health)
		return
	}

	p.health.RecordSuccess()
	ch <- provider.ChatEvent{Type: provider.EventTypeDone}
}

// StatusOf extracts the HTTP status of an OpenAI API error, or 0 when the
// request never got a response.
func StatusOf(err error) int {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
