// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package anthropic

import (
	"context"
	"errors"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/visuworld/visuworld/internal/provider"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
	"github.com/visuworld/visuworld/pkg/health"
)

// defaultMaxTokens bounds a shader response when the request sets no limit;
// the Messages API requires one.
const defaultMaxTokens = 8192

type Config struct {
	APIKey  string
	BaseURL string
}

// Provider implements provider.Provider on the Anthropic Messages API.
type Provider struct {
	client anthropicsdk.Client
	health *provider.HealthTracker
}

var (
	_ provider.Provider       = (*Provider)(nil)
	_ provider.HealthReporter = (*Provider)(nil)
)

func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, vwerr.New(vwerr.CodeProviderRequestInvalid, "anthropic: missing api_key in config",
			vwerr.FieldProvider("anthropic"))
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	tracker, err := provider.NewHealthTracker(provider.DefaultHealthCooldown)
	if err != nil {
		return nil, err
	}
	return &Provider{client: anthropicsdk.NewClient(opts...), health: tracker}, nil
}

func (p *Provider) Name() string { return string(provider.ProviderAnthropic) }

func (p *Provider) Available(_ context.Context) bool { return p.health.IsHealthy() }

func (p *Provider) RecordFailure(status int) { p.health.RecordFailure(status) }

func (p *Provider) RecordSuccess() { p.health.RecordSuccess() }

func (p *Provider) HealthMetrics() health.Metrics { return p.health.HealthMetrics() }

func (p *Provider) ListModels(_ context.Context) ([]provider.ModelInfo, error) {
	return []provider.ModelInfo{
		{ID: "claude-sonnet-4-5", Name: "Claude Sonnet 4.5", Provider: "anthropic", MaxContextTokens: 200000, MaxOutputTokens: 64000},
		{ID: "claude-opus-4-1", Name: "Claude Opus 4.1", Provider: "anthropic", MaxContextTokens: 200000, MaxOutputTokens: 32000},
		{ID: "claude-haiku-4-5", Name: "Claude Haiku 4.5", Provider: "anthropic", MaxContextTokens: 200000, MaxOutputTokens: 64000},
	}, nil
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeProviderRequestInvalid, "anthropic: building request",
			vwerr.FieldProvider("anthropic"))
	}

	ch := make(chan provider.ChatEvent, 16)
	go func() {
		defer close(ch)
		p.streamChat(ctx, params, ch)
	}()
	return ch, nil
}

func (p *Provider) Status(ctx context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: p.Available(ctx), Provider: p.Name(), Message: "ok"}, nil
}

func (p *Provider) Close() error { return nil }

func buildParams(req provider.ChatRequest) (anthropicsdk.MessageNewParams, error) {
	var (
		msgs   []anthropicsdk.MessageParam
		system []anthropicsdk.TextBlockParam
	)
	if req.SystemPrompt != "" {
		system = append(system, anthropicsdk.TextBlockParam{Text: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		switch m.Role {
		case provider.MessageRoleUser:
			msgs = append(msgs, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(m.Content)))
		case provider.MessageRoleAssistant:
			msgs = append(msgs, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(m.Content)))
		case provider.MessageRoleSystem:
			system = append(system, anthropicsdk.TextBlockParam{Text: m.Content})
		default:
			return anthropicsdk.MessageNewParams{}, vwerr.Errorf(vwerr.CodeProviderRequestInvalid,
				"unsupported message role %q", m.Role)
		}
	}

	maxTokens := int64(req.Options.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		Messages:  msgs,
		MaxTokens: maxTokens,
		System:    system,
	}
	if req.Options.Temperature != nil {
		params.Temperature = anthropicsdk.Float(float64(*req.Options.Temperature))
	}
	return params, nil
}

func (p *Provider) streamChat(ctx context.Context, params anthropicsdk.MessageNewParams, ch chan<- provider.ChatEvent) {
	stream := p.client.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var usage provider.Usage
	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			usage.InputTokens = int(event.Message.Usage.InputTokens)
		case "content_block_delta":
			if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				ch <- provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: event.Delta.Text}
			}
		case "message_delta":
			usage.OutputTokens = int(event.Usage.OutputTokens)
		}
	}

	if err := stream.Err(); err != nil {
		ch <- provider.ErrorEvent(err, StatusOf(err), p.health)
		return
	}

	p.health.RecordSuccess()
	ch <- provider.ChatEvent{Type: provider.EventTypeUsage, Usage: &usage}
	ch <- provider.ChatEvent{Type: provider.EventTypeDone}
}

// StatusOf extracts the HTTP status of an Anthropic API error, or 0.
func StatusOf(err error) int {
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
