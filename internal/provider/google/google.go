// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package google

import (
	"context"
	"errors"

	"google.golang.org/genai"

	"github.com/visuworld/visuworld/internal/provider"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
	"github.com/visuworld/visuworld/pkg/health"
)

type Config struct {
	APIKey string
	// BaseURL overrides the Gemini API endpoint.
	BaseURL string
}

// Provider implements provider.Provider on the Gemini API.
type Provider struct {
	client *genai.Client
	health *provider.HealthTracker
}

var (
	_ provider.Provider       = (*Provider)(nil)
	_ provider.HealthReporter = (*Provider)(nil)
)

func New(cfg Config) (*Provider, error) {
	client, err := NewClient(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	tracker, err := provider.NewHealthTracker(provider.DefaultHealthCooldown)
	if err != nil {
		return nil, err
	}
	return &Provider{client: client, health: tracker}, nil
}

// NewClient builds a Gemini API client; the embedding package shares it.
func NewClient(ctx context.Context, cfg Config) (*genai.Client, error) {
	if cfg.APIKey == "" {
		return nil, vwerr.New(vwerr.CodeProviderRequestInvalid, "google: missing api_key in config",
			vwerr.FieldProvider("google"))
	}

	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeProviderRequestInvalid, "google: creating client",
			vwerr.FieldProvider("google"))
	}
	return client, nil
}

func (p *Provider) Name() string { return string(provider.ProviderGoogle) }

func (p *Provider) Available(_ context.Context) bool { return p.health.IsHealthy() }

func (p *Provider) RecordFailure(status int) { p.health.RecordFailure(status) }

func (p *Provider) RecordSuccess() { p.health.RecordSuccess() }

func (p *Provider) HealthMetrics() health.Metrics { return p.health.HealthMetrics() }

func (p *Provider) Client() *genai.Client { return p.client }

func (p *Provider) ListModels(_ context.Context) ([]provider.ModelInfo, error) {
	return []provider.ModelInfo{
		{ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", Provider: "google", MaxContextTokens: 1048576, MaxOutputTokens: 65536},
		{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", Provider: "google", MaxContextTokens: 1048576, MaxOutputTokens: 65536},
		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", Provider: "google", MaxContextTokens: 1048576, MaxOutputTokens: 8192},
	}, nil
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, vwerr.Wrap(err, vwerr.CodeProviderRequestInvalid, "google: converting messages",
			vwerr.FieldProvider("google"))
	}
	config := buildConfig(req)

	ch := make(chan provider.ChatEvent, 16)
	go func() {
		defer close(ch)
		p.streamChat(ctx, req.Model, contents, config, ch)
	}()
	return ch, nil
}

func (p *Provider) Status(ctx context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: p.Available(ctx), Provider: p.Name(), Message: "ok"}, nil
}

func (p *Provider) Close() error { return nil }

func buildConfig(req provider.ChatRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.Options.Temperature != nil {
		cfg.Temperature = genai.Ptr(*req.Options.Temperature)
	}
	if req.Options.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.Options.MaxTokens)
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	return cfg
}

// convertMessages maps roles onto Gemini's user/model roles. System messages
// are folded into the config's system instruction by the caller.
func convertMessages(msgs []provider.Message) ([]*genai.Content, error) {
	var out []*genai.Content
	for _, m := range msgs {
		switch m.Role {
		case provider.MessageRoleUser:
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleUser))
		case provider.MessageRoleAssistant:
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleModel))
		case provider.MessageRoleSystem:
			continue
		default:
			return nil, vwerr.Errorf(vwerr.CodeProviderRequestInvalid, "unsupported message role %q", m.Role)
		}
	}
	return out, nil
}

func (p *Provider) streamChat(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
	ch chan<- provider.ChatEvent,
) {
	var usage *provider.Usage
	for result, err := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			ch <- provider.ErrorEvent(err, StatusOf(err), p.health)
			return
		}

		for _, candidate := range result.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" && !part.Thought {
					ch <- provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: part.Text}
				}
			}
		}
		if result.UsageMetadata != nil {
			usage = &provider.Usage{
				InputTokens:  int(result.UsageMetadata.PromptTokenCount),
				OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
			}
		}
	}

	p.health.RecordSuccess()
	if usage != nil {
		ch <- provider.ChatEvent{Type: provider.EventTypeUsage, Usage: usage}
	}
	ch <- provider.ChatEvent{Type: provider.EventTypeDone}
}

// StatusOf extracts the HTTP status of a Gemini API error, or 0.
func StatusOf(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code
	}
	return 0
}
