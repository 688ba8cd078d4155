// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

// Package generation asks a text-generation provider for shader code,
// selecting the model by quality tier and retrying transient failures.
package generation

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/visuworld/visuworld/internal/metrics"
	"github.com/visuworld/visuworld/internal/provider"
	"github.com/visuworld/visuworld/internal/retry"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

// Tier selects between the standard and pro model configurations.
type Tier int

const (
	TierStandard Tier = iota
	TierPro
)

// TierOf maps the isPro request flag to a tier.
func TierOf(pro bool) Tier {
	if pro {
		return TierPro
	}
	return TierStandard
}

func (t Tier) String() string {
	if t == TierPro {
		return "pro"
	}
	return "standard"
}

// Router resolves a "provider/model" reference. *provider.Registry
// implements it.
type Router interface {
	Route(ctx context.Context, ref string, exclude []string) (provider.Provider, string, error)
}

// Config names the model reference for each tier.
type Config struct {
	Standard string
	Pro      string
	// Temperature is nil for the provider default.
	Temperature *float32
	MaxTokens   int
}

// Client generates text from a composed prompt.
type Client struct {
	router  Router
	cfg     Config
	policy  retry.Policy
	metrics *metrics.Metrics
}

func New(router Router, cfg Config, policy retry.Policy, m *metrics.Metrics) *Client {
	return &Client{router: router, cfg: cfg, policy: policy, metrics: m}
}

// Ref returns the model reference used for tier.
func (c *Client) Ref(tier Tier) string {
	if tier == TierPro {
		return c.cfg.Pro
	}
	return c.cfg.Standard
}

// Generate sends prompt as a single user message and returns the
// concatenated reply. Transient failures are retried under the client policy,
// skipping providers that already failed for this call while alternatives
// remain. When none remain the last provider is retried directly, even while
// its health cooldown steers other requests away.
func (c *Client) Generate(ctx context.Context, prompt string, tier Tier) (string, error) {
	ref := c.Ref(tier)
	var (
		failed    []string
		last      provider.Provider
		lastModel string
	)

	call := retry.Call{
		Stage:     vwerr.StageGeneration,
		Exhausted: vwerr.CodeGenerationRetryExhausted,
		Notify: func(int, error, time.Duration) {
			c.metrics.CountRetry(vwerr.StageGeneration)
		},
	}
	return retry.Value(ctx, c.policy, call, func(ctx context.Context) (string, error) {
		p, model, err := c.route(ctx, ref, failed)
		switch {
		case err != nil && last != nil && vwerr.HasCode(err, vwerr.CodeProviderAllUnavailable):
			p, model = last, lastModel
		case err != nil:
			return "", err
		}
		last, lastModel = p, model

		text, err := c.attempt(ctx, p, model, prompt, tier)
		if err != nil && !slices.Contains(failed, p.Name()) {
			failed = append(failed, p.Name())
		}
		return text, err
	})
}

// route prefers providers that have not failed yet and falls back to the full
// candidate list once they are all exhausted.
func (c *Client) route(ctx context.Context, ref string, failed []string) (provider.Provider, string, error) {
	p, model, err := c.router.Route(ctx, ref, failed)
	if err != nil && len(failed) > 0 && vwerr.HasCode(err, vwerr.CodeProviderAllUnavailable) {
		p, model, err = c.router.Route(ctx, ref, nil)
	}
	if err != nil {
		return nil, "", vwerr.With(err, vwerr.FieldStage(vwerr.StageGeneration), vwerr.FieldRetryable(false))
	}
	return p, model, nil
}

func (c *Client) attempt(ctx context.Context, p provider.Provider, model, prompt string, tier Tier) (string, error) {
	req := provider.UserPrompt(model, prompt)
	req.Options = provider.ChatOptions{Temperature: c.cfg.Temperature, MaxTokens: c.cfg.MaxTokens}

	events, err := p.Chat(ctx, req)
	if err != nil {
		status := vwerr.UpstreamStatusOf(err)
		if vwerr.IsInvalidInput(err) {
			return "", classify(err, status, false, p.Name(), model)
		}
		return "", classify(err, status, vwerr.IsRetryableStatus(status), p.Name(), model)
	}

	var (
		buf       strings.Builder
		usage     *provider.Usage
		streamErr error
	)
	for ev := range events {
		switch ev.Type {
		case provider.EventTypeTextDelta:
			buf.WriteString(ev.Text)
		case provider.EventTypeUsage:
			usage = ev.Usage
		case provider.EventTypeDone:
			if ev.Usage != nil {
				usage = ev.Usage
			}
		case provider.EventTypeError:
			if streamErr == nil {
				streamErr = classify(errors.New(ev.Error), ev.Status, vwerr.IsRetryableStatus(ev.Status), p.Name(), model)
			}
		}
	}

	if streamErr != nil {
		if ctx.Err() != nil {
			return "", vwerr.Recode(ctx.Err(), vwerr.CodeGenerationRequestUpstreamFailure, "generation interrupted",
				vwerr.FieldStage(vwerr.StageGeneration), vwerr.FieldProvider(p.Name()), vwerr.FieldModel(model),
				vwerr.FieldRetryable(false))
		}
		return "", streamErr
	}

	text := buf.String()
	if strings.TrimSpace(text) == "" {
		return "", vwerr.New(vwerr.CodeGenerationResponseEmpty, "provider returned no text",
			vwerr.FieldStage(vwerr.StageGeneration), vwerr.FieldProvider(p.Name()), vwerr.FieldModel(model),
			vwerr.FieldRetryable(true))
	}

	attrs := []any{"provider", p.Name(), "model", model, "tier", tier.String(), "chars", len(text)}
	if usage != nil {
		attrs = append(attrs, "input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens)
	}
	slog.Debug("generation complete", attrs...)
	return text, nil
}

// classify converts a provider failure into a generation error. Transient
// failures become upstream failures; the rest are rejections.
func classify(err error, status int, retryable bool, providerName, model string) error {
	code := vwerr.CodeGenerationRequestRejected
	if retryable {
		code = vwerr.CodeGenerationRequestUpstreamFailure
	}
	return vwerr.Recode(err, code, providerName+" generation request failed",
		vwerr.FieldStage(vwerr.StageGeneration),
		vwerr.FieldProvider(providerName),
		vwerr.FieldModel(model),
		vwerr.FieldUpstreamStatus(status),
		vwerr.FieldRetryable(retryable),
	)
}
