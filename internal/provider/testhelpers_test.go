// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package provider_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/visuworld/visuworld/internal/provider"
	"github.com/visuworld/visuworld/pkg/health"
)

// mockProvider streams a fixed reply and tracks health like the real
// providers do.
type mockProvider struct {
	name    string
	reply   string
	tracker *provider.HealthTracker
	closed  bool
}

func newMockProvider(t *testing.T, name string) *mockProvider {
	t.Helper()
	tracker, err := provider.NewHealthTracker(provider.DefaultHealthCooldown)
	require.NoError(t, err)
	return &mockProvider{name: name, reply: "hello from " + name, tracker: tracker}
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Available(context.Context) bool { return m.tracker.IsHealthy() }

func (m *mockProvider) ListModels(context.Context) ([]provider.ModelInfo, error) { return nil, nil }

func (m *mockProvider) Chat(context.Context, provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	ch := make(chan provider.ChatEvent, 2)
	ch <- provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: m.reply}
	ch <- provider.ChatEvent{Type: provider.EventTypeDone}
	close(ch)
	return ch, nil
}

func (m *mockProvider) Status(ctx context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: m.Available(ctx), Provider: m.name}, nil
}

func (m *mockProvider) Close() error {
	m.closed = true
	return nil
}

func (m *mockProvider) RecordFailure(status int) { m.tracker.RecordFailure(status) }

func (m *mockProvider) RecordSuccess() { m.tracker.RecordSuccess() }

func (m *mockProvider) HealthMetrics() health.Metrics { return m.tracker.HealthMetrics() }

// plainProvider does not report health.
type plainProvider struct{ name string }

func (p *plainProvider) Name() string { return p.name }

func (p *plainProvider) Available(context.Context) bool { return true }

func (p *plainProvider) ListModels(context.Context) ([]provider.ModelInfo, error) { return nil, nil }

func (p *plainProvider) Chat(context.Context, provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	ch := make(chan provider.ChatEvent)
	close(ch)
	return ch, nil
}

func (p *plainProvider) Status(context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: true, Provider: p.name}, nil
}

func (p *plainProvider) Close() error { return nil }
