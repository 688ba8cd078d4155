// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package provider_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visuworld/visuworld/internal/provider"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		ref       string
		wantProv  string
		wantModel string
		wantErr   bool
	}{
		{ref: "google/gemini-2.5-pro", wantProv: "google", wantModel: "gemini-2.5-pro"},
		{ref: "openrouter/google/gemini-2.5-pro", wantProv: "openrouter", wantModel: "google/gemini-2.5-pro"},
		{ref: "gemini-2.5-pro", wantErr: true},
		{ref: "google/", wantErr: true},
		{ref: "/model", wantErr: true},
		{ref: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			prov, model, err := provider.ParseRef(tt.ref)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, vwerr.HasCode(err, vwerr.CodeProviderInvalidModelRef))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantProv, prov)
			assert.Equal(t, tt.wantModel, model)
		})
	}
}

func TestRegistry_RouteToRequestedProvider(t *testing.T) {
	r := provider.NewRegistry()
	r.Register("google", newMockProvider(t, "google"))

	p, model, err := r.Route(context.Background(), "google/gemini-2.0-flash", nil)
	require.NoError(t, err)
	assert.Equal(t, "google", p.Name())
	assert.Equal(t, "gemini-2.0-flash", model)
}

func TestRegistry_FailoverWhenUnhealthy(t *testing.T) {
	google := newMockProvider(t, "google")
	openai := newMockProvider(t, "openai")
	r := provider.NewRegistry()
	r.Register("google", google)
	r.Register("openai", openai)
	require.NoError(t, r.SetFailover([]string{"openai/gpt-4.1"}))

	google.RecordFailure(http.StatusServiceUnavailable)

	p, model, err := r.Route(context.Background(), "google/gemini-2.5-pro", nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, "gpt-4.1", model)
}

func TestRegistry_FailoverWhenProviderNotConfigured(t *testing.T) {
	r := provider.NewRegistry()
	r.Register("openai", newMockProvider(t, "openai"))
	require.NoError(t, r.SetFailover([]string{"openai/gpt-4.1-mini"}))

	p, model, err := r.Route(context.Background(), "google/gemini-2.0-flash", nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, "gpt-4.1-mini", model)
}

func TestRegistry_ExcludeSkipsTriedProviders(t *testing.T) {
	r := provider.NewRegistry()
	r.Register("google", newMockProvider(t, "google"))
	r.Register("anthropic", newMockProvider(t, "anthropic"))
	require.NoError(t, r.SetFailover([]string{"anthropic/claude-sonnet-4-5"}))

	p, _, err := r.Route(context.Background(), "google/gemini-2.0-flash", []string{"google"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	_, _, err = r.Route(context.Background(), "google/gemini-2.0-flash", []string{"google", "anthropic"})
	require.Error(t, err)
	assert.True(t, vwerr.IsUnavailable(err))
	assert.Equal(t, http.StatusServiceUnavailable, vwerr.HTTPStatus(err))
}

func TestRegistry_RouteRejectsUnqualifiedRef(t *testing.T) {
	r := provider.NewRegistry()
	_, _, err := r.Route(context.Background(), "gemini", nil)
	require.Error(t, err)
	assert.True(t, vwerr.HasCode(err, vwerr.CodeProviderInvalidModelRef))
}

func TestRegistry_SetFailoverValidates(t *testing.T) {
	r := provider.NewRegistry()
	r.Register("google", newMockProvider(t, "google"))

	err := r.SetFailover([]string{"openai/gpt-4.1"})
	require.Error(t, err)
	assert.True(t, vwerr.IsNotFound(err))

	err = r.SetFailover([]string{"google"})
	require.Error(t, err)
	assert.True(t, vwerr.HasCode(err, vwerr.CodeProviderInvalidModelRef))
}

func TestRegistry_CandidatesDeduplicates(t *testing.T) {
	r := provider.NewRegistry()
	r.Register("google", newMockProvider(t, "google"))
	require.NoError(t, r.SetFailover([]string{"google/gemini-2.0-flash", "google/gemini-2.5-flash"}))

	assert.Equal(t,
		[]string{"google/gemini-2.0-flash", "google/gemini-2.5-flash"},
		r.Candidates("google/gemini-2.0-flash"))
}

func TestRegistry_HealthAndNames(t *testing.T) {
	google := newMockProvider(t, "google")
	r := provider.NewRegistry()
	r.Register("google", google)
	r.Register("plain", &plainProvider{name: "plain"})

	assert.Equal(t, []string{"google", "plain"}, r.Names())

	google.RecordFailure(http.StatusBadGateway)
	m, err := r.Health(context.Background(), "google")
	require.NoError(t, err)
	assert.False(t, m.Available)
	assert.Equal(t, http.StatusBadGateway, m.LastStatus)

	m, err = r.Health(context.Background(), "plain")
	require.NoError(t, err)
	assert.True(t, m.Available)

	_, err = r.Health(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, vwerr.IsNotFound(err))
}

func TestRegistry_CloseClosesProviders(t *testing.T) {
	p := newMockProvider(t, "google")
	r := provider.NewRegistry()
	r.Register("google", p)
	require.NoError(t, r.Close())
	assert.True(t, p.closed)
}
