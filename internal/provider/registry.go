// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package provider

import (
	"context"
	"slices"
	"strings"
	"sync"

	vwerr "github.com/visuworld/visuworld/pkg/errors"
	"github.com/visuworld/visuworld/pkg/health"
)

// Registry holds the configured providers and resolves "provider/model"
// references, walking the failover chain when the requested provider is
// missing or cooling down.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	failover  []string
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, vwerr.New(vwerr.CodeProviderNotFound, "provider not found: "+name, vwerr.FieldProvider(name))
	}
	return p, nil
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// SetFailover sets the ordered failover chain. Every ref must be qualified
// and name a registered provider.
func (r *Registry) SetFailover(chain []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ref := range chain {
		name, _, err := ParseRef(ref)
		if err != nil {
			return err
		}
		if _, ok := r.providers[name]; !ok {
			return vwerr.New(vwerr.CodeProviderNotFound,
				"failover provider not registered: "+name, vwerr.FieldProvider(name))
		}
	}
	r.failover = slices.Clone(chain)
	return nil
}

// Candidates returns ref followed by the failover chain, without duplicates.
func (r *Registry) Candidates(ref string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []string{ref}
	for _, fb := range r.failover {
		if !slices.Contains(out, fb) {
			out = append(out, fb)
		}
	}
	return out
}

// Route resolves ref to an available provider and model name. Providers in
// exclude are skipped; callers pass the providers already tried for the
// current request.
func (r *Registry) Route(ctx context.Context, ref string, exclude []string) (Provider, string, error) {
	if _, _, err := ParseRef(ref); err != nil {
		return nil, "", err
	}

	for _, candidate := range r.Candidates(ref) {
		name, model, _ := ParseRef(candidate)
		if slices.Contains(exclude, name) {
			continue
		}

		r.mu.RLock()
		p, ok := r.providers[name]
		r.mu.RUnlock()
		if !ok || !p.Available(ctx) {
			continue
		}
		return p, model, nil
	}

	return nil, "", vwerr.New(vwerr.CodeProviderAllUnavailable,
		"no available provider for "+ref, vwerr.FieldModel(ref))
}

// Health returns the health snapshot of the named provider. Providers that do
// not track health report as always available.
func (r *Registry) Health(ctx context.Context, name string) (health.Metrics, error) {
	p, err := r.Get(name)
	if err != nil {
		return health.Metrics{}, err
	}
	if hr, ok := p.(HealthReporter); ok {
		return hr.HealthMetrics(), nil
	}
	return health.Metrics{Available: p.Available(ctx)}, nil
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return vwerr.Join(errs...)
}

// ParseRef splits "provider/model" on the first slash. Model names may
// themselves contain slashes (openrouter/anthropic/claude-sonnet-4-5).
func ParseRef(ref string) (providerName, model string, err error) {
	name, model, ok := strings.Cut(ref, "/")
	if !ok || name == "" || model == "" {
		return "", "", vwerr.Errorf(vwerr.CodeProviderInvalidModelRef,
			"model %q must use provider/model format", ref)
	}
	return name, model, nil
}
