// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package server

import (
	"context"
	"time"

	"github.com/visuworld/visuworld/internal/store"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
	"github.com/visuworld/visuworld/pkg/health"
)

// DefaultPageSize is the number of saved shaders per gallery page.
const DefaultPageSize = 6

// ShaderGenerator runs the generation pipeline. *pipeline.Pipeline
// implements it.
type ShaderGenerator interface {
	GenerateShader(ctx context.Context, prompt string, pro bool) (string, error)
	ModifyShader(ctx context.Context, prompt, code string, pro bool) (string, error)
}

// ShaderService keeps the gallery of saved shaders.
type ShaderService interface {
	Save(ctx context.Context, shader *store.SavedShader) error
	Get(ctx context.Context, id string) (*store.SavedShader, error)
	List(ctx context.Context, opts store.ListOpts) ([]*store.SavedShader, error)
}

// ProviderService reports generation provider health. *provider.Registry
// implements it. It is optional; without it the provider health endpoint
// is not registered.
type ProviderService interface {
	Health(ctx context.Context, name string) (health.Metrics, error)
}

// Services holds dependencies injected into route handlers. Use NewServices
// to ensure all required services are provided.
type Services struct {
	generator ShaderGenerator
	shaders   ShaderService
	providers ProviderService
	pageSize  int
}

// NewServices validates and bundles the handler dependencies. pageSize <= 0
// uses DefaultPageSize.
func NewServices(gen ShaderGenerator, shaders ShaderService, pageSize int, providers ...ProviderService) (*Services, error) {
	if gen == nil {
		return nil, vwerr.New(vwerr.CodeServerConfigInvalid, "shader generator is required")
	}
	if shaders == nil {
		return nil, vwerr.New(vwerr.CodeServerConfigInvalid, "shader service is required")
	}
	if len(providers) > 1 {
		return nil, vwerr.New(vwerr.CodeServerConfigInvalid, "at most one provider service may be supplied")
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	s := &Services{generator: gen, shaders: shaders, pageSize: pageSize}
	if len(providers) > 0 && providers[0] != nil {
		s.providers = providers[0]
	}
	return s, nil
}

func (s *Services) Generator() ShaderGenerator { return s.generator }

func (s *Services) Shaders() ShaderService { return s.shaders }

// Providers returns the optional provider health service.
func (s *Services) Providers() ProviderService { return s.providers }

func (s *Services) PageSize() int { return s.pageSize }

// ProviderHealthDetail is the REST representation of a provider's health.
type ProviderHealthDetail struct {
	Provider      string     `json:"provider" doc:"Provider name"`
	Available     bool       `json:"available" doc:"Whether the provider is accepting requests"`
	FailureCount  int64      `json:"failure_count" doc:"Failures since the last success"`
	LastStatus    int        `json:"last_status,omitempty" doc:"Upstream HTTP status of the last failure"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty" doc:"Time of the last failure"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty" doc:"End of the current cooldown"`
}

func newProviderHealthDetail(name string, m health.Metrics) ProviderHealthDetail {
	return ProviderHealthDetail{
		Provider:      name,
		Available:     m.Available,
		FailureCount:  m.FailureCount,
		LastStatus:    m.LastStatus,
		LastFailureAt: m.LastFailureAt,
		CooldownUntil: m.CooldownUntil,
	}
}
