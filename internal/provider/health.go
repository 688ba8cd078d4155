// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package provider

import (
	"sync"
	"time"

	vwerr "github.com/visuworld/visuworld/pkg/errors"
	"github.com/visuworld/visuworld/pkg/health"
)

// HealthTracker tracks whether a provider should receive traffic. A provider
// is healthy until a failure is recorded; it then sits out a cooldown before
// becoming eligible again. Failures with a permanent upstream status (4xx
// other than 408/429) do not trip the cooldown since they are request
// errors, not provider outages.
type HealthTracker struct {
	mu           sync.RWMutex
	healthy      bool
	failedAt     time.Time
	lastStatus   int
	cooldown     time.Duration
	failureCount int64
	nowFunc      func() time.Time
}

const DefaultHealthCooldown = 30 * time.Second

func NewHealthTracker(cooldown time.Duration) (*HealthTracker, error) {
	if cooldown <= 0 {
		return nil, vwerr.Errorf(vwerr.CodeConfigValidateInvalidValue,
			"health tracker cooldown must be positive, got %s", cooldown)
	}
	return &HealthTracker{
		healthy:  true,
		cooldown: cooldown,
		nowFunc:  time.Now,
	}, nil
}

// isHealthyLocked requires h.mu held.
func (h *HealthTracker) isHealthyLocked() bool {
	if h.healthy {
		return true
	}
	return h.nowFunc().Sub(h.failedAt) >= h.cooldown
}

func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.isHealthyLocked()
}

func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	h.healthy = true
	h.mu.Unlock()
}

// RecordFailure counts a failure with the given upstream status (0 when no
// response was received).
func (h *HealthTracker) RecordFailure(status int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.failureCount++
	h.lastStatus = status
	h.failedAt = h.nowFunc()
	if vwerr.IsRetryableStatus(status) {
		h.healthy = false
	}
}

func (h *HealthTracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.nowFunc = fn
	h.mu.Unlock()
}

// HealthMetrics returns a point-in-time snapshot.
func (h *HealthTracker) HealthMetrics() health.Metrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := health.Metrics{
		FailureCount: h.failureCount,
		LastStatus:   h.lastStatus,
		Available:    h.isHealthyLocked(),
	}
	if h.failureCount > 0 {
		t := h.failedAt
		m.LastFailureAt = &t
	}
	if !h.healthy {
		end := h.failedAt.Add(h.cooldown)
		m.CooldownUntil = &end
	}
	return m
}
