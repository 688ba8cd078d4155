// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package provider_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visuworld/visuworld/internal/provider"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

func newTracker(t *testing.T, cooldown time.Duration) (*provider.HealthTracker, *time.Time) {
	t.Helper()
	h, err := provider.NewHealthTracker(cooldown)
	require.NoError(t, err)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h.SetNowFunc(func() time.Time { return now })
	return h, &now
}

func TestNewHealthTrackerRejectsNonPositiveCooldown(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		_, err := provider.NewHealthTracker(d)
		require.Error(t, err)
		assert.True(t, vwerr.IsInvalidInput(err))
	}
}

func TestHealthTracker_TransientFailureStartsCooldown(t *testing.T) {
	h, now := newTracker(t, 30*time.Second)
	assert.True(t, h.IsHealthy())

	h.RecordFailure(http.StatusServiceUnavailable)
	assert.False(t, h.IsHealthy())

	m := h.HealthMetrics()
	assert.False(t, m.Available)
	assert.Equal(t, int64(1), m.FailureCount)
	assert.Equal(t, http.StatusServiceUnavailable, m.LastStatus)
	require.NotNil(t, m.LastFailureAt)
	require.NotNil(t, m.CooldownUntil)
	assert.Equal(t, now.Add(30*time.Second), *m.CooldownUntil)

	*now = now.Add(31 * time.Second)
	assert.True(t, h.IsHealthy(), "cooldown elapsed")
}

func TestHealthTracker_NetworkFailureStartsCooldown(t *testing.T) {
	h, _ := newTracker(t, time.Minute)
	h.RecordFailure(0)
	assert.False(t, h.IsHealthy())
}

func TestHealthTracker_PermanentFailureKeepsProviderAvailable(t *testing.T) {
	h, _ := newTracker(t, time.Minute)
	h.RecordFailure(http.StatusBadRequest)

	m := h.HealthMetrics()
	assert.True(t, m.Available)
	assert.Nil(t, m.CooldownUntil)
	assert.Equal(t, int64(1), m.FailureCount)
	assert.Equal(t, http.StatusBadRequest, m.LastStatus)
}

func TestHealthTracker_SuccessRestores(t *testing.T) {
	h, _ := newTracker(t, time.Hour)
	h.RecordFailure(http.StatusTooManyRequests)
	require.False(t, h.IsHealthy())

	h.RecordSuccess()
	assert.True(t, h.IsHealthy())
	assert.Equal(t, int64(1), h.HealthMetrics().FailureCount, "failure count is cumulative")
}

func TestErrorEvent(t *testing.T) {
	h, _ := newTracker(t, time.Minute)

	ev := provider.ErrorEvent(errors.New("overloaded"), http.StatusServiceUnavailable, h)
	assert.Equal(t, provider.EventTypeError, ev.Type)
	assert.Equal(t, "overloaded", ev.Error)
	assert.Equal(t, http.StatusServiceUnavailable, ev.Status)
	assert.False(t, h.IsHealthy())
}

func TestErrorEvent_CancellationIsNotAFailure(t *testing.T) {
	h, _ := newTracker(t, time.Minute)

	provider.ErrorEvent(fmt.Errorf("stream: %w", context.Canceled), 0, h)
	provider.ErrorEvent(context.DeadlineExceeded, 0, h)
	assert.True(t, h.IsHealthy())
	assert.Zero(t, h.HealthMetrics().FailureCount)

	assert.Equal(t, provider.EventTypeError, provider.ErrorEvent(errors.New("x"), 0, nil).Type)
}
