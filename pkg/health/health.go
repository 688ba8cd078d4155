// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package health

import "time"

// Metrics is a point-in-time snapshot of a generation provider's health,
// served by the provider health endpoint and printed by `visuworld doctor`.
type Metrics struct {
	FailureCount  int64      `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	LastStatus    int        `json:"last_status,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	Available     bool       `json:"available"`
}
