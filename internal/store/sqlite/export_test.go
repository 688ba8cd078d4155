// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package sqlite

import (
	"database/sql"
	"time"
)

// SetClock replaces the time source used to stamp saved shaders.
func (s *ShaderStore) SetClock(now func() time.Time) {
	s.now = now
}

// DB exposes the index connection so tests can corrupt stored rows.
func (x *Index) DB() *sql.DB {
	return x.db
}
