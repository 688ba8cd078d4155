// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package store

import "errors"

// Sentinel errors for store operations, checkable with errors.Is alongside
// the coded errors backends return.
var (
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a save that duplicates an existing shader.
	ErrConflict = errors.New("conflict")

	ErrInvalidInput = errors.New("invalid input")

	// ErrMalformed marks an index entry whose stored metadata lacks a
	// required field.
	ErrMalformed = errors.New("malformed index entry")
)
