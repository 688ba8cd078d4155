// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package store

// Config selects and parameterizes a storage backend.
type Config struct {
	// Backend is "sqlite" (default) or "postgres".
	Backend string
	// DataDir holds the sqlite database files.
	DataDir string
	// DSN is the postgres connection string.
	DSN string
	// Dimensions is the embedding length; 0 uses DefaultDimensions.
	Dimensions int
}

// DefaultDimensions matches text-embedding-3-small.
const DefaultDimensions = 1536
