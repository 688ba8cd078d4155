// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package store

import (
	"slices"
	"sync"

	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

// BackendFactory opens the vector index and shader store of one backend.
type BackendFactory func(cfg Config) (VectorIndex, ShaderStore, error)

var (
	factories   = map[string]BackendFactory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers a named backend. Backend packages call this from
// init().
func RegisterBackend(name string, factory BackendFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// Backends lists the registered backend names in sorted order.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Open creates the stores of the configured backend.
func Open(cfg Config) (VectorIndex, ShaderStore, error) {
	if cfg.Backend == "" {
		cfg.Backend = "sqlite"
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}

	factoriesMu.RLock()
	factory, ok := factories[cfg.Backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, nil, vwerr.Errorf(vwerr.CodeStoreBackendUnsupported,
			"unsupported storage backend %q (registered: %v)", cfg.Backend, Backends())
	}

	return factory(cfg)
}
