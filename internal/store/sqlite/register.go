// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package sqlite

import (
	"os"
	"path/filepath"

	"github.com/visuworld/visuworld/internal/store"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

func init() {
	store.RegisterBackend("sqlite", openBackend)
}

// openBackend keeps the index in vectors.db and the gallery in shaders.db
// under cfg.DataDir.
func openBackend(cfg store.Config) (store.VectorIndex, store.ShaderStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, nil, vwerr.Wrap(err, vwerr.CodeStoreDatabaseFailure, "creating data directory",
			vwerr.Field("path", cfg.DataDir))
	}

	idx, err := NewIndex(filepath.Join(cfg.DataDir, "vectors.db"), cfg.Dimensions)
	if err != nil {
		return nil, nil, err
	}

	shaders, err := NewShaderStore(filepath.Join(cfg.DataDir, "shaders.db"))
	if err != nil {
		_ = idx.Close()
		return nil, nil, err
	}

	return idx, shaders, nil
}
