// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

//go:embed visuworld.yaml.default
var DefaultConfigYAML []byte

const defaultDataDirLine = "data_dir: data\n"

// DefaultConfigPath is the per-user config file created on first run.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", vwerr.Errorf(vwerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "visuworld", "visuworld.yaml"), nil
}

// BootstrapConfig creates the per-user config at path from the embedded
// defaults, with storage.data_dir pinned to a data directory beside the file
// so the index and gallery do not depend on the working directory. An
// existing file is never touched. The written path is returned, or "" when
// nothing was written.
func BootstrapConfig(path string) string {
	if _, err := os.Stat(path); err == nil {
		return ""
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Debug("config bootstrap skipped", "path", dir, "error", err)
		return ""
	}
	if err := os.WriteFile(path, renderDefault(filepath.Join(dir, "data")), 0o600); err != nil {
		slog.Debug("config bootstrap skipped", "path", path, "error", err)
		return ""
	}

	slog.Info("created default config", "path", path, "data_dir", filepath.Join(dir, "data"))
	return path
}

func renderDefault(dataDir string) []byte {
	return bytes.Replace(DefaultConfigYAML, []byte(defaultDataDirLine), fmt.Appendf(nil, "data_dir: %q\n", dataDir), 1)
}
