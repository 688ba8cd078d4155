// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/visuworld/visuworld/internal/config"
	"github.com/visuworld/visuworld/internal/tokenizer"
)

// doctorHTTPClient probes a running server. Tests replace it.
var doctorHTTPClient = &http.Client{Timeout: 3 * time.Second}

func newDoctorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check configuration, tokenizer vocabulary, storage, provider keys, a running server, and disk space.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, a)
		},
	}

	cmd.Flags().String("address", "", "server address to check (default: server.listen)")

	return cmd
}

func runDoctor(cmd *cobra.Command, a *app) error {
	w := cmd.OutOrStdout()
	ctx := cmd.Context()

	cfg, cfgErr := a.config()
	addr, _ := cmd.Flags().GetString("address")
	if addr == "" {
		addr = a.v.GetString("server.listen")
	}

	needsConfig := func(fn func(*config.Config) string) func() string {
		return func() string {
			if cfgErr != nil {
				return "skipped (invalid config)"
			}
			return fn(cfg)
		}
	}

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", func() string { return checkConfig(a, cfgErr) }},
		{"Tokenizer", needsConfig(checkTokenizer)},
		{"Storage", needsConfig(func(c *config.Config) string { return checkStorage(ctx, c) })},
		{"Providers", needsConfig(checkProviders)},
		{"Server", func() string { return checkServer(ctx, addr) }},
		{"Disk Space", func() string { return checkDiskSpace(a.v.GetString("storage.data_dir")) }},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

func checkBinary() string {
	return fmt.Sprintf("visuworld %s (%s/%s)", buildVersion(), runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig(a *app, cfgErr error) string {
	source := "defaults (no config file found)"
	if f := a.v.ConfigFileUsed(); f != "" {
		source = f
	}
	if cfgErr != nil {
		return fmt.Sprintf("invalid (%s): %s", source, cfgErr)
	}
	return "loaded from " + source
}

func checkTokenizer(cfg *config.Config) string {
	tok, err := tokenizer.NewTruncator(tokenizer.Options{Encoding: cfg.Embedding.Encoding})
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s ready (embedding budget %d tokens)", tok.Name(), cfg.Embedding.MaxTokens)
}

func checkStorage(ctx context.Context, cfg *config.Config) string {
	idx, shaders, err := openStores(cfg)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	defer func() { _ = idx.Close(); _ = shaders.Close() }()

	count, err := idx.Count(ctx)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	status := fmt.Sprintf("%s, %d examples indexed (%d dimensions)", cfg.Storage.Backend, count, idx.Dimensions())
	if count == 0 {
		status += " - run 'visuworld ingest'"
	}
	return status
}

// checkProviders reports whether each provider a model tier or the embedder
// needs has a key configured.
func checkProviders(cfg *config.Config) string {
	var needed []string
	for _, ref := range append([]string{cfg.Models.Standard, cfg.Models.Pro}, cfg.Models.Failover...) {
		name, _ := config.SplitModelRef(ref)
		needed = append(needed, name)
	}
	needed = append(needed, cfg.Embedding.Provider)
	slices.Sort(needed)
	needed = slices.Compact(needed)

	parts := make([]string, 0, len(needed))
	for _, name := range needed {
		state := "ok"
		pc, ok := cfg.Providers[name]
		switch {
		case !ok || pc.APIKey == "":
			state = "missing api key"
		case strings.HasPrefix(pc.APIKey, "keyring://"):
			state = "unresolved keyring reference"
		case builtinProviderFactories[name] == nil:
			state = "unknown provider"
		}
		parts = append(parts, name+" "+state)
	}
	return strings.Join(parts, ", ")
}

func checkServer(ctx context.Context, addr string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/health", nil)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	resp, err := doctorHTTPClient.Do(req)
	if err != nil {
		return fmt.Sprintf("not running at %s (run 'visuworld serve')", addr)
	}
	defer func() { _ = resp.Body.Close() }()

	var body struct {
		Status string `json:"status"`
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("unhealthy at %s (HTTP %d)", addr, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Sprintf("error: decoding health response: %s", err)
	}
	return fmt.Sprintf("%s at %s", body.Status, addr)
}

func checkDiskSpace(dataDir string) string {
	path := dataDir
	if _, err := os.Stat(path); err != nil {
		// The data directory is created on first use.
		path = "."
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
