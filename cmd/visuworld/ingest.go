// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/visuworld/visuworld/internal/ingest"
)

func newIngestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Embed a shader catalog into the vector index",
		Long: "Read a JSON or YAML catalog of shaders, embed each record, and upsert it into the index. " +
			"Records with the same ID replace earlier ones, so a catalog can be ingested again safely.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd, a)
		},
	}

	cmd.Flags().StringP("file", "f", "", "catalog file (.json, .yaml or .yml)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runIngest(cmd *cobra.Command, a *app) error {
	path, _ := cmd.Flags().GetString("file")

	examples, err := ingest.LoadFile(path)
	if err != nil {
		return err
	}

	cfg, err := a.config()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	wired, err := WireRetrieval(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = wired.Close() }()

	slog.Info("ingesting catalog", "file", path, "records", len(examples),
		"model", wired.Embedder.Model(), "rate_per_second", cfg.Ingest.RatePerSecond)

	ingester := ingest.New(wired.Embedder, wired.Index, ingest.Options{
		RatePerSecond: cfg.Ingest.RatePerSecond,
		Burst:         cfg.Ingest.Burst,
		SkipPatterns:  cfg.Ingest.SkipPatterns,
	}, wired.Metrics)

	report, runErr := ingester.Run(ctx, examples)

	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(w, "Records:  %d\n", report.Total)
	_, _ = fmt.Fprintf(w, "Indexed:  %d\n", report.Indexed)
	_, _ = fmt.Fprintf(w, "Skipped:  %d\n", report.Skipped)
	_, _ = fmt.Fprintf(w, "Failed:   %d\n", report.Failed)
	if runErr != nil {
		return runErr
	}

	count, err := wired.Index.Count(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "Index now holds %d examples\n", count)
	return err
}
