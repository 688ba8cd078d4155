// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/visuworld/visuworld/internal/prompt"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

func newIndexCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect the shader example index",
	}

	cmd.AddCommand(
		newIndexQueryCmd(a),
		newIndexStatsCmd(a),
	)

	return cmd
}

func newIndexQueryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Show the examples a prompt retrieves",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexQuery(cmd, a, args)
		},
	}

	cmd.Flags().IntP("top-k", "k", 0, "number of examples to return (default: index.top_k)")
	cmd.Flags().Bool("code", false, "print a snippet of each example's code")

	return cmd
}

func newIndexStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the index size and dimensions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			idx, shaders, err := openStores(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = idx.Close(); _ = shaders.Close() }()

			count, err := idx.Count(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "Backend:     %s\n", cfg.Storage.Backend)
			_, _ = fmt.Fprintf(w, "Examples:    %d\n", count)
			_, err = fmt.Fprintf(w, "Dimensions:  %d\n", idx.Dimensions())
			return err
		},
	}
}

func runIndexQuery(cmd *cobra.Command, a *app, args []string) error {
	text, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	k, _ := cmd.Flags().GetInt("top-k")
	showCode, _ := cmd.Flags().GetBool("code")

	cfg, err := a.config()
	if err != nil {
		return err
	}
	if k <= 0 {
		k = cfg.Index.TopK
	}

	ctx := cmd.Context()
	wired, err := WireRetrieval(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = wired.Close() }()

	vec, err := wired.Embedder.Embed(ctx, text)
	if err != nil {
		return err
	}
	hits, err := wired.Index.Query(ctx, vec, k)
	if err != nil {
		return vwerr.With(err, vwerr.FieldStage(vwerr.StageRetrieval))
	}

	w := cmd.OutOrStdout()
	if len(hits) == 0 {
		_, err = fmt.Fprintln(w, "No examples indexed.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RANK\tDISTANCE\tID\tTITLE\tTAGS")
	for _, hit := range hits {
		_, _ = fmt.Fprintf(tw, "%d\t%.4f\t%s\t%s\t%s\n",
			hit.Rank, hit.Distance, hit.Example.ID, hit.Example.Title, hit.Example.TagList())
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if showCode {
		for _, hit := range hits {
			_, _ = fmt.Fprintf(w, "\n-- %s --\n%s\n", hit.Example.ID, prompt.Snippet(hit.Example.Code, cfg.Prompt.SnippetChars))
		}
	}
	return nil
}
