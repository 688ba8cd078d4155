// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/visuworld/visuworld/internal/store"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

func newShadersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shaders",
		Short: "Manage the saved shader gallery",
	}

	cmd.AddCommand(
		newShadersListCmd(a),
		newShadersGetCmd(a),
		newShadersSaveCmd(a),
	)

	return cmd
}

// withShaderStore opens the configured backend and hands its shader store to fn.
func withShaderStore(a *app, fn func(store.ShaderStore) error) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	idx, shaders, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close(); _ = shaders.Close() }()
	return fn(shaders)
}

func newShadersListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved shaders, oldest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, _ := cmd.Flags().GetInt("page")
			if page < 1 {
				return vwerr.Errorf(vwerr.CodeCLIInputInvalid, "page must be at least 1, got %d", page)
			}

			return withShaderStore(a, func(shaders store.ShaderStore) error {
				size := a.cfg.Shaders.PageSize
				list, err := shaders.List(cmd.Context(), store.ListOpts{Limit: size, Offset: (page - 1) * size})
				if err != nil {
					return err
				}

				w := cmd.OutOrStdout()
				if len(list) == 0 {
					_, err := fmt.Fprintln(w, "No shaders on this page.")
					return err
				}

				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "ID\tSAVED\tPROMPT")
				for _, s := range list {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.CreatedAt.Format(time.DateTime), oneLine(s.Prompt, 60))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().Int("page", 1, "page number, starting at 1")

	return cmd
}

func newShadersGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print a saved shader's code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withShaderStore(a, func(shaders store.ShaderStore) error {
				s, err := shaders.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), s.Code)
				return err
			})
		},
	}
}

func newShadersSaveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save [prompt]",
		Short: "Save a shader file to the gallery",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("code")
			description, _ := cmd.Flags().GetString("description")
			code, err := os.ReadFile(path)
			if err != nil {
				return vwerr.Errorf(vwerr.CodeCLIInputInvalid, "reading shader %s: %w", path, err)
			}
			userPrompt := strings.TrimSpace(strings.Join(args, " "))
			if userPrompt == "" {
				return vwerr.New(vwerr.CodeCLIInputInvalid, "a prompt is required")
			}

			return withShaderStore(a, func(shaders store.ShaderStore) error {
				s := &store.SavedShader{Prompt: userPrompt, Code: string(code), Description: description}
				if err := shaders.Save(cmd.Context(), s); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Saved shader %s\n", s.ID)
				return err
			})
		},
	}

	cmd.Flags().String("code", "", "path to the fragment shader")
	cmd.Flags().String("description", "", "optional description")
	_ = cmd.MarkFlagRequired("code")

	return cmd
}

// oneLine collapses whitespace and cuts s to n runes.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
