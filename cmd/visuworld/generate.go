// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

func newGenerateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Generate a shader from a prompt",
		Long:  "Run the full retrieval and generation pipeline once. The prompt is read from stdin when no argument is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, a, args, "")
		},
	}
	addGenerateFlags(cmd)
	return cmd
}

func newModifyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modify [prompt]",
		Short: "Rewrite an existing shader according to a prompt",
		Long:  "Read the shader in --code, then ask the model to change it as the prompt describes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("code")
			code, err := os.ReadFile(path)
			if err != nil {
				return vwerr.Errorf(vwerr.CodeCLIInputInvalid, "reading shader %s: %w", path, err)
			}
			return runGenerate(cmd, a, args, string(code))
		},
	}
	addGenerateFlags(cmd)
	cmd.Flags().String("code", "", "path to the fragment shader to modify")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func addGenerateFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("pro", false, "use the pro model tier")
	cmd.Flags().StringP("out", "o", "", "write the shader to this file instead of stdout")
}

// runGenerate generates a new shader, or modifies existing when it is not
// empty.
func runGenerate(cmd *cobra.Command, a *app, args []string, existing string) error {
	userPrompt, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	pro, _ := cmd.Flags().GetBool("pro")
	out, _ := cmd.Flags().GetString("out")

	cfg, err := a.config()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	wired, err := Wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = wired.Close() }()

	var shader string
	if cmd.Flags().Lookup("code") != nil {
		shader, err = wired.Pipeline.ModifyShader(ctx, userPrompt, existing, pro)
	} else {
		shader, err = wired.Pipeline.GenerateShader(ctx, userPrompt, pro)
	}
	if err != nil {
		return err
	}

	if out == "" {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), shader)
		return err
	}
	if err := writeShader(out, shader); err != nil {
		return err
	}
	slog.Debug("shader written", "path", out, "bytes", len(shader))
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Shader written to %s\n", out)
	return err
}

func writeShader(path, shader string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return vwerr.Errorf(vwerr.CodeCLISetupFailure, "creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(shader+"\n"), 0o644); err != nil {
		return vwerr.Errorf(vwerr.CodeCLISetupFailure, "writing shader: %w", err)
	}
	return nil
}
