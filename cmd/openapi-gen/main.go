// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/visuworld/visuworld/internal/server"
	"github.com/visuworld/visuworld/internal/store"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
	"github.com/visuworld/visuworld/pkg/health"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec registers every route against no-op services and returns the
// OpenAPI document huma derives from the handler types.
func generateSpec() ([]byte, error) {
	svc, err := server.NewServices(stubGenerator{}, stubShaders{}, 0, stubProviders{})
	if err != nil {
		return nil, vwerr.Errorf(vwerr.CodeCLISetupFailure, "creating services: %w", err)
	}

	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		Services:   svc,
	})
	if err != nil {
		return nil, vwerr.Errorf(vwerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	defer func() { _ = srv.Close() }()

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// Handlers are never invoked during spec generation.

type stubGenerator struct{}

func (stubGenerator) GenerateShader(context.Context, string, bool) (string, error) { return "", nil }
func (stubGenerator) ModifyShader(context.Context, string, string, bool) (string, error) {
	return "", nil
}

type stubShaders struct{}

func (stubShaders) Save(context.Context, *store.SavedShader) error { return nil }
func (stubShaders) Get(context.Context, string) (*store.SavedShader, error) {
	return nil, store.ErrNotFound
}

func (stubShaders) List(context.Context, store.ListOpts) ([]*store.SavedShader, error) {
	return nil, nil
}

type stubProviders struct{}

func (stubProviders) Health(context.Context, string) (health.Metrics, error) {
	return health.Metrics{}, nil
}
