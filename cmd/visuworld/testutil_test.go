// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/visuworld/visuworld/internal/config"
	"github.com/visuworld/visuworld/internal/embedding"
	"github.com/visuworld/visuworld/internal/provider"
)

// execute runs one CLI invocation with a private HOME so config bootstrap
// never touches the real user directory.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	root := NewRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

// wordTruncator counts whitespace-separated words so tests need no
// vocabulary download.
type wordTruncator struct{}

func (wordTruncator) CountTokens(text string) int { return len(strings.Fields(text)) }

func (wordTruncator) Truncate(text string, maxTokens int) (string, bool) {
	words := strings.Fields(text)
	if len(words) <= maxTokens {
		return text, false
	}
	return strings.Join(words[:maxTokens], " "), true
}

// keywordEmbedder places text on three axes by the words it mentions.
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	text = strings.ToLower(text)
	vec := []float32{0.01, 0.01, 0.01}
	for i, word := range []string{"sun", "sea", "star"} {
		if strings.Contains(text, word) {
			vec[i]++
		}
	}
	return vec, nil
}

func (keywordEmbedder) Dimensions() int { return 3 }
func (keywordEmbedder) Model() string { return "keyword" }

const fencedReply = "```glsl\n#version 300 es\nvoid main() { gl_FragColor = vec4(1.0); }\n```"

const cleanedReply = "void main() { gl_FragColor = vec4(1.0); }"

// echoProvider answers every request with fencedReply and remembers what it
// was asked.
type echoProvider struct {
	mu       sync.Mutex
	requests []provider.ChatRequest
}

func (p *echoProvider) Name() string { return "fake" }
func (p *echoProvider) Available(context.Context) bool { return true }
func (p *echoProvider) Close() error { return nil }

func (p *echoProvider) ListModels(context.Context) ([]provider.ModelInfo, error) { return nil, nil }

func (p *echoProvider) Status(context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: true, Provider: "fake"}, nil
}

func (p *echoProvider) Chat(_ context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	ch := make(chan provider.ChatEvent, 2)
	ch <- provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: fencedReply}
	ch <- provider.ChatEvent{Type: provider.EventTypeDone}
	close(ch)
	return ch, nil
}

func (p *echoProvider) last() provider.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return provider.ChatRequest{}
	}
	return p.requests[len(p.requests)-1]
}

// installFakes swaps the network-backed factories for in-process fakes.
func installFakes(t *testing.T) *echoProvider {
	t.Helper()
	gen := &echoProvider{}

	oldTok, oldEmb := tokenizerFactory, embedderFactory
	tokenizerFactory = func(*config.Config) (embedding.Truncator, error) { return wordTruncator{}, nil }
	embedderFactory = func(context.Context, embedding.Options) (embedding.Embedder, error) {
		return keywordEmbedder{}, nil
	}
	builtinProviderFactories["fake"] = func(config.ProviderConfig) (provider.Provider, error) { return gen, nil }

	t.Cleanup(func() {
		tokenizerFactory, embedderFactory = oldTok, oldEmb
		delete(builtinProviderFactories, "fake")
	})
	return gen
}

const testConfig = `server:
  listen: "127.0.0.1:0"
providers:
  openai:
    api_key: test-key
  fake:
    api_key: test-key
embedding:
  provider: openai
  dimensions: 3
storage:
  backend: sqlite
  data_dir: %DATA%
models:
  standard: fake/standard-model
  pro: fake/pro-model
retry:
  max_attempts: 1
  initial_interval: 1ms
  max_interval: 1ms
ingest:
  rate_per_second: 0
shaders:
  page_size: 2
`

type testEnv struct {
	t       *testing.T
	cfgPath string
	dataDir string
	gen     *echoProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	cfgPath := filepath.Join(dir, "visuworld.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(strings.ReplaceAll(testConfig, "%DATA%", dataDir)), 0o600))

	return &testEnv{t: t, cfgPath: cfgPath, dataDir: dataDir, gen: installFakes(t)}
}

func (e *testEnv) run(stdin string, args ...string) (string, error) {
	e.t.Helper()
	return execute(e.t, stdin, append([]string{"--config", e.cfgPath}, args...)...)
}

func (e *testEnv) config() *config.Config {
	e.t.Helper()
	cfg, err := config.Load(e.cfgPath)
	require.NoError(e.t, err)
	return cfg
}

// writeFile creates name under a temp dir with content and returns its path.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
