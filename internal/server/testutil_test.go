// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/visuworld/visuworld/internal/server"
	"github.com/visuworld/visuworld/internal/store/sqlite"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
	"github.com/visuworld/visuworld/pkg/health"
)

// mockGenerator records calls and returns a canned shader or error.
type mockGenerator struct {
	mu     sync.Mutex
	shader string
	err    error
	calls  []generateCall
}

type generateCall struct {
	Prompt string
	Code   string
	Pro    bool
	Modify bool
}

func (m *mockGenerator) GenerateShader(_ context.Context, prompt string, pro bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, generateCall{Prompt: prompt, Pro: pro})
	return m.shader, m.err
}

func (m *mockGenerator) ModifyShader(_ context.Context, prompt, code string, pro bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, generateCall{Prompt: prompt, Code: code, Pro: pro, Modify: true})
	return m.shader, m.err
}

type mockProviderService struct {
	healthMap map[string]health.Metrics
}

func (m *mockProviderService) Health(_ context.Context, name string) (health.Metrics, error) {
	if h, ok := m.healthMap[name]; ok {
		return h, nil
	}
	return health.Metrics{}, vwerr.New(vwerr.CodeProviderNotFound, "provider not found: "+name)
}

type testEnv struct {
	gen     *mockGenerator
	shaders *sqlite.ShaderStore
	srv     *server.Server
}

func newTestEnv(t *testing.T, providers ...server.ProviderService) *testEnv {
	t.Helper()
	shaders, err := sqlite.NewShaderStore(filepath.Join(t.TempDir(), "shaders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = shaders.Close() })

	gen := &mockGenerator{shader: "void main(){}"}
	svc, err := server.NewServices(gen, shaders, 0, providers...)
	require.NoError(t, err)

	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		Services:   svc,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("visuworld_requests_total 0\n"))
		}),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	return &testEnv{gen: gen, shaders: shaders, srv: srv}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}
