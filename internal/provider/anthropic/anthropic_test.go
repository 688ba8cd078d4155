// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

package anthropic_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visuworld/visuworld/internal/provider"
	"github.com/visuworld/visuworld/internal/provider/anthropic"
	vwerr "github.com/visuworld/visuworld/pkg/errors"
)

func TestMissingAPIKey(t *testing.T) {
	_, err := anthropic.New(anthropic.Config{})
	require.Error(t, err)
	assert.True(t, vwerr.HasCode(err, vwerr.CodeProviderRequestInvalid))
}

func TestChatStreamsText(t *testing.T) {
	events := []struct{ name, data string }{
		{"message_start", `{"type":"message_start","message":{"id":"m1","type":"message","role":"assistant","model":"claude-sonnet-4-5","content":[],"stop_reason":null,"usage":{"input_tokens":12,"output_tokens":0}}}`},
		{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"void main"}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"(){}"}}`},
		{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":5}}`},
		{"message_stop", `{"type":"message_stop"}`},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data)
		}
	}))
	t.Cleanup(srv.Close)

	p, err := anthropic.New(anthropic.Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	ch, err := p.Chat(context.Background(), provider.UserPrompt("claude-sonnet-4-5", "a cube"))
	require.NoError(t, err)

	var (
		sb    strings.Builder
		usage *provider.Usage
		last  provider.ChatEvent
	)
	for ev := range ch {
		if ev.Type == provider.EventTypeTextDelta {
			sb.WriteString(ev.Text)
		}
		if ev.Usage != nil {
			usage = ev.Usage
		}
		last = ev
	}
	assert.Equal(t, "void main(){}", sb.String())
	assert.Equal(t, provider.EventTypeDone, last.Type)
	require.NotNil(t, usage)
	assert.Equal(t, 12, usage.InputTokens)
	assert.Equal(t, 5, usage.OutputTokens)
}

func TestChatRejectedRequestKeepsProviderHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	t.Cleanup(srv.Close)

	p, err := anthropic.New(anthropic.Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	ch, err := p.Chat(context.Background(), provider.UserPrompt("claude-sonnet-4-5", "x"))
	require.NoError(t, err)

	var last provider.ChatEvent
	for ev := range ch {
		last = ev
	}
	assert.Equal(t, provider.EventTypeError, last.Type)
	assert.Equal(t, http.StatusBadRequest, last.Status)
	assert.True(t, p.Available(context.Background()), "4xx is a request error, not an outage")
	assert.Equal(t, int64(1), p.HealthMetrics().FailureCount)
}
