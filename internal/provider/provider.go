// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

// Package provider defines the text-generation provider contract, the
// registry that resolves "provider/model" references with health-aware
// failover, and per-provider health tracking.
package provider

import (
	"context"
	"errors"

	"github.com/visuworld/visuworld/pkg/health"
)

// Provider is a streaming text-generation backend.
type Provider interface {
	Name() string
	Available(ctx context.Context) bool
	ListModels(ctx context.Context) ([]ModelInfo, error)
	Chat(ctx context.Context, req ChatRequest) (<-chan ChatEvent, error)
	Status(ctx context.Context) (ProviderStatus, error)
	Close() error
}

// HealthReporter is implemented by providers that track their own health.
// The registry skips providers whose tracker reports them unavailable.
type HealthReporter interface {
	RecordFailure(status int)
	RecordSuccess()
	HealthMetrics() health.Metrics
}

// ChatRequest is a single-turn or multi-turn generation request.
type ChatRequest struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	Options      ChatOptions
}

type ChatOptions struct {
	// Temperature is nil for the provider default.
	Temperature *float32
	MaxTokens   int
}

type Message struct {
	Role    MessageRole
	Content string
}

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// UserPrompt builds the single user-message request used for shader
// generation.
func UserPrompt(model, prompt string) ChatRequest {
	return ChatRequest{
		Model:    model,
		Messages: []Message{{Role: MessageRoleUser, Content: prompt}},
	}
}

// ChatEvent is a streaming response event. Error events carry the upstream
// HTTP status in Status when one was received.
type ChatEvent struct {
	Type   EventType
	Text   string
	Usage  *Usage
	Error  string
	Status int
}

type EventType string

const (
	EventTypeTextDelta EventType = "text_delta"
	EventTypeUsage     EventType = "usage"
	EventTypeDone      EventType = "done"
	EventTypeError     EventType = "error"
)

type Usage struct {
	InputTokens  int
	OutputTokens int
}

type ModelInfo struct {
	ID               string
	Name             string
	Provider         string
	MaxContextTokens int
	MaxOutputTokens  int
}

type ProviderStatus struct {
	Available bool
	Provider  string
	Message   string
}

// ErrorEvent converts a stream failure into an error event, recording it on
// tracker when non-nil. Cancellation by the caller is not a provider failure.
func ErrorEvent(err error, status int, tracker *HealthTracker) ChatEvent {
	canceled := errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	if tracker != nil && !canceled {
		tracker.RecordFailure(status)
	}
	return ChatEvent{Type: EventTypeError, Error: err.Error(), Status: status}
}
