// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package provider

import "context"

// Provider is a generative model backend. Chat streams events on the
// returned channel and closes it after a done or error event.
type Provider interface {
	Name() string
	Available(ctx context.Context) bool
	ListModels(ctx context.Context) ([]ModelInfo, error)
	Chat(ctx context.Context, req ChatRequest) (<-chan ChatEvent, error)
	Status(ctx context.Context) (ProviderStatus, error)
	Close() error
}

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatOptions carries sampling settings. A nil Temperature leaves the
// provider default in place.
type ChatOptions struct {
	Temperature   *float32
	MaxTokens     int
	StopSequences []string
}

type ChatRequest struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	Options      ChatOptions
}

// EventType discriminates ChatEvent payloads.
type EventType string

const (
	EventTypeTextDelta EventType = "text_delta"
	EventTypeUsage     EventType = "usage"
	EventTypeDone      EventType = "done"
	EventTypeError     EventType = "error"
)

type ChatEvent struct {
	Type  EventType `json:"type"`
	Text  string    `json:"text,omitempty"`
	Usage *Usage    `json:"usage,omitempty"`
	Error string    `json:"error,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type ModelInfo struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Provider         string `json:"provider"`
	MaxContextTokens int    `json:"max_context_tokens"`
	MaxOutputTokens  int    `json:"max_output_tokens"`
}

type ProviderStatus struct {
	Available bool            `json:"available"`
	Provider  string          `json:"provider"`
	Message   string          `json:"message,omitempty"`
	Health    *HealthSnapshot `json:"health,omitempty"`
}

// Temperature returns a pointer suitable for ChatOptions.Temperature.
func Temperature(t float64) *float32 {
	v := float32(t)
	return &v
}
