// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

// Package anthropic answers with Claude models through the Messages API.
package anthropic

import (
	"context"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nyaya-dev/nyaya/internal/provider"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

const defaultMaxTokens = 4096

// Config holds Anthropic provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Provider implements provider.Provider using the Anthropic Messages API.
type Provider struct {
	client anthropicsdk.Client
	config Config
	health *provider.HealthTracker
}

var _ provider.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, nyayaerr.New(nyayaerr.CodeConfigCredentialMissing, "anthropic: missing api_key in config",
			nyayaerr.FieldProvider(provider.NameAnthropic))
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	health, err := provider.NewHealthTracker(provider.DefaultHealthCooldown)
	if err != nil {
		return nil, err
	}
	return &Provider{client: anthropicsdk.NewClient(opts...), config: cfg, health: health}, nil
}

func (p *Provider) Name() string                     { return provider.NameAnthropic }
func (p *Provider) Available(_ context.Context) bool { return p.health.IsHealthy() }
func (p *Provider) Close() error                     { return nil }

func (p *Provider) ListModels(_ context.Context) ([]provider.ModelInfo, error) {
	return []provider.ModelInfo{
		{ID: "claude-opus-4-1", Name: "Claude Opus 4.1", Provider: provider.NameAnthropic, MaxContextTokens: 200000, MaxOutputTokens: 32000},
		{ID: "claude-sonnet-4-5", Name: "Claude Sonnet 4.5", Provider: provider.NameAnthropic, MaxContextTokens: 200000, MaxOutputTokens: 64000},
		{ID: "claude-haiku-4-5", Name: "Claude Haiku 4.5", Provider: provider.NameAnthropic, MaxContextTokens: 200000, MaxOutputTokens: 64000},
	}, nil
}

func (p *Provider) Status(_ context.Context) (provider.ProviderStatus, error) {
	return p.health.Status(provider.NameAnthropic), nil
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan provider.ChatEvent, 100)
	go func() {
		defer close(ch)
		p.streamChat(ctx, params, ch)
	}()
	return ch, nil
}

func buildParams(req provider.ChatRequest) (anthropicsdk.MessageNewParams, error) {
	msgs, err := convertMessages(req.Messages)
	if err != nil {
		return anthropicsdk.MessageNewParams{}, err
	}

	maxTokens := int64(req.Options.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Options.Temperature != nil {
		params.Temperature = anthropicsdk.Float(float64(*req.Options.Temperature))
	}
	if len(req.Options.StopSequences) > 0 {
		params.StopSequences = req.Options.StopSequences
	}
	return params, nil
}

func convertMessages(msgs []provider.Message) ([]anthropicsdk.MessageParam, error) {
	if len(msgs) == 0 {
		return nil, nyayaerr.New(nyayaerr.CodeProviderRequestInvalid, "anthropic: no messages to send")
	}

	out := make([]anthropicsdk.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case provider.RoleUser:
			out = append(out, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(msg.Content)))
		case provider.RoleAssistant:
			out = append(out, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(msg.Content)))
		default:
			return nil, nyayaerr.Errorf(nyayaerr.CodeProviderRequestInvalid, "anthropic: unsupported message role %q", msg.Role)
		}
	}
	return out, nil
}

func (p *Provider) streamChat(ctx context.Context, params anthropicsdk.MessageNewParams, ch chan<- provider.ChatEvent) {
	stream := p.client.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var usage provider.Usage
	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			usage.InputTokens = int(event.Message.Usage.InputTokens)
			usage.OutputTokens = int(event.Message.Usage.OutputTokens)

		case "content_block_delta":
			if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				ch <- provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: event.Delta.Text}
			}

		case "message_delta":
			// message_delta carries the cumulative output count.
			usage.OutputTokens = int(event.Usage.OutputTokens)

		case "message_stop":
			p.finish(usage, ch)
			return
		}
	}

	if err := stream.Err(); err != nil {
		p.health.RecordFailure()
		ch <- provider.ChatEvent{Type: provider.EventTypeError, Error: err.Error()}
		return
	}

	p.finish(usage, ch)
}

func (p *Provider) finish(usage provider.Usage, ch chan<- provider.ChatEvent) {
	p.health.RecordSuccess()
	if usage.InputTokens > 0 || usage.OutputTokens > 0 {
		ch <- provider.ChatEvent{Type: provider.EventTypeUsage, Usage: &usage}
	}
	ch <- provider.ChatEvent{Type: provider.EventTypeDone}
}
