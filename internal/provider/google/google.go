// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

// Package google answers with Gemini models through the genai SDK.
package google

import (
	"context"

	"google.golang.org/genai"

	"github.com/nyaya-dev/nyaya/internal/provider"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// Config holds Google provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Provider implements provider.Provider using the Gemini API.
type Provider struct {
	client *genai.Client
	config Config
	health *provider.HealthTracker
}

var _ provider.Provider = (*Provider)(nil)

func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, nyayaerr.New(nyayaerr.CodeConfigCredentialMissing, "google: missing api_key in config",
			nyayaerr.FieldProvider(provider.NameGoogle))
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, nyayaerr.Wrapf(err, nyayaerr.CodeProviderUpstreamFailure, "google: creating client")
	}

	health, err := provider.NewHealthTracker(provider.DefaultHealthCooldown)
	if err != nil {
		return nil, err
	}
	return &Provider{client: client, config: cfg, health: health}, nil
}

func (p *Provider) Name() string                     { return provider.NameGoogle }
func (p *Provider) Available(_ context.Context) bool { return p.health.IsHealthy() }
func (p *Provider) Health() *provider.HealthTracker  { return p.health }
func (p *Provider) Close() error                     { return nil }

func (p *Provider) ListModels(_ context.Context) ([]provider.ModelInfo, error) {
	return []provider.ModelInfo{
		{ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", Provider: provider.NameGoogle, MaxContextTokens: 1048576, MaxOutputTokens: 65536},
		{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", Provider: provider.NameGoogle, MaxContextTokens: 1048576, MaxOutputTokens: 65536},
		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", Provider: provider.NameGoogle, MaxContextTokens: 1048576, MaxOutputTokens: 8192},
	}, nil
}

func (p *Provider) Status(_ context.Context) (provider.ProviderStatus, error) {
	return p.health.Status(provider.NameGoogle), nil
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	config := buildConfig(req)

	ch := make(chan provider.ChatEvent, 100)
	go func() {
		defer close(ch)
		p.streamChat(ctx, req.Model, contents, config, ch)
	}()
	return ch, nil
}

func buildConfig(req provider.ChatRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.Options.Temperature != nil {
		cfg.Temperature = genai.Ptr(*req.Options.Temperature)
	}
	if req.Options.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.Options.MaxTokens)
	}
	if len(req.Options.StopSequences) > 0 {
		cfg.StopSequences = req.Options.StopSequences
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	return cfg
}

func convertMessages(msgs []provider.Message) ([]*genai.Content, error) {
	if len(msgs) == 0 {
		return nil, nyayaerr.New(nyayaerr.CodeProviderRequestInvalid, "google: no messages to send")
	}

	out := make([]*genai.Content, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case provider.RoleUser:
			out = append(out, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case provider.RoleAssistant:
			out = append(out, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			return nil, nyayaerr.Errorf(nyayaerr.CodeProviderRequestInvalid, "google: unsupported message role %q", msg.Role)
		}
	}
	return out, nil
}

func (p *Provider) streamChat(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
	ch chan<- provider.ChatEvent,
) {
	var usage *provider.Usage
	for result, err := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			p.health.RecordFailure()
			ch <- provider.ChatEvent{Type: provider.EventTypeError, Error: err.Error()}
			return
		}

		for _, candidate := range result.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" && !part.Thought {
					ch <- provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: part.Text}
				}
			}
		}

		if result.UsageMetadata != nil {
			usage = &provider.Usage{
				InputTokens:  int(result.UsageMetadata.PromptTokenCount),
				OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
			}
		}
	}

	if usage != nil {
		ch <- provider.ChatEvent{Type: provider.EventTypeUsage, Usage: usage}
	}
	p.health.RecordSuccess()
	ch <- provider.ChatEvent{Type: provider.EventTypeDone}
}
