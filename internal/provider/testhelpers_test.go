// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package provider_test

import (
	"context"

	"github.com/nyaya-dev/nyaya/internal/provider"
)

// fakeProvider replays a fixed event sequence for every Chat call.
type fakeProvider struct {
	name      string
	available bool
	events    []provider.ChatEvent
	chatErr   error
	closed    bool
	requests  []provider.ChatRequest
}

func newFakeProvider(name string, available bool, events ...provider.ChatEvent) *fakeProvider {
	return &fakeProvider{name: name, available: available, events: events}
}

func textEvents(parts ...string) []provider.ChatEvent {
	events := make([]provider.ChatEvent, 0, len(parts)+1)
	for _, p := range parts {
		events = append(events, provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: p})
	}
	return append(events, provider.ChatEvent{Type: provider.EventTypeDone})
}

func (f *fakeProvider) Name() string                     { return f.name }
func (f *fakeProvider) Available(_ context.Context) bool { return f.available }

func (f *fakeProvider) Close() error {
	f.closed = true
	return nil
}

func (f *fakeProvider) ListModels(_ context.Context) ([]provider.ModelInfo, error) {
	return []provider.ModelInfo{{ID: "fake-1", Name: "Fake", Provider: f.name}}, nil
}

func (f *fakeProvider) Chat(_ context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	f.requests = append(f.requests, req)
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	ch := make(chan provider.ChatEvent, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) Status(_ context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: f.available, Provider: f.name, Message: "ok"}, nil
}
