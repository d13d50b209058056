// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package anthropic_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyaya-dev/nyaya/internal/provider"
	"github.com/nyaya-dev/nyaya/internal/provider/anthropic"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

var streamEvents = []struct{ name, data string }{
	{"message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-haiku-4-5","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":25,"output_tokens":1}}}`},
	{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
	{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Article 32 "}}`},
	{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"guarantees remedies."}}`},
	{"content_block_stop", `{"type":"content_block_stop","index":0}`},
	{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":9}}`},
	{"message_stop", `{"type":"message_stop"}`},
}

func TestProvider_ChatStreamsText(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "a-key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range streamEvents {
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data)
		}
	}))
	defer srv.Close()

	p, err := anthropic.New(anthropic.Config{APIKey: "a-key", BaseURL: srv.URL})
	require.NoError(t, err)

	events, err := p.Chat(context.Background(), provider.ChatRequest{
		Model:        "claude-haiku-4-5",
		SystemPrompt: "Answer from context.",
		Messages:     []provider.Message{{Role: provider.RoleUser, Content: "Article 32?"}},
	})
	require.NoError(t, err)

	out, err := provider.Collect(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, "Article 32 guarantees remedies.", out.Text)
	assert.Equal(t, provider.Usage{InputTokens: 25, OutputTokens: 9}, out.Usage)

	assert.EqualValues(t, 4096, body["max_tokens"])
	assert.Contains(t, body, "system")
	assert.NotContains(t, body, "temperature")
}

func TestProvider_ChatErrorMarksUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	p, err := anthropic.New(anthropic.Config{APIKey: "a-key", BaseURL: srv.URL})
	require.NoError(t, err)

	events, err := p.Chat(context.Background(), provider.ChatRequest{
		Model:    "claude-haiku-4-5",
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "q"}},
	})
	require.NoError(t, err)

	_, err = provider.Collect(context.Background(), events)
	require.Error(t, err)
	assert.False(t, p.Available(context.Background()))
}

func TestNew_Validation(t *testing.T) {
	_, err := anthropic.New(anthropic.Config{})
	require.Error(t, err)
	assert.True(t, nyayaerr.IsConfiguration(err))

	p, err := anthropic.New(anthropic.Config{APIKey: "a-key"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, models)

	_, err = p.Chat(context.Background(), provider.ChatRequest{
		Model:    "claude-haiku-4-5",
		Messages: []provider.Message{{Role: "system", Content: "x"}},
	})
	require.Error(t, err)
	assert.True(t, nyayaerr.IsInvalidInput(err))
}
