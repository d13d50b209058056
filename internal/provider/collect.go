// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package provider

import (
	"context"
	"strings"

	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// Completion is a fully drained chat stream.
type Completion struct {
	Text  string
	Usage Usage
}

// Collect drains a chat stream into a single completion. An error event or
// a stream that closes before done is an upstream failure.
func Collect(ctx context.Context, events <-chan ChatEvent) (Completion, error) {
	var (
		b   strings.Builder
		out Completion
	)

	for {
		select {
		case <-ctx.Done():
			return out, nyayaerr.Wrap(ctx.Err(), nyayaerr.CodeProviderUpstreamFailure, "chat stream interrupted")
		case ev, ok := <-events:
			if !ok {
				return out, nyayaerr.New(nyayaerr.CodeProviderUpstreamFailure, "chat stream closed before completion")
			}
			switch ev.Type {
			case EventTypeTextDelta:
				b.WriteString(ev.Text)
			case EventTypeUsage:
				if ev.Usage != nil {
					out.Usage.InputTokens = max(out.Usage.InputTokens, ev.Usage.InputTokens)
					out.Usage.OutputTokens = max(out.Usage.OutputTokens, ev.Usage.OutputTokens)
				}
			case EventTypeError:
				out.Text = b.String()
				return out, nyayaerr.New(nyayaerr.CodeProviderUpstreamFailure, ev.Error)
			case EventTypeDone:
				out.Text = b.String()
				return out, nil
			}
		}
	}
}

// Complete sends req and collects the answer text.
func Complete(ctx context.Context, p Provider, req ChatRequest) (Completion, error) {
	events, err := p.Chat(ctx, req)
	if err != nil {
		return Completion{}, err
	}
	out, err := Collect(ctx, events)
	if err != nil {
		return out, nyayaerr.With(err, nyayaerr.FieldProvider(p.Name()))
	}
	return out, nil
}
