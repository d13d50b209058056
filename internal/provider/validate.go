// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package provider

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// Provider names accepted by configuration.
const (
	NameGoogle    = "google"
	NameOpenAI    = "openai"
	NameAnthropic = "anthropic"
)

// DefaultBaseURLs are the public API roots used when a key is validated
// without an override.
var DefaultBaseURLs = map[string]string{
	NameGoogle:    "https://generativelanguage.googleapis.com",
	NameOpenAI:    "https://api.openai.com",
	NameAnthropic: "https://api.anthropic.com",
}

// ValidateKey lists models with key to confirm the provider accepts it.
// An empty baseURL selects the public endpoint.
func ValidateKey(ctx context.Context, client *http.Client, name, key, baseURL string) error {
	if key == "" {
		return nyayaerr.New(nyayaerr.CodeProviderKeyInvalid, "api key is empty", nyayaerr.FieldProvider(name))
	}
	if baseURL == "" {
		baseURL = DefaultBaseURLs[name]
	}
	baseURL = strings.TrimRight(baseURL, "/")

	var (
		endpoint string
		headers  = map[string]string{}
	)
	switch name {
	case NameAnthropic:
		endpoint = baseURL + "/v1/models"
		headers["x-api-key"] = key
		headers["anthropic-version"] = "2023-06-01"
	case NameOpenAI:
		endpoint = baseURL + "/v1/models"
		headers["Authorization"] = "Bearer " + key
	case NameGoogle:
		// The Generative Language API only takes the key as a query parameter.
		endpoint = baseURL + "/v1beta/models?key=" + url.QueryEscape(key)
	default:
		return nyayaerr.Errorf(nyayaerr.CodeProviderKeyInvalid, "unknown provider: %s", name)
	}

	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nyayaerr.Wrapf(err, nyayaerr.CodeProviderKeyCheckFailure, "building %s validation request", name)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		// The URL may embed the key; report only the provider.
		return nyayaerr.New(nyayaerr.CodeProviderKeyCheckFailure, "validating "+name+" key: request failed",
			nyayaerr.FieldProvider(name))
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nyayaerr.Errorf(nyayaerr.CodeProviderKeyInvalid, "invalid %s API key (HTTP %d)", name, resp.StatusCode)
	case name == NameGoogle && resp.StatusCode == http.StatusBadRequest:
		return nyayaerr.Errorf(nyayaerr.CodeProviderKeyInvalid, "invalid %s API key (HTTP %d)", name, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nyayaerr.Errorf(nyayaerr.CodeProviderKeyCheckFailure, "%s key validation failed (HTTP %d)", name, resp.StatusCode)
	}
	return nil
}
