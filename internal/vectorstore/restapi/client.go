// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

// Package restapi is the JSON-over-HTTP client shared by the hosted vector
// store backends.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is kept for messages.
const maxErrorBody = 4 << 10

// Client sends JSON requests to one base URL with a fixed set of headers.
type Client struct {
	backend    string
	baseURL    string
	headers    http.Header
	httpClient *http.Client
}

// Option configures the Client.
type Option func(*Client)

// WithHeader sets a header on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if value != "" {
			c.headers.Set(key, value)
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout replaces DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// New creates a client for baseURL. backend names the service in errors.
func New(backend, baseURL string, opts ...Option) *Client {
	c := &Client{
		backend:    backend,
		baseURL:    strings.TrimRight(baseURL, "/"),
		headers:    http.Header{},
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	c.headers.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// WithBaseURL returns a copy of c that talks to another host with the same
// headers, used when a control plane hands out a data plane address.
func (c *Client) WithBaseURL(baseURL string) *Client {
	cp := *c
	cp.baseURL = strings.TrimRight(baseURL, "/")
	cp.headers = c.headers.Clone()
	return &cp
}

// APIError is a non-2xx response.
type APIError struct {
	Backend    string
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %s %s returned %d: %s", e.Backend, e.Method, e.Path, e.StatusCode, e.Message)
}

// StatusOf returns the HTTP status carried by an APIError in err's chain, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Do sends body as JSON and decodes a JSON response into out when out is
// non-nil. Transport failures are connection errors; 401 and 403 are
// unauthorized; any other non-2xx status is an upstream failure wrapping an
// *APIError.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nyayaerr.Wrap(err, nyayaerr.CodeStoreRecordInvalid, "encoding request body",
				nyayaerr.FieldBackend(c.backend))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nyayaerr.Wrap(err, nyayaerr.CodeStoreConnectFailure, "creating request",
			nyayaerr.FieldBackend(c.backend))
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nyayaerr.Wrap(err, nyayaerr.CodeStoreConnectFailure,
			fmt.Sprintf("%s %s unreachable", c.backend, c.baseURL),
			nyayaerr.FieldBackend(c.backend))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{
			Backend:    c.backend,
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(msg)),
		}
		code := nyayaerr.CodeStoreUpstreamFailure
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			code = nyayaerr.CodeStoreConnectUnauthorized
		}
		return nyayaerr.Wrap(apiErr, code, c.backend+" request failed",
			nyayaerr.FieldBackend(c.backend), nyayaerr.Field("status", resp.StatusCode))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return nyayaerr.Wrap(err, nyayaerr.CodeStoreUpstreamFailure, "decoding "+c.backend+" response",
			nyayaerr.FieldBackend(c.backend))
	}
	return nil
}
