// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package widget

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jeranaias/adtech-chat/internal/model"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultEndpoint is the local proxy's chat route.
	DefaultEndpoint = "http://127.0.0.1:8787/functions/v1/adtech-chat"

	// MaxErrorBodySize bounds the error body read from the proxy.
	// SECURITY: Response size limit prevents memory exhaustion attacks.
	MaxErrorBodySize = 64 * 1024

	// MsgRequestFailed is used when a failed response carries no error text.
	MsgRequestFailed = "Failed to get response"
)

// ErrNoBody is returned when a successful response has nothing to stream.
// The text is shown to the user verbatim.
var ErrNoBody = errors.New("No response body")

// APIError is a non-success response from the proxy.
type APIError struct {
	StatusCode int
	Message    string
}

// Error returns the user-facing message.
func (e *APIError) Error() string {
	return e.Message
}

// ChatRequest is the body posted to the proxy.
type ChatRequest struct {
	Messages []model.Turn `json:"messages"`
	Context  string       `json:"context,omitempty"`
}

// Sender streams one turn. Client implements it against the proxy.
type Sender interface {
	Send(ctx context.Context, req ChatRequest) (io.ReadCloser, error)
}

// =============================================================================
// CLIENT
// =============================================================================

var (
	// sharedClient has no timeout; replies stream for as long as they take and
	// are bounded by the caller's context.
	// PERFORMANCE: Connection pooling across turns.
	sharedClient = &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
)

// Client posts conversation turns to the chat proxy.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a proxy client. apiKey is the publishable key sent as a
// bearer token; an empty endpoint selects DefaultEndpoint.
func NewClient(endpoint, apiKey string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: sharedClient,
	}
}

// WithHTTPClient replaces the HTTP client.
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	if client != nil {
		c.httpClient = client
	}
	return c
}

// WithTimeout bounds every exchange, streamed body included. Zero removes the
// bound.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	hc := *c.httpClient
	hc.Timeout = timeout
	c.httpClient = &hc
	return c
}

// Endpoint returns the URL turns are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Send posts req and returns the SSE body on success. The caller must close it.
func (c *Client) Send(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	if req.Messages == nil {
		req.Messages = []model.Turn{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		return nil, parseError(resp.StatusCode, data)
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, ErrNoBody
	}
	return resp.Body, nil
}

// parseError builds an APIError from an {"error": "..."} body.
func parseError(status int, body []byte) *APIError {
	var payload struct {
		Error string `json:"error"`
	}
	msg := MsgRequestFailed
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &APIError{StatusCode: status, Message: msg}
}
