// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the client for the hosted chat-completion gateway.
//
// CLOUD: Secure logging, bounded error bodies, single attempt per request
package cloud

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Configuration constants for the gateway.
const (
	// DefaultGatewayURL is the chat-completions endpoint of the AI gateway.
	DefaultGatewayURL = "https://ai.gateway.lovable.dev/v1/chat/completions"

	// DefaultModel is the model every request names.
	DefaultModel = "google/gemini-2.5-flash"

	// MaxErrorBodySize is the maximum error body read from the gateway.
	// SECURITY: Response size limit prevents memory exhaustion attacks.
	MaxErrorBodySize = 64 * 1024

	// userAgent identifies the proxy to the gateway.
	userAgent = "adtech-chat/1.0"
)

var (
	// sharedStreamingClient is used for streaming requests (no timeout, context-controlled).
	// PERFORMANCE: Connection pooling for streaming requests.
	// SECURITY: TLS verification required for production
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		// No timeout for streaming - controlled via context
	}
)

// Error variables for gateway failures.
var (
	// ErrNotConfigured indicates the gateway credential is not set.
	ErrNotConfigured = errors.New("gateway credential not configured")

	// ErrRateLimited indicates the gateway rejected the request for rate.
	ErrRateLimited = errors.New("rate limited")

	// ErrInsufficientCredits indicates the account has run out of credits.
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// GatewayError is a non-success response from the gateway.
type GatewayError struct {
	StatusCode int
	Body       string // bounded copy of the response body, for server-side logs only
	Err        error  // sentinel for mapped statuses, nil otherwise
	ReadErr    error  // failure reading Body, which then holds what arrived
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway error (HTTP %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway error (HTTP %d)", e.StatusCode)
}

// Unwrap returns the mapped sentinel error, if any.
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// =============================================================================
// CLIENT
// =============================================================================

// Client sends streaming chat-completion requests to the gateway.
type Client struct {
	apiKey     string
	url        string
	httpClient *http.Client
}

// NewClient creates a gateway client authenticated with apiKey.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		url:        DefaultGatewayURL,
		httpClient: sharedStreamingClient,
	}
}

// WithURL sets the chat-completions endpoint.
func (c *Client) WithURL(url string) *Client {
	if url != "" {
		c.url = url
	}
	return c
}

// WithHTTPClient replaces the HTTP client.
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	if client != nil {
		c.httpClient = client
	}
	return c
}

// URL returns the endpoint requests are sent to.
func (c *Client) URL() string {
	return c.url
}

// IsConfigured returns true if a credential is set.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// Fingerprint returns a short hash of a credential for logs, so operators
// can tell which key was in use.
// SECURITY: Never exposes key fragments.
func Fingerprint(apiKey string) string {
	if apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(h[:4])
}

// setHeaders sets the required headers for gateway requests.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
}

// Stream sends one request and returns the streaming response body on a 2xx
// status. The caller must close it. Nothing is retried.
func (c *Client) Stream(ctx context.Context, chatReq ChatRequest) (io.ReadCloser, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	bodyBytes, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)

	// SECURITY: Clear Authorization header immediately after request to prevent logging
	req.Header.Del("Authorization")

	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		gwErr := handleErrorResponse(resp.StatusCode, body)
		gwErr.ReadErr = readErr
		return nil, gwErr
	}
	return resp.Body, nil
}

// handleErrorResponse converts a non-success status to a GatewayError.
func handleErrorResponse(statusCode int, body []byte) *GatewayError {
	gwErr := &GatewayError{StatusCode: statusCode, Body: string(body)}
	switch statusCode {
	case http.StatusTooManyRequests:
		gwErr.Err = ErrRateLimited
	case http.StatusPaymentRequired:
		gwErr.Err = ErrInsufficientCredits
	}
	return gwErr
}
