// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/jeranaias/adtech-chat/internal/cloud"
	"github.com/jeranaias/adtech-chat/internal/prompt"
	"github.com/jeranaias/adtech-chat/internal/security"
	"github.com/jeranaias/adtech-chat/internal/util"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultCredentialEnv names the environment variable holding the gateway key.
	DefaultCredentialEnv = "LOVABLE_API_KEY"

	// MaxRequestBodySize is the maximum size for request body to prevent DoS (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// relayBufferSize is the read size used when copying the gateway stream.
	relayBufferSize = 4 * 1024

	// maxLoggedBody bounds gateway error bodies written to the log.
	maxLoggedBody = 2000
)

// User-facing error messages. Gateway details never reach the caller.
const (
	MsgRateLimited      = "Rate limit exceeded. Please try again in a moment."
	MsgCreditsExhausted = "AI credits exhausted. Please add credits to continue."
	MsgGatewayError     = "AI gateway error"
	MsgNotConfigured    = "AI service is not configured"
	MsgInvalidRequest   = "Invalid request format"
	MsgBodyTooLarge     = "Request body too large"
	MsgMethodNotAllowed = "Method not allowed"
)

// ============================================================================
// TYPES
// ============================================================================

// ChatRequest is the body the chat panel posts.
type ChatRequest struct {
	// Messages are forwarded to the gateway exactly as received.
	Messages []json.RawMessage `json:"messages"`
	// Context names the module the user is viewing, if any.
	Context string `json:"context,omitempty"`
}

// ErrorResponse is the JSON body of every failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Gateway streams one chat completion.
type Gateway interface {
	Stream(ctx context.Context, req cloud.ChatRequest) (io.ReadCloser, error)
}

// HandlerConfig controls how the chat handler shapes upstream requests.
type HandlerConfig struct {
	Model         string
	GatewayURL    string
	CredentialEnv string
	MaxBodyBytes  int64
}

// ============================================================================
// CHAT HANDLER
// ============================================================================

// ChatHandler relays one conversation turn to the gateway and streams the
// reply back. It keeps no state between requests and never retries.
type ChatHandler struct {
	cfg       HandlerConfig
	prompt    *prompt.Source
	lookupEnv func(string) (string, bool)
	gateway   func(apiKey string) Gateway
	logger    *log.Logger
}

// NewChatHandler creates a handler. A nil source uses the default prompt.
func NewChatHandler(cfg HandlerConfig, src *prompt.Source) *ChatHandler {
	if cfg.Model == "" {
		cfg.Model = cloud.DefaultModel
	}
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = cloud.DefaultGatewayURL
	}
	if cfg.CredentialEnv == "" {
		cfg.CredentialEnv = DefaultCredentialEnv
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = MaxRequestBodySize
	}
	if src == nil {
		src = prompt.Fixed(prompt.Default)
	}

	h := &ChatHandler{
		cfg:       cfg,
		prompt:    src,
		lookupEnv: os.LookupEnv,
		logger:    log.Default(),
	}
	h.gateway = func(apiKey string) Gateway {
		return cloud.NewClient(apiKey).WithURL(h.cfg.GatewayURL)
	}
	return h
}

// WithLookupEnv replaces the environment lookup used for the credential.
func (h *ChatHandler) WithLookupEnv(fn func(string) (string, bool)) *ChatHandler {
	if fn != nil {
		h.lookupEnv = fn
	}
	return h
}

// WithGateway replaces the gateway factory.
func (h *ChatHandler) WithGateway(fn func(apiKey string) Gateway) *ChatHandler {
	if fn != nil {
		h.gateway = fn
	}
	return h
}

// WithLogger sets the logger.
func (h *ChatHandler) WithLogger(logger *log.Logger) *ChatHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// Configured reports whether the gateway credential is present right now.
func (h *ChatHandler) Configured() bool {
	_, ok := h.credential()
	return ok
}

func (h *ChatHandler) credential() (string, bool) {
	key, ok := h.lookupEnv(h.cfg.CredentialEnv)
	return key, ok && key != ""
}

// ServeHTTP implements http.Handler.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		WriteError(w, http.StatusMethodNotAllowed, MsgMethodNotAllowed)
		return
	}

	start := time.Now()

	// SECURITY: Limit request body size to prevent DoS attacks
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, MsgBodyTooLarge)
			return
		}
		h.logger.Printf("CHAT_BAD_REQUEST | error=%v", err)
		WriteError(w, http.StatusInternalServerError, MsgInvalidRequest)
		return
	}
	if req.Messages == nil {
		h.logger.Printf("CHAT_BAD_REQUEST | error=missing messages")
		WriteError(w, http.StatusInternalServerError, MsgInvalidRequest)
		return
	}

	apiKey, ok := h.credential()
	if !ok {
		h.logger.Printf("CHAT_NOT_CONFIGURED | env=%s", h.cfg.CredentialEnv)
		WriteError(w, http.StatusInternalServerError, MsgNotConfigured)
		return
	}

	upstreamReq, err := cloud.BuildRequest(h.cfg.Model, h.prompt.Compose(req.Context), req.Messages)
	if err != nil {
		h.logger.Printf("CHAT_BUILD_FAILED | error=%v", err)
		WriteError(w, http.StatusInternalServerError, MsgInvalidRequest)
		return
	}

	body, err := h.gateway(apiKey).Stream(r.Context(), upstreamReq)
	if err != nil {
		h.writeGatewayError(w, err, cloud.Fingerprint(apiKey))
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	n, err := relay(w, body)
	if err != nil {
		h.logger.Printf("CHAT_RELAY_ABORTED | bytes=%d duration=%s error=%v", n, time.Since(start).Round(time.Millisecond), err)
		return
	}
	h.logger.Printf("CHAT_RELAY_COMPLETE | messages=%d context=%q bytes=%d duration=%s",
		len(req.Messages), req.Context, n, time.Since(start).Round(time.Millisecond))
}

// writeGatewayError translates a gateway failure into the caller-facing
// status and message.
func (h *ChatHandler) writeGatewayError(w http.ResponseWriter, err error, keyFP string) {
	var gwErr *cloud.GatewayError
	switch {
	case errors.Is(err, cloud.ErrRateLimited):
		WriteError(w, http.StatusTooManyRequests, MsgRateLimited)
	case errors.Is(err, cloud.ErrInsufficientCredits):
		WriteError(w, http.StatusPaymentRequired, MsgCreditsExhausted)
	case errors.As(err, &gwErr):
		// SECURITY: gateways may echo the credential back in error bodies
		body := security.RedactSecrets(util.TruncateRunes(gwErr.Body, maxLoggedBody))
		if gwErr.ReadErr != nil {
			h.logger.Printf("AI_GATEWAY_ERROR | status=%d key=%s body=%s read_error=%v", gwErr.StatusCode, keyFP, body, gwErr.ReadErr)
		} else {
			h.logger.Printf("AI_GATEWAY_ERROR | status=%d key=%s body=%s", gwErr.StatusCode, keyFP, body)
		}
		WriteError(w, http.StatusInternalServerError, MsgGatewayError)
	default:
		h.logger.Printf("AI_GATEWAY_UNREACHABLE | key=%s error=%v", keyFP, err)
		WriteError(w, http.StatusInternalServerError, MsgGatewayError)
	}
}

// relay copies src to w byte for byte, flushing after every write so each
// SSE line reaches the caller as soon as it arrives.
func relay(w http.ResponseWriter, src io.Reader) (int64, error) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, relayBufferSize)

	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			written, werr := w.Write(buf[:n])
			total += int64(written)
			if werr != nil {
				return total, werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response without a trailing newline.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// WriteError writes the {"error": message} body the chat client parses.
func WriteError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
