// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// SERVER TESTS
// =============================================================================

func TestServer_Health(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"configured", "gw-key", "configured"},
		{"not configured", "", "not_configured"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, "http://127.0.0.1:0", tc.key, nil)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, http.StatusOK, rec.Code)
			var health HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
			assert.Equal(t, "ok", health.Status)
			assert.Equal(t, Version, health.Version)
			assert.Equal(t, tc.want, health.Gateway)
			assertCORS(t, rec.Header())
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestServer_NotFound(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:0", "k", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, `{"error":"Not found"}`, rec.Body.String())
	assertCORS(t, rec.Header())
}

func TestServer_CustomPath(t *testing.T) {
	chat := NewChatHandler(HandlerConfig{}, nil).WithLogger(log.New(io.Discard, "", 0))
	srv := NewServer(Config{ChatPath: "/chat"}, chat).WithLogger(log.New(io.Discard, "", 0))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/chat", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, DefaultAddr, srv.Addr())
}

func TestServer_ServeAndShutdown(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:0", "k", nil)
	require.NoError(t, srv.Shutdown(context.Background()), "shutdown before start")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-done)
}

// =============================================================================
// MIDDLEWARE TESTS
// =============================================================================

func TestCORSConfig_AllowOrigin(t *testing.T) {
	cfg := &CORSConfig{AllowedOrigins: []string{"https://app.example.com", "*.adtech.dev"}}

	tests := []struct {
		origin string
		want   string
	}{
		{"https://app.example.com", "https://app.example.com"},
		{"https://explorer.adtech.dev", "https://explorer.adtech.dev"},
		{"https://evil.example.org", ""},
		{"", ""},
	}
	for _, tc := range tests {
		if got := cfg.allowOrigin(tc.origin); got != tc.want {
			t.Errorf("allowOrigin(%q) = %q, want %q", tc.origin, got, tc.want)
		}
	}

	// The wildcard applies even without an Origin header.
	assert.Equal(t, "*", DefaultCORSConfig().allowOrigin(""))
}

func TestCORSMiddleware_SpecificOrigin(t *testing.T) {
	cfg := &CORSConfig{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedHeaders: []string{"content-type"},
	}
	h := CORSMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "content-type", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Origin", "https://other.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	var logs bytes.Buffer
	h := RecoveryMiddleware(log.New(&logs, "", 0))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, `{"error":"AI gateway error"}`, rec.Body.String())
	assert.Contains(t, logs.String(), "PANIC_RECOVERED | method=POST path=/x error=boom")
}

func TestLoggingMiddleware(t *testing.T) {
	var logs bytes.Buffer
	h := LoggingMiddleware(log.New(&logs, "", 0))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		io.WriteString(w, "short and stout")
		w.(http.Flusher).Flush()
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tea", nil))

	assert.True(t, rec.Flushed, "Flush must reach the underlying writer")
	line := logs.String()
	assert.True(t, strings.HasPrefix(line, "REQUEST | method=GET path=/tea status=418 bytes=15"), line)
}

func TestResponseWriter_Unwrap(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)
	assert.Same(t, rec, rw.Unwrap())

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusAccepted, rw.statusCode)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(mw("first"), mw("second"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestNewFunctionHandler(t *testing.T) {
	up := sseUpstream(t)
	chat := NewChatHandler(HandlerConfig{GatewayURL: up.server.URL}, nil).
		WithLogger(log.New(io.Discard, "", 0)).
		WithLookupEnv(func(string) (string, bool) { return "gw-key", true })
	h := NewFunctionHandler(chat, nil, log.New(io.Discard, "", 0))

	// Any path reaches the relay; the function URL owns routing.
	rec := postChat(t, h, `{"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testSSE, rec.Body.String())
	assertCORS(t, rec.Header())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assertCORS(t, rec.Header())
}
