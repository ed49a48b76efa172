// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHandler_RelaysGateway(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gw-secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n")
	}))
	defer gateway.Close()

	t.Setenv("ADTECH_UPSTREAM_URL", gateway.URL)
	t.Setenv("LOVABLE_API_KEY", "gw-secret")

	h, err := newHandler(log.New(io.Discard, "", 0))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"messages":[{"role":"user","content":"What is a DSP?"}]}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Body.String(), `"content":"hi"`)
}

func TestNewHandler_Preflight(t *testing.T) {
	h, err := newHandler(log.New(io.Discard, "", 0))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestNewHandler_BadEnvironment(t *testing.T) {
	t.Setenv("ADTECH_SYSTEM_PROMPT_FILE", filepath.Join(t.TempDir(), "missing.txt"))
	_, err := newHandler(nil)
	assert.Error(t, err)
}

func TestServeHTTP_InitFailure(t *testing.T) {
	t.Setenv("ADTECH_MAX_FPS", "lots")
	rec := httptest.NewRecorder()
	serveHTTP(log.New(io.Discard, "", 0)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"AI service is not configured"}`, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "authorization, x-client-info, apikey, content-type", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestNewHandler_ConfiguredOrigins(t *testing.T) {
	t.Setenv("ADTECH_CORS_ORIGINS", "https://explorer.example.com")
	h, err := newHandler(log.New(io.Discard, "", 0))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://elsewhere.example.org")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://explorer.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://explorer.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
