// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package widget

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/adtech-chat/internal/model"
)

func TestClient_SendRequestShape(t *testing.T) {
	var (
		gotAuth, gotType string
		gotBody          map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	body, err := NewClient(srv.URL, "publishable").Send(context.Background(), ChatRequest{
		Messages: []model.Turn{{Role: model.RoleUser, Content: "  What is a DSP?  "}},
		Context:  "DSP",
	})
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	body.Close()

	assert.Equal(t, "data: [DONE]\n\n", string(data))
	assert.Equal(t, "Bearer publishable", gotAuth)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "DSP", gotBody["context"])
	assert.Equal(t, []any{map[string]any{"role": "user", "content": "  What is a DSP?  "}}, gotBody["messages"])
}

func TestClient_SendOmitsEmptyContext(t *testing.T) {
	var raw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		raw = string(b)
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	body, err := NewClient(srv.URL, "").Send(context.Background(), ChatRequest{})
	require.NoError(t, err)
	body.Close()

	assert.Equal(t, `{"messages":[]}`, raw)
}

func TestClient_SendErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"rate limited", 429, `{"error":"Rate limit exceeded. Please try again in a moment."}`, "Rate limit exceeded. Please try again in a moment."},
		{"credits", 402, `{"error":"AI credits exhausted. Please add credits to continue."}`, "AI credits exhausted. Please add credits to continue."},
		{"no error field", 500, `{}`, MsgRequestFailed},
		{"not json", 502, `<html>bad gateway</html>`, MsgRequestFailed},
		{"empty", 503, ``, MsgRequestFailed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "k").Send(context.Background(), ChatRequest{})
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.Equal(t, tc.wantMsg, apiErr.Error())
		})
	}
}

func TestClient_SendNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k").Send(context.Background(), ChatRequest{})
	assert.ErrorIs(t, err, ErrNoBody)
	assert.Equal(t, "No response body", err.Error())
}

func TestClient_SendTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "k").Send(context.Background(), ChatRequest{})
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestClient_WithTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k").WithTimeout(50 * time.Millisecond)
	assert.Zero(t, sharedClient.Timeout, "shared client must stay unbounded")

	_, err := c.Send(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Timeout") || strings.Contains(err.Error(), "deadline"), err.Error())
}

func TestNewClient_DefaultEndpoint(t *testing.T) {
	assert.Equal(t, DefaultEndpoint, NewClient("", "").Endpoint())
	assert.Equal(t, "http://x/y", NewClient("http://x/y", "").Endpoint())
}
