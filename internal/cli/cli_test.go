// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/peterh/liner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/adtech-chat/internal/config"
	"github.com/jeranaias/adtech-chat/internal/model"
	"github.com/jeranaias/adtech-chat/internal/widget"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func sseDelta(s string) string {
	b, _ := json.Marshal(map[string]any{"choices": []any{map[string]any{"delta": map[string]string{"content": s}}}})
	return "data: " + string(b) + "\n\n"
}

// fakeProxy serves SSE replies and records the request bodies it saw.
type fakeProxy struct {
	*httptest.Server

	mu     sync.Mutex
	bodies []widget.ChatRequest
	status int
	reply  string
}

func newFakeProxy(t *testing.T, reply string) *fakeProxy {
	t.Helper()
	p := &fakeProxy{status: http.StatusOK, reply: reply}
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req widget.ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		p.mu.Lock()
		p.bodies = append(p.bodies, req)
		status, reply := p.status, p.reply
		p.mu.Unlock()

		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			fmt.Fprintf(w, `{"error":%q}`, reply)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, reply)
	}))
	t.Cleanup(p.Close)
	return p
}

func (p *fakeProxy) last() widget.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bodies[len(p.bodies)-1]
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func clientConfig(t *testing.T, endpoint string) string {
	return writeConfig(t, fmt.Sprintf("[client]\nendpoint = %q\ncontext = \"DSP\"\n", endpoint))
}

// execute runs the command line and returns stdout, stderr and the error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand(strings.NewReader(""), &stdout, &stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func testApp() (*app, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return &app{
		stdin:  strings.NewReader(""),
		stdout: &stdout,
		stderr: &stderr,
		logger: log.New(io.Discard, "", 0),
	}, &stdout, &stderr
}

// =============================================================================
// ROOT AND VERSION
// =============================================================================

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand(nil, io.Discard, io.Discard)
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "chat", "ask", "config", "version"} {
		assert.True(t, names[want], "missing %s command", want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "adtech-chat "+Version)
	assert.Contains(t, out, "commit:")
}

func TestUsageErrors(t *testing.T) {
	_, _, err := execute(t, "ask")
	var usage *UsageError
	require.ErrorAs(t, err, &usage)
	assert.Equal(t, ExitUsageError, ExitCode(err))

	_, _, err = execute(t, "version", "extra")
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

// =============================================================================
// CONFIG COMMANDS
// =============================================================================

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, _, err := execute(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	_, _, err = execute(t, "--config", path, "config", "init")
	assert.Equal(t, ExitUsageError, ExitCode(err), "init refuses to overwrite")

	_, _, err = execute(t, "--config", path, "config", "init", "--force")
	require.NoError(t, err)

	_, _, err = execute(t, "--config", path, "config", "set", "client.context", "Header Bidding")
	require.NoError(t, err)
	_, _, err = execute(t, "--config", path, "config", "set", "client.api_key", "pk_secret")
	require.NoError(t, err)

	out, _, err = execute(t, "--config", path, "config", "get", "client.context")
	require.NoError(t, err)
	assert.Equal(t, "Header Bidding\n", out)

	out, _, err = execute(t, "--config", path, "config", "get", "client.api_key")
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]\n", out)

	out, _, err = execute(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `"context": "Header Bidding"`)
	assert.NotContains(t, out, "pk_secret")

	out, _, err = execute(t, "--config", path, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)

	out, _, err = execute(t, "config", "keys")
	require.NoError(t, err)
	assert.Contains(t, out, "proxy.upstream_url\n")
}

func TestConfigSet_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	_, _, err := execute(t, "--config", path, "config", "set", "proxy.nope", "x")
	assert.Equal(t, ExitUsageError, ExitCode(err))

	_, _, err = execute(t, "--config", path, "config", "set", "ui.max_fps", "0")
	assert.Equal(t, ExitConfigError, ExitCode(err))

	_, statErr := os.Stat(path)
	assert.ErrorIs(t, statErr, os.ErrNotExist, "nothing is written on failure")
}

func TestConfigSet_DoesNotPersistEnvironment(t *testing.T) {
	t.Setenv("ADTECH_MODEL", "env-model")
	path := filepath.Join(t.TempDir(), "config.toml")

	_, _, err := execute(t, "--config", path, "config", "set", "client.context", "Identity")
	require.NoError(t, err)

	cfg, err := config.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Proxy.Model, cfg.Proxy.Model)
	assert.Equal(t, "Identity", cfg.Client.Context)
}

func TestMissingExplicitConfig(t *testing.T) {
	_, _, err := execute(t, "--config", filepath.Join(t.TempDir(), "absent.toml"), "config", "show")
	assert.Equal(t, ExitConfigError, ExitCode(err))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// =============================================================================
// ASK
// =============================================================================

func TestAsk_StreamsAnswer(t *testing.T) {
	proxy := newFakeProxy(t, sseDelta("A DSP buys ")+sseDelta("ad impressions.")+"data: [DONE]\n\n")
	path := clientConfig(t, proxy.URL)

	out, _, err := execute(t, "--config", path, "ask", "What", "is", "a", "DSP?")
	require.NoError(t, err)
	assert.Equal(t, "A DSP buys ad impressions.\n", out)

	req := proxy.last()
	assert.Equal(t, "DSP", req.Context)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, model.Turn{Role: model.RoleUser, Content: "What is a DSP?"}, req.Messages[0])
}

func TestAsk_ContextFlag(t *testing.T) {
	proxy := newFakeProxy(t, sseDelta("ok"))
	path := clientConfig(t, proxy.URL)

	_, _, err := execute(t, "--config", path, "ask", "--context", "Identity", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Identity", proxy.last().Context)
}

func TestAsk_ProxyError(t *testing.T) {
	proxy := newFakeProxy(t, "Rate limit exceeded. Please try again in a moment.")
	proxy.status = http.StatusTooManyRequests
	path := clientConfig(t, proxy.URL)

	out, _, err := execute(t, "--config", path, "ask", "hello")
	require.Error(t, err)
	assert.Empty(t, out, "error replies are not streamed to stdout")

	var apiErr *widget.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, ExitNetworkError, ExitCode(err))
}

// =============================================================================
// LINE MODE
// =============================================================================

// scriptedReader replays input lines and records the suggestions offered.
type scriptedReader struct {
	lines       []string
	suggestions []string
	history     []string
}

func (r *scriptedReader) PromptWithSuggestion(prompt, text string, pos int) (string, error) {
	r.suggestions = append(r.suggestions, text)
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	if line == "<accept>" {
		return text, nil
	}
	return line, nil
}

func (r *scriptedReader) AppendHistory(item string) {
	r.history = append(r.history, item)
}

func TestRunLineChat(t *testing.T) {
	proxy := newFakeProxy(t, sseDelta("Programmatic ")+sseDelta("answer."))
	cfg := config.Default()
	cfg.Client.Endpoint = proxy.URL

	a, stdout, stderr := testApp()
	in := &scriptedReader{lines: []string{
		"/prompts",
		"/2",
		"<accept>",
		"/context Identity",
		"  ",
		"/bogus",
		"/clear",
		"/quit",
	}}

	err := a.runLineChat(context.Background(), cfg, &clientFlags{}, in)
	require.NoError(t, err)

	out := stdout.String()
	assert.Contains(t, out, widget.Welcome)
	assert.Contains(t, out, widget.QuickPrompts[3])
	assert.Contains(t, out, "Programmatic answer.")
	assert.Contains(t, out, "Identity")
	assert.Contains(t, out, "Started a new conversation.")
	assert.Contains(t, stderr.String(), "Unknown command: /bogus")

	// "/2" puts the suggestion on the next prompt without sending it.
	assert.Equal(t, widget.QuickPrompts[1], in.suggestions[2])
	assert.Equal(t, []string{widget.QuickPrompts[1]}, in.history)
	assert.Equal(t, widget.QuickPrompts[1], proxy.last().Messages[0].Content)
}

func TestRunLineChat_ErrorsAndExit(t *testing.T) {
	proxy := newFakeProxy(t, "AI credits exhausted. Please add credits to continue.")
	proxy.status = http.StatusPaymentRequired
	cfg := config.Default()
	cfg.Client.Endpoint = proxy.URL

	a, _, stderr := testApp()
	in := &scriptedReader{lines: []string{"hello"}}

	// EOF after the last line ends the session cleanly.
	require.NoError(t, a.runLineChat(context.Background(), cfg, &clientFlags{}, in))
	assert.Contains(t, stderr.String(), widget.ErrorPrefix+"AI credits exhausted.")
}

type abortingReader struct{}

func (abortingReader) PromptWithSuggestion(string, string, int) (string, error) {
	return "", liner.ErrPromptAborted
}
func (abortingReader) AppendHistory(string) {}

func TestRunLineChat_CtrlCAtPrompt(t *testing.T) {
	a, _, _ := testApp()
	assert.NoError(t, a.runLineChat(context.Background(), config.Default(), &clientFlags{}, abortingReader{}))
}

// =============================================================================
// REPLY PRINTER
// =============================================================================

func TestReplyPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := newReplyPrinter(&buf)

	reply := model.NewMessage(model.RoleAssistant, "")
	reply.Streaming = true
	user := model.NewUserMessage("q")
	snap := func(content string) model.Snapshot {
		r := reply
		r.Content = content
		return model.Snapshot{Messages: []model.Message{user, r}}
	}

	p.Observe(model.Snapshot{Messages: []model.Message{model.NewSeedMessage("hi")}})
	p.Observe(model.Snapshot{Messages: []model.Message{user}})
	p.Observe(snap("Real"))
	p.Observe(snap("Real-time"))
	p.Observe(snap("Real-time"))
	assert.Equal(t, "Real-time", buf.String())
	assert.True(t, p.Printed())

	failed := model.NewMessage(model.RoleAssistant, widget.ErrorPrefix+"boom")
	p.Observe(model.Snapshot{Messages: []model.Message{user, failed}})
	assert.Equal(t, "Real-time", buf.String(), "error replies are reported elsewhere")

	p.Reset()
	assert.False(t, p.Printed())
}

// =============================================================================
// SERVE
// =============================================================================

func TestServe_StartsAndStops(t *testing.T) {
	a, _, _ := testApp()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, config.Default(), ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServe_BadPromptFile(t *testing.T) {
	a, _, _ := testApp()
	cfg := config.Default()
	cfg.Proxy.SystemPromptFile = filepath.Join(t.TempDir(), "missing.txt")

	err := a.serve(context.Background(), cfg, nil)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "serve", cmdErr.Command)
}

// =============================================================================
// EXIT CODES
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", &UsageError{Message: "bad"}, ExitUsageError},
		{"config", &ConfigError{Err: errors.New("x")}, ExitConfigError},
		{"validation", config.ValidationErrors{{Field: "ui.max_fps", Message: "bad"}}, ExitConfigError},
		{"api", &widget.APIError{StatusCode: 500, Message: "AI gateway error"}, ExitNetworkError},
		{"no body", widget.ErrNoBody, ExitNetworkError},
		{"wrapped cancel", fmt.Errorf("turn: %w", context.Canceled), ExitInterrupted},
		{"deadline", context.DeadlineExceeded, ExitTimeoutError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCode(tc.err))
		})
	}
}

func TestChatPanel_RequiresTerminal(t *testing.T) {
	if IsTTY() {
		t.Skip("stdin is a terminal")
	}
	path := clientConfig(t, "http://127.0.0.1:1")

	_, _, err := execute(t, "--config", path, "chat", "--panel")
	var ttyErr *TTYRequiredError
	require.ErrorAs(t, err, &ttyErr)
	assert.Equal(t, "stdin is not a terminal; cannot open the chat panel interactively", err.Error())
	assert.Equal(t, ExitUsageError, ExitCode(err))

	_, _, err = execute(t, "--config", path, "chat", "--panel", "--plain")
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	_, _, err := execute(t, "ask", "--nope", "hello")
	assert.Equal(t, ExitUsageError, ExitCode(err))
}
