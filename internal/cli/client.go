// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"log"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/jeranaias/adtech-chat/internal/config"
	"github.com/jeranaias/adtech-chat/internal/model"
	"github.com/jeranaias/adtech-chat/internal/widget"
)

// =============================================================================
// CLIENT FLAGS
// =============================================================================

// clientFlags are shared by the commands that talk to the proxy.
type clientFlags struct {
	context  string
	endpoint string
	verbose  bool
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.context, "context", "", "module the user is viewing (overrides client.context)")
	cmd.Flags().StringVar(&f.endpoint, "endpoint", "", "proxy URL (overrides client.endpoint)")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "log failed turns to stderr")
}

// apply folds explicitly set flags into cfg.
func (f *clientFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("context") {
		cfg.Client.Context = f.context
	}
	if cmd.Flags().Changed("endpoint") {
		cfg.Client.Endpoint = f.endpoint
		if err := cfg.Validate(); err != nil {
			return &ConfigError{Err: err}
		}
	}
	return nil
}

// newPanel builds a chat panel for cfg.Client with extra options appended.
func (a *app) newPanel(cfg *config.Config, f *clientFlags, opts ...widget.Option) *widget.Panel {
	client := widget.NewClient(cfg.Client.Endpoint, cfg.Client.APIKey)
	if t := cfg.Client.Timeout(); t > 0 {
		client = client.WithTimeout(t)
	}

	logger := log.New(io.Discard, "", 0)
	if f.verbose {
		logger = a.logger
	}
	base := []widget.Option{
		widget.WithContext(cfg.Client.Context),
		widget.WithLogger(logger),
	}
	return widget.New(client, append(base, opts...)...)
}

// =============================================================================
// REPLY PRINTER
// =============================================================================

// replyPrinter streams the growing assistant reply of each snapshot to w.
// Error replies are left to the caller, which reports them on stderr.
type replyPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	id      string
	printed int
}

func newReplyPrinter(w io.Writer) *replyPrinter {
	return &replyPrinter{w: w}
}

// Observe is a panel observer.
func (p *replyPrinter) Observe(snap model.Snapshot) {
	last, ok := snap.Last()
	if !ok || last.Role != model.RoleAssistant || last.Seed {
		return
	}
	if !last.Streaming && strings.HasPrefix(last.Content, widget.ErrorPrefix) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if last.ID != p.id {
		p.id = last.ID
		p.printed = 0
	}
	// Content only grows while a reply streams.
	if len(last.Content) > p.printed {
		io.WriteString(p.w, last.Content[p.printed:])
		p.printed = len(last.Content)
	}
}

// Printed reports whether anything of the current reply was written.
func (p *replyPrinter) Printed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.printed > 0
}

// Reset forgets the current reply.
func (p *replyPrinter) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = ""
	p.printed = 0
}

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// renderMarkdown renders content for terminal display. Returns the original
// content if rendering fails.
func renderMarkdown(content string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// lastReply returns the content of the newest non-seed assistant message.
func lastReply(snap model.Snapshot) (model.Message, bool) {
	last, ok := snap.Last()
	if !ok || last.Role != model.RoleAssistant || last.Seed {
		return model.Message{}, false
	}
	return last, true
}
