// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/adtech-chat/internal/config"
	"github.com/jeranaias/adtech-chat/internal/widget"
)

func newAskCommand(a *app) *cobra.Command {
	var (
		flags  clientFlags
		render bool
	)

	cmd := &cobra.Command{
		Use:   "ask QUESTION...",
		Short: "Ask a single question and stream the answer",
		Long: `Ask a single question and print the answer as it streams in.

With --render the answer is collected and printed as formatted markdown
once it is complete. Rendering only happens when stdout is a terminal, so
piped output is always plain text.`,
		Example: `  adtech-chat ask "Explain RTB from a PM perspective"
  adtech-chat ask --context "Identity" How does cookie-less targeting work?`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.ask(ctx, cfg, &flags, strings.Join(args, " "), render && IsStdoutTTY())
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVarP(&render, "render", "r", false, "render the finished answer as markdown")
	return cmd
}

// ask runs one turn. Streamed output goes to stdout; a failed turn is
// returned as the error.
func (a *app) ask(ctx context.Context, cfg *config.Config, flags *clientFlags, question string, render bool) error {
	var opts []widget.Option
	printer := newReplyPrinter(a.stdout)
	if !render {
		opts = append(opts, widget.WithObserver(printer.Observe))
	}
	panel := a.newPanel(cfg, flags, opts...)
	defer panel.Close()

	err := panel.Submit(ctx, question)

	if render {
		if reply, ok := lastReply(panel.Snapshot()); ok && err == nil {
			fmt.Fprint(a.stdout, renderMarkdown(reply.Content, GetTerminalWidth()))
		}
		return err
	}
	if printer.Printed() {
		fmt.Fprintln(a.stdout)
	}
	return err
}
