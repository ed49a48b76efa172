// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/adtech-chat/internal/config"
	uichat "github.com/jeranaias/adtech-chat/internal/ui/chat"
	"github.com/jeranaias/adtech-chat/internal/ui/styles"
	"github.com/jeranaias/adtech-chat/internal/widget"
)

func newChatCommand(a *app) *cobra.Command {
	var (
		flags clientFlags
		plain bool
		panel bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the chat panel",
		Long: `Open the interactive chat panel.

On a terminal this is a full-screen panel. With --plain, or when stdin or
stdout is not a terminal, a line-mode chat with history is used instead.
With --panel there is no fallback: the command fails without a terminal.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}
			if plain && panel {
				return &UsageError{Message: "--plain and --panel cannot be used together"}
			}
			if panel {
				if err := RequiresTTY("open the chat panel"); err != nil {
					return err
				}
				if !IsStdoutTTY() {
					return &TTYRequiredError{Operation: "open the chat panel", Stream: "stdout"}
				}
				return a.panelChat(cmd.Context(), cfg, &flags)
			}
			if plain || !IsTTY() || !IsStdoutTTY() {
				return a.lineChat(cmd.Context(), cfg, &flags)
			}
			return a.panelChat(cmd.Context(), cfg, &flags)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&plain, "plain", false, "use line mode instead of the full-screen panel")
	cmd.Flags().BoolVar(&panel, "panel", false, "require the full-screen panel; fail without a terminal")
	return cmd
}

// =============================================================================
// FULL-SCREEN PANEL
// =============================================================================

func (a *app) panelChat(ctx context.Context, cfg *config.Config, flags *clientFlags) error {
	bridge := uichat.NewBridge(cfg.UI.MaxFPS)
	panel := a.newPanel(cfg, flags, widget.WithObserver(bridge.Observe))
	// Close after Run returns: late observer calls then find the program
	// stopped instead of blocking on it.
	defer panel.Close()

	m := uichat.New(panel, styles.NewTheme(), bridge, uichat.Options{
		Markdown: cfg.UI.Markdown,
		Context:  ctx,
	})
	p := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	bridge.Attach(p)

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return &CommandError{Command: "chat", Action: "run panel", Err: err}
	}
	return nil
}

// =============================================================================
// LINE MODE
// =============================================================================

// lineReader is the subset of liner.State line mode uses.
type lineReader interface {
	PromptWithSuggestion(prompt, text string, pos int) (string, error)
	AppendHistory(item string)
}

// lineHistory loads and saves liner history in the config directory.
type lineHistory struct {
	state *liner.State
	path  string
}

func openLineHistory() *lineHistory {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)

	h := &lineHistory{state: state}
	if dir, err := config.ConfigDir(); err == nil {
		h.path = filepath.Join(dir, "chat_history")
		if f, err := os.Open(h.path); err == nil {
			state.ReadHistory(f)
			f.Close()
		}
	}
	return h
}

// Close saves history with owner-only permissions and restores the terminal.
func (h *lineHistory) Close() {
	defer h.state.Close()
	if h.path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0700); err != nil {
		return
	}
	// SECURITY: questions may be sensitive; history is owner-only
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	h.state.WriteHistory(f)
}

func (a *app) lineChat(ctx context.Context, cfg *config.Config, flags *clientFlags) error {
	h := openLineHistory()
	defer h.Close()
	return a.runLineChat(ctx, cfg, flags, h.state)
}

const lineHelp = `Commands:
  /prompts         list suggested questions
  /N               put suggestion N on the input line
  /context [NAME]  show or set the module you are viewing
  /clear           start a new conversation
  /quit            leave (also Ctrl+C or Ctrl+D at the prompt)`

// runLineChat is the line-mode loop. Ctrl+C while a reply streams stops the
// reply and returns to the prompt.
func (a *app) runLineChat(ctx context.Context, cfg *config.Config, flags *clientFlags, in lineReader) error {
	printer := newReplyPrinter(a.stdout)
	panel := a.newPanel(cfg, flags, widget.WithObserver(printer.Observe))
	defer panel.Close()

	fmt.Fprintln(a.stdout, TitleStyle.Render(uichat.Title)+" "+DimStyle.Render(uichat.Subtitle))
	if welcome, ok := panel.Snapshot().Last(); ok {
		fmt.Fprintln(a.stdout, AssistantStyle.Render("Explainer:"), welcome.Content)
	}
	fmt.Fprintln(a.stdout, DimStyle.Render("Type /help for commands."))

	prompt := "you> "
	suggestion := ""
	for {
		if ctx.Err() != nil {
			return nil
		}

		input, err := in.PromptWithSuggestion(prompt, suggestion, -1)
		suggestion = ""
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(a.stdout)
				return nil
			}
			return &CommandError{Command: "chat", Action: "read input", Err: err}
		}

		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "/") {
			next, quit := a.lineCommand(panel, printer, trimmed)
			if quit {
				return nil
			}
			suggestion = next
			continue
		}

		in.AppendHistory(input)
		a.lineTurn(ctx, panel, printer, input)
	}
}

// lineTurn sends one message and prints the reply as it streams.
func (a *app) lineTurn(ctx context.Context, panel *widget.Panel, printer *replyPrinter, input string) {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	printer.Reset()
	fmt.Fprint(a.stdout, AssistantStyle.Render("Explainer: "))
	err := panel.Submit(turnCtx, input)
	fmt.Fprintln(a.stdout)

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(a.stdout, DimStyle.Render("(interrupted)"))
	default:
		if reply, ok := lastReply(panel.Snapshot()); ok && strings.HasPrefix(reply.Content, widget.ErrorPrefix) {
			fmt.Fprintln(a.stderr, ErrorStyle.Render(reply.Content))
		} else {
			fmt.Fprintln(a.stderr, ErrorStyle.Render(err.Error()))
		}
	}
}

// lineCommand handles a slash command. It returns text to place on the next
// input line, and whether to quit.
func (a *app) lineCommand(panel *widget.Panel, printer *replyPrinter, cmdline string) (string, bool) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(cmdline, "/"), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "quit", "exit", "q":
		return "", true

	case "help", "?":
		fmt.Fprintln(a.stdout, lineHelp)

	case "prompts":
		for i, p := range panel.QuickPrompts() {
			fmt.Fprintf(a.stdout, "  %s %s\n", PromptStyle.Render(fmt.Sprintf("/%d", i+1)), p)
		}

	case "context":
		if arg != "" {
			panel.SetContext(arg)
		}
		label := panel.Context()
		if label == "" {
			label = "(none)"
		}
		fmt.Fprintln(a.stdout, LabelStyle.Render("Context:"), ValueStyle.Render(label))

	case "clear":
		if err := panel.Reset(); err != nil {
			fmt.Fprintln(a.stderr, ErrorStyle.Render(err.Error()))
			break
		}
		printer.Reset()
		fmt.Fprintln(a.stdout, SuccessStyle.Render("Started a new conversation."))

	default:
		prompts := panel.QuickPrompts()
		if n, err := strconv.Atoi(name); err == nil && n >= 1 && n <= len(prompts) {
			return prompts[n-1], false
		}
		fmt.Fprintln(a.stderr, ErrorStyle.Render("Unknown command: /"+name), DimStyle.Render("(try /help)"))
	}
	return "", false
}
