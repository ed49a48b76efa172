// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/jeranaias/adtech-chat/internal/config"
)

// Version information (set at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// APPLICATION STATE
// =============================================================================

// app carries what every command shares: streams, the logger and the
// --config flag.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	logger *log.Logger

	configPath string
}

// loadConfig loads the file named by --config, or the default file. An
// explicit path must exist; the default file is optional.
func (a *app) loadConfig() (*config.Config, error) {
	if a.configPath != "" {
		cfg, err := config.LoadFromPath(a.configPath)
		if err != nil {
			return nil, &ConfigError{Path: a.configPath, Err: err}
		}
		return cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		path, _ := config.ConfigPath()
		return nil, &ConfigError{Path: path, Err: err}
	}
	return cfg, nil
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// NewRootCommand builds the adtech-chat command tree writing to the given
// streams.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		logger: log.New(stderr, "", log.LstdFlags),
	}

	root := &cobra.Command{
		Use:   "adtech-chat",
		Short: "AdTech explainer chat panel and proxy",
		Long: `adtech-chat answers questions about programmatic advertising.

It has two halves: a stateless proxy that relays conversation turns to the
AI gateway and streams the reply back, and a terminal chat panel that talks
to that proxy.

Examples:
  adtech-chat serve                               Run the proxy
  adtech-chat chat --context "Header Bidding"     Open the chat panel
  adtech-chat ask "What is a DSP?"                Ask one question
  adtech-chat config init                         Write a default config file`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Message: err.Error()}
	})
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default ~/.adtech-chat/config.toml)")

	root.AddCommand(
		newServeCommand(a),
		newChatCommand(a),
		newAskCommand(a),
		newConfigCommand(a),
		newVersionCommand(a),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	root := NewRootCommand(os.Stdin, os.Stdout, os.Stderr)
	err := root.ExecuteContext(context.Background())
	if err == nil {
		return ExitSuccess
	}
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error:"), err)
	}
	return ExitCode(err)
}

// =============================================================================
// VERSION
// =============================================================================

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(a.stdout, "adtech-chat %s\n", Version)
			fmt.Fprintf(a.stdout, "  commit:  %s\n", GitCommit)
			fmt.Fprintf(a.stdout, "  built:   %s\n", BuildDate)
			fmt.Fprintf(a.stdout, "  go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}

// usageArgs wraps a cobra positional-args check so violations map to
// ExitUsageError.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &UsageError{Message: err.Error()}
		}
		return nil
	}
}
