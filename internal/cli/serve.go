// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/adtech-chat/internal/config"
	"github.com/jeranaias/adtech-chat/internal/server"
)

// shutdownTimeout bounds how long in-flight replies may keep streaming after
// an interrupt.
const shutdownTimeout = 15 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat proxy",
		Long: `Run the stateless chat proxy.

The gateway credential is read from the environment variable named by
proxy.credential_env (LOVABLE_API_KEY by default) on every request. When
proxy.system_prompt_file is set, the file is reloaded whenever it changes.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Proxy.Addr = addr
				if err := cfg.Validate(); err != nil {
					return &ConfigError{Err: err}
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, cfg, nil)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, host:port (overrides proxy.addr)")
	return cmd
}

// serve runs the proxy until ctx is done, then shuts down gracefully. A nil
// listener listens on cfg.Proxy.Addr.
func (a *app) serve(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	srv, src, err := server.NewFromConfig(cfg.Proxy, a.logger)
	if err != nil {
		return &CommandError{Command: "serve", Action: "build proxy", Err: err}
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	if err := src.Watch(watchCtx, nil); err != nil {
		// RELIABILITY: the loaded prompt keeps serving without reloads
		a.logger.Printf("PROMPT_WATCH_DISABLED | path=%s error=%v", src.Path(), err)
	}

	if ln == nil {
		ln, err = net.Listen("tcp", srv.Addr())
		if err != nil {
			return &CommandError{Command: "serve", Action: "listen", Err: err}
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}
