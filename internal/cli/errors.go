// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jeranaias/adtech-chat/internal/config"
	"github.com/jeranaias/adtech-chat/internal/widget"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitNetworkError indicates the proxy could not be reached or failed
	ExitNetworkError = 5
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitInterrupted indicates the user interrupted the command
	ExitInterrupted = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // Command that failed (e.g., "serve", "ask")
	Action  string // Action being performed (e.g., "load config")
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// UsageError reports invalid arguments.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// ConfigError wraps a failure to load or validate configuration.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		usageErr  *UsageError
		ttyErr    *TTYRequiredError
		configErr *ConfigError
		verrs     config.ValidationErrors
		apiErr    *widget.APIError
		netErr    net.Error
	)
	switch {
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.As(err, &usageErr), errors.As(err, &ttyErr):
		return ExitUsageError
	case errors.As(err, &configErr), errors.As(err, &verrs):
		return ExitConfigError
	case errors.As(err, &apiErr), errors.Is(err, widget.ErrNoBody):
		return ExitNetworkError
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return ExitTimeoutError
		}
		return ExitNetworkError
	}
	return ExitGeneralError
}
