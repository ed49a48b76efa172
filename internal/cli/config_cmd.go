// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/adtech-chat/internal/config"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
		Long: `Manage the configuration file.

Keys use dot notation, for example proxy.model or client.context.
Environment variables (ADTECH_*) override the file at load time.`,
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the defaults",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.resolveConfigPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return &UsageError{Message: fmt.Sprintf("%s already exists (use --force to overwrite)", path)}
			}
			if err := config.SaveTo(config.Default(), path); err != nil {
				return &ConfigError{Path: path, Err: err}
			}
			fmt.Fprintln(a.stdout, SuccessStyle.Render("Wrote "+path))
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, cfg.String())
			return nil
		},
	}

	getCmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print one configuration value",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			v, err := cfg.Get(args[0])
			if err != nil {
				return &UsageError{Message: err.Error()}
			}
			if args[0] == "client.api_key" && v != "" {
				v = "[REDACTED]"
			}
			fmt.Fprintln(a.stdout, v)
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change one value in the config file",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.resolveConfigPath()
			if err != nil {
				return err
			}
			// Start from the file alone so environment overrides are not
			// written back.
			cfg, err := config.ReadFile(path)
			if errors.Is(err, os.ErrNotExist) {
				cfg, err = config.Default(), nil
			}
			if err != nil {
				return &ConfigError{Path: path, Err: err}
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return &UsageError{Message: err.Error()}
			}
			if err := cfg.Validate(); err != nil {
				return &ConfigError{Path: path, Err: err}
			}
			if err := config.SaveTo(cfg, path); err != nil {
				return &ConfigError{Path: path, Err: err}
			}
			fmt.Fprintln(a.stdout, LabelStyle.Render(args[0]), ValueStyle.Render(args[1]))
			return nil
		},
	}

	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "List every configuration key",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, k := range config.Keys() {
				fmt.Fprintln(a.stdout, k)
			}
			return nil
		},
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.resolveConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, path)
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd, getCmd, setCmd, keysCmd, pathCmd)
	return cmd
}

// resolveConfigPath returns --config or the default location.
func (a *app) resolveConfigPath() (string, error) {
	if a.configPath != "" {
		return a.configPath, nil
	}
	path, err := config.ConfigPath()
	if err != nil {
		return "", &ConfigError{Err: err}
	}
	return path, nil
}
