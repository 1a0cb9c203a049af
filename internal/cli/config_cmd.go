// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/vaultchat/internal/config"
)

// =============================================================================
// CONFIG COMMAND
// =============================================================================

func newConfigCommand(app *App, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(
		newConfigInitCommand(app, opts),
		newConfigShowCommand(app),
		newConfigGetCommand(app),
		newConfigSetCommand(app, opts),
		newConfigPathCommand(opts),
	)
	return cmd
}

// configFile returns the file config commands read and write.
func (o *rootOptions) configFile() (string, error) {
	if o.configPath != "" {
		return config.ExpandPath(o.configPath), nil
	}
	return config.ConfigPath()
}

func newConfigInitCommand(app *App, opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a configuration file with default values",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.configFile()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return NewCommandError("config init", path+" already exists (use --force to overwrite)", nil)
			}

			cfg := config.Default()
			if opts.vaultDir != "" {
				cfg.Vault.Root = config.ExpandPath(opts.vaultDir)
			}
			if err := config.SaveFile(cfg, path); err != nil {
				return err
			}
			app.Logger.Info("config written")
			fmt.Fprintf(out(cmd), "%s wrote %s\n", RenderConditional(SuccessStyle, "[OK]"), path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func newConfigShowCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration, API key redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(out(cmd), app.Config.String())
			return nil
		},
	}
}

func newConfigGetCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "get <key>",
		Short:   "Print one effective setting",
		Example: "  vaultchat config get model.max_tokens",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := app.Config.Get(args[0])
			if err != nil {
				return err
			}
			if strings.EqualFold(args[0], "model.api_key") && value != "" {
				value = "[REDACTED]"
			}
			fmt.Fprintln(out(cmd), value)
			return nil
		},
	}
}

func newConfigSetCommand(app *App, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "set <key> <value>",
		Short:   "Change one setting in the configuration file",
		Example: "  vaultchat config set vault.root ~/Notes",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.configFile()
			if err != nil {
				return err
			}

			// Edit the file, not the effective config, so environment
			// overrides are not persisted
			cfg := config.Default()
			if _, statErr := os.Stat(path); statErr == nil {
				cfg, err = config.LoadFileOnly(path)
				if err != nil {
					return err
				}
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return NewValidationErrorWithExample("key", args[0], err.Error(), "vaultchat config set model.model opus")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.SaveFile(cfg, path); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "%s %s updated in %s\n", RenderConditional(SuccessStyle, "[OK]"), args[0], path)
			return nil
		},
	}
}

func newConfigPathCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Print the configuration file path",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.configFile()
			if err != nil {
				return err
			}
			fmt.Fprintln(out(cmd), path)
			return nil
		},
	}
}
