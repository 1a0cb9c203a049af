// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jeranaias/vaultchat/internal/config"
	"github.com/jeranaias/vaultchat/internal/logging"
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// skipConfigAnnotation marks commands that must run even when the
// configuration file does not load.
const skipConfigAnnotation = "vaultchat/skip-config"

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	vaultDir   string
	dbPath     string
	envFile    string

	// httpClient is handed to the completion client. Tests only.
	httpClient *http.Client
}

// Execute runs the command line with args and reports any error on stderr.
// The caller maps the returned error to an exit code with GetExitCode.
func Execute(ctx context.Context, args []string) error {
	app := &App{}
	cmd := newRootCommand(&rootOptions{}, app)
	cmd.SetArgs(args)
	executed, err := cmd.ExecuteContextC(ctx)
	if closeErr := app.Close(); err == nil {
		err = closeErr
	}
	reportError(executed, err)
	return err
}

// reportError writes err for the command that produced it. Commands run
// with --json get a JSON error object on stdout so scripts read one stream;
// everything else gets the human form on stderr.
func reportError(cmd *cobra.Command, err error) {
	var reported *reportedError
	if err == nil || cmd == nil || errors.As(err, &reported) {
		return
	}
	if f := cmd.Flags().Lookup("json"); f != nil && f.Changed && f.Value.String() == "true" {
		DisplayErrorJSON(cmd.OutOrStdout(), err)
		return
	}
	DisplayError(cmd.ErrOrStderr(), err)
}

// newRootCommand builds the command tree. The caller closes app.
func newRootCommand(opts *rootOptions, app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "vaultchat",
		Short: "Chat with a language model about the notes in your vault",
		Long: `vaultchat sends chat messages to a language model. Write [[path]] in a
message to attach that vault file: notes are inlined as text, images and
PDFs are attached as binary content.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd, app)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ~/.vaultchat/config.toml)")
	flags.StringVar(&opts.vaultDir, "vault", "", "vault directory (overrides vault.root)")
	flags.StringVar(&opts.dbPath, "db", "", "conversation database (overrides storage.database_path)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before environment overrides")

	root.AddCommand(
		newChatCommand(app),
		newSendCommand(app),
		newComposeCommand(app),
		newSuggestCommand(app),
		newListCommand(app),
		newShowCommand(app),
		newNewCommand(app),
		newRenameCommand(app),
		newDeleteCommand(app),
		newMigrateCommand(app),
		newFlashcardsCommand(app),
		newConfigCommand(app, opts),
	)
	return root
}

// setup loads the environment, configuration and logger for app.
func (o *rootOptions) setup(cmd *cobra.Command, app *App) error {
	if err := loadEnvFile(o.envFile); err != nil {
		return err
	}

	cfg, err := o.loadConfig()
	if err != nil {
		if cmd.Annotations[skipConfigAnnotation] == "" {
			return err
		}
		cfg = config.Default()
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	app.Config = cfg
	app.Logger = logger
	app.httpClient = o.httpClient
	return nil
}

// loadConfig reads the config file and applies flag overrides, which win
// over the file and the environment.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if o.configPath != "" {
		cfg, err = config.LoadFromPath(config.ExpandPath(o.configPath))
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if o.vaultDir != "" {
		cfg.Vault.Root = config.ExpandPath(o.vaultDir)
	}
	if o.dbPath != "" {
		cfg.Storage.DatabasePath = config.ExpandPath(o.dbPath)
	}
	return cfg, nil
}

// loadEnvFile loads path into the environment without overriding
// variables that are already set. A missing file is fine.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// out and errOut keep command bodies short.
func out(cmd *cobra.Command) io.Writer    { return cmd.OutOrStdout() }
func errOut(cmd *cobra.Command) io.Writer { return cmd.ErrOrStderr() }
