// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/vaultchat/internal/storage"
)

// =============================================================================
// LIST
// =============================================================================

type conversationSummary struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Messages  int       `json:"messages"`
	Preview   string    `json:"preview,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newListCommand(app *App) *cobra.Command {
	var search string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List conversations, most recently updated first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := app.Store(cmd.Context())
			if err != nil {
				return err
			}
			convs, err := repo.Search(cmd.Context(), search)
			if err != nil {
				return err
			}

			if jsonOut {
				summaries := make([]conversationSummary, 0, len(convs))
				for _, c := range convs {
					summaries = append(summaries, conversationSummary{
						ID:        c.ID,
						Title:     c.Title,
						Messages:  c.MessageCount(),
						Preview:   c.Preview(80),
						CreatedAt: c.CreatedAt,
						UpdatedAt: c.UpdatedAt,
					})
				}
				return outputJSON(out(cmd), summaries)
			}
			writeConversationTable(out(cmd), convs, 0, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "only conversations whose title or messages contain this text")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

// =============================================================================
// SHOW
// =============================================================================

func newShowCommand(app *App) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			repo, err := app.Store(cmd.Context())
			if err != nil {
				return err
			}
			conv, err := repo.Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			if jsonOut {
				data, err := storage.ExportJSON(conv)
				if err != nil {
					return err
				}
				fmt.Fprintln(out(cmd), string(data))
				return nil
			}
			newRenderer(out(cmd)).Markdown(storage.ExportMarkdown(conv))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

// =============================================================================
// NEW / RENAME / DELETE
// =============================================================================

func newNewCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "new [title]",
		Short: "Create an empty conversation and print its id",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := app.Store(cmd.Context())
			if err != nil {
				return err
			}
			id, err := repo.Create(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(out(cmd), id)
			return nil
		},
	}
}

func newRenameCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Change a conversation's title",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			repo, err := app.Store(cmd.Context())
			if err != nil {
				return err
			}
			title := strings.Join(args[1:], " ")
			if err := repo.Rename(cmd.Context(), id, title); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "%s conversation %d renamed to %q\n",
				RenderConditional(SuccessStyle, "[OK]"), id, strings.TrimSpace(title))
			return nil
		},
	}
}

func newDeleteCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		Short:   "Delete conversations",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := app.Store(cmd.Context())
			if err != nil {
				return err
			}
			for _, arg := range args {
				id, err := parseID(arg)
				if err != nil {
					return err
				}
				if err := repo.Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(out(cmd), "%s conversation %d deleted\n",
					RenderConditional(SuccessStyle, "[OK]"), id)
			}
			return nil
		},
	}
}

// =============================================================================
// MIGRATE
// =============================================================================

func newMigrateCommand(app *App) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade the conversation database and rewrite stored messages in canonical form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := app.Store(cmd.Context())
			if err != nil {
				return err
			}
			res, err := repo.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			// Opening the store already migrates; report that run if it did the work
			if open := repo.OpenMigration(); !res.Changed() && open.Changed() {
				res = open
			}

			var size int64
			if info, err := os.Stat(repo.Path()); err == nil {
				size = info.Size()
			}

			if jsonOut {
				return outputJSON(out(cmd), map[string]interface{}{
					"size_bytes":  size,
					"from":        res.From,
					"to":          res.To,
					"records":     res.Records,
					"coerced":     res.Coerced,
					"reset":       res.Reset,
					"duration_ms": res.Duration.Milliseconds(),
				})
			}

			w := out(cmd)
			fmt.Fprintln(w, RenderConditional(TitleStyle, "Migration"))
			fmt.Fprintf(w, "%s%s\n", RenderLabel("Database"), repo.Path())
			fmt.Fprintf(w, "%s%s\n", RenderLabel("Size"), formatBytes(size))
			fmt.Fprintf(w, "%sv%d -> v%d\n", RenderLabel("Schema"), res.From, res.To)
			fmt.Fprintf(w, "%s%d\n", RenderLabel("Records"), res.Records)
			fmt.Fprintf(w, "%s%d\n", RenderLabel("Rewritten"), res.Coerced)
			fmt.Fprintf(w, "%s%d\n", RenderLabel("Reset"), res.Reset)
			fmt.Fprintf(w, "%s%s\n", RenderLabel("Took"), formatDurationShort(res.Duration))
			if !res.Changed() {
				fmt.Fprintln(w, RenderConditional(DimStyle, "Already up to date."))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}
