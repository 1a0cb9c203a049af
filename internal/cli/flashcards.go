// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/vaultchat/internal/flashcards"
)

// =============================================================================
// FLASHCARDS COMMAND
// =============================================================================

func newFlashcardsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flashcards",
		Short: "Make study cards from vault notes",
	}
	cmd.AddCommand(
		newFlashcardsStepCommand(app, "create <note.md>",
			"Split a note into cards and write <note>-cards.md",
			`  vaultchat flashcards create biology/cells.md`,
			(*flashcards.Generator).Create),
		newFlashcardsStepCommand(app, "export-anki <note-cards.md>",
			"Convert a cards file into an Anki import file <note>-anki.txt",
			`  vaultchat flashcards export-anki biology/cells-cards.md`,
			(*flashcards.Generator).ExportAnki),
	)
	return cmd
}

type flashcardsStep func(g *flashcards.Generator, ctx context.Context, path string, overwrite bool) (*flashcards.Result, error)

func newFlashcardsStepCommand(app *App, use, short, example string, step flashcardsStep) *cobra.Command {
	var force, jsonOut bool

	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		Example: example,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := app.Vault()
			if err != nil {
				return err
			}
			gen := flashcards.New(v, app.Logger.Named("flashcards"))

			res, err := step(gen, cmd.Context(), args[0], force)
			switch {
			case errors.Is(err, flashcards.ErrExists):
				return NewCommandError("flashcards "+cmd.Name(), "use --force to overwrite", err)
			case errors.Is(err, flashcards.ErrWrongSource):
				return NewValidationErrorWithExample("path", args[0], err.Error(), strings.TrimSpace(cmd.Example))
			case err != nil:
				return err
			}

			if jsonOut {
				return outputJSON(out(cmd), res)
			}
			fmt.Fprintf(out(cmd), "%s wrote %s (%d cards)\n", RenderConditional(SuccessStyle, "[OK]"), res.Output, res.Cards)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing output file")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}
