// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/jeranaias/vaultchat/internal/compose"
	"github.com/jeranaias/vaultchat/internal/model"
	"github.com/jeranaias/vaultchat/internal/reference"
	"github.com/jeranaias/vaultchat/internal/session"
)

// =============================================================================
// SEND
// =============================================================================

type skippedReference struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type sendResult struct {
	ConversationID int64              `json:"conversation_id"`
	Created        bool               `json:"created"`
	Reply          *model.Message     `json:"reply,omitempty"`
	Skipped        []skippedReference `json:"skipped,omitempty"`
	Error          string             `json:"error,omitempty"`
}

func newSendCommand(app *App) *cobra.Command {
	var conversation int64
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send one message and print the reply",
		Long: `Send one message and print the reply. Without a message argument the
message is read from stdin. Without --conversation a new conversation is
created and titled from the message.`,
		Example: `  vaultchat send "summarize [[journal/2025-01-06.md]]"
  cat question.txt | vaultchat send --conversation 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readMessage(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			sess, err := app.Session(cmd.Context())
			if err != nil {
				return err
			}
			if conversation != 0 {
				if _, err := sess.Select(cmd.Context(), conversation); err != nil {
					return err
				}
			}

			sess.SetInput(text)
			res, err := submitInterruptible(cmd.Context(), sess)

			if jsonOut {
				return writeSendJSON(cmd, res, err)
			}
			if res != nil {
				newRenderer(errOut(cmd)).Failures(res.Composition.Failures)
				if err == nil {
					newRenderer(out(cmd)).Markdown(res.Reply.PlainText())
				}
				if res.Created {
					fmt.Fprintln(errOut(cmd), RenderConditional(DimStyle,
						fmt.Sprintf("conversation %d", res.ConversationID)))
				}
			}
			return err
		},
	}
	cmd.Flags().Int64VarP(&conversation, "conversation", "c", 0, "conversation id to continue")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

func writeSendJSON(cmd *cobra.Command, res *session.Result, err error) error {
	if res == nil {
		return err
	}
	result := sendResult{
		ConversationID: res.ConversationID,
		Created:        res.Created,
		Skipped:        skipped(res.Composition.Failures),
	}
	if err != nil {
		result.Error = err.Error()
	} else {
		result.Reply = &res.Reply
	}
	if encErr := outputJSON(out(cmd), result); encErr != nil {
		return encErr
	}
	if err != nil {
		return &reportedError{err: err}
	}
	return nil
}

// submitInterruptible submits with a context that Ctrl+C cancels.
func submitInterruptible(ctx context.Context, sess *session.Session) (*session.Result, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	return sess.Submit(ctx)
}

func skipped(failures []*compose.ResolutionError) []skippedReference {
	if len(failures) == 0 {
		return nil
	}
	refs := make([]skippedReference, len(failures))
	for i, f := range failures {
		refs[i] = skippedReference{Path: f.Path, Error: f.Err.Error()}
	}
	return refs
}

// =============================================================================
// COMPOSE
// =============================================================================

func newComposeCommand(app *App) *cobra.Command {
	var stored bool

	cmd := &cobra.Command{
		Use:   "compose [message]",
		Short: "Print the message that would be sent, without sending it",
		Long: `Resolve every [[reference]] in the message against the vault and print
the resulting user message as JSON. Unresolved references are reported on
stderr and left out of the message.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readMessage(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			composer, err := app.Composer()
			if err != nil {
				return err
			}
			comp, err := composer.Compose(cmd.Context(), text)
			if err != nil {
				return err
			}

			newRenderer(errOut(cmd)).Failures(comp.Failures)
			msg := comp.Message
			if !stored {
				msg = model.ForWire([]model.Message{msg})[0]
			}
			return outputJSON(out(cmd), msg)
		},
	}
	cmd.Flags().BoolVar(&stored, "stored", false, "print the stored form, with file embeds kept as blocks")
	return cmd
}

// =============================================================================
// SUGGEST
// =============================================================================

func newSuggestCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <partial>",
		Short: "Print vault paths matching a partial reference, best first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := app.Autocomplete(cmd.Context(), false)
			if err != nil {
				return err
			}
			partial := ""
			if len(args) == 1 {
				partial = args[0]
			}
			text := reference.Open + partial
			ctrl.HandleInput(cmd.Context(), text, len(text), 0)

			suggestions := ctrl.State().Suggestions
			if len(suggestions) == 0 {
				return errors.New("no matching files")
			}
			for _, s := range suggestions {
				fmt.Fprintln(out(cmd), s)
			}
			return nil
		},
	}
}
