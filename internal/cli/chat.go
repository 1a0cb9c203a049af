// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL.
//
// Line editing and history come from liner. Tab inside [[...]] completes
// vault paths through the autocomplete controller. The session owns the
// input buffer: when a submit fails before the message is stored, the
// next prompt is prefilled with the restored input.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/vaultchat/internal/config"
	"github.com/jeranaias/vaultchat/internal/model"
	"github.com/jeranaias/vaultchat/internal/session"
	"github.com/jeranaias/vaultchat/internal/storage"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader reads one line of input. Prompt returns io.EOF when the user
// ends the session (Ctrl+D or Ctrl+C at an empty prompt).
type lineReader interface {
	Prompt(prompt, prefill string) (string, error)
	Close() error
}

// linerInput provides input history and line editing for interactive chat.
type linerInput struct {
	line        *liner.State
	historyFile string
}

func newLinerInput(completer *referenceCompleter) *linerInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetTabCompletionStyle(liner.TabCircular)
	line.SetWordCompleter(completer.Complete)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	in := &linerInput{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	in.loadHistory()
	return in
}

func (c *linerInput) loadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// Prompt reads a line with prefill already typed and the cursor at its end.
func (c *linerInput) Prompt(prompt, prefill string) (string, error) {
	input, err := c.line.PromptWithSuggestion(prompt, prefill, -1)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// saveHistory persists history with owner-only permissions.
func (c *linerInput) saveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *linerInput) Close() error {
	c.saveHistory()
	return c.line.Close()
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

func newChatCommand(app *App) *cobra.Command {
	var conversation int64

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Long: `Start an interactive chat. Type [[ to reference a vault file and press
Tab to complete its path. Type /help for the list of commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := RequiresTTY(cmd.InOrStdin(), "chat"); err != nil {
				return err
			}

			sess, err := app.Session(ctx)
			if err != nil {
				return err
			}
			repo, err := app.Store(ctx)
			if err != nil {
				return err
			}
			ctrl, err := app.Autocomplete(ctx, true)
			if err != nil {
				return err
			}

			input := newLinerInput(&referenceCompleter{ctx: ctx, ctrl: ctrl})
			defer input.Close()

			repl := newChatREPL(sess, repo, input, out(cmd), errOut(cmd), app.Logger)
			if conversation != 0 {
				if err := repl.open(ctx, conversation); err != nil {
					return err
				}
			} else {
				repl.printWelcome(app.Client().Model())
			}
			return repl.Run(ctx)
		},
	}
	cmd.Flags().Int64VarP(&conversation, "conversation", "c", 0, "conversation id to continue")
	return cmd
}

// =============================================================================
// REPL
// =============================================================================

// chatREPL runs the read-submit-print loop over a session.
type chatREPL struct {
	sess   *session.Session
	store  *storage.Repository
	input  lineReader
	out    io.Writer
	errOut io.Writer
	render *renderer
	notes  *renderer
	logger *zap.Logger
	now    func() time.Time
}

func newChatREPL(sess *session.Session, store *storage.Repository, input lineReader, out, errOut io.Writer, logger *zap.Logger) *chatREPL {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &chatREPL{
		sess:   sess,
		store:  store,
		input:  input,
		out:    out,
		errOut: errOut,
		render: newRenderer(out),
		notes:  newRenderer(errOut),
		logger: logger,
		now:    time.Now,
	}
}

func (r *chatREPL) printWelcome(modelID string) {
	fmt.Fprintln(r.out, RenderConditional(TitleStyle, "vaultchat"))
	fmt.Fprintln(r.out, RenderConditional(DimStyle,
		fmt.Sprintf("model %s. Type [[ and Tab to attach a file, /help for commands, Ctrl+D to quit.", modelID)))
	fmt.Fprintln(r.out)
}

// prompt stays unstyled: the line editor rejects control characters in it.
func (r *chatREPL) prompt() string {
	if id := r.sess.Selected(); id != 0 {
		return fmt.Sprintf("[%d]> ", id)
	}
	return "> "
}

// Run reads lines until the input ends or /quit.
func (r *chatREPL) Run(ctx context.Context) error {
	for {
		line, err := r.input.Prompt(r.prompt(), r.sess.Input())
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(r.out)
			return nil
		}
		if err != nil {
			return err
		}

		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			r.sess.SetInput("")
			continue
		case strings.HasPrefix(trimmed, "/"):
			r.sess.SetInput("")
			quit, err := r.handleCommand(ctx, trimmed)
			if err != nil {
				DisplayError(r.errOut, err)
			}
			if quit {
				return nil
			}
			continue
		case strings.EqualFold(trimmed, "exit"), strings.EqualFold(trimmed, "quit"):
			return nil
		}

		r.sess.SetInput(line)
		r.submit(ctx)
	}
}

// submit sends the input buffer and prints the reply.
func (r *chatREPL) submit(ctx context.Context) {
	res, err := submitInterruptible(ctx, r.sess)
	if res != nil {
		r.notes.Failures(res.Composition.Failures)
		if res.Created {
			conv, getErr := r.store.Get(ctx, res.ConversationID)
			if getErr == nil {
				fmt.Fprintln(r.errOut, RenderConditional(DimStyle,
					fmt.Sprintf("started conversation %d: %s", conv.ID, conv.Title)))
			}
		}
	}

	var completionErr *session.CompletionError
	switch {
	case errors.As(err, &completionErr):
		DisplayError(r.errOut, completionErr.Err)
		fmt.Fprintln(r.errOut, RenderConditional(DimStyle,
			"Your message was saved. Send a follow-up to try again."))
		return
	case err != nil:
		DisplayError(r.errOut, err)
		return
	}

	fmt.Fprintln(r.out)
	r.render.Message(res.Reply)
	fmt.Fprintln(r.out)
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleCommand runs one slash command. It reports whether to quit.
func (r *chatREPL) handleCommand(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/help", "/?":
		r.printHelp()

	case "/new":
		paths := splitPaths(arg)
		if len(paths) == 0 {
			r.sess.ClearSelection()
			fmt.Fprintln(r.out, RenderConditional(DimStyle, "Your next message starts a new conversation."))
			return false, nil
		}
		id, err := r.sess.StartWith(ctx, "", paths...)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, RenderConditional(DimStyle,
			fmt.Sprintf("Started conversation %d with %d file(s). Add your question and press Enter.", id, len(paths))))

	case "/attach", "/add":
		paths := splitPaths(arg)
		if len(paths) == 0 {
			return false, NewValidationErrorWithExample("path", "", "required argument missing", "/attach notes/today.md, diagrams/flow.png")
		}
		r.sess.Attach(paths...)

	case "/list", "/ls":
		convs, err := r.store.Search(ctx, arg)
		if err != nil {
			return false, err
		}
		writeConversationTable(r.out, convs, r.sess.Selected(), r.now())

	case "/open":
		id, err := parseID(arg)
		if err != nil {
			return false, err
		}
		return false, r.open(ctx, id)

	case "/show":
		conv, err := r.sess.Current(ctx)
		if err != nil {
			return false, err
		}
		if conv == nil {
			fmt.Fprintln(r.out, RenderConditional(DimStyle, "No conversation selected."))
			return false, nil
		}
		r.printConversation(conv)

	case "/rename":
		id := r.sess.Selected()
		if id == 0 {
			return false, NewCommandError("/rename", "no conversation selected", nil)
		}
		if err := r.store.Rename(ctx, id, arg); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, RenderConditional(SuccessStyle, "Renamed."))

	case "/delete", "/rm":
		id := r.sess.Selected()
		if arg != "" {
			var err error
			if id, err = parseID(arg); err != nil {
				return false, err
			}
		}
		if id == 0 {
			return false, NewCommandError("/delete", "no conversation selected", nil)
		}
		if err := r.sess.Delete(ctx, id); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "%s conversation %d deleted\n", RenderConditional(SuccessStyle, "[OK]"), id)

	default:
		if suggestion := SuggestCommand(name); suggestion != "" {
			return false, fmt.Errorf("unknown command %s (did you mean %s?)", name, suggestion)
		}
		return false, fmt.Errorf("unknown command %s (type /help)", name)
	}
	return false, nil
}

// open selects a conversation and prints its history.
func (r *chatREPL) open(ctx context.Context, id int64) error {
	conv, err := r.sess.Select(ctx, id)
	if err != nil {
		return err
	}
	r.printConversation(conv)
	return nil
}

func (r *chatREPL) printConversation(conv *model.Conversation) {
	fmt.Fprintln(r.out, RenderConditional(TitleStyle, fmt.Sprintf("%s (#%d)", conv.Title, conv.ID)))
	fmt.Fprintln(r.out, RenderSeparator())
	for _, msg := range conv.Messages {
		r.render.Message(msg)
		fmt.Fprintln(r.out)
	}
}

func (r *chatREPL) printHelp() {
	rows := [][2]string{
		{"/new [paths]", "start a new conversation, optionally with files attached"},
		{"/attach paths", "add [[references]] for comma-separated paths to the input"},
		{"/list [text]", "list conversations, optionally filtered"},
		{"/open id", "switch to a conversation"},
		{"/show", "print the current conversation"},
		{"/rename title", "rename the current conversation"},
		{"/delete [id]", "delete a conversation (default: current)"},
		{"/quit", "leave"},
	}
	for _, row := range rows {
		fmt.Fprintf(r.out, "  %s %s\n", RenderLabel(row[0]), row[1])
	}
}

// splitPaths splits a comma-separated path list, dropping blanks.
func splitPaths(arg string) []string {
	var paths []string
	for _, p := range strings.Split(arg, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}
