// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"strings"

	"github.com/jeranaias/vaultchat/internal/autocomplete"
	"github.com/jeranaias/vaultchat/internal/reference"
)

// =============================================================================
// TAB COMPLETION
// =============================================================================

// referenceCompleter adapts the suggestion controller to liner's word
// completer. Tab inside [[...]] offers each suggestion as a full reference,
// cycling on repeated presses. Tab on a leading slash completes REPL
// commands.
type referenceCompleter struct {
	ctx  context.Context
	ctrl *autocomplete.Controller
}

// Complete implements liner.WordCompleter. pos is the cursor in runes.
func (c *referenceCompleter) Complete(line string, pos int) (head string, completions []string, tail string) {
	runes := []rune(line)
	if pos < 0 || pos > len(runes) {
		pos = len(runes)
	}
	cursor := len(string(runes[:pos]))

	if before := line[:cursor]; strings.HasPrefix(before, "/") && !strings.Contains(before, " ") {
		for _, cmd := range slashCommands {
			if strings.HasPrefix(cmd, before) {
				completions = append(completions, cmd+" ")
			}
		}
		return "", completions, line[cursor:]
	}

	edit := c.ctrl.HandleInput(c.ctx, line, cursor, 0)
	state := c.ctrl.State()
	if !state.Visible {
		return line[:cursor], nil, line[cursor:]
	}

	// Accept needs a closed reference around the cursor
	text := edit.Text
	if _, ok := reference.Enclosing(text, edit.Cursor); !ok {
		text = text[:edit.Cursor] + reference.Close + text[edit.Cursor:]
	}

	for _, s := range state.Suggestions {
		accepted, ok := c.ctrl.Accept(text, edit.Cursor, s)
		if !ok {
			break
		}
		ref := reference.Format(s)
		if completions == nil {
			head = accepted.Text[:accepted.Cursor-len(ref)]
			tail = accepted.Text[accepted.Cursor:]
		}
		completions = append(completions, ref)
	}
	if completions == nil {
		return line[:cursor], nil, line[cursor:]
	}
	return head, completions, tail
}
