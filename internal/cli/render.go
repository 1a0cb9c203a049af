// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/vaultchat/internal/compose"
	"github.com/jeranaias/vaultchat/internal/model"
	"github.com/jeranaias/vaultchat/internal/reference"
	"github.com/jeranaias/vaultchat/internal/util"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// renderer writes markdown to a terminal through glamour, or verbatim to
// anything else.
type renderer struct {
	w    io.Writer
	term *glamour.TermRenderer
}

func newRenderer(w io.Writer) *renderer {
	r := &renderer{w: w}
	if !isTerminal(w) || !ColorsEnabled() {
		return r
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(GetTerminalWidth()-4),
	)
	if err == nil {
		r.term = tr
	}
	return r
}

// Markdown writes md, rendered when the output is a terminal.
func (r *renderer) Markdown(md string) {
	if r.term != nil {
		if out, err := r.term.Render(md); err == nil {
			fmt.Fprint(r.w, out)
			return
		}
	}
	fmt.Fprintln(r.w, strings.TrimRight(md, "\n"))
}

// Message writes one message under a role heading.
func (r *renderer) Message(msg model.Message) {
	fmt.Fprintln(r.w, RenderConditional(TitleStyle, msg.Role.DisplayName()+":"))
	for _, b := range msg.Content {
		switch v := b.(type) {
		case model.Text:
			if msg.Role == model.RoleAssistant {
				r.Markdown(v.Text)
			} else {
				fmt.Fprintln(r.w, highlightReferences(v.Text))
			}
		default:
			fmt.Fprintln(r.w, RenderConditional(DimStyle, model.TextOf(b)))
		}
	}
}

// Failures lists references that were left out of a sent message.
func (r *renderer) Failures(failures []*compose.ResolutionError) {
	for _, f := range failures {
		fmt.Fprintf(r.w, "%s %s: %v\n",
			RenderConditional(WarningStyle, "[skipped]"),
			reference.Format(f.Path),
			f.Err)
	}
}

// highlightReferences styles each [[path]] in text.
func highlightReferences(text string) string {
	if !ColorsEnabled() {
		return text
	}
	spans := reference.Tokenize(text)
	var sb strings.Builder
	for _, s := range spans {
		if s.IsReference() {
			sb.WriteString(ReferenceStyle.Render(s.Value))
			continue
		}
		sb.WriteString(s.Value)
	}
	return sb.String()
}

// =============================================================================
// CONVERSATION TABLE
// =============================================================================

const (
	idColumnWidth    = 6
	titleColumnWidth = 36
)

// writeConversationTable lists conversations, most recent first, marking
// the selected one.
func writeConversationTable(w io.Writer, convs []*model.Conversation, selected int64, now time.Time) {
	if len(convs) == 0 {
		fmt.Fprintln(w, RenderConditional(DimStyle, "No conversations yet."))
		return
	}
	fmt.Fprintf(w, "  %s %s %s %s\n",
		RenderConditional(DimStyle, util.PadRight("ID", idColumnWidth)),
		RenderConditional(DimStyle, util.PadRight("TITLE", titleColumnWidth)),
		RenderConditional(DimStyle, util.PadRight("MSGS", 5)),
		RenderConditional(DimStyle, "UPDATED"))

	for _, c := range convs {
		marker := " "
		if c.ID == selected {
			marker = RenderConditional(HighlightStyle, "*")
		}
		title := util.TruncateWidth(util.SingleLine(c.Title), titleColumnWidth)
		fmt.Fprintf(w, "%s %s %s %s %s\n",
			marker,
			util.PadRight(fmt.Sprint(c.ID), idColumnWidth),
			util.PadRight(title, titleColumnWidth),
			util.PadRight(fmt.Sprint(c.MessageCount()), 5),
			formatAge(c.UpdatedAt, now))
	}
}
