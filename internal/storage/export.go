// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/jeranaias/vaultchat/internal/model"
)

// =============================================================================
// CONVERSATION EXPORT
// =============================================================================

// ExportMarkdown renders a conversation as Markdown with role headings.
// Binary blocks appear as placeholders; file embeds as fenced blocks.
func ExportMarkdown(conv *model.Conversation) string {
	var sb strings.Builder
	sb.WriteString("# " + conv.Title + "\n\n")
	sb.WriteString("Created: " + conv.CreatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")

	for _, msg := range conv.Messages {
		sb.WriteString("**" + msg.Role.DisplayName() + "**:\n\n")
		for _, b := range msg.Content {
			switch v := b.(type) {
			case model.FileEmbed:
				sb.WriteString("`" + v.Path + "`\n\n```\n" + v.RawContent + "\n```\n\n")
			default:
				if text := model.TextOf(b); text != "" {
					sb.WriteString(text + "\n\n")
				}
			}
		}
		sb.WriteString("---\n\n")
	}

	return sb.String()
}

type exportedConversation struct {
	ID        int64           `json:"id"`
	Title     string          `json:"title"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Messages  []model.Message `json:"messages"`
}

// ExportJSON exports the conversation as pretty-printed JSON.
func ExportJSON(conv *model.Conversation) ([]byte, error) {
	msgs := conv.Messages
	if msgs == nil {
		msgs = []model.Message{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	err := enc.Encode(exportedConversation{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
		Messages:  msgs,
	})
	if err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
