// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/jeranaias/vaultchat/internal/util"
)

// DefaultTitle is used when a conversation is created without a title.
const DefaultTitle = "New Chat"

// maxTitleRunes bounds titles derived from message text.
const maxTitleRunes = 50

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a chat history and its metadata.
// The repository assigns ID on creation and never changes it.
type Conversation struct {
	ID        int64
	Title     string
	Messages  []Message
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of the conversation's message list.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		out.Messages[i] = m.Clone()
	}
	return &out
}

// MessageCount returns the number of messages in the conversation.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// LastMessage returns the most recent message, if any.
func (c *Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// Preview returns the first user text, truncated for list display.
func (c *Conversation) Preview(maxRunes int) string {
	for _, m := range c.Messages {
		if m.Role != RoleUser {
			continue
		}
		if text := m.FirstText(); text != "" {
			return util.TruncateRunes(util.SingleLine(text), maxRunes)
		}
	}
	return ""
}

// =============================================================================
// TITLES
// =============================================================================

// TitleFromMessage derives a conversation title from a message's first text.
// Falls back to DefaultTitle when the message has no text.
func TitleFromMessage(m Message) string {
	text := strings.TrimSpace(util.SingleLine(m.FirstText()))
	if text == "" {
		return DefaultTitle
	}
	return util.TruncateRunes(text, maxTitleRunes)
}
