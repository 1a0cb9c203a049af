// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is one turn of a conversation. Content order is significant: it is
// the order blocks are rendered and resent in.
type Message struct {
	Role    Role
	Content []Block
}

// NewMessage creates a message from blocks. A message never has an empty
// content list; with no blocks it carries a single empty text block.
func NewMessage(role Role, blocks ...Block) Message {
	if len(blocks) == 0 {
		blocks = []Block{NewText("")}
	}
	content := make([]Block, len(blocks))
	copy(content, blocks)
	return Message{Role: role, Content: content}
}

// NewUserMessage creates a user message holding a single text block.
func NewUserMessage(text string) Message {
	return NewMessage(RoleUser, NewText(text))
}

// NewAssistantMessage creates an assistant message holding a single text block.
func NewAssistantMessage(text string) Message {
	return NewMessage(RoleAssistant, NewText(text))
}

// Clone returns a copy that shares no slice with m.
func (m Message) Clone() Message {
	content := make([]Block, len(m.Content))
	copy(content, m.Content)
	return Message{Role: m.Role, Content: content}
}

// PlainText joins the textual form of every block with blank lines.
func (m Message) PlainText() string {
	parts := make([]string, 0, len(m.Content))
	for _, b := range m.Content {
		if s := TextOf(b); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// FirstText returns the first non-empty text block, if any.
func (m Message) FirstText() string {
	for _, b := range m.Content {
		if t, ok := b.(Text); ok && strings.TrimSpace(t.Text) != "" {
			return t.Text
		}
	}
	return ""
}

// =============================================================================
// JSON ENCODING
// =============================================================================

type wireMessage struct {
	Role    Role              `json:"role"`
	Content []json.RawMessage `json:"content"`
}

// MarshalJSON encodes the message as {"role": ..., "content": [...]}.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{Role: m.Role, Content: make([]json.RawMessage, 0, len(m.Content))}
	for i, b := range m.Content {
		data, err := MarshalBlock(b)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		w.Content = append(w.Content, data)
	}
	return marshalUnescaped(w)
}

// UnmarshalJSON strictly decodes a message. Unknown roles and block types
// are rejected; stored data goes through CoerceMessages instead.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.Role.IsValid() {
		return fmt.Errorf("model: unknown role %q", w.Role)
	}

	blocks := make([]Block, 0, len(w.Content))
	for i, raw := range w.Content {
		b, err := UnmarshalBlock(raw)
		if err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		blocks = append(blocks, b)
	}

	m.Role = w.Role
	m.Content = blocks
	return nil
}

// EncodeMessages serializes a message list into its canonical stored form.
// A nil list encodes as [] so stored payloads are never null.
func EncodeMessages(msgs []Message) (string, error) {
	if msgs == nil {
		msgs = []Message{}
	}
	data, err := marshalUnescaped(msgs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// =============================================================================
// OUTBOUND FORM
// =============================================================================

// ForWire converts messages into the form sent to the completion endpoint.
// File embeds have no block form there and become text wrapped in a
// <file> element; every other block passes through unchanged.
func ForWire(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		content := make([]Block, len(m.Content))
		for j, b := range m.Content {
			if fe, ok := b.(FileEmbed); ok {
				content[j] = NewText(renderFileEmbed(fe))
				continue
			}
			content[j] = b
		}
		out[i] = Message{Role: m.Role, Content: content}
	}
	return out
}

func renderFileEmbed(fe FileEmbed) string {
	var sb strings.Builder
	sb.WriteString(`<file name="`)
	sb.WriteString(fe.DisplayName)
	sb.WriteString(`" path="`)
	sb.WriteString(fe.Path)
	sb.WriteString("\">\n")
	sb.WriteString(fe.RawContent)
	sb.WriteString("\n</file>")
	return sb.String()
}
