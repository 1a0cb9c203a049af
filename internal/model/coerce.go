// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

// MigrationDecodeError reports a stored message payload that could not be
// interpreted at all. The payload is replaced by an empty message list.
type MigrationDecodeError struct {
	Payload string
	Err     error
}

// Error implements the error interface.
func (e *MigrationDecodeError) Error() string {
	return fmt.Sprintf("undecodable message payload %q: %v", preview(e.Payload), e.Err)
}

// Unwrap returns the underlying decode error.
func (e *MigrationDecodeError) Unwrap() error {
	return e.Err
}

func preview(s string) string {
	const n = 40
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// =============================================================================
// TOLERANT DECODER
// =============================================================================

// CoerceMessages decodes a stored message payload of any historical shape.
//
// It never fails to produce a list. When the payload cannot be interpreted,
// the list is empty and a *MigrationDecodeError is returned alongside it.
// Canonical payloads decode to values that re-encode byte-identically.
func CoerceMessages(payload string) ([]Message, error) {
	return coercePayload(payload, true)
}

func coercePayload(payload string, unwrapString bool) ([]Message, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" || trimmed == "null" {
		return []Message{}, nil
	}

	raw := json.RawMessage(trimmed)
	if !json.Valid(raw) {
		return []Message{}, &MigrationDecodeError{Payload: payload, Err: fmt.Errorf("not JSON")}
	}

	switch trimmed[0] {
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return []Message{}, &MigrationDecodeError{Payload: payload, Err: err}
		}
		msgs := make([]Message, 0, len(elems))
		for _, elem := range elems {
			if m, ok := coerceMessage(elem); ok {
				msgs = append(msgs, m)
			}
		}
		return msgs, nil

	case '{':
		m, _ := coerceMessage(raw)
		return []Message{m}, nil

	case '"':
		if !unwrapString {
			break
		}
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return []Message{}, &MigrationDecodeError{Payload: payload, Err: err}
		}
		msgs, err := coercePayload(inner, false)
		if err != nil {
			return msgs, &MigrationDecodeError{Payload: payload, Err: err}
		}
		return msgs, nil
	}

	return []Message{}, &MigrationDecodeError{Payload: payload, Err: fmt.Errorf("scalar payload")}
}

// coerceMessage interprets one list element. Null elements are dropped.
func coerceMessage(raw json.RawMessage) (Message, bool) {
	switch firstByte(raw) {
	case 'n':
		return Message{}, false
	case '"':
		var s string
		_ = json.Unmarshal(raw, &s)
		return Message{Role: RoleUser, Content: []Block{NewText(s)}}, true
	case '{':
	default:
		return Message{Role: RoleUser, Content: []Block{NewText(compact(raw))}}, true
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Message{Role: RoleUser, Content: []Block{NewText(compact(raw))}}, true
	}

	role := RoleUser
	var r string
	if err := json.Unmarshal(fields["role"], &r); err == nil && Role(r).IsValid() {
		role = Role(r)
	}

	return Message{Role: role, Content: CoerceContent(fields["content"])}, true
}

// CoerceContent interprets a message's content field. A string becomes one
// text block, an array is coerced block by block, and anything else becomes
// a single text block holding the value's textual form.
func CoerceContent(raw json.RawMessage) []Block {
	switch firstByte(raw) {
	case 0, 'n':
		return []Block{NewText("")}
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return []Block{NewText(compact(raw))}
		}
		blocks := make([]Block, 0, len(elems))
		for _, elem := range elems {
			blocks = append(blocks, CoerceBlock(elem))
		}
		return blocks
	default:
		return []Block{NewText(textual(raw))}
	}
}

// CoerceBlock interprets one content block. Shapes it does not recognize
// become a text block carrying their compact JSON.
func CoerceBlock(raw json.RawMessage) Block {
	if firstByte(raw) == '"' {
		var s string
		_ = json.Unmarshal(raw, &s)
		return NewText(s)
	}
	if firstByte(raw) != '{' {
		return NewText(compact(raw))
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return NewText(compact(raw))
	}

	var typ string
	_ = json.Unmarshal(fields["type"], &typ)

	switch Kind(typ) {
	case KindText:
		return NewText(textual(fields["text"]))

	case KindImage, KindDocument:
		src, ok := coerceSource(fields["source"], Kind(typ))
		if !ok {
			break
		}
		if Kind(typ) == KindImage {
			return Image{Source: src}
		}
		return Document{Source: src}

	case KindFileEmbed:
		var content string
		if err := json.Unmarshal(fields["raw_content"], &content); err != nil {
			break
		}
		var name, path string
		_ = json.Unmarshal(fields["display_name"], &name)
		_ = json.Unmarshal(fields["path"], &path)
		return NewFileEmbed(content, name, path)
	}

	return NewText(compact(raw))
}

func coerceSource(raw json.RawMessage, kind Kind) (Source, bool) {
	if firstByte(raw) != '{' {
		return Source{}, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Source{}, false
	}

	src := Source{Encoding: EncodingBase64}
	var enc string
	if err := json.Unmarshal(fields["type"], &enc); err == nil && enc != "" {
		src.Encoding = enc
	}
	_ = json.Unmarshal(fields["media_type"], &src.MediaType)
	if src.MediaType == "" {
		if kind == KindImage {
			src.MediaType = DefaultImageMediaType
		} else {
			src.MediaType = DefaultDocumentMediaType
		}
	}
	_ = json.Unmarshal(fields["data"], &src.Data)
	return src, true
}

// =============================================================================
// HELPERS
// =============================================================================

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

func compact(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// textual renders a JSON value as display text: strings unquoted, null
// empty, everything else compact JSON.
func textual(raw json.RawMessage) string {
	switch firstByte(raw) {
	case 0, 'n':
		return ""
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return compact(raw)
}
