// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// =============================================================================
// BLOCK KINDS
// =============================================================================

// Kind identifies which payload a content block carries.
type Kind string

const (
	KindText      Kind = "text"
	KindImage     Kind = "image"
	KindDocument  Kind = "document"
	KindFileEmbed Kind = "file_embed"
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	return string(k)
}

// EncodingBase64 is the only source encoding binary blocks use.
const EncodingBase64 = "base64"

// Default media types used when a stored block lacks one.
const (
	DefaultImageMediaType    = "image/png"
	DefaultDocumentMediaType = "application/pdf"
)

// =============================================================================
// BLOCK SUM TYPE
// =============================================================================

// Block is one typed unit of message payload.
//
// Exactly four types implement Block: Text, Image, Document and FileEmbed.
// The interface is sealed so switches over blocks can be exhaustive.
type Block interface {
	Kind() Kind
	isBlock()
}

// Text carries plain text.
type Text struct {
	Text string
}

// Source is a base64-encoded binary payload.
type Source struct {
	Encoding  string
	MediaType string
	Data      string
}

// Image carries a base64 image.
type Image struct {
	Source Source
}

// Document carries a base64 document (PDF).
type Document struct {
	Source Source
}

// FileEmbed carries the raw text of a file that has no direct block form.
type FileEmbed struct {
	RawContent  string
	DisplayName string
	Path        string
}

func (Text) Kind() Kind      { return KindText }
func (Image) Kind() Kind     { return KindImage }
func (Document) Kind() Kind  { return KindDocument }
func (FileEmbed) Kind() Kind { return KindFileEmbed }

func (Text) isBlock()      {}
func (Image) isBlock()     {}
func (Document) isBlock()  {}
func (FileEmbed) isBlock() {}

// NewText creates a text block.
func NewText(text string) Text {
	return Text{Text: text}
}

// NewImage creates an image block from already base64-encoded data.
func NewImage(mediaType, data string) Image {
	return Image{Source: Source{Encoding: EncodingBase64, MediaType: mediaType, Data: data}}
}

// NewDocument creates a PDF document block from already base64-encoded data.
func NewDocument(data string) Document {
	return Document{Source: Source{Encoding: EncodingBase64, MediaType: DefaultDocumentMediaType, Data: data}}
}

// NewFileEmbed creates a file-embed block.
func NewFileEmbed(raw, name, path string) FileEmbed {
	return FileEmbed{RawContent: raw, DisplayName: name, Path: path}
}

// =============================================================================
// WIRE FORMAT
// =============================================================================

// wireSource is the JSON form of Source.
type wireSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// wireBlock is the JSON form of every block kind. Pointer fields keep empty
// strings on the wire for the kind that owns them and drop the others.
type wireBlock struct {
	Type        string      `json:"type"`
	Text        *string     `json:"text,omitempty"`
	Source      *wireSource `json:"source,omitempty"`
	RawContent  *string     `json:"raw_content,omitempty"`
	DisplayName *string     `json:"display_name,omitempty"`
	Path        *string     `json:"path,omitempty"`
}

func toWire(b Block) wireBlock {
	switch v := b.(type) {
	case Text:
		return wireBlock{Type: string(KindText), Text: &v.Text}
	case Image:
		return wireBlock{Type: string(KindImage), Source: sourceToWire(v.Source)}
	case Document:
		return wireBlock{Type: string(KindDocument), Source: sourceToWire(v.Source)}
	case FileEmbed:
		return wireBlock{
			Type:        string(KindFileEmbed),
			RawContent:  &v.RawContent,
			DisplayName: &v.DisplayName,
			Path:        &v.Path,
		}
	default:
		panic(fmt.Sprintf("model: unknown block type %T", b))
	}
}

func sourceToWire(s Source) *wireSource {
	return &wireSource{Type: s.Encoding, MediaType: s.MediaType, Data: s.Data}
}

// MarshalBlock encodes a block as {"type": ..., ...}.
func MarshalBlock(b Block) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("model: nil block")
	}
	return marshalUnescaped(toWire(b))
}

// marshalUnescaped is json.Marshal without HTML escaping, so file embed
// markup stays readable in stored payloads and command output.
func marshalUnescaped(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// UnmarshalBlock strictly decodes one block. Unknown types and missing
// payload fields are errors; use CoerceBlock for stored or foreign data.
func UnmarshalBlock(data []byte) (Block, error) {
	var w wireBlock
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}

	switch Kind(w.Type) {
	case KindText:
		if w.Text == nil {
			return nil, fmt.Errorf("model: text block without text")
		}
		return Text{Text: *w.Text}, nil
	case KindImage:
		if w.Source == nil {
			return nil, fmt.Errorf("model: image block without source")
		}
		return Image{Source: sourceFromWire(*w.Source)}, nil
	case KindDocument:
		if w.Source == nil {
			return nil, fmt.Errorf("model: document block without source")
		}
		return Document{Source: sourceFromWire(*w.Source)}, nil
	case KindFileEmbed:
		if w.RawContent == nil {
			return nil, fmt.Errorf("model: file_embed block without raw_content")
		}
		return FileEmbed{
			RawContent:  *w.RawContent,
			DisplayName: deref(w.DisplayName),
			Path:        deref(w.Path),
		}, nil
	default:
		return nil, fmt.Errorf("model: unknown block type %q", w.Type)
	}
}

func sourceFromWire(s wireSource) Source {
	return Source{Encoding: s.Type, MediaType: s.MediaType, Data: s.Data}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// TextOf returns the text of a block for display and previews.
// Binary blocks render as a short placeholder.
func TextOf(b Block) string {
	switch v := b.(type) {
	case Text:
		return v.Text
	case Image:
		return "[image " + v.Source.MediaType + "]"
	case Document:
		return "[document " + v.Source.MediaType + "]"
	case FileEmbed:
		return "[file " + v.Path + "]"
	default:
		return ""
	}
}
