// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package compose

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/vaultchat/internal/model"
)

// ErrUnsupportedExtension is returned by Classify for extensions with no
// direct block form. Builders recover from it with a file-embed block.
var ErrUnsupportedExtension = errors.New("unsupported file extension")

// MediaType describes how a file extension maps onto a content block.
type MediaType struct {
	// Type is the MIME type, e.g. "image/png".
	Type string

	// Kind is the block kind the file becomes.
	Kind model.Kind
}

// IsBinary reports whether files of this type are read as bytes and sent
// base64-encoded.
func (m MediaType) IsBinary() bool {
	return m.Kind == model.KindImage || m.Kind == model.KindDocument
}

var mediaTypes = map[string]MediaType{
	"md":   {Type: "text/markdown", Kind: model.KindText},
	"png":  {Type: "image/png", Kind: model.KindImage},
	"jpg":  {Type: "image/jpeg", Kind: model.KindImage},
	"jpeg": {Type: "image/jpeg", Kind: model.KindImage},
	"gif":  {Type: "image/gif", Kind: model.KindImage},
	"webp": {Type: "image/webp", Kind: model.KindImage},
	"pdf":  {Type: "application/pdf", Kind: model.KindDocument},
}

// Classify maps a lower-case extension (no dot) to its media type.
// Unknown extensions wrap ErrUnsupportedExtension.
func Classify(ext string) (MediaType, error) {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	mt, ok := mediaTypes[ext]
	if !ok {
		return MediaType{}, fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
	}
	return mt, nil
}

// SupportedExtensions returns every extension with a direct block form.
func SupportedExtensions() []string {
	return []string{"md", "png", "jpg", "jpeg", "gif", "webp", "pdf"}
}
