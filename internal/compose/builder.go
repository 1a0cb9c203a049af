// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package compose

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/jeranaias/vaultchat/internal/model"
	"github.com/jeranaias/vaultchat/internal/vault"
)

// =============================================================================
// INTERFACES
// =============================================================================

// AttachmentSource is read access to the vault. Paths are vault-relative.
type AttachmentSource interface {
	Exists(ctx context.Context, path string) bool
	ReadText(ctx context.Context, path string) (string, error)
	ReadBinary(ctx context.Context, path string) ([]byte, error)

	// Classify returns the lower-case extension of path without the dot.
	Classify(path string) string
}

// =============================================================================
// ERRORS
// =============================================================================

// ResolutionError reports a reference that could not be turned into a block.
type ResolutionError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve [[%s]]: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// =============================================================================
// BUILDER
// =============================================================================

// Builder resolves one vault path into a content block.
type Builder struct {
	source AttachmentSource
	logger *zap.Logger
}

// NewBuilder creates a builder reading from source. A nil logger disables logging.
func NewBuilder(source AttachmentSource, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{source: source, logger: logger}
}

// Build resolves path into a block.
//
// Missing files and read failures return a *ResolutionError. Extensions with
// no direct block form fall back to a file-embed block carrying the raw text.
// Binary payloads are base64 (standard encoding), so identical bytes and
// extension always produce an identical block.
func (b *Builder) Build(ctx context.Context, p string) (model.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !b.source.Exists(ctx, p) {
		return nil, &ResolutionError{Path: p, Err: vault.ErrFileNotFound}
	}

	mt, err := Classify(b.source.Classify(p))
	if errors.Is(err, ErrUnsupportedExtension) {
		b.logger.Debug("embedding file as raw text", zap.String("path", p), zap.Error(err))
		raw, err := b.source.ReadText(ctx, p)
		if err != nil {
			return nil, b.resolutionError(ctx, p, err)
		}
		return model.NewFileEmbed(raw, path.Base(p), p), nil
	}

	if !mt.IsBinary() {
		text, err := b.source.ReadText(ctx, p)
		if err != nil {
			return nil, b.resolutionError(ctx, p, err)
		}
		return model.NewText(text), nil
	}

	data, err := b.source.ReadBinary(ctx, p)
	if err != nil {
		return nil, b.resolutionError(ctx, p, err)
	}
	encoded := base64.StdEncoding.EncodeToString(data)

	switch mt.Kind {
	case model.KindImage:
		return model.NewImage(mt.Type, encoded), nil
	case model.KindDocument:
		return model.NewDocument(encoded), nil
	default:
		panic(fmt.Sprintf("compose: binary media type %q has kind %s", mt.Type, mt.Kind))
	}
}

// resolutionError wraps a read failure, passing context cancellation through
// untouched.
func (b *Builder) resolutionError(ctx context.Context, p string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &ResolutionError{Path: p, Err: err}
}
