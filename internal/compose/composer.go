// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package compose

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/vaultchat/internal/model"
	"github.com/jeranaias/vaultchat/internal/reference"
)

// DefaultConcurrency bounds parallel attachment reads per message.
const DefaultConcurrency = 4

// =============================================================================
// TYPES
// =============================================================================

// BlockBuilder resolves a vault path into a content block.
type BlockBuilder interface {
	Build(ctx context.Context, path string) (model.Block, error)
}

// Composition is the result of composing one input.
type Composition struct {
	// Message is the user message, content in source order.
	Message model.Message

	// Failures lists references left out of Message, in source order.
	Failures []*ResolutionError
}

// HasFailures reports whether any reference failed to resolve.
func (c *Composition) HasFailures() bool {
	return len(c.Failures) > 0
}

// Composer builds user messages from raw input.
type Composer struct {
	builder     BlockBuilder
	logger      *zap.Logger
	concurrency int
}

// ComposerOption configures a Composer.
type ComposerOption func(*Composer)

// WithLogger sets the logger used to report resolution failures.
func WithLogger(logger *zap.Logger) ComposerOption {
	return func(c *Composer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithConcurrency bounds how many references resolve at once.
// Values below 1 are ignored.
func WithConcurrency(n int) ComposerOption {
	return func(c *Composer) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// NewComposer creates a composer around a block builder.
func NewComposer(builder BlockBuilder, opts ...ComposerOption) *Composer {
	c := &Composer{
		builder:     builder,
		logger:      zap.NewNop(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// =============================================================================
// COMPOSE
// =============================================================================

// slot holds the outcome for one span, indexed by source position.
type slot struct {
	block model.Block
	err   *ResolutionError
}

// Compose tokenizes raw and builds the resulting user message.
//
// Text spans are trimmed and dropped when empty. Each reference becomes one
// block; references that fail are omitted and recorded in Failures. Input
// with no text and no resolvable reference yields a single empty text block.
// The only error is context cancellation, in which case no message is
// returned.
func (c *Composer) Compose(ctx context.Context, raw string) (*Composition, error) {
	spans := reference.Tokenize(raw)
	slots := make([]slot, len(spans))

	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)

	for i, span := range spans {
		if !span.IsReference() {
			if text := strings.TrimSpace(span.Value); text != "" {
				slots[i].block = model.NewText(text)
			}
			continue
		}

		i, p := i, reference.Path(span)
		g.Go(func() error {
			block, err := c.builder.Build(ctx, p)
			if err != nil {
				slots[i].err = asResolutionError(p, err)
				return nil
			}
			slots[i].block = block
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Composition{}
	blocks := make([]model.Block, 0, len(slots))
	for _, s := range slots {
		if s.err != nil {
			c.logger.Warn("reference not resolved",
				zap.String("path", s.err.Path),
				zap.Error(s.err.Err))
			result.Failures = append(result.Failures, s.err)
			continue
		}
		if s.block != nil {
			blocks = append(blocks, s.block)
		}
	}

	result.Message = model.NewMessage(model.RoleUser, blocks...)
	return result, nil
}

func asResolutionError(p string, err error) *ResolutionError {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re
	}
	return &ResolutionError{Path: p, Err: err}
}
