// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package compose turns raw user input into a multi-block message.
//
// Free text around [[path]] references becomes text blocks; each reference
// is resolved through an AttachmentSource into a block whose kind depends on
// the file extension:
//
//	md                     -> text (content passed through)
//	png, jpg, jpeg, gif, webp -> image (base64)
//	pdf                    -> document (base64)
//	anything else          -> file_embed (raw text)
//
// A reference that cannot be resolved is left out of the message and
// reported in Composition.Failures; it never aborts composition.
//
// # Usage
//
//	builder := compose.NewBuilder(vaultSource, logger)
//	composer := compose.NewComposer(builder, compose.WithLogger(logger))
//	result, err := composer.Compose(ctx, "See [[notes/a.md]] and [[img.png]]")
package compose
