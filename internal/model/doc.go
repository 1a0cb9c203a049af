// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the content model shared by the composer, the
// repository and the completion client.
//
// # Key Types
//
//   - Block: sealed sum type over Text, Image, Document and FileEmbed
//   - Message: role plus an ordered list of blocks
//   - Conversation: repository-owned record with title and timestamps
//   - MigrationDecodeError: a stored payload that could not be interpreted
//
// # Encoding
//
// Messages have a strict JSON form (json.Marshal / json.Unmarshal) and a
// tolerant decoder for stored data of any historical shape:
//
//	msgs, err := model.CoerceMessages(row)
//	if err != nil {
//	    logger.Warn("message payload reset", zap.Error(err))
//	}
//
// File embeds have no outbound block form; ForWire renders them as text
// before a request is built.
package model
