// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation persistence for vaultchat.
//
// Conversations live in a single SQLite table. Each row stores its message
// list as JSON; the database's PRAGMA user_version records the schema
// version, and opening an older database migrates it in one transaction.
//
// # Key Types
//
//   - Repository: create, read, list, mutate and delete conversations
//   - MigrationResult: what a migration pass did
//   - Event: change notification delivered after each commit
//
// # Usage
//
//	repo, err := storage.Open(ctx, "~/.vaultchat/chats.db", storage.Options{Logger: logger})
//	id, err := repo.Create(ctx, "Reading notes")
//	err = repo.AppendMessages(ctx, id, msg)
//	convs, err := repo.List(ctx) // most recently updated first
//
// # Tolerant Reads
//
// Stored message payloads are decoded with model.CoerceMessages, so rows
// written by older versions or damaged by hand never break a read. A payload
// that cannot be interpreted at all reads as an empty list.
package storage
