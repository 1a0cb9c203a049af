// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package index provides a searchable index of vault file paths.
//
// This package keeps a SQLite table of every file in a vault, with keys
// normalized for case- and Unicode-insensitive substring matching, and
// answers the partial-token queries made while a [[reference]] is typed.
//
// # Key Types
//
//   - Index: path table with full rebuild and incremental updates
//   - Watcher: fsnotify watcher that feeds changes into the index
//
// # Ranking
//
// A path matches when its normalized form contains the normalized partial.
// Matches whose base name starts with the partial come first, then shorter
// paths, then paths in lexical order.
//
// # Usage
//
//	idx, err := index.Open(ctx, v, index.Config{EnableWatch: true}, logger)
//	defer idx.Close()
//	paths, err := idx.Search(ctx, "meet")
package index
