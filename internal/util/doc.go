// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across vaultchat.
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis (titles, previews)
//   - TruncateWidth, PadRight: terminal-column aware layout for tables
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync (config files)
//
// # Usage
//
//	title := util.TruncateRunes(firstLine, 50)
//	row := util.PadRight(title, 40) + " " + updated
package util
