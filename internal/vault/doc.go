// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package vault provides read access to a directory of notes and attachments.
//
// All paths handed to an FS are vault-relative and slash-separated, the same
// form that appears inside [[...]] references. Paths that would resolve
// outside the vault root are rejected.
//
// Reads go through an LRU cache that is validated against each file's
// modification time and size, so repeated references to the same attachment
// within a session do not hit the disk twice.
package vault
