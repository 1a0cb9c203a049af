// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

// SchemaVersion is the version recorded in PRAGMA user_version once a
// database is fully migrated.
//
//	v1: conversations table
//	v2: index on updated_at for list ordering
//	v3: message payloads re-encoded in the block format
const SchemaVersion = 3

// migration is the DDL that brings a database to version.
// Steps with no DDL exist only to force a re-encode pass.
type migration struct {
	version int
	ddl     string
}

var migrations = []migration{
	{
		version: 1,
		ddl: `
CREATE TABLE IF NOT EXISTS conversations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL DEFAULT '',
    messages TEXT NOT NULL DEFAULT '[]',
    created_at INTEGER NOT NULL,  -- Unix nanoseconds
    updated_at INTEGER NOT NULL   -- Unix nanoseconds
);`,
	},
	{
		version: 2,
		ddl: `
CREATE INDEX IF NOT EXISTS idx_conversations_updated
    ON conversations(updated_at DESC, id DESC);`,
	},
	{
		version: 3,
	},
}

const (
	selectColumns = `SELECT id, title, messages, created_at, updated_at FROM conversations`
	listQuery     = selectColumns + ` ORDER BY updated_at DESC, id DESC`
	getQuery      = selectColumns + ` WHERE id = ?`
)
