// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package index

const (
	// SchemaVersion tracks the path index schema.
	SchemaVersion = 1
)

// Schema is the SQLite schema of the path index.
const Schema = `
-- Metadata table for schema version and index state
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;

-- One row per vault file
CREATE TABLE IF NOT EXISTS paths (
    path TEXT PRIMARY KEY,      -- vault-relative, slash separated
    path_key TEXT NOT NULL,     -- NFC, case-folded path
    name_key TEXT NOT NULL,     -- NFC, case-folded base name
    mod_time INTEGER NOT NULL,  -- Unix nanoseconds
    size INTEGER NOT NULL,
    generation INTEGER NOT NULL -- rebuild pass that last saw the file
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS idx_paths_generation ON paths(generation);
`

// InitMetadata initializes the metadata table with default values.
const InitMetadata = `
INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', '1');
INSERT OR IGNORE INTO metadata (key, value) VALUES ('generation', '0');
INSERT OR IGNORE INTO metadata (key, value) VALUES ('root_path', '');
`
