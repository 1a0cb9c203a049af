// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zap logger shared by every component.
//
// Production mode writes JSON; development mode writes colored console
// lines. Output goes to stderr unless a file is configured, so logs never
// mix with command output on stdout.
package logging
