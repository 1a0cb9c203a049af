// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package autocomplete offers vault path suggestions while a [[reference]]
// is being typed.
//
// The Controller is a two-state machine (idle, suggesting) driven by input
// changes and navigation keys:
//
//	idle --input inside [[...]] with results--> suggesting
//	suggesting --Up/Down--> suggesting (selection wraps)
//	suggesting --Enter/Tab/Escape or input outside [[...]]--> idle
//
// Typing "[[" with no "]]" after the cursor inserts the close marker
// immediately; the caller applies the returned Edit to its buffer.
package autocomplete
