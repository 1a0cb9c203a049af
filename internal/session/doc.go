// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the state of one chat view.
//
// A Session tracks the selected conversation and the input buffer, and runs
// the submit flow: compose the input, persist the user message, request a
// completion, persist the reply.
//
// # Key Types
//
//   - Session: selection, input buffer and submit flow
//   - Result: what a submit produced
//   - Store, Composer, Completer: the collaborators a Session drives
//
// # Failure Handling
//
// When the user message cannot be persisted, the input buffer and the
// selection return to their values before the submit. A failed completion
// keeps the persisted user message and leaves the input cleared.
//
// # Usage
//
//	s := session.New(repo, composer, client, logger)
//	defer s.Close()
//	s.SetInput("Summarize [[notes/today.md]]")
//	res, err := s.Submit(ctx)
package session
