// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package flashcards turns vault notes into study cards and exports them
// for Anki.
//
// A note is split into cards at blank lines. A one-line block becomes a
// cloze card with its first word hidden as [[word]]; a longer block becomes
// a basic card whose first line is the front and the rest the back. Cards
// are stored next to the note as <name>-cards.md:
//
//	<Card id="1" type="back-front">
//	<Front>What is a vault?</Front>
//	<Back>A folder of notes</Back>
//	</Card>
//
// ExportAnki reads a cards file and writes <name>-anki.txt, a
// semicolon-separated file with Anki's import headers.
//
// # Usage
//
//	gen := flashcards.New(v, logger)
//	res, err := gen.Create(ctx, "biology/cells.md", false)
//	res, err = gen.ExportAnki(ctx, res.Output, false)
package flashcards
