// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reference recognizes [[path]] references in user input.
//
// Everything in this package is a pure function over strings. Offsets are
// byte offsets into the UTF-8 input; both markers are ASCII so a marker
// boundary is always a rune boundary.
//
// # Key Functions
//
//   - Tokenize: split input into ordered text and reference spans
//   - Join: rejoin spans (Join(Tokenize(s)) == s)
//   - Path / Format: strip or add the markers around a vault path
//   - Enclosing: the closed reference surrounding a cursor
//   - OpenBefore: the unclosed or closed reference a cursor is typing in,
//     paired with the same left-to-right rule as Tokenize
//
// # Usage
//
//	for _, span := range reference.Tokenize(input) {
//	    if span.Kind == reference.KindReference {
//	        fmt.Println(reference.Path(span))
//	    }
//	}
package reference
