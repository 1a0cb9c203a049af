// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reference

import (
	"strings"
)

// =============================================================================
// MARKERS
// =============================================================================

const (
	// Open starts a reference.
	Open = "[["

	// Close ends a reference.
	Close = "]]"

	markerLen = 2
)

// =============================================================================
// SPAN TYPES
// =============================================================================

// Kind distinguishes plain text from references.
type Kind int

const (
	KindText      Kind = iota // free text, kept verbatim
	KindReference             // [[path]] including both markers
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindReference:
		return "reference"
	default:
		return "unknown"
	}
}

// Span is one piece of tokenized input.
// Start and End are half-open byte offsets into the original input, and
// Value is always input[Start:End].
type Span struct {
	Kind  Kind
	Value string
	Start int
	End   int
}

// IsReference reports whether the span is a [[...]] reference.
func (s Span) IsReference() bool {
	return s.Kind == KindReference
}

// =============================================================================
// TOKENIZER
// =============================================================================

// Tokenize splits input into ordered, non-overlapping text and reference spans.
//
// A reference starts at an open marker and ends at the nearest close marker
// after it. An open marker with no close marker after it is plain text, as is
// everything following it. Scanning resumes strictly after each close marker,
// so spans never overlap. Nothing is trimmed; Join(Tokenize(s)) == s.
func Tokenize(input string) []Span {
	var spans []Span
	pos := 0

	for pos < len(input) {
		openRel := strings.Index(input[pos:], Open)
		if openRel == -1 {
			break
		}
		open := pos + openRel

		closeRel := strings.Index(input[open+markerLen:], Close)
		if closeRel == -1 {
			// Unclosed: the rest of the input is text
			break
		}
		end := open + markerLen + closeRel + markerLen

		if open > pos {
			spans = append(spans, Span{Kind: KindText, Value: input[pos:open], Start: pos, End: open})
		}
		spans = append(spans, Span{Kind: KindReference, Value: input[open:end], Start: open, End: end})
		pos = end
	}

	if pos < len(input) {
		spans = append(spans, Span{Kind: KindText, Value: input[pos:], Start: pos, End: len(input)})
	}

	return spans
}

// Join concatenates span values in order.
func Join(spans []Span) string {
	var sb strings.Builder
	for _, s := range spans {
		sb.WriteString(s.Value)
	}
	return sb.String()
}

// Paths returns the path of every reference in input, in source order.
func Paths(input string) []string {
	var paths []string
	for _, s := range Tokenize(input) {
		if s.IsReference() {
			paths = append(paths, Path(s))
		}
	}
	return paths
}

// HasReferences returns true if input contains at least one closed reference.
func HasReferences(input string) bool {
	for _, s := range Tokenize(input) {
		if s.IsReference() {
			return true
		}
	}
	return false
}

// =============================================================================
// PATH HELPERS
// =============================================================================

// Path strips the markers from a reference span and trims surrounding
// whitespace. Text spans yield an empty path.
func Path(s Span) string {
	if !s.IsReference() || len(s.Value) < 2*markerLen {
		return ""
	}
	return strings.TrimSpace(s.Value[markerLen : len(s.Value)-markerLen])
}

// Format wraps a path in reference markers.
func Format(path string) string {
	return Open + path + Close
}

// =============================================================================
// CURSOR HELPERS
// =============================================================================

// referenceAt finds the reference the cursor falls in, scanning left to
// right with the same rule as Tokenize. end is len(input) for an unclosed
// reference. The cursor must be at or after the end of the open marker.
func referenceAt(input string, cursor int) (open, end int, closed, ok bool) {
	if cursor < 0 || cursor > len(input) {
		return 0, 0, false, false
	}

	pos := 0
	for pos < len(input) {
		openRel := strings.Index(input[pos:], Open)
		if openRel == -1 {
			break
		}
		open = pos + openRel
		if open+markerLen > cursor {
			break
		}

		closeRel := strings.Index(input[open+markerLen:], Close)
		if closeRel == -1 {
			return open, len(input), false, true
		}
		end = open + markerLen + closeRel + markerLen
		if cursor <= end {
			return open, end, true, true
		}
		pos = end
	}
	return 0, 0, false, false
}

// OpenBefore locates the reference a cursor is currently typing in.
//
// It returns the offset of the open marker when the cursor sits after an open
// marker and either the marker's close marker starts at or after the cursor,
// or the marker has no close marker and the cursor is at the end of input.
// Markers pair up exactly as in Tokenize, so "[[[a]]" is one reference to
// "[a".
func OpenBefore(input string, cursor int) (int, bool) {
	open, end, closed, ok := referenceAt(input, cursor)
	if !ok {
		return 0, false
	}
	if !closed {
		return open, cursor == len(input)
	}
	return open, cursor <= end-markerLen
}

// Partial returns the text typed between the open marker and the cursor,
// or false when the cursor is not inside a reference.
func Partial(input string, cursor int) (string, bool) {
	open, ok := OpenBefore(input, cursor)
	if !ok {
		return "", false
	}
	return input[open+markerLen : cursor], true
}

// Enclosing returns the closed reference span around the cursor.
// The cursor may sit anywhere from just after the open marker up to just
// after the close marker. Unclosed references have no enclosing span.
func Enclosing(input string, cursor int) (Span, bool) {
	open, end, closed, ok := referenceAt(input, cursor)
	if !ok || !closed {
		return Span{}, false
	}
	return Span{Kind: KindReference, Value: input[open:end], Start: open, End: end}, true
}

// ShouldAutoClose reports whether the two bytes before the cursor form an
// open marker and no close marker exists at or after the cursor.
func ShouldAutoClose(input string, cursor int) bool {
	if cursor < markerLen || cursor > len(input) {
		return false
	}
	if input[cursor-markerLen:cursor] != Open {
		return false
	}
	return !strings.Contains(input[cursor:], Close)
}
