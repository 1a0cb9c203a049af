// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// suggest.go - Typo correction for REPL slash commands.
package cli

import (
	"strings"
)

// slashCommands lists the commands the chat REPL understands.
var slashCommands = []string{
	"/new",
	"/list",
	"/open",
	"/attach",
	"/show",
	"/rename",
	"/delete",
	"/help",
	"/quit",
	"/exit",
}

// SuggestCommand returns the slash command closest to input, or "" when
// nothing is close enough. The distance threshold grows with input length.
func SuggestCommand(input string) string {
	input = strings.ToLower(input)
	if !strings.HasPrefix(input, "/") {
		input = "/" + input
	}

	// Don't suggest for very short inputs (likely intentional)
	if len(input) < 3 {
		return ""
	}

	maxDistance := 1
	if len(input) >= 5 {
		maxDistance = 2
	}

	bestMatch := ""
	bestDistance := -1
	for _, cmd := range slashCommands {
		distance := levenshteinDistance(input, cmd)
		if distance == 0 {
			return ""
		}
		if distance <= maxDistance && (bestDistance == -1 || distance < bestDistance) {
			bestDistance = distance
			bestMatch = cmd
		}
	}
	return bestMatch
}

// levenshteinDistance calculates the edit distance between two strings.
func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	cols := len(s2) + 1

	// Two rows instead of the full matrix
	prev := make([]int, cols)
	curr := make([]int, cols)
	for j := 0; j < cols; j++ {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j < cols; j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[cols-1]
}
