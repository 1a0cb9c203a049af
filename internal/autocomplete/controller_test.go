// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package autocomplete

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/vaultchat/internal/reference"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// sourceFunc adapts a function to SuggestionSource.
type sourceFunc func(ctx context.Context, partial string) ([]string, error)

func (f sourceFunc) Search(ctx context.Context, partial string) ([]string, error) {
	return f(ctx, partial)
}

// prefixSource returns every path containing partial, in list order.
func prefixSource(paths ...string) sourceFunc {
	return func(_ context.Context, partial string) ([]string, error) {
		var out []string
		for _, p := range paths {
			if strings.Contains(strings.ToLower(p), strings.ToLower(partial)) {
				out = append(out, p)
			}
		}
		return out, nil
	}
}

func suggesting(t *testing.T, c *Controller, n int) {
	t.Helper()
	st := c.State()
	require.True(t, st.Visible, "expected suggesting state")
	require.Len(t, st.Suggestions, n)
}

// =============================================================================
// AUTO-CLOSE TESTS
// =============================================================================

func TestHandleInput_AutoClose(t *testing.T) {
	c := NewController(prefixSource("notes/a.md", "img.png"))

	edit := c.HandleInput(context.Background(), "[[", 2, 1)
	assert.Equal(t, Edit{Text: "[[]]", Cursor: 2, Rewritten: true}, edit)

	// Empty partial still queries the source
	suggesting(t, c, 2)
}

func TestHandleInput_AutoCloseIdempotent(t *testing.T) {
	c := NewController(prefixSource("a.md"))

	first := c.HandleInput(context.Background(), "see [[", 6, 5)
	require.True(t, first.Rewritten)

	second := c.HandleInput(context.Background(), first.Text, first.Cursor, len(first.Text))
	assert.False(t, second.Rewritten)
	assert.Equal(t, "see [[]]", second.Text)
}

func TestHandleInput_NoAutoClose(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		cursor  int
		prevLen int
	}{
		{"deletion", "[[", 2, 3},
		{"close already after cursor", "[[ x ]]", 2, 6},
		{"single bracket", "a [", 3, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(prefixSource())
			edit := c.HandleInput(context.Background(), tt.text, tt.cursor, tt.prevLen)
			assert.False(t, edit.Rewritten)
			assert.Equal(t, tt.text, edit.Text)
			assert.Equal(t, tt.cursor, edit.Cursor)
		})
	}
}

// =============================================================================
// SUGGESTION TESTS
// =============================================================================

func TestHandleInput_Suggestions(t *testing.T) {
	src := prefixSource("notes/alpha.md", "notes/beta.md", "img/alpha.png")

	tests := []struct {
		name        string
		text        string
		cursor      int
		wantVisible bool
		want        []string
	}{
		{"partial inside closed", "[[alp]]", 5, true, []string{"notes/alpha.md", "img/alpha.png"}},
		{"partial at end unclosed", "x [[bet", 7, true, []string{"notes/beta.md"}},
		{"no matches", "[[zzz]]", 5, false, nil},
		{"outside brackets", "[[alp]] more", 12, false, nil},
		{"unclosed not at end", "[[alp more", 5, false, nil},
		{"no brackets", "hello", 5, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(src)
			c.HandleInput(context.Background(), tt.text, tt.cursor, len(tt.text))

			st := c.State()
			assert.Equal(t, tt.wantVisible, st.Visible)
			assert.Equal(t, tt.want, st.Suggestions)
			assert.Equal(t, 0, st.SelectedIndex)
		})
	}
}

func TestHandleInput_LeavingBracketGoesIdle(t *testing.T) {
	c := NewController(prefixSource("a.md"))
	c.HandleInput(context.Background(), "[[a]]", 3, 5)
	suggesting(t, c, 1)

	c.HandleInput(context.Background(), "[[a]] ", 6, 5)
	assert.False(t, c.State().Visible)
}

func TestHandleInput_SourceError(t *testing.T) {
	c := NewController(sourceFunc(func(context.Context, string) ([]string, error) {
		return nil, errors.New("index closed")
	}))
	c.HandleInput(context.Background(), "[[a]]", 3, 5)
	assert.Equal(t, State{}, c.State())
}

func TestHandleInput_MaxSuggestions(t *testing.T) {
	c := NewController(prefixSource("a1", "a2", "a3", "a4"), WithMaxSuggestions(2))
	c.HandleInput(context.Background(), "[[a]]", 3, 5)
	assert.Equal(t, []string{"a1", "a2"}, c.State().Suggestions)
}

func TestHandleInput_StaleResultDiscarded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	src := sourceFunc(func(_ context.Context, partial string) ([]string, error) {
		if partial == "slow" {
			close(started)
			<-release
			return []string{"slow.md"}, nil
		}
		return []string{"fast.md"}, nil
	})
	c := NewController(src)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.HandleInput(context.Background(), "[[slow]]", 6, 8)
	}()

	<-started
	c.HandleInput(context.Background(), "[[fast]]", 6, 8)
	close(release)
	wg.Wait()

	assert.Equal(t, []string{"fast.md"}, c.State().Suggestions)
}

// =============================================================================
// KEY TESTS
// =============================================================================

func TestHandleKey_Navigation(t *testing.T) {
	c := NewController(prefixSource("a", "ab", "abc"))
	c.HandleInput(context.Background(), "[[a]]", 3, 5)
	suggesting(t, c, 3)

	assert.True(t, c.HandleKey(KeyDown).Handled)
	assert.Equal(t, 1, c.State().SelectedIndex)

	c.HandleKey(KeyDown)
	c.HandleKey(KeyDown)
	assert.Equal(t, 0, c.State().SelectedIndex, "down wraps to the top")

	c.HandleKey(KeyUp)
	assert.Equal(t, 2, c.State().SelectedIndex, "up wraps to the bottom")

	assert.False(t, c.HandleKey(KeyOther).Handled)
	assert.True(t, c.State().Visible)
}

func TestHandleKey_AcceptAndCancel(t *testing.T) {
	for _, key := range []Key{KeyEnter, KeyTab} {
		t.Run(key.String(), func(t *testing.T) {
			c := NewController(prefixSource("a", "ab"))
			c.HandleInput(context.Background(), "[[a]]", 3, 5)
			c.HandleKey(KeyDown)

			res := c.HandleKey(key)
			assert.Equal(t, KeyResult{Handled: true, Accepted: true, Suggestion: "ab"}, res)
			assert.False(t, c.State().Visible)
		})
	}

	c := NewController(prefixSource("a"))
	c.HandleInput(context.Background(), "[[a]]", 3, 5)
	assert.Equal(t, KeyResult{Handled: true}, c.HandleKey(KeyEscape))
	assert.False(t, c.State().Visible)
}

func TestHandleKey_IdleIgnoresKeys(t *testing.T) {
	c := NewController(prefixSource())
	for _, key := range []Key{KeyUp, KeyDown, KeyEnter, KeyTab, KeyEscape, KeyOther} {
		assert.Equal(t, KeyResult{}, c.HandleKey(key), key.String())
	}
}

// =============================================================================
// ACCEPT TESTS
// =============================================================================

func TestAccept(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		cursor     int
		suggestion string
		want       string
		wantCursor int
	}{
		{"alone", "[[no]]", 4, "notes/a.md", "[[notes/a.md]]", 14},
		{"text before", "see    [[no]]", 9, "n.md", "see [[n.md]]", 12},
		{"text after", "[[no]]   then", 4, "n.md", "[[n.md]] then", 8},
		{"both sides", "a[[no]]b", 3, "n.md", "a [[n.md]] b", 10},
		{"cursor after close", "x [[no]]", 8, "n.md", "x [[n.md]]", 10},
		{"trailing whitespace dropped", "x [[no]]  \n", 5, "n.md", "x [[n.md]]", 10},
		{"extra open bracket", "[[[no]]", 4, "n.md", "[[n.md]]", 8},
		{"later reference kept", "[[no]] [[b.md]]", 3, "n.md", "[[n.md]] [[b.md]]", 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(prefixSource())
			edit, ok := c.Accept(tt.text, tt.cursor, tt.suggestion)
			require.True(t, ok)
			assert.Equal(t, tt.want, edit.Text)
			assert.Equal(t, tt.wantCursor, edit.Cursor)
			assert.Equal(t, "]]", edit.Text[edit.Cursor-2:edit.Cursor])

			// The inserted reference tokenizes as one closed reference ending
			// at the cursor, and no unclosed open marker is left behind.
			var inserted *reference.Span
			var closed int
			for _, span := range reference.Tokenize(edit.Text) {
				if !span.IsReference() {
					assert.NotContains(t, span.Value, reference.Open)
					continue
				}
				closed++
				if span.End == edit.Cursor {
					span := span
					inserted = &span
				}
			}
			require.NotNil(t, inserted)
			assert.Equal(t, reference.Format(tt.suggestion), inserted.Value)
			assert.Equal(t, strings.Count(edit.Text, reference.Open), closed)
		})
	}
}

func TestAccept_NoBracketIsNoop(t *testing.T) {
	c := NewController(prefixSource("a.md"))
	c.HandleInput(context.Background(), "[[a]]", 3, 5)

	edit, ok := c.Accept("plain text", 3, "a.md")
	assert.False(t, ok)
	assert.Equal(t, Edit{Text: "plain text", Cursor: 3}, edit)
	assert.False(t, c.State().Visible, "accept always leaves the controller idle")
}

// =============================================================================
// SUBSCRIPTION TESTS
// =============================================================================

func TestSubscribe(t *testing.T) {
	c := NewController(prefixSource("a", "b"))

	var mu sync.Mutex
	var seen []State
	cancel := c.Subscribe(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	c.HandleInput(context.Background(), "[[]]", 2, 4)
	c.HandleKey(KeyDown)
	c.HandleKey(KeyEscape)
	cancel()
	c.HandleInput(context.Background(), "[[]]", 2, 4)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.True(t, seen[0].Visible)
	assert.Equal(t, 1, seen[1].SelectedIndex)
	assert.False(t, seen[2].Visible)
}

func TestState_ReturnsCopy(t *testing.T) {
	c := NewController(prefixSource("a"))
	c.HandleInput(context.Background(), "[[]]", 2, 4)

	st := c.State()
	st.Suggestions[0] = "mutated"
	assert.Equal(t, "a", c.State().Suggestions[0])

	sel, ok := c.State().Selected()
	assert.True(t, ok)
	assert.Equal(t, "a", sel)
}
