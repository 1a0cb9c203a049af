// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package autocomplete

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/jeranaias/vaultchat/internal/reference"
)

// DefaultMaxSuggestions bounds the suggestion list.
const DefaultMaxSuggestions = 10

// =============================================================================
// TYPES
// =============================================================================

// SuggestionSource returns ranked vault paths matching a partial token.
type SuggestionSource interface {
	Search(ctx context.Context, partial string) ([]string, error)
}

// State is a snapshot of the suggestion list.
// Visible implies a non-empty list and an in-range SelectedIndex.
type State struct {
	Suggestions   []string
	Visible       bool
	SelectedIndex int
}

// Selected returns the highlighted suggestion, if visible.
func (s State) Selected() (string, bool) {
	if !s.Visible || s.SelectedIndex < 0 || s.SelectedIndex >= len(s.Suggestions) {
		return "", false
	}
	return s.Suggestions[s.SelectedIndex], true
}

func (s State) clone() State {
	out := s
	if s.Suggestions != nil {
		out.Suggestions = append([]string(nil), s.Suggestions...)
	}
	return out
}

// Edit is the input buffer after the controller had its say.
// Offsets are byte offsets into Text.
type Edit struct {
	Text      string
	Cursor    int
	Rewritten bool
}

// Key is a navigation key the controller may consume.
type Key int

const (
	KeyOther Key = iota
	KeyUp
	KeyDown
	KeyEnter
	KeyTab
	KeyEscape
)

// String returns the key name.
func (k Key) String() string {
	switch k {
	case KeyUp:
		return "up"
	case KeyDown:
		return "down"
	case KeyEnter:
		return "enter"
	case KeyTab:
		return "tab"
	case KeyEscape:
		return "escape"
	default:
		return "other"
	}
}

// KeyResult tells the caller what a key press did.
type KeyResult struct {
	// Handled means the caller should not apply its default action.
	Handled bool

	// Accepted is set for Enter/Tab; Suggestion holds the chosen path.
	Accepted   bool
	Suggestion string
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns the suggestion state for one input buffer.
type Controller struct {
	source SuggestionSource
	logger *zap.Logger
	max    int

	mu      sync.Mutex
	state   State
	seq     uint64
	subs    map[int]func(State)
	nextSub int
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger for suggestion source failures.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxSuggestions bounds the suggestion list. Values below 1 are ignored.
func WithMaxSuggestions(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.max = n
		}
	}
}

// NewController creates an idle controller.
func NewController(source SuggestionSource, opts ...Option) *Controller {
	c := &Controller{
		source: source,
		logger: zap.NewNop(),
		max:    DefaultMaxSuggestions,
		subs:   make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Subscribe registers fn to be called with every new state. The returned
// function removes the subscription.
func (c *Controller) Subscribe(fn func(State)) (cancel func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// =============================================================================
// INPUT HANDLING
// =============================================================================

// HandleInput reacts to an input change. prevLen is the byte length of the
// buffer before the change; auto-closing only happens when the text grew.
//
// When the two bytes before the cursor are "[[" and no "]]" follows the
// cursor, "]]" is inserted at the cursor and the cursor stays put. The
// suggestion list is then recomputed from the token between the nearest
// open marker and the cursor.
func (c *Controller) HandleInput(ctx context.Context, text string, cursor, prevLen int) Edit {
	edit := Edit{Text: text, Cursor: cursor}

	if len(text) > prevLen && reference.ShouldAutoClose(text, cursor) {
		edit.Text = text[:cursor] + reference.Close + text[cursor:]
		edit.Rewritten = true
	}

	partial, ok := reference.Partial(edit.Text, edit.Cursor)
	if !ok {
		c.mu.Lock()
		c.seq++
		c.setLocked(State{})
		return edit
	}

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	results, err := c.source.Search(ctx, partial)

	c.mu.Lock()
	if seq != c.seq {
		// A newer input superseded this query
		c.mu.Unlock()
		return edit
	}
	if err != nil {
		c.logger.Debug("suggestion query failed", zap.String("partial", partial), zap.Error(err))
		c.setLocked(State{})
		return edit
	}
	if len(results) == 0 {
		c.setLocked(State{})
		return edit
	}
	if len(results) > c.max {
		results = results[:c.max]
	}
	c.setLocked(State{Suggestions: append([]string(nil), results...), Visible: true})
	return edit
}

// HandleKey processes a navigation key. Keys are only consumed while
// suggestions are visible.
func (c *Controller) HandleKey(key Key) KeyResult {
	c.mu.Lock()
	if !c.state.Visible {
		c.mu.Unlock()
		return KeyResult{}
	}

	n := len(c.state.Suggestions)
	next := c.state.clone()

	switch key {
	case KeyDown:
		next.SelectedIndex = (next.SelectedIndex + 1) % n
		c.setLocked(next)
		return KeyResult{Handled: true}

	case KeyUp:
		next.SelectedIndex = (next.SelectedIndex - 1 + n) % n
		c.setLocked(next)
		return KeyResult{Handled: true}

	case KeyEnter, KeyTab:
		chosen := c.state.Suggestions[c.state.SelectedIndex]
		c.seq++
		c.setLocked(State{})
		return KeyResult{Handled: true, Accepted: true, Suggestion: chosen}

	case KeyEscape:
		c.seq++
		c.setLocked(State{})
		return KeyResult{Handled: true}

	default:
		c.mu.Unlock()
		return KeyResult{}
	}
}

// Accept replaces the closed reference around the cursor with
// [[suggestion]]. Whitespace on either side collapses to a single space,
// with none added at the start or end of the text, and the cursor lands just
// after the inserted close marker. Without an enclosing reference the input
// is returned unchanged and ok is false. The controller is idle afterwards.
func (c *Controller) Accept(text string, cursor int, suggestion string) (Edit, bool) {
	c.mu.Lock()
	c.seq++
	c.setLocked(State{})

	span, ok := reference.Enclosing(text, cursor)
	if !ok {
		return Edit{Text: text, Cursor: cursor}, false
	}

	before := strings.TrimRightFunc(text[:span.Start], unicode.IsSpace)
	after := strings.TrimLeftFunc(text[span.End:], unicode.IsSpace)

	var sb strings.Builder
	sb.WriteString(before)
	if before != "" {
		sb.WriteByte(' ')
	}
	sb.WriteString(reference.Format(suggestion))
	newCursor := sb.Len()
	if after != "" {
		sb.WriteByte(' ')
	}
	sb.WriteString(after)

	return Edit{Text: sb.String(), Cursor: newCursor, Rewritten: true}, true
}

// Reset returns the controller to idle and drops any in-flight query.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.seq++
	c.setLocked(State{})
}

// setLocked installs next and notifies subscribers when it differs from the
// current state. It is called with c.mu held and releases it.
func (c *Controller) setLocked(next State) {
	if statesEqual(c.state, next) {
		c.mu.Unlock()
		return
	}
	c.state = next
	snapshot := next.clone()

	subs := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot.clone())
	}
}

func statesEqual(a, b State) bool {
	if a.Visible != b.Visible || a.SelectedIndex != b.SelectedIndex || len(a.Suggestions) != len(b.Suggestions) {
		return false
	}
	for i := range a.Suggestions {
		if a.Suggestions[i] != b.Suggestions[i] {
			return false
		}
	}
	return true
}
