// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/vaultchat/internal/compose"
	"github.com/jeranaias/vaultchat/internal/model"
	"github.com/jeranaias/vaultchat/internal/reference"
	"github.com/jeranaias/vaultchat/internal/storage"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Store persists conversations. *storage.Repository implements it.
type Store interface {
	Create(ctx context.Context, title string) (int64, error)
	Get(ctx context.Context, id int64) (*model.Conversation, error)
	AppendMessages(ctx context.Context, id int64, msgs ...model.Message) error
	Delete(ctx context.Context, id int64) error
	Subscribe(fn func(storage.Event)) (cancel func())
}

// Composer turns raw input into a user message. *compose.Composer implements it.
type Composer interface {
	Compose(ctx context.Context, raw string) (*compose.Composition, error)
}

// Completer produces the assistant reply. *cloud.Client implements it.
type Completer interface {
	Complete(ctx context.Context, messages []model.Message) (model.Message, error)
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyInput is returned when submitting a blank input buffer.
	ErrEmptyInput = errors.New("nothing to send")

	// ErrBusy is returned when a submit is already in flight.
	ErrBusy = errors.New("a message is already being sent")
)

// CompletionError reports a failed completion after the user message was
// stored.
type CompletionError struct {
	ConversationID int64
	Err            error
}

// Error implements the error interface.
func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion for conversation %d failed: %v", e.ConversationID, e.Err)
}

// Unwrap returns the underlying error.
func (e *CompletionError) Unwrap() error {
	return e.Err
}

// =============================================================================
// SESSION
// =============================================================================

// Result describes a submit.
type Result struct {
	// ConversationID is the conversation the message went to.
	ConversationID int64

	// Created is set when the submit created the conversation.
	Created bool

	// Composition is the composed user message and its failed references.
	Composition *compose.Composition

	// Reply is the assistant message. Zero when the completion failed.
	Reply model.Message
}

// Session is the state behind one chat view.
type Session struct {
	store     Store
	composer  Composer
	completer Completer
	logger    *zap.Logger

	mu         sync.Mutex
	selected   int64
	input      string
	submitting bool
	listeners  []func()

	unsubscribe func()
}

// New creates a session with nothing selected and an empty input.
func New(store Store, composer Composer, completer Completer, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		store:     store,
		composer:  composer,
		completer: completer,
		logger:    logger,
	}
	s.unsubscribe = store.Subscribe(s.onStoreEvent)
	return s
}

// Close detaches the session from the store.
func (s *Session) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// OnChange registers fn to run after the selection or input changes.
func (s *Session) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// notify runs listeners outside the lock.
func (s *Session) notify() {
	s.mu.Lock()
	listeners := make([]func(), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

func (s *Session) onStoreEvent(ev storage.Event) {
	if ev.Kind != storage.EventDeleted {
		return
	}
	s.mu.Lock()
	cleared := s.selected == ev.ID
	if cleared {
		s.selected = 0
	}
	s.mu.Unlock()

	if cleared {
		s.logger.Debug("selected conversation deleted", zap.Int64("conversation", ev.ID))
		s.notify()
	}
}

// =============================================================================
// SELECTION
// =============================================================================

// Select makes id the current conversation and returns it.
func (s *Session) Select(ctx context.Context, id int64) (*model.Conversation, error) {
	conv, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.selected = id
	s.mu.Unlock()
	s.notify()
	return conv, nil
}

// Selected returns the selected conversation id, or 0 when none is selected.
func (s *Session) Selected() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Current returns the selected conversation, or nil when none is selected.
func (s *Session) Current(ctx context.Context) (*model.Conversation, error) {
	id := s.Selected()
	if id == 0 {
		return nil, nil
	}
	return s.store.Get(ctx, id)
}

// ClearSelection deselects the current conversation. The next submit
// starts a new one.
func (s *Session) ClearSelection() {
	s.mu.Lock()
	s.selected = 0
	s.mu.Unlock()
	s.notify()
}

// Delete removes a conversation. Deleting the selected conversation
// clears the selection.
func (s *Session) Delete(ctx context.Context, id int64) error {
	// The store event clears the selection
	return s.store.Delete(ctx, id)
}

// =============================================================================
// INPUT BUFFER
// =============================================================================

// Input returns the input buffer.
func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// SetInput replaces the input buffer.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
	s.notify()
}

// Attach appends a reference for each path to the input, separated by
// single spaces. Blank paths are skipped.
func (s *Session) Attach(paths ...string) {
	s.mu.Lock()
	s.input = withReferences(s.input, paths)
	s.mu.Unlock()
	s.notify()
}

func withReferences(input string, paths []string) string {
	parts := make([]string, 0, len(paths)+1)
	if trimmed := strings.TrimSpace(input); trimmed != "" {
		parts = append(parts, trimmed)
	}
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, reference.Format(p))
		}
	}
	return strings.Join(parts, " ")
}

// StartWith creates a conversation, selects it, and fills the input with
// references to paths.
func (s *Session) StartWith(ctx context.Context, title string, paths ...string) (int64, error) {
	id, err := s.store.Create(ctx, title)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.selected = id
	s.input = withReferences("", paths)
	s.mu.Unlock()
	s.notify()
	return id, nil
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit sends the input buffer to the selected conversation, creating one
// when nothing is selected.
//
// The input is cleared once the submit starts. If composing or persisting
// the user message fails, input and selection are restored and nothing is
// stored. If the completion fails, the user message stays stored, the
// Result is returned alongside a *CompletionError, and the input stays
// cleared.
func (s *Session) Submit(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	raw := s.input
	if strings.TrimSpace(raw) == "" {
		s.mu.Unlock()
		return nil, ErrEmptyInput
	}
	prevSelected := s.selected
	s.submitting = true
	s.input = ""
	s.mu.Unlock()
	s.notify()

	defer func() {
		s.mu.Lock()
		s.submitting = false
		s.mu.Unlock()
	}()

	res, err := s.persistUserMessage(ctx, raw, prevSelected)
	if err != nil {
		s.restore(raw, prevSelected)
		return nil, err
	}

	logger := s.logger.With(zap.Int64("conversation", res.ConversationID))
	if res.Composition.HasFailures() {
		logger.Info("message sent with unresolved references",
			zap.Int("failures", len(res.Composition.Failures)))
	}

	conv, err := s.store.Get(ctx, res.ConversationID)
	if err != nil {
		return res, &CompletionError{ConversationID: res.ConversationID, Err: err}
	}

	reply, err := s.completer.Complete(ctx, conv.Messages)
	if err != nil {
		logger.Warn("completion failed", zap.Error(err))
		return res, &CompletionError{ConversationID: res.ConversationID, Err: err}
	}

	if err := s.store.AppendMessages(ctx, res.ConversationID, reply); err != nil {
		logger.Error("reply not saved", zap.Error(err))
		return res, err
	}

	res.Reply = reply
	return res, nil
}

// persistUserMessage composes raw and appends it, creating the target
// conversation when selected is 0. On failure nothing is left stored.
func (s *Session) persistUserMessage(ctx context.Context, raw string, selected int64) (*Result, error) {
	comp, err := s.composer.Compose(ctx, raw)
	if err != nil {
		return nil, err
	}

	res := &Result{ConversationID: selected, Composition: comp}
	if selected == 0 {
		id, err := s.store.Create(ctx, model.TitleFromMessage(comp.Message))
		if err != nil {
			return nil, err
		}
		res.ConversationID = id
		res.Created = true

		s.mu.Lock()
		s.selected = id
		s.mu.Unlock()
	}

	if err := s.store.AppendMessages(ctx, res.ConversationID, comp.Message); err != nil {
		if res.Created {
			// Remove the empty conversation this submit created
			if delErr := s.store.Delete(context.WithoutCancel(ctx), res.ConversationID); delErr != nil {
				s.logger.Warn("cannot remove empty conversation",
					zap.Int64("conversation", res.ConversationID),
					zap.Error(delErr))
			}
		}
		return nil, err
	}
	return res, nil
}

// restore puts input and selection back to their pre-submit values.
func (s *Session) restore(input string, selected int64) {
	s.mu.Lock()
	s.input = input
	s.selected = selected
	s.mu.Unlock()
	s.notify()
}
