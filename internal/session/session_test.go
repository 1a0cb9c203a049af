// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/vaultchat/internal/compose"
	"github.com/jeranaias/vaultchat/internal/model"
	"github.com/jeranaias/vaultchat/internal/storage"
	"github.com/jeranaias/vaultchat/internal/vault"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

// mapBuilder resolves paths from a fixed map.
type mapBuilder map[string]model.Block

func (m mapBuilder) Build(ctx context.Context, p string) (model.Block, error) {
	if b, ok := m[p]; ok {
		return b, nil
	}
	return nil, &compose.ResolutionError{Path: p, Err: vault.ErrFileNotFound}
}

// echoCompleter replies with the number of messages it was sent.
type echoCompleter struct {
	err   error
	calls [][]model.Message
}

func (e *echoCompleter) Complete(ctx context.Context, msgs []model.Message) (model.Message, error) {
	e.calls = append(e.calls, msgs)
	if e.err != nil {
		return model.Message{}, e.err
	}
	return model.NewAssistantMessage("reply to " + msgs[len(msgs)-1].FirstText()), nil
}

// flakyStore fails AppendMessages while failAppend is set.
type flakyStore struct {
	*storage.Repository
	failAppend bool
}

func (f *flakyStore) AppendMessages(ctx context.Context, id int64, msgs ...model.Message) error {
	if f.failAppend {
		return &storage.PersistenceError{Op: "append", Err: errors.New("disk I/O error")}
	}
	return f.Repository.AppendMessages(ctx, id, msgs...)
}

type fixture struct {
	repo      *storage.Repository
	store     *flakyStore
	completer *echoCompleter
	session   *Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := storage.Open(context.Background(), ":memory:", storage.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	builder := mapBuilder{"notes/a.md": model.NewText("hi")}
	f := &fixture{
		repo:      repo,
		store:     &flakyStore{Repository: repo},
		completer: &echoCompleter{},
	}
	f.session = New(f.store, compose.NewComposer(builder), f.completer, nil)
	t.Cleanup(f.session.Close)
	return f
}

// =============================================================================
// SUBMIT TESTS
// =============================================================================

func TestSubmit_CreatesConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.session.SetInput("See [[notes/a.md]] please")
	res, err := f.session.Submit(ctx)
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.Equal(t, res.ConversationID, f.session.Selected())
	assert.Empty(t, f.session.Input())
	assert.Equal(t, "reply to See", res.Reply.FirstText())

	conv, err := f.repo.Get(ctx, res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "See", conv.Title)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, model.NewMessage(model.RoleUser,
		model.NewText("See"), model.NewText("hi"), model.NewText("please"),
	), conv.Messages[0])
	assert.Equal(t, model.RoleAssistant, conv.Messages[1].Role)
}

func TestSubmit_AppendsToSelected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.session.SetInput("first")
	first, err := f.session.Submit(ctx)
	require.NoError(t, err)

	f.session.SetInput("second")
	second, err := f.session.Submit(ctx)
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	// The completer sees the whole conversation
	require.Len(t, f.completer.calls, 2)
	assert.Len(t, f.completer.calls[1], 3)

	conv, err := f.repo.Get(ctx, first.ConversationID)
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 4)
}

func TestSubmit_UnresolvedReferenceStillSends(t *testing.T) {
	f := newFixture(t)

	f.session.SetInput("look at [[missing.md]]")
	res, err := f.session.Submit(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Composition.Failures, 1)
	assert.Equal(t, "missing.md", res.Composition.Failures[0].Path)
	assert.Equal(t, model.NewUserMessage("look at"), res.Composition.Message)
}

func TestSubmit_EmptyInput(t *testing.T) {
	f := newFixture(t)

	f.session.SetInput("   ")
	_, err := f.session.Submit(context.Background())
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Equal(t, "   ", f.session.Input())

	list, err := f.repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSubmit_PersistenceFailureRestoresState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.failAppend = true
	f.session.SetInput("do not lose me")
	_, err := f.session.Submit(ctx)

	var pe *storage.PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "do not lose me", f.session.Input())
	assert.Zero(t, f.session.Selected())
	assert.Empty(t, f.completer.calls)

	// The conversation created for this submit is gone
	list, err := f.repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSubmit_PersistenceFailureKeepsSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.repo.Create(ctx, "existing")
	require.NoError(t, err)
	_, err = f.session.Select(ctx, id)
	require.NoError(t, err)

	f.store.failAppend = true
	f.session.SetInput("text")
	_, err = f.session.Submit(ctx)
	require.Error(t, err)

	assert.Equal(t, id, f.session.Selected())
	assert.Equal(t, "text", f.session.Input())

	conv, err := f.repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, conv.Messages)
}

func TestSubmit_CompletionFailureKeepsUserMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.completer.err = errors.New("upstream down")
	f.session.SetInput("question")
	res, err := f.session.Submit(ctx)

	var ce *CompletionError
	require.True(t, errors.As(err, &ce))
	require.NotNil(t, res)
	assert.Equal(t, res.ConversationID, ce.ConversationID)
	assert.Empty(t, f.session.Input())

	conv, err := f.repo.Get(ctx, res.ConversationID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, model.RoleUser, conv.Messages[0].Role)
}

// =============================================================================
// SELECTION TESTS
// =============================================================================

func TestDelete_ClearsSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.repo.Create(ctx, "doomed")
	require.NoError(t, err)
	_, err = f.session.Select(ctx, id)
	require.NoError(t, err)

	require.NoError(t, f.session.Delete(ctx, id))
	assert.Zero(t, f.session.Selected())

	conv, err := f.session.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, conv)

	list, err := f.repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDelete_OtherConversationKeepsSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	keep, err := f.repo.Create(ctx, "keep")
	require.NoError(t, err)
	other, err := f.repo.Create(ctx, "other")
	require.NoError(t, err)
	_, err = f.session.Select(ctx, keep)
	require.NoError(t, err)

	// Deletion through the repository is observed too
	require.NoError(t, f.repo.Delete(ctx, other))
	assert.Equal(t, keep, f.session.Selected())
}

func TestSelect_Missing(t *testing.T) {
	f := newFixture(t)

	_, err := f.session.Select(context.Background(), 42)
	assert.ErrorIs(t, err, storage.ErrConversationNotFound)
	assert.Zero(t, f.session.Selected())
}

func TestClearSelection_NextSubmitCreates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.session.SetInput("one")
	first, err := f.session.Submit(ctx)
	require.NoError(t, err)

	f.session.ClearSelection()
	f.session.SetInput("two")
	second, err := f.session.Submit(ctx)
	require.NoError(t, err)

	assert.True(t, second.Created)
	assert.NotEqual(t, first.ConversationID, second.ConversationID)
}

// =============================================================================
// INPUT TESTS
// =============================================================================

func TestAttach(t *testing.T) {
	f := newFixture(t)

	f.session.Attach("a.md")
	assert.Equal(t, "[[a.md]]", f.session.Input())

	f.session.SetInput("  compare  ")
	f.session.Attach("a.md", " ", "dir/b.pdf")
	assert.Equal(t, "compare [[a.md]] [[dir/b.pdf]]", f.session.Input())
}

func TestStartWith(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.session.SetInput("old text")
	id, err := f.session.StartWith(ctx, "Research", "x.md", "y.png")
	require.NoError(t, err)

	assert.Equal(t, id, f.session.Selected())
	assert.Equal(t, "[[x.md]] [[y.png]]", f.session.Input())

	conv, err := f.session.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Research", conv.Title)
}

func TestOnChange(t *testing.T) {
	f := newFixture(t)

	var calls int
	f.session.OnChange(func() { calls++ })
	f.session.SetInput("a")
	f.session.Attach("b.md")
	f.session.ClearSelection()
	assert.Equal(t, 3, calls)
}
