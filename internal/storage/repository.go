// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/vaultchat/internal/model"
)

// =============================================================================
// EVENTS
// =============================================================================

// EventKind names a committed change.
type EventKind int

const (
	EventCreated EventKind = iota
	EventUpdated
	EventRenamed
	EventDeleted
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventUpdated:
		return "updated"
	case EventRenamed:
		return "renamed"
	case EventDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers after a change commits.
type Event struct {
	Kind EventKind
	ID   int64
}

// =============================================================================
// REPOSITORY
// =============================================================================

// Options configures a Repository.
type Options struct {
	Logger *zap.Logger

	// Now overrides the wall clock, for tests.
	Now func() time.Time
}

// Repository stores conversations in SQLite.
// It is safe for concurrent use; writes are serialized on one connection.
type Repository struct {
	db     *sql.DB
	path   string
	logger *zap.Logger

	clockMu sync.Mutex
	now     func() time.Time
	last    int64 // last issued timestamp, Unix nanoseconds

	subsMu  sync.RWMutex
	subs    map[int]func(Event)
	nextSub int

	migration MigrationResult
}

// Open opens (creating if needed) the database at path and migrates it to
// SchemaVersion. The special path ":memory:" opens a private in-memory store.
func Open(ctx context.Context, path string, opts Options) (*Repository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, persistErr("open", fmt.Errorf("create database directory: %w", err))
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, persistErr("open", err)
	}

	// SQLite allows one writer; a single connection also keeps :memory: alive
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, persistErr("open", fmt.Errorf("set pragma: %w", err))
		}
	}

	r := &Repository{
		db:     db,
		path:   path,
		logger: opts.Logger,
		now:    opts.Now,
		subs:   make(map[int]func(Event)),
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.now == nil {
		r.now = time.Now
	}

	result, err := r.Migrate(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	r.migration = result

	var last sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(updated_at) FROM conversations`).Scan(&last); err != nil {
		db.Close()
		return nil, persistErr("open", err)
	}
	r.last = last.Int64

	return r, nil
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Path returns the database path.
func (r *Repository) Path() string {
	return r.path
}

// OpenMigration reports the migration pass run by Open.
func (r *Repository) OpenMigration() MigrationResult {
	return r.migration
}

// tick returns a timestamp strictly greater than every one issued before,
// so mutation order survives clock ties and small clock steps backwards.
func (r *Repository) tick() int64 {
	r.clockMu.Lock()
	defer r.clockMu.Unlock()

	ts := r.now().UnixNano()
	if ts <= r.last {
		ts = r.last + 1
	}
	r.last = ts
	return ts
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Subscribe registers fn for change events. Events are delivered
// synchronously, after commit, on the goroutine that made the change.
func (r *Repository) Subscribe(fn func(Event)) (cancel func()) {
	r.subsMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.subsMu.Unlock()

	return func() {
		r.subsMu.Lock()
		delete(r.subs, id)
		r.subsMu.Unlock()
	}
}

func (r *Repository) publish(kind EventKind, id int64) {
	r.subsMu.RLock()
	subs := make([]func(Event), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.subsMu.RUnlock()

	ev := Event{Kind: kind, ID: id}
	for _, fn := range subs {
		fn(ev)
	}
}

// =============================================================================
// READS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scan(row rowScanner) (*model.Conversation, error) {
	var (
		conv               model.Conversation
		title, payload     sql.NullString
		createdAt, updated sql.NullInt64
	)
	if err := row.Scan(&conv.ID, &title, &payload, &createdAt, &updated); err != nil {
		return nil, err
	}

	msgs, err := model.CoerceMessages(payload.String)
	if err != nil {
		r.logger.Warn("conversation messages unreadable",
			zap.Int64("conversation", conv.ID),
			zap.Error(err))
	}
	conv.Title = title.String
	conv.Messages = msgs
	conv.CreatedAt = time.Unix(0, createdAt.Int64)
	conv.UpdatedAt = time.Unix(0, updated.Int64)
	return &conv, nil
}

// Get returns a conversation by id.
func (r *Repository) Get(ctx context.Context, id int64) (*model.Conversation, error) {
	conv, err := r.scan(r.db.QueryRowContext(ctx, getQuery, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, persistErr("get", err)
	}
	return conv, nil
}

// List returns every conversation, most recently updated first. Ties are
// broken by id, newest first.
func (r *Repository) List(ctx context.Context) ([]*model.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, listQuery)
	if err != nil {
		return nil, persistErr("list", err)
	}
	defer rows.Close()

	var convs []*model.Conversation
	for rows.Next() {
		conv, err := r.scan(rows)
		if err != nil {
			return nil, persistErr("list", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list", err)
	}
	return convs, nil
}

// Search returns conversations whose title or message text contains query,
// case-insensitively, in List order. An empty query returns everything.
func (r *Repository) Search(ctx context.Context, query string) ([]*model.Conversation, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return all, nil
	}

	var results []*model.Conversation
	for _, conv := range all {
		if strings.Contains(strings.ToLower(conv.Title), query) {
			results = append(results, conv)
			continue
		}
		for _, msg := range conv.Messages {
			if strings.Contains(strings.ToLower(msg.PlainText()), query) {
				results = append(results, conv)
				break
			}
		}
	}
	return results, nil
}

// =============================================================================
// WRITES
// =============================================================================

// Create inserts an empty conversation and returns its id. A blank title
// becomes model.DefaultTitle.
func (r *Repository) Create(ctx context.Context, title string) (int64, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = model.DefaultTitle
	}

	ts := r.tick()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO conversations (title, messages, created_at, updated_at) VALUES (?, '[]', ?, ?)`,
		title, ts, ts)
	if err != nil {
		return 0, persistErr("create", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, persistErr("create", err)
	}

	r.logger.Debug("conversation created", zap.Int64("conversation", id))
	r.publish(EventCreated, id)
	return id, nil
}

// ReplaceMessages overwrites a conversation's message list.
func (r *Repository) ReplaceMessages(ctx context.Context, id int64, msgs []model.Message) error {
	payload, err := model.EncodeMessages(msgs)
	if err != nil {
		return persistErr("replace", err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET messages = ?, updated_at = ? WHERE id = ?`,
		payload, r.tick(), id)
	if err := affectedOne(res, err, id); err != nil {
		return persistErr("replace", err)
	}

	r.publish(EventUpdated, id)
	return nil
}

// AppendMessages appends to a conversation's message list. The read and
// the write happen in one transaction.
func (r *Repository) AppendMessages(ctx context.Context, id int64, msgs ...model.Message) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var payload sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT messages FROM conversations WHERE id = ?`, id).Scan(&payload)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(id)
		}
		if err != nil {
			return err
		}

		existing, decodeErr := model.CoerceMessages(payload.String)
		if decodeErr != nil {
			r.logger.Warn("conversation messages unreadable",
				zap.Int64("conversation", id),
				zap.Error(decodeErr))
		}

		encoded, err := model.EncodeMessages(append(existing, msgs...))
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE conversations SET messages = ?, updated_at = ? WHERE id = ?`,
			encoded, r.tick(), id)
		return err
	})
	if err != nil {
		return persistErr("append", err)
	}

	r.publish(EventUpdated, id)
	return nil
}

// Rename sets a conversation's title. The title is trimmed; a blank title
// returns ErrEmptyTitle and leaves the record unchanged.
func (r *Repository) Rename(ctx context.Context, id int64, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		title, r.tick(), id)
	if err := affectedOne(res, err, id); err != nil {
		return persistErr("rename", err)
	}

	r.publish(EventRenamed, id)
	return nil
}

// Delete removes a conversation.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err := affectedOne(res, err, id); err != nil {
		return persistErr("delete", err)
	}

	r.logger.Debug("conversation deleted", zap.Int64("conversation", id))
	r.publish(EventDeleted, id)
	return nil
}

func affectedOne(res sql.Result, err error, id int64) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

// withTx runs fn in a transaction, rolling back on any error.
func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return tx.Commit()
}
