// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/vaultchat/internal/vault"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrClosed        = errors.New("index closed")
	ErrDatabaseError = errors.New("database error")
)

// =============================================================================
// CONFIG
// =============================================================================

// Config holds index configuration.
type Config struct {
	// DatabasePath is where to store the SQLite database.
	// Empty keeps the index in memory.
	DatabasePath string

	// MaxResults bounds Search results.
	MaxResults int

	// EnableWatch keeps the index current through file system events.
	EnableWatch bool

	// WatchDebounce is the quiet period before a changed path is reindexed.
	WatchDebounce time.Duration
}

// DefaultConfig returns the default configuration: in-memory, watching.
func DefaultConfig() Config {
	return Config{
		MaxResults:    50,
		EnableWatch:   true,
		WatchDebounce: 200 * time.Millisecond,
	}
}

func (c *Config) fillDefaults() {
	def := DefaultConfig()
	if c.MaxResults <= 0 {
		c.MaxResults = def.MaxResults
	}
	if c.WatchDebounce <= 0 {
		c.WatchDebounce = def.WatchDebounce
	}
}

// =============================================================================
// INDEX
// =============================================================================

// Stats describes the index after a rebuild.
type Stats struct {
	Files    int
	Removed  int
	Duration time.Duration
}

// Index is a SQLite table of vault paths.
type Index struct {
	db     *sql.DB
	vault  *vault.FS
	cfg    Config
	logger *zap.Logger

	mu      sync.RWMutex
	closed  bool
	watcher *Watcher

	buildMu sync.Mutex
}

// Open creates the index, runs a full build, and starts watching when
// cfg.EnableWatch is set.
func Open(ctx context.Context, v *vault.FS, cfg Config, logger *zap.Logger) (*Index, error) {
	idx, err := New(v, cfg, logger)
	if err != nil {
		return nil, err
	}
	if _, err := idx.Build(ctx); err != nil {
		idx.Close()
		return nil, err
	}
	if idx.cfg.EnableWatch {
		if err := idx.Watch(); err != nil {
			idx.Close()
			return nil, err
		}
	}
	return idx, nil
}

// New creates an empty index over v without building it.
func New(v *vault.FS, cfg Config, logger *zap.Logger) (*Index, error) {
	if v == nil {
		return nil, errors.New("vault cannot be nil")
	}
	cfg.fillDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := cfg.DatabasePath
	if dsn == "" {
		dsn = ":memory:"
	} else if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	// One connection: SQLite has a single writer, and :memory: is per connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	idx := &Index{db: db, vault: v, cfg: cfg, logger: logger}
	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return idx, nil
}

func (idx *Index) initSchema() error {
	if _, err := idx.db.Exec(Schema); err != nil {
		return err
	}
	if _, err := idx.db.Exec(InitMetadata); err != nil {
		return err
	}
	_, err := idx.db.Exec("UPDATE metadata SET value = ? WHERE key = 'root_path'", idx.vault.Root())
	return err
}

// Close stops the watcher and closes the database.
func (idx *Index) Close() error {
	idx.mu.Lock()
	if idx.closed {
		idx.mu.Unlock()
		return nil
	}
	idx.closed = true
	w := idx.watcher
	idx.watcher = nil
	idx.mu.Unlock()

	if w != nil {
		w.Close()
	}
	return idx.db.Close()
}

// Watch starts an fsnotify watcher feeding this index.
func (idx *Index) Watch() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}
	if idx.watcher != nil {
		return nil
	}

	w, err := NewWatcher(idx, idx.cfg.WatchDebounce)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		w.Close()
		return err
	}
	idx.watcher = w
	return nil
}

// =============================================================================
// KEYS
// =============================================================================

// Key normalizes text for matching: NFC composition then Unicode case
// folding, so "Café", "CAFÉ" and "café" share one key.
func Key(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// =============================================================================
// INDEXING
// =============================================================================

// Build rescans the whole vault. Paths no longer present are removed.
func (idx *Index) Build(ctx context.Context) (Stats, error) {
	idx.buildMu.Lock()
	defer idx.buildMu.Unlock()

	start := time.Now()
	var stats Stats

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback()

	var genText string
	if err := tx.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'generation'").Scan(&genText); err != nil {
		return stats, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	gen, _ := strconv.ParseInt(genText, 10, 64)
	gen++

	err = idx.vault.Walk(ctx, func(rel string, info fs.FileInfo) error {
		stats.Files++
		return upsert(ctx, tx, rel, info, gen)
	})
	if err != nil {
		return stats, err
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM paths WHERE generation <> ?", gen)
	if err != nil {
		return stats, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	removed, _ := res.RowsAffected()
	stats.Removed = int(removed)

	if _, err := tx.ExecContext(ctx, "UPDATE metadata SET value = ? WHERE key = 'generation'", strconv.FormatInt(gen, 10)); err != nil {
		return stats, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	stats.Duration = time.Since(start)
	idx.logger.Info("vault indexed",
		zap.Int("files", stats.Files),
		zap.Int("removed", stats.Removed),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsert(ctx context.Context, db execer, rel string, info fs.FileInfo, gen int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO paths (path, path_key, name_key, mod_time, size, generation)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			mod_time = excluded.mod_time,
			size = excluded.size,
			generation = excluded.generation
	`, rel, Key(rel), Key(path.Base(rel)), info.ModTime().UnixNano(), info.Size(), gen)
	if err != nil {
		return fmt.Errorf("%w: index %s: %v", ErrDatabaseError, rel, err)
	}
	return nil
}

// Upsert records or refreshes one vault file.
func (idx *Index) Upsert(ctx context.Context, rel string, info fs.FileInfo) error {
	if idx.vault.Ignored(rel) {
		return nil
	}
	var genText string
	if err := idx.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'generation'").Scan(&genText); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	gen, _ := strconv.ParseInt(genText, 10, 64)
	return upsert(ctx, idx.db, rel, info, gen)
}

// Remove drops rel and, if it was a directory, everything below it.
func (idx *Index) Remove(ctx context.Context, rel string) error {
	_, err := idx.db.ExecContext(ctx,
		"DELETE FROM paths WHERE path = ? OR substr(path, 1, length(?) + 1) = ? || '/'",
		rel, rel, rel)
	if err != nil {
		return fmt.Errorf("%w: remove %s: %v", ErrDatabaseError, rel, err)
	}
	return nil
}

// Count returns the number of indexed files.
func (idx *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := idx.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM paths").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return n, nil
}

// =============================================================================
// SEARCH
// =============================================================================

// Search returns vault paths matching partial, best first, at most
// Config.MaxResults of them. An empty partial matches every path.
func (idx *Index) Search(ctx context.Context, partial string) ([]string, error) {
	idx.mu.RLock()
	closed := idx.closed
	idx.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	key := Key(partial)
	rows, err := idx.db.QueryContext(ctx, `
		SELECT path FROM paths
		WHERE instr(path_key, ?1) > 0
		ORDER BY
			CASE WHEN substr(name_key, 1, length(?1)) = ?1 THEN 0 ELSE 1 END,
			length(path),
			path
		LIMIT ?2
	`, key, idx.cfg.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		results = append(results, p)
	}
	return results, rows.Err()
}
