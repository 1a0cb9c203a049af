// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package index

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// =============================================================================
// FSNOTIFY WATCHER
// =============================================================================

// Watcher applies file system events to an Index after a debounce period.
type Watcher struct {
	idx      *Index
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]time.Time // absolute path -> last event time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	// onFlush, when set, is called after each batch is applied.
	onFlush func(paths []string)
}

// NewWatcher creates a watcher for idx. Call Start to begin watching.
func NewWatcher(idx *Index, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		idx:      idx,
		watcher:  fw,
		debounce: debounce,
		logger:   idx.logger,
		pending:  make(map[string]time.Time),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start watches the vault root and all non-ignored subdirectories.
func (w *Watcher) Start() error {
	if err := w.addRecursive(w.idx.vault.Root()); err != nil {
		return err
	}

	w.wg.Add(2)
	go w.processEvents()
	go w.processPending()
	return nil
}

// Close stops watching and waits for the worker goroutines to exit.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		w.cancel()
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

// addRecursive adds a directory and all its subdirectories to the watch list.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if p != w.idx.vault.Root() {
			if rel, err := w.idx.vault.Rel(p); err != nil || w.idx.vault.Ignored(rel) {
				return filepath.SkipDir
			}
		}
		if err := w.watcher.Add(p); err != nil {
			w.logger.Warn("cannot watch directory", zap.String("dir", p), zap.Error(err))
		}
		return nil
	})
}

// processEvents queues paths touched by file system events.
func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod {
				continue
			}

			w.mu.Lock()
			w.pending[event.Name] = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

// processPending applies queued paths once they have been quiet for the
// debounce period.
func (w *Watcher) processPending() {
	defer w.wg.Done()

	tick := w.debounce / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()

			w.mu.Lock()
			var ready []string
			for p, changed := range w.pending {
				if now.Sub(changed) >= w.debounce {
					ready = append(ready, p)
					delete(w.pending, p)
				}
			}
			w.mu.Unlock()

			if len(ready) == 0 {
				continue
			}
			for _, p := range ready {
				w.apply(p)
			}
			if w.onFlush != nil {
				w.onFlush(ready)
			}
		}
	}
}

// apply brings the index in line with the current state of abs.
func (w *Watcher) apply(abs string) {
	rel, err := w.idx.vault.Rel(abs)
	if err != nil || w.idx.vault.Ignored(rel) {
		return
	}
	w.idx.vault.Invalidate(rel)

	info, err := os.Stat(abs)
	if err != nil {
		// Deleted or renamed away
		if err := w.idx.Remove(w.ctx, rel); err != nil {
			w.logger.Warn("index remove failed", zap.String("path", rel), zap.Error(err))
		}
		return
	}

	if info.IsDir() {
		if err := w.addRecursive(abs); err != nil {
			w.logger.Warn("cannot watch new directory", zap.String("dir", rel), zap.Error(err))
		}
		w.indexTree(abs)
		return
	}

	if info.Mode().IsRegular() {
		if err := w.idx.Upsert(w.ctx, rel, info); err != nil {
			w.logger.Warn("index update failed", zap.String("path", rel), zap.Error(err))
		}
	}
}

// indexTree indexes every file below a newly appeared directory.
func (w *Watcher) indexTree(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := w.idx.vault.Rel(p)
		if relErr != nil {
			return nil
		}
		if w.idx.vault.Ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if err := w.idx.Upsert(w.ctx, rel, info); err != nil {
			w.logger.Warn("index update failed", zap.String("path", rel), zap.Error(err))
		}
		return nil
	})
}
