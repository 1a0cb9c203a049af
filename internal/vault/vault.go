// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrFileNotFound is returned when no file exists at a vault path.
	ErrFileNotFound = errors.New("no file found at path")

	// ErrFileTooLarge is returned when a file exceeds the attachment limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrOutsideVault is returned for paths that escape the vault root.
	ErrOutsideVault = errors.New("path is outside the vault")
)

// DefaultIgnore lists entries skipped when walking a vault.
var DefaultIgnore = []string{".obsidian", ".git", ".trash", ".DS_Store"}

// DefaultMaxFileSize bounds a single attachment read (32MB).
const DefaultMaxFileSize int64 = 32 * 1024 * 1024

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures an FS.
type Options struct {
	// MaxFileSize is the largest file ReadText/ReadBinary will return.
	MaxFileSize int64

	// Ignore holds glob patterns matched against each path element.
	Ignore []string

	// CacheEntries bounds the read cache. Zero uses the cache default;
	// a negative value disables caching.
	CacheEntries int

	Logger *zap.Logger
}

// =============================================================================
// FS
// =============================================================================

// FS is a vault rooted at a directory on the local file system.
type FS struct {
	root    string
	maxSize int64
	ignore  []string
	cache   *Cache
	logger  *zap.Logger
}

// New opens the vault at root, which must be an existing directory.
func New(root string, opts Options) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve vault root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open vault: %s is not a directory", abs)
	}

	v := &FS{
		root:    abs,
		maxSize: opts.MaxFileSize,
		ignore:  opts.Ignore,
		logger:  opts.Logger,
	}
	if v.maxSize <= 0 {
		v.maxSize = DefaultMaxFileSize
	}
	if v.ignore == nil {
		v.ignore = DefaultIgnore
	}
	if v.logger == nil {
		v.logger = zap.NewNop()
	}
	if opts.CacheEntries >= 0 {
		v.cache = NewCache(opts.CacheEntries, 0)
	}
	return v, nil
}

// Root returns the absolute vault directory.
func (v *FS) Root() string {
	return v.root
}

// Resolve maps a vault-relative path to an absolute file system path.
// Leading slashes are ignored; ".." that climbs out of the vault, or a
// symlink that points outside it, yields ErrOutsideVault.
func (v *FS) Resolve(rel string) (string, error) {
	clean := path.Clean(strings.TrimLeft(filepath.ToSlash(rel), "/"))
	if clean == "." || clean == "" {
		return "", fmt.Errorf("%w: empty path", ErrFileNotFound)
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", ErrOutsideVault, rel)
	}

	abs := filepath.Join(v.root, filepath.FromSlash(clean))
	if !within(v.root, abs) {
		return "", fmt.Errorf("%w: %s", ErrOutsideVault, rel)
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil && !within(v.root, resolved) {
		return "", fmt.Errorf("%w: %s", ErrOutsideVault, rel)
	}
	return abs, nil
}

// Rel converts an absolute path inside the vault to its vault-relative form.
func (v *FS) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(v.root, abs)
	if err != nil || !within(v.root, abs) {
		return "", fmt.Errorf("%w: %s", ErrOutsideVault, abs)
	}
	return filepath.ToSlash(rel), nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Exists reports whether rel names a regular file in the vault.
func (v *FS) Exists(_ context.Context, rel string) bool {
	abs, err := v.Resolve(rel)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && info.Mode().IsRegular()
}

// Classify returns the lower-case extension of rel without the dot.
func (v *FS) Classify(rel string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(rel), "."))
}

// ReadText reads a file as text. Invalid UTF-8 sequences are replaced.
func (v *FS) ReadText(ctx context.Context, rel string) (string, error) {
	data, err := v.read(ctx, rel)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), string(utf8.RuneError)), nil
	}
	return string(data), nil
}

// ReadBinary reads a file's raw bytes.
func (v *FS) ReadBinary(ctx context.Context, rel string) ([]byte, error) {
	return v.read(ctx, rel)
}

func (v *FS) read(ctx context.Context, rel string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	abs, err := v.Resolve(rel)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.Mode().IsRegular()) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, rel)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", rel, err)
	}
	if info.Size() > v.maxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrFileTooLarge, rel, info.Size(), v.maxSize)
	}

	if v.cache != nil {
		if data, ok := v.cache.Get(abs, info.ModTime(), info.Size()); ok {
			return data, nil
		}
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, rel)
		}
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}

	if v.cache != nil {
		v.cache.Put(abs, data, info.ModTime())
	}
	v.logger.Debug("vault read", zap.String("path", rel), zap.Int("bytes", len(data)))
	return data, nil
}

// Invalidate drops any cached content for rel.
func (v *FS) Invalidate(rel string) {
	if v.cache == nil {
		return
	}
	if abs, err := v.Resolve(rel); err == nil {
		v.cache.Invalidate(abs)
	}
}

// CacheStats returns read cache statistics.
func (v *FS) CacheStats() CacheStats {
	if v.cache == nil {
		return CacheStats{}
	}
	return v.cache.Stats()
}

// =============================================================================
// WALKING
// =============================================================================

// Ignored reports whether any element of a vault-relative path matches an
// ignore pattern.
func (v *FS) Ignored(rel string) bool {
	for _, elem := range strings.Split(filepath.ToSlash(rel), "/") {
		for _, pattern := range v.ignore {
			if ok, _ := path.Match(pattern, elem); ok {
				return true
			}
		}
	}
	return false
}

// Walk calls fn with the vault-relative path of every regular, non-ignored
// file. Unreadable directories are logged and skipped.
func (v *FS) Walk(ctx context.Context, fn func(rel string, info fs.FileInfo) error) error {
	return filepath.WalkDir(v.root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			v.logger.Warn("vault walk error", zap.String("path", p), zap.Error(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if p == v.root {
			return nil
		}

		rel, err := v.Rel(p)
		if err != nil {
			return nil
		}
		if v.Ignored(rel) {
			if d.IsDir() {
				return fs.SkipDir
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
		return fn(rel, info)
	})
}
