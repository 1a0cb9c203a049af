// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jeranaias/vaultchat/internal/vault"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestVault(t *testing.T, files ...string) *vault.FS {
	t.Helper()
	root := t.TempDir()
	for _, rel := range files {
		writeFile(t, filepath.Join(root, filepath.FromSlash(rel)))
	}
	v, err := vault.New(root, vault.Options{})
	require.NoError(t, err)
	return v
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func openTestIndex(t *testing.T, v *vault.FS, cfg Config) *Index {
	t.Helper()
	idx, err := Open(context.Background(), v, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

// =============================================================================
// SEARCH TESTS
// =============================================================================

func TestSearch_Ranking(t *testing.T) {
	v := newTestVault(t,
		"archive/2023/meeting-notes.md",
		"meetings.md",
		"projects/meeting.md",
		"team/premeeting.md",
		"daily/notes.md",
	)
	idx := openTestIndex(t, v, Config{})

	got, err := idx.Search(context.Background(), "meet")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"meetings.md",                   // name prefix, shortest
		"projects/meeting.md",           // name prefix
		"archive/2023/meeting-notes.md", // name prefix, longest
		"team/premeeting.md",            // substring only
	}, got)
}

func TestSearch_LexicalTieBreak(t *testing.T) {
	v := newTestVault(t, "b/x.md", "a/x.md", "c/x.md")
	idx := openTestIndex(t, v, Config{})

	got, err := idx.Search(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/x.md", "b/x.md", "c/x.md"}, got)
}

func TestSearch_CaseAndUnicode(t *testing.T) {
	v := newTestVault(t, "Notes/Café.md", "README.md")
	idx := openTestIndex(t, v, Config{})
	ctx := context.Background()

	got, err := idx.Search(ctx, "readme")
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md"}, got)

	// Decomposed é (e + combining acute) matches the composed form
	got, err = idx.Search(ctx, "CAFÉ")
	require.NoError(t, err)
	assert.Equal(t, []string{"Notes/Café.md"}, got)

	got, err = idx.Search(ctx, "notes/")
	require.NoError(t, err)
	assert.Equal(t, []string{"Notes/Café.md"}, got)
}

func TestSearch_EmptyPartialAndLimit(t *testing.T) {
	v := newTestVault(t, "a.md", "bb.md", "ccc.md")
	idx := openTestIndex(t, v, Config{MaxResults: 2})

	got, err := idx.Search(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "bb.md"}, got)
}

func TestSearch_NoMatch(t *testing.T) {
	v := newTestVault(t, "a.md")
	idx := openTestIndex(t, v, Config{})

	got, err := idx.Search(context.Background(), "zzz")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearch_IgnoredPathsExcluded(t *testing.T) {
	v := newTestVault(t, "a.md", ".obsidian/app.json", ".git/config")
	idx := openTestIndex(t, v, Config{})

	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSearch_AfterClose(t *testing.T) {
	v := newTestVault(t, "a.md")
	idx, err := Open(context.Background(), v, Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close(), "close is idempotent")

	_, err = idx.Search(context.Background(), "a")
	assert.ErrorIs(t, err, ErrClosed)
}

// =============================================================================
// INDEXING TESTS
// =============================================================================

func TestBuild_RemovesStalePaths(t *testing.T) {
	v := newTestVault(t, "keep.md", "gone.md")
	idx := openTestIndex(t, v, Config{DatabasePath: filepath.Join(t.TempDir(), "index.db")})
	ctx := context.Background()

	require.NoError(t, os.Remove(filepath.Join(v.Root(), "gone.md")))
	writeFile(t, filepath.Join(v.Root(), "new.md"))

	stats, err := idx.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 1, stats.Removed)

	got, err := idx.Search(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"keep.md", "new.md"}, got)
}

func TestRemove_Directory(t *testing.T) {
	v := newTestVault(t, "dir/a.md", "dir/sub/b.md", "dirty.md")
	idx := openTestIndex(t, v, Config{})
	ctx := context.Background()

	require.NoError(t, idx.Remove(ctx, "dir"))
	got, err := idx.Search(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"dirty.md"}, got)
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("café"), Key("CAFÉ"))
	assert.Equal(t, Key("Cafe\u0301"), Key("café"))
	assert.NotEqual(t, Key("a"), Key("b"))
}

// =============================================================================
// WATCHER TESTS
// =============================================================================

func TestWatcher_TracksChanges(t *testing.T) {
	v := newTestVault(t, "existing.md")
	idx := openTestIndex(t, v, Config{EnableWatch: true, WatchDebounce: 20 * time.Millisecond})
	ctx := context.Background()

	has := func(p string) func() bool {
		return func() bool {
			got, err := idx.Search(ctx, p)
			return err == nil && len(got) == 1 && got[0] == p
		}
	}

	writeFile(t, filepath.Join(v.Root(), "fresh.md"))
	require.Eventually(t, has("fresh.md"), 5*time.Second, 20*time.Millisecond)

	// Files inside a new directory are picked up too
	writeFile(t, filepath.Join(v.Root(), "newdir", "inner.md"))
	require.Eventually(t, has("newdir/inner.md"), 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(v.Root(), "existing.md")))
	require.Eventually(t, func() bool {
		got, err := idx.Search(ctx, "existing")
		return err == nil && len(got) == 0
	}, 5*time.Second, 20*time.Millisecond)

	// Ignored directories stay out of the index
	writeFile(t, filepath.Join(v.Root(), ".obsidian", "workspace.json"))
	time.Sleep(100 * time.Millisecond)
	got, err := idx.Search(ctx, "workspace")
	require.NoError(t, err)
	assert.Empty(t, got)
}
