// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package compose

import (
	"context"
	"encoding/base64"
	"errors"
	"path"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jeranaias/vaultchat/internal/model"
	"github.com/jeranaias/vaultchat/internal/vault"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// memSource is an in-memory AttachmentSource.
type memSource struct {
	mu      sync.Mutex
	files   map[string][]byte
	readErr map[string]error
	reads   int
}

func newMemSource(files map[string]string) *memSource {
	m := &memSource{files: map[string][]byte{}, readErr: map[string]error{}}
	for p, content := range files {
		m.files[p] = []byte(content)
	}
	return m
}

func (m *memSource) Exists(_ context.Context, p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[p]
	return ok
}

func (m *memSource) read(p string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if err := m.readErr[p]; err != nil {
		return nil, err
	}
	data, ok := m.files[p]
	if !ok {
		return nil, vault.ErrFileNotFound
	}
	return data, nil
}

func (m *memSource) ReadText(_ context.Context, p string) (string, error) {
	data, err := m.read(p)
	return string(data), err
}

func (m *memSource) ReadBinary(_ context.Context, p string) ([]byte, error) {
	return m.read(p)
}

func (m *memSource) Classify(p string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
}

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

// =============================================================================
// MEDIA TYPE TESTS
// =============================================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		ext      string
		wantType string
		wantKind model.Kind
	}{
		{"md", "text/markdown", model.KindText},
		{"png", "image/png", model.KindImage},
		{"jpg", "image/jpeg", model.KindImage},
		{"JPEG", "image/jpeg", model.KindImage},
		{"gif", "image/gif", model.KindImage},
		{"webp", "image/webp", model.KindImage},
		{".pdf", "application/pdf", model.KindDocument},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			mt, err := Classify(tt.ext)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, mt.Type)
			assert.Equal(t, tt.wantKind, mt.Kind)
		})
	}

	for _, ext := range []string{"txt", "csv", "", "mdx"} {
		_, err := Classify(ext)
		assert.ErrorIs(t, err, ErrUnsupportedExtension, ext)
	}
}

// =============================================================================
// BUILDER TESTS
// =============================================================================

func TestBuilder_Build(t *testing.T) {
	src := newMemSource(map[string]string{
		"notes/a.md":    "# Title\nbody",
		"img.png":       string(pngBytes),
		"photo.JPG":     "jpegdata",
		"paper.pdf":     "%PDF-1.4",
		"data/rows.csv": "a,b\n1,2",
	})
	b := NewBuilder(src, nil)
	ctx := context.Background()

	block, err := b.Build(ctx, "notes/a.md")
	require.NoError(t, err)
	assert.Equal(t, model.NewText("# Title\nbody"), block)

	block, err = b.Build(ctx, "img.png")
	require.NoError(t, err)
	assert.Equal(t, model.NewImage("image/png", base64.StdEncoding.EncodeToString(pngBytes)), block)

	block, err = b.Build(ctx, "photo.JPG")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", block.(model.Image).Source.MediaType)

	block, err = b.Build(ctx, "paper.pdf")
	require.NoError(t, err)
	assert.Equal(t, model.NewDocument(base64.StdEncoding.EncodeToString([]byte("%PDF-1.4"))), block)

	block, err = b.Build(ctx, "data/rows.csv")
	require.NoError(t, err)
	assert.Equal(t, model.NewFileEmbed("a,b\n1,2", "rows.csv", "data/rows.csv"), block)
}

func TestBuilder_Deterministic(t *testing.T) {
	src := newMemSource(map[string]string{"a.webp": "RIFFxxxxWEBP", "b.webp": "RIFFxxxxWEBP"})
	b := NewBuilder(src, nil)

	first, err := b.Build(context.Background(), "a.webp")
	require.NoError(t, err)
	second, err := b.Build(context.Background(), "b.webp")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuilder_Failures(t *testing.T) {
	src := newMemSource(map[string]string{"locked.md": "x"})
	src.readErr["locked.md"] = errors.New("permission denied")
	b := NewBuilder(src, nil)

	_, err := b.Build(context.Background(), "missing.md")
	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "missing.md", re.Path)
	assert.ErrorIs(t, err, vault.ErrFileNotFound)

	_, err = b.Build(context.Background(), "locked.md")
	require.ErrorAs(t, err, &re)
	assert.Contains(t, err.Error(), "permission denied")
}

// =============================================================================
// COMPOSER TESTS
// =============================================================================

func TestCompose_MixedInput(t *testing.T) {
	src := newMemSource(map[string]string{
		"notes/a.md": "hi",
		"img.png":    string(pngBytes),
	})
	c := NewComposer(NewBuilder(src, nil))

	result, err := c.Compose(context.Background(), "See [[notes/a.md]] and [[img.png]]")
	require.NoError(t, err)
	assert.False(t, result.HasFailures())

	want := []model.Block{
		model.NewText("See"),
		model.NewText("hi"),
		model.NewText("and"),
		model.NewImage("image/png", base64.StdEncoding.EncodeToString(pngBytes)),
	}
	assert.Equal(t, model.RoleUser, result.Message.Role)
	assert.Equal(t, want, result.Message.Content)
}

func TestCompose_EdgeCases(t *testing.T) {
	src := newMemSource(map[string]string{"a.md": "A", "b.md": "B", "c.txt": "C"})
	c := NewComposer(NewBuilder(src, nil))

	tests := []struct {
		name      string
		input     string
		want      []model.Block
		wantFails int
	}{
		{"empty input", "", []model.Block{model.NewText("")}, 0},
		{"whitespace only", "   \n\t", []model.Block{model.NewText("")}, 0},
		{"plain text trimmed", "  hello  ", []model.Block{model.NewText("hello")}, 0},
		{"adjacent references not coalesced", "[[a.md]][[b.md]]", []model.Block{model.NewText("A"), model.NewText("B")}, 0},
		{"unclosed reference is text", "look at [[a.md", []model.Block{model.NewText("look at [[a.md")}, 0},
		{"spaced path trimmed", "[[ a.md ]]", []model.Block{model.NewText("A")}, 0},
		{"missing reference omitted", "x [[nope.md]] y", []model.Block{model.NewText("x"), model.NewText("y")}, 1},
		{"only failing reference", "[[nope.md]]", []model.Block{model.NewText("")}, 1},
		{"unsupported extension embedded", "[[c.txt]]", []model.Block{model.NewFileEmbed("C", "c.txt", "c.txt")}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := c.Compose(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Message.Content)
			assert.Len(t, result.Failures, tt.wantFails)
		})
	}
}

func TestCompose_OrderPreservedUnderConcurrency(t *testing.T) {
	files := map[string]string{}
	var input strings.Builder
	var want []model.Block
	for i := 0; i < 20; i++ {
		name := string(rune('a'+i)) + ".md"
		files[name] = strings.Repeat(name, i+1)
		input.WriteString("[[" + name + "]] ")
		want = append(want, model.NewText(files[name]))
	}

	c := NewComposer(NewBuilder(newMemSource(files), nil), WithConcurrency(8))
	result, err := c.Compose(context.Background(), input.String())
	require.NoError(t, err)
	assert.Equal(t, want, result.Message.Content)
}

func TestCompose_LogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	c := NewComposer(NewBuilder(newMemSource(nil), nil), WithLogger(zap.New(core)))

	result, err := c.Compose(context.Background(), "[[gone.png]] and [[gone.pdf]]")
	require.NoError(t, err)
	require.Len(t, result.Failures, 2)
	assert.Equal(t, "gone.png", result.Failures[0].Path)
	assert.Equal(t, "gone.pdf", result.Failures[1].Path)
	assert.Equal(t, 2, logs.FilterMessage("reference not resolved").Len())
}

func TestCompose_Cancelled(t *testing.T) {
	src := newMemSource(map[string]string{"a.md": "A"})
	c := NewComposer(NewBuilder(src, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := c.Compose(ctx, "x [[a.md]]")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
}
