// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"errors"
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPackageDoc_OnlyInDocGo keeps the package comment in doc.go alone so
// godoc shows it once.
func TestPackageDoc_OnlyInDocGo(t *testing.T) {
	files, err := filepath.Glob("*.go")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range files {
		if strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(token.NewFileSet(), name, nil, parser.PackageClauseOnly|parser.ParseComments)
		if err != nil {
			t.Fatal(err)
		}
		if hasDoc := f.Doc != nil; hasDoc != (name == "doc.go") {
			t.Errorf("%s: package comment present = %v", name, hasDoc)
		}
	}
}

// =============================================================================
// STRICT ENCODING TESTS
// =============================================================================

func TestEncodeMessages_KeepsMarkupReadable(t *testing.T) {
	msgs := ForWire([]Message{
		NewMessage(RoleUser, NewText("a < b && c > d"), NewFileEmbed("x=1", "a.ini", "cfg/a.ini")),
	})

	encoded, err := EncodeMessages(msgs)
	require.NoError(t, err)
	assert.Contains(t, encoded, "a < b && c > d")
	assert.Contains(t, encoded, `<file name=\"a.ini\" path=\"cfg/a.ini\">`)
	assert.NotContains(t, encoded, `\u003c`)
	assert.False(t, strings.HasSuffix(encoded, "\n"))

	block, err := MarshalBlock(NewText("<b>"))
	require.NoError(t, err)
	assert.Equal(t, `{"type":"text","text":"<b>"}`, string(block))
}

func TestMessage_JSONShape(t *testing.T) {
	msg := NewMessage(RoleUser,
		NewText("See"),
		NewImage("image/png", "AAAA"),
		NewDocument("JVBE"),
		NewFileEmbed("a,b", "a.csv", "data/a.csv"),
	)

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	want := `{"role":"user","content":[` +
		`{"type":"text","text":"See"},` +
		`{"type":"image","source":{"type":"base64","media_type":"image/png","data":"AAAA"}},` +
		`{"type":"document","source":{"type":"base64","media_type":"application/pdf","data":"JVBE"}},` +
		`{"type":"file_embed","raw_content":"a,b","display_name":"a.csv","path":"data/a.csv"}]}`
	assert.Equal(t, want, string(data))

	var back Message
	require.NoError(t, json.Unmarshal(data, &back))
	if diff := cmp.Diff(msg, back); diff != "" {
		t.Errorf("strict decode mismatch (-want +got):\n%s", diff)
	}
}

func TestMessage_EmptyTextKept(t *testing.T) {
	data, err := json.Marshal(NewMessage(RoleUser))
	require.NoError(t, err)
	assert.Equal(t, `{"role":"user","content":[{"type":"text","text":""}]}`, string(data))
}

func TestMessage_StrictRejectsUnknown(t *testing.T) {
	tests := []string{
		`{"role":"system","content":[]}`,
		`{"role":"user","content":[{"type":"video"}]}`,
		`{"role":"user","content":[{"type":"image"}]}`,
	}
	for _, in := range tests {
		var m Message
		assert.Error(t, json.Unmarshal([]byte(in), &m), in)
	}
}

func TestForWire_RendersFileEmbed(t *testing.T) {
	msgs := []Message{NewMessage(RoleUser, NewText("look"), NewFileEmbed("x=1", "a.ini", "cfg/a.ini"))}
	out := ForWire(msgs)

	require.Len(t, out[0].Content, 2)
	assert.Equal(t, NewText("look"), out[0].Content[0])
	assert.Equal(t, NewText("<file name=\"a.ini\" path=\"cfg/a.ini\">\nx=1\n</file>"), out[0].Content[1])

	// Input untouched
	assert.Equal(t, KindFileEmbed, msgs[0].Content[1].Kind())
}

// =============================================================================
// TOLERANT DECODER TESTS
// =============================================================================

func TestCoerceMessages(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []Message
		wantErr bool
	}{
		{
			name:    "empty",
			payload: "",
			want:    []Message{},
		},
		{
			name:    "null",
			payload: "null",
			want:    []Message{},
		},
		{
			name:    "legacy string content",
			payload: `[{"role":"user","content":"hello"}]`,
			want:    []Message{NewUserMessage("hello")},
		},
		{
			name:    "single object wrapped",
			payload: `{"role":"assistant","content":"hi"}`,
			want:    []Message{NewAssistantMessage("hi")},
		},
		{
			name:    "double encoded",
			payload: `"[{\"role\":\"user\",\"content\":\"x\"}]"`,
			want:    []Message{NewUserMessage("x")},
		},
		{
			name:    "unknown role becomes user",
			payload: `[{"role":"system","content":"rules"},{"content":"no role"}]`,
			want:    []Message{NewUserMessage("rules"), NewUserMessage("no role")},
		},
		{
			name:    "string element",
			payload: `["just text", null]`,
			want:    []Message{NewUserMessage("just text")},
		},
		{
			name:    "null and numeric content",
			payload: `[{"role":"user","content":null},{"role":"user","content":42}]`,
			want:    []Message{NewUserMessage(""), NewUserMessage("42")},
		},
		{
			name:    "unknown block preserved as json text",
			payload: `[{"role":"user","content":[{"type":"video", "url": "x"}, "plain"]}]`,
			want: []Message{NewMessage(RoleUser,
				NewText(`{"type":"video","url":"x"}`),
				NewText("plain"),
			)},
		},
		{
			name:    "image defaults",
			payload: `[{"role":"user","content":[{"type":"image","source":{"data":"QQ=="}},{"type":"document","source":{}}]}]`,
			want: []Message{NewMessage(RoleUser,
				NewImage(DefaultImageMediaType, "QQ=="),
				NewDocument(""),
			)},
		},
		{
			name:    "image without source is text",
			payload: `[{"role":"user","content":[{"type":"image","source":"nope"}]}]`,
			want:    []Message{NewMessage(RoleUser, NewText(`{"type":"image","source":"nope"}`))},
		},
		{
			name:    "file embed",
			payload: `[{"role":"user","content":[{"type":"file_embed","raw_content":"r","path":"p.txt"}]}]`,
			want:    []Message{NewMessage(RoleUser, NewFileEmbed("r", "", "p.txt"))},
		},
		{
			name:    "text without text",
			payload: `[{"role":"user","content":[{"type":"text"}]}]`,
			want:    []Message{NewUserMessage("")},
		},
		{
			name:    "not json",
			payload: `{broken`,
			want:    []Message{},
			wantErr: true,
		},
		{
			name:    "scalar",
			payload: `17`,
			want:    []Message{},
			wantErr: true,
		},
		{
			name:    "string that is not json",
			payload: `"hello"`,
			want:    []Message{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CoerceMessages(tt.payload)
			if tt.wantErr {
				var mde *MigrationDecodeError
				require.True(t, errors.As(err, &mde), "want MigrationDecodeError, got %v", err)
			} else {
				require.NoError(t, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("CoerceMessages mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCoerceMessages_CanonicalIsIdempotent(t *testing.T) {
	msgs := []Message{
		NewUserMessage("hello <world> & \"friends\""),
		NewMessage(RoleUser, NewText("a"), NewImage("image/webp", "UklG"), NewDocument("JVBE")),
		NewMessage(RoleAssistant, NewText("ünïcödé 日本")),
		NewMessage(RoleUser, NewFileEmbed("line1\nline2", "f.txt", "dir/f.txt")),
	}

	canonical, err := EncodeMessages(msgs)
	require.NoError(t, err)

	decoded, err := CoerceMessages(canonical)
	require.NoError(t, err)

	again, err := EncodeMessages(decoded)
	require.NoError(t, err)
	assert.Equal(t, canonical, again)

	// A second pass over coerced legacy data is also stable
	legacy := `[{"role":"bot","content":[{"type":"mystery","n":1}]},"x"]`
	first, _ := CoerceMessages(legacy)
	firstEnc, err := EncodeMessages(first)
	require.NoError(t, err)
	second, _ := CoerceMessages(firstEnc)
	secondEnc, err := EncodeMessages(second)
	require.NoError(t, err)
	assert.Equal(t, firstEnc, secondEnc)
}

func TestEncodeMessages_NilIsEmptyList(t *testing.T) {
	got, err := EncodeMessages(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", got)
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestTitleFromMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"plain", NewUserMessage("Summarize notes"), "Summarize notes"},
		{"newlines flattened", NewUserMessage("line one\nline two"), "line one line two"},
		{"no text", NewMessage(RoleUser, NewImage("image/png", "AA")), DefaultTitle},
		{"blank text", NewUserMessage("   "), DefaultTitle},
		{"long", NewUserMessage(strings.Repeat("é", 80)), strings.Repeat("é", 47) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TitleFromMessage(tt.msg))
		})
	}
}

func TestConversation_CloneIsIndependent(t *testing.T) {
	conv := &Conversation{ID: 1, Title: "t", Messages: []Message{NewUserMessage("a")}}
	clone := conv.Clone()
	clone.Messages[0].Content[0] = NewText("changed")
	clone.Messages = append(clone.Messages, NewAssistantMessage("b"))

	assert.Equal(t, NewText("a"), conv.Messages[0].Content[0])
	assert.Len(t, conv.Messages, 1)
}

func TestMessage_PlainText(t *testing.T) {
	msg := NewMessage(RoleUser, NewText("hi"), NewImage("image/gif", "R0lG"), NewText(""))
	assert.Equal(t, "hi\n\n[image image/gif]", msg.PlainText())
	assert.Equal(t, "You", RoleUser.DisplayName())
}
