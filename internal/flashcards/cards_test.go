// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package flashcards

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// SPLIT TESTS
// =============================================================================

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		note string
		want []Card
	}{
		{
			name: "cloze line",
			note: "Mitochondria make ATP",
			want: []Card{{ID: 1, Kind: KindCloze, Text: "[[Mitochondria]] make ATP"}},
		},
		{
			name: "cloze without a leading word",
			note: "- a list item",
			want: []Card{{ID: 1, Kind: KindCloze, Text: "- a list item"}},
		},
		{
			name: "front and back",
			note: "What is a vault?\n  A folder\nof notes  ",
			want: []Card{{ID: 1, Kind: KindBasic, Front: "What is a vault?", Back: "A folder\nof notes"}},
		},
		{
			name: "blocks split on blank lines",
			note: "\n\nOne line\n \t\nQ?\nA.\r\n\r\nLast one\n\n",
			want: []Card{
				{ID: 1, Kind: KindCloze, Text: "[[One]] line"},
				{ID: 2, Kind: KindBasic, Front: "Q?", Back: "A."},
				{ID: 3, Kind: KindCloze, Text: "[[Last]] one"},
			},
		},
		{
			name: "no cards",
			note: " \n\n\t\n",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Split(tt.note)); diff != "" {
				t.Errorf("Split() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatParse_RoundTrip(t *testing.T) {
	cards := Split("Cells divide\n\nWhat is DNA?\nThe genome\ncarrier")
	content := Format(cards)

	assert.Equal(t, `<Card id="1" type="cloze">
[[Cells]] divide
</Card>

<Card id="2" type="back-front">
<Front>What is DNA?</Front>
<Back>The genome
carrier</Back>
</Card>

`, content)

	parsed, err := Parse(content)
	require.NoError(t, err)
	if diff := cmp.Diff(cards, parsed); diff != "" {
		t.Errorf("Parse(Format()) mismatch (-want +got):\n%s", diff)
	}
}

func TestParse(t *testing.T) {
	_, err := Parse("# just a note")
	assert.ErrorIs(t, err, ErrNoCards)

	cards, err := Parse(`<Card id="7" type="cloze">x [[y]]</Card>
<Card type="mystery">skipped</Card>
<Card id="9" type="back-front"><Front>only front</Front></Card>
<Card type="back-front"><Front>f</Front><Back>b</Back></Card>`)
	require.NoError(t, err)
	want := []Card{
		{ID: 7, Kind: KindCloze, Text: "x [[y]]"},
		{ID: 4, Kind: KindBasic, Front: "f", Back: "b"},
	}
	if diff := cmp.Diff(want, cards); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

// =============================================================================
// ANKI TESTS
// =============================================================================

func TestAnki(t *testing.T) {
	cards := []Card{
		{ID: 1, Kind: KindCloze, Text: "[[Cells]] divide by [[mitosis]]"},
		{ID: 2, Kind: KindCloze, Text: "- no deletion"},
		{ID: 3, Kind: KindBasic, Front: "Q?", Back: "line one\nline two"},
		{ID: 4, Kind: KindBasic, Front: "a;b", Back: `say "hi"`},
	}

	data, rows, err := Anki(cards)
	require.NoError(t, err)
	assert.Equal(t, 3, rows)

	want := strings.Join([]string{
		"#separator:;",
		"#html:true",
		"#notetype column:3",
		"",
		"{{c1::Cells}} divide by {{c1::mitosis}};;Cloze",
		"Q?;line one<br>line two;Basic",
		`"a;b";"say ""hi""";Basic`,
		"",
	}, "\n")
	assert.Equal(t, want, string(data))
}

func TestAnki_Empty(t *testing.T) {
	data, rows, err := Anki(nil)
	require.NoError(t, err)
	assert.Zero(t, rows)
	assert.Equal(t, ankiHeader, string(data))
}
