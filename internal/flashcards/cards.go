// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package flashcards

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// TYPES
// =============================================================================

// Kind is the card layout.
type Kind string

const (
	// KindCloze hides [[marked]] words inside one line of text.
	KindCloze Kind = "cloze"

	// KindBasic shows a front and asks for the back.
	KindBasic Kind = "back-front"
)

// Card is one study card.
type Card struct {
	ID   int
	Kind Kind

	// Text is the cloze line, with deletions marked as [[word]].
	Text string

	Front string
	Back  string
}

// ErrNoCards is returned when a cards file holds no <Card> elements.
var ErrNoCards = errors.New("no cards found")

var (
	blankLine = regexp.MustCompile(`\n\s*\n`)
	firstWord = regexp.MustCompile(`^\w+`)
	cardElem  = regexp.MustCompile(`(?s)<Card([^>]*)>(.*?)</Card>`)
	typeAttr  = regexp.MustCompile(`type="([^"]+)"`)
	idAttr    = regexp.MustCompile(`id="(\d+)"`)
	frontElem = regexp.MustCompile(`(?s)<Front>(.*?)</Front>`)
	backElem  = regexp.MustCompile(`(?s)<Back>(.*?)</Back>`)
	deletion  = regexp.MustCompile(`\[\[(.*?)\]\]`)
)

// =============================================================================
// NOTE -> CARDS
// =============================================================================

// Split cuts a note into cards at blank lines. IDs start at 1.
func Split(note string) []Card {
	note = strings.ReplaceAll(note, "\r\n", "\n")

	var cards []Card
	for _, block := range blankLine.Split(note, -1) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		card := Card{ID: len(cards) + 1}

		lines := strings.Split(block, "\n")
		if len(lines) == 1 {
			card.Kind = KindCloze
			card.Text = block
			if w := firstWord.FindString(block); w != "" {
				card.Text = "[[" + w + "]]" + block[len(w):]
			}
		} else {
			card.Kind = KindBasic
			card.Front = strings.TrimSpace(lines[0])
			card.Back = strings.TrimSpace(strings.Join(lines[1:], "\n"))
		}
		cards = append(cards, card)
	}
	return cards
}

// Format renders cards in the cards file layout.
func Format(cards []Card) string {
	var sb strings.Builder
	for _, c := range cards {
		fmt.Fprintf(&sb, "<Card id=\"%d\" type=\"%s\">\n", c.ID, c.Kind)
		if c.Kind == KindCloze {
			sb.WriteString(c.Text)
		} else {
			fmt.Fprintf(&sb, "<Front>%s</Front>\n<Back>%s</Back>", c.Front, c.Back)
		}
		sb.WriteString("\n</Card>\n\n")
	}
	return sb.String()
}

// Parse reads the cards back out of a cards file. Cards of an unknown type,
// and basic cards missing a side, are skipped.
func Parse(content string) ([]Card, error) {
	matches := cardElem.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil, ErrNoCards
	}

	var cards []Card
	for i, m := range matches {
		attrs, body := m[1], m[2]
		card := Card{ID: i + 1}
		if id := idAttr.FindStringSubmatch(attrs); id != nil {
			card.ID, _ = strconv.Atoi(id[1])
		}

		kind := typeAttr.FindStringSubmatch(attrs)
		if kind == nil {
			continue
		}
		switch Kind(kind[1]) {
		case KindCloze:
			card.Kind = KindCloze
			card.Text = strings.TrimSpace(body)
		case KindBasic:
			front := frontElem.FindStringSubmatch(body)
			back := backElem.FindStringSubmatch(body)
			if front == nil || back == nil {
				continue
			}
			card.Kind = KindBasic
			card.Front = strings.TrimSpace(front[1])
			card.Back = strings.TrimSpace(back[1])
		default:
			continue
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// =============================================================================
// ANKI EXPORT
// =============================================================================

// ankiHeader tells Anki's importer the separator, that fields hold HTML,
// and that the third column names the note type.
const ankiHeader = "#separator:;\n#html:true\n#notetype column:3\n\n"

// Anki renders cards as an Anki import file and returns how many rows it
// wrote. Cloze cards without a [[deletion]] are skipped. Fields holding a
// separator or quote are quoted.
func Anki(cards []Card) ([]byte, int, error) {
	var buf bytes.Buffer
	buf.WriteString(ankiHeader)

	w := csv.NewWriter(&buf)
	w.Comma = ';'

	rows := 0
	for _, c := range cards {
		var record []string
		switch c.Kind {
		case KindCloze:
			if !strings.Contains(c.Text, "[[") {
				continue
			}
			record = []string{deletion.ReplaceAllString(c.Text, "{{c1::$1}}"), "", "Cloze"}
		case KindBasic:
			record = []string{htmlLines(c.Front), htmlLines(c.Back), "Basic"}
		default:
			continue
		}
		if err := w.Write(record); err != nil {
			return nil, 0, err
		}
		rows++
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), rows, nil
}

func htmlLines(s string) string {
	return strings.ReplaceAll(s, "\n", "<br>")
}
