// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package flashcards

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/vaultchat/internal/util"
)

const (
	notesSuffix = ".md"
	cardsSuffix = "-cards.md"
	ankiSuffix  = "-anki.txt"
)

var (
	// ErrExists is returned when the output file is already in the vault
	// and overwriting was not asked for.
	ErrExists = errors.New("output file already exists")

	// ErrWrongSource is returned for a source path of the wrong kind.
	ErrWrongSource = errors.New("wrong source file")
)

// =============================================================================
// INTERFACES
// =============================================================================

// Vault is the vault access the generator needs. Paths are vault-relative.
type Vault interface {
	ReadText(ctx context.Context, path string) (string, error)
	Resolve(path string) (string, error)
	Invalidate(path string)
}

// =============================================================================
// GENERATOR
// =============================================================================

// Result describes one written file.
type Result struct {
	Source string `json:"source"`
	Output string `json:"output"`
	Cards  int    `json:"cards"`
}

// Generator writes cards and Anki files into a vault.
type Generator struct {
	vault  Vault
	logger *zap.Logger
}

// New returns a Generator over v.
func New(v Vault, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{vault: v, logger: logger}
}

// CardsPath returns where the cards for a note go: "a/b.md" -> "a/b-cards.md".
func CardsPath(note string) (string, error) {
	if !strings.HasSuffix(note, notesSuffix) || strings.HasSuffix(note, cardsSuffix) {
		return "", fmt.Errorf("%w: %s is not a markdown note", ErrWrongSource, note)
	}
	return strings.TrimSuffix(note, notesSuffix) + cardsSuffix, nil
}

// AnkiPath returns where the export of a cards file goes:
// "a/b-cards.md" -> "a/b-anki.txt".
func AnkiPath(cards string) (string, error) {
	if !strings.HasSuffix(cards, cardsSuffix) {
		return "", fmt.Errorf("%w: %s is not a cards file", ErrWrongSource, cards)
	}
	return strings.TrimSuffix(cards, cardsSuffix) + ankiSuffix, nil
}

// Create splits the note at notePath into cards and writes them next to it.
func (g *Generator) Create(ctx context.Context, notePath string, overwrite bool) (*Result, error) {
	out, err := CardsPath(notePath)
	if err != nil {
		return nil, err
	}
	note, err := g.vault.ReadText(ctx, notePath)
	if err != nil {
		return nil, err
	}

	cards := Split(note)
	if len(cards) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoCards, notePath)
	}
	if err := g.write(out, []byte(Format(cards)), overwrite); err != nil {
		return nil, err
	}

	g.logger.Info("flashcards created",
		zap.String("note", notePath), zap.String("output", out), zap.Int("cards", len(cards)))
	return &Result{Source: notePath, Output: out, Cards: len(cards)}, nil
}

// ExportAnki converts the cards file at cardsPath into an Anki import file.
func (g *Generator) ExportAnki(ctx context.Context, cardsPath string, overwrite bool) (*Result, error) {
	out, err := AnkiPath(cardsPath)
	if err != nil {
		return nil, err
	}
	content, err := g.vault.ReadText(ctx, cardsPath)
	if err != nil {
		return nil, err
	}

	cards, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%w in %s", err, cardsPath)
	}
	data, rows, err := Anki(cards)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", cardsPath, err)
	}
	if err := g.write(out, data, overwrite); err != nil {
		return nil, err
	}

	g.logger.Info("anki export written",
		zap.String("cards", cardsPath), zap.String("output", out), zap.Int("rows", rows))
	return &Result{Source: cardsPath, Output: out, Cards: rows}, nil
}

func (g *Generator) write(rel string, data []byte, overwrite bool) error {
	abs, err := g.vault.Resolve(rel)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(abs); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, rel)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", rel, err)
		}
	}
	if err := util.AtomicWriteFile(abs, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	g.vault.Invalidate(rel)
	return nil
}
