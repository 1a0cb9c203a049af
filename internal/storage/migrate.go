// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/vaultchat/internal/model"
)

// MigrationResult describes one migration pass.
type MigrationResult struct {
	// From and To are the schema versions before and after.
	From int
	To   int

	// Records is how many rows were examined.
	Records int

	// Coerced is how many rows had their payload rewritten.
	Coerced int

	// Reset is how many payloads could not be interpreted and were
	// replaced by an empty message list.
	Reset int

	Duration time.Duration
}

// Changed reports whether the pass modified the database.
func (m MigrationResult) Changed() bool {
	return m.From != m.To || m.Coerced > 0
}

// Migrate brings the database to SchemaVersion and rewrites every message
// payload in canonical form, all in one transaction. On a database that is
// already current with canonical payloads it changes nothing.
//
// Timestamps are not touched: migration is not a user-visible mutation.
func (r *Repository) Migrate(ctx context.Context) (MigrationResult, error) {
	start := time.Now()
	var result MigrationResult

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&result.From); err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		if result.From > SchemaVersion {
			return fmt.Errorf("%w: version %d, supported %d", ErrSchemaTooNew, result.From, SchemaVersion)
		}

		for _, m := range migrations {
			if m.version <= result.From || m.ddl == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, m.ddl); err != nil {
				return fmt.Errorf("apply schema v%d: %w", m.version, err)
			}
			r.logger.Info("schema step applied", zap.Int("version", m.version))
		}

		if err := r.reencode(ctx, tx, &result); err != nil {
			return err
		}

		result.To = SchemaVersion
		if result.From != SchemaVersion {
			// PRAGMA does not take bound parameters
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
				return fmt.Errorf("write schema version: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return MigrationResult{}, persistErr("migrate", err)
	}

	result.Duration = time.Since(start)
	if result.Changed() {
		r.logger.Info("database migrated",
			zap.Int("from", result.From),
			zap.Int("to", result.To),
			zap.Int("records", result.Records),
			zap.Int("coerced", result.Coerced),
			zap.Int("reset", result.Reset))
	}
	return result, nil
}

type storedPayload struct {
	id      int64
	payload string
}

// reencode decodes every payload tolerantly and writes back the ones whose
// canonical encoding differs from what is stored.
func (r *Repository) reencode(ctx context.Context, tx *sql.Tx, result *MigrationResult) error {
	rows, err := tx.QueryContext(ctx, `SELECT id, messages FROM conversations`)
	if err != nil {
		return fmt.Errorf("read payloads: %w", err)
	}

	var stored []storedPayload
	for rows.Next() {
		var (
			id      int64
			payload sql.NullString
		)
		if err := rows.Scan(&id, &payload); err != nil {
			rows.Close()
			return fmt.Errorf("read payloads: %w", err)
		}
		stored = append(stored, storedPayload{id: id, payload: payload.String})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("read payloads: %w", err)
	}
	rows.Close()

	for _, s := range stored {
		result.Records++

		msgs, decodeErr := model.CoerceMessages(s.payload)
		if decodeErr != nil {
			result.Reset++
			r.logger.Warn("message payload reset during migration",
				zap.Int64("conversation", s.id),
				zap.Error(decodeErr))
		}

		canonical, err := model.EncodeMessages(msgs)
		if err != nil {
			return fmt.Errorf("encode conversation %d: %w", s.id, err)
		}
		if canonical == s.payload {
			continue
		}

		if _, err := tx.ExecContext(ctx, `UPDATE conversations SET messages = ? WHERE id = ?`, canonical, s.id); err != nil {
			return fmt.Errorf("rewrite conversation %d: %w", s.id, err)
		}
		result.Coerced++
	}
	return nil
}
