package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lherron/tasksync/internal/domain"
	"github.com/lherron/tasksync/internal/events"
	"github.com/lherron/tasksync/internal/id"
)

// ConflictStore handles the manual-review conflict log.
type ConflictStore struct {
	store *Store
}

const conflictColumns = `seq, uuid, mapping_uuid, strategy, backlog_snapshot, planner_snapshot,
	detected_at, resolved_at`

// List returns conflict-log entries, oldest first. Resolved entries are
// included only when includeResolved is set.
func (cs *ConflictStore) List(ctx context.Context, includeResolved bool) ([]*domain.ConflictRecord, error) {
	query := "SELECT " + conflictColumns + " FROM conflict_log"
	if !includeResolved {
		query += " WHERE resolved_at IS NULL"
	}
	query += " ORDER BY seq"

	rows, err := cs.store.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query conflicts: %w", err)
	}
	defer rows.Close()

	var out []*domain.ConflictRecord
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get looks a conflict up by friendly id or UUID.
func (cs *ConflictStore) Get(ctx context.Context, ref string) (*domain.ConflictRecord, error) {
	query := "SELECT " + conflictColumns + " FROM conflict_log WHERE "
	var arg interface{}
	if typ, seq, err := id.Parse(ref); err == nil && typ == id.TypeConflict {
		query += "seq = ?"
		arg = seq
	} else {
		query += "uuid = ?"
		arg = ref
	}

	c, err := scanConflict(cs.store.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conflict not found: %s", ref)
	}
	return c, err
}

// Ack marks a conflict as resolved by a human.
func (cs *ConflictStore) Ack(ctx context.Context, ref string, at time.Time) (*domain.ConflictRecord, error) {
	c, err := cs.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if c.ResolvedAt != nil {
		return c, nil
	}

	err = cs.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		if _, err := tx.ExecContext(ctx, "UPDATE conflict_log SET resolved_at = ? WHERE uuid = ?", formatTime(at), c.UUID); err != nil {
			return fmt.Errorf("failed to resolve conflict: %w", err)
		}
		return ew.LogConflictResolved(tx, c.UUID)
	})
	if err != nil {
		return nil, err
	}

	resolved := at.UTC()
	c.ResolvedAt = &resolved
	return c, nil
}

func (cs *ConflictStore) insert(ctx context.Context, tx *sql.Tx, c *domain.ConflictRecord) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO conflict_log (uuid, mapping_uuid, strategy, backlog_snapshot, planner_snapshot, detected_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.UUID, c.MappingUUID, string(c.Strategy), c.Backlog, c.Planner, formatTime(c.DetectedAt))
	if err != nil {
		return fmt.Errorf("failed to log conflict for mapping %s: %w", c.MappingUUID, err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	c.ID = id.FormatConflict(int(seq))
	return nil
}

func scanConflict(row rowScanner) (*domain.ConflictRecord, error) {
	var c domain.ConflictRecord
	var seq int
	var strategy, detected string
	var resolved sql.NullString

	err := row.Scan(&seq, &c.UUID, &c.MappingUUID, &strategy, &c.Backlog, &c.Planner, &detected, &resolved)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan conflict: %w", err)
	}

	c.ID = id.FormatConflict(seq)
	c.Strategy = domain.Strategy(strategy)
	if c.DetectedAt, err = parseTime(detected); err != nil {
		return nil, err
	}
	if c.ResolvedAt, err = parseOptionalTime(resolved); err != nil {
		return nil, err
	}
	return &c, nil
}
