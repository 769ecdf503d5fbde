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

// MappingStore handles task mapping persistence.
type MappingStore struct {
	store *Store
}

// MappingFilter narrows List results.
type MappingFilter struct {
	IncludeTombstones bool
	TombstonesOnly    bool
}

const mappingColumns = `uuid, seq, backlog_id, planner_id, fingerprint, snapshot,
	last_sync_at, conflict_count, tombstoned_at, created_at`

// List returns mappings ordered by friendly id.
func (ms *MappingStore) List(ctx context.Context, filter MappingFilter) ([]*domain.TaskMapping, error) {
	query := "SELECT " + mappingColumns + " FROM task_mappings"
	switch {
	case filter.TombstonesOnly:
		query += " WHERE tombstoned_at IS NOT NULL"
	case !filter.IncludeTombstones:
		query += " WHERE tombstoned_at IS NULL"
	}
	query += " ORDER BY seq"

	rows, err := ms.store.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query mappings: %w", err)
	}
	defer rows.Close()

	var out []*domain.TaskMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mappings: %w", err)
	}
	return out, nil
}

// Get looks a mapping up by friendly id or UUID.
func (ms *MappingStore) Get(ctx context.Context, ref string) (*domain.TaskMapping, error) {
	query := "SELECT " + mappingColumns + " FROM task_mappings WHERE "
	var arg interface{}
	if typ, seq, err := id.Parse(ref); err == nil && typ == id.TypeMapping {
		query += "seq = ?"
		arg = seq
	} else {
		query += "uuid = ?"
		arg = ref
	}

	m, err := scanMapping(ms.store.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("mapping not found: %s", ref)
	}
	return m, err
}

// PruneTombstones deletes tombstones older than cutoff and returns them.
func (ms *MappingStore) PruneTombstones(ctx context.Context, cutoff time.Time) ([]*domain.TaskMapping, error) {
	tombstones, err := ms.List(ctx, MappingFilter{TombstonesOnly: true})
	if err != nil {
		return nil, err
	}

	var pruned []*domain.TaskMapping
	err = ms.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		for _, m := range tombstones {
			if !m.TombstonedAt.Before(cutoff) {
				continue
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM task_mappings WHERE uuid = ?", m.UUID); err != nil {
				return fmt.Errorf("failed to delete mapping %s: %w", m.ID, err)
			}
			if err := ew.LogMappingPruned(tx, m); err != nil {
				return fmt.Errorf("failed to log event: %w", err)
			}
			pruned = append(pruned, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pruned, nil
}

// replaceAll swaps the stored mapping set for mappings inside tx. Existing
// rows keep their sequence number; new rows get the next free one and have
// their friendly ID filled in.
func (ms *MappingStore) replaceAll(ctx context.Context, tx *sql.Tx, mappings []*domain.TaskMapping) error {
	seqs := make(map[string]int)
	maxSeq := 0

	rows, err := tx.QueryContext(ctx, "SELECT uuid, seq FROM task_mappings")
	if err != nil {
		return fmt.Errorf("failed to read mapping sequences: %w", err)
	}
	for rows.Next() {
		var uuid string
		var seq int
		if err := rows.Scan(&uuid, &seq); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan mapping sequence: %w", err)
		}
		seqs[uuid] = seq
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating mapping sequences: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM task_mappings"); err != nil {
		return fmt.Errorf("failed to clear mappings: %w", err)
	}

	for _, m := range mappings {
		seq, ok := seqs[m.UUID]
		if !ok {
			maxSeq++
			seq = maxSeq
		}
		m.ID = id.FormatMapping(seq)
		if m.CreatedAt.IsZero() {
			m.CreatedAt = m.LastSyncAt
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO task_mappings (`+mappingColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			m.UUID,
			seq,
			m.BacklogID,
			m.PlannerID,
			m.Fingerprint,
			m.Snapshot,
			formatTime(m.LastSyncAt),
			m.ConflictCount,
			formatOptionalTime(m.TombstonedAt),
			formatTime(m.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to write mapping %s (%s): %w", m.ID, m.Key(), err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMapping(row rowScanner) (*domain.TaskMapping, error) {
	var m domain.TaskMapping
	var seq int
	var backlogID sql.NullInt64
	var plannerID, tombstonedAt sql.NullString
	var lastSync, created string

	err := row.Scan(
		&m.UUID,
		&seq,
		&backlogID,
		&plannerID,
		&m.Fingerprint,
		&m.Snapshot,
		&lastSync,
		&m.ConflictCount,
		&tombstonedAt,
		&created,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan mapping: %w", err)
	}

	m.ID = id.FormatMapping(seq)
	if backlogID.Valid {
		v := backlogID.Int64
		m.BacklogID = &v
	}
	if plannerID.Valid {
		v := plannerID.String
		m.PlannerID = &v
	}
	if m.LastSyncAt, err = parseTime(lastSync); err != nil {
		return nil, err
	}
	if m.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if m.TombstonedAt, err = parseOptionalTime(tombstonedAt); err != nil {
		return nil, err
	}
	return &m, nil
}
