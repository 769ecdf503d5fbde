package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lherron/tasksync/internal/domain"
)

// RunStore handles sync run history.
type RunStore struct {
	store *Store
}

// List returns the most recent runs, newest first.
func (rs *RunStore) List(ctx context.Context, limit int) ([]*domain.SyncResult, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := rs.store.db.QueryContext(ctx, `
		SELECT uuid, kind, started_at, duration_ms, created, updated, conflicts,
		       skipped, tombstoned, pruned, errors, success
		FROM sync_runs
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []*domain.SyncResult
	for rows.Next() {
		var r domain.SyncResult
		var started, errorsJSON string
		var durationMS int64
		var success int
		err := rows.Scan(&r.RunUUID, &r.Kind, &started, &durationMS, &r.Created, &r.Updated,
			&r.Conflicts, &r.Skipped, &r.Tombstoned, &r.Pruned, &errorsJSON, &success)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(errorsJSON), &r.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode run errors: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.Success = success == 1
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (rs *RunStore) insert(ctx context.Context, tx *sql.Tx, r *domain.SyncResult) error {
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	errorsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("failed to encode run errors: %w", err)
	}

	success := 0
	if r.Success {
		success = 1
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_runs (uuid, kind, started_at, duration_ms, created, updated, conflicts,
		                       skipped, tombstoned, pruned, errors, success)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.RunUUID, r.Kind, formatTime(r.StartedAt), r.Duration.Milliseconds(), r.Created, r.Updated,
		r.Conflicts, r.Skipped, r.Tombstoned, r.Pruned, string(errorsJSON), success)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.RunUUID, err)
	}
	return nil
}
