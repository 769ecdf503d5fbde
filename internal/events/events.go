package events

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lherron/tasksync/internal/domain"
)

// Writer handles writing events to the event log
type Writer struct {
	db *sql.DB
}

// NewWriter creates a new event writer
func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// LogEvent writes an event to the event log
func (w *Writer) LogEvent(tx *sql.Tx, event *domain.Event) error {
	query := `
		INSERT INTO event_log (resource_type, resource_uuid, event_type, payload)
		VALUES (?, ?, ?, ?)
	`

	executor := w.getExecutor(tx)
	_, err := executor.Exec(query, event.ResourceType, event.ResourceUUID, event.EventType, event.Payload)
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// LogMappingCreated logs a new backlog/planner link
func (w *Writer) LogMappingCreated(tx *sql.Tx, m *domain.TaskMapping) error {
	return w.logMapping(tx, m, "mapping.created", map[string]interface{}{
		"key":         m.Key(),
		"fingerprint": m.Fingerprint,
	})
}

// LogMappingUpdated logs a fingerprint change after a write-through
func (w *Writer) LogMappingUpdated(tx *sql.Tx, m *domain.TaskMapping, previousFingerprint string) error {
	return w.logMapping(tx, m, "mapping.updated", map[string]interface{}{
		"key":            m.Key(),
		"fingerprint":    m.Fingerprint,
		"previous":       previousFingerprint,
		"conflict_count": m.ConflictCount,
	})
}

// LogMappingTombstoned logs a mapping whose tasks vanished on both sides
func (w *Writer) LogMappingTombstoned(tx *sql.Tx, m *domain.TaskMapping) error {
	return w.logMapping(tx, m, "mapping.tombstoned", map[string]interface{}{
		"key": m.Key(),
	})
}

// LogMappingPruned logs the removal of an expired tombstone
func (w *Writer) LogMappingPruned(tx *sql.Tx, m *domain.TaskMapping) error {
	return w.logMapping(tx, m, "mapping.pruned", map[string]interface{}{
		"key":           m.Key(),
		"tombstoned_at": formatOptionalTime(m.TombstonedAt),
	})
}

// LogConflictLogged logs a conflict deferred to manual review
func (w *Writer) LogConflictLogged(tx *sql.Tx, c *domain.ConflictRecord) error {
	payload, err := json.Marshal(map[string]interface{}{
		"mapping_uuid": c.MappingUUID,
		"strategy":     c.Strategy,
	})
	if err != nil {
		return err
	}

	payloadStr := string(payload)
	return w.LogEvent(tx, &domain.Event{
		ResourceType: "conflict",
		ResourceUUID: &c.UUID,
		EventType:    "conflict.logged",
		Payload:      &payloadStr,
	})
}

// LogConflictResolved logs a manual-review acknowledgement
func (w *Writer) LogConflictResolved(tx *sql.Tx, conflictUUID string) error {
	return w.LogEvent(tx, &domain.Event{
		ResourceType: "conflict",
		ResourceUUID: &conflictUUID,
		EventType:    "conflict.resolved",
	})
}

// LogRunCompleted logs the summary of a sync cycle or import
func (w *Writer) LogRunCompleted(tx *sql.Tx, r *domain.SyncResult) error {
	payload, err := json.Marshal(map[string]interface{}{
		"kind":      r.Kind,
		"created":   r.Created,
		"updated":   r.Updated,
		"conflicts": r.Conflicts,
		"errors":    len(r.Errors),
		"success":   r.Success,
	})
	if err != nil {
		return err
	}

	payloadStr := string(payload)
	return w.LogEvent(tx, &domain.Event{
		ResourceType: "run",
		ResourceUUID: &r.RunUUID,
		EventType:    r.Kind + ".completed",
		Payload:      &payloadStr,
	})
}

// List returns events with id greater than sinceID, oldest first.
// A limit of 0 returns every matching event.
func (w *Writer) List(sinceID int64, limit int) ([]domain.Event, error) {
	query := `
		SELECT id, timestamp, resource_type, resource_uuid, event_type, payload
		FROM event_log
		WHERE id > ?
		ORDER BY id ASC
	`
	args := []interface{}{sinceID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := w.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		var ts string
		var resourceUUID, payload sql.NullString
		if err := rows.Scan(&e.ID, &ts, &e.ResourceType, &resourceUUID, &e.EventType, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Timestamp = parsed
		}
		if resourceUUID.Valid {
			e.ResourceUUID = &resourceUUID.String
		}
		if payload.Valid {
			e.Payload = &payload.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (w *Writer) logMapping(tx *sql.Tx, m *domain.TaskMapping, eventType string, fields map[string]interface{}) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	payloadStr := string(payload)
	return w.LogEvent(tx, &domain.Event{
		ResourceType: "mapping",
		ResourceUUID: &m.UUID,
		EventType:    eventType,
		Payload:      &payloadStr,
	})
}

func formatOptionalTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// getExecutor returns the appropriate executor (tx or db)
func (w *Writer) getExecutor(tx *sql.Tx) interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
} {
	if tx != nil {
		return tx
	}
	return w.db
}
