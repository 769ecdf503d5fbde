// Package store persists synchronization state: task mappings, the
// manual-review conflict log, sync run history and the event log.
// Every cycle is written in a single transaction so a crash never leaves a
// partially updated mapping set.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lherron/tasksync/internal/db"
	"github.com/lherron/tasksync/internal/domain"
	"github.com/lherron/tasksync/internal/events"
)

// Store is the root store that provides access to the state stores.
type Store struct {
	db *db.DB

	Mappings  *MappingStore
	Conflicts *ConflictStore
	Runs      *RunStore
}

// New creates a new Store wrapping the given database connection.
func New(database *db.DB) *Store {
	s := &Store{db: database}
	s.Mappings = &MappingStore{store: s}
	s.Conflicts = &ConflictStore{store: s}
	s.Runs = &RunStore{store: s}
	return s
}

// DB returns the underlying database connection (for read-only queries).
func (s *Store) DB() *db.DB {
	return s.db
}

// Events returns a reader/writer over the event log.
func (s *Store) Events() *events.Writer {
	return events.NewWriter(s.db.DB)
}

// Cycle is everything one sync cycle or import persists.
type Cycle struct {
	// Mappings is the complete mapping set after the cycle. It replaces the
	// stored set; nil leaves the stored set untouched.
	Mappings []*domain.TaskMapping

	// Event bookkeeping, keyed by mapping UUID.
	Created    []string
	Updated    map[string]string // uuid -> previous fingerprint
	Tombstoned []string
	Pruned     []*domain.TaskMapping

	Conflicts []*domain.ConflictRecord
	Result    *domain.SyncResult
}

// LoadMappings returns every stored mapping, tombstones included.
func (s *Store) LoadMappings(ctx context.Context) ([]*domain.TaskMapping, error) {
	return s.Mappings.List(ctx, MappingFilter{IncludeTombstones: true})
}

// SaveCycle atomically replaces the mapping set and appends the cycle's
// conflict-log entries, run record and events.
func (s *Store) SaveCycle(ctx context.Context, c Cycle) error {
	return s.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		if c.Mappings != nil {
			if err := s.Mappings.replaceAll(ctx, tx, c.Mappings); err != nil {
				return err
			}
		}

		byUUID := make(map[string]*domain.TaskMapping, len(c.Mappings))
		for _, m := range c.Mappings {
			byUUID[m.UUID] = m
		}
		for _, uuid := range c.Created {
			if m, ok := byUUID[uuid]; ok {
				if err := ew.LogMappingCreated(tx, m); err != nil {
					return fmt.Errorf("failed to log event: %w", err)
				}
			}
		}
		for uuid, previous := range c.Updated {
			if m, ok := byUUID[uuid]; ok {
				if err := ew.LogMappingUpdated(tx, m, previous); err != nil {
					return fmt.Errorf("failed to log event: %w", err)
				}
			}
		}
		for _, uuid := range c.Tombstoned {
			if m, ok := byUUID[uuid]; ok {
				if err := ew.LogMappingTombstoned(tx, m); err != nil {
					return fmt.Errorf("failed to log event: %w", err)
				}
			}
		}
		for _, m := range c.Pruned {
			if err := ew.LogMappingPruned(tx, m); err != nil {
				return fmt.Errorf("failed to log event: %w", err)
			}
		}

		for _, conflict := range c.Conflicts {
			if err := s.Conflicts.insert(ctx, tx, conflict); err != nil {
				return err
			}
			if err := ew.LogConflictLogged(tx, conflict); err != nil {
				return fmt.Errorf("failed to log event: %w", err)
			}
		}

		if c.Result != nil {
			if err := s.Runs.insert(ctx, tx, c.Result); err != nil {
				return err
			}
			if err := ew.LogRunCompleted(tx, c.Result); err != nil {
				return fmt.Errorf("failed to log event: %w", err)
			}
		}
		return nil
	})
}

// withTx executes fn within a transaction. If fn returns nil, the transaction
// is committed; otherwise it is rolled back.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx, ew *events.Writer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ew := events.NewWriter(s.db.DB)
	if err := fn(tx, ew); err != nil {
		return err
	}

	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseOptionalTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
