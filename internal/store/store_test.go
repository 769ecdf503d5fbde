package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lherron/tasksync/internal/db"
	"github.com/lherron/tasksync/internal/domain"
)

// setupTestDB creates a temporary test database with migrations applied.
func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "state.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }

func newMapping(backlogID int64, plannerID string, at time.Time) *domain.TaskMapping {
	return &domain.TaskMapping{
		UUID:        uuid.NewString(),
		BacklogID:   int64Ptr(backlogID),
		PlannerID:   strPtr(plannerID),
		Fingerprint: "sha256:" + plannerID,
		Snapshot:    `{"backlog":null,"planner":null}`,
		LastSyncAt:  at,
	}
}

func countEvents(t *testing.T, database *db.DB, eventType string) int {
	t.Helper()
	var n int
	if err := database.QueryRow("SELECT COUNT(*) FROM event_log WHERE event_type = ?", eventType).Scan(&n); err != nil {
		t.Fatalf("failed to count events: %v", err)
	}
	return n
}

func TestSaveCycle_AssignsFriendlyIDs(t *testing.T) {
	database := setupTestDB(t)
	s := New(database)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m1 := newMapping(1, "1", now)
	m2 := newMapping(2, "2", now)
	err := s.SaveCycle(ctx, Cycle{
		Mappings: []*domain.TaskMapping{m1, m2},
		Created:  []string{m1.UUID, m2.UUID},
	})
	if err != nil {
		t.Fatalf("SaveCycle failed: %v", err)
	}
	if m1.ID != "M-00001" || m2.ID != "M-00002" {
		t.Fatalf("friendly ids = %s, %s; want M-00001, M-00002", m1.ID, m2.ID)
	}

	loaded, err := s.LoadMappings(ctx)
	if err != nil {
		t.Fatalf("LoadMappings failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 mappings, got %d", len(loaded))
	}
	if *loaded[0].BacklogID != 1 || *loaded[0].PlannerID != "1" {
		t.Errorf("unexpected first mapping %s", loaded[0].Key())
	}
	if !loaded[0].LastSyncAt.Equal(now) {
		t.Errorf("last_sync_at = %v, want %v", loaded[0].LastSyncAt, now)
	}
	if got := countEvents(t, database, "mapping.created"); got != 2 {
		t.Errorf("expected 2 mapping.created events, got %d", got)
	}
}

func TestSaveCycle_ReplacePreservesSequence(t *testing.T) {
	database := setupTestDB(t)
	s := New(database)
	ctx := context.Background()
	now := time.Now().UTC()

	m1 := newMapping(1, "1", now)
	m2 := newMapping(2, "2", now)
	if err := s.SaveCycle(ctx, Cycle{Mappings: []*domain.TaskMapping{m1, m2}}); err != nil {
		t.Fatalf("SaveCycle failed: %v", err)
	}

	// Drop m1, update m2, add m3.
	previous := m2.Fingerprint
	m2.Fingerprint = "sha256:changed"
	m2.ConflictCount = 1
	m3 := newMapping(3, "3", now)
	err := s.SaveCycle(ctx, Cycle{
		Mappings: []*domain.TaskMapping{m2, m3},
		Created:  []string{m3.UUID},
		Updated:  map[string]string{m2.UUID: previous},
	})
	if err != nil {
		t.Fatalf("SaveCycle failed: %v", err)
	}
	if m3.ID != "M-00003" {
		t.Errorf("new mapping id = %s, want M-00003", m3.ID)
	}

	got, err := s.Mappings.Get(ctx, "M-00002")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.UUID != m2.UUID || got.Fingerprint != "sha256:changed" || got.ConflictCount != 1 {
		t.Errorf("unexpected mapping after replace: %+v", got)
	}
	if _, err := s.Mappings.Get(ctx, m1.UUID); err == nil {
		t.Error("expected dropped mapping to be gone")
	}
	if n := countEvents(t, database, "mapping.updated"); n != 1 {
		t.Errorf("expected 1 mapping.updated event, got %d", n)
	}
}

func TestSaveCycle_RollsBackOnFailure(t *testing.T) {
	database := setupTestDB(t)
	s := New(database)
	ctx := context.Background()
	now := time.Now().UTC()

	m1 := newMapping(1, "1", now)
	if err := s.SaveCycle(ctx, Cycle{Mappings: []*domain.TaskMapping{m1}}); err != nil {
		t.Fatalf("SaveCycle failed: %v", err)
	}

	// Two live mappings claiming backlog task 5 violate the live index.
	a := newMapping(5, "5", now)
	b := newMapping(5, "6", now)
	run := &domain.SyncResult{RunUUID: uuid.NewString(), Kind: "sync", StartedAt: now, Success: true}
	err := s.SaveCycle(ctx, Cycle{Mappings: []*domain.TaskMapping{a, b}, Result: run})
	if err == nil {
		t.Fatal("expected SaveCycle to fail")
	}

	loaded, err := s.LoadMappings(ctx)
	if err != nil {
		t.Fatalf("LoadMappings failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].UUID != m1.UUID {
		t.Fatalf("expected the previous mapping set to survive, got %d mappings", len(loaded))
	}
	runs, err := s.Runs.List(ctx, 0)
	if err != nil {
		t.Fatalf("Runs.List failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no run recorded, got %d", len(runs))
	}
}

func TestSaveCycle_TombstoneCoexistsWithLiveMapping(t *testing.T) {
	database := setupTestDB(t)
	s := New(database)
	ctx := context.Background()
	now := time.Now().UTC()

	old := newMapping(7, "7", now)
	old.TombstonedAt = &now
	live := newMapping(7, "7", now)
	err := s.SaveCycle(ctx, Cycle{
		Mappings:   []*domain.TaskMapping{old, live},
		Tombstoned: []string{old.UUID},
	})
	if err != nil {
		t.Fatalf("SaveCycle failed: %v", err)
	}

	liveOnly, err := s.Mappings.List(ctx, MappingFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(liveOnly) != 1 || liveOnly[0].UUID != live.UUID {
		t.Errorf("expected only the live mapping, got %d", len(liveOnly))
	}
	tombstones, err := s.Mappings.List(ctx, MappingFilter{TombstonesOnly: true})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tombstones) != 1 || !tombstones[0].Tombstoned() {
		t.Errorf("expected one tombstone, got %d", len(tombstones))
	}
}

func TestPruneTombstones(t *testing.T) {
	database := setupTestDB(t)
	s := New(database)
	ctx := context.Background()
	now := time.Now().UTC()
	old := now.Add(-48 * time.Hour)
	recent := now.Add(-time.Hour)

	a := newMapping(1, "1", old)
	a.TombstonedAt = &old
	b := newMapping(2, "2", recent)
	b.TombstonedAt = &recent
	c := newMapping(3, "3", now)
	if err := s.SaveCycle(ctx, Cycle{Mappings: []*domain.TaskMapping{a, b, c}}); err != nil {
		t.Fatalf("SaveCycle failed: %v", err)
	}

	pruned, err := s.Mappings.PruneTombstones(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneTombstones failed: %v", err)
	}
	if len(pruned) != 1 || pruned[0].UUID != a.UUID {
		t.Fatalf("expected only the old tombstone pruned, got %d", len(pruned))
	}

	all, err := s.LoadMappings(ctx)
	if err != nil {
		t.Fatalf("LoadMappings failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 remaining mappings, got %d", len(all))
	}
	if n := countEvents(t, database, "mapping.pruned"); n != 1 {
		t.Errorf("expected 1 mapping.pruned event, got %d", n)
	}
}

func TestConflicts_LogListAck(t *testing.T) {
	database := setupTestDB(t)
	s := New(database)
	ctx := context.Background()
	now := time.Now().UTC()

	m := newMapping(1, "1", now)
	m.ConflictCount = 1
	conflict := &domain.ConflictRecord{
		UUID:        uuid.NewString(),
		MappingUUID: m.UUID,
		Strategy:    domain.StrategyManualReview,
		Backlog:     `{"title":"A"}`,
		Planner:     `{"title":"B"}`,
		DetectedAt:  now,
	}
	err := s.SaveCycle(ctx, Cycle{
		Mappings:  []*domain.TaskMapping{m},
		Conflicts: []*domain.ConflictRecord{conflict},
	})
	if err != nil {
		t.Fatalf("SaveCycle failed: %v", err)
	}
	if conflict.ID != "X-00001" {
		t.Errorf("conflict id = %s, want X-00001", conflict.ID)
	}

	open, err := s.Conflicts.List(ctx, false)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(open) != 1 || open[0].Planner != `{"title":"B"}` {
		t.Fatalf("unexpected open conflicts: %+v", open)
	}

	acked, err := s.Conflicts.Ack(ctx, "X-00001", now)
	if err != nil {
		t.Fatalf("Ack failed: %v", err)
	}
	if acked.ResolvedAt == nil {
		t.Fatal("expected resolved_at to be set")
	}
	// Acking twice is a no-op.
	if _, err := s.Conflicts.Ack(ctx, conflict.UUID, now.Add(time.Minute)); err != nil {
		t.Fatalf("second Ack failed: %v", err)
	}
	if n := countEvents(t, database, "conflict.resolved"); n != 1 {
		t.Errorf("expected 1 conflict.resolved event, got %d", n)
	}

	open, err = s.Conflicts.List(ctx, false)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("expected no open conflicts, got %d", len(open))
	}
	all, err := s.Conflicts.List(ctx, true)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 conflict including resolved, got %d", len(all))
	}

	if _, err := s.Conflicts.Get(ctx, "X-00099"); err == nil {
		t.Error("expected error for unknown conflict")
	}
}

func TestRuns_ListNewestFirst(t *testing.T) {
	database := setupTestDB(t)
	s := New(database)
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		run := &domain.SyncResult{
			RunUUID:   uuid.NewString(),
			Kind:      "sync",
			StartedAt: start.Add(time.Duration(i) * time.Minute),
			Updated:   i,
			Duration:  1500 * time.Millisecond,
			Success:   i != 1,
		}
		if i == 1 {
			run.AddError("planner task %s: %s", "4", "boom")
		}
		if err := s.SaveCycle(ctx, Cycle{Result: run}); err != nil {
			t.Fatalf("SaveCycle failed: %v", err)
		}
	}

	runs, err := s.Runs.List(ctx, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Updated != 2 || runs[1].Updated != 1 {
		t.Errorf("runs not newest first: %d, %d", runs[0].Updated, runs[1].Updated)
	}
	if runs[1].Success || len(runs[1].Errors) != 1 {
		t.Errorf("expected failed run with one error, got %+v", runs[1])
	}
	if runs[0].Duration != 1500*time.Millisecond {
		t.Errorf("duration = %v", runs[0].Duration)
	}
	if n := countEvents(t, database, "sync.completed"); n != 3 {
		t.Errorf("expected 3 sync.completed events, got %d", n)
	}
}
