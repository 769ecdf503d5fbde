package db_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/lherron/tasksync/internal/db"
)

func openTemp(t *testing.T) (*db.DB, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "state.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database, dbPath
}

func TestOpen_PragmasOnEveryConnection(t *testing.T) {
	database, _ := openTemp(t)
	ctx := context.Background()

	// Hold several connections at once so the pool has to open new ones.
	var conns []*sql.Conn
	for i := 0; i < 3; i++ {
		conn, err := database.Conn(ctx)
		if err != nil {
			t.Fatalf("Conn failed: %v", err)
		}
		defer conn.Close()
		conns = append(conns, conn)
	}

	for i, conn := range conns {
		var fk, busy int
		if err := conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
			t.Fatalf("conn %d: foreign_keys: %v", i, err)
		}
		if err := conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busy); err != nil {
			t.Fatalf("conn %d: busy_timeout: %v", i, err)
		}
		var mode string
		if err := conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
			t.Fatalf("conn %d: journal_mode: %v", i, err)
		}
		if fk != 1 || busy != 5000 || !strings.EqualFold(mode, "wal") {
			t.Errorf("conn %d: foreign_keys=%d busy_timeout=%d journal_mode=%s", i, fk, busy, mode)
		}
	}
}

func TestMigrate_CreatesTablesAndIsIdempotent(t *testing.T) {
	database, _ := openTemp(t)

	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	for _, table := range []string{"task_mappings", "conflict_log", "sync_runs", "event_log"} {
		var n int
		err := database.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
		if err != nil || n != 1 {
			t.Errorf("table %s missing (n=%d, err=%v)", table, n, err)
		}
	}

	applied, pending, err := database.MigrationStatus()
	if err != nil {
		t.Fatalf("MigrationStatus failed: %v", err)
	}
	if len(pending) != 0 || len(applied) != 2 {
		t.Errorf("applied=%v pending=%v", applied, pending)
	}
	if err := database.RequiresMigrationError(); err != nil {
		t.Errorf("expected nil after migrating, got %v", err)
	}
}

func TestRequiresMigrationError(t *testing.T) {
	database, dbPath := openTemp(t)

	_, err := database.Exec(`
		CREATE TABLE schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
		)
	`)
	if err != nil {
		t.Fatalf("could not create schema_migrations: %v", err)
	}
	if _, err := database.Exec(`INSERT INTO schema_migrations (version) VALUES ('000001_task_mappings.sql')`); err != nil {
		t.Fatalf("could not insert migration: %v", err)
	}

	migErr := database.RequiresMigrationError()
	if migErr == nil {
		t.Fatal("expected migration error, got nil")
	}

	errStr := migErr.Error()
	for _, want := range []string{dbPath, "000001_task_mappings.sql", "1 pending migration", "tasksync migrate"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error should contain %q, got: %s", want, errStr)
		}
	}
}

func TestRequiresMigrationErrorFreshDB(t *testing.T) {
	database, _ := openTemp(t)

	migErr := database.RequiresMigrationError()
	if migErr == nil {
		t.Fatal("expected migration error for fresh db")
	}
	if !strings.Contains(migErr.Error(), "version: none") {
		t.Errorf("expected version none, got: %s", migErr.Error())
	}
}

func TestMigrateFS_SeparateSetsShareFile(t *testing.T) {
	database, _ := openTemp(t)
	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	other := fstest.MapFS{
		"schema/backlog_000001.sql": {Data: []byte(`CREATE TABLE widgets (id INTEGER PRIMARY KEY);`)},
		"schema/README.txt":         {Data: []byte(`ignored`)},
	}

	_, pending, err := database.MigrationStatusFS(other, "schema")
	if err != nil {
		t.Fatalf("MigrationStatusFS failed: %v", err)
	}
	if len(pending) != 1 || pending[0] != "backlog_000001.sql" {
		t.Fatalf("pending = %v", pending)
	}

	applied, err := database.MigrateFS(other, "schema")
	if err != nil {
		t.Fatalf("MigrateFS failed: %v", err)
	}
	if len(applied) != 1 {
		t.Errorf("applied = %v", applied)
	}

	applied, pending, err = database.MigrationStatusFS(other, "schema")
	if err != nil {
		t.Fatalf("MigrationStatusFS failed: %v", err)
	}
	if len(applied) != 1 || len(pending) != 0 {
		t.Errorf("applied=%v pending=%v", applied, pending)
	}

	// The sync-state set must not count the foreign version.
	if err := database.RequiresMigrationError(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMigrateFS_FailedMigrationIsNotRecorded(t *testing.T) {
	database, _ := openTemp(t)

	broken := fstest.MapFS{
		"m/0001_ok.sql":  {Data: []byte(`CREATE TABLE ok_table (id INTEGER);`)},
		"m/0002_bad.sql": {Data: []byte(`CREATE TABLE nope (`)},
	}
	applied, err := database.MigrateFS(broken, "m")
	if err == nil {
		t.Fatal("expected error from broken migration")
	}
	if len(applied) != 1 || applied[0] != "0001_ok.sql" {
		t.Errorf("applied = %v", applied)
	}

	_, pending, err := database.MigrationStatusFS(broken, "m")
	if err != nil {
		t.Fatalf("MigrationStatusFS failed: %v", err)
	}
	if len(pending) != 1 || pending[0] != "0002_bad.sql" {
		t.Errorf("pending = %v", pending)
	}
}
