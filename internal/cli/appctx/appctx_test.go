package appctx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/lherron/tasksync/internal/db"
)

func testCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("db", "", "State database path")
	cmd.Flags().String("backlog-db", "", "Backlog database path")
	cmd.Flags().String("planner", "", "Planner document path")
	cmd.Flags().String("tag", "", "Planner tag")
	cmd.Flags().String("strategy", "", "Conflict strategy")
	cmd.Flags().Bool("debug", false, "Debug logging")
	return cmd
}

// isolate keeps Load away from the real user config.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	chdir(t, home)
	return home
}

func migratedStateDB(t *testing.T, path string) {
	t.Helper()
	database, err := db.Open(path)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	database.Close()
}

func TestBootstrap_ConfigOnly(t *testing.T) {
	isolate(t)

	app, err := Bootstrap(testCommand(), Options{})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if app.Config == nil {
		t.Error("Config should not be nil")
	}
	if app.DB != nil || app.Backlog != nil || app.Planner != nil {
		t.Error("nothing should be opened without options")
	}
}

func TestBootstrap_Everything(t *testing.T) {
	home := isolate(t)
	statePath := filepath.Join(home, "state.db")
	migratedStateDB(t, statePath)

	cmd := testCommand()
	if err := cmd.ParseFlags([]string{
		"--db", statePath,
		"--backlog-db", filepath.Join(home, "backlog.db"),
		"--planner", filepath.Join(home, "tasks.json"),
		"--tag", "feature",
		"--debug",
	}); err != nil {
		t.Fatal(err)
	}

	app, err := Bootstrap(cmd, Everything())
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if app.Store == nil || app.Backlog == nil || app.Planner == nil {
		t.Fatalf("expected state, backlog and planner to be opened: %+v", app)
	}
	if app.Planner.Tag() != "feature" || !app.Config.Debug() {
		t.Errorf("flags not applied: tag %q, log level %q", app.Planner.Tag(), app.Config.LogLevel)
	}

	app.Close()
	app.Close()
}

func TestBootstrap_PendingMigrations(t *testing.T) {
	home := isolate(t)
	statePath := filepath.Join(home, "fresh.db")

	cmd := testCommand()
	if err := cmd.ParseFlags([]string{"--db", statePath}); err != nil {
		t.Fatal(err)
	}

	_, err := Bootstrap(cmd, StateOnly())
	if err == nil || !strings.Contains(err.Error(), "requires migration") {
		t.Fatalf("expected a migration error, got %v", err)
	}
}

func TestBootstrap_InvalidStrategy(t *testing.T) {
	isolate(t)
	cmd := testCommand()
	if err := cmd.ParseFlags([]string{"--strategy", "coin_flip"}); err != nil {
		t.Fatal(err)
	}
	if _, err := Bootstrap(cmd, Options{}); err == nil {
		t.Fatal("expected invalid config error")
	}
}

func TestBootstrap_EnvironmentPaths(t *testing.T) {
	home := isolate(t)
	statePath := filepath.Join(home, "env-state.db")
	migratedStateDB(t, statePath)
	t.Setenv("TASKSYNC_STATE_DB_PATH", statePath)

	app, err := Bootstrap(testCommand(), StateOnly())
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if app.DB.Path() != statePath {
		t.Errorf("DB path = %q, want %q", app.DB.Path(), statePath)
	}
	if _, err := os.Stat(statePath); err != nil {
		t.Errorf("state database missing: %v", err)
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
