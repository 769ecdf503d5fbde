package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lherron/tasksync/internal/cli/appctx"
	"github.com/lherron/tasksync/internal/config"
	"github.com/lherron/tasksync/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run any pending state database migrations",
	Long: `Migrate applies any pending SQL migrations to the sync state database.

Migrations are embedded in the tasksync binary and tracked via the
schema_migrations table. Each migration file (e.g., 000001_baseline.sql) is
applied exactly once. The backlog database migrates itself when opened.

Use --dry-run to see which migrations would be applied without running them.
Use --status to show the current migration status.`,
	RunE: runMigrate,
}

var (
	migrateDryRun bool
	migrateStatus bool
)

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Show which migrations would be applied without running them")
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "Show current migration status")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to load config: %w", err))
	}
	appctx.ApplyFlags(cmd, cfg)

	if cfg.StateDBPath == "" {
		return exitError(2, fmt.Errorf("state database path not specified (use --db flag or set TASKSYNC_STATE_DB_PATH)"))
	}

	database, err := db.Open(cfg.StateDBPath)
	if err != nil {
		return exitError(1, fmt.Errorf("failed to open database: %w", err))
	}
	defer database.Close()

	out := cmd.OutOrStdout()
	if migrateStatus {
		return showMigrationStatus(out, database)
	}
	if migrateDryRun {
		return showPendingMigrations(out, database)
	}

	applied, err := database.MigrateWithInfo()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to run migrations: %w", err))
	}

	if len(applied) == 0 {
		fmt.Fprintln(out, "Database is up to date. No migrations to apply.")
	} else {
		for _, m := range applied {
			fmt.Fprintf(out, "✓ Applied migration: %s\n", m)
		}
		fmt.Fprintf(out, "\nApplied %d migration(s).\n", len(applied))
	}

	return nil
}

func showMigrationStatus(out io.Writer, database *db.DB) error {
	applied, pending, err := database.MigrationStatus()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to get migration status: %w", err))
	}

	if len(applied) == 0 && len(pending) == 0 {
		fmt.Fprintln(out, "No migrations found.")
		return nil
	}

	if len(applied) > 0 {
		fmt.Fprintln(out, "Applied migrations:")
		for _, m := range applied {
			fmt.Fprintf(out, "  ✓ %s\n", m)
		}
	}

	if len(pending) > 0 {
		if len(applied) > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out, "Pending migrations:")
		for _, m := range pending {
			fmt.Fprintf(out, "  ○ %s\n", m)
		}
	}

	return nil
}

func showPendingMigrations(out io.Writer, database *db.DB) error {
	_, pending, err := database.MigrationStatus()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to get migration status: %w", err))
	}

	if len(pending) == 0 {
		fmt.Fprintln(out, "No pending migrations. Database is up to date.")
		return nil
	}

	fmt.Fprintln(out, "Pending migrations (would be applied):")
	for _, m := range pending {
		fmt.Fprintf(out, "  ○ %s\n", m)
	}
	fmt.Fprintf(out, "\nTotal: %d migration(s) would be applied.\n", len(pending))

	return nil
}
