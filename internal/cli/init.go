package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lherron/tasksync/internal/backlog"
	"github.com/lherron/tasksync/internal/cli/appctx"
	"github.com/lherron/tasksync/internal/config"
	"github.com/lherron/tasksync/internal/db"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the sync state, backlog and planner locations",
	Long: `Initialize creates the sync state database and runs its migrations,
creates the backlog database with its default project, and makes sure the
planner document directory exists. Running it again is harmless.`,
	RunE: runInit,
}

var initProjects []string

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringSliceVar(&initProjects, "project", nil, "Additional backlog project slugs to create")
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to load config: %w", err))
	}
	appctx.ApplyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return exitError(2, fmt.Errorf("invalid config: %w", err))
	}

	out := cmd.OutOrStdout()
	stateExists := fileExists(cfg.StateDBPath)

	database, err := db.Open(cfg.StateDBPath)
	if err != nil {
		return exitError(1, fmt.Errorf("failed to open state database: %w", err))
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return exitError(1, fmt.Errorf("failed to run migrations: %w", err))
	}
	if stateExists {
		fmt.Fprintf(out, "✓ State database already initialized at %s\n", cfg.StateDBPath)
	} else {
		fmt.Fprintf(out, "✓ Initialized state database at %s\n", cfg.StateDBPath)
	}

	bl, err := backlog.Open(cfg.BacklogDBPath)
	if err != nil {
		return exitError(1, fmt.Errorf("failed to open backlog: %w", err))
	}
	defer bl.Close()

	ctx := context.Background()
	for _, name := range append([]string{cfg.DefaultProject}, initProjects...) {
		slug, err := backlog.NormalizeSlug(name)
		if err != nil {
			return exitError(2, fmt.Errorf("project %q: %w", name, err))
		}
		if _, err := bl.EnsureProject(ctx, slug); err != nil {
			return exitError(1, err)
		}
	}
	fmt.Fprintf(out, "✓ Backlog ready at %s (default project %s)\n", cfg.BacklogDBPath, cfg.DefaultProject)

	if err := os.MkdirAll(filepath.Dir(cfg.PlannerPath), 0755); err != nil {
		return exitError(1, fmt.Errorf("failed to create planner directory: %w", err))
	}
	fmt.Fprintf(out, "✓ Planner document %s (tag %s)\n", cfg.PlannerPath, cfg.PlannerTag)

	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
