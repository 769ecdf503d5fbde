package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tasksync",
	Short: "Keep a task backlog and an AI planner in sync",
	Long: `tasksync keeps a project backlog (SQLite) and an AI planner task
document (tasks.json) consistent. Each sync reads both sides, pushes
changes in both directions and resolves edits made on both sides
according to a conflict strategy.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to sync state database (overrides TASKSYNC_STATE_DB_PATH)")
	rootCmd.PersistentFlags().String("backlog-db", "", "Path to backlog database (overrides TASKSYNC_BACKLOG_DB_PATH)")
	rootCmd.PersistentFlags().String("planner", "", "Path to planner tasks.json (overrides TASKSYNC_PLANNER_PATH)")
	rootCmd.PersistentFlags().String("tag", "", "Planner tag context (overrides TASKSYNC_PLANNER_TAG)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format: table, json, ndjson, yaml, tsv")
	rootCmd.PersistentFlags().Bool("debug", false, "Log every per-task sync decision")
}
