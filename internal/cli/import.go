package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/tasksync/internal/backlog"
	"github.com/lherron/tasksync/internal/cli/appctx"
	"github.com/lherron/tasksync/internal/planner"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Create backlog tasks from a planner requirements analysis",
	Long: `Import reads a task list produced by the AI planner from a requirements
document (JSON tasks.json layout or YAML) and creates one backlog task per
entry under --project. Subtasks become tasks with ids like "3.1".

Each imported task is linked to its analysis id, so the next sync creates
the matching planner tasks. Importing the same file twice is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.Everything(), runImport),
}

var (
	importProject string
	importTag     string
	importJSON    bool
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVarP(&importProject, "project", "p", "", "Backlog project slug (default from default_project)")
	importCmd.Flags().StringVar(&importTag, "analysis-tag", "", "Tag to read from a tagged analysis document")
	importCmd.Flags().BoolVar(&importJSON, "json", false, "Print the import result as JSON")
}

func runImport(app *appctx.App, cmd *cobra.Command, args []string) error {
	project := importProject
	if project != "" {
		slug, err := backlog.NormalizeSlug(project)
		if err != nil {
			return exitError(2, fmt.Errorf("--project %q: %w", project, err))
		}
		project = slug
	}

	tasks, err := planner.LoadAnalysis(args[0], importTag)
	if err != nil {
		return exitError(1, err)
	}
	if len(tasks) == 0 {
		return exitError(1, fmt.Errorf("%s: no tasks found", args[0]))
	}

	lock, err := acquireLock(app.Config)
	if err != nil {
		return exitError(1, err)
	}
	defer lock.Unlock()

	engine, err := newEngine(app, engineLogger(cmd, app.Config), cmd.ErrOrStderr())
	if err != nil {
		return exitError(2, err)
	}

	r := engine.ImportFromAnalysis(cmd.Context(), tasks, project)
	if err := printResult(cmd, r, importJSON); err != nil {
		return err
	}
	return resultError(r)
}
