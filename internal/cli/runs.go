package cli

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lherron/tasksync/internal/cli/appctx"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent sync and import runs",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.StateOnly(), runRuns),
}

var runsLimit int

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum number of runs to show")
}

func runRuns(app *appctx.App, cmd *cobra.Command, args []string) error {
	results, err := app.Store.Runs.List(cmd.Context(), runsLimit)
	if err != nil {
		return exitError(1, err)
	}

	r, err := newRenderer(cmd, app.Config)
	if err != nil {
		return err
	}

	items := make([]interface{}, 0, len(results))
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		items = append(items, res)
		status := "ok"
		if !res.Success {
			status = "failed"
		}
		rows = append(rows, []string{
			res.RunUUID,
			res.Kind,
			res.StartedAt.Format(time.RFC3339),
			res.Duration.Round(time.Millisecond).String(),
			strconv.Itoa(res.Created),
			strconv.Itoa(res.Updated),
			strconv.Itoa(res.Conflicts),
			strconv.Itoa(len(res.Errors)),
			status,
		})
	}
	return r.Render(items, []string{"RUN", "KIND", "STARTED", "DURATION", "CREATED", "UPDATED", "CONFLICTS", "ERRORS", "STATUS"}, rows)
}
