package cli

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lherron/tasksync/internal/cli/appctx"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the sync event log",
	Long: `Displays the event log: mapping creation, updates, tombstones and
prunes, logged and resolved conflicts, and completed runs.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.StateOnly(), runLog),
}

var (
	logSinceID int64
	logLimit   int
)

func init() {
	rootCmd.AddCommand(logCmd)

	logCmd.Flags().Int64Var(&logSinceID, "since-id", 0, "Only show events after this event id")
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 0, "Maximum number of events (0 for all)")
}

func runLog(app *appctx.App, cmd *cobra.Command, args []string) error {
	events, err := app.Store.Events().List(logSinceID, logLimit)
	if err != nil {
		return exitError(1, err)
	}

	r, err := newRenderer(cmd, app.Config)
	if err != nil {
		return err
	}

	items := make([]interface{}, 0, len(events))
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		items = append(items, e)
		resource := e.ResourceType
		if e.ResourceUUID != nil {
			resource += ":" + *e.ResourceUUID
		}
		payload := ""
		if e.Payload != nil {
			payload = *e.Payload
		}
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			e.Timestamp.Format(time.RFC3339),
			e.EventType,
			resource,
			payload,
		})
	}
	return r.Render(items, []string{"ID", "TIME", "EVENT", "RESOURCE", "PAYLOAD"}, rows)
}
