package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lherron/tasksync/internal/cli/appctx"
	"github.com/lherron/tasksync/internal/domain"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the backlog and the planner",
	Long: `Sync runs one cycle: backlog changes are pushed to the planner, then
planner changes are pushed to the backlog. Tasks edited on both sides
within the conflict window are resolved with the configured strategy:

  backlog_wins       the backlog version is written to the planner
  planner_wins       the planner version is written to the backlog
  latest_timestamp   the most recently updated side wins (default)
  intelligent_merge  field-by-field merge against the last synced state
  manual_review      nothing is written; the conflict is logged for review

With --watch, sync repeats every --interval until interrupted.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.Everything(), runSync),
}

var (
	syncWatch    bool
	syncInterval time.Duration
	syncJobs     int
	syncJSON     bool
)

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolVarP(&syncWatch, "watch", "w", false, "Keep syncing every --interval until interrupted")
	syncCmd.Flags().DurationVar(&syncInterval, "interval", 0, "Interval between cycles with --watch (default from sync_interval_seconds)")
	syncCmd.Flags().String("strategy", "", "Conflict strategy (overrides TASKSYNC_STRATEGY)")
	syncCmd.Flags().IntVarP(&syncJobs, "jobs", "j", 0, "Concurrent writes per direction")
	syncCmd.Flags().BoolVar(&syncJSON, "json", false, "Print the run result as JSON")
}

func runSync(app *appctx.App, cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("jobs") {
		app.Config.Jobs = syncJobs
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

	if !syncWatch {
		r := engine.SyncAll(cmd.Context())
		if err := printResult(cmd, r, syncJSON); err != nil {
			return err
		}
		return resultError(r)
	}

	interval := syncInterval
	if interval == 0 {
		interval = app.Config.SyncInterval()
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return engine.Run(ctx, interval, func(r *domain.SyncResult) {
		if err := printResult(cmd, r, syncJSON); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	})
}

// resultError turns an aborted run into a command error.
func resultError(r *domain.SyncResult) error {
	if r.Success {
		return nil
	}
	msg := "run failed"
	if len(r.Errors) > 0 {
		msg = r.Errors[len(r.Errors)-1]
	}
	return exitError(1, errors.New(r.Kind+" failed: "+msg))
}
