package cli

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/lherron/tasksync/internal/cli/appctx"
	"github.com/lherron/tasksync/internal/config"
	"github.com/lherron/tasksync/internal/domain"
	"github.com/lherron/tasksync/internal/notify"
	"github.com/lherron/tasksync/internal/render"
	"github.com/lherron/tasksync/internal/syncer"
)

// exitError returns an error that will cause the CLI to exit with the given code
func exitError(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// newRenderer builds a renderer from --output, falling back to the configured format.
func newRenderer(cmd *cobra.Command, cfg *config.Config) (*render.Renderer, error) {
	format, err := render.ParseFormat(cfg.Output)
	if err != nil {
		return nil, exitError(2, err)
	}
	return render.NewRenderer(cmd.OutOrStdout(), render.Options{Format: format}), nil
}

// engineLogger discards the per-cycle log line unless debugging; commands
// print their own summary.
func engineLogger(cmd *cobra.Command, cfg *config.Config) *log.Logger {
	if cfg.Debug() {
		return log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
	}
	return log.New(io.Discard, "", 0)
}

// newEngine wires the opened collaborators into a sync engine.
func newEngine(app *appctx.App, logger *log.Logger, progress io.Writer) (*syncer.Engine, error) {
	cfg := app.Config
	return syncer.New(app.Backlog, app.Planner, app.Store, syncer.Options{
		Strategy:       domain.Strategy(cfg.Strategy),
		ConflictWindow: cfg.ConflictWindow(),
		Jobs:           cfg.Jobs,
		TombstoneTTL:   cfg.TombstoneTTL(),
		DefaultProject: cfg.DefaultProject,
		Logger:         logger,
		Debug:          cfg.Debug(),
		Notifier:       notify.New(cfg.WebhookURLs),
		Progress:       progress,
	})
}

// acquireLock takes the exclusive sync lock next to the state database so
// two sync, import or daemon runs never overlap.
func acquireLock(cfg *config.Config) (*flock.Flock, error) {
	path := cfg.LockPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire sync lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("another tasksync run holds %s", path)
	}
	return lock, nil
}

// printResult writes a run result in the requested format.
func printResult(cmd *cobra.Command, r *domain.SyncResult, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		return render.NewRenderer(out, render.Options{Format: render.FormatJSON}).RenderJSON(r)
	}
	render.Summary(out, r, render.IsTerminal(out))
	return nil
}
