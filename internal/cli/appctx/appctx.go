// Package appctx provides a shared bootstrap helper for CLI commands.
// It centralizes config loading, flag overrides and opening the state
// database and both synchronized systems.
package appctx

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/tasksync/internal/backlog"
	"github.com/lherron/tasksync/internal/config"
	"github.com/lherron/tasksync/internal/db"
	"github.com/lherron/tasksync/internal/planner"
	"github.com/lherron/tasksync/internal/store"
)

// App holds the shared application context for commands.
type App struct {
	// Config is the loaded and validated configuration
	Config *config.Config

	// DB is the opened state database (nil if NeedsState is false)
	DB    *db.DB
	Store *store.Store

	// Backlog is the opened backlog (nil if NeedsBacklog is false)
	Backlog *backlog.Store

	// Planner is the planner task document (nil if NeedsPlanner is false)
	Planner *planner.Document
}

// Close releases resources held by the App.
// Safe to call multiple times.
func (a *App) Close() {
	if a.Backlog != nil {
		a.Backlog.Close()
		a.Backlog = nil
	}
	if a.DB != nil {
		a.DB.Close()
		a.DB = nil
		a.Store = nil
	}
}

// Options configures the bootstrap behavior.
type Options struct {
	// NeedsState opens the state database and refuses to continue while
	// migrations are pending.
	NeedsState bool

	// NeedsBacklog opens the backlog database, creating it if needed.
	NeedsBacklog bool

	// NeedsPlanner opens the planner task document.
	NeedsPlanner bool
}

// StateOnly returns options for commands that only read sync state.
func StateOnly() Options {
	return Options{NeedsState: true}
}

// Everything returns options for commands that synchronize.
func Everything() Options {
	return Options{NeedsState: true, NeedsBacklog: true, NeedsPlanner: true}
}

// RunFunc is the signature for command run functions.
type RunFunc func(app *App, cmd *cobra.Command, args []string) error

// WithApp wraps a command's run function with shared bootstrap logic.
// Everything opened is closed automatically when the wrapped function
// returns.
func WithApp(opts Options, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Bootstrap(cmd, opts)
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(app, cmd, args)
	}
}

// Bootstrap initializes the App according to the given options.
// Callers are responsible for calling App.Close() when done.
func Bootstrap(cmd *cobra.Command, opts Options) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	ApplyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	app := &App{Config: cfg}

	if opts.NeedsState {
		database, err := db.Open(cfg.StateDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open state database: %w", err)
		}
		if err := database.RequiresMigrationError(); err != nil {
			database.Close()
			return nil, err
		}
		app.DB = database
		app.Store = store.New(database)
	}

	if opts.NeedsBacklog {
		bl, err := backlog.Open(cfg.BacklogDBPath)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to open backlog: %w", err)
		}
		app.Backlog = bl
	}

	if opts.NeedsPlanner {
		app.Planner = planner.Open(cfg.PlannerPath, cfg.PlannerTag)
	}

	return app, nil
}

// ApplyFlags copies the persistent path and strategy flags that were set
// onto cfg. Flags win over every other source.
func ApplyFlags(cmd *cobra.Command, cfg *config.Config) {
	overrides := []struct {
		flag string
		dst  *string
	}{
		{"db", &cfg.StateDBPath},
		{"backlog-db", &cfg.BacklogDBPath},
		{"planner", &cfg.PlannerPath},
		{"tag", &cfg.PlannerTag},
		{"strategy", &cfg.Strategy},
		{"output", &cfg.Output},
	}
	for _, o := range overrides {
		if f := cmd.Flag(o.flag); f != nil {
			if v := f.Value.String(); v != "" {
				*o.dst = v
			}
		}
	}
	if f := cmd.Flag("debug"); f != nil && f.Value.String() == "true" {
		cfg.LogLevel = "debug"
	}
}
