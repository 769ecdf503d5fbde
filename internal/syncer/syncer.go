// Package syncer keeps the backlog and the planner consistent. Each cycle
// reads both sides once, runs a backlog-to-planner pass and then a
// planner-to-backlog pass over that frozen snapshot, and persists the
// resulting mapping set in one transaction.
package syncer

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/lherron/tasksync/internal/backlog"
	"github.com/lherron/tasksync/internal/domain"
	"github.com/lherron/tasksync/internal/store"
)

const (
	DefaultConflictWindow = 5 * time.Minute
	DefaultProject        = "inbox"
)

// Backlog is the project-management side.
type Backlog interface {
	Healthy(ctx context.Context) bool
	ListTasks(ctx context.Context, f backlog.Filter) ([]domain.BacklogTask, error)
	CreateTask(ctx context.Context, t domain.BacklogTask) (domain.BacklogTask, error)
	UpdateTask(ctx context.Context, t domain.BacklogTask) error
}

// Planner is the AI task-decomposition side.
type Planner interface {
	Healthy(ctx context.Context) bool
	ListTasks(ctx context.Context) ([]domain.PlannerTask, error)
	CreateTask(ctx context.Context, t domain.PlannerTask) (domain.PlannerTask, error)
	UpdateTask(ctx context.Context, t domain.PlannerTask) error
}

// MappingRepository loads and atomically saves the mapping set.
type MappingRepository interface {
	LoadMappings(ctx context.Context) ([]*domain.TaskMapping, error)
	SaveCycle(ctx context.Context, c store.Cycle) error
}

// Notifier is told about every finished cycle. It must not block for long.
type Notifier interface {
	Notify(ctx context.Context, r *domain.SyncResult, conflicts []domain.ConflictEvent)
}

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	Strategy       domain.Strategy // default latest_timestamp
	ConflictWindow time.Duration   // default 5m
	Jobs           int             // concurrent writes per pass, default 1
	TombstoneTTL   time.Duration   // zero keeps tombstones forever
	DefaultProject string          // backlog project for planner-originated tasks

	Logger   *log.Logger // default log.Default()
	Debug    bool        // log every per-task decision
	Notifier Notifier
	Progress io.Writer // progress bar for writes, when a terminal
	Clock    func() time.Time
}

// Engine runs sync cycles and imports.
type Engine struct {
	backlog Backlog
	planner Planner
	repo    MappingRepository
	opts    Options
}

// New creates an Engine.
func New(bl Backlog, pl Planner, repo MappingRepository, opts Options) (*Engine, error) {
	if bl == nil || pl == nil || repo == nil {
		return nil, fmt.Errorf("syncer: backlog, planner and mapping repository are required")
	}
	if opts.Strategy == "" {
		opts.Strategy = domain.StrategyLatestTimestamp
	}
	if err := domain.ValidateStrategy(opts.Strategy); err != nil {
		return nil, err
	}
	if opts.ConflictWindow == 0 {
		opts.ConflictWindow = DefaultConflictWindow
	}
	if opts.ConflictWindow < 0 {
		return nil, fmt.Errorf("syncer: conflict window must not be negative")
	}
	if opts.Jobs <= 0 {
		opts.Jobs = 1
	}
	if opts.DefaultProject == "" {
		opts.DefaultProject = DefaultProject
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{backlog: bl, planner: pl, repo: repo, opts: opts}, nil
}

// Strategy returns the configured conflict strategy.
func (e *Engine) Strategy() domain.Strategy {
	return e.opts.Strategy
}

func (e *Engine) now() time.Time {
	return e.opts.Clock().UTC()
}

func (e *Engine) debugf(format string, args ...interface{}) {
	if e.opts.Debug {
		e.opts.Logger.Printf("syncer: "+format, args...)
	}
}
