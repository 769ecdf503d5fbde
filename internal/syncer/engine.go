package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lherron/tasksync/internal/backlog"
	"github.com/lherron/tasksync/internal/domain"
	"github.com/lherron/tasksync/internal/store"
)

// SyncAll runs one full cycle. It never returns an error: per-task failures
// are listed in the result, and only unavailability, a failed bulk read or
// a failed load or save of the mapping set clears Success.
func (e *Engine) SyncAll(ctx context.Context) *domain.SyncResult {
	now := e.now()
	result := &domain.SyncResult{
		RunUUID:   uuid.NewString(),
		Kind:      "sync",
		StartedAt: now,
		Success:   true,
	}

	if !e.preflight(ctx, result, true) {
		e.finish(ctx, result, store.Cycle{Result: result}, nil)
		return result
	}

	backlogTasks, err := e.backlog.ListTasks(ctx, backlog.Filter{})
	if err != nil {
		result.Fail(fmt.Errorf("backlog: list tasks: %w", err))
		e.finish(ctx, result, store.Cycle{Result: result}, nil)
		return result
	}
	plannerTasks, err := e.planner.ListTasks(ctx)
	if err != nil {
		result.Fail(fmt.Errorf("planner: list tasks: %w", err))
		e.finish(ctx, result, store.Cycle{Result: result}, nil)
		return result
	}
	mappings, err := e.repo.LoadMappings(ctx)
	if err != nil {
		result.Fail(fmt.Errorf("load mappings: %w", err))
		e.finish(ctx, result, store.Cycle{Result: result}, nil)
		return result
	}

	c := newCycle(e, now, result, mappings)
	c.setSnapshot(backlogTasks, plannerTasks)
	c.runPass(ctx, domain.SideBacklog)
	c.runPass(ctx, domain.SidePlanner)
	c.sweep()
	c.prune()

	e.finish(ctx, result, c.storeCycle(), c.events)
	return result
}

// Run calls SyncAll every interval until ctx is cancelled, passing each
// result to fn. A cycle in progress always runs to completion; cancellation
// is observed between cycles.
func (e *Engine) Run(ctx context.Context, interval time.Duration, fn func(*domain.SyncResult)) error {
	if interval <= 0 {
		return fmt.Errorf("syncer: interval must be positive")
	}
	cycleCtx := context.WithoutCancel(ctx)
	for {
		r := e.SyncAll(cycleCtx)
		if fn != nil {
			fn(r)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// preflight probes the collaborators a run needs.
func (e *Engine) preflight(ctx context.Context, result *domain.SyncResult, needPlanner bool) bool {
	ok := true
	if !e.backlog.Healthy(ctx) {
		result.Fail(fmt.Errorf("backlog: %w", domain.ErrUnavailable))
		ok = false
	}
	if needPlanner && !e.planner.Healthy(ctx) {
		result.Fail(fmt.Errorf("planner: %w", domain.ErrUnavailable))
		ok = false
	}
	return ok
}

// finish persists the cycle, logs its summary and notifies listeners.
func (e *Engine) finish(ctx context.Context, result *domain.SyncResult, cycle store.Cycle, events []domain.ConflictEvent) {
	result.Duration = e.now().Sub(result.StartedAt)
	if err := e.repo.SaveCycle(ctx, cycle); err != nil {
		result.Fail(fmt.Errorf("persist mappings: %w", err))
	}

	e.opts.Logger.Printf("syncer: %s %s: created=%d updated=%d conflicts=%d skipped=%d tombstoned=%d pruned=%d errors=%d success=%t (%s)",
		result.Kind, result.RunUUID, result.Created, result.Updated, result.Conflicts, result.Skipped,
		result.Tombstoned, result.Pruned, len(result.Errors), result.Success, result.Duration.Round(time.Millisecond))
	for _, msg := range result.Errors {
		e.debugf("%s %s: %s", result.Kind, result.RunUUID, msg)
	}

	if e.opts.Notifier != nil {
		e.opts.Notifier.Notify(ctx, result, events)
	}
}
