package syncer

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lherron/tasksync/internal/backlog"
	"github.com/lherron/tasksync/internal/domain"
	"github.com/lherron/tasksync/internal/store"
)

// ImportFromAnalysis creates each analysis task in the backlog under project
// and links it to its analysis id. Ids that are already mapped are skipped,
// so re-importing the same analysis is a no-op. An unmapped backlog task
// already labelled for an id is linked instead of created again. Per-task
// failures are listed in the result and never stop the batch.
func (e *Engine) ImportFromAnalysis(ctx context.Context, tasks []domain.PlannerTask, project string) *domain.SyncResult {
	now := e.now()
	result := &domain.SyncResult{
		RunUUID:   uuid.NewString(),
		Kind:      "import",
		StartedAt: now,
		Success:   true,
	}
	if project == "" {
		project = e.opts.DefaultProject
	}

	if !e.preflight(ctx, result, false) {
		e.finish(ctx, result, store.Cycle{Result: result}, nil)
		return result
	}
	mappings, err := e.repo.LoadMappings(ctx)
	if err != nil {
		result.Fail(fmt.Errorf("load mappings: %w", err))
		e.finish(ctx, result, store.Cycle{Result: result}, nil)
		return result
	}

	backlogTasks, err := e.backlog.ListTasks(ctx, backlog.Filter{})
	if err != nil {
		result.Fail(fmt.Errorf("backlog: list tasks: %w", err))
		e.finish(ctx, result, store.Cycle{Result: result}, nil)
		return result
	}

	c := newCycle(e, now, result, mappings)
	c.setSnapshot(backlogTasks, nil)
	seen := make(map[string]bool, len(tasks))
	var actions []*action
	for i := range tasks {
		b := tasks[i].Clone()
		label := fmt.Sprintf("planner task %s", b.ID)
		if err := domain.ValidatePlannerTask(b); err != nil {
			result.AddError("%s: validate: %v", label, err)
			continue
		}
		if seen[b.ID] || c.livePlanner[b.ID] != nil {
			result.Skipped++
			continue
		}
		seen[b.ID] = true

		if id, ok := c.labelled[b.ID]; ok && c.liveBacklog[id] == nil {
			m := c.addMapping(c.backlog[id], b)
			result.Skipped++
			e.debugf("%s: linked existing backlog task %d, mapping %s", label, id, m.Key())
			continue
		}

		dest := domain.ProjectToBacklog(b, &domain.BacklogTask{Project: project})
		dest.MarkOrigin(b.ID)
		dest.UpdatedAt = c.stamp()
		actions = append(actions, &action{
			kind: actCreate, source: domain.SidePlanner, label: label,
			planner: b, writeBacklog: dest, createBacklog: true,
		})
	}

	if len(actions) > 0 {
		op := bulkOperation(e)
		res := op.Execute(len(actions), func(i int) error {
			return c.execute(ctx, actions[i])
		})
		e.debugf("import: %d creates, %d succeeded, %d failed", res.TotalItems, res.Succeeded, res.Failed)
		for _, act := range actions {
			if act.backlogErr != nil {
				result.AddError("%s: import: %v", act.label, act.backlogErr)
				continue
			}
			c.addMapping(act.wroteBacklog, act.planner)
			result.Created++
		}
	}

	e.finish(ctx, result, c.storeCycle(), nil)
	return result
}
