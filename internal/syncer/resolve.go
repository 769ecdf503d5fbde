package syncer

import (
	"fmt"
	"time"

	"github.com/lherron/tasksync/internal/domain"
	"github.com/lherron/tasksync/internal/fingerprint"
	"github.com/lherron/tasksync/internal/merge"
)

// Target says where a resolved pair is written.
type Target int

const (
	WriteNone Target = iota
	WriteBacklog
	WritePlanner
	WriteBoth
	Defer
)

func (t Target) String() string {
	switch t {
	case WriteNone:
		return "none"
	case WriteBacklog:
		return "write_backlog"
	case WritePlanner:
		return "write_planner"
	case WriteBoth:
		return "write_both"
	case Defer:
		return "deferred"
	default:
		return fmt.Sprintf("target(%d)", int(t))
	}
}

// Decision is the outcome of resolving a conflict. Backlog and Planner hold
// the states to write for the targeted sides.
type Decision struct {
	Target  Target
	Backlog *domain.BacklogTask
	Planner *domain.PlannerTask
	Reason  string
}

// Resolve settles a conflicting pair with strategy. A missing updated_at is
// taken as now, as in Classify. The winning side's shared fields are
// projected onto the losing side's existing task so the loser keeps its own
// metadata.
func Resolve(strategy domain.Strategy, m *domain.TaskMapping, a *domain.BacklogTask, b *domain.PlannerTask, now time.Time) Decision {
	a, b = a.Clone(), b.Clone()
	if a.UpdatedAt == nil {
		a.UpdatedAt = &now
	}
	if b.UpdatedAt == nil {
		b.UpdatedAt = &now
	}

	switch strategy {
	case domain.StrategyBacklogWins:
		return backlogWins(a, b, "backlog wins")
	case domain.StrategyPlannerWins:
		return plannerWins(a, b, "planner wins")
	case domain.StrategyLatestTimestamp:
		if merge.Later(a.UpdatedAt, b.UpdatedAt, now) == domain.SidePlanner {
			return plannerWins(a, b, "planner updated later")
		}
		return backlogWins(a, b, "backlog updated later or at the same time")
	case domain.StrategyIntelligentMerge:
		return intelligentMerge(m, a, b, now)
	default:
		return Decision{Target: Defer, Reason: "deferred to manual review"}
	}
}

func backlogWins(a *domain.BacklogTask, b *domain.PlannerTask, reason string) Decision {
	return Decision{Target: WritePlanner, Planner: domain.ProjectToPlanner(a, b), Reason: reason}
}

func plannerWins(a *domain.BacklogTask, b *domain.PlannerTask, reason string) Decision {
	return Decision{Target: WriteBacklog, Backlog: domain.ProjectToBacklog(b, a), Reason: reason}
}

// intelligentMerge merges field by field against the mapping's base snapshot
// and writes only the sides whose shared fields moved.
func intelligentMerge(m *domain.TaskMapping, a *domain.BacklogTask, b *domain.PlannerTask, now time.Time) Decision {
	base, err := fingerprint.ParseSnapshot(m.Snapshot)
	if err != nil {
		base = nil
	}
	r := merge.Merge3Way(base, a, b, now)

	d := Decision{Reason: "field-level merge"}
	if len(r.Conflicts) > 0 {
		d.Reason = fmt.Sprintf("field-level merge, %d field(s) settled by timestamp", len(r.Conflicts))
	}
	writeA := !fingerprint.BacklogFields(r.Backlog).Equal(fingerprint.BacklogFields(a))
	writeB := !fingerprint.PlannerFields(r.Planner).Equal(fingerprint.PlannerFields(b))
	switch {
	case writeA && writeB:
		d.Target, d.Backlog, d.Planner = WriteBoth, r.Backlog, r.Planner
	case writeA:
		d.Target, d.Backlog = WriteBacklog, r.Backlog
	case writeB:
		d.Target, d.Planner = WritePlanner, r.Planner
	default:
		d.Target = WriteNone
		d.Reason = "both sides already agree"
	}
	return d
}
