// Package merge reconciles a backlog task and its planner counterpart field
// by field against the pair recorded at the last successful sync.
package merge

import (
	"fmt"
	"strconv"
	"time"

	"github.com/lherron/tasksync/internal/domain"
	"github.com/lherron/tasksync/internal/fingerprint"
)

// Fields lists the merged fields in the order they are reported.
var Fields = []string{"title", "description", "status", "priority"}

// Result represents the outcome of a 3-way merge
type Result struct {
	// Backlog and Planner carry the merged shared fields. Every other field
	// comes from the task each was derived from.
	Backlog *domain.BacklogTask
	Planner *domain.PlannerTask

	// Sources records which side supplied each field.
	Sources map[string]domain.Side

	// Conflicts describes fields changed on both sides; they were settled by
	// the later updated_at.
	Conflicts   []string
	HasConflict bool
}

// Merge3Way merges a and b against base. A field changed on one side only
// takes that side's value; a field changed differently on both sides takes
// the side with the later updated_at, the backlog on a tie. Without a base
// the later side supplies every field. A missing updated_at counts as now.
func Merge3Way(base *fingerprint.Pair, a *domain.BacklogTask, b *domain.PlannerTask, now time.Time) *Result {
	result := &Result{
		Backlog: a.Clone(),
		Planner: b.Clone(),
		Sources: make(map[string]domain.Side, len(Fields)),
	}
	later := Later(a.UpdatedAt, b.UpdatedAt, now)

	if base == nil || base.Backlog == nil || base.Planner == nil {
		for _, field := range Fields {
			result.take(field, later)
		}
		return result
	}

	ba, bb := base.Backlog, base.Planner
	result.take("title", mergeField("title", ba.Title, bb.Title, a.Title, b.Title,
		a.Title == b.Title, later, result))
	result.take("description", mergeField("description", ba.Description, bb.Description, a.Description, b.Description,
		a.Description == b.Description, later, result))
	result.take("status", mergeField("status", ba.Status, bb.Status, string(a.Status), string(b.Status),
		domain.ToPlannerStatus(a.Status) == b.Status, later, result))
	result.take("priority", mergeField("priority", strconv.Itoa(ba.Priority), strconv.Itoa(bb.Priority),
		strconv.Itoa(a.Priority), strconv.Itoa(b.Priority),
		domain.ToPlannerPriority(a.Priority) == b.Priority, later, result))
	return result
}

// Later returns the side with the later timestamp. A missing timestamp is
// taken as now; ties go to the backlog.
func Later(a, b *time.Time, now time.Time) domain.Side {
	ta, tb := now, now
	if a != nil {
		ta = *a
	}
	if b != nil {
		tb = *b
	}
	if tb.After(ta) {
		return domain.SidePlanner
	}
	return domain.SideBacklog
}

// mergeField performs 3-way merge on a single field. Each side's value is
// compared with that side's base value, so status and priority never cross
// the lossy mapping between the two spaces.
func mergeField(name, baseA, baseB, curA, curB string, same bool, later domain.Side, result *Result) domain.Side {
	changedA := baseA != curA
	changedB := baseB != curB

	switch {
	case !changedB:
		return domain.SideBacklog
	case !changedA:
		return domain.SidePlanner
	case same:
		// Both made the same change
		return domain.SideBacklog
	}

	result.HasConflict = true
	result.Conflicts = append(result.Conflicts, fmt.Sprintf(
		"Field %s: base=%q/%q, backlog=%q, planner=%q, kept %s",
		name, baseA, baseB, curA, curB, later,
	))
	return later
}

// take copies field from the winning side onto the other one.
func (r *Result) take(field string, from domain.Side) {
	r.Sources[field] = from
	a, b := r.Backlog, r.Planner
	switch field {
	case "title":
		if from == domain.SideBacklog {
			b.Title = a.Title
		} else {
			a.Title = b.Title
		}
	case "description":
		if from == domain.SideBacklog {
			b.Description = a.Description
		} else {
			a.Description = b.Description
		}
	case "status":
		if from == domain.SideBacklog {
			b.Status = domain.ToPlannerStatus(a.Status)
		} else {
			a.Status = domain.ToBacklogStatus(b.Status, a.Status)
		}
	case "priority":
		if from == domain.SideBacklog {
			b.Priority = domain.ToPlannerPriority(a.Priority)
		} else {
			a.Priority = domain.ToBacklogPriority(b.Priority, a.Priority)
		}
	}
}
