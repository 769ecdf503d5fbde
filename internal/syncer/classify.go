package syncer

import (
	"time"

	"github.com/lherron/tasksync/internal/domain"
	"github.com/lherron/tasksync/internal/fingerprint"
)

// Classify decides what changed in a mapped pair since the last sync.
//
// A side has changed when its updated_at is strictly after m.LastSyncAt. A
// side without updated_at counts as changed at now, unless the mapping's
// base snapshot shows its fields are untouched. When both sides changed
// within window of each other the pair is a Conflict; further apart, the
// later change is authoritative. When the fingerprint moved but no
// timestamp did, the base snapshot decides, and a pair that cannot be
// decided is a Conflict.
func Classify(m *domain.TaskMapping, a *domain.BacklogTask, b *domain.PlannerTask, window time.Duration, now time.Time) domain.Classification {
	if fingerprint.Compute(a, b) == m.Fingerprint {
		return domain.NoChange
	}

	base, err := fingerprint.ParseSnapshot(m.Snapshot)
	if err != nil {
		base = nil
	}
	var baseA, baseB *fingerprint.Fields
	if base != nil {
		baseA, baseB = base.Backlog, base.Planner
	}
	curA, curB := fingerprint.BacklogFields(a), fingerprint.PlannerFields(b)

	aAt, aChanged := changedAt(a.UpdatedAt, m.LastSyncAt, now, baseA != nil && baseA.Equal(curA))
	bAt, bChanged := changedAt(b.UpdatedAt, m.LastSyncAt, now, baseB != nil && baseB.Equal(curB))

	switch {
	case aChanged && bChanged:
		gap := aAt.Sub(bAt)
		if gap < 0 {
			gap = -gap
		}
		if gap <= window {
			return domain.Conflict
		}
		if aAt.After(bAt) {
			return domain.BacklogChanged
		}
		return domain.PlannerChanged
	case aChanged:
		return domain.BacklogChanged
	case bChanged:
		return domain.PlannerChanged
	}

	// No timestamp moved past the last sync: clock skew, or an edit that did
	// not bump updated_at.
	if baseA == nil || baseB == nil {
		return domain.Conflict
	}
	diffA, diffB := !baseA.Equal(curA), !baseB.Equal(curB)
	switch {
	case diffA && diffB:
		return domain.Conflict
	case diffA:
		return domain.BacklogChanged
	case diffB:
		return domain.PlannerChanged
	default:
		// Only timestamps differ from the base; nothing to propagate.
		return domain.NoChange
	}
}

func changedAt(ts *time.Time, lastSync, now time.Time, provenUnchanged bool) (time.Time, bool) {
	if ts == nil {
		if provenUnchanged {
			return time.Time{}, false
		}
		return now, true
	}
	return *ts, ts.After(lastSync)
}
