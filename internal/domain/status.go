package domain

// backlogToPlanner is total over backlog statuses. Several backlog states
// collapse onto one planner state, so the reverse lookup is lossy.
var backlogToPlanner = map[BacklogStatus]PlannerStatus{
	BacklogIdea:       PlannerDeferred,
	BacklogDraft:      PlannerPending,
	BacklogOpen:       PlannerPending,
	BacklogInProgress: PlannerInProgress,
	BacklogReview:     PlannerInProgress,
	BacklogBlocked:    PlannerBlocked,
	BacklogCompleted:  PlannerDone,
	BacklogCancelled:  PlannerCancelled,
	BacklogArchived:   PlannerDone,
}

// plannerToBacklog is total over planner statuses.
var plannerToBacklog = map[PlannerStatus]BacklogStatus{
	PlannerPending:    BacklogOpen,
	PlannerInProgress: BacklogInProgress,
	PlannerBlocked:    BacklogBlocked,
	PlannerDone:       BacklogCompleted,
	PlannerDeferred:   BacklogIdea,
	PlannerCancelled:  BacklogCancelled,
}

// BacklogStatuses returns every backlog status in workflow order.
func BacklogStatuses() []BacklogStatus {
	return []BacklogStatus{
		BacklogIdea, BacklogDraft, BacklogOpen, BacklogInProgress, BacklogReview,
		BacklogBlocked, BacklogCompleted, BacklogCancelled, BacklogArchived,
	}
}

// PlannerStatuses returns every planner status in workflow order.
func PlannerStatuses() []PlannerStatus {
	return []PlannerStatus{
		PlannerPending, PlannerInProgress, PlannerBlocked,
		PlannerDone, PlannerDeferred, PlannerCancelled,
	}
}

// ToPlannerStatus maps a backlog status onto the planner's status space.
func ToPlannerStatus(s BacklogStatus) PlannerStatus {
	if p, ok := backlogToPlanner[s]; ok {
		return p
	}
	return PlannerPending
}

// ToBacklogStatus maps a planner status onto the backlog's status space.
// When current already maps to s it is kept, so a backlog "review" task is
// not flattened to "in_progress" by a round trip through the planner.
func ToBacklogStatus(s PlannerStatus, current BacklogStatus) BacklogStatus {
	if current != "" && ToPlannerStatus(current) == s {
		if _, ok := backlogToPlanner[current]; ok {
			return current
		}
	}
	if b, ok := plannerToBacklog[s]; ok {
		return b
	}
	return BacklogOpen
}

// ToPlannerPriority maps backlog priority 1-4 onto planner priority 1-5.
func ToPlannerPriority(p int) int {
	switch {
	case p < 1:
		return 3
	case p > 4:
		return 4
	default:
		return p
	}
}

// ToBacklogPriority maps planner priority 1-5 onto backlog priority 1-4,
// keeping current when it already maps to p.
func ToBacklogPriority(p int, current int) int {
	if current >= 1 && current <= 4 && ToPlannerPriority(current) == p {
		return current
	}
	switch {
	case p < 1:
		return 3
	case p >= 4:
		return 4
	default:
		return p
	}
}

// ProjectToPlanner writes the shared fields of src onto dst, keeping every
// planner-only field of dst. A nil dst produces a fresh planner task.
func ProjectToPlanner(src *BacklogTask, dst *PlannerTask) *PlannerTask {
	out := dst.Clone()
	if out == nil {
		out = &PlannerTask{}
	}
	out.Title = src.Title
	out.Description = src.Description
	out.Status = ToPlannerStatus(src.Status)
	out.Priority = ToPlannerPriority(src.Priority)
	return out
}

// ProjectToBacklog writes the shared fields of src onto dst, keeping every
// backlog-only field of dst. A nil dst produces a fresh backlog task.
func ProjectToBacklog(src *PlannerTask, dst *BacklogTask) *BacklogTask {
	out := dst.Clone()
	if out == nil {
		out = &BacklogTask{}
	}
	out.Title = src.Title
	out.Description = src.Description
	out.Status = ToBacklogStatus(src.Status, out.Status)
	out.Priority = ToBacklogPriority(src.Priority, out.Priority)
	return out
}
