package domain

import (
	"testing"
)

func TestStatusTableIsTotal(t *testing.T) {
	for _, s := range BacklogStatuses() {
		p := ToPlannerStatus(s)
		if err := ValidatePlannerStatus(p); err != nil {
			t.Errorf("backlog %q maps to invalid planner status %q", s, p)
		}
	}
	for _, s := range PlannerStatuses() {
		b := ToBacklogStatus(s, "")
		if err := ValidateBacklogStatus(b); err != nil {
			t.Errorf("planner %q maps to invalid backlog status %q", s, b)
		}
		if back := ToPlannerStatus(b); back != s {
			t.Errorf("planner %q -> backlog %q -> planner %q, want round trip", s, b, back)
		}
	}
}

func TestToBacklogStatus_KeepsEquivalentCurrent(t *testing.T) {
	tests := []struct {
		name    string
		planner PlannerStatus
		current BacklogStatus
		want    BacklogStatus
	}{
		{name: "review collapses to in_progress", planner: PlannerInProgress, current: BacklogReview, want: BacklogReview},
		{name: "draft stays pending", planner: PlannerPending, current: BacklogDraft, want: BacklogDraft},
		{name: "archived stays done", planner: PlannerDone, current: BacklogArchived, want: BacklogArchived},
		{name: "real change overrides", planner: PlannerDone, current: BacklogReview, want: BacklogCompleted},
		{name: "no current", planner: PlannerPending, current: "", want: BacklogOpen},
		{name: "unknown current", planner: PlannerBlocked, current: "bogus", want: BacklogBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToBacklogStatus(tt.planner, tt.current); got != tt.want {
				t.Errorf("ToBacklogStatus(%q, %q) = %q, want %q", tt.planner, tt.current, got, tt.want)
			}
		})
	}
}

func TestPriorityMapping(t *testing.T) {
	for p := 1; p <= 4; p++ {
		if got := ToPlannerPriority(p); got != p {
			t.Errorf("ToPlannerPriority(%d) = %d", p, got)
		}
		if got := ToBacklogPriority(ToPlannerPriority(p), 0); got != p {
			t.Errorf("round trip of %d = %d", p, got)
		}
	}
	if got := ToBacklogPriority(5, 0); got != 4 {
		t.Errorf("ToBacklogPriority(5) = %d, want 4", got)
	}
	if got := ToBacklogPriority(2, 4); got != 2 {
		t.Errorf("ToBacklogPriority(2, 4) = %d, want 2", got)
	}
}

func TestProjectToPlanner_PreservesPlannerMetadata(t *testing.T) {
	complexity := 8
	effort := 3.5
	dst := &PlannerTask{
		ID:              "7",
		Title:           "old",
		Status:          PlannerPending,
		Priority:        3,
		Details:         "step by step",
		Complexity:      &complexity,
		EstimatedEffort: &effort,
		Dependencies:    []string{"3"},
	}
	src := &BacklogTask{ID: 1, Title: "new", Description: "desc", Status: BacklogReview, Priority: 1}

	out := ProjectToPlanner(src, dst)
	if out.ID != "7" || out.Title != "new" || out.Description != "desc" {
		t.Fatalf("unexpected projection: %+v", out)
	}
	if out.Status != PlannerInProgress || out.Priority != 1 {
		t.Errorf("status/priority = %q/%d", out.Status, out.Priority)
	}
	if out.Complexity == nil || *out.Complexity != 8 || out.EstimatedEffort == nil || out.Details != "step by step" {
		t.Errorf("planner-only metadata lost: %+v", out)
	}
	out.Dependencies[0] = "changed"
	if dst.Dependencies[0] != "3" {
		t.Error("projection must not alias the destination")
	}
}

func TestProjectToBacklog_PreservesBacklogFields(t *testing.T) {
	dst := &BacklogTask{ID: 4, Project: "inbox", Labels: []string{"api"}, Status: BacklogReview, Priority: 2}
	src := &PlannerTask{ID: "t1", Title: "renamed", Status: PlannerInProgress, Priority: 2}

	out := ProjectToBacklog(src, dst)
	if out.ID != 4 || out.Project != "inbox" || len(out.Labels) != 1 {
		t.Errorf("backlog-only fields lost: %+v", out)
	}
	if out.Title != "renamed" || out.Status != BacklogReview {
		t.Errorf("unexpected projection: %+v", out)
	}
}

func TestMappingKey(t *testing.T) {
	a := int64(12)
	b := "t1"
	if got := MappingKey(&a, &b); got != "12/t1" {
		t.Errorf("MappingKey = %q", got)
	}
	if got := MappingKey(nil, &b); got != "-/t1" {
		t.Errorf("MappingKey = %q", got)
	}
}

func TestOriginReferences(t *testing.T) {
	a := &BacklogTask{ID: 3, Labels: []string{"docs"}}
	if _, ok := a.OriginPlannerID(); ok {
		t.Error("unmarked task reported an origin")
	}
	a.MarkOrigin("1.2")
	a.MarkOrigin("9")
	if id, ok := a.OriginPlannerID(); !ok || id != "1.2" {
		t.Errorf("OriginPlannerID = %q, %v", id, ok)
	}
	if len(a.Labels) != 2 || a.Labels[1] != "planner:1.2" {
		t.Errorf("labels = %v", a.Labels)
	}

	tests := []struct {
		source string
		want   int64
		ok     bool
	}{
		{BacklogSource(42), 42, true},
		{"", 0, false},
		{"backlog:", 0, false},
		{"backlog:x", 0, false},
		{"backlog:-1", 0, false},
		{"planner:4", 0, false},
	}
	for _, tt := range tests {
		b := &PlannerTask{Source: tt.source}
		id, ok := b.OriginBacklogID()
		if id != tt.want || ok != tt.ok {
			t.Errorf("OriginBacklogID(%q) = %d, %v; want %d, %v", tt.source, id, ok, tt.want, tt.ok)
		}
	}
}
