package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Side identifies one of the two synchronized systems.
type Side string

const (
	SideBacklog Side = "backlog"
	SidePlanner Side = "planner"
)

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == SideBacklog {
		return SidePlanner
	}
	return SideBacklog
}

// BacklogStatus is a task status in the project-management backlog.
type BacklogStatus string

const (
	BacklogIdea       BacklogStatus = "idea"
	BacklogDraft      BacklogStatus = "draft"
	BacklogOpen       BacklogStatus = "open"
	BacklogInProgress BacklogStatus = "in_progress"
	BacklogReview     BacklogStatus = "review"
	BacklogBlocked    BacklogStatus = "blocked"
	BacklogCompleted  BacklogStatus = "completed"
	BacklogCancelled  BacklogStatus = "cancelled"
	BacklogArchived   BacklogStatus = "archived"
)

// PlannerStatus is a task status in the planner's task document.
type PlannerStatus string

const (
	PlannerPending    PlannerStatus = "pending"
	PlannerInProgress PlannerStatus = "in_progress"
	PlannerBlocked    PlannerStatus = "blocked"
	PlannerDone       PlannerStatus = "done"
	PlannerDeferred   PlannerStatus = "deferred"
	PlannerCancelled  PlannerStatus = "cancelled"
)

// Strategy selects how a conflict between both sides is resolved.
type Strategy string

const (
	StrategyBacklogWins      Strategy = "backlog_wins"
	StrategyPlannerWins      Strategy = "planner_wins"
	StrategyLatestTimestamp  Strategy = "latest_timestamp"
	StrategyIntelligentMerge Strategy = "intelligent_merge"
	StrategyManualReview     Strategy = "manual_review"
)

// Strategies lists every supported strategy.
func Strategies() []Strategy {
	return []Strategy{
		StrategyBacklogWins,
		StrategyPlannerWins,
		StrategyLatestTimestamp,
		StrategyIntelligentMerge,
		StrategyManualReview,
	}
}

// Classification is the outcome of comparing a mapping against both sides.
type Classification int

const (
	NoChange Classification = iota
	BacklogChanged
	PlannerChanged
	Conflict
)

func (c Classification) String() string {
	switch c {
	case NoChange:
		return "no_change"
	case BacklogChanged:
		return "backlog_changed"
	case PlannerChanged:
		return "planner_changed"
	case Conflict:
		return "conflict"
	default:
		return fmt.Sprintf("classification(%d)", int(c))
	}
}

// ChangedSide returns the side reported as changed, or "" for NoChange and Conflict.
func (c Classification) ChangedSide() Side {
	switch c {
	case BacklogChanged:
		return SideBacklog
	case PlannerChanged:
		return SidePlanner
	default:
		return ""
	}
}

// BacklogTask is a task as seen in the backlog (System A).
type BacklogTask struct {
	ID          int64         `json:"id" yaml:"id"`
	Project     string        `json:"project" yaml:"project"`
	Title       string        `json:"title" yaml:"title"`
	Description string        `json:"description" yaml:"description"`
	Status      BacklogStatus `json:"status" yaml:"status"`
	Priority    int           `json:"priority" yaml:"priority"` // 1-4, 1 is highest
	Labels      []string      `json:"labels,omitempty" yaml:"labels,omitempty"`
	UpdatedAt   *time.Time    `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// Key returns the backlog task id as a string.
func (t *BacklogTask) Key() string {
	return strconv.FormatInt(t.ID, 10)
}

// Clone returns a deep copy.
func (t *BacklogTask) Clone() *BacklogTask {
	if t == nil {
		return nil
	}
	c := *t
	if t.Labels != nil {
		c.Labels = append([]string(nil), t.Labels...)
	}
	if t.UpdatedAt != nil {
		ts := *t.UpdatedAt
		c.UpdatedAt = &ts
	}
	return &c
}

// PlannerLabel is the label stamped on a backlog task created for the
// planner task with the given id.
func PlannerLabel(plannerID string) string {
	return plannerLabelPrefix + plannerID
}

// OriginPlannerID returns the planner task this backlog task was created
// for, read from its PlannerLabel.
func (t *BacklogTask) OriginPlannerID() (string, bool) {
	for _, l := range t.Labels {
		if id, ok := strings.CutPrefix(l, plannerLabelPrefix); ok && id != "" {
			return id, true
		}
	}
	return "", false
}

// MarkOrigin adds the PlannerLabel for plannerID unless one is present.
func (t *BacklogTask) MarkOrigin(plannerID string) {
	if _, ok := t.OriginPlannerID(); ok {
		return
	}
	t.Labels = append(t.Labels, PlannerLabel(plannerID))
}

// BacklogSource is the Source value of a planner task created for the
// backlog task with the given id.
func BacklogSource(backlogID int64) string {
	return backlogSourcePrefix + strconv.FormatInt(backlogID, 10)
}

// OriginBacklogID returns the backlog task this planner task was created
// for, read from its Source.
func (t *PlannerTask) OriginBacklogID() (int64, bool) {
	rest, ok := strings.CutPrefix(t.Source, backlogSourcePrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

const (
	plannerLabelPrefix  = "planner:"
	backlogSourcePrefix = "backlog:"
)

// PlannerTask is a task as seen in the planner's task document (System B).
type PlannerTask struct {
	ID              string        `json:"id" yaml:"id"`
	Title           string        `json:"title" yaml:"title"`
	Description     string        `json:"description" yaml:"description"`
	Details         string        `json:"details,omitempty" yaml:"details,omitempty"`
	TestStrategy    string        `json:"testStrategy,omitempty" yaml:"test_strategy,omitempty"`
	Status          PlannerStatus `json:"status" yaml:"status"`
	Priority        int           `json:"priority" yaml:"priority"` // 1-5, 1 is highest
	Dependencies    []string      `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	EstimatedEffort *float64      `json:"estimatedEffort,omitempty" yaml:"estimated_effort,omitempty"`
	Complexity      *int          `json:"complexity,omitempty" yaml:"complexity,omitempty"`
	UpdatedAt       *time.Time    `json:"updatedAt,omitempty" yaml:"updated_at,omitempty"`

	// Source names the backlog task this one was created for, if tasksync
	// created it. Stored under the "tasksyncSource" key.
	Source string `json:"tasksyncSource,omitempty" yaml:"source,omitempty"`
}

// Clone returns a deep copy.
func (t *PlannerTask) Clone() *PlannerTask {
	if t == nil {
		return nil
	}
	c := *t
	if t.Dependencies != nil {
		c.Dependencies = append([]string(nil), t.Dependencies...)
	}
	if t.EstimatedEffort != nil {
		v := *t.EstimatedEffort
		c.EstimatedEffort = &v
	}
	if t.Complexity != nil {
		v := *t.Complexity
		c.Complexity = &v
	}
	if t.UpdatedAt != nil {
		ts := *t.UpdatedAt
		c.UpdatedAt = &ts
	}
	return &c
}

// TaskMapping links a backlog task to its planner counterpart.
type TaskMapping struct {
	UUID          string     `json:"uuid"`
	ID            string     `json:"id,omitempty"` // friendly id, assigned on first save
	BacklogID     *int64     `json:"backlog_id,omitempty"`
	PlannerID     *string    `json:"planner_id,omitempty"`
	Fingerprint   string     `json:"fingerprint"`
	Snapshot      string     `json:"snapshot,omitempty"` // canonical JSON of the last synced pair
	LastSyncAt    time.Time  `json:"last_sync_at"`
	ConflictCount int        `json:"conflict_count"`
	TombstonedAt  *time.Time `json:"tombstoned_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Key returns the composite key of both native ids.
func (m *TaskMapping) Key() string {
	return MappingKey(m.BacklogID, m.PlannerID)
}

// Tombstoned reports whether the mapping is retained only as a tombstone.
func (m *TaskMapping) Tombstoned() bool {
	return m.TombstonedAt != nil
}

// MappingKey builds the composite "<backlog_id>/<planner_id>" key.
// A missing side is rendered as "-".
func MappingKey(backlogID *int64, plannerID *string) string {
	a, b := "-", "-"
	if backlogID != nil {
		a = strconv.FormatInt(*backlogID, 10)
	}
	if plannerID != nil {
		b = *plannerID
	}
	return a + "/" + b
}

// ConflictRecord is a durable conflict-log entry awaiting manual review.
type ConflictRecord struct {
	UUID        string     `json:"uuid"`
	ID          string     `json:"id,omitempty"` // friendly id, assigned on insert
	MappingUUID string     `json:"mapping_uuid"`
	Strategy    Strategy   `json:"strategy"`
	Backlog     string     `json:"backlog"` // JSON snapshot
	Planner     string     `json:"planner"` // JSON snapshot
	DetectedAt  time.Time  `json:"detected_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// ConflictEvent describes one conflict classification and how it was settled.
type ConflictEvent struct {
	MappingUUID string    `json:"mapping_uuid"`
	MappingID   string    `json:"mapping_id,omitempty"`
	Key         string    `json:"key"`
	Strategy    Strategy  `json:"strategy"`
	Outcome     string    `json:"outcome"` // write_backlog, write_planner, write_both, deferred
	DetectedAt  time.Time `json:"detected_at"`
}

// SyncResult summarizes one orchestration cycle or import.
type SyncResult struct {
	RunUUID    string        `json:"run_uuid"`
	Kind       string        `json:"kind"` // sync or import
	StartedAt  time.Time     `json:"started_at"`
	Created    int           `json:"created"`
	Updated    int           `json:"updated"`
	Conflicts  int           `json:"conflicts"`
	Skipped    int           `json:"skipped"`
	Tombstoned int           `json:"tombstoned"`
	Pruned     int           `json:"pruned"`
	Errors     []string      `json:"errors"`
	Duration   time.Duration `json:"duration"`
	Success    bool          `json:"success"`
}

// AddError records a per-task error without failing the run.
func (r *SyncResult) AddError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Fail marks the run as aborted by an unrecoverable error.
func (r *SyncResult) Fail(err error) {
	r.Success = false
	r.Errors = append(r.Errors, err.Error())
}

// Event represents an entry in the sync event log.
type Event struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	ResourceType string    `json:"resource_type"` // mapping, conflict, run
	ResourceUUID *string   `json:"resource_uuid,omitempty"`
	EventType    string    `json:"event_type"`
	Payload      *string   `json:"payload,omitempty"` // JSON
}
