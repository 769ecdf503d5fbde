package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTaskNotFound is returned by collaborators when a task id is unknown.
	ErrTaskNotFound = errors.New("task not found")

	// ErrUnavailable is returned when a collaborator fails its health probe.
	ErrUnavailable = errors.New("collaborator unavailable")
)

// ValidationError reports a task that cannot take part in synchronization.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ValidateBacklogStatus validates a backlog status
func ValidateBacklogStatus(s BacklogStatus) error {
	if _, ok := backlogToPlanner[s]; ok {
		return nil
	}
	return &ValidationError{Field: "status", Reason: fmt.Sprintf("%q is not a backlog status (one of: %s)", s, joinStatuses(BacklogStatuses()))}
}

// ValidatePlannerStatus validates a planner status
func ValidatePlannerStatus(s PlannerStatus) error {
	if _, ok := plannerToBacklog[s]; ok {
		return nil
	}
	return &ValidationError{Field: "status", Reason: fmt.Sprintf("%q is not a planner status (one of: %s)", s, joinStatuses(PlannerStatuses()))}
}

// ValidateStrategy validates a conflict resolution strategy
func ValidateStrategy(s Strategy) error {
	for _, known := range Strategies() {
		if s == known {
			return nil
		}
	}
	return &ValidationError{Field: "strategy", Reason: fmt.Sprintf("%q is not one of: %s", s, joinStatuses(Strategies()))}
}

// ValidateBacklogTask checks the fields required for fingerprinting.
func ValidateBacklogTask(t *BacklogTask) error {
	if strings.TrimSpace(t.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if err := ValidateBacklogStatus(t.Status); err != nil {
		return err
	}
	if t.Priority < 1 || t.Priority > 4 {
		return &ValidationError{Field: "priority", Reason: "must be between 1 and 4"}
	}
	return nil
}

// ValidatePlannerTask checks the fields required for fingerprinting.
func ValidatePlannerTask(t *PlannerTask) error {
	if strings.TrimSpace(t.ID) == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if strings.TrimSpace(t.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if err := ValidatePlannerStatus(t.Status); err != nil {
		return err
	}
	if t.Priority < 1 || t.Priority > 5 {
		return &ValidationError{Field: "priority", Reason: "must be between 1 and 5"}
	}
	return nil
}

func joinStatuses[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
