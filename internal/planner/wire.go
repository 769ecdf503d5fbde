package planner

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lherron/tasksync/internal/domain"
)

// Priority names used by task documents that store priority as a string.
var priorityNames = map[string]int{
	"critical": 1,
	"high":     2,
	"medium":   3,
	"low":      4,
	"lowest":   5,
}

const defaultPriority = 3

// sourceKey holds the back-reference tasksync stamps on tasks it creates.
const sourceKey = "tasksyncSource"

// layout records where the task list lives so a rewrite keeps the shape of
// the document it read.
type layout int

const (
	layoutTagged layout = iota // {"<tag>": {"tasks": [...]}}
	layoutLegacy               // {"tasks": [...]}
	layoutArray                // [...]
)

// locateTasks finds the task array for tag in a parsed document.
func locateTasks(root gjson.Result, tag string) (gjson.Result, layout) {
	if root.IsArray() {
		return root, layoutArray
	}
	if tasks := root.Get("tasks"); tasks.IsArray() {
		return tasks, layoutLegacy
	}
	var found gjson.Result
	root.ForEach(func(key, value gjson.Result) bool {
		if key.String() == tag {
			found = value.Get("tasks")
			return false
		}
		return true
	})
	return found, layoutTagged
}

// parseTask reads one task object. Status spellings such as "in-progress"
// and string priorities are normalized.
func parseTask(r gjson.Result) (domain.PlannerTask, error) {
	t := domain.PlannerTask{
		ID:           r.Get("id").String(),
		Title:        r.Get("title").String(),
		Description:  r.Get("description").String(),
		Details:      r.Get("details").String(),
		TestStrategy: r.Get("testStrategy").String(),
		Status:       normalizeStatus(r.Get("status").String()),
		Priority:     parsePriority(r.Get("priority")),
		Source:       r.Get(sourceKey).String(),
	}

	r.Get("dependencies").ForEach(func(_, dep gjson.Result) bool {
		t.Dependencies = append(t.Dependencies, dep.String())
		return true
	})
	if v := r.Get("estimatedEffort"); v.Exists() && v.Type != gjson.Null {
		f := v.Float()
		t.EstimatedEffort = &f
	}
	if v := r.Get("complexity"); v.Exists() && v.Type != gjson.Null {
		n := int(v.Int())
		t.Complexity = &n
	}
	if v := r.Get("updatedAt"); v.Exists() && v.String() != "" {
		ts, err := time.Parse(time.RFC3339Nano, v.String())
		if err != nil {
			return t, fmt.Errorf("planner task %s: invalid updatedAt %q: %w", t.ID, v.String(), err)
		}
		t.UpdatedAt = &ts
	}
	return t, nil
}

func normalizeStatus(s string) domain.PlannerStatus {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return domain.PlannerPending
	}
	return domain.PlannerStatus(strings.ReplaceAll(s, "-", "_"))
}

func parsePriority(v gjson.Result) int {
	switch v.Type {
	case gjson.Number:
		return int(v.Int())
	case gjson.String:
		name := strings.ToLower(strings.TrimSpace(v.String()))
		if p, ok := priorityNames[name]; ok {
			return p
		}
		if p, err := strconv.Atoi(name); err == nil {
			return p
		}
	}
	return defaultPriority
}

// encodeTask writes the known fields of t over raw, keeping any keys the
// planner stores that tasksync does not model (subtasks, custom fields).
func encodeTask(t domain.PlannerTask, raw map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	if raw == nil {
		raw = make(map[string]json.RawMessage)
	}

	set := func(key string, v interface{}) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", key, err)
		}
		raw[key] = data
		return nil
	}
	setOrDelete := func(key string, v interface{}, empty bool) error {
		if empty {
			delete(raw, key)
			return nil
		}
		return set(key, v)
	}

	if err := set("id", nativeID(t.ID)); err != nil {
		return nil, err
	}
	if err := set("title", t.Title); err != nil {
		return nil, err
	}
	if err := set("description", t.Description); err != nil {
		return nil, err
	}
	if err := set("status", string(t.Status)); err != nil {
		return nil, err
	}

	var priority interface{} = t.Priority
	if existing, ok := raw["priority"]; ok && gjson.ParseBytes(existing).Type == gjson.String {
		for name, p := range priorityNames {
			if p == t.Priority {
				priority = name
				break
			}
		}
	}
	if err := set("priority", priority); err != nil {
		return nil, err
	}

	if err := setOrDelete("details", t.Details, t.Details == ""); err != nil {
		return nil, err
	}
	if err := setOrDelete("testStrategy", t.TestStrategy, t.TestStrategy == ""); err != nil {
		return nil, err
	}
	deps := make([]interface{}, len(t.Dependencies))
	for i, dep := range t.Dependencies {
		deps[i] = nativeID(dep)
	}
	if err := set("dependencies", deps); err != nil {
		return nil, err
	}
	if err := setOrDelete("estimatedEffort", t.EstimatedEffort, t.EstimatedEffort == nil); err != nil {
		return nil, err
	}
	if err := setOrDelete("complexity", t.Complexity, t.Complexity == nil); err != nil {
		return nil, err
	}
	if t.Source != "" {
		if err := set(sourceKey, t.Source); err != nil {
			return nil, err
		}
	}
	var updated interface{}
	if t.UpdatedAt != nil {
		updated = t.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	if err := setOrDelete("updatedAt", updated, t.UpdatedAt == nil); err != nil {
		return nil, err
	}
	return raw, nil
}

// nativeID keeps numeric ids numeric so the planner's own tooling keeps
// working on the rewritten document.
func nativeID(s string) interface{} {
	if n, err := strconv.Atoi(s); err == nil && strconv.Itoa(n) == s {
		return n
	}
	return s
}
