package planner

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/lherron/tasksync/internal/domain"
)

// LoadAnalysis reads a requirements-analysis task list produced by the AI
// planner, as JSON (tagged, legacy or a bare array) or YAML. Subtasks are
// flattened into tasks with ids "<parent>.<sub>". An empty tag selects
// DefaultTag, or the only tag when the document has exactly one.
func LoadAnalysis(path, tag string) ([]domain.PlannerTask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis: %w", err)
	}

	var tasks []domain.PlannerTask
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		tasks, err = parseAnalysisYAML(data)
	default:
		tasks, err = parseAnalysisJSON(data, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	for i := range tasks {
		if tasks[i].Status == "" {
			tasks[i].Status = domain.PlannerPending
		}
		if tasks[i].Priority == 0 {
			tasks[i].Priority = defaultPriority
		}
	}
	return tasks, nil
}

func parseAnalysisJSON(data []byte, tag string) ([]domain.PlannerTask, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("analysis is not valid JSON")
	}
	root := gjson.ParseBytes(data)

	if tag == "" {
		tag = DefaultTag
		var tags []string
		root.ForEach(func(key, value gjson.Result) bool {
			if value.Get("tasks").IsArray() {
				tags = append(tags, key.String())
			}
			return true
		})
		if len(tags) == 1 {
			tag = tags[0]
		}
	}

	list, _ := locateTasks(root, tag)
	if !list.IsArray() {
		return nil, fmt.Errorf("no tasks found for tag %q", tag)
	}

	var out []domain.PlannerTask
	var parseErr error
	list.ForEach(func(_, r gjson.Result) bool {
		t, err := parseTask(r)
		if err != nil {
			parseErr = err
			return false
		}
		out = append(out, t)

		r.Get("subtasks").ForEach(func(_, sr gjson.Result) bool {
			sub, err := parseTask(sr)
			if err != nil {
				parseErr = err
				return false
			}
			out = append(out, flattenSubtask(t, sub, sr.Get("priority").Exists()))
			return true
		})
		return parseErr == nil
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}

// flattenSubtask qualifies a subtask's id and its sibling dependencies with
// the parent id. A subtask without its own priority inherits the parent's.
func flattenSubtask(parent, sub domain.PlannerTask, hasPriority bool) domain.PlannerTask {
	sub.ID = parent.ID + "." + sub.ID
	if !hasPriority {
		sub.Priority = parent.Priority
	}
	for i, dep := range sub.Dependencies {
		if !strings.Contains(dep, ".") {
			sub.Dependencies[i] = parent.ID + "." + dep
		}
	}
	return sub
}

type analysisYAML struct {
	Tasks []yamlTask `yaml:"tasks"`
}

type yamlTask struct {
	ID              scalar       `yaml:"id"`
	Title           string       `yaml:"title"`
	Description     string       `yaml:"description"`
	Details         string       `yaml:"details"`
	TestStrategy    string       `yaml:"test_strategy"`
	Status          string       `yaml:"status"`
	Priority        yamlPriority `yaml:"priority"`
	Dependencies    []scalar     `yaml:"dependencies"`
	EstimatedEffort *float64     `yaml:"estimated_effort"`
	Complexity      *int         `yaml:"complexity"`
	Subtasks        []yamlTask   `yaml:"subtasks"`
}

// scalar accepts any YAML scalar as a string, so "id: 3" and "id: '3'" agree.
type scalar string

func (s *scalar) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar", value.Line)
	}
	*s = scalar(value.Value)
	return nil
}

// yamlPriority accepts a number or a priority name.
type yamlPriority int

func (p *yamlPriority) UnmarshalYAML(value *yaml.Node) error {
	name := strings.ToLower(strings.TrimSpace(value.Value))
	if n, ok := priorityNames[name]; ok {
		*p = yamlPriority(n)
		return nil
	}
	n, err := strconv.Atoi(name)
	if err != nil {
		return fmt.Errorf("line %d: invalid priority %q", value.Line, value.Value)
	}
	*p = yamlPriority(n)
	return nil
}

func parseAnalysisYAML(data []byte) ([]domain.PlannerTask, error) {
	var doc analysisYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		// A bare list of tasks is accepted too.
		var list []yamlTask
		if listErr := yaml.Unmarshal(data, &list); listErr != nil {
			return nil, fmt.Errorf("failed to parse analysis YAML: %w", err)
		}
		doc.Tasks = list
	}

	var out []domain.PlannerTask
	for _, yt := range doc.Tasks {
		parent := yt.toTask()
		out = append(out, parent)
		for _, ys := range yt.Subtasks {
			out = append(out, flattenSubtask(parent, ys.toTask(), ys.Priority != 0))
		}
	}
	return out, nil
}

func (yt yamlTask) toTask() domain.PlannerTask {
	t := domain.PlannerTask{
		ID:              string(yt.ID),
		Title:           yt.Title,
		Description:     yt.Description,
		Details:         yt.Details,
		TestStrategy:    yt.TestStrategy,
		Status:          normalizeStatus(yt.Status),
		Priority:        int(yt.Priority),
		EstimatedEffort: yt.EstimatedEffort,
		Complexity:      yt.Complexity,
	}
	for _, dep := range yt.Dependencies {
		t.Dependencies = append(t.Dependencies, string(dep))
	}
	return t
}
