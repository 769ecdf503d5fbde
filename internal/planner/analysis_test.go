package planner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lherron/tasksync/internal/domain"
)

func writeAnalysis(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write analysis: %v", err)
	}
	return path
}

func TestLoadAnalysis_JSONSubtasks(t *testing.T) {
	path := writeAnalysis(t, "tasks.json", `{"prd":{"tasks":[
		{"id":1,"title":"Auth","priority":"high","subtasks":[
			{"id":1,"title":"Login form"},
			{"id":2,"title":"Session store","priority":"low","dependencies":[1]}
		]},
		{"id":2,"title":"Billing","status":"deferred"}
	]}}`)

	tasks, err := LoadAnalysis(path, "")
	if err != nil {
		t.Fatalf("LoadAnalysis failed: %v", err)
	}
	wantIDs := []string{"1", "1.1", "1.2", "2"}
	if len(tasks) != len(wantIDs) {
		t.Fatalf("expected %d tasks, got %d", len(wantIDs), len(tasks))
	}
	for i, id := range wantIDs {
		if tasks[i].ID != id {
			t.Errorf("task %d id = %s, want %s", i, tasks[i].ID, id)
		}
	}
	if tasks[1].Priority != 2 {
		t.Errorf("subtask should inherit parent priority, got %d", tasks[1].Priority)
	}
	if tasks[2].Priority != 4 {
		t.Errorf("subtask priority = %d, want 4", tasks[2].Priority)
	}
	if len(tasks[2].Dependencies) != 1 || tasks[2].Dependencies[0] != "1.1" {
		t.Errorf("subtask dependencies = %v", tasks[2].Dependencies)
	}
	if tasks[0].Status != domain.PlannerPending || tasks[3].Status != domain.PlannerDeferred {
		t.Errorf("unexpected statuses %s, %s", tasks[0].Status, tasks[3].Status)
	}
}

func TestLoadAnalysis_YAML(t *testing.T) {
	path := writeAnalysis(t, "analysis.yaml", `tasks:
  - id: 10
    title: Search
    priority: critical
    complexity: 8
    estimated_effort: 4.5
    subtasks:
      - id: 1
        title: Index
`)
	tasks, err := LoadAnalysis(path, "")
	if err != nil {
		t.Fatalf("LoadAnalysis failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].ID != "10" || tasks[0].Priority != 1 {
		t.Errorf("unexpected parent %+v", tasks[0])
	}
	if tasks[0].Complexity == nil || *tasks[0].Complexity != 8 {
		t.Errorf("complexity = %v", tasks[0].Complexity)
	}
	if tasks[1].ID != "10.1" || tasks[1].Priority != 1 {
		t.Errorf("unexpected subtask %+v", tasks[1])
	}
}

func TestLoadAnalysis_YAMLList(t *testing.T) {
	path := writeAnalysis(t, "analysis.yml", "- id: a\n  title: One\n- id: b\n  title: Two\n  priority: 2\n")
	tasks, err := LoadAnalysis(path, "")
	if err != nil {
		t.Fatalf("LoadAnalysis failed: %v", err)
	}
	if len(tasks) != 2 || tasks[0].Priority != 3 || tasks[1].Priority != 2 {
		t.Errorf("unexpected tasks %+v", tasks)
	}
}

func TestLoadAnalysis_Errors(t *testing.T) {
	tests := []struct {
		name, file, content, tag string
	}{
		{"invalid json", "a.json", `{"tasks": [`, ""},
		{"missing tag", "a.json", `{"one":{"tasks":[]},"two":{"tasks":[]}}`, "three"},
		{"bad priority", "a.yaml", "tasks:\n  - id: 1\n    title: x\n    priority: urgent\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadAnalysis(writeAnalysis(t, tt.file, tt.content), tt.tag); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := LoadAnalysis(filepath.Join(t.TempDir(), "missing.json"), ""); err == nil {
		t.Error("expected error for missing file")
	}
}
