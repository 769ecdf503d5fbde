package planner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lherron/tasksync/internal/domain"
)

const taggedDoc = `{
  "master": {
    "tasks": [
      {"id": 1, "title": "Design schema", "description": "tables", "status": "in-progress",
       "priority": "high", "dependencies": [], "details": "use sqlite",
       "subtasks": [{"id": 1, "title": "draft"}]},
      {"id": 2, "title": "Build API", "description": "", "status": "pending", "priority": 4,
       "dependencies": [1], "complexity": 7, "estimatedEffort": 2.5,
       "updatedAt": "2026-01-02T03:04:05Z"}
    ],
    "metadata": {"created": "2026-01-01"}
  },
  "feature-x": {"tasks": [{"id": 1, "title": "Other tag", "status": "done"}]}
}`

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write document: %v", err)
	}
	return path
}

func TestListTasks_Tagged(t *testing.T) {
	d := Open(writeDoc(t, taggedDoc), "")
	tasks, err := d.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}

	first := tasks[0]
	if first.ID != "1" || first.Status != domain.PlannerInProgress || first.Priority != 2 {
		t.Errorf("unexpected first task: %+v", first)
	}
	if first.Details != "use sqlite" {
		t.Errorf("details = %q", first.Details)
	}
	if first.UpdatedAt != nil {
		t.Errorf("expected no updatedAt, got %v", first.UpdatedAt)
	}

	second := tasks[1]
	if second.Complexity == nil || *second.Complexity != 7 {
		t.Errorf("complexity = %v", second.Complexity)
	}
	if second.EstimatedEffort == nil || *second.EstimatedEffort != 2.5 {
		t.Errorf("estimatedEffort = %v", second.EstimatedEffort)
	}
	if len(second.Dependencies) != 1 || second.Dependencies[0] != "1" {
		t.Errorf("dependencies = %v", second.Dependencies)
	}
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if second.UpdatedAt == nil || !second.UpdatedAt.Equal(want) {
		t.Errorf("updatedAt = %v, want %v", second.UpdatedAt, want)
	}
}

func TestListTasks_Layouts(t *testing.T) {
	tests := []struct {
		name    string
		content string
		tag     string
		want    int
	}{
		{"missing file", "", "", 0},
		{"legacy", `{"tasks":[{"id":1,"title":"a","status":"pending"}]}`, "", 1},
		{"bare array", `[{"id":"a","title":"a"},{"id":"b","title":"b"}]`, "", 2},
		{"other tag", taggedDoc, "feature-x", 1},
		{"unknown tag", taggedDoc, "nope", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "tasks.json")
			if tt.content != "" {
				path = writeDoc(t, tt.content)
			}
			tasks, err := Open(path, tt.tag).ListTasks(context.Background())
			if err != nil {
				t.Fatalf("ListTasks failed: %v", err)
			}
			if len(tasks) != tt.want {
				t.Errorf("expected %d tasks, got %d", tt.want, len(tasks))
			}
		})
	}
}

func TestListTasks_InvalidJSON(t *testing.T) {
	d := Open(writeDoc(t, `{"master": {`), "")
	if _, err := d.ListTasks(context.Background()); err == nil {
		t.Fatal("expected error for invalid document")
	}
	if d.Healthy(context.Background()) {
		t.Error("expected invalid document to be unhealthy")
	}
}

func TestCreateTask(t *testing.T) {
	path := writeDoc(t, taggedDoc)
	d := Open(path, "")
	ctx := context.Background()

	created, err := d.CreateTask(ctx, domain.PlannerTask{Title: "New", Status: domain.PlannerPending, Priority: 3})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if created.ID != "3" {
		t.Errorf("expected next id 3, got %s", created.ID)
	}

	// Requested ids are honoured when free and replaced when taken.
	requested, err := d.CreateTask(ctx, domain.PlannerTask{ID: "17", Title: "Restored", Status: domain.PlannerDone, Priority: 1})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if requested.ID != "17" {
		t.Errorf("expected requested id 17, got %s", requested.ID)
	}
	taken, err := d.CreateTask(ctx, domain.PlannerTask{ID: "1", Title: "Dup", Status: domain.PlannerDone, Priority: 1})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if taken.ID != "18" {
		t.Errorf("expected id 18 for a taken id, got %s", taken.ID)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	doc := gjson.ParseBytes(data)
	if n := len(doc.Get("master.tasks").Array()); n != 5 {
		t.Errorf("expected 5 master tasks, got %d", n)
	}
	if doc.Get("feature-x.tasks.0.title").String() != "Other tag" {
		t.Error("other tag was not preserved")
	}
	if doc.Get("master.metadata.created").String() != "2026-01-01" {
		t.Error("tag metadata was not preserved")
	}
	if doc.Get("master.tasks.2.id").Type != gjson.Number {
		t.Error("expected numeric id to be written as a number")
	}
}

func TestUpdateTask_PreservesUnmodeledKeys(t *testing.T) {
	path := writeDoc(t, taggedDoc)
	d := Open(path, "")
	ctx := context.Background()

	tasks, err := d.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	task := tasks[0]
	at := time.Date(2026, 4, 4, 4, 4, 4, 0, time.UTC)
	task.Title = "Design schema v2"
	task.Status = domain.PlannerDone
	task.UpdatedAt = &at
	if err := d.UpdateTask(ctx, task); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	doc := gjson.ParseBytes(data)
	first := doc.Get("master.tasks.0")
	if first.Get("title").String() != "Design schema v2" {
		t.Errorf("title = %q", first.Get("title").String())
	}
	if first.Get("subtasks.0.title").String() != "draft" {
		t.Error("subtasks were not preserved")
	}
	if first.Get("priority").String() != "high" {
		t.Errorf("expected string priority to stay a name, got %s", first.Get("priority").Raw)
	}
	if first.Get("updatedAt").String() != "2026-04-04T04:04:04Z" {
		t.Errorf("updatedAt = %s", first.Get("updatedAt").String())
	}

	task.ID = "99"
	if err := d.UpdateTask(ctx, task); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestCreateTask_NewDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tasks.json")
	d := Open(path, "sprint")
	ctx := context.Background()

	if _, err := d.CreateTask(ctx, domain.PlannerTask{Title: "First", Status: domain.PlannerPending, Priority: 5}); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if got := gjson.GetBytes(data, "sprint.tasks.0.title").String(); got != "First" {
		t.Errorf("title = %q", got)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestCreateTask_KeepsSourceReference(t *testing.T) {
	path := writeDoc(t, taggedDoc)
	d := Open(path, "")
	ctx := context.Background()

	created, err := d.CreateTask(ctx, domain.PlannerTask{
		Title:    "From backlog",
		Status:   domain.PlannerPending,
		Priority: 3,
		Source:   domain.BacklogSource(42),
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if got := gjson.GetBytes(data, "master.tasks.2.tasksyncSource").String(); got != "backlog:42" {
		t.Errorf("tasksyncSource = %q", got)
	}

	// An update that does not carry the reference leaves it in place.
	created.Source = ""
	created.Title = "From backlog, edited"
	if err := d.UpdateTask(ctx, created); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}

	tasks, err := d.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	got := tasks[2]
	if got.Title != "From backlog, edited" {
		t.Errorf("title = %q", got.Title)
	}
	if id, ok := got.OriginBacklogID(); !ok || id != 42 {
		t.Errorf("OriginBacklogID = %d, %v; want 42, true", id, ok)
	}
	if _, ok := tasks[0].OriginBacklogID(); ok {
		t.Error("task without a reference reported an origin")
	}
}

func TestDeleteTask(t *testing.T) {
	d := Open(writeDoc(t, taggedDoc), "")
	ctx := context.Background()

	if err := d.DeleteTask(ctx, "1"); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	tasks, err := d.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "2" {
		t.Errorf("unexpected tasks after delete: %+v", tasks)
	}
	if err := d.DeleteTask(ctx, "1"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestLocked(t *testing.T) {
	path := writeDoc(t, taggedDoc)
	holder := Open(path, "")
	if err := holder.acquire(context.Background(), false); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer holder.lock.Unlock()

	d := Open(path, "")
	d.SetLockTimeout(50 * time.Millisecond)
	err := d.UpdateTask(context.Background(), domain.PlannerTask{ID: "1", Title: "x", Status: domain.PlannerPending, Priority: 3})
	if !errors.Is(err, ErrLocked) {
		t.Errorf("expected ErrLocked, got %v", err)
	}
}

func TestCreateTask_Validation(t *testing.T) {
	d := Open(writeDoc(t, taggedDoc), "")
	_, err := d.CreateTask(context.Background(), domain.PlannerTask{Title: "", Status: domain.PlannerPending, Priority: 3})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}
