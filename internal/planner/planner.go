// Package planner is the AI task-decomposition store (System B): a single
// JSON task document, optionally partitioned by tag, that has no update API.
// Every create or update rewrites the whole document under a file lock.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/tidwall/gjson"

	"github.com/lherron/tasksync/internal/domain"
)

// DefaultTag is the tag used when none is configured.
const DefaultTag = "master"

// ErrLocked is returned when another process holds the document lock past
// the lock timeout.
var ErrLocked = errors.New("planner document is locked")

// Document is a planner task document on disk.
type Document struct {
	mu          sync.Mutex // flock does not exclude goroutines sharing one Flock
	path        string
	tag         string
	lock        *flock.Flock
	lockTimeout time.Duration
}

// Open returns a Document for path. The file need not exist yet.
func Open(path, tag string) *Document {
	if tag == "" {
		tag = DefaultTag
	}
	return &Document{
		path:        path,
		tag:         tag,
		lock:        flock.New(path + ".lock"),
		lockTimeout: 5 * time.Second,
	}
}

// Path returns the document path.
func (d *Document) Path() string {
	return d.path
}

// Tag returns the tag whose tasks are synchronized.
func (d *Document) Tag() string {
	return d.tag
}

// SetLockTimeout changes how long operations wait for the document lock.
func (d *Document) SetLockTimeout(timeout time.Duration) {
	d.lockTimeout = timeout
}

// Healthy reports whether the document is readable. A missing document is
// healthy: it is created by the first write.
func (d *Document) Healthy(ctx context.Context) bool {
	if _, err := os.Stat(filepath.Dir(d.path)); err != nil {
		return false
	}
	_, err := d.ListTasks(ctx)
	return err == nil
}

// ListTasks returns the tasks of the configured tag in document order.
func (d *Document) ListTasks(ctx context.Context) ([]domain.PlannerTask, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.acquire(ctx, true); err != nil {
		return nil, err
	}
	defer d.lock.Unlock()

	data, err := d.read()
	if err != nil {
		return nil, err
	}
	return parseTasks(data, d.tag)
}

// CreateTask appends a task. A requested t.ID is kept when no task of the tag
// uses it; otherwise the next integer id is assigned.
func (d *Document) CreateTask(ctx context.Context, t domain.PlannerTask) (domain.PlannerTask, error) {
	var created domain.PlannerTask
	err := d.rewrite(ctx, func(tasks []map[string]json.RawMessage) ([]map[string]json.RawMessage, error) {
		ids := make(map[string]bool, len(tasks))
		next := 1
		for _, raw := range tasks {
			taskID := gjson.ParseBytes(raw["id"]).String()
			ids[taskID] = true
			if n, err := strconv.Atoi(taskID); err == nil && n >= next {
				next = n + 1
			}
		}
		if t.ID == "" || ids[t.ID] {
			t.ID = strconv.Itoa(next)
		}
		if err := domain.ValidatePlannerTask(&t); err != nil {
			return nil, err
		}
		raw, err := encodeTask(t, nil)
		if err != nil {
			return nil, err
		}
		created = t
		return append(tasks, raw), nil
	})
	if err != nil {
		return domain.PlannerTask{}, err
	}
	return created, nil
}

// UpdateTask replaces every modeled field of the task with t.ID. Keys the
// planner stores that are not modeled are kept.
func (d *Document) UpdateTask(ctx context.Context, t domain.PlannerTask) error {
	if err := domain.ValidatePlannerTask(&t); err != nil {
		return err
	}
	return d.rewrite(ctx, func(tasks []map[string]json.RawMessage) ([]map[string]json.RawMessage, error) {
		for i, raw := range tasks {
			if gjson.ParseBytes(raw["id"]).String() != t.ID {
				continue
			}
			updated, err := encodeTask(t, raw)
			if err != nil {
				return nil, err
			}
			tasks[i] = updated
			return tasks, nil
		}
		return nil, fmt.Errorf("planner task %s: %w", t.ID, domain.ErrTaskNotFound)
	})
}

// DeleteTask removes the task with taskID.
func (d *Document) DeleteTask(ctx context.Context, taskID string) error {
	return d.rewrite(ctx, func(tasks []map[string]json.RawMessage) ([]map[string]json.RawMessage, error) {
		for i, raw := range tasks {
			if gjson.ParseBytes(raw["id"]).String() == taskID {
				return append(tasks[:i], tasks[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("planner task %s: %w", taskID, domain.ErrTaskNotFound)
	})
}

func (d *Document) acquire(ctx context.Context, shared bool) error {
	ctx, cancel := context.WithTimeout(ctx, d.lockTimeout)
	defer cancel()

	var ok bool
	var err error
	if shared {
		ok, err = d.lock.TryRLockContext(ctx, 25*time.Millisecond)
	} else {
		ok, err = d.lock.TryLockContext(ctx, 25*time.Millisecond)
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to lock %s: %w", d.path, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", d.path, ErrLocked)
	}
	return nil
}

func (d *Document) read() ([]byte, error) {
	data, err := os.ReadFile(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read planner document: %w", err)
	}
	return data, nil
}

// rewrite runs fn over the tag's raw task list under the exclusive lock and
// atomically replaces the document with the result.
func (d *Document) rewrite(ctx context.Context, fn func([]map[string]json.RawMessage) ([]map[string]json.RawMessage, error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(d.path), 0755); err != nil {
		return fmt.Errorf("failed to create planner directory: %w", err)
	}
	if err := d.acquire(ctx, false); err != nil {
		return err
	}
	defer d.lock.Unlock()

	data, err := d.read()
	if err != nil {
		return err
	}
	root, tasks, shape, err := decodeDocument(data, d.tag)
	if err != nil {
		return err
	}

	tasks, err = fn(tasks)
	if err != nil {
		return err
	}

	out, err := encodeDocument(root, tasks, shape, d.tag)
	if err != nil {
		return err
	}
	return writeAtomic(d.path, out)
}

func parseTasks(data []byte, tag string) ([]domain.PlannerTask, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("planner document is not valid JSON")
	}

	list, _ := locateTasks(gjson.ParseBytes(data), tag)
	var out []domain.PlannerTask
	var parseErr error
	list.ForEach(func(_, r gjson.Result) bool {
		t, err := parseTask(r)
		if err != nil {
			parseErr = err
			return false
		}
		out = append(out, t)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}

// decodeDocument splits a document into its top-level object (nil for the
// bare-array layout) and the raw task list of tag.
func decodeDocument(data []byte, tag string) (map[string]json.RawMessage, []map[string]json.RawMessage, layout, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]json.RawMessage{}, nil, layoutTagged, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, nil, 0, fmt.Errorf("planner document is not valid JSON")
	}

	list, shape := locateTasks(gjson.ParseBytes(data), tag)
	var tasks []map[string]json.RawMessage
	if list.Exists() {
		if err := json.Unmarshal([]byte(list.Raw), &tasks); err != nil {
			return nil, nil, 0, fmt.Errorf("failed to decode planner tasks: %w", err)
		}
	}

	var root map[string]json.RawMessage
	if shape != layoutArray {
		if err := json.Unmarshal(data, &root); err != nil {
			return nil, nil, 0, fmt.Errorf("failed to decode planner document: %w", err)
		}
	}
	return root, tasks, shape, nil
}

func encodeDocument(root map[string]json.RawMessage, tasks []map[string]json.RawMessage, shape layout, tag string) ([]byte, error) {
	if tasks == nil {
		tasks = []map[string]json.RawMessage{}
	}
	tasksJSON, err := json.Marshal(tasks)
	if err != nil {
		return nil, fmt.Errorf("failed to encode planner tasks: %w", err)
	}

	var doc interface{}
	switch shape {
	case layoutArray:
		doc = json.RawMessage(tasksJSON)
	case layoutLegacy:
		root["tasks"] = tasksJSON
		doc = root
	default:
		section := map[string]json.RawMessage{}
		if existing, ok := root[tag]; ok {
			if err := json.Unmarshal(existing, &section); err != nil {
				return nil, fmt.Errorf("failed to decode tag %s: %w", tag, err)
			}
		}
		section["tasks"] = tasksJSON
		sectionJSON, err := json.Marshal(section)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tag %s: %w", tag, err)
		}
		root[tag] = sectionJSON
		doc = root
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode planner document: %w", err)
	}
	return append(out, '\n'), nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create planner directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write planner document: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync planner document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close planner document: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace planner document: %w", err)
	}
	return nil
}
