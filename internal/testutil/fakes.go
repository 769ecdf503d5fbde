package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/lherron/tasksync/internal/backlog"
	"github.com/lherron/tasksync/internal/domain"
	"github.com/lherron/tasksync/internal/store"
)

// ErrInjected is returned by fakes when a failure is injected.
var ErrInjected = errors.New("injected failure")

// FakeBacklog is an in-memory backlog. Exported fields may be set between
// calls to inject failures.
type FakeBacklog struct {
	mu     sync.Mutex
	tasks  map[int64]domain.BacklogTask
	nextID int64

	Down              bool                               // Healthy reports false
	ListErr           error                              // returned by ListTasks
	FailCreate        func(t domain.BacklogTask) error   // consulted by CreateTask
	FailUpdate        func(t domain.BacklogTask) error   // consulted by UpdateTask
	IgnoreRequestedID bool                               // CreateTask always assigns a new id

	Creates []domain.BacklogTask
	Updates []domain.BacklogTask
}

// NewFakeBacklog returns a backlog holding tasks.
func NewFakeBacklog(tasks ...domain.BacklogTask) *FakeBacklog {
	f := &FakeBacklog{tasks: make(map[int64]domain.BacklogTask), nextID: 1}
	for _, t := range tasks {
		f.Put(t)
	}
	return f
}

func (f *FakeBacklog) Healthy(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Down
}

func (f *FakeBacklog) ListTasks(ctx context.Context, filter backlog.Filter) ([]domain.BacklogTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	var out []domain.BacklogTask
	for _, t := range f.tasks {
		if filter.Project != "" && t.Project != filter.Project {
			continue
		}
		out = append(out, *t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *FakeBacklog) CreateTask(ctx context.Context, t domain.BacklogTask) (domain.BacklogTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreate != nil {
		if err := f.FailCreate(t); err != nil {
			return domain.BacklogTask{}, err
		}
	}
	if err := domain.ValidateBacklogTask(&t); err != nil {
		return domain.BacklogTask{}, err
	}
	if _, taken := f.tasks[t.ID]; t.ID <= 0 || taken || f.IgnoreRequestedID {
		t.ID = f.nextID
	}
	f.store(t)
	f.Creates = append(f.Creates, *t.Clone())
	return *t.Clone(), nil
}

func (f *FakeBacklog) UpdateTask(ctx context.Context, t domain.BacklogTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailUpdate != nil {
		if err := f.FailUpdate(t); err != nil {
			return err
		}
	}
	if _, ok := f.tasks[t.ID]; !ok {
		return fmt.Errorf("backlog task %d: %w", t.ID, domain.ErrTaskNotFound)
	}
	f.store(t)
	f.Updates = append(f.Updates, *t.Clone())
	return nil
}

// Get returns the stored task.
func (f *FakeBacklog) Get(id int64) (domain.BacklogTask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return domain.BacklogTask{}, false
	}
	return *t.Clone(), true
}

// Put stores t as if it were edited in the backlog itself.
func (f *FakeBacklog) Put(t domain.BacklogTask) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store(t)
}

// Delete removes a task as if it were deleted in the backlog itself.
func (f *FakeBacklog) Delete(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, id)
}

// Writes returns the number of create and update calls that succeeded.
func (f *FakeBacklog) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Creates) + len(f.Updates)
}

func (f *FakeBacklog) store(t domain.BacklogTask) {
	f.tasks[t.ID] = *t.Clone()
	if t.ID >= f.nextID {
		f.nextID = t.ID + 1
	}
}

// FakePlanner is an in-memory planner document.
type FakePlanner struct {
	mu     sync.Mutex
	tasks  map[string]domain.PlannerTask
	nextID int

	Down              bool
	ListErr           error
	FailCreate        func(t domain.PlannerTask) error
	FailUpdate        func(t domain.PlannerTask) error
	IgnoreRequestedID bool

	Creates []domain.PlannerTask
	Updates []domain.PlannerTask
}

// NewFakePlanner returns a planner holding tasks.
func NewFakePlanner(tasks ...domain.PlannerTask) *FakePlanner {
	f := &FakePlanner{tasks: make(map[string]domain.PlannerTask), nextID: 1}
	for _, t := range tasks {
		f.Put(t)
	}
	return f
}

func (f *FakePlanner) Healthy(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Down
}

func (f *FakePlanner) ListTasks(ctx context.Context) ([]domain.PlannerTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make([]domain.PlannerTask, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, *t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *FakePlanner) CreateTask(ctx context.Context, t domain.PlannerTask) (domain.PlannerTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreate != nil {
		if err := f.FailCreate(t); err != nil {
			return domain.PlannerTask{}, err
		}
	}
	if _, taken := f.tasks[t.ID]; t.ID == "" || taken || f.IgnoreRequestedID {
		t.ID = strconv.Itoa(f.nextID)
	}
	if err := domain.ValidatePlannerTask(&t); err != nil {
		return domain.PlannerTask{}, err
	}
	f.store(t)
	f.Creates = append(f.Creates, *t.Clone())
	return *t.Clone(), nil
}

func (f *FakePlanner) UpdateTask(ctx context.Context, t domain.PlannerTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailUpdate != nil {
		if err := f.FailUpdate(t); err != nil {
			return err
		}
	}
	if _, ok := f.tasks[t.ID]; !ok {
		return fmt.Errorf("planner task %s: %w", t.ID, domain.ErrTaskNotFound)
	}
	f.store(t)
	f.Updates = append(f.Updates, *t.Clone())
	return nil
}

// Get returns the stored task.
func (f *FakePlanner) Get(id string) (domain.PlannerTask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return domain.PlannerTask{}, false
	}
	return *t.Clone(), true
}

// Put stores t as if the planner itself wrote it.
func (f *FakePlanner) Put(t domain.PlannerTask) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store(t)
}

// Delete removes a task as if the planner itself dropped it.
func (f *FakePlanner) Delete(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, id)
}

// Writes returns the number of create and update calls that succeeded.
func (f *FakePlanner) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Creates) + len(f.Updates)
}

func (f *FakePlanner) store(t domain.PlannerTask) {
	f.tasks[t.ID] = *t.Clone()
	if n, err := strconv.Atoi(t.ID); err == nil && n >= f.nextID {
		f.nextID = n + 1
	}
}

// MemoryRepository is an in-memory mapping repository. Saved cycles are
// deep-copied so later mutation by the caller does not leak into the store.
type MemoryRepository struct {
	mu       sync.Mutex
	mappings []*domain.TaskMapping

	LoadErr error
	SaveErr error

	Cycles    []store.Cycle
	Conflicts []*domain.ConflictRecord
}

// NewMemoryRepository returns a repository holding mappings.
func NewMemoryRepository(mappings ...*domain.TaskMapping) *MemoryRepository {
	return &MemoryRepository{mappings: cloneMappings(mappings)}
}

func (r *MemoryRepository) LoadMappings(ctx context.Context) ([]*domain.TaskMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.LoadErr != nil {
		return nil, r.LoadErr
	}
	return cloneMappings(r.mappings), nil
}

func (r *MemoryRepository) SaveCycle(ctx context.Context, c store.Cycle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}
	if c.Mappings != nil {
		r.mappings = cloneMappings(c.Mappings)
	}
	r.Conflicts = append(r.Conflicts, c.Conflicts...)
	r.Cycles = append(r.Cycles, c)
	return nil
}

// Mappings returns a copy of the saved mapping set.
func (r *MemoryRepository) Mappings() []*domain.TaskMapping {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneMappings(r.mappings)
}

// Live returns the saved mapping that links the given ids, ignoring
// tombstones, or nil.
func (r *MemoryRepository) Live(backlogID int64, plannerID string) *domain.TaskMapping {
	for _, m := range r.Mappings() {
		if m.Tombstoned() || m.BacklogID == nil || m.PlannerID == nil {
			continue
		}
		if *m.BacklogID == backlogID && *m.PlannerID == plannerID {
			return m
		}
	}
	return nil
}

func cloneMappings(in []*domain.TaskMapping) []*domain.TaskMapping {
	out := make([]*domain.TaskMapping, 0, len(in))
	for _, m := range in {
		c := *m
		if m.BacklogID != nil {
			v := *m.BacklogID
			c.BacklogID = &v
		}
		if m.PlannerID != nil {
			v := *m.PlannerID
			c.PlannerID = &v
		}
		if m.TombstonedAt != nil {
			v := *m.TombstonedAt
			c.TombstonedAt = &v
		}
		out = append(out, &c)
	}
	return out
}
