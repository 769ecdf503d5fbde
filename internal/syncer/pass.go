package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lherron/tasksync/internal/bulk"
	"github.com/lherron/tasksync/internal/domain"
	"github.com/lherron/tasksync/internal/fingerprint"
	"github.com/lherron/tasksync/internal/store"
)

// cycle is the working state of one sync cycle. The task maps start as the
// snapshot read at cycle start and only change through this cycle's own
// writes.
type cycle struct {
	e      *Engine
	now    time.Time
	result *domain.SyncResult

	backlog map[int64]*domain.BacklogTask
	planner map[string]*domain.PlannerTask

	mappings    []*domain.TaskMapping // tombstones included
	liveBacklog map[int64]*domain.TaskMapping
	livePlanner map[string]*domain.TaskMapping

	// touched holds mappings already handled this cycle; the second pass
	// leaves them alone.
	touched map[string]bool

	// Back-references stamped on counterparts by earlier cycles, indexed by
	// the task they point at: sourced maps a backlog id to the planner task
	// created for it, labelled a planner id to the backlog task created for it.
	sourced        map[int64]string
	labelled       map[string]int64
	claimedBacklog map[int64]bool
	claimedPlanner map[string]bool

	created    map[string]bool
	createdIDs []string
	updated    map[string]string
	tombstoned []string
	pruned     []*domain.TaskMapping
	conflicts  []*domain.ConflictRecord
	events     []domain.ConflictEvent
}

func newCycle(e *Engine, now time.Time, result *domain.SyncResult, mappings []*domain.TaskMapping) *cycle {
	c := &cycle{
		e:           e,
		now:         now,
		result:      result,
		backlog:     make(map[int64]*domain.BacklogTask),
		planner:     make(map[string]*domain.PlannerTask),
		mappings:    mappings,
		liveBacklog: make(map[int64]*domain.TaskMapping),
		livePlanner: make(map[string]*domain.TaskMapping),
		touched:     make(map[string]bool),

		sourced:        make(map[int64]string),
		labelled:       make(map[string]int64),
		claimedBacklog: make(map[int64]bool),
		claimedPlanner: make(map[string]bool),

		created:     make(map[string]bool),
		updated:     make(map[string]string),
	}
	for _, m := range mappings {
		if !m.Tombstoned() {
			c.index(m)
		}
	}
	return c
}

func (c *cycle) setSnapshot(backlogTasks []domain.BacklogTask, plannerTasks []domain.PlannerTask) {
	for i := range backlogTasks {
		t := backlogTasks[i]
		c.backlog[t.ID] = &t
		if id, ok := t.OriginPlannerID(); ok {
			if _, dup := c.labelled[id]; !dup {
				c.labelled[id] = t.ID
			}
		}
	}
	for i := range plannerTasks {
		t := plannerTasks[i]
		c.planner[t.ID] = &t
		if id, ok := t.OriginBacklogID(); ok {
			if _, dup := c.sourced[id]; !dup {
				c.sourced[id] = t.ID
			}
		}
	}
}

func (c *cycle) index(m *domain.TaskMapping) {
	if m.BacklogID != nil {
		c.liveBacklog[*m.BacklogID] = m
	}
	if m.PlannerID != nil {
		c.livePlanner[*m.PlannerID] = m
	}
}

func (c *cycle) unindex(m *domain.TaskMapping) {
	if m.BacklogID != nil && c.liveBacklog[*m.BacklogID] == m {
		delete(c.liveBacklog, *m.BacklogID)
	}
	if m.PlannerID != nil && c.livePlanner[*m.PlannerID] == m {
		delete(c.livePlanner, *m.PlannerID)
	}
}

type actionKind int

const (
	actCreate     actionKind = iota // no mapping yet
	actRecreate                     // counterpart deleted, mapping kept
	actUpdate                       // one side changed
	actConflict                     // both sides changed
	actRebaseline                   // fingerprint moved without a field change
	actAdopt                        // unmapped pair linked by a back-reference
)

// action is one planned unit of work. The write fields are filled during
// planning; the outcome fields by the worker that executes it.
type action struct {
	kind    actionKind
	source  domain.Side
	mapping *domain.TaskMapping
	label   string

	backlog *domain.BacklogTask // pair as read
	planner *domain.PlannerTask

	writeBacklog  *domain.BacklogTask
	writePlanner  *domain.PlannerTask
	createBacklog bool
	createPlanner bool
	decision      *Decision

	wroteBacklog *domain.BacklogTask
	wrotePlanner *domain.PlannerTask
	backlogErr   error
	plannerErr   error
}

func (act *action) failed() bool {
	return act.backlogErr != nil || act.plannerErr != nil
}

// finalPair is the pair as it stands after the action's writes.
func (act *action) finalPair() (*domain.BacklogTask, *domain.PlannerTask) {
	a, b := act.backlog, act.planner
	if act.wroteBacklog != nil {
		a = act.wroteBacklog
	}
	if act.wrotePlanner != nil {
		b = act.wrotePlanner
	}
	return a, b
}

func bulkOperation(e *Engine) *bulk.Operation {
	return &bulk.Operation{
		Jobs:     e.opts.Jobs,
		Progress: e.opts.Progress,
	}
}

// runPass plans the pass for source sequentially, runs its writes on the
// worker pool, then applies the outcomes in plan order.
func (c *cycle) runPass(ctx context.Context, source domain.Side) {
	var actions []*action
	if source == domain.SideBacklog {
		actions = c.planBacklogPass()
	} else {
		actions = c.planPlannerPass()
	}
	if len(actions) == 0 {
		return
	}

	op := bulkOperation(c.e)
	res := op.Execute(len(actions), func(i int) error {
		return c.execute(ctx, actions[i])
	})
	c.e.debugf("%s pass: %d actions, %d succeeded, %d failed", source, res.TotalItems, res.Succeeded, res.Failed)

	for _, act := range actions {
		c.apply(act)
	}
}

func (c *cycle) planBacklogPass() []*action {
	ids := make([]int64, 0, len(c.backlog))
	for id := range c.backlog {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var actions []*action
	for _, id := range ids {
		a := c.backlog[id]
		label := fmt.Sprintf("backlog task %d", id)

		m := c.liveBacklog[id]
		if m == nil {
			m = c.revive(domain.SideBacklog, strconv.FormatInt(id, 10))
		}
		if m != nil && c.touched[m.UUID] {
			continue
		}
		if err := domain.ValidateBacklogTask(a); err != nil {
			c.result.AddError("%s: validate: %v", label, err)
			continue
		}

		var b *domain.PlannerTask
		if m != nil && m.PlannerID != nil {
			b = c.planner[*m.PlannerID]
		}

		switch {
		case m == nil:
			if b, origin := c.adoptablePlanner(a); b != nil {
				if err := domain.ValidatePlannerTask(b); err != nil {
					c.result.AddError("planner task %s: validate: %v", b.ID, err)
					continue
				}
				c.claimedPlanner[b.ID] = true
				actions = append(actions, c.planAdopt(origin, a, b, label))
				continue
			}
			dest := domain.ProjectToPlanner(a, nil)
			dest.ID = ""
			dest.Source = domain.BacklogSource(a.ID)
			dest.UpdatedAt = c.stamp()
			actions = append(actions, &action{
				kind: actCreate, source: domain.SideBacklog, label: label,
				backlog: a, writePlanner: dest, createPlanner: true,
			})
		case b == nil:
			dest := domain.ProjectToPlanner(a, nil)
			if m.PlannerID != nil {
				dest.ID = *m.PlannerID
			}
			dest.Source = domain.BacklogSource(a.ID)
			dest.UpdatedAt = c.stamp()
			actions = append(actions, &action{
				kind: actRecreate, source: domain.SideBacklog, mapping: m, label: label,
				backlog: a, writePlanner: dest, createPlanner: true,
			})
		default:
			if act := c.planPair(domain.SideBacklog, m, a, b, label); act != nil {
				actions = append(actions, act)
			}
		}
	}
	return actions
}

func (c *cycle) planPlannerPass() []*action {
	ids := make([]string, 0, len(c.planner))
	for id := range c.planner {
		ids = append(ids, id)
	}
	sortPlannerIDs(ids)

	var actions []*action
	for _, id := range ids {
		b := c.planner[id]
		label := fmt.Sprintf("planner task %s", id)

		m := c.livePlanner[id]
		if m == nil {
			m = c.revive(domain.SidePlanner, id)
		}
		if m != nil && c.touched[m.UUID] {
			continue
		}
		if err := domain.ValidatePlannerTask(b); err != nil {
			c.result.AddError("%s: validate: %v", label, err)
			continue
		}

		var a *domain.BacklogTask
		if m != nil && m.BacklogID != nil {
			a = c.backlog[*m.BacklogID]
		}

		switch {
		case m == nil:
			if a, origin := c.adoptableBacklog(b); a != nil {
				if err := domain.ValidateBacklogTask(a); err != nil {
					c.result.AddError("backlog task %d: validate: %v", a.ID, err)
					continue
				}
				c.claimedBacklog[a.ID] = true
				actions = append(actions, c.planAdopt(origin, a, b, label))
				continue
			}
			dest := domain.ProjectToBacklog(b, &domain.BacklogTask{Project: c.e.opts.DefaultProject})
			dest.MarkOrigin(b.ID)
			dest.UpdatedAt = c.stamp()
			actions = append(actions, &action{
				kind: actCreate, source: domain.SidePlanner, label: label,
				planner: b, writeBacklog: dest, createBacklog: true,
			})
		case a == nil:
			dest := domain.ProjectToBacklog(b, &domain.BacklogTask{Project: c.e.opts.DefaultProject})
			if m.BacklogID != nil {
				dest.ID = *m.BacklogID
			}
			dest.MarkOrigin(b.ID)
			dest.UpdatedAt = c.stamp()
			actions = append(actions, &action{
				kind: actRecreate, source: domain.SidePlanner, mapping: m, label: label,
				planner: b, writeBacklog: dest, createBacklog: true,
			})
		default:
			if act := c.planPair(domain.SidePlanner, m, a, b, label); act != nil {
				actions = append(actions, act)
			}
		}
	}
	return actions
}

// adoptablePlanner returns an unmapped planner task linked to a by a
// back-reference, and the side that originated the pair. A hit means an
// earlier cycle created the counterpart but its mapping was never saved.
func (c *cycle) adoptablePlanner(a *domain.BacklogTask) (*domain.PlannerTask, domain.Side) {
	free := func(id string) *domain.PlannerTask {
		if c.livePlanner[id] != nil || c.claimedPlanner[id] {
			return nil
		}
		return c.planner[id]
	}
	if id, ok := a.OriginPlannerID(); ok {
		if b := free(id); b != nil {
			return b, domain.SidePlanner
		}
	}
	if id, ok := c.sourced[a.ID]; ok {
		if b := free(id); b != nil {
			return b, domain.SideBacklog
		}
	}
	return nil, ""
}

// adoptableBacklog is adoptablePlanner for an unmapped planner task.
func (c *cycle) adoptableBacklog(b *domain.PlannerTask) (*domain.BacklogTask, domain.Side) {
	free := func(id int64) *domain.BacklogTask {
		if c.liveBacklog[id] != nil || c.claimedBacklog[id] {
			return nil
		}
		return c.backlog[id]
	}
	if id, ok := b.OriginBacklogID(); ok {
		if a := free(id); a != nil {
			return a, domain.SideBacklog
		}
	}
	if id, ok := c.labelled[b.ID]; ok {
		if a := free(id); a != nil {
			return a, domain.SidePlanner
		}
	}
	return nil, ""
}

// planAdopt links an unmapped pair. The originating side's shared fields
// are written onto the counterpart when the two have drifted apart.
func (c *cycle) planAdopt(origin domain.Side, a *domain.BacklogTask, b *domain.PlannerTask, label string) *action {
	act := &action{kind: actAdopt, source: origin, label: label, backlog: a, planner: b}
	if origin == domain.SideBacklog {
		dest := domain.ProjectToPlanner(a, b)
		if !fingerprint.PlannerFields(dest).Equal(fingerprint.PlannerFields(b)) {
			dest.UpdatedAt = c.stamp()
			act.writePlanner = dest
		}
	} else {
		dest := domain.ProjectToBacklog(b, a)
		if !fingerprint.BacklogFields(dest).Equal(fingerprint.BacklogFields(a)) {
			dest.UpdatedAt = c.stamp()
			act.writeBacklog = dest
		}
	}
	return act
}

// planPair classifies a mapped pair and plans what this pass does about it.
// Changes owned by the other direction are left to that pass.
func (c *cycle) planPair(source domain.Side, m *domain.TaskMapping, a *domain.BacklogTask, b *domain.PlannerTask, label string) *action {
	cls := Classify(m, a, b, c.e.opts.ConflictWindow, c.now)
	c.e.debugf("%s (%s): %s", label, m.Key(), cls)

	act := &action{source: source, mapping: m, label: label, backlog: a, planner: b}
	switch cls {
	case domain.NoChange:
		if fingerprint.Compute(a, b) == m.Fingerprint {
			return nil
		}
		act.kind = actRebaseline
	case domain.BacklogChanged:
		if source != domain.SideBacklog {
			return nil
		}
		act.kind = actUpdate
		act.writePlanner = domain.ProjectToPlanner(a, b)
		act.writePlanner.UpdatedAt = c.stamp()
	case domain.PlannerChanged:
		if source != domain.SidePlanner {
			return nil
		}
		act.kind = actUpdate
		act.writeBacklog = domain.ProjectToBacklog(b, a)
		act.writeBacklog.UpdatedAt = c.stamp()
	case domain.Conflict:
		d := Resolve(c.e.opts.Strategy, m, a, b, c.now)
		c.e.debugf("%s (%s): %s, %s", label, m.Key(), d.Target, d.Reason)
		act.kind = actConflict
		act.decision = &d
		switch d.Target {
		case WriteBacklog:
			act.writeBacklog = d.Backlog
		case WritePlanner:
			act.writePlanner = d.Planner
		case WriteBoth:
			act.writeBacklog, act.writePlanner = d.Backlog, d.Planner
		}
		if act.writeBacklog != nil {
			act.writeBacklog.UpdatedAt = c.stamp()
		}
		if act.writePlanner != nil {
			act.writePlanner.UpdatedAt = c.stamp()
		}
	}
	return act
}

// execute performs the action's writes. It runs on a pool worker and only
// touches the action itself.
func (c *cycle) execute(ctx context.Context, act *action) error {
	if act.writeBacklog != nil {
		if act.createBacklog {
			created, err := c.e.backlog.CreateTask(ctx, *act.writeBacklog)
			if err != nil {
				act.backlogErr = fmt.Errorf("create: %w", err)
			} else {
				act.wroteBacklog = &created
			}
		} else if err := c.e.backlog.UpdateTask(ctx, *act.writeBacklog); err != nil {
			act.backlogErr = fmt.Errorf("update: %w", err)
		} else {
			act.wroteBacklog = act.writeBacklog
		}
	}
	if act.writePlanner != nil {
		if act.createPlanner {
			created, err := c.e.planner.CreateTask(ctx, *act.writePlanner)
			if err != nil {
				act.plannerErr = fmt.Errorf("create: %w", err)
			} else {
				act.wrotePlanner = &created
			}
		} else if err := c.e.planner.UpdateTask(ctx, *act.writePlanner); err != nil {
			act.plannerErr = fmt.Errorf("update: %w", err)
		} else {
			act.wrotePlanner = act.writePlanner
		}
	}
	return errors.Join(act.backlogErr, act.plannerErr)
}

// apply folds an executed action into the working state and the result.
func (c *cycle) apply(act *action) {
	if act.backlogErr != nil {
		c.result.AddError("%s: %v", c.backlogLabel(act), act.backlogErr)
	}
	if act.plannerErr != nil {
		c.result.AddError("%s: %v", c.plannerLabel(act), act.plannerErr)
	}
	if act.wroteBacklog != nil {
		c.backlog[act.wroteBacklog.ID] = act.wroteBacklog
	}
	if act.wrotePlanner != nil {
		c.planner[act.wrotePlanner.ID] = act.wrotePlanner
	}
	if act.mapping != nil {
		c.touched[act.mapping.UUID] = true
	}

	switch act.kind {
	case actCreate:
		if act.failed() {
			return
		}
		a, b := act.finalPair()
		m := c.addMapping(a, b)
		c.result.Created++
		c.e.debugf("%s: created counterpart, mapping %s", act.label, m.Key())

	case actRecreate:
		if act.failed() {
			return
		}
		a, b := act.finalPair()
		m := act.mapping
		if (act.source == domain.SideBacklog && (m.PlannerID == nil || *m.PlannerID != b.ID)) ||
			(act.source == domain.SidePlanner && (m.BacklogID == nil || *m.BacklogID != a.ID)) {
			// The destination assigned a new id; the old pair is kept as a
			// tombstone and the new pair gets its own mapping.
			c.tombstone(m)
			m = c.addMapping(a, b)
		} else {
			c.syncMapping(m, a, b)
		}
		c.result.Created++
		c.e.debugf("%s: recreated counterpart, mapping %s", act.label, m.Key())

	case actUpdate:
		if act.failed() {
			return
		}
		a, b := act.finalPair()
		c.syncMapping(act.mapping, a, b)
		c.result.Updated++

	case actConflict:
		c.applyConflict(act)

	case actRebaseline:
		c.syncMapping(act.mapping, act.backlog, act.planner)

	case actAdopt:
		if act.failed() {
			return
		}
		a, b := act.finalPair()
		m := c.addMapping(a, b)
		if act.writeBacklog != nil || act.writePlanner != nil {
			c.result.Updated++
		}
		c.e.debugf("%s: adopted existing counterpart, mapping %s", act.label, m.Key())
	}
}

func (c *cycle) applyConflict(act *action) {
	m, d := act.mapping, act.decision
	m.ConflictCount++
	c.result.Conflicts++
	c.events = append(c.events, domain.ConflictEvent{
		MappingUUID: m.UUID,
		MappingID:   m.ID,
		Key:         m.Key(),
		Strategy:    c.e.opts.Strategy,
		Outcome:     d.Target.String(),
		DetectedAt:  c.now,
	})

	if d.Target == Defer {
		record, err := c.conflictRecord(m, act.backlog, act.planner)
		if err != nil {
			c.result.AddError("%s: log conflict: %v", act.label, err)
			return
		}
		c.conflicts = append(c.conflicts, record)
		c.syncMapping(m, act.backlog, act.planner)
		return
	}
	if act.failed() {
		return
	}

	a, b := act.finalPair()
	c.syncMapping(m, a, b)
	if d.Target != WriteNone {
		c.result.Updated++
	}
}

func (c *cycle) conflictRecord(m *domain.TaskMapping, a *domain.BacklogTask, b *domain.PlannerTask) (*domain.ConflictRecord, error) {
	backlogJSON, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to encode backlog snapshot: %w", err)
	}
	plannerJSON, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to encode planner snapshot: %w", err)
	}
	return &domain.ConflictRecord{
		UUID:        uuid.NewString(),
		MappingUUID: m.UUID,
		Strategy:    c.e.opts.Strategy,
		Backlog:     string(backlogJSON),
		Planner:     string(plannerJSON),
		DetectedAt:  c.now,
	}, nil
}

// addMapping links a freshly created pair.
func (c *cycle) addMapping(a *domain.BacklogTask, b *domain.PlannerTask) *domain.TaskMapping {
	backlogID, plannerID := a.ID, b.ID
	m := &domain.TaskMapping{
		UUID:      uuid.NewString(),
		BacklogID: &backlogID,
		PlannerID: &plannerID,
		CreatedAt: c.now,
	}
	c.rebase(m, a, b)
	c.mappings = append(c.mappings, m)
	c.index(m)
	c.touched[m.UUID] = true
	c.created[m.UUID] = true
	c.createdIDs = append(c.createdIDs, m.UUID)
	return m
}

// syncMapping records pair as the mapping's last-synced state.
func (c *cycle) syncMapping(m *domain.TaskMapping, a *domain.BacklogTask, b *domain.PlannerTask) {
	if _, seen := c.updated[m.UUID]; !seen && !c.created[m.UUID] {
		c.updated[m.UUID] = m.Fingerprint
	}
	c.rebase(m, a, b)
}

func (c *cycle) rebase(m *domain.TaskMapping, a *domain.BacklogTask, b *domain.PlannerTask) {
	m.Fingerprint = fingerprint.Compute(a, b)
	m.Snapshot = string(fingerprint.Canonical(a, b))
	m.LastSyncAt = c.now
}

func (c *cycle) tombstone(m *domain.TaskMapping) {
	at := c.now
	m.TombstonedAt = &at
	c.unindex(m)
	c.tombstoned = append(c.tombstoned, m.UUID)
	c.result.Tombstoned++
}

// revive brings back the most recent tombstone for a task that reappeared
// on side, unless its counterpart now belongs to another live mapping.
func (c *cycle) revive(side domain.Side, taskID string) *domain.TaskMapping {
	var found *domain.TaskMapping
	for _, m := range c.mappings {
		if !m.Tombstoned() {
			continue
		}
		if side == domain.SideBacklog && (m.BacklogID == nil || strconv.FormatInt(*m.BacklogID, 10) != taskID) {
			continue
		}
		if side == domain.SidePlanner && (m.PlannerID == nil || *m.PlannerID != taskID) {
			continue
		}
		if found == nil || m.TombstonedAt.After(*found.TombstonedAt) {
			found = m
		}
	}
	if found == nil {
		return nil
	}
	if side == domain.SideBacklog && found.PlannerID != nil && c.livePlanner[*found.PlannerID] != nil {
		return nil
	}
	if side == domain.SidePlanner && found.BacklogID != nil && c.liveBacklog[*found.BacklogID] != nil {
		return nil
	}

	found.TombstonedAt = nil
	c.index(found)
	if _, seen := c.updated[found.UUID]; !seen {
		c.updated[found.UUID] = found.Fingerprint
	}
	c.e.debugf("%s task %s: revived mapping %s", side, taskID, found.Key())
	return found
}

// sweep tombstones live mappings whose tasks are gone from both sides.
func (c *cycle) sweep() {
	for _, m := range c.mappings {
		if m.Tombstoned() {
			continue
		}
		backlogGone := m.BacklogID == nil || c.backlog[*m.BacklogID] == nil
		plannerGone := m.PlannerID == nil || c.planner[*m.PlannerID] == nil
		if backlogGone && plannerGone {
			c.tombstone(m)
		}
	}
}

// prune drops tombstones older than the TTL.
func (c *cycle) prune() {
	ttl := c.e.opts.TombstoneTTL
	if ttl <= 0 {
		return
	}
	cutoff := c.now.Add(-ttl)
	kept := c.mappings[:0]
	for _, m := range c.mappings {
		if m.Tombstoned() && m.TombstonedAt.Before(cutoff) {
			c.pruned = append(c.pruned, m)
			c.result.Pruned++
			continue
		}
		kept = append(kept, m)
	}
	c.mappings = kept
}

func (c *cycle) storeCycle() store.Cycle {
	mappings := c.mappings
	if mappings == nil {
		mappings = []*domain.TaskMapping{}
	}
	return store.Cycle{
		Mappings:   mappings,
		Created:    c.createdIDs,
		Updated:    c.updated,
		Tombstoned: c.tombstoned,
		Pruned:     c.pruned,
		Conflicts:  c.conflicts,
		Result:     c.result,
	}
}

// stamp returns a fresh pointer to the cycle time for a task being written.
func (c *cycle) stamp() *time.Time {
	at := c.now
	return &at
}

func (c *cycle) backlogLabel(act *action) string {
	if act.backlog != nil {
		return fmt.Sprintf("backlog task %d", act.backlog.ID)
	}
	if act.writeBacklog != nil && act.writeBacklog.ID != 0 {
		return fmt.Sprintf("backlog task %d", act.writeBacklog.ID)
	}
	return fmt.Sprintf("backlog task for %s", act.label)
}

func (c *cycle) plannerLabel(act *action) string {
	if act.planner != nil {
		return "planner task " + act.planner.ID
	}
	if act.writePlanner != nil && act.writePlanner.ID != "" {
		return "planner task " + act.writePlanner.ID
	}
	return "planner task for " + act.label
}

// sortPlannerIDs orders numeric ids numerically, then the rest lexically.
func sortPlannerIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		ni, errI := strconv.Atoi(ids[i])
		nj, errJ := strconv.Atoi(ids[j])
		switch {
		case errI == nil && errJ == nil:
			return ni < nj
		case errI == nil:
			return true
		case errJ == nil:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
}
