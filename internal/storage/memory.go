package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mistakeknot/concord/internal/core"
)

// InMemory is a mutex-guarded store for tests and embedded single-process
// use. It honors the same conditional-write semantics as the SQLite store;
// handler tests run against it without a database file.
type InMemory struct {
	mu      sync.Mutex
	now     Clock
	lockTTL time.Duration

	agents  map[string]core.Agent
	tasks   map[string]core.Task
	locks   map[string]core.EditLock // key: nodeID + "\x00" + graphID
	events  []core.Event
	actors  map[string]struct{}
	epics   map[string]core.Epic
	sprints map[string]core.Sprint
}

// NewInMemory creates an empty in-memory store with a 15 minute lock lease.
func NewInMemory() *InMemory {
	return &InMemory{
		now:     func() time.Time { return time.Now().UTC() },
		lockTTL: 15 * time.Minute,
		agents:  make(map[string]core.Agent),
		tasks:   make(map[string]core.Task),
		locks:   make(map[string]core.EditLock),
		actors:  make(map[string]struct{}),
		epics:   make(map[string]core.Epic),
		sprints: make(map[string]core.Sprint),
	}
}

// SetClock overrides the time source. Test hook.
func (m *InMemory) SetClock(now Clock) { m.now = now }

// SetLockDuration overrides the default lock lease.
func (m *InMemory) SetLockDuration(d time.Duration) { m.lockTTL = d }

func lockKey(nodeID, graphID string) string { return nodeID + "\x00" + graphID }

func (m *InMemory) RegisterAgent(_ context.Context, agent core.Agent) (core.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	now := m.now()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now
	if agent.Status == "" {
		agent.Status = core.AgentStatusActive
	}
	m.agents[agent.ID] = agent
	return agent, nil
}

func (m *InMemory) GetAgent(_ context.Context, orgID, id string) (core.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[id]
	if !ok || (orgID != "" && agent.OrgID != orgID) {
		return core.Agent{}, core.AgentNotFound(id)
	}
	return agent, nil
}

func (m *InMemory) ListAgents(_ context.Context, orgID string, limit int) ([]core.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Agent
	for _, agent := range m.agents {
		if orgID == "" || agent.OrgID == orgID {
			out = append(out, agent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *InMemory) Heartbeat(_ context.Context, orgID, id string) (core.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[id]
	if !ok || (orgID != "" && agent.OrgID != orgID) {
		return core.Agent{}, core.AgentNotFound(id)
	}
	agent.UpdatedAt = m.now()
	if agent.Status == core.AgentStatusOffline {
		agent.Status = core.AgentStatusIdle
	}
	m.agents[id] = agent
	return agent, nil
}

func (m *InMemory) CreateTask(_ context.Context, task core.Task) (core.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := m.now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = core.TaskStatusAvailable
	}
	m.tasks[task.ID] = task
	return task, nil
}

func (m *InMemory) GetTask(_ context.Context, id string) (core.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return core.Task{}, core.TaskNotFound(id)
	}
	return task, nil
}

// ClaimTask applies the pull-model conditional write: task available and
// unowned, agent present under the caller's org. On failure the ownership
// snapshot is classified into the accurate conflict code.
func (m *InMemory) ClaimTask(_ context.Context, taskID, agentID, orgID string) (core.Task, core.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, taskOK := m.tasks[taskID]
	agent, agentOK := m.agents[agentID]
	if agentOK && orgID != "" && agent.OrgID != orgID {
		agentOK = false
	}

	if taskOK && agentOK && task.Status == core.TaskStatusAvailable && task.ClaimedBy == "" && task.AssignedTo == "" {
		now := m.now()
		task.Status = core.TaskStatusInProgress
		task.ClaimedBy = agentID
		task.ClaimedAt = &now
		task.UpdatedAt = now
		m.tasks[taskID] = task

		agent.Status = core.AgentStatusBusy
		agent.UpdatedAt = now
		m.agents[agentID] = agent
		return task, agent, nil
	}

	return core.Task{}, core.Agent{}, core.ClassifyClaimConflict(m.ownershipState(task, taskOK, agentOK))
}

func (m *InMemory) AssignTask(_ context.Context, taskID, agentID, orchestratorID, orgID string, priority *int) (core.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, taskOK := m.tasks[taskID]
	agent, agentOK := m.agents[agentID]
	if agentOK && orgID != "" && agent.OrgID != orgID {
		agentOK = false
	}

	assignable := task.Status == core.TaskStatusAvailable || task.Status == core.TaskStatusPending
	if taskOK && agentOK && assignable && task.ClaimedBy == "" && task.AssignedTo == "" {
		now := m.now()
		task.Status = core.TaskStatusAssigned
		task.AssignedTo = agentID
		task.AssignedBy = orchestratorID
		task.AssignedAt = &now
		if priority != nil {
			task.Priority = *priority
		}
		task.UpdatedAt = now
		m.tasks[taskID] = task
		return task, nil
	}

	return core.Task{}, core.ClassifyAssignConflict(m.ownershipState(task, taskOK, agentOK))
}

func (m *InMemory) ownershipState(task core.Task, taskOK, agentOK bool) core.OwnershipState {
	st := core.OwnershipState{TaskExists: taskOK, AgentExists: agentOK}
	if !taskOK {
		return st
	}
	st.TaskStatus = task.Status
	st.ClaimedBy = task.ClaimedBy
	st.AssignedTo = task.AssignedTo
	if holder, ok := m.agents[task.ClaimedBy]; ok {
		st.ClaimedName = holder.Name
	}
	if holder, ok := m.agents[task.AssignedTo]; ok {
		st.AssignedName = holder.Name
	}
	return st
}

func (m *InMemory) AcquireLock(_ context.Context, nodeID, graphID, holderID, holderDisplay string) (LockResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	// Lazy hygiene: drop every expired lock before looking at the target.
	for key, lock := range m.locks {
		if lock.Expired(now) {
			delete(m.locks, key)
		}
	}

	key := lockKey(nodeID, graphID)
	if existing, ok := m.locks[key]; ok {
		if existing.HolderID != holderID {
			return LockResult{}, &core.LockHeldError{Code: core.CodeNodeLocked, Lock: existing}
		}
		existing.ExpiresAt = now.Add(m.lockTTL)
		m.locks[key] = existing
		return LockResult{Lock: existing, Created: false}, nil
	}

	lock := core.EditLock{
		NodeID:        nodeID,
		GraphID:       graphID,
		HolderID:      holderID,
		HolderDisplay: holderDisplay,
		AcquiredAt:    now,
		ExpiresAt:     now.Add(m.lockTTL),
	}
	m.locks[key] = lock
	return LockResult{Lock: lock, Created: true}, nil
}

func (m *InMemory) CheckLock(_ context.Context, nodeID, graphID string) (*core.EditLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[lockKey(nodeID, graphID)]
	if !ok || lock.Expired(m.now()) {
		return nil, nil
	}
	out := lock
	return &out, nil
}

func (m *InMemory) ReleaseLock(_ context.Context, nodeID, graphID, holderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := lockKey(nodeID, graphID)
	lock, ok := m.locks[key]
	if !ok {
		// Already released: benign no-op.
		return nil
	}
	if lock.HolderID != holderID {
		return &core.LockHeldError{Code: core.CodeNotLockHolder, Lock: lock}
	}
	delete(m.locks, key)
	return nil
}

func (m *InMemory) AppendEvents(_ context.Context, graphID string, events []core.Event) (AppendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result AppendResult
	for _, ev := range events {
		if ev.ActorID == "" || ev.Category == "" || ev.Description == "" {
			result.Rejected++
			continue
		}
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = m.now()
		}
		if ev.ProjectID == "" {
			ev.ProjectID = graphID
		}
		m.actors[ev.ActorID] = struct{}{}
		ev.PrevID = m.latestEventID(ev.ActorID, ev.ProjectID)
		m.events = append(m.events, ev)
		result.Receipts = append(result.Receipts, core.EventReceipt{ID: ev.ID, Timestamp: ev.Timestamp})
	}
	return result, nil
}

func (m *InMemory) latestEventID(actorID, projectID string) string {
	var latest *core.Event
	for i := range m.events {
		ev := &m.events[i]
		if ev.ActorID != actorID || ev.ProjectID != projectID {
			continue
		}
		// Ties go to the later insert, matching the SQLite rowid tie-break.
		if latest == nil || !ev.Timestamp.Before(latest.Timestamp) {
			latest = ev
		}
	}
	if latest == nil {
		return ""
	}
	return latest.ID
}

func (m *InMemory) EventChain(_ context.Context, actorID, projectID string, limit int) ([]core.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Event
	for _, ev := range m.events {
		if ev.ActorID == actorID && ev.ProjectID == projectID {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *InMemory) CreateEpic(_ context.Context, epic core.Epic) (core.Epic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epic.ID == "" {
		epic.ID = uuid.NewString()
	}
	now := m.now()
	if epic.CreatedAt.IsZero() {
		epic.CreatedAt = now
	}
	epic.UpdatedAt = now
	if epic.Status == "" {
		epic.Status = core.LifecycleActive
	}
	m.epics[epic.ID] = epic
	return epic, nil
}

func (m *InMemory) GetEpic(_ context.Context, graphID, id string) (core.Epic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	epic, ok := m.epics[id]
	if !ok || (graphID != "" && epic.GraphID != graphID) {
		return core.Epic{}, &core.NotFoundError{Code: core.CodeEpicNotFound, Message: fmt.Sprintf("epic %s not found", id)}
	}
	return epic, nil
}

func (m *InMemory) UpdateEpicStatus(_ context.Context, graphID, id string, status core.LifecycleStatus, changedBy string) (core.Epic, core.LifecycleStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	epic, ok := m.epics[id]
	if !ok || (graphID != "" && epic.GraphID != graphID) {
		return core.Epic{}, "", &core.NotFoundError{Code: core.CodeEpicNotFound, Message: fmt.Sprintf("epic %s not found", id)}
	}
	previous := epic.Status
	now := m.now()
	epic.Status = status
	epic.StatusUpdatedAt = &now
	epic.StatusUpdatedBy = changedBy
	epic.UpdatedAt = now
	m.epics[id] = epic
	return epic, previous, nil
}

func (m *InMemory) CreateSprint(_ context.Context, sprint core.Sprint) (core.Sprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sprint.ID == "" {
		sprint.ID = uuid.NewString()
	}
	now := m.now()
	if sprint.CreatedAt.IsZero() {
		sprint.CreatedAt = now
	}
	sprint.UpdatedAt = now
	if sprint.Status == "" {
		sprint.Status = core.LifecycleActive
	}
	m.sprints[sprint.ID] = sprint
	return sprint, nil
}

func (m *InMemory) GetSprint(_ context.Context, graphID, id string) (core.Sprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sprint, ok := m.sprints[id]
	if !ok || (graphID != "" && sprint.GraphID != graphID) {
		return core.Sprint{}, &core.NotFoundError{Code: core.CodeSprintNotFound, Message: fmt.Sprintf("sprint %s not found", id)}
	}
	return sprint, nil
}

func (m *InMemory) UpdateSprintStatus(_ context.Context, graphID, id string, status core.LifecycleStatus, changedBy string) (core.Sprint, core.LifecycleStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sprint, ok := m.sprints[id]
	if !ok || (graphID != "" && sprint.GraphID != graphID) {
		return core.Sprint{}, "", &core.NotFoundError{Code: core.CodeSprintNotFound, Message: fmt.Sprintf("sprint %s not found", id)}
	}
	previous := sprint.Status
	now := m.now()
	sprint.Status = status
	sprint.StatusUpdatedAt = &now
	sprint.StatusUpdatedBy = changedBy
	sprint.UpdatedAt = now
	m.sprints[id] = sprint
	return sprint, previous, nil
}

func (m *InMemory) Ping(context.Context) error { return nil }

func (m *InMemory) Close() error { return nil }

var _ Store = (*InMemory)(nil)
