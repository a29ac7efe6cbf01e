package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/mistakeknot/concord/internal/core"
	"github.com/mistakeknot/concord/internal/storage"
)

// Compile-time interface check.
var _ storage.Store = (*ResilientStore)(nil)

// ResilientStore wraps every method of *Store with CircuitBreaker +
// RetryOnBusy to ride out transient SQLite contention. Domain outcomes
// (conflicts, not-found) pass straight through: they are answers, not
// failures, and must neither trip the breaker nor be retried.
type ResilientStore struct {
	inner *Store
	cb    *CircuitBreaker
}

// NewResilient creates a ResilientStore with default breaker settings
// (threshold=5, resetTimeout=30s).
func NewResilient(inner *Store) *ResilientStore {
	return &ResilientStore{inner: inner, cb: NewCircuitBreaker(5, 30*time.Second)}
}

// NewResilientWithBreaker creates a ResilientStore with a custom breaker.
func NewResilientWithBreaker(inner *Store, cb *CircuitBreaker) *ResilientStore {
	return &ResilientStore{inner: inner, cb: cb}
}

// CircuitBreakerState returns the breaker state as a string.
func (r *ResilientStore) CircuitBreakerState() string {
	return r.cb.State().String()
}

func isDomainError(err error) bool {
	if err == nil {
		return false
	}
	var conflict *core.ConflictError
	var held *core.LockHeldError
	return errors.Is(err, core.ErrNotFound) || errors.As(err, &conflict) || errors.As(err, &held)
}

func (r *ResilientStore) execute(fn func() error) error {
	var domainErr error
	err := r.cb.Execute(func() error {
		return RetryOnBusy(func() error {
			if err := fn(); err != nil {
				if isDomainError(err) {
					domainErr = err
					return nil
				}
				return err
			}
			return nil
		})
	})
	if domainErr != nil {
		return domainErr
	}
	return err
}

func (r *ResilientStore) RegisterAgent(ctx context.Context, agent core.Agent) (core.Agent, error) {
	var result core.Agent
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.RegisterAgent(ctx, agent)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) GetAgent(ctx context.Context, orgID, id string) (core.Agent, error) {
	var result core.Agent
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.GetAgent(ctx, orgID, id)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) ListAgents(ctx context.Context, orgID string, limit int) ([]core.Agent, error) {
	var result []core.Agent
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.ListAgents(ctx, orgID, limit)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) Heartbeat(ctx context.Context, orgID, id string) (core.Agent, error) {
	var result core.Agent
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.Heartbeat(ctx, orgID, id)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) CreateTask(ctx context.Context, task core.Task) (core.Task, error) {
	var result core.Task
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.CreateTask(ctx, task)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) GetTask(ctx context.Context, id string) (core.Task, error) {
	var result core.Task
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.GetTask(ctx, id)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) ClaimTask(ctx context.Context, taskID, agentID, orgID string) (core.Task, core.Agent, error) {
	var task core.Task
	var agent core.Agent
	err := r.execute(func() error {
		var innerErr error
		task, agent, innerErr = r.inner.ClaimTask(ctx, taskID, agentID, orgID)
		return innerErr
	})
	return task, agent, err
}

func (r *ResilientStore) AssignTask(ctx context.Context, taskID, agentID, orchestratorID, orgID string, priority *int) (core.Task, error) {
	var result core.Task
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.AssignTask(ctx, taskID, agentID, orchestratorID, orgID, priority)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) AcquireLock(ctx context.Context, nodeID, graphID, holderID, holderDisplay string) (storage.LockResult, error) {
	var result storage.LockResult
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.AcquireLock(ctx, nodeID, graphID, holderID, holderDisplay)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) CheckLock(ctx context.Context, nodeID, graphID string) (*core.EditLock, error) {
	var result *core.EditLock
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.CheckLock(ctx, nodeID, graphID)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) ReleaseLock(ctx context.Context, nodeID, graphID, holderID string) error {
	return r.execute(func() error {
		return r.inner.ReleaseLock(ctx, nodeID, graphID, holderID)
	})
}

func (r *ResilientStore) AppendEvents(ctx context.Context, graphID string, events []core.Event) (storage.AppendResult, error) {
	var result storage.AppendResult
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.AppendEvents(ctx, graphID, events)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) EventChain(ctx context.Context, actorID, projectID string, limit int) ([]core.Event, error) {
	var result []core.Event
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.EventChain(ctx, actorID, projectID, limit)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) CreateEpic(ctx context.Context, epic core.Epic) (core.Epic, error) {
	var result core.Epic
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.CreateEpic(ctx, epic)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) GetEpic(ctx context.Context, graphID, id string) (core.Epic, error) {
	var result core.Epic
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.GetEpic(ctx, graphID, id)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) UpdateEpicStatus(ctx context.Context, graphID, id string, status core.LifecycleStatus, changedBy string) (core.Epic, core.LifecycleStatus, error) {
	var epic core.Epic
	var previous core.LifecycleStatus
	err := r.execute(func() error {
		var innerErr error
		epic, previous, innerErr = r.inner.UpdateEpicStatus(ctx, graphID, id, status, changedBy)
		return innerErr
	})
	return epic, previous, err
}

func (r *ResilientStore) CreateSprint(ctx context.Context, sprint core.Sprint) (core.Sprint, error) {
	var result core.Sprint
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.CreateSprint(ctx, sprint)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) GetSprint(ctx context.Context, graphID, id string) (core.Sprint, error) {
	var result core.Sprint
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.GetSprint(ctx, graphID, id)
		return innerErr
	})
	return result, err
}

func (r *ResilientStore) UpdateSprintStatus(ctx context.Context, graphID, id string, status core.LifecycleStatus, changedBy string) (core.Sprint, core.LifecycleStatus, error) {
	var sprint core.Sprint
	var previous core.LifecycleStatus
	err := r.execute(func() error {
		var innerErr error
		sprint, previous, innerErr = r.inner.UpdateSprintStatus(ctx, graphID, id, status, changedBy)
		return innerErr
	})
	return sprint, previous, err
}

func (r *ResilientStore) Ping(ctx context.Context) error {
	return r.execute(func() error {
		return r.inner.Ping(ctx)
	})
}

// Close delegates directly to the inner store without breaker or retry.
func (r *ResilientStore) Close() error {
	return r.inner.Close()
}
