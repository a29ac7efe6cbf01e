package storage

import (
	"context"
	"time"

	"github.com/mistakeknot/concord/internal/core"
)

// LockResult reports the outcome of a successful acquire: Created is true
// for a fresh lock (201), false for a same-holder extension (200).
type LockResult struct {
	Lock    core.EditLock
	Created bool
}

// AppendResult reports a batch append: receipts for accepted events plus
// the count of events rejected by validation. Rejections never roll back
// earlier inserts in the same batch.
type AppendResult struct {
	Receipts []core.EventReceipt
	Rejected int
}

// Store is the coordination core's view of the graph store. Every mutating
// method is a single conditional write; precondition failures surface as
// typed errors from internal/core, never as partial state.
type Store interface {
	// Agent registry
	RegisterAgent(ctx context.Context, agent core.Agent) (core.Agent, error)
	GetAgent(ctx context.Context, orgID, id string) (core.Agent, error)
	ListAgents(ctx context.Context, orgID string, limit int) ([]core.Agent, error)
	Heartbeat(ctx context.Context, orgID, id string) (core.Agent, error)

	// Task coordination
	CreateTask(ctx context.Context, task core.Task) (core.Task, error)
	GetTask(ctx context.Context, id string) (core.Task, error)
	ClaimTask(ctx context.Context, taskID, agentID, orgID string) (core.Task, core.Agent, error)
	AssignTask(ctx context.Context, taskID, agentID, orchestratorID, orgID string, priority *int) (core.Task, error)

	// Edit locks
	AcquireLock(ctx context.Context, nodeID, graphID, holderID, holderDisplay string) (LockResult, error)
	CheckLock(ctx context.Context, nodeID, graphID string) (*core.EditLock, error)
	ReleaseLock(ctx context.Context, nodeID, graphID, holderID string) error

	// Event log
	AppendEvents(ctx context.Context, graphID string, events []core.Event) (AppendResult, error)
	EventChain(ctx context.Context, actorID, projectID string, limit int) ([]core.Event, error)

	// Lifecycle status
	CreateEpic(ctx context.Context, epic core.Epic) (core.Epic, error)
	GetEpic(ctx context.Context, graphID, id string) (core.Epic, error)
	UpdateEpicStatus(ctx context.Context, graphID, id string, status core.LifecycleStatus, changedBy string) (core.Epic, core.LifecycleStatus, error)
	CreateSprint(ctx context.Context, sprint core.Sprint) (core.Sprint, error)
	GetSprint(ctx context.Context, graphID, id string) (core.Sprint, error)
	UpdateSprintStatus(ctx context.Context, graphID, id string, status core.LifecycleStatus, changedBy string) (core.Sprint, core.LifecycleStatus, error)

	// Ping reports store reachability; mutating handlers check it before
	// attempting a write so unreachable stores map to 503, not 500.
	Ping(ctx context.Context) error
	Close() error
}

// Clock is the injectable time source used by stores so lock expiry can be
// tested without sleeping.
type Clock func() time.Time
