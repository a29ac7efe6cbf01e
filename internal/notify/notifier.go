package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/mistakeknot/concord/internal/core"
	"github.com/mistakeknot/concord/internal/storage"
)

// Broadcaster pushes an event to live subscribers. *ws.Hub satisfies it.
type Broadcaster interface {
	Broadcast(org, actor string, event any)
}

// Notifier records noteworthy transitions on the activity chain and pushes
// them to subscribers. Every method is best effort: the transition that
// triggered the notification has already committed, so failures here are
// logged and swallowed rather than surfaced to the caller.
type Notifier struct {
	store  storage.Store
	hub    Broadcaster
	logger *log.Logger
}

func New(store storage.Store, hub Broadcaster) *Notifier {
	return &Notifier{store: store, hub: hub, logger: log.Default()}
}

// WithLogger overrides the destination for suppressed errors.
func (n *Notifier) WithLogger(l *log.Logger) *Notifier {
	if l != nil {
		n.logger = l
	}
	return n
}

// StatusChanged records an epic/sprint lifecycle transition and broadcasts
// it to the org's subscribers.
func (n *Notifier) StatusChanged(ctx context.Context, orgID string, change core.StatusChange) {
	if n == nil {
		return
	}
	if n.store != nil && change.ChangedBy != "" {
		_, err := n.store.AppendEvents(ctx, change.GraphID, []core.Event{{
			ActorID:   change.ChangedBy,
			OrgID:     orgID,
			ProjectID: change.GraphID,
			Category:  core.EventStatusChange,
			Description: fmt.Sprintf("%s %s status: %s -> %s",
				change.EntityKind, change.EntityID, change.OldStatus, change.NewStatus),
			Timestamp: change.ChangedAt,
			Payload: map[string]string{
				"entity_kind": change.EntityKind,
				"entity_id":   change.EntityID,
				"old_status":  string(change.OldStatus),
				"new_status":  string(change.NewStatus),
			},
		}})
		if err != nil {
			n.logger.Printf("notify: record status change for %s %s: %v", change.EntityKind, change.EntityID, err)
		}
	}
	if n.hub != nil {
		n.hub.Broadcast(orgID, "", map[string]any{
			"type":   "status.changed",
			"change": change,
		})
	}
}

// Assigned records a task assignment on the orchestrator's chain and pushes
// a targeted notification to the assigned agent.
func (n *Notifier) Assigned(ctx context.Context, graphID string, task core.Task) {
	if n == nil {
		return
	}
	if n.store != nil && task.AssignedBy != "" {
		_, err := n.store.AppendEvents(ctx, graphID, []core.Event{{
			ActorID:     task.AssignedBy,
			OrgID:       task.OrgID,
			ProjectID:   graphID,
			Category:    core.EventAssignment,
			Description: fmt.Sprintf("assigned task %s to %s", task.ID, task.AssignedTo),
			Payload: map[string]string{
				"task_id":  task.ID,
				"agent_id": task.AssignedTo,
			},
		}})
		if err != nil {
			n.logger.Printf("notify: record assignment of %s: %v", task.ID, err)
		}
	}
	if n.hub != nil {
		n.hub.Broadcast(task.OrgID, task.AssignedTo, map[string]any{
			"type": "task.assigned",
			"task": task,
		})
	}
}

// Claimed pushes a targeted notification for a successful claim. Claims are
// self-initiated, so nothing extra lands on the chain.
func (n *Notifier) Claimed(ctx context.Context, task core.Task) {
	if n == nil || n.hub == nil {
		return
	}
	n.hub.Broadcast(task.OrgID, task.ClaimedBy, map[string]any{
		"type": "task.claimed",
		"task": task,
	})
}

// LockAcquired pushes an org-wide notification for a new or extended lock so
// open editors can mark the node as held.
func (n *Notifier) LockAcquired(ctx context.Context, orgID string, lock core.EditLock) {
	if n == nil || n.hub == nil {
		return
	}
	n.hub.Broadcast(orgID, "", map[string]any{
		"type": "lock.acquired",
		"lock": lock,
	})
}

// LockReleased pushes an org-wide notification that a node is free again.
func (n *Notifier) LockReleased(ctx context.Context, orgID, nodeID, graphID string) {
	if n == nil || n.hub == nil {
		return
	}
	n.hub.Broadcast(orgID, "", map[string]any{
		"type":    "lock.released",
		"nodeId":  nodeID,
		"graphId": graphID,
	})
}
