package core

import "time"

// AgentStatus represents the lifecycle state of a registered agent.
type AgentStatus string

const (
	AgentStatusActive  AgentStatus = "active"
	AgentStatusIdle    AgentStatus = "idle"
	AgentStatusBusy    AgentStatus = "busy"
	AgentStatusOffline AgentStatus = "offline"
)

// Agent represents a registered worker, human or autonomous. Agents are
// never hard-deleted; status transitions cover the whole lifecycle.
type Agent struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Status       AgentStatus       `json:"status"`
	OrgID        string            `json:"organization_id"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// TaskStatus represents the status of a task.
type TaskStatus string

const (
	TaskStatusAvailable  TaskStatus = "available"
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusAssigned   TaskStatus = "assigned"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusComplete   TaskStatus = "complete"
)

// Task is a unit of work. Ownership is held by at most one of ClaimedBy
// (pull model) or AssignedTo (push model), never both.
type Task struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Status     TaskStatus `json:"status"`
	Priority   int        `json:"priority,omitempty"`
	OrgID      string     `json:"organization_id"`
	ProjectID  string     `json:"project_id,omitempty"`
	ClaimedBy  string     `json:"claimed_by,omitempty"`
	ClaimedAt  *time.Time `json:"claimed_at,omitempty"`
	AssignedTo string     `json:"assigned_to,omitempty"`
	AssignedBy string     `json:"assigned_by,omitempty"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// EditLock is an exclusive, time-boxed hold on a graph node. At most one
// unexpired lock exists per (node_id, graph_id).
type EditLock struct {
	NodeID        string    `json:"nodeId"`
	GraphID       string    `json:"graphId"`
	HolderID      string    `json:"userId"`
	HolderDisplay string    `json:"email"`
	AcquiredAt    time.Time `json:"since"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// Expired reports whether the lock's lease has lapsed at the given instant.
func (l EditLock) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

// EventCategory classifies activity records. The set is open; these are
// the categories the core itself writes or recognizes.
type EventCategory string

const (
	EventFix          EventCategory = "fix"
	EventFeature      EventCategory = "feature"
	EventDecision     EventCategory = "decision"
	EventInsight      EventCategory = "insight"
	EventGit          EventCategory = "git"
	EventAchievement  EventCategory = "achievement"
	EventAssignment   EventCategory = "assignment"
	EventStatusChange EventCategory = "status_change"
)

// Event is an immutable activity record. PrevID links to the most recent
// prior event for the same (actor, project), forming the temporal chain.
type Event struct {
	ID          string            `json:"id"`
	ActorID     string            `json:"actor_id"`
	OrgID       string            `json:"organization_id,omitempty"`
	ProjectID   string            `json:"project_id"`
	Category    EventCategory     `json:"category"`
	Description string            `json:"description"`
	Timestamp   time.Time         `json:"timestamp"`
	Impact      string            `json:"impact,omitempty"`
	Files       []string          `json:"files,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Shared      bool              `json:"shared,omitempty"`
	Payload     map[string]string `json:"payload,omitempty"`
	PrevID      string            `json:"prev_id,omitempty"`
}

// EventReceipt is returned per accepted event in a batch append.
type EventReceipt struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// LifecycleStatus is the status of an epic or sprint.
type LifecycleStatus string

const (
	LifecycleActive    LifecycleStatus = "active"
	LifecyclePaused    LifecycleStatus = "paused"
	LifecycleCompleted LifecycleStatus = "completed"
	LifecycleArchived  LifecycleStatus = "archived"
)

// ValidLifecycleStatus reports whether s is a recognized epic/sprint status.
func ValidLifecycleStatus(s LifecycleStatus) bool {
	switch s {
	case LifecycleActive, LifecyclePaused, LifecycleCompleted, LifecycleArchived:
		return true
	}
	return false
}

// Epic is a grouping node whose lifecycle status transitions drive
// status-change notifications.
type Epic struct {
	ID              string          `json:"id"`
	GraphID         string          `json:"graph_id"`
	Title           string          `json:"title"`
	Status          LifecycleStatus `json:"status"`
	StatusUpdatedAt *time.Time      `json:"status_updated_at,omitempty"`
	StatusUpdatedBy string          `json:"status_updated_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Sprint mirrors Epic for sprint nodes.
type Sprint struct {
	ID              string          `json:"id"`
	GraphID         string          `json:"graph_id"`
	Name            string          `json:"name"`
	Status          LifecycleStatus `json:"status"`
	StatusUpdatedAt *time.Time      `json:"status_updated_at,omitempty"`
	StatusUpdatedBy string          `json:"status_updated_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// StatusChange captures an authoritative lifecycle transition for the
// notifier. ChangedAt is the commit time of the transition itself.
type StatusChange struct {
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id"`
	GraphID    string          `json:"graph_id"`
	OldStatus  LifecycleStatus `json:"old_status"`
	NewStatus  LifecycleStatus `json:"new_status"`
	ChangedBy  string          `json:"changed_by"`
	ChangedAt  time.Time       `json:"changed_at"`
}
