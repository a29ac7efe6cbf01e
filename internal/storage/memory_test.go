package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mistakeknot/concord/internal/core"
)

func TestInMemoryClaimConflict(t *testing.T) {
	m := NewInMemory()
	ctx := context.Background()

	first, _ := m.RegisterAgent(ctx, core.Agent{Name: "builder-1", OrgID: "acme"})
	second, _ := m.RegisterAgent(ctx, core.Agent{Name: "builder-2", OrgID: "acme"})
	task, _ := m.CreateTask(ctx, core.Task{Title: "contested", OrgID: "acme"})

	got, agent, err := m.ClaimTask(ctx, task.ID, first.ID, "acme")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got.Status != core.TaskStatusInProgress || got.ClaimedBy != first.ID {
		t.Fatalf("unexpected task %+v", got)
	}
	if agent.Status != core.AgentStatusBusy {
		t.Fatalf("expected busy agent, got %s", agent.Status)
	}

	_, _, err = m.ClaimTask(ctx, task.ID, second.ID, "acme")
	var conflict *core.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if conflict.Code != core.CodeTaskAlreadyClaimed || conflict.HolderName != "builder-1" {
		t.Fatalf("unexpected conflict %+v", conflict)
	}
}

func TestInMemoryClaimWrongOrg(t *testing.T) {
	m := NewInMemory()
	ctx := context.Background()

	agent, _ := m.RegisterAgent(ctx, core.Agent{Name: "builder-1", OrgID: "globex"})
	task, _ := m.CreateTask(ctx, core.Task{Title: "scoped", OrgID: "acme"})

	_, _, err := m.ClaimTask(ctx, task.ID, agent.ID, "acme")
	var notFound *core.NotFoundError
	if !errors.As(err, &notFound) || notFound.Code != core.CodeAgentNotFound {
		t.Fatalf("expected AGENT_NOT_FOUND, got %v", err)
	}
}

func TestInMemoryAssign(t *testing.T) {
	m := NewInMemory()
	ctx := context.Background()

	agent, _ := m.RegisterAgent(ctx, core.Agent{Name: "builder-1", OrgID: "acme"})
	task, _ := m.CreateTask(ctx, core.Task{Title: "pushed", OrgID: "acme", Status: core.TaskStatusPending})

	priority := 7
	got, err := m.AssignTask(ctx, task.ID, agent.ID, "orc-1", "acme", &priority)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got.Status != core.TaskStatusAssigned || got.AssignedBy != "orc-1" || got.Priority != 7 {
		t.Fatalf("unexpected task %+v", got)
	}

	_, err = m.AssignTask(ctx, task.ID, agent.ID, "orc-2", "acme", nil)
	var conflict *core.ConflictError
	if !errors.As(err, &conflict) || conflict.Code != core.CodeTaskAlreadyAssigned {
		t.Fatalf("expected TASK_ALREADY_ASSIGNED, got %v", err)
	}
}

func TestInMemoryLockLease(t *testing.T) {
	m := NewInMemory()
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })
	m.SetLockDuration(5 * time.Minute)

	res, err := m.AcquireLock(ctx, "node-1", "graph-1", "user-a", "a@example.com")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !res.Created || !res.Lock.ExpiresAt.Equal(now.Add(5*time.Minute)) {
		t.Fatalf("unexpected lock %+v", res)
	}

	_, err = m.AcquireLock(ctx, "node-1", "graph-1", "user-b", "b@example.com")
	var held *core.LockHeldError
	if !errors.As(err, &held) || held.Lock.HolderID != "user-a" {
		t.Fatalf("expected held-by user-a, got %v", err)
	}

	// Same holder extends.
	now = now.Add(2 * time.Minute)
	res, err = m.AcquireLock(ctx, "node-1", "graph-1", "user-a", "a@example.com")
	if err != nil || res.Created {
		t.Fatalf("expected extension, got %+v %v", res, err)
	}

	// After expiry anyone can take it.
	now = now.Add(10 * time.Minute)
	if lock, _ := m.CheckLock(ctx, "node-1", "graph-1"); lock != nil {
		t.Fatalf("expected expired lock to read unlocked, got %+v", lock)
	}
	res, err = m.AcquireLock(ctx, "node-1", "graph-1", "user-b", "b@example.com")
	if err != nil || !res.Created {
		t.Fatalf("expected takeover, got %+v %v", res, err)
	}

	// Foreign release is refused, holder release is not.
	if err := m.ReleaseLock(ctx, "node-1", "graph-1", "user-a"); err == nil {
		t.Fatal("expected foreign release to fail")
	}
	if err := m.ReleaseLock(ctx, "node-1", "graph-1", "user-b"); err != nil {
		t.Fatalf("release: %v", err)
	}
	// Idempotent once gone.
	if err := m.ReleaseLock(ctx, "node-1", "graph-1", "user-b"); err != nil {
		t.Fatalf("second release: %v", err)
	}
}

func TestInMemoryEventChain(t *testing.T) {
	m := NewInMemory()
	ctx := context.Background()

	res, err := m.AppendEvents(ctx, "graph-1", []core.Event{
		{ActorID: "agent-1", ProjectID: "proj-a", Category: core.EventFix, Description: "first"},
		{ActorID: "agent-1", ProjectID: "proj-a", Category: core.EventFix, Description: "second"},
		{ActorID: "agent-1", ProjectID: "proj-a", Category: core.EventFix}, // rejected
		{ActorID: "agent-2", ProjectID: "proj-a", Category: core.EventFix, Description: "other chain"},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(res.Receipts) != 3 || res.Rejected != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	chain, err := m.EventChain(ctx, "agent-1", "proj-a", 10)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("expected 2 events, got %d", len(chain))
	}
	if chain[0].PrevID != "" || chain[1].PrevID != chain[0].ID {
		t.Fatalf("broken chain %+v", chain)
	}

	other, _ := m.EventChain(ctx, "agent-2", "proj-a", 10)
	if len(other) != 1 || other[0].PrevID != "" {
		t.Fatalf("chains not isolated: %+v", other)
	}
}

func TestInMemoryEpicStatus(t *testing.T) {
	m := NewInMemory()
	ctx := context.Background()

	epic, _ := m.CreateEpic(ctx, core.Epic{GraphID: "graph-1", Title: "launch prep"})
	if epic.Status != core.LifecycleActive {
		t.Fatalf("expected active default, got %s", epic.Status)
	}

	updated, previous, err := m.UpdateEpicStatus(ctx, "graph-1", epic.ID, core.LifecycleCompleted, "orc-1")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if previous != core.LifecycleActive || updated.Status != core.LifecycleCompleted {
		t.Fatalf("unexpected transition %s -> %s", previous, updated.Status)
	}
	if updated.StatusUpdatedBy != "orc-1" || updated.StatusUpdatedAt == nil {
		t.Fatalf("missing audit fields %+v", updated)
	}

	_, _, err = m.UpdateEpicStatus(ctx, "graph-1", "nope", core.LifecyclePaused, "orc-1")
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
