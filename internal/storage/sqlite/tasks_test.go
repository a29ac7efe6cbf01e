package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/mistakeknot/concord/internal/core"
)

func seedAgent(t *testing.T, st *Store, name, org string) core.Agent {
	t.Helper()
	agent, err := st.RegisterAgent(context.Background(), core.Agent{Name: name, OrgID: org})
	if err != nil {
		t.Fatalf("register agent: %v", err)
	}
	return agent
}

func seedTask(t *testing.T, st *Store, title, org string, status core.TaskStatus) core.Task {
	t.Helper()
	task, err := st.CreateTask(context.Background(), core.Task{Title: title, OrgID: org, Status: status})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func conflictCode(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var conflict *core.ConflictError
	if errors.As(err, &conflict) {
		return conflict.Code
	}
	var missing *core.NotFoundError
	if errors.As(err, &missing) {
		return missing.Code
	}
	t.Fatalf("unexpected error type %T: %v", err, err)
	return ""
}

func TestClaimTask(t *testing.T) {
	st := NewSQLiteTest(t)
	ctx := context.Background()

	agent := seedAgent(t, st, "worker", "org-1")
	task := seedTask(t, st, "build the thing", "org-1", core.TaskStatusAvailable)

	claimed, claimant, err := st.ClaimTask(ctx, task.ID, agent.ID, "org-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != core.TaskStatusInProgress {
		t.Fatalf("expected in_progress, got %s", claimed.Status)
	}
	if claimed.ClaimedBy != agent.ID || claimed.ClaimedAt == nil {
		t.Fatalf("claim edge not recorded: %+v", claimed)
	}
	if claimant.Status != core.AgentStatusBusy {
		t.Fatalf("expected agent busy, got %s", claimant.Status)
	}
}

func TestClaimTaskConflicts(t *testing.T) {
	st := NewSQLiteTest(t)
	ctx := context.Background()

	agent := seedAgent(t, st, "worker-a", "org-1")
	rival := seedAgent(t, st, "worker-b", "org-1")

	t.Run("task not found", func(t *testing.T) {
		_, _, err := st.ClaimTask(ctx, "no-such-task", agent.ID, "org-1")
		if code := conflictCode(t, err); code != core.CodeTaskNotFound {
			t.Fatalf("expected TASK_NOT_FOUND, got %s", code)
		}
	})

	t.Run("agent not found", func(t *testing.T) {
		task := seedTask(t, st, "t", "org-1", core.TaskStatusAvailable)
		_, _, err := st.ClaimTask(ctx, task.ID, "no-such-agent", "org-1")
		if code := conflictCode(t, err); code != core.CodeAgentNotFound {
			t.Fatalf("expected AGENT_NOT_FOUND, got %s", code)
		}
	})

	t.Run("agent outside org", func(t *testing.T) {
		task := seedTask(t, st, "t", "org-1", core.TaskStatusAvailable)
		outsider := seedAgent(t, st, "outsider", "org-2")
		_, _, err := st.ClaimTask(ctx, task.ID, outsider.ID, "org-1")
		if code := conflictCode(t, err); code != core.CodeAgentNotFound {
			t.Fatalf("expected AGENT_NOT_FOUND, got %s", code)
		}
	})

	t.Run("already claimed names holder", func(t *testing.T) {
		task := seedTask(t, st, "t", "org-1", core.TaskStatusAvailable)
		if _, _, err := st.ClaimTask(ctx, task.ID, agent.ID, "org-1"); err != nil {
			t.Fatalf("first claim: %v", err)
		}
		_, _, err := st.ClaimTask(ctx, task.ID, rival.ID, "org-1")
		var conflict *core.ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected ConflictError, got %v", err)
		}
		if conflict.Code != core.CodeTaskAlreadyClaimed {
			t.Fatalf("expected TASK_ALREADY_CLAIMED, got %s", conflict.Code)
		}
		if conflict.HolderID != agent.ID {
			t.Fatalf("expected holder %s, got %s", agent.ID, conflict.HolderID)
		}
	})

	t.Run("re-claim by holder is rejected too", func(t *testing.T) {
		task := seedTask(t, st, "t", "org-1", core.TaskStatusAvailable)
		if _, _, err := st.ClaimTask(ctx, task.ID, agent.ID, "org-1"); err != nil {
			t.Fatalf("first claim: %v", err)
		}
		_, _, err := st.ClaimTask(ctx, task.ID, agent.ID, "org-1")
		if code := conflictCode(t, err); code != core.CodeTaskAlreadyClaimed {
			t.Fatalf("expected TASK_ALREADY_CLAIMED, got %s", code)
		}
	})

	t.Run("wrong status", func(t *testing.T) {
		task := seedTask(t, st, "t", "org-1", core.TaskStatusComplete)
		_, _, err := st.ClaimTask(ctx, task.ID, agent.ID, "org-1")
		if code := conflictCode(t, err); code != core.CodeTaskNotAvailable {
			t.Fatalf("expected TASK_NOT_AVAILABLE, got %s", code)
		}
	})
}

func TestAssignTask(t *testing.T) {
	st := NewSQLiteTest(t)
	ctx := context.Background()

	agent := seedAgent(t, st, "worker", "org-1")

	t.Run("assigns available task", func(t *testing.T) {
		task := seedTask(t, st, "t", "org-1", core.TaskStatusAvailable)
		assigned, err := st.AssignTask(ctx, task.ID, agent.ID, "orchestrator-1", "org-1", nil)
		if err != nil {
			t.Fatalf("assign: %v", err)
		}
		if assigned.Status != core.TaskStatusAssigned {
			t.Fatalf("expected assigned, got %s", assigned.Status)
		}
		if assigned.AssignedTo != agent.ID || assigned.AssignedBy != "orchestrator-1" || assigned.AssignedAt == nil {
			t.Fatalf("assignment edge not recorded: %+v", assigned)
		}
	})

	t.Run("assigns pending task with priority override", func(t *testing.T) {
		task := seedTask(t, st, "t", "org-1", core.TaskStatusPending)
		priority := 7
		assigned, err := st.AssignTask(ctx, task.ID, agent.ID, "orchestrator-1", "org-1", &priority)
		if err != nil {
			t.Fatalf("assign: %v", err)
		}
		if assigned.Priority != 7 {
			t.Fatalf("expected priority 7, got %d", assigned.Priority)
		}
	})

	t.Run("claimed task cannot be assigned", func(t *testing.T) {
		task := seedTask(t, st, "t", "org-1", core.TaskStatusAvailable)
		if _, _, err := st.ClaimTask(ctx, task.ID, agent.ID, "org-1"); err != nil {
			t.Fatalf("claim: %v", err)
		}
		_, err := st.AssignTask(ctx, task.ID, agent.ID, "orchestrator-1", "org-1", nil)
		if code := conflictCode(t, err); code != core.CodeTaskAlreadyClaimed {
			t.Fatalf("expected TASK_ALREADY_CLAIMED, got %s", code)
		}
	})

	t.Run("assigned task cannot be claimed", func(t *testing.T) {
		task := seedTask(t, st, "t", "org-1", core.TaskStatusAvailable)
		if _, err := st.AssignTask(ctx, task.ID, agent.ID, "orchestrator-1", "org-1", nil); err != nil {
			t.Fatalf("assign: %v", err)
		}
		_, _, err := st.ClaimTask(ctx, task.ID, agent.ID, "org-1")
		if code := conflictCode(t, err); code != core.CodeTaskAlreadyAssigned {
			t.Fatalf("expected TASK_ALREADY_ASSIGNED, got %s", code)
		}
	})

	t.Run("double assign names holder", func(t *testing.T) {
		task := seedTask(t, st, "t", "org-1", core.TaskStatusAvailable)
		if _, err := st.AssignTask(ctx, task.ID, agent.ID, "orchestrator-1", "org-1", nil); err != nil {
			t.Fatalf("assign: %v", err)
		}
		_, err := st.AssignTask(ctx, task.ID, agent.ID, "orchestrator-2", "org-1", nil)
		if code := conflictCode(t, err); code != core.CodeTaskAlreadyAssigned {
			t.Fatalf("expected TASK_ALREADY_ASSIGNED, got %s", code)
		}
	})
}
