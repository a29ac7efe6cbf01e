package httpapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/mistakeknot/concord/internal/core"
)

func (e *testEnv) seedAgent(t *testing.T, name, org string) core.Agent {
	t.Helper()
	resp := e.post(t, "/api/agents", map[string]any{"name": name, "orgId": org})
	requireStatus(t, resp, http.StatusCreated)
	return decodeJSON[core.Agent](t, resp)
}

func (e *testEnv) seedTask(t *testing.T, title, org, status string) core.Task {
	t.Helper()
	resp := e.post(t, "/api/tasks", map[string]any{"title": title, "orgId": org, "status": status})
	requireStatus(t, resp, http.StatusCreated)
	return decodeJSON[core.Task](t, resp)
}

func TestCreateAndGetTask(t *testing.T) {
	env := newTestEnv(t)

	task := env.seedTask(t, "wire the relay", "acme", "")
	if task.Status != core.TaskStatusAvailable {
		t.Fatalf("expected default status available, got %s", task.Status)
	}

	resp := env.get(t, "/api/task/"+task.ID)
	requireStatus(t, resp, http.StatusOK)
	got := decodeJSON[core.Task](t, resp)
	if got.ID != task.ID || got.Title != "wire the relay" {
		t.Fatalf("unexpected task %+v", got)
	}

	resp = env.get(t, "/api/task/nope")
	requireStatus(t, resp, http.StatusNotFound)
	if code := errorCode(t, resp); code != core.CodeTaskNotFound {
		t.Fatalf("expected TASK_NOT_FOUND, got %s", code)
	}
}

func TestClaimTaskEndpoint(t *testing.T) {
	env := newTestEnv(t)
	agent := env.seedAgent(t, "builder-1", "acme")
	task := env.seedTask(t, "wire the relay", "acme", "")

	resp := env.post(t, "/api/task/"+task.ID+"/claim", map[string]any{"agentId": agent.ID, "orgId": "acme"})
	requireStatus(t, resp, http.StatusOK)

	body := decodeJSON[claimResponse](t, resp)
	if body.Task.ID != task.ID || body.Task.Status != "in_progress" {
		t.Fatalf("unexpected claim task %+v", body.Task)
	}
	if body.Task.ClaimedAt == "" {
		t.Fatal("expected claimedAt timestamp")
	}
	if _, err := time.Parse(time.RFC3339Nano, body.Task.ClaimedAt); err != nil {
		t.Fatalf("claimedAt not RFC3339: %v", err)
	}
	if body.Agent.ID != agent.ID || body.Agent.Name != "builder-1" {
		t.Fatalf("unexpected claim agent %+v", body.Agent)
	}
	if body.Agent.Status != "busy" {
		t.Fatalf("expected claiming agent marked busy, got %s", body.Agent.Status)
	}
}

func TestClaimTaskConflictEndpoint(t *testing.T) {
	env := newTestEnv(t)
	first := env.seedAgent(t, "builder-1", "acme")
	second := env.seedAgent(t, "builder-2", "acme")
	task := env.seedTask(t, "wire the relay", "acme", "")

	resp := env.post(t, "/api/task/"+task.ID+"/claim", map[string]any{"agentId": first.ID, "orgId": "acme"})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.post(t, "/api/task/"+task.ID+"/claim", map[string]any{"agentId": second.ID, "orgId": "acme"})
	requireStatus(t, resp, http.StatusConflict)
	if code := errorCode(t, resp); code != core.CodeTaskAlreadyClaimed {
		t.Fatalf("expected TASK_ALREADY_CLAIMED, got %s", code)
	}
}

func TestClaimTaskNotFoundEndpoint(t *testing.T) {
	env := newTestEnv(t)
	agent := env.seedAgent(t, "builder-1", "acme")

	resp := env.post(t, "/api/task/nope/claim", map[string]any{"agentId": agent.ID, "orgId": "acme"})
	requireStatus(t, resp, http.StatusNotFound)
	if code := errorCode(t, resp); code != core.CodeTaskNotFound {
		t.Fatalf("expected TASK_NOT_FOUND, got %s", code)
	}
}

func TestAssignTaskEndpoint(t *testing.T) {
	env := newTestEnv(t)
	agent := env.seedAgent(t, "builder-1", "acme")
	task := env.seedTask(t, "wire the relay", "acme", "")

	resp := env.post(t, "/api/task/"+task.ID+"/assign", map[string]any{
		"graphId":        "graph-1",
		"agentId":        agent.ID,
		"orchestratorId": "orc-1",
		"orgId":          "acme",
	})
	requireStatus(t, resp, http.StatusOK)

	body := decodeJSON[assignResponse](t, resp)
	if !body.Success || body.TaskID != task.ID || body.AgentID != agent.ID {
		t.Fatalf("unexpected assign response %+v", body)
	}
	if body.AssignedBy != "orc-1" || body.Status != "assigned" {
		t.Fatalf("unexpected assign response %+v", body)
	}
	if body.AssignedAt == "" {
		t.Fatal("expected assignedAt timestamp")
	}

	// The assignment ends up on the orchestrator's event chain.
	events, err := env.store.EventChain(context.Background(), "orc-1", "graph-1", 10)
	if err != nil {
		t.Fatalf("event chain: %v", err)
	}
	if len(events) != 1 || events[0].Category != core.EventAssignment {
		t.Fatalf("expected one assignment event, got %+v", events)
	}
}

func TestAssignTaskRequiresOrchestrator(t *testing.T) {
	env := newTestEnv(t)
	agent := env.seedAgent(t, "builder-1", "acme")
	task := env.seedTask(t, "wire the relay", "acme", "")

	resp := env.post(t, "/api/task/"+task.ID+"/assign", map[string]any{"agentId": agent.ID, "orgId": "acme"})
	requireStatus(t, resp, http.StatusBadRequest)
	if code := errorCode(t, resp); code != core.CodeAssignFailed {
		t.Fatalf("expected ASSIGN_FAILED, got %s", code)
	}
}

func TestAssignClaimedTaskEndpoint(t *testing.T) {
	env := newTestEnv(t)
	first := env.seedAgent(t, "builder-1", "acme")
	second := env.seedAgent(t, "builder-2", "acme")
	task := env.seedTask(t, "wire the relay", "acme", "")

	resp := env.post(t, "/api/task/"+task.ID+"/claim", map[string]any{"agentId": first.ID, "orgId": "acme"})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.post(t, "/api/task/"+task.ID+"/assign", map[string]any{
		"agentId":        second.ID,
		"orchestratorId": "orc-1",
		"orgId":          "acme",
	})
	requireStatus(t, resp, http.StatusConflict)
	if code := errorCode(t, resp); code != core.CodeTaskAlreadyClaimed {
		t.Fatalf("expected TASK_ALREADY_CLAIMED, got %s", code)
	}
}
