package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mistakeknot/concord/internal/core"
)

type createTaskRequest struct {
	Title     string `json:"title"`
	Priority  int    `json:"priority"`
	OrgID     string `json:"orgId"`
	ProjectID string `json:"projectId"`
	Status    string `json:"status"`
}

func (s *Service) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, core.CodeInvalidStatus, "malformed body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeBadRequest(w, core.CodeInvalidStatus, "title required")
		return
	}
	task, err := s.store.CreateTask(r.Context(), core.Task{
		Title:     strings.TrimSpace(req.Title),
		Priority:  req.Priority,
		OrgID:     callerOrg(r, req.OrgID),
		ProjectID: strings.TrimSpace(req.ProjectID),
		Status:    core.TaskStatus(req.Status),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// handleTaskAction serves GET /api/task/{id} plus the two ownership
// transitions, POST /api/task/{id}/claim and /api/task/{id}/assign.
func (s *Service) handleTaskAction(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/task/"), "/")
	if path == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if id, ok := strings.CutSuffix(path, "/claim"); ok {
		s.claimTask(w, r, strings.Trim(id, "/"))
		return
	}
	if id, ok := strings.CutSuffix(path, "/assign"); ok {
		s.assignTask(w, r, strings.Trim(id, "/"))
		return
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	task, err := s.store.GetTask(r.Context(), path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type claimRequest struct {
	AgentID string `json:"agentId"`
	OrgID   string `json:"orgId"`
}

type claimResponse struct {
	Task  claimedTask  `json:"task"`
	Agent claimedAgent `json:"agent"`
}

type claimedTask struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ClaimedAt string `json:"claimedAt"`
}

type claimedAgent struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (s *Service) claimTask(w http.ResponseWriter, r *http.Request, taskID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, core.CodeClaimFailed, "malformed body")
		return
	}
	if strings.TrimSpace(req.AgentID) == "" {
		writeBadRequest(w, core.CodeClaimFailed, "agentId required")
		return
	}

	task, agent, err := s.store.ClaimTask(r.Context(), taskID, req.AgentID, callerOrg(r, req.OrgID))
	if err != nil {
		writeError(w, err)
		return
	}

	s.notifier.Claimed(r.Context(), task)

	resp := claimResponse{
		Task:  claimedTask{ID: task.ID, Status: string(task.Status)},
		Agent: claimedAgent{ID: agent.ID, Name: agent.Name, Status: string(agent.Status)},
	}
	if task.ClaimedAt != nil {
		resp.Task.ClaimedAt = task.ClaimedAt.Format(timeFormat)
	}
	writeJSON(w, http.StatusOK, resp)
}

type assignRequest struct {
	GraphID        string `json:"graphId"`
	AgentID        string `json:"agentId"`
	OrchestratorID string `json:"orchestratorId"`
	Priority       *int   `json:"priority"`
	OrgID          string `json:"orgId"`
}

type assignResponse struct {
	Success    bool   `json:"success"`
	TaskID     string `json:"taskId"`
	AgentID    string `json:"agentId"`
	AssignedBy string `json:"assignedBy"`
	AssignedAt string `json:"assignedAt"`
	Status     string `json:"status"`
}

func (s *Service) assignTask(w http.ResponseWriter, r *http.Request, taskID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, core.CodeAssignFailed, "malformed body")
		return
	}
	if strings.TrimSpace(req.AgentID) == "" {
		writeBadRequest(w, core.CodeAssignFailed, "agentId required")
		return
	}
	orchestrator := callerActor(r, req.OrchestratorID)
	if orchestrator == "" {
		writeBadRequest(w, core.CodeAssignFailed, "orchestratorId required")
		return
	}

	task, err := s.store.AssignTask(r.Context(), taskID, req.AgentID, orchestrator, callerOrg(r, req.OrgID), req.Priority)
	if err != nil {
		writeError(w, err)
		return
	}

	// The assignment is committed; the chain event and push are advisory.
	s.notifier.Assigned(r.Context(), req.GraphID, task)

	resp := assignResponse{
		Success:    true,
		TaskID:     task.ID,
		AgentID:    task.AssignedTo,
		AssignedBy: task.AssignedBy,
		Status:     string(task.Status),
	}
	if task.AssignedAt != nil {
		resp.AssignedAt = task.AssignedAt.Format(timeFormat)
	}
	writeJSON(w, http.StatusOK, resp)
}
