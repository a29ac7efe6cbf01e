package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mistakeknot/concord/internal/core"
)

type createEpicRequest struct {
	GraphID string `json:"graphId"`
	Title   string `json:"title"`
	Name    string `json:"name"`
	Status  string `json:"status"`
}

func (s *Service) handleEpics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req createEpicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, core.CodeInvalidStatus, "malformed body")
		return
	}
	epic, err := s.store.CreateEpic(r.Context(), core.Epic{
		GraphID: strings.TrimSpace(req.GraphID),
		Title:   strings.TrimSpace(req.Title),
		Status:  core.LifecycleStatus(req.Status),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, epic)
}

func (s *Service) handleSprints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req createEpicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, core.CodeInvalidStatus, "malformed body")
		return
	}
	sprint, err := s.store.CreateSprint(r.Context(), core.Sprint{
		GraphID: strings.TrimSpace(req.GraphID),
		Name:    strings.TrimSpace(req.Name),
		Status:  core.LifecycleStatus(req.Status),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sprint)
}

type statusPatchRequest struct {
	GraphID   string `json:"graphId"`
	Status    string `json:"status"`
	ChangedBy string `json:"changedBy"`
}

type statusSummary struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	StatusUpdatedAt string `json:"status_updated_at"`
	StatusUpdatedBy string `json:"status_updated_by"`
}

// handleEpicAction serves GET /api/epic/{id} and PATCH /api/epic/{id}/status.
func (s *Service) handleEpicAction(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/epic/"), "/")
	if path == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if id, ok := strings.CutSuffix(path, "/status"); ok {
		s.patchEpicStatus(w, r, strings.Trim(id, "/"))
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	epic, err := s.store.GetEpic(r.Context(), strings.TrimSpace(r.URL.Query().Get("graphId")), path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, epic)
}

func (s *Service) patchEpicStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPatch {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	req, ok := decodeStatusPatch(w, r)
	if !ok {
		return
	}
	changedBy := callerActor(r, req.ChangedBy)
	if changedBy == "" {
		// Without an actor the transition would leave no chain record.
		writeBadRequest(w, core.CodeInvalidStatus, "changedBy required")
		return
	}

	epic, previous, err := s.store.UpdateEpicStatus(r.Context(), req.GraphID, id, core.LifecycleStatus(req.Status), changedBy)
	if err != nil {
		writeError(w, err)
		return
	}

	// Transition committed; the notification must not affect the response.
	s.notifyStatusChange(r, "epic", epic.ID, req.GraphID, previous, epic.Status, changedBy, epic.StatusUpdatedAt)

	out := statusSummary{ID: epic.ID, Status: string(epic.Status), StatusUpdatedBy: epic.StatusUpdatedBy}
	if epic.StatusUpdatedAt != nil {
		out.StatusUpdatedAt = epic.StatusUpdatedAt.Format(timeFormat)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"epic":            out,
		"previous_status": previous,
	})
}

// handleSprintAction mirrors handleEpicAction for sprints.
func (s *Service) handleSprintAction(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sprint/"), "/")
	if path == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if id, ok := strings.CutSuffix(path, "/status"); ok {
		s.patchSprintStatus(w, r, strings.Trim(id, "/"))
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sprint, err := s.store.GetSprint(r.Context(), strings.TrimSpace(r.URL.Query().Get("graphId")), path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sprint)
}

func (s *Service) patchSprintStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPatch {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	req, ok := decodeStatusPatch(w, r)
	if !ok {
		return
	}
	changedBy := callerActor(r, req.ChangedBy)
	if changedBy == "" {
		writeBadRequest(w, core.CodeInvalidStatus, "changedBy required")
		return
	}

	sprint, previous, err := s.store.UpdateSprintStatus(r.Context(), req.GraphID, id, core.LifecycleStatus(req.Status), changedBy)
	if err != nil {
		writeError(w, err)
		return
	}

	s.notifyStatusChange(r, "sprint", sprint.ID, req.GraphID, previous, sprint.Status, changedBy, sprint.StatusUpdatedAt)

	out := statusSummary{ID: sprint.ID, Status: string(sprint.Status), StatusUpdatedBy: sprint.StatusUpdatedBy}
	if sprint.StatusUpdatedAt != nil {
		out.StatusUpdatedAt = sprint.StatusUpdatedAt.Format(timeFormat)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"sprint":          out,
		"previous_status": previous,
	})
}

func decodeStatusPatch(w http.ResponseWriter, r *http.Request) (statusPatchRequest, bool) {
	var req statusPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, core.CodeInvalidStatus, "malformed body")
		return req, false
	}
	req.GraphID = strings.TrimSpace(req.GraphID)
	if !core.ValidLifecycleStatus(core.LifecycleStatus(req.Status)) {
		writeBadRequest(w, core.CodeInvalidStatus, "status must be one of active, paused, completed, archived")
		return req, false
	}
	return req, true
}

func (s *Service) notifyStatusChange(r *http.Request, kind, id, graphID string, oldStatus, newStatus core.LifecycleStatus, changedBy string, changedAt *time.Time) {
	change := core.StatusChange{
		EntityKind: kind,
		EntityID:   id,
		GraphID:    graphID,
		OldStatus:  oldStatus,
		NewStatus:  newStatus,
		ChangedBy:  changedBy,
		ChangedAt:  time.Now().UTC(),
	}
	if changedAt != nil {
		change.ChangedAt = *changedAt
	}
	s.notifier.StatusChanged(r.Context(), callerOrg(r, ""), change)
}
