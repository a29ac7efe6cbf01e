package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mistakeknot/concord/internal/core"
)

type lockRequest struct {
	NodeID  string `json:"nodeId"`
	GraphID string `json:"graphId"`
	UserID  string `json:"userId"`
	Email   string `json:"email"`
}

func (s *Service) handleLock(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.acquireLock(w, r)
	case http.MethodGet:
		s.checkLock(w, r)
	case http.MethodDelete:
		s.releaseLock(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Service) acquireLock(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, core.CodeNodeLocked, "malformed body")
		return
	}
	if strings.TrimSpace(req.NodeID) == "" || strings.TrimSpace(req.GraphID) == "" {
		writeBadRequest(w, core.CodeNodeLocked, "nodeId and graphId required")
		return
	}
	holder := callerActor(r, req.UserID)
	if holder == "" {
		writeBadRequest(w, core.CodeNodeLocked, "userId required")
		return
	}

	res, err := s.store.AcquireLock(r.Context(), req.NodeID, req.GraphID, holder, callerEmail(r, req.Email))
	if err != nil {
		writeError(w, err)
		return
	}

	if s.notifier != nil {
		s.notifier.LockAcquired(r.Context(), callerOrg(r, ""), res.Lock)
	}
	if res.Created {
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "lock": res.Lock})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"lock":    res.Lock,
		"message": "Lock extended",
	})
}

func (s *Service) checkLock(w http.ResponseWriter, r *http.Request) {
	nodeID := strings.TrimSpace(r.URL.Query().Get("nodeId"))
	graphID := strings.TrimSpace(r.URL.Query().Get("graphId"))
	if nodeID == "" || graphID == "" {
		writeBadRequest(w, core.CodeNodeLocked, "nodeId and graphId required")
		return
	}

	lock, err := s.store.CheckLock(r.Context(), nodeID, graphID)
	if err != nil {
		writeError(w, err)
		return
	}
	if lock == nil {
		writeJSON(w, http.StatusOK, map[string]any{"locked": false})
		return
	}
	caller := callerActor(r, r.URL.Query().Get("userId"))
	writeJSON(w, http.StatusOK, map[string]any{
		"locked":    true,
		"lock":      lock,
		"isOwnLock": caller != "" && caller == lock.HolderID,
	})
}

func (s *Service) releaseLock(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, core.CodeNotLockHolder, "malformed body")
		return
	}
	if strings.TrimSpace(req.NodeID) == "" || strings.TrimSpace(req.GraphID) == "" {
		writeBadRequest(w, core.CodeNotLockHolder, "nodeId and graphId required")
		return
	}
	holder := callerActor(r, req.UserID)
	if holder == "" {
		writeBadRequest(w, core.CodeNotLockHolder, "userId required")
		return
	}

	if err := s.store.ReleaseLock(r.Context(), req.NodeID, req.GraphID, holder); err != nil {
		writeError(w, err)
		return
	}
	if s.notifier != nil {
		s.notifier.LockReleased(r.Context(), callerOrg(r, ""), req.NodeID, req.GraphID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Lock released"})
}
