package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/mistakeknot/concord/internal/auth"
	"github.com/mistakeknot/concord/internal/core"
	"github.com/mistakeknot/concord/internal/names"
)

type registerAgentRequest struct {
	Name         string            `json:"name"`
	OrgID        string            `json:"orgId"`
	Capabilities []string          `json:"capabilities"`
	Metadata     map[string]string `json:"metadata"`
	Status       string            `json:"status"`
}

func (s *Service) handleAgents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.registerAgent(w, r)
	case http.MethodGet:
		s.listAgents(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Service) registerAgent(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, core.CodeInvalidStatus, "malformed body")
		return
	}
	id, _ := auth.FromContext(r.Context())
	if (id.Mode == auth.ModeAPIKey || id.Mode == auth.ModeJWT) &&
		req.OrgID != "" && req.OrgID != id.OrgID {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	org := callerOrg(r, req.OrgID)

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = names.Random()
	}
	status := core.AgentStatus(req.Status)
	if status == "" {
		status = core.AgentStatusActive
	}

	agent, err := s.store.RegisterAgent(r.Context(), core.Agent{
		Name:         name,
		OrgID:        org,
		Capabilities: req.Capabilities,
		Metadata:     req.Metadata,
		Status:       status,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (s *Service) listAgents(w http.ResponseWriter, r *http.Request) {
	org := callerOrg(r, "")
	limit := s.pageLimit(r.URL.Query().Get("limit"))
	agents, err := s.store.ListAgents(r.Context(), org, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if agents == nil {
		agents = []core.Agent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

// handleAgentByID serves GET /api/agents/{id} and POST /api/agents/{id}/heartbeat.
func (s *Service) handleAgentByID(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/agents/"), "/")
	if path == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if id, ok := strings.CutSuffix(path, "/heartbeat"); ok {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		agent, err := s.store.Heartbeat(r.Context(), callerOrg(r, ""), strings.Trim(id, "/"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"agent_id": agent.ID, "status": agent.Status})
		return
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	agent, err := s.store.GetAgent(r.Context(), callerOrg(r, ""), path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Service) pageLimit(raw string) int {
	limit := s.maxPageLimit
	if raw == "" {
		return limit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return limit
	}
	if n > s.maxPageLimit {
		return s.maxPageLimit
	}
	return n
}
