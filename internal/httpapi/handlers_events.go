package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mistakeknot/concord/internal/core"
)

type appendEventsRequest struct {
	GraphID string       `json:"graphId"`
	Events  []eventInput `json:"events"`
}

type eventInput struct {
	ActorID     string            `json:"actorId"`
	ProjectID   string            `json:"projectId"`
	Category    string            `json:"category"`
	Description string            `json:"description"`
	Timestamp   string            `json:"timestamp"`
	Impact      string            `json:"impact"`
	Files       []string          `json:"files"`
	Tags        []string          `json:"tags"`
	Shared      bool              `json:"shared"`
	Payload     map[string]string `json:"payload"`
}

type eventReceiptOut struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
}

func (s *Service) handleEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.appendEvents(w, r)
	case http.MethodGet:
		s.readChain(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Service) appendEvents(w http.ResponseWriter, r *http.Request) {
	var req appendEventsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, core.CodeInvalidStatus, "malformed body")
		return
	}
	if len(req.Events) == 0 {
		writeBadRequest(w, core.CodeInvalidStatus, "events required")
		return
	}

	org := callerOrg(r, "")
	batch := make([]core.Event, 0, len(req.Events))
	for _, in := range req.Events {
		ev := core.Event{
			ActorID:     strings.TrimSpace(in.ActorID),
			OrgID:       org,
			ProjectID:   strings.TrimSpace(in.ProjectID),
			Category:    core.EventCategory(in.Category),
			Description: in.Description,
			Impact:      in.Impact,
			Files:       in.Files,
			Tags:        in.Tags,
			Shared:      in.Shared,
			Payload:     in.Payload,
		}
		if in.Timestamp != "" {
			if ts, err := time.Parse(time.RFC3339Nano, in.Timestamp); err == nil {
				ev.Timestamp = ts
			}
		}
		if ev.ActorID == "" {
			ev.ActorID = callerActor(r, "")
		}
		batch = append(batch, ev)
	}

	result, err := s.store.AppendEvents(r.Context(), req.GraphID, batch)
	if err != nil {
		writeError(w, err)
		return
	}

	receipts := make([]eventReceiptOut, 0, len(result.Receipts))
	for _, rc := range result.Receipts {
		receipts = append(receipts, eventReceiptOut{
			ID:        rc.ID,
			Timestamp: rc.Timestamp.Format(timeFormat),
		})
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"created":  len(receipts),
		"rejected": result.Rejected,
		"events":   receipts,
	})
}

func (s *Service) readChain(w http.ResponseWriter, r *http.Request) {
	actorID := strings.TrimSpace(r.URL.Query().Get("actorId"))
	projectID := strings.TrimSpace(r.URL.Query().Get("projectId"))
	if actorID == "" || projectID == "" {
		writeBadRequest(w, core.CodeInvalidStatus, "actorId and projectId required")
		return
	}
	limit := s.pageLimit(r.URL.Query().Get("limit"))

	events, err := s.store.EventChain(r.Context(), actorID, projectID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []core.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
