package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mistakeknot/concord/internal/auth"
)

const writeTimeout = 5 * time.Second

// Hub fans committed store changes out to subscribed actors. Connections
// are keyed by (org, actor); a broadcast can target one actor, a whole
// org, or everything.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[string]map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[string]map[*websocket.Conn]struct{})}
}

// Handler upgrades /ws/actors/{id} requests. Credentialed callers may only
// subscribe to their own actor stream and their own org; localhost callers
// may subscribe to anything.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/ws/actors/")
		actor := strings.Trim(path, "/")
		if actor == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		requestedOrg := strings.TrimSpace(r.URL.Query().Get("org"))
		id, _ := auth.FromContext(r.Context())
		org := id.OrgID
		if id.Mode == auth.ModeAPIKey || id.Mode == auth.ModeJWT {
			if requestedOrg != "" && requestedOrg != org {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			if id.ActorID != "" && id.ActorID != actor {
				w.WriteHeader(http.StatusForbidden)
				return
			}
		} else if org == "" {
			org = requestedOrg
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		h.add(org, actor, conn)
		defer h.remove(org, actor, conn)

		ctx := r.Context()
		for {
			var v any
			if err := wsjson.Read(ctx, conn, &v); err != nil {
				return
			}
		}
	}
}

type connEntry struct {
	conn  *websocket.Conn
	org   string
	actor string
}

// Broadcast delivers event to every matching subscriber. Empty org or
// actor widens the match. Slow or dead connections are dropped.
func (h *Hub) Broadcast(org, actor string, event any) {
	entries := h.snapshot(org, actor)
	if len(entries) == 0 {
		return
	}
	for _, e := range entries {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := wsjson.Write(ctx, e.conn, event)
		cancel()
		if err != nil {
			go func(e connEntry) {
				e.conn.Close(websocket.StatusGoingAway, "write error")
				h.remove(e.org, e.actor, e.conn)
			}(e)
		}
	}
}

func (h *Hub) snapshot(org, actor string) []connEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []connEntry
	collectActor := func(orgID string, m map[string]map[*websocket.Conn]struct{}, target string) {
		if target == "" {
			for actorID, conns := range m {
				for conn := range conns {
					out = append(out, connEntry{conn: conn, org: orgID, actor: actorID})
				}
			}
			return
		}
		for conn := range m[target] {
			out = append(out, connEntry{conn: conn, org: orgID, actor: target})
		}
	}
	if org != "" {
		if perActor, ok := h.conns[org]; ok {
			collectActor(org, perActor, actor)
		}
		return out
	}
	for orgID, perActor := range h.conns {
		collectActor(orgID, perActor, actor)
	}
	return out
}

func (h *Hub) add(org, actor string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	perOrg, ok := h.conns[org]
	if !ok {
		perOrg = make(map[string]map[*websocket.Conn]struct{})
		h.conns[org] = perOrg
	}
	perActor, ok := perOrg[actor]
	if !ok {
		perActor = make(map[*websocket.Conn]struct{})
		perOrg[actor] = perActor
	}
	perActor[conn] = struct{}{}
}

func (h *Hub) remove(org, actor string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	perOrg, ok := h.conns[org]
	if !ok {
		return
	}
	perActor, ok := perOrg[actor]
	if !ok {
		return
	}
	delete(perActor, conn)
	if len(perActor) == 0 {
		delete(perOrg, actor)
	}
	if len(perOrg) == 0 {
		delete(h.conns, org)
	}
}
