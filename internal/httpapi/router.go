package httpapi

import "net/http"

// NewRouter wires the coordination endpoints. mw (usually the auth
// middleware) wraps every API route as well as the websocket upgrade;
// /healthz stays unauthenticated so probes work without credentials.
func NewRouter(svc *Service, wsHandler http.Handler, mw func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.Handler {
		handler := http.Handler(h)
		if mw != nil {
			handler = mw(handler)
		}
		return handler
	}

	mux.Handle("/api/agents", wrap(svc.handleAgents))
	mux.Handle("/api/agents/", wrap(svc.handleAgentByID))

	mux.Handle("/api/tasks", wrap(svc.handleTasks))
	mux.Handle("/api/task/", wrap(svc.handleTaskAction))

	mux.Handle("/api/graph/lock", wrap(svc.handleLock))
	mux.Handle("/api/graph/events", wrap(svc.handleEvents))

	mux.Handle("/api/epics", wrap(svc.handleEpics))
	mux.Handle("/api/epic/", wrap(svc.handleEpicAction))
	mux.Handle("/api/sprints", wrap(svc.handleSprints))
	mux.Handle("/api/sprint/", wrap(svc.handleSprintAction))

	mux.HandleFunc("/healthz", svc.handleHealthz)

	if wsHandler != nil {
		if mw != nil {
			mux.Handle("/ws/actors/", mw(wsHandler))
		} else {
			mux.Handle("/ws/actors/", wsHandler)
		}
	}

	return mux
}
