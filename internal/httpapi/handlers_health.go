package httpapi

import (
	"net/http"

	"github.com/mistakeknot/concord/internal/core"
	"github.com/mistakeknot/concord/internal/storage/sqlite"
)

// handleHealthz reports liveness plus storage reachability. Kept outside
// the auth middleware so deploy probes need no credentials.
func (s *Service) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body := map[string]any{"status": "ok"}
	if rs, ok := s.store.(*sqlite.ResilientStore); ok {
		body["circuit_breaker"] = rs.CircuitBreakerState()
	}
	if err := s.store.Ping(r.Context()); err != nil {
		body["status"] = "degraded"
		body["error"] = map[string]string{
			"code":    core.CodeServiceUnavailable,
			"message": err.Error(),
		}
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}
