package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/mistakeknot/concord/internal/auth"
	"github.com/mistakeknot/concord/internal/notify"
	"github.com/mistakeknot/concord/internal/storage"
)

const (
	defaultMaxPageLimit = 200
	timeFormat          = time.RFC3339Nano
)

// Service owns the handlers. All state lives in the store; the service
// itself is safe for any number of concurrent requests.
type Service struct {
	store        storage.Store
	notifier     *notify.Notifier
	maxPageLimit int
}

func NewService(store storage.Store) *Service {
	return &Service{store: store, maxPageLimit: defaultMaxPageLimit}
}

func (s *Service) WithNotifier(n *notify.Notifier) *Service {
	s.notifier = n
	return s
}

func (s *Service) WithMaxPageLimit(limit int) *Service {
	if limit > 0 {
		s.maxPageLimit = limit
	}
	return s
}

// callerOrg resolves the organization scope of a request. Credentialed
// callers are pinned to their credential's org; localhost callers may name
// one explicitly.
func callerOrg(r *http.Request, explicit string) string {
	id, _ := auth.FromContext(r.Context())
	if id.Mode == auth.ModeAPIKey || id.Mode == auth.ModeJWT {
		return id.OrgID
	}
	if v := strings.TrimSpace(explicit); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("org"))
}

// callerActor resolves the acting identity, preferring the credential over
// a request-supplied value.
func callerActor(r *http.Request, explicit string) string {
	id, _ := auth.FromContext(r.Context())
	if id.Mode == auth.ModeAPIKey || id.Mode == auth.ModeJWT {
		return id.ActorID
	}
	return strings.TrimSpace(explicit)
}

func callerEmail(r *http.Request, explicit string) string {
	id, _ := auth.FromContext(r.Context())
	if id.Email != "" {
		return id.Email
	}
	return strings.TrimSpace(explicit)
}
