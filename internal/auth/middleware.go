package auth

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/mistakeknot/concord/internal/core"
)

type Mode string

const (
	ModeLocalhost Mode = "localhost"
	ModeAPIKey    Mode = "api_key"
	ModeJWT       Mode = "jwt"
)

// Identity is the resolved caller of a request.
type Identity struct {
	ActorID string
	OrgID   string
	Email   string
	Mode    Mode
}

type contextKey struct{}

func FromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(contextKey{}).(Identity)
	return v, ok
}

// WithIdentity attaches an identity to a context. Test hook.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// Middleware resolves the caller's identity before the request reaches a
// handler. A bearer credential with JWT structure is verified against the
// secret; any other bearer credential is looked up in the keyring. Loopback
// requests may skip auth entirely when the keyring policy allows it.
func Middleware(ring *Keyring, jwtSecret string) func(http.Handler) http.Handler {
	if ring == nil {
		ring = defaultKeyring()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				if ring.AllowLocalhostWithoutAuth && isLocalRequest(r) {
					id := Identity{ActorID: "localhost", Mode: ModeLocalhost}
					next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
					return
				}
				writeAuthError(w, core.CodeAuthRequired, "authentication required")
				return
			}

			token, ok := bearerToken(header)
			if !ok {
				writeAuthError(w, core.CodeInvalidCredential, "invalid credentials")
				return
			}
			id, err := resolve(ring, jwtSecret, token)
			if err != nil {
				writeAuthError(w, core.CodeInvalidCredential, "invalid credentials")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func resolve(ring *Keyring, jwtSecret, token string) (Identity, error) {
	// Two dots means JWT structure; everything else is an opaque API key.
	if strings.Count(token, ".") == 2 {
		return VerifyToken(token, jwtSecret)
	}
	if id, ok := ring.IdentityForKey(token); ok {
		return id, nil
	}
	return Identity{}, errUnknownKey
}

var errUnknownKey = &unknownKeyError{}

type unknownKeyError struct{}

func (*unknownKeyError) Error() string { return "unknown api key" }

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func writeAuthError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

func isLocalRequest(r *http.Request) bool {
	if ip := forwardedFor(r.Header.Get("X-Forwarded-For")); ip != "" {
		if parsed := net.ParseIP(ip); parsed != nil {
			return parsed.IsLoopback()
		}
		if strings.EqualFold(ip, "localhost") {
			return true
		}
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	host = strings.TrimSpace(host)
	if strings.EqualFold(host, "localhost") {
		return true
	}
	// Unix socket listeners report an empty or "@" remote address.
	if host == "" || host == "@" {
		return true
	}
	parsed := net.ParseIP(host)
	return parsed != nil && parsed.IsLoopback()
}

func forwardedFor(v string) string {
	if v == "" {
		return ""
	}
	parts := strings.Split(v, ",")
	return strings.TrimSpace(parts[0])
}
