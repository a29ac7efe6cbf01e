// Package embedded provides an embeddable Concord server for in-process use.
package embedded

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mistakeknot/concord/internal/auth"
	"github.com/mistakeknot/concord/internal/httpapi"
	"github.com/mistakeknot/concord/internal/notify"
	"github.com/mistakeknot/concord/internal/storage/sqlite"
	"github.com/mistakeknot/concord/internal/ws"
)

// Config configures the embedded server.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// If empty, defaults to ~/.concord/data.db
	DBPath string

	// Port is the HTTP port to listen on. If 0, defaults to 7437.
	Port int

	// Host is the host to bind to. If empty, defaults to 127.0.0.1.
	Host string

	// KeysFile enables API key authentication when set. Empty leaves
	// the embedded server on localhost bypass only.
	KeysFile string

	// JWTSecret enables bearer-token verification when set.
	JWTSecret string
}

// Server is an embedded Concord server.
type Server struct {
	cfg     Config
	store   *sqlite.Store
	hub     *ws.Hub
	http    *http.Server
	started bool
	mu      sync.Mutex
}

// New creates a new embedded Concord server.
func New(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		cfg.DBPath = filepath.Join(home, ".concord", "data.db")
	}
	if cfg.Port == 0 {
		cfg.Port = 7437
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	resilient := sqlite.NewResilient(store)

	var mw func(http.Handler) http.Handler
	if cfg.KeysFile != "" || cfg.JWTSecret != "" {
		ring, err := auth.LoadKeyring(cfg.KeysFile)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("load auth: %w", err)
		}
		mw = auth.Middleware(ring, cfg.JWTSecret)
	}

	hub := ws.NewHub()
	svc := httpapi.NewService(resilient).WithNotifier(notify.New(resilient, hub))
	router := httpapi.NewRouter(svc, hub.Handler(), mw)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		cfg:   cfg,
		store: store,
		hub:   hub,
		http:  &http.Server{Addr: addr, Handler: router},
	}, nil
}

// Start starts the embedded server in a goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "concord server error: %v\n", err)
		}
	}()

	// Give the listener a moment to come up.
	time.Sleep(50 * time.Millisecond)
	return nil
}

// Stop stops the embedded server gracefully and closes the store.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.http.Shutdown(ctx)
	if cerr := s.store.Close(); err == nil {
		err = cerr
	}
	return err
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// URL returns the base URL for the server.
func (s *Server) URL() string {
	return fmt.Sprintf("http://%s", s.http.Addr)
}

// Store returns the underlying store for direct access if needed.
func (s *Server) Store() *sqlite.Store {
	return s.store
}
