// Package web serves the session-gated browser surface over a vault
// store. Every authenticated request performs exactly one vault cycle; no
// decrypted vault state is held between requests.
package web

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/forest6511/lockbox/pkg/audit"
	"github.com/forest6511/lockbox/pkg/vault"
)

const sessionCookie = "lockbox_session"

// Server wires the HTTP surface to a vault store and a session table.
type Server struct {
	store    *vault.Store
	sessions *SessionManager
	audit    *audit.Logger
	log      *log.Logger
	http     *http.Server
}

// NewServer returns a server bound to addr.
func NewServer(addr string, store *vault.Store, sessions *SessionManager, auditLog *audit.Logger, logger *log.Logger) *Server {
	s := &Server{
		store:    store,
		sessions: sessions,
		audit:    auditLog,
		log:      logger,
	}
	sessions.onExpire = func() {
		_ = auditLog.LogError(audit.OpSessionExpired, audit.SourceWeb, "", "idle timeout")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)
	mux.HandleFunc("/", s.requireSession(s.handleList))
	mux.HandleFunc("/add", s.requireSession(s.handleAdd))
	mux.HandleFunc("/edit", s.requireSession(s.handleEdit))
	mux.HandleFunc("/view", s.requireSession(s.handleView))
	mux.HandleFunc("/delete", s.requireSession(s.handleDelete))
	mux.HandleFunc("/notes", s.requireSession(s.handleNotes))
	mux.HandleFunc("/notes-add", s.requireSession(s.handleNoteAdd))
	mux.HandleFunc("/notes-view", s.requireSession(s.handleNoteView))
	mux.HandleFunc("/notes-delete", s.requireSession(s.handleNoteDelete))

	s.http = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler exposes the routing for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks until the context is cancelled, then shuts down
// gracefully and destroys every live session.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.http.ListenAndServe()
	}()
	s.log.Printf("listening on http://%s", s.http.Addr)

	select {
	case err := <-errc:
		s.sessions.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.http.Shutdown(shutdownCtx)
	s.sessions.Close()
	return err
}
