// Package adminserver implements the central admin HTTP surface (spec.md
// §4.9, §6, C11 server side, default port 5512): client registration,
// command queueing, and result collection for every automation-node
// heartbeating in.
package adminserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/common"
	"github.com/formflow/automation/internal/interfaces"
)

// Deps is everything the admin HTTP surface needs.
type Deps struct {
	Clients interfaces.ClientRepo
	Commands interfaces.CommandRepo
	Results  interfaces.CommandResultRepo
	Config   *common.Config
	Logger   arbor.ILogger
}

// Server is the central admin process's HTTP surface.
type Server struct {
	deps   Deps
	router *http.ServeMux
	server *http.Server
}

func New(deps Deps) *Server {
	s := &Server{deps: deps}
	s.router = s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", deps.Config.Admin.Host, deps.Config.Admin.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      withCORS(s.router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.deps.Logger.Info().Str("address", s.server.Addr).Msg("admin HTTP server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.deps.Logger.Info().Msg("shutting down admin HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("admin server shutdown failed: %w", err)
	}
	return nil
}

// withCORS mirrors the node server's corsMiddleware for the admin UI.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
