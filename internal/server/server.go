package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/common"
	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/normalizer"
	"github.com/formflow/automation/internal/scheduler"
)

// Deps is everything the node HTTP surface needs, gathered at process
// start in cmd/automation-node/main.go.
type Deps struct {
	Profiles   interfaces.ProfileRepo
	Sites      interfaces.SiteRepo
	Scheduler  *scheduler.Scheduler
	Events     interfaces.EventService
	Normalizer *normalizer.Normalizer
	Config     *common.Config
	Logger     arbor.ILogger
}

// Server manages the node's HTTP server and routes.
type Server struct {
	deps         Deps
	router       *http.ServeMux
	server       *http.Server
	ws           *WebSocketHandler
	shutdownChan chan struct{}
}

// New creates a new HTTP server wired to deps.
func New(deps Deps) *Server {
	s := &Server{deps: deps}
	s.ws = NewWebSocketHandler(deps.Events, deps.Logger)
	s.router = s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", deps.Config.Server.Host, deps.Config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.withConditionalMiddleware(s.router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// SetShutdownChannel sets the channel that will be signaled when HTTP shutdown is requested.
func (s *Server) SetShutdownChannel(ch chan struct{}) {
	s.shutdownChan = ch
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.deps.Logger.Info().
		Str("address", s.server.Addr).
		Msg("node HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.deps.Logger.Info().Msg("shutting down node HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.deps.Logger.Info().Msg("node HTTP server stopped")
	return nil
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ShutdownHandler handles HTTP shutdown requests (dev mode only).
func (s *Server) ShutdownHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.deps.Logger.Info().Msg("shutdown requested via HTTP endpoint")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Shutting down gracefully...\n"))

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if s.shutdownChan != nil {
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.shutdownChan <- struct{}{}
		}()
	}
}
