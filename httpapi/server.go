package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ticketgraph/engine/orchestrator"
	"github.com/ticketgraph/engine/platform"
	"github.com/ticketgraph/engine/store"
)

// Server holds the chi router and the dependencies its handlers call
// into. It implements http.Handler so it can be passed straight to
// http.Server or httptest.NewServer.
type Server struct {
	router       chi.Router
	orchestrator *orchestrator.TicketOrchestrator
	store        store.Store
	logger       platform.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger overrides the default NoOpLogger.
func WithLogger(logger platform.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// NewServer builds a Server with all routes registered. orch and st
// must not be nil; st backs the read-only listing and role endpoints
// that don't go through the orchestrator's transaction boundary.
func NewServer(orch *orchestrator.TicketOrchestrator, st store.Store, opts ...ServerOption) *Server {
	s := &Server{
		orchestrator: orch,
		store:        st,
		logger:       platform.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if cal, ok := s.logger.(platform.ComponentAwareLogger); ok {
		s.logger = cal.WithComponent("httpapi")
	}

	r := chi.NewRouter()
	r.Post("/tickets", s.handleCreateTicket)
	r.Put("/tickets", s.handleUpdateTicket)
	r.Get("/tickets", s.handleListTickets)
	r.Post("/roles", s.handleCreateRole)
	r.Get("/roles", s.handleListRoles)
	s.router = r

	return s
}

// ServeHTTP implements http.Handler, delegating to the chi router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
