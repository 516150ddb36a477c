// Package api wires the HTTP surface: event submission, pull-based sync,
// the long-lived push stream, and account/session endpoints.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/prudhvinik1/whatsnote/internal/hub"
	"github.com/prudhvinik1/whatsnote/internal/repositories"
	"github.com/prudhvinik1/whatsnote/internal/services"
)

const sessionCookieName = "whatsnote_session"

type Server struct {
	auth      *services.AuthService
	events    *services.EventService
	hub       *hub.Hub
	presence  repositories.PresenceRepository
	devices   repositories.DeviceRepository
	keepAlive time.Duration
	logger    *zap.Logger
}

func NewServer(
	auth *services.AuthService,
	events *services.EventService,
	h *hub.Hub,
	presence repositories.PresenceRepository,
	devices repositories.DeviceRepository,
	keepAlive time.Duration,
	logger *zap.Logger,
) *Server {
	return &Server{
		auth:      auth,
		events:    events,
		hub:       h,
		presence:  presence,
		devices:   devices,
		keepAlive: keepAlive,
		logger:    logger,
	}
}

func (s *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.Route("/api", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/logout", s.handleLogout)
			r.Post("/events", s.handleEvents)
			r.Get("/sync", s.handleSync)
			r.Get("/listen", s.handleListen)
			r.Get("/delete-account", s.handleDeleteAccount)
		})
	})

	return router
}
