package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/savegress/oeesense/internal/config"
	"github.com/savegress/oeesense/internal/events"
	"github.com/savegress/oeesense/internal/reports"
)

// Server represents the API server
type Server struct {
	router chi.Router
	config *config.Config
	store  *events.Store
	engine *reports.Engine
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, store *events.Store, engine *reports.Engine) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		store:  store,
		engine: engine,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	s.router.Get("/health", s.healthCheck)

	// API v1
	s.router.Route("/api/v1", func(r chi.Router) {
		// Event log
		r.Route("/events", func(r chi.Router) {
			r.Post("/", s.ingestEvent)
			r.Post("/batch", s.ingestBatch)
			r.Get("/", s.listEvents)
		})

		// On-demand OEE calculation
		r.Get("/oee", s.computeOEE)

		// Shift reports
		r.Route("/reports", func(r chi.Router) {
			r.Get("/", s.listReports)
			r.Get("/latest", s.latestReport)
		})

		// Configuration view
		r.Get("/standards", s.getStandards)

		// Stats
		r.Get("/stats", s.getStats)
	})
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}
