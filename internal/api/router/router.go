package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/klinikdesk/platform/internal/http/handlers"
	httpmiddleware "github.com/klinikdesk/platform/internal/http/middleware"
	"github.com/klinikdesk/platform/internal/identity"
	"github.com/klinikdesk/platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger        *logging.Logger
	VisitsHandler *handlers.VisitsHandler

	// Resolver authenticates every /api request.
	Resolver identity.Resolver

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Per-IP rate limit on the API surface. Zero disables it.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (health checks, metrics)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Visit lifecycle API, all behind session auth.
	if cfg.VisitsHandler != nil && cfg.Resolver != nil {
		r.Route("/api/visits", func(api chi.Router) {
			if cfg.RateLimitPerSecond > 0 {
				api.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
			}
			api.Use(httpmiddleware.SessionAuth(cfg.Resolver, cfg.Logger))

			api.Post("/", cfg.VisitsHandler.Register)
			api.Get("/queue", cfg.VisitsHandler.Queue)
			api.Get("/history", cfg.VisitsHandler.History)
			api.Route("/{visitID}", func(visit chi.Router) {
				visit.Get("/", cfg.VisitsHandler.Get)
				visit.Post("/start", cfg.VisitsHandler.Start)
				visit.Put("/soap", cfg.VisitsHandler.SaveSoap)
				visit.Post("/complete", cfg.VisitsHandler.Complete)
				visit.Get("/audit", cfg.VisitsHandler.Audit)
			})
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
