// Package router assembles the HTTP surface: health, metrics, the read-only
// channel API and the WebSocket endpoint.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vedran77/cypherchat/internal/transport/http/handlers"
	"github.com/vedran77/cypherchat/internal/transport/http/middleware"
)

type Deps struct {
	Logger         zerolog.Logger
	AllowedOrigins []string
	Channels       *handlers.ChannelHandler
	Health         *handlers.HealthHandler
	Gateway        http.Handler
}

// New creates and configures the HTTP router.
func New(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(d.Logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.IdentityHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", d.Health.Health)

	r.Route("/api/v1/channels", func(r chi.Router) {
		r.Get("/", d.Channels.List)
		r.Get("/{id}/messages", d.Channels.Messages)
	})

	r.With(middleware.Identity).Get("/ws", d.Gateway.ServeHTTP)

	return r
}
