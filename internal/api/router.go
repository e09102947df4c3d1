package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/REZ3X/ghostchat-backend/internal/api/middleware"
	"github.com/REZ3X/ghostchat-backend/internal/config"
	"github.com/REZ3X/ghostchat-backend/internal/gateway"
	"github.com/REZ3X/ghostchat-backend/internal/handlers"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg *config.Config, logger zerolog.Logger, h *handlers.Handler, hub *gateway.Hub) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(cfg.MaxUploadBytes + 1<<20)) // uploads plus multipart overhead

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - restrict to the frontend origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(NotFoundJSON)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Real-time gateway
	r.Get("/ws", hub.ServeWS)

	// REST surface
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/room/{token}/stats", h.RoomStats)
		r.Get("/room/{token}/messages", h.RoomMessages)
		r.Post("/upload-image", h.UploadImage)
		r.Get("/image/{filename}", h.ServeImage)
		r.Delete("/image/{imageId}", h.DeleteImage)
	})

	return r
}

// NotFoundJSON keeps unknown routes on the JSON contract.
func NotFoundJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"error":"not found"}`))
}
