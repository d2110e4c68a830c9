package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"proctora-backend/internal/handlers"
	"proctora-backend/internal/middleware"
	"proctora-backend/internal/realtime"
)

func New(
	jwtAuth *middleware.JWTAuth,
	sessionHandler *handlers.SessionHandler,
	hub *realtime.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Socket open limiter (30 req/min per IP); group codes are short
	// enough to guess at volume.
	wsLimiter := middleware.NewRateLimiter(30, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Session Routes (supervisor dashboard) ────
		r.Route("/sessions", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/", sessionHandler.Create)
			r.Get("/{code}", sessionHandler.Get)
			r.Get("/{code}/messages", sessionHandler.ListMessages)
			r.Get("/{code}/incidents", sessionHandler.ListIncidents)
			r.Get("/{code}/actions", sessionHandler.ListActions)
		})

		// ──── WebSocket ────
		r.Group(func(r chi.Router) {
			r.Use(wsLimiter.Middleware)
			r.Get("/ws", hub.HandleWebSocket)
		})
	})

	return r
}
