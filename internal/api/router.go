package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/unit", func(r chi.Router) {
			r.Get("/", s.handleGetUnit)
			r.Put("/properties/{name}", s.handleSetProperty)
			r.Post("/refresh", s.handleRefresh)
			r.Get("/history", s.handleHistory)
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns process and unit readiness.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if !s.poller.Ready() || !s.poller.Available() {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
		"unit": map[string]any{
			"id":        s.unitID,
			"ready":     s.poller.Ready(),
			"available": s.poller.Available(),
		},
	})
}
