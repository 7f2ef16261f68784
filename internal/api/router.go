package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/import", func(r chi.Router) {
		r.Get("/scan", h.Scan)
		r.Post("/upload", h.Upload)
		r.Post("/validate", h.Validate)
		r.Post("/summary", h.Summary)
		r.Post("/batch", h.Batch)
		r.Get("/progress/{taskId}", h.Progress)
		r.Get("/results/{taskId}", h.Results)
		r.Post("/cancel/{taskId}", h.Cancel)
		r.Post("/single", h.Single)
	})

	r.Get("/articles", h.Articles)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
