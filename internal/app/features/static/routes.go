// internal/app/features/static/routes.go
package static

import "github.com/go-chi/chi/v5"

// MountRoutes registers the catch-all file routes on r. Mount it last so
// API routes take precedence.
func MountRoutes(r chi.Router, h *Handler) {
	r.Get("/*", h.Serve)
	r.Head("/*", h.Serve)
}
