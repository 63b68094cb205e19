// internal/app/features/register/routes.go
package register

import "github.com/go-chi/chi/v5"

// Routes is mounted at /api/auth/register. The session must already be
// loaded so administrators can be recognized.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.HandleRegister)
	return r
}
