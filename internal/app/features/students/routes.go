// internal/app/features/students/routes.go
package students

import (
	"github.com/dalemusser/classhub/internal/app/system/auth"
	"github.com/dalemusser/classhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes is mounted at /api/admin/students. Administrators only.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)
	r.Use(sm.RequireRole(models.TipoAdministrador))

	r.Get("/", h.ServeList)
	r.Delete("/{id}", h.HandleDelete)
	return r
}
