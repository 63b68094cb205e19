// internal/app/features/teachers/routes.go
package teachers

import (
	"github.com/dalemusser/classhub/internal/app/system/auth"
	"github.com/dalemusser/classhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes is mounted at /api/admin/teachers. Administrators only.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)
	r.Use(sm.RequireRole(models.TipoAdministrador))

	r.Get("/", h.ServeList)
	r.Post("/", h.HandleSave)
	r.Post("/{id}/toggle", h.HandleToggle)
	r.Delete("/{id}", h.HandleDelete)
	return r
}
