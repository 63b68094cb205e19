// internal/app/features/auditlog/routes.go
package auditlog

import (
	"github.com/dalemusser/classhub/internal/app/system/auth"
	"github.com/dalemusser/classhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes is mounted at /api/admin/audit. Administrators only.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)
		pr.Use(sm.RequireRole(models.TipoAdministrador))

		pr.Get("/", h.ServeList)
	})

	return r
}
