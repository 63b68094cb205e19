// internal/app/features/courses/routes.go
package courses

import (
	"github.com/dalemusser/classhub/internal/app/system/auth"
	"github.com/dalemusser/classhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the course API under whatever base path the caller
// chooses (typically "/api/courses" from bootstrap).
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	// Public catalog.
	r.Get("/active", h.ServeActive)

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)

		admin := sm.RequireRole(models.TipoAdministrador)
		teacher := sm.RequireRole(models.TipoMaestro)

		pr.With(admin).Get("/", h.ServeList)
		pr.With(admin).Get("/stream", h.ServeStream)
		pr.With(teacher).Get("/mine", h.ServeMine)
		pr.With(teacher).Post("/", h.HandleCreate)

		pr.Get("/{id}", h.ServeCourse)
		pr.With(teacher).Put("/{id}", h.HandleUpdate)
		pr.With(sm.RequireRole(models.TipoMaestro, models.TipoAdministrador)).Delete("/{id}", h.HandleDelete)

		enroll := sm.RequireRole(models.TipoEstudiante, models.TipoAdministrador)
		pr.With(enroll).Post("/{id}/enroll", h.HandleEnroll)
		pr.With(enroll).Delete("/{id}/enroll", h.HandleUnenroll)
	})

	return r
}
