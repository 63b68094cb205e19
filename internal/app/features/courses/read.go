// internal/app/features/courses/read.go
package courses

import (
	"context"
	"net/http"

	"github.com/dalemusser/classhub/internal/app/system/auth"
	"github.com/dalemusser/classhub/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
)

// ServeList handles GET /api/courses (administrators).
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	cs, err := h.Courses.GetAll(ctx)
	if err != nil {
		h.ErrLog.Respond(w, r, "list courses", err)
		return
	}
	h.writeList(w, cs)
}

// ServeActive handles GET /api/courses/active: the public catalog of
// active courses visible to students.
func (h *Handler) ServeActive(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	cs, err := h.Courses.GetActiveVisible(ctx)
	if err != nil {
		h.ErrLog.Respond(w, r, "list active courses", err)
		return
	}
	h.writeList(w, cs)
}

// ServeMine handles GET /api/courses/mine: the signed-in teacher's courses.
func (h *Handler) ServeMine(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		h.ErrLog.RenderUnauthorized(w, r)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	cs, err := h.Courses.GetByTeacher(ctx, u.ID)
	if err != nil {
		h.ErrLog.Respond(w, r, "list teacher courses", err)
		return
	}
	h.writeList(w, cs)
}

// ServeCourse handles GET /api/courses/{id}.
func (h *Handler) ServeCourse(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	c, err := h.Courses.GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.ErrLog.Respond(w, r, "get course", err)
		return
	}
	h.writeCourse(w, http.StatusOK, c)
}
