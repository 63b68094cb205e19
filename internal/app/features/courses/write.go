// internal/app/features/courses/write.go
package courses

import (
	"context"
	"net/http"
	"strings"

	uierrors "github.com/dalemusser/classhub/internal/app/features/errors"
	coursestore "github.com/dalemusser/classhub/internal/app/store/courses"
	"github.com/dalemusser/classhub/internal/app/system/auth"
	"github.com/dalemusser/classhub/internal/app/system/timeouts"
	"github.com/dalemusser/classhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type createResponse struct {
	Success bool `json:"success"`
	*coursestore.CreateResult
}

// HandleCreate handles POST /api/courses. The course belongs to the
// signed-in teacher whatever docenteId the body carries.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		h.ErrLog.RenderUnauthorized(w, r)
		return
	}

	var in coursestore.Input
	if err := uierrors.DecodeJSON(w, r, &in); err != nil {
		h.ErrLog.LogBadRequest(w, r, "decode course body", err, "")
		return
	}
	in.DocenteID = u.ID
	if strings.TrimSpace(in.DocenteNombre) == "" {
		in.DocenteNombre = u.Name
	}
	if !h.validate(w, r, in) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	res, err := h.Courses.Create(ctx, in)
	if err != nil {
		h.ErrLog.Respond(w, r, "create course", err)
		return
	}
	if res.Warning != "" {
		res.Warning = h.ErrLog.Translator(r).T("courses.created_unconfirmed")
	}
	h.Log.Info("course created",
		zap.String("course_id", res.ID),
		zap.String("docente_id", u.ID))
	uierrors.JSON(w, http.StatusCreated, createResponse{Success: true, CreateResult: res})
}

// HandleUpdate handles PUT /api/courses/{id}. Only the owning teacher may
// edit a course.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var p coursestore.Patch
	if err := uierrors.DecodeJSON(w, r, &p); err != nil {
		h.ErrLog.LogBadRequest(w, r, "decode course patch", err, "")
		return
	}
	if !h.validate(w, r, p) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	current, err := h.Courses.GetByID(ctx, id)
	if err != nil {
		h.ErrLog.Respond(w, r, "update course: load", err)
		return
	}
	if !owns(r, current) {
		h.ErrLog.RenderForbidden(w, r)
		return
	}

	updated, err := h.Courses.Update(ctx, id, p)
	if err != nil {
		h.ErrLog.Respond(w, r, "update course", err)
		return
	}
	h.writeCourse(w, http.StatusOK, updated)
}

// HandleDelete handles DELETE /api/courses/{id}. The owning teacher and
// administrators may delete. Deleting a course that no longer exists
// succeeds.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if !auth.HasRole(r, models.TipoAdministrador) {
		current, err := h.Courses.GetByID(ctx, id)
		switch {
		case err == nil:
			if !owns(r, current) {
				h.ErrLog.RenderForbidden(w, r)
				return
			}
		case isNotFound(err):
			uierrors.JSON(w, http.StatusOK, uierrors.Envelope{Success: true})
			return
		default:
			h.ErrLog.Respond(w, r, "delete course: load", err)
			return
		}
	}

	if err := h.Courses.Delete(ctx, id); err != nil {
		h.ErrLog.Respond(w, r, "delete course", err)
		return
	}
	h.Log.Info("course deleted", zap.String("course_id", id))
	if u, ok := auth.CurrentUser(r); ok {
		h.Audit.CourseDeleted(ctx, r, u.ID, id)
	}
	uierrors.JSON(w, http.StatusOK, uierrors.Envelope{Success: true})
}
