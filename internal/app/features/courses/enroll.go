// internal/app/features/courses/enroll.go
package courses

import (
	"context"
	"errors"
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

type enrollRequest struct {
	EstudianteID string `json:"estudianteId"`
}

// HandleEnroll handles POST /api/courses/{id}/enroll.
func (h *Handler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	h.enrollment(w, r, "enroll", h.Courses.Enroll)
}

// HandleUnenroll handles DELETE /api/courses/{id}/enroll.
func (h *Handler) HandleUnenroll(w http.ResponseWriter, r *http.Request) {
	h.enrollment(w, r, "unenroll", h.Courses.Unenroll)
}

// enrollment resolves the student: students act on themselves, an
// administrator names the student in the body or the estudianteId query
// parameter.
func (h *Handler) enrollment(w http.ResponseWriter, r *http.Request, op string,
	change func(ctx context.Context, courseID, studentID string) (*models.Course, error)) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		h.ErrLog.RenderUnauthorized(w, r)
		return
	}

	var req enrollRequest
	if err := uierrors.DecodeJSON(w, r, &req); err != nil {
		h.ErrLog.LogBadRequest(w, r, "decode enrollment body", err, "")
		return
	}
	studentID := strings.TrimSpace(req.EstudianteID)
	if studentID == "" {
		studentID = strings.TrimSpace(r.URL.Query().Get("estudianteId"))
	}

	if auth.HasRole(r, models.TipoAdministrador) {
		if studentID == "" {
			h.ErrLog.LogBadRequest(w, r, op+": no student", nil, "")
			return
		}
	} else {
		if studentID != "" && studentID != u.ID {
			h.ErrLog.RenderForbidden(w, r)
			return
		}
		studentID = u.ID
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	c, err := change(ctx, chi.URLParam(r, "id"), studentID)
	if err != nil {
		h.ErrLog.Respond(w, r, op, err)
		return
	}
	h.Log.Info("enrollment changed",
		zap.String("op", op),
		zap.String("course_id", c.ID),
		zap.String("student_id", studentID),
		zap.Int("enrolled", c.EstudiantesInscritos))
	h.writeCourse(w, http.StatusOK, c)
}

func isNotFound(err error) bool {
	return errors.Is(err, coursestore.ErrNotFound)
}
