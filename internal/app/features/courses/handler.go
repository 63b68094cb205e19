// internal/app/features/courses/handler.go
package courses

import (
	"net/http"
	"time"

	uierrors "github.com/dalemusser/classhub/internal/app/features/errors"
	coursestore "github.com/dalemusser/classhub/internal/app/store/courses"
	"github.com/dalemusser/classhub/internal/app/system/auditlog"
	"github.com/dalemusser/classhub/internal/app/system/auth"
	"github.com/dalemusser/classhub/internal/app/system/inputval"
	"github.com/dalemusser/classhub/internal/domain/models"
	"go.uber.org/zap"
)

// DefaultKeepAlive is how often an idle /stream connection gets a comment
// frame.
const DefaultKeepAlive = 25 * time.Second

type Handler struct {
	Courses   *coursestore.Store
	ErrLog    *uierrors.ErrorLogger
	Log       *zap.Logger
	KeepAlive time.Duration
	// Audit records course deletions; nil disables it.
	Audit *auditlog.Logger
}

func NewHandler(store *coursestore.Store, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Courses:   store,
		ErrLog:    errLog,
		Log:       logger,
		KeepAlive: DefaultKeepAlive,
	}
}

type listResponse struct {
	Success bool            `json:"success"`
	Cursos  []models.Course `json:"cursos"`
}

type courseResponse struct {
	Success bool           `json:"success"`
	Curso   *models.Course `json:"curso"`
}

func (h *Handler) writeList(w http.ResponseWriter, cs []models.Course) {
	if cs == nil {
		cs = []models.Course{}
	}
	uierrors.JSON(w, http.StatusOK, listResponse{Success: true, Cursos: cs})
}

func (h *Handler) writeCourse(w http.ResponseWriter, status int, c *models.Course) {
	uierrors.JSON(w, status, courseResponse{Success: true, Curso: c})
}

// validate runs the payload's validate tags and answers 400 on failure.
func (h *Handler) validate(w http.ResponseWriter, r *http.Request, v any) bool {
	if res := inputval.Validate(v); res.HasErrors() {
		h.ErrLog.LogBadRequest(w, r, "course payload rejected", nil, res.All())
		return false
	}
	return true
}

// owns reports whether the signed-in user is the course's teacher.
func owns(r *http.Request, c *models.Course) bool {
	u, ok := auth.CurrentUser(r)
	return ok && c != nil && c.DocenteID != "" && c.DocenteID == u.ID
}
