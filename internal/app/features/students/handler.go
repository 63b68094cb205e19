// internal/app/features/students/handler.go
package students

import (
	"context"
	"net/http"

	uierrors "github.com/dalemusser/classhub/internal/app/features/errors"
	profilestore "github.com/dalemusser/classhub/internal/app/store/profiles"
	"github.com/dalemusser/classhub/internal/app/system/auditlog"
	"github.com/dalemusser/classhub/internal/app/system/auth"
	"github.com/dalemusser/classhub/internal/app/system/backend"
	"github.com/dalemusser/classhub/internal/app/system/identity"
	"github.com/dalemusser/classhub/internal/app/system/timeouts"
	"github.com/dalemusser/classhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// accountRemover is implemented by identity services that can delete an
// account.
type accountRemover interface {
	DeleteAccount(ctx context.Context, uid string) error
}

// Handler serves the administrator's student screens.
type Handler struct {
	Session *backend.Session
	ErrLog  *uierrors.ErrorLogger
	Log     *zap.Logger
	Audit   *auditlog.Logger
}

func NewHandler(session *backend.Session, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Session: session,
		ErrLog:  errLog,
		Log:     logger,
	}
}

// ServeList handles GET /api/admin/students.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	ps, _, err := profilestore.Open(ctx, h.Session)
	if err != nil {
		h.ErrLog.Respond(w, r, "list students", err)
		return
	}
	list, err := ps.ListStudents(ctx)
	if err != nil {
		h.ErrLog.Respond(w, r, "list students", err)
		return
	}
	uierrors.JSON(w, http.StatusOK, map[string]any{"success": true, "estudiantes": list})
}

// HandleDelete handles DELETE /api/admin/students/{id}. The student's
// profile is removed and, when one exists, their sign-in account.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	ps, clients, err := profilestore.Open(ctx, h.Session)
	if err != nil {
		h.ErrLog.Respond(w, r, "delete student", err)
		return
	}
	if err := ps.DeleteStudent(ctx, id); err != nil {
		h.ErrLog.Respond(w, r, "delete student", err)
		return
	}

	if rm, ok := clients.Identity.(accountRemover); ok {
		if err := rm.DeleteAccount(ctx, id); err != nil && identity.CodeOf(err) != identity.CodeUserNotFound {
			h.Log.Warn("student account not deleted", zap.String("id", id), zap.Error(err))
		}
	}

	h.Log.Info("student deleted", zap.String("id", id))
	var actor string
	if u, ok := auth.CurrentUser(r); ok {
		actor = u.ID
	}
	h.Audit.UserDeleted(ctx, r, actor, id, models.TipoEstudiante)
	uierrors.JSON(w, http.StatusOK, uierrors.Envelope{Success: true})
}
