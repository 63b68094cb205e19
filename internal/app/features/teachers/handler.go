// internal/app/features/teachers/handler.go
package teachers

import (
	"context"
	"net/http"

	uierrors "github.com/dalemusser/classhub/internal/app/features/errors"
	profilestore "github.com/dalemusser/classhub/internal/app/store/profiles"
	"github.com/dalemusser/classhub/internal/app/system/auditlog"
	"github.com/dalemusser/classhub/internal/app/system/auth"
	"github.com/dalemusser/classhub/internal/app/system/backend"
	"github.com/dalemusser/classhub/internal/app/system/identity"
	"github.com/dalemusser/classhub/internal/app/system/inputval"
	"github.com/dalemusser/classhub/internal/app/system/timeouts"
	"github.com/dalemusser/classhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// accountSwitch is implemented by identity services that can disable an
// account.
type accountSwitch interface {
	SetDisabled(ctx context.Context, uid string, disabled bool) error
}

// Handler serves the administrator's teacher screens.
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

type saveRequest struct {
	ID string `json:"id"`
	profilestore.TeacherInput
}

// ServeList handles GET /api/admin/teachers.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	ps, _, err := profilestore.Open(ctx, h.Session)
	if err != nil {
		h.ErrLog.Respond(w, r, "list teachers", err)
		return
	}
	list, err := ps.ListTeachers(ctx)
	if err != nil {
		h.ErrLog.Respond(w, r, "list teachers", err)
		return
	}
	uierrors.JSON(w, http.StatusOK, map[string]any{"success": true, "docentes": list})
}

// HandleSave handles POST /api/admin/teachers. A body with an id updates
// that teacher; without one a new teacher record is added.
func (h *Handler) HandleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := uierrors.DecodeJSON(w, r, &req); err != nil {
		h.ErrLog.LogBadRequest(w, r, "decode teacher body", err, "")
		return
	}
	if res := inputval.Validate(req.TeacherInput); res.HasErrors() {
		h.ErrLog.LogBadRequest(w, r, "teacher payload rejected", nil, res.All())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	ps, _, err := profilestore.Open(ctx, h.Session)
	if err != nil {
		h.ErrLog.Respond(w, r, "save teacher", err)
		return
	}
	id, err := ps.SaveTeacher(ctx, req.ID, req.TeacherInput)
	if err != nil {
		h.ErrLog.Respond(w, r, "save teacher", err)
		return
	}
	h.Log.Info("teacher saved", zap.String("id", id), zap.Bool("created", req.ID == ""))
	h.Audit.TeacherSaved(ctx, r, actorID(r), id, req.ID == "")

	status := http.StatusOK
	if req.ID == "" {
		status = http.StatusCreated
	}
	uierrors.JSON(w, status, map[string]any{"success": true, "id": id})
}

// HandleToggle handles POST /api/admin/teachers/{id}/toggle. When the
// teacher has a sign-in account it is disabled or re-enabled to match.
func (h *Handler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	ps, clients, err := profilestore.Open(ctx, h.Session)
	if err != nil {
		h.ErrLog.Respond(w, r, "toggle teacher", err)
		return
	}
	estado, err := ps.ToggleTeacherStatus(ctx, id)
	if err != nil {
		h.ErrLog.Respond(w, r, "toggle teacher", err)
		return
	}

	if sw, ok := clients.Identity.(accountSwitch); ok {
		err := sw.SetDisabled(ctx, id, estado == models.EstadoInactivo)
		if err != nil && identity.CodeOf(err) != identity.CodeUserNotFound {
			h.Log.Warn("teacher account not updated", zap.String("id", id), zap.Error(err))
		}
	}

	h.Audit.TeacherStatusChanged(ctx, r, actorID(r), id, estado == models.EstadoActivo)
	uierrors.JSON(w, http.StatusOK, map[string]any{"success": true, "estado": estado})
}

// HandleDelete handles DELETE /api/admin/teachers/{id}. The teacher's
// open sessions are ended; the sign-in account is kept.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	ps, clients, err := profilestore.Open(ctx, h.Session)
	if err != nil {
		h.ErrLog.Respond(w, r, "delete teacher", err)
		return
	}
	if err := ps.DeleteTeacher(ctx, id); err != nil {
		h.ErrLog.Respond(w, r, "delete teacher", err)
		return
	}
	if err := clients.Identity.SignOut(ctx, id); err != nil {
		h.Log.Warn("teacher sessions not ended", zap.String("id", id), zap.Error(err))
	}
	h.Log.Info("teacher deleted", zap.String("id", id))
	h.Audit.UserDeleted(ctx, r, actorID(r), id, models.TipoMaestro)
	uierrors.JSON(w, http.StatusOK, uierrors.Envelope{Success: true})
}

func actorID(r *http.Request) string {
	if u, ok := auth.CurrentUser(r); ok {
		return u.ID
	}
	return ""
}
