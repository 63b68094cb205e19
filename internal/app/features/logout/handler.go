// internal/app/features/logout/handler.go
package logout

import (
	"context"
	"net/http"

	uierrors "github.com/dalemusser/classhub/internal/app/features/errors"
	"github.com/dalemusser/classhub/internal/app/system/accounts"
	"github.com/dalemusser/classhub/internal/app/system/auditlog"
	"github.com/dalemusser/classhub/internal/app/system/auth"
	"github.com/dalemusser/classhub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

type Handler struct {
	Accounts   *accounts.Service
	SessionMgr *auth.SessionManager
	ErrLog     *uierrors.ErrorLogger
	Log        *zap.Logger
	Audit      *auditlog.Logger
}

func NewHandler(acc *accounts.Service, sessionMgr *auth.SessionManager, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Accounts:   acc,
		SessionMgr: sessionMgr,
		ErrLog:     errLog,
		Log:        logger,
	}
}

// HandleLogout handles POST /api/auth/logout.
//
// The cookie is cleared even when the identity service cannot be reached;
// that failure is still reported in the response.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	if err := h.SessionMgr.SignOut(w, r); err != nil {
		h.Log.Error("logout: save session", zap.Error(err))
	}

	if u != nil {
		ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
		defer cancel()
		if err := h.Accounts.Logout(ctx, u.ID); err != nil {
			h.ErrLog.Respond(w, r, "logout", err)
			return
		}
		h.Audit.Logout(ctx, r, u.ID)
	}

	uierrors.JSON(w, http.StatusOK, uierrors.Envelope{Success: true})
}
