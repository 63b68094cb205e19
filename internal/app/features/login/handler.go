// internal/app/features/login/handler.go
package login

import (
	"context"
	"net/http"

	uierrors "github.com/dalemusser/classhub/internal/app/features/errors"
	"github.com/dalemusser/classhub/internal/app/system/accounts"
	"github.com/dalemusser/classhub/internal/app/system/auditlog"
	"github.com/dalemusser/classhub/internal/app/system/auth"
	"github.com/dalemusser/classhub/internal/app/system/ratelimit"
	"github.com/dalemusser/classhub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

type Handler struct {
	Accounts   *accounts.Service
	SessionMgr *auth.SessionManager
	ErrLog     *uierrors.ErrorLogger
	Log        *zap.Logger

	// Limiter throttles attempts per address and email; nil disables it.
	Limiter *ratelimit.AuthLimiter
	// Audit records sign-in outcomes; nil disables it.
	Audit *auditlog.Logger
}

func NewHandler(acc *accounts.Service, sessionMgr *auth.SessionManager, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Accounts:   acc,
		SessionMgr: sessionMgr,
		ErrLog:     errLog,
		Log:        logger,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool `json:"success"`
	*accounts.LoginResult
}

// HandleLoginPost handles POST /api/auth/login.
//
//	{ "email":"…", "password":"…" }
//
// On success the session cookie is set and the body carries the identity
// user and the resolved profile under "userData".
func (h *Handler) HandleLoginPost(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := uierrors.DecodeJSON(w, r, &req); err != nil {
		h.ErrLog.LogBadRequest(w, r, "decode login body", err, "")
		return
	}
	if !h.Limiter.AllowSignIn(r, req.Email) {
		h.Log.Warn("sign-in rate limited", zap.String("ip", ratelimit.ClientIP(r)))
		h.Audit.LoginRateLimited(r.Context(), r, req.Email)
		uierrors.Fail(w, http.StatusTooManyRequests, h.ErrLog.Translator(r).T("auth.rate_limited"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	res, err := h.Accounts.Login(ctx, req.Email, req.Password)
	if err != nil {
		h.Audit.LoginFailed(ctx, r, req.Email, accounts.CodeOf(err))
		h.ErrLog.Respond(w, r, "login", err)
		return
	}

	su := auth.SessionUser{
		ID:      res.User.UID,
		Name:    res.Profile.Nombre,
		LoginID: res.User.Email,
		Role:    res.Profile.TipoUsuario,
		IDToken: res.User.IDToken,
	}
	if err := h.SessionMgr.SignIn(w, r, su); err != nil {
		h.ErrLog.LogServerError(w, r, "save session", err, "")
		return
	}
	h.Limiter.SignedIn(req.Email)
	h.Audit.LoginSuccess(ctx, r, su.ID, su.LoginID, su.Role)

	uierrors.JSON(w, http.StatusOK, loginResponse{Success: true, LoginResult: res})
}
