// internal/app/features/register/handler.go
package register

import (
	"net/http"

	uierrors "github.com/dalemusser/classhub/internal/app/features/errors"
	"github.com/dalemusser/classhub/internal/app/system/accounts"
	"github.com/dalemusser/classhub/internal/app/system/auditlog"
	"github.com/dalemusser/classhub/internal/app/system/auth"
	"github.com/dalemusser/classhub/internal/app/system/normalize"
	"github.com/dalemusser/classhub/internal/app/system/ratelimit"
	"github.com/dalemusser/classhub/internal/app/system/timeouts"
	"github.com/dalemusser/classhub/internal/domain/models"
	"go.uber.org/zap"
)

type Handler struct {
	Accounts *accounts.Service
	ErrLog   *uierrors.ErrorLogger
	Log      *zap.Logger

	// Limiter throttles sign-ups per address; nil disables it.
	Limiter *ratelimit.AuthLimiter
	Audit   *auditlog.Logger
}

func NewHandler(acc *accounts.Service, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Accounts: acc,
		ErrLog:   errLog,
		Log:      logger,
	}
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Nombre      string `json:"nombre"`
	TipoUsuario string `json:"tipoUsuario"`
}

type registerResponse struct {
	Success bool `json:"success"`
	*accounts.RegisterResult
}

// HandleRegister handles POST /api/auth/register.
//
// Anyone may create a student or teacher account. Administrator accounts
// can only be created by a signed-in administrator.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if !h.Limiter.AllowIP(r) {
		h.Log.Warn("sign-up rate limited", zap.String("ip", ratelimit.ClientIP(r)))
		uierrors.Fail(w, http.StatusTooManyRequests, h.ErrLog.Translator(r).T("auth.rate_limited"))
		return
	}

	var req registerRequest
	if err := uierrors.DecodeJSON(w, r, &req); err != nil {
		h.ErrLog.LogBadRequest(w, r, "decode register body", err, "")
		return
	}

	if normalize.UserType(req.TipoUsuario) == models.TipoAdministrador && !auth.HasRole(r, models.TipoAdministrador) {
		h.Log.Warn("administrator self-registration refused", zap.String("email", normalize.Email(req.Email)))
		h.ErrLog.RenderForbidden(w, r)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "register")
	defer cancel()

	res, err := h.Accounts.Register(ctx, req.Email, req.Password, req.Nombre, req.TipoUsuario)
	if err != nil {
		h.ErrLog.Respond(w, r, "register", err)
		return
	}

	var actor string
	if u, ok := auth.CurrentUser(r); ok {
		actor = u.ID
	}
	h.Audit.AccountCreated(ctx, r, actor, res.User.UID, res.User.Email, res.Profile.TipoUsuario)

	uierrors.JSON(w, http.StatusCreated, registerResponse{Success: true, RegisterResult: res})
}
