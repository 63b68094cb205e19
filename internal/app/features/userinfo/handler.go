// internal/app/features/userinfo/handler.go
package userinfo

import (
	"context"
	"net/http"

	uierrors "github.com/dalemusser/classhub/internal/app/features/errors"
	"github.com/dalemusser/classhub/internal/app/system/accounts"
	"github.com/dalemusser/classhub/internal/app/system/auth"
	"github.com/dalemusser/classhub/internal/app/system/identity"
	"github.com/dalemusser/classhub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Handler serves user information for authenticated sessions.
type Handler struct {
	Accounts   *accounts.Service
	SessionMgr *auth.SessionManager
	ErrLog     *uierrors.ErrorLogger
	Log        *zap.Logger
}

// NewHandler creates a new userinfo handler.
func NewHandler(acc *accounts.Service, sessionMgr *auth.SessionManager, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Accounts:   acc,
		SessionMgr: sessionMgr,
		ErrLog:     errLog,
		Log:        logger,
	}
}

// ServeUserInfo returns the signed-in user and their usuarios profile.
//
// Response format:
//
//	{ "success":true, "isAuthenticated":true, "role":"…", "user":{…}, "userData":{…}|null }
//
// The identity service keeps signed-in users in memory, so after a restart
// the cookie's ID token is verified instead. A cookie whose token no longer
// verifies is cleared and the caller gets 401.
func (h *Handler) ServeUserInfo(w http.ResponseWriter, r *http.Request) {
	su, ok := auth.CurrentUser(r)
	if !ok {
		uierrors.JSON(w, http.StatusUnauthorized, map[string]any{
			"success":         false,
			"isAuthenticated": false,
			"error":           h.ErrLog.Translator(r).T("auth.not_signed_in"),
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	user, live := h.Accounts.CurrentUser(su.ID)
	if !live {
		claims, err := h.verify(ctx, su)
		if err != nil {
			if h.SessionMgr != nil {
				if serr := h.SessionMgr.SignOut(w, r); serr != nil {
					h.Log.Warn("userinfo: clear session", zap.Error(serr))
				}
			}
			h.ErrLog.Respond(w, r, "userinfo: verify token", err)
			return
		}
		user = &identity.User{
			UID:           claims.UID,
			Email:         claims.Email,
			DisplayName:   su.Name,
			EmailVerified: claims.EmailVerified,
		}
		if claims.ExpiresAt != nil {
			user.ExpiresAt = claims.ExpiresAt.Time
		}
	}

	profile, err := h.Accounts.UserInfo(ctx, su.ID)
	if err != nil {
		h.Log.Warn("userinfo: profile lookup failed", zap.String("uid", su.ID), zap.Error(err))
		profile = nil
	}

	uierrors.JSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"isAuthenticated": true,
		"role":            su.Role,
		"user":            user,
		"userData":        profile,
	})
}

func (h *Handler) verify(ctx context.Context, su *auth.SessionUser) (*identity.Claims, error) {
	if su.IDToken == "" {
		return nil, &accounts.Error{Code: identity.CodeInvalidIDToken, Message: "missing id token"}
	}
	claims, err := h.Accounts.VerifyToken(ctx, su.IDToken)
	if err != nil {
		return nil, err
	}
	if claims.UID != su.ID {
		return nil, &accounts.Error{Code: identity.CodeInvalidIDToken, Message: "token subject mismatch"}
	}
	return claims, nil
}
