package userinfo_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	uierrors "github.com/dalemusser/classhub/internal/app/features/errors"
	"github.com/dalemusser/classhub/internal/app/features/userinfo"
	"github.com/dalemusser/classhub/internal/app/system/accounts"
	"github.com/dalemusser/classhub/internal/app/system/auth"
	"github.com/dalemusser/classhub/internal/app/system/backend"
	"github.com/dalemusser/classhub/internal/domain/models"
	"github.com/dalemusser/classhub/internal/testutil"
	"go.uber.org/zap"
)

func newHandler(t *testing.T, session *backend.Session) *userinfo.Handler {
	t.Helper()
	logger := zap.NewNop()
	acc := accounts.New(session, nil, logger)
	return userinfo.NewHandler(acc, testutil.NewSessionManager(t), uierrors.NewErrorLogger(logger, nil), logger)
}

type meBody struct {
	Success         bool            `json:"success"`
	IsAuthenticated bool            `json:"isAuthenticated"`
	Role            string          `json:"role"`
	Error           string          `json:"error"`
	User            map[string]any  `json:"user"`
	UserData        *models.Profile `json:"userData"`
}

// signIn registers and logs in a user and returns the session user the
// login handler would have stored in the cookie.
func signIn(t *testing.T, acc *accounts.Service, email, tipo string) *auth.SessionUser {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if _, err := acc.Register(ctx, email, "secret1", "Ana", tipo); err != nil {
		t.Fatalf("Register: %v", err)
	}
	res, err := acc.Login(ctx, email, "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return &auth.SessionUser{
		ID:      res.User.UID,
		Name:    res.Profile.Nombre,
		LoginID: res.User.Email,
		Role:    res.Profile.TipoUsuario,
		IDToken: res.User.IDToken,
	}
}

func TestServeUserInfo_Unauthenticated(t *testing.T) {
	handler := newHandler(t, testutil.NewBackend(t).Session)

	rec := testutil.NewRecorder()
	handler.ServeUserInfo(rec, testutil.NewRequest("GET", "/api/auth/me"))

	rec.AssertStatus(t, http.StatusUnauthorized)
	var body meBody
	rec.DecodeJSON(t, &body)
	if body.IsAuthenticated || body.Error != "Debes iniciar sesión" {
		t.Errorf("body = %+v", body)
	}
}

func TestServeUserInfo_SignedIn(t *testing.T) {
	handler := newHandler(t, testutil.NewBackend(t).Session)
	su := signIn(t, handler.Accounts, "ana@example.com", models.TipoMaestro)

	req := auth.WithTestUser(testutil.NewRequest("GET", "/api/auth/me"), su)
	rec := testutil.NewRecorder()
	handler.ServeUserInfo(rec, req)

	rec.AssertStatus(t, http.StatusOK)
	var body meBody
	rec.DecodeJSON(t, &body)
	if !body.IsAuthenticated || body.Role != models.TipoMaestro {
		t.Errorf("body = %+v", body)
	}
	if body.User["uid"] != su.ID {
		t.Errorf("user.uid = %v, want %s", body.User["uid"], su.ID)
	}
	if body.UserData == nil || body.UserData.Email != "ana@example.com" {
		t.Errorf("userData = %+v", body.UserData)
	}
}

func TestServeUserInfo_AfterRestartUsesToken(t *testing.T) {
	be := testutil.NewBackend(t)
	first := newHandler(t, be.Session)
	su := signIn(t, first.Accounts, "ana@example.com", "")

	// A fresh identity service over the same store has no signed-in users.
	restarted := testutil.NewIdentity(t, be.Store, be.Clock.Now)
	handler := newHandler(t, backend.Resolved(&backend.Clients{Identity: restarted, Store: be.Store}))

	req := auth.WithTestUser(testutil.NewRequest("GET", "/api/auth/me"), su)
	rec := testutil.NewRecorder()
	handler.ServeUserInfo(rec, req)

	rec.AssertStatus(t, http.StatusOK)
	var body meBody
	rec.DecodeJSON(t, &body)
	if body.User["email"] != "ana@example.com" {
		t.Errorf("user = %v", body.User)
	}
}

func TestServeUserInfo_BadTokenClearsSession(t *testing.T) {
	handler := newHandler(t, testutil.NewBackend(t).Session)

	su := &auth.SessionUser{ID: "uid-1", Name: "X", Role: models.TipoEstudiante, IDToken: "not-a-token"}
	req := auth.WithTestUser(testutil.NewRequest("GET", "/api/auth/me"), su)
	rec := httptest.NewRecorder()
	handler.ServeUserInfo(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.DefaultSessionName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("expected the session cookie to be cleared")
	}
}

func TestServeUserInfo_TokenForAnotherUser(t *testing.T) {
	handler := newHandler(t, testutil.NewBackend(t).Session)
	su := signIn(t, handler.Accounts, "ana@example.com", "")
	_ = handler.Accounts.Logout(t.Context(), su.ID)

	forged := *su
	forged.ID = "someone-else"
	req := auth.WithTestUser(testutil.NewRequest("GET", "/api/auth/me"), &forged)
	rec := testutil.NewRecorder()
	handler.ServeUserInfo(rec, req)

	rec.AssertStatus(t, http.StatusUnauthorized)
}
