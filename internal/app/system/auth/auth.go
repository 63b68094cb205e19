// Package auth keeps the signed-in user in a gorilla/sessions cookie and
// guards routes by role.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	// DefaultSessionName is the cookie name used when none is configured.
	DefaultSessionName = "classhub-session"

	// LoginPath is the page HTML callers are sent to when not signed in.
	LoginPath = "/index.html"

	isAuthKey = "is_authenticated"
	userIDKey = "user_id"
	userName  = "user_name"
	userEmail = "user_email"
	userRole  = "user_role"
	tokenKey  = "id_token"
)

var (
	// ErrShortKey is returned for a session key under 32 bytes.
	ErrShortKey = errors.New("session key must be at least 32 characters")

	// ErrSessionRevoked is returned by a SessionCheck when the cookie's
	// account may no longer use it. The cookie is then cleared.
	ErrSessionRevoked = errors.New("session revoked")
)

// SessionCheck revalidates the cookie's user on each request and returns
// the user to put in context, possibly with a refreshed role.
type SessionCheck func(ctx context.Context, u *SessionUser) (*SessionUser, error)

// SessionUser is what is cached in the session and injected into the
// request context. Role is the profile's tipoUsuario.
type SessionUser struct {
	ID      string
	Name    string
	LoginID string
	Role    string
	IDToken string
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the user loaded by LoadSessionUser.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*SessionUser)
	return u, ok
}

// WithTestUser puts u in the request context the way LoadSessionUser does.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return withUser(r, u)
}

// SessionManager owns the cookie store.
type SessionManager struct {
	store *sessions.CookieStore
	name  string
	log   *zap.Logger

	check        SessionCheck
	checkTimeout time.Duration
}

// NewSessionManager builds a cookie store signed and encrypted with keys
// derived from sessionKey. Cookies are SameSite=Lax, and Secure when
// secure is set.
func NewSessionManager(sessionKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if len(sessionKey) < 32 {
		return nil, fmt.Errorf("%w (got %d)", ErrShortKey, len(sessionKey))
	}
	if name == "" {
		name = DefaultSessionName
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Hash key signs; the 32-byte block key turns on AES encryption.
	store := sessions.NewCookieStore([]byte(sessionKey), []byte(sessionKey)[:32])
	store.Options = &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	store.MaxAge(store.Options.MaxAge)

	logger.Info("session store initialized",
		zap.String("name", name),
		zap.Bool("secure", secure),
		zap.String("domain", domain),
		zap.Duration("max_age", maxAge))

	return &SessionManager{store: store, name: name, log: logger}, nil
}

// SetSessionCheck makes LoadSessionUser run fn, bounded by timeout, for
// every request that carries a signed-in cookie. Call it before serving.
func (sm *SessionManager) SetSessionCheck(fn SessionCheck, timeout time.Duration) {
	sm.check = fn
	sm.checkTimeout = timeout
}

// Name returns the cookie name.
func (sm *SessionManager) Name() string { return sm.name }

// SignIn writes u into the session cookie.
func (sm *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, u SessionUser) error {
	sess, err := sm.store.Get(r, sm.name)
	if err != nil && !isDecodeErr(err) {
		return err
	}
	sess.Values[isAuthKey] = true
	sess.Values[userIDKey] = u.ID
	sess.Values[userName] = u.Name
	sess.Values[userEmail] = u.LoginID
	sess.Values[userRole] = u.Role
	sess.Values[tokenKey] = u.IDToken
	return sess.Save(r, w)
}

// SignOut expires the session cookie.
func (sm *SessionManager) SignOut(w http.ResponseWriter, r *http.Request) error {
	sess, err := sm.store.Get(r, sm.name)
	if err != nil && !isDecodeErr(err) {
		return err
	}
	sess.Values = map[interface{}]interface{}{}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// LoadSessionUser injects the user into context if they are signed in. A
// cookie that no longer decodes (rotated key) is treated as signed out, as
// is one the session check rejects.
func (sm *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sm.store.Get(r, sm.name)
		if err != nil {
			sm.log.Debug("session decode failed", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if isAuth, _ := sess.Values[isAuthKey].(bool); isAuth {
			u := &SessionUser{
				ID:      getString(sess, userIDKey),
				Name:    getString(sess, userName),
				LoginID: getString(sess, userEmail),
				Role:    getString(sess, userRole),
				IDToken: getString(sess, tokenKey),
			}
			if u, ok := sm.recheck(w, r, u); ok {
				r = withUser(r, u)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (sm *SessionManager) recheck(w http.ResponseWriter, r *http.Request, u *SessionUser) (*SessionUser, bool) {
	if sm.check == nil {
		return u, true
	}
	ctx, cancel := context.WithTimeout(r.Context(), sm.checkTimeout)
	defer cancel()

	checked, err := sm.check(ctx, u)
	switch {
	case err == nil:
		return checked, true
	case errors.Is(err, ErrSessionRevoked):
		sm.log.Info("session rejected", zap.String("user_id", u.ID), zap.Error(err))
		if err := sm.SignOut(w, r); err != nil {
			sm.log.Warn("session cookie not cleared", zap.Error(err))
		}
	default:
		sm.log.Warn("session check failed", zap.String("user_id", u.ID), zap.Error(err))
	}
	return nil, false
}

// RequireSignedIn ensures there is a user in context (set by LoadSessionUser).
// If not signed in:
//   - HTMX: sends HX-Redirect to the login page
//   - HTML: 303 redirect to the login page with ?return=
//   - API:  401 with a JSON error body
func (sm *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		unauthorized(w, r)
	})
}

// RequireRole ensures the signed-in user has one of the allowed roles.
// Roles compare case-insensitively.
func (sm *SessionManager) RequireRole(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		set[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := CurrentUser(r)
			if !ok {
				unauthorized(w, r)
				return
			}
			if _, has := set[strings.ToLower(u.Role)]; !has {
				sm.log.Info("role not allowed",
					zap.String("user_id", u.ID),
					zap.String("role", u.Role),
					zap.String("path", r.URL.Path))
				forbidden(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HasRole reports whether the request's user has one of roles.
func HasRole(r *http.Request, roles ...string) bool {
	u, ok := CurrentUser(r)
	if !ok {
		return false
	}
	for _, role := range roles {
		if strings.EqualFold(u.Role, role) {
			return true
		}
	}
	return false
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	dest := LoginPath + "?return=" + url.QueryEscape(r.URL.RequestURI())
	switch {
	case r.Header.Get("HX-Request") == "true":
		w.Header().Set("HX-Redirect", dest)
		w.WriteHeader(http.StatusUnauthorized)
	case wantsHTML(r):
		http.Redirect(w, r, dest, http.StatusSeeOther)
	default:
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
	}
}

func forbidden(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Header.Get("HX-Request") == "true":
		w.Header().Set("HX-Redirect", LoginPath)
		w.WriteHeader(http.StatusForbidden)
	case wantsHTML(r):
		http.Redirect(w, r, LoginPath, http.StatusSeeOther)
	default:
		writeJSONError(w, http.StatusForbidden, "forbidden")
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"success":false,"error":%q}`, msg)
}

// helpers

func withUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

// getString safely extracts a string from a session value.
func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}

func isDecodeErr(err error) bool {
	var se securecookie.Error
	return errors.As(err, &se) && se.IsDecode()
}

func wantsHTML(r *http.Request) bool {
	if r.Header.Get("HX-Request") == "true" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
