// internal/app/bootstrap/csrf.go
package bootstrap

import (
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"strings"

	errorsfeature "github.com/dalemusser/classhub/internal/app/features/errors"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"
)

const (
	csrfCookieName = "classhub-csrf"

	// CSRFHeader carries the token both ways: responses expose it and
	// unsafe requests must send it back.
	CSRFHeader = "X-CSRF-Token"
)

// csrfProtection returns the middleware chain that rejects cross-site
// writes. Every unsafe request must echo the token from the CSRFHeader of
// an earlier response (or GET /api/auth/csrf) and, when it carries an
// Origin, come from this host or a trusted origin.
func csrfProtection(cfg AppConfig, errLog *errorsfeature.ErrorLogger, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	key, err := csrfKey(cfg.SessionKey)
	if err != nil {
		return nil, err
	}

	protect := csrf.Protect(key,
		csrf.CookieName(csrfCookieName),
		csrf.Path("/"),
		csrf.Domain(cfg.SessionDomain),
		csrf.MaxAge(int(cfg.SessionMaxAge.Seconds())),
		csrf.Secure(cfg.Env == "prod"),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.RequestHeader(CSRFHeader),
		csrf.TrustedOrigins(cfg.CSRFTrustedOrigins),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Warn("csrf check failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("origin", r.Header.Get("Origin")),
				zap.Error(csrf.FailureReason(r)))
			errorsfeature.Fail(w, http.StatusForbidden, errLog.Translator(r).T("auth.csrf_failed"))
		})),
	)

	return func(next http.Handler) http.Handler {
		return markPlaintext(protect(exposeCSRFToken(next)))
	}, nil
}

// csrfKey derives the 32-byte token key from the session key.
func csrfKey(sessionKey string) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(sessionKey), nil, []byte("classhub csrf")), key); err != nil {
		return nil, fmt.Errorf("derive csrf key: %w", err)
	}
	return key, nil
}

// markPlaintext tells the csrf middleware which requests arrived over
// plain http, so it compares origins with the right scheme.
func markPlaintext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil && !strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
			r = csrf.PlaintextHTTPRequest(r)
		}
		next.ServeHTTP(w, r)
	})
}

func exposeCSRFToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(CSRFHeader, csrf.Token(r))
		next.ServeHTTP(w, r)
	})
}

// serveCSRFToken handles GET /api/auth/csrf.
func serveCSRFToken(w http.ResponseWriter, r *http.Request) {
	errorsfeature.JSON(w, http.StatusOK, map[string]any{"success": true, "csrfToken": csrf.Token(r)})
}
