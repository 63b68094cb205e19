// internal/app/bootstrap/routes.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	auditlogfeature "github.com/dalemusser/classhub/internal/app/features/auditlog"
	coursesfeature "github.com/dalemusser/classhub/internal/app/features/courses"
	errorsfeature "github.com/dalemusser/classhub/internal/app/features/errors"
	healthfeature "github.com/dalemusser/classhub/internal/app/features/health"
	loginfeature "github.com/dalemusser/classhub/internal/app/features/login"
	logoutfeature "github.com/dalemusser/classhub/internal/app/features/logout"
	registerfeature "github.com/dalemusser/classhub/internal/app/features/register"
	staticfeature "github.com/dalemusser/classhub/internal/app/features/static"
	studentsfeature "github.com/dalemusser/classhub/internal/app/features/students"
	teachersfeature "github.com/dalemusser/classhub/internal/app/features/teachers"
	userinfofeature "github.com/dalemusser/classhub/internal/app/features/userinfo"
	coursestore "github.com/dalemusser/classhub/internal/app/store/courses"
	"github.com/dalemusser/classhub/internal/app/system/accounts"
	"github.com/dalemusser/classhub/internal/app/system/auditlog"
	"github.com/dalemusser/classhub/internal/app/system/auth"
	"github.com/dalemusser/classhub/internal/app/system/i18n"
	"github.com/dalemusser/classhub/internal/app/system/ratelimit"
	"github.com/dalemusser/classhub/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router).
//
// It is called after configuration, DB connections, schema setup, and the
// Startup hook have completed. Every service is built here and handed to the
// features that use it; nothing is process-global.
func BuildHandler(cfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := cfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(cfg.SessionKey, cfg.SessionName, cfg.SessionDomain, cfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	tr, err := i18n.New(cfg.DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("i18n: %w", err)
	}
	errLog := errorsfeature.NewErrorLogger(logger, tr)

	acc := accounts.New(deps.Session, tr, logger)
	sessionMgr.SetSessionCheck(sessionCheck(acc), timeouts.Short())

	csrfMW, err := csrfProtection(cfg, errLog, logger)
	if err != nil {
		return nil, err
	}
	courses := coursestore.New(deps.Session, logger)
	limiter := ratelimit.NewAuthLimiter(ratelimit.Config{
		IPLimit:     cfg.AuthIPLimit,
		IPWindow:    cfg.AuthIPWindow,
		EmailLimit:  cfg.AuthEmailLimit,
		EmailWindow: cfg.AuthEmailWindow,
	})
	auditLog := auditlog.New(deps.Session, logger, auditlog.Config{
		Auth:  cfg.AuditLogAuth,
		Admin: cfg.AuditLogAdmin,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", CSRFHeader},
		ExposedHeaders: []string{CSRFHeader},
		MaxAge:         300,
	}))
	r.Use(csrfMW)

	// Global auth middleware: loads SessionUser into context if signed in.
	// This makes the current user available to all handlers via auth.CurrentUser(r).
	r.Use(sessionMgr.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.Session, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	userinfoHandler := userinfofeature.NewHandler(acc, sessionMgr, errLog, logger)
	userinfofeature.MountRoutes(r, userinfoHandler)

	r.Route("/api", func(api chi.Router) {
		api.NotFound(func(w http.ResponseWriter, r *http.Request) {
			errorsfeature.Fail(w, http.StatusNotFound, errLog.Translator(r).T("http.not_found"))
		})

		// Authentication
		api.Get("/auth/csrf", serveCSRFToken)

		registerHandler := registerfeature.NewHandler(acc, errLog, logger)
		registerHandler.Limiter = limiter
		registerHandler.Audit = auditLog
		api.Mount("/auth/register", registerfeature.Routes(registerHandler))

		loginHandler := loginfeature.NewHandler(acc, sessionMgr, errLog, logger)
		loginHandler.Limiter = limiter
		loginHandler.Audit = auditLog
		api.Mount("/auth/login", loginfeature.Routes(loginHandler))

		logoutHandler := logoutfeature.NewHandler(acc, sessionMgr, errLog, logger)
		logoutHandler.Audit = auditLog
		api.Mount("/auth/logout", logoutfeature.Routes(logoutHandler, sessionMgr))

		// Courses
		coursesHandler := coursesfeature.NewHandler(courses, errLog, logger)
		coursesHandler.Audit = auditLog
		api.Mount("/courses", coursesfeature.Routes(coursesHandler, sessionMgr))

		// Administration
		teachersHandler := teachersfeature.NewHandler(deps.Session, errLog, logger)
		teachersHandler.Audit = auditLog
		api.Mount("/admin/teachers", teachersfeature.Routes(teachersHandler, sessionMgr))

		studentsHandler := studentsfeature.NewHandler(deps.Session, errLog, logger)
		studentsHandler.Audit = auditLog
		api.Mount("/admin/students", studentsfeature.Routes(studentsHandler, sessionMgr))

		auditHandler := auditlogfeature.NewHandler(deps.Session, errLog, logger)
		api.Mount("/admin/audit", auditlogfeature.Routes(auditHandler, sessionMgr))
	})

	// Portal pages and assets; mounted last so the API wins.
	staticHandler := staticfeature.NewHandler(os.DirFS(cfg.StaticDir), tr, logger)
	staticfeature.MountRoutes(r, staticHandler)

	return r, nil
}

// sessionCheck revalidates cookie sessions against the identity service and
// the profile collections, refreshing the role from the profile.
func sessionCheck(acc *accounts.Service) auth.SessionCheck {
	return func(ctx context.Context, u *auth.SessionUser) (*auth.SessionUser, error) {
		p, err := acc.CheckSession(ctx, u.ID, u.IDToken)
		if errors.Is(err, accounts.ErrSessionEnded) {
			return nil, fmt.Errorf("%w: %w", auth.ErrSessionRevoked, err)
		}
		if err != nil {
			return nil, err
		}
		if p == nil {
			return u, nil
		}
		cp := *u
		cp.Role = p.TipoUsuario
		if p.Nombre != "" {
			cp.Name = p.Nombre
		}
		return &cp, nil
	}
}
