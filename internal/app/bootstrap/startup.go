// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/classhub/internal/app/system/accounts"
	"github.com/dalemusser/classhub/internal/app/system/identity"
	"github.com/dalemusser/classhub/internal/app/system/timeouts"
	"github.com/dalemusser/classhub/internal/domain/models"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built.
//
// It makes sure the configured administrator account exists so a fresh
// deployment can be signed into.
func Startup(ctx context.Context, cfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if cfg.AdminEmail == "" {
		return nil
	}
	acc := accounts.New(deps.Session, nil, logger)
	return ensureAdmin(ctx, acc, cfg.AdminEmail, cfg.AdminPassword, cfg.AdminName, logger)
}

// ensureAdmin registers email as an administrador. An account that already
// exists is left as it is.
func ensureAdmin(ctx context.Context, acc *accounts.Service, email, password, name string, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Long())
	defer cancel()

	res, err := acc.Register(ctx, email, password, name, models.TipoAdministrador)
	switch {
	case accounts.CodeOf(err) == identity.CodeEmailAlreadyInUse:
		logger.Info("administrator account already exists", zap.String("email", email))
		return nil
	case err != nil:
		return fmt.Errorf("ensure administrator %s: %w", email, err)
	}

	if res.Warning != "" {
		logger.Warn("administrator created without a profile",
			zap.String("email", email),
			zap.String("warning", res.Warning))
		return nil
	}
	logger.Info("administrator account created",
		zap.String("email", email),
		zap.String("uid", res.User.UID))
	return nil
}
