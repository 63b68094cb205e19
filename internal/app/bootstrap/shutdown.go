// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Shutdown cleanly tears down the notifier and the DB connections.
func Shutdown(ctx context.Context, deps DBDeps, logger *zap.Logger) error {
	var errs []error

	if deps.Notifier != nil {
		if err := deps.Notifier.Close(); err != nil {
			logger.Error("notifier close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if deps.Redis != nil {
		logger.Info("closing Redis client")
		if err := deps.Redis.Close(); err != nil {
			logger.Error("Redis close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
