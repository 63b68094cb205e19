// internal/app/bootstrap/logger.go
package bootstrap

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the process logger: console output in dev, JSON in prod.
func NewLogger(env, level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if env == "dev" {
		cfg = zap.NewDevelopmentConfig()
	}
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
		cfg.Level = lvl
	}
	return cfg.Build()
}
