// internal/app/bootstrap/hooks.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Run drives the app lifecycle: connect, ensure schema, start up, build the
// handler, then serve until ctx ends and shut down.
//
// Configuration is loaded and validated by the caller.
func Run(ctx context.Context, cfg AppConfig, logger *zap.Logger) error {
	deps, err := ConnectDB(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := Shutdown(sctx, deps, logger); err != nil {
			logger.Warn("shutdown finished with errors", zap.Error(err))
		}
	}()

	if err := EnsureSchema(ctx, cfg, deps, logger); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	if err := Startup(ctx, cfg, deps, logger); err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	handler, err := BuildHandler(cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("build handler: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
	}
	return serve(ctx, ln, handler, cfg.ShutdownTimeout, logger)
}

// serve runs an HTTP server on ln until ctx ends, then drains it for at most
// grace.
func serve(ctx context.Context, ln net.Listener, handler http.Handler, grace time.Duration, logger *zap.Logger) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("http server shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// EnsureIndexes connects to MongoDB, waits for it, and creates validators and
// indexes. It backs the ensure-indexes command.
func EnsureIndexes(ctx context.Context, cfg AppConfig, logger *zap.Logger) error {
	if cfg.Memory {
		return errors.New("ensure-indexes needs MongoDB; drop --memory")
	}
	deps, err := ConnectDB(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = Shutdown(context.Background(), deps, logger) }()
	return EnsureSchema(ctx, cfg, deps, logger)
}
