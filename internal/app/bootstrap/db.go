// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/classhub/internal/app/system/backend"
	"github.com/dalemusser/classhub/internal/app/system/docstore"
	"github.com/dalemusser/classhub/internal/app/system/docstore/memstore"
	"github.com/dalemusser/classhub/internal/app/system/docstore/mongostore"
	"github.com/dalemusser/classhub/internal/app/system/docstore/redisnotify"
	"github.com/dalemusser/classhub/internal/app/system/identity"
	"github.com/dalemusser/classhub/internal/app/system/indexes"
	"github.com/dalemusser/classhub/internal/app/system/timeouts"
	"github.com/dalemusser/classhub/internal/app/system/validators"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// schemaTimeout bounds index and validator setup.
const schemaTimeout = 2 * time.Minute

// ConnectDB opens the store clients and starts backend initialization.
//
// It returns as soon as the clients are constructed. Reachability is
// established in the background by the Session, which polls MongoDB until it
// answers or the attempt budget runs out. ctx bounds every attempt.
func ConnectDB(ctx context.Context, cfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	var deps DBDeps
	configureTimeouts(cfg, logger)

	notifier, rdb, err := connectNotifier(ctx, cfg, logger)
	if err != nil {
		return deps, err
	}
	deps.Notifier, deps.Redis = notifier, rdb

	idCfg := identityConfig(cfg)
	opts := backend.Options{
		Interval:    cfg.BackendPollInterval,
		MaxAttempts: cfg.BackendMaxAttempts,
		OnEvent:     logBackendEvent(logger),
	}

	if cfg.Memory {
		logger.Warn("running on the in-memory store; data is lost on exit")
		store := memstore.New(memstore.WithNotifier(notifier), memstore.WithLogger(logger))
		deps.Session = backend.Open(ctx, func(context.Context) (*backend.Clients, error) {
			id, err := identity.New(store, idCfg, logger)
			if err != nil {
				return nil, err
			}
			return &backend.Clients{Identity: id, Store: store}, nil
		}, opts, logger)
		return deps, nil
	}

	clientOpts := options.Client().
		ApplyURI(cfg.MongoURI).
		SetMaxPoolSize(cfg.MongoMaxPoolSize).
		SetMinPoolSize(cfg.MongoMinPoolSize)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		_ = notifier.Close()
		return deps, fmt.Errorf("mongo connect: %w", err)
	}
	db := client.Database(cfg.MongoDatabase)
	deps.MongoClient, deps.MongoDatabase = client, db

	logger.Info("connecting to MongoDB", zap.String("database", cfg.MongoDatabase))
	deps.Session = backend.Open(ctx, mongoConnector(client, db, notifier, idCfg, logger), opts, logger)
	return deps, nil
}

// configureTimeouts applies the timeout_* keys.
func configureTimeouts(cfg AppConfig, logger *zap.Logger) {
	timeouts.Configure(timeouts.Config{
		Ping:   cfg.TimeoutPing,
		Short:  cfg.TimeoutShort,
		Medium: cfg.TimeoutMedium,
		Long:   cfg.TimeoutLong,
	})
	cur := timeouts.Current()
	logger.Info("timeouts configured",
		zap.Duration("ping", cur.Ping),
		zap.Duration("short", cur.Short),
		zap.Duration("medium", cur.Medium),
		zap.Duration("long", cur.Long))
}

// logBackendEvent reports failed backend attempts.
func logBackendEvent(logger *zap.Logger) func(backend.Event, *backend.Error) {
	return func(ev backend.Event, err *backend.Error) {
		if ev == backend.EventError {
			logger.Warn("backend attempt failed", zap.String("code", err.ErrorCode))
		}
	}
}

func identityConfig(cfg AppConfig) identity.Config {
	return identity.Config{
		TokenSecret:       cfg.TokenSecret,
		TokenTTL:          cfg.TokenTTL,
		MaxFailedAttempts: cfg.MaxFailedAttempts,
		LockDuration:      cfg.LockDuration,
	}
}

// mongoConnector reports ErrNotLoaded until the server answers a ping, then
// builds the store and the identity service on it.
func mongoConnector(client *mongo.Client, db *mongo.Database, notifier docstore.Notifier, idCfg identity.Config, logger *zap.Logger) backend.Connector {
	return func(ctx context.Context) (*backend.Clients, error) {
		pingCtx, cancel := context.WithTimeout(ctx, timeouts.Ping())
		defer cancel()
		if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
			logger.Debug("MongoDB not reachable yet", zap.Error(err))
			return nil, fmt.Errorf("%w: %v", backend.ErrNotLoaded, err)
		}

		store := mongostore.New(db, notifier, logger)
		id, err := identity.New(store, idCfg, logger)
		if err != nil {
			return nil, err
		}
		return &backend.Clients{Identity: id, Store: store}, nil
	}
}

// connectNotifier returns the Redis relay when redis_addr is set and the
// in-process notifier otherwise.
func connectNotifier(ctx context.Context, cfg AppConfig, logger *zap.Logger) (docstore.Notifier, *redis.Client, error) {
	if cfg.RedisAddr == "" {
		return docstore.NewLocalNotifier(), nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	subCtx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()
	n, err := redisnotify.New(subCtx, rdb, redisnotify.DefaultPrefix, logger)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis subscribe %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("change signals relayed through Redis", zap.String("addr", cfg.RedisAddr))
	return n, rdb, nil
}

// EnsureSchema waits for the backend, then creates collection validators
// and indexes. It does nothing in memory mode.
func EnsureSchema(ctx context.Context, cfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.MongoDatabase == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, schemaTimeout)
	defer cancel()

	if _, err := deps.Session.Ready(ctx); err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	if err := validators.EnsureAll(ctx, deps.MongoDatabase); err != nil {
		logger.Error("collection validators", zap.Error(err))
		return fmt.Errorf("validators: %w", err)
	}
	if err := indexes.EnsureAll(ctx, deps.MongoDatabase); err != nil {
		logger.Error("indexes", zap.Error(err))
		return fmt.Errorf("indexes: %w", err)
	}
	logger.Info("schema ensured", zap.String("database", deps.MongoDatabase.Name()))
	return nil
}
