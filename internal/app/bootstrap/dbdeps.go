// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/classhub/internal/app/system/backend"
	"github.com/dalemusser/classhub/internal/app/system/docstore"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
//
// Session is always set. The Mongo and Redis handles are nil in memory mode
// and when Redis is not configured.
type DBDeps struct {
	Session *backend.Session

	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	Redis    *redis.Client
	Notifier docstore.Notifier
}
