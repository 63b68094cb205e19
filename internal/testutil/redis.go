package testutil

import (
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisAddrEnv names the variable that enables tests against a real Redis.
const RedisAddrEnv = "CLASSHUB_TEST_REDIS_ADDR"

// SetupTestRedis connects to the Redis named by CLASSHUB_TEST_REDIS_ADDR and
// returns a client closed when the test ends. The test is skipped when the
// variable is unset. Call it once per simulated instance.
func SetupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := strings.TrimSpace(os.Getenv(RedisAddrEnv))
	if addr == "" {
		t.Skipf("%s not set; skipping Redis test", RedisAddrEnv)
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := TestContext()
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Fatalf("ping test Redis: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

// RedisPrefix returns a channel prefix no other test run shares.
func RedisPrefix() string {
	return "classhub_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12] + ":"
}
