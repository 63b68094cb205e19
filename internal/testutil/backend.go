package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/classhub/internal/app/system/backend"
	"github.com/dalemusser/classhub/internal/app/system/docstore/memstore"
	"github.com/dalemusser/classhub/internal/app/system/identity"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// TestTokenSecret is the token secret used by NewIdentity.
const TestTokenSecret = "classhub-test-token-secret-0123456789"

// Clock is a test clock that moves forward one second on every reading, so
// documents written one after another get distinct, increasing timestamps.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock starts a Clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the next instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// Backend is an in-memory document store and identity service behind a
// resolved Session.
type Backend struct {
	Store    *memstore.Store
	Identity *identity.Service
	Session  *backend.Session
	Clock    *Clock
}

// NewBackend builds a ready in-memory Backend.
func NewBackend(t *testing.T) *Backend {
	t.Helper()
	clock := NewClock()
	store := memstore.New(memstore.WithClock(clock.Now))
	id := NewIdentity(t, store, clock.Now)
	return &Backend{
		Store:    store,
		Identity: id,
		Session:  backend.Resolved(&backend.Clients{Identity: id, Store: store}),
		Clock:    clock,
	}
}

// NewStoreOnlySession returns a resolved Session over a fresh memstore
// without an identity service.
func NewStoreOnlySession(t *testing.T) (*memstore.Store, *backend.Session) {
	t.Helper()
	clock := NewClock()
	store := memstore.New(memstore.WithClock(clock.Now))
	return store, backend.Resolved(&backend.Clients{Store: store})
}

// NewIdentity builds an identity service over store with a cheap bcrypt
// cost.
func NewIdentity(t *testing.T, store *memstore.Store, now func() time.Time) *identity.Service {
	t.Helper()
	id, err := identity.New(store, identity.Config{
		TokenSecret: TestTokenSecret,
		BcryptCost:  bcrypt.MinCost,
		Now:         now,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("identity.New: %v", err)
	}
	return id
}
