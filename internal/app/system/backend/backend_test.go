package backend_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/classhub/internal/app/system/backend"
	"github.com/dalemusser/classhub/internal/app/system/docstore/memstore"
	"github.com/dalemusser/classhub/internal/app/system/identity"
)

var fastOpts = backend.Options{Interval: time.Millisecond, MaxAttempts: 20}

func newClients(t *testing.T) *backend.Clients {
	t.Helper()
	store := memstore.New()
	id, err := identity.New(store, identity.Config{TokenSecret: "0123456789abcdef0123456789abcdef"}, nil)
	if err != nil {
		t.Fatalf("identity.New failed: %v", err)
	}
	return &backend.Clients{Identity: id, Store: store}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestOpen_ReadyAfterSomeAttempts(t *testing.T) {
	clients := newClients(t)
	var calls atomic.Int32
	connect := func(context.Context) (*backend.Clients, error) {
		if calls.Add(1) < 3 {
			return nil, backend.ErrNotLoaded
		}
		return clients, nil
	}

	s := backend.Open(context.Background(), connect, fastOpts, nil)

	got, err := s.Ready(waitCtx(t))
	if err != nil {
		t.Fatalf("Ready failed: %v", err)
	}
	if got != clients {
		t.Error("Ready returned different clients")
	}
	if s.State() != backend.StateReady {
		t.Errorf("state = %v, want ready", s.State())
	}
	if calls.Load() != 3 {
		t.Errorf("connector called %d times, want 3", calls.Load())
	}
}

func TestOpen_NeverLoadedResolvesWithError(t *testing.T) {
	var calls atomic.Int32
	connect := func(context.Context) (*backend.Clients, error) {
		calls.Add(1)
		return nil, backend.ErrNotLoaded
	}

	s := backend.Open(context.Background(), connect, fastOpts, nil)

	_, err := s.Ready(waitCtx(t))
	var be *backend.Error
	if !errors.As(err, &be) {
		t.Fatalf("expected *backend.Error, got %v", err)
	}
	if be.ErrorCode != backend.CodeSDKNotLoaded {
		t.Errorf("code = %q, want %q", be.ErrorCode, backend.CodeSDKNotLoaded)
	}
	if calls.Load() != int32(fastOpts.MaxAttempts) {
		t.Errorf("connector called %d times, want %d", calls.Load(), fastOpts.MaxAttempts)
	}
	if s.State() != backend.StateFailed {
		t.Errorf("state = %v, want error", s.State())
	}

	// Every later waiter sees the same resolution.
	_, err2 := s.Ready(waitCtx(t))
	if err2 != err {
		t.Errorf("second Ready returned %v, want the same error", err2)
	}
}

func TestOpen_IncompleteWhenIdentityMissing(t *testing.T) {
	connect := func(context.Context) (*backend.Clients, error) {
		return &backend.Clients{Store: memstore.New()}, nil
	}
	s := backend.Open(context.Background(), connect, fastOpts, nil)

	_, err := s.Ready(waitCtx(t))
	var be *backend.Error
	if !errors.As(err, &be) || be.ErrorCode != backend.CodeSDKIncomplete {
		t.Fatalf("expected %s, got %v", backend.CodeSDKIncomplete, err)
	}
}

func TestOpen_TerminalConnectError(t *testing.T) {
	var calls atomic.Int32
	connect := func(context.Context) (*backend.Clients, error) {
		calls.Add(1)
		return nil, &identity.Error{Code: identity.CodeAPIKeyNotValid, Message: "bad secret"}
	}
	s := backend.Open(context.Background(), connect, fastOpts, nil)

	_, err := s.Ready(waitCtx(t))
	var be *backend.Error
	if !errors.As(err, &be) || be.ErrorCode != identity.CodeAPIKeyNotValid {
		t.Fatalf("expected %s, got %v", identity.CodeAPIKeyNotValid, err)
	}
	if calls.Load() != 1 {
		t.Errorf("terminal error should stop polling, connector called %d times", calls.Load())
	}
}

func TestOpen_StoreOptional(t *testing.T) {
	clients := newClients(t)
	clients.Store = nil
	s := backend.Open(context.Background(), func(context.Context) (*backend.Clients, error) {
		return clients, nil
	}, fastOpts, nil)

	got, err := s.Ready(waitCtx(t))
	if err != nil {
		t.Fatalf("Ready failed: %v", err)
	}
	if got.Store != nil {
		t.Error("expected nil store")
	}
}

func TestRetry_RerunsFailedAttempt(t *testing.T) {
	clients := newClients(t)
	var available atomic.Bool
	connect := func(context.Context) (*backend.Clients, error) {
		if !available.Load() {
			return nil, backend.ErrNotLoaded
		}
		return clients, nil
	}
	s := backend.Open(context.Background(), connect, backend.Options{Interval: time.Millisecond, MaxAttempts: 3}, nil)

	if _, err := s.Ready(waitCtx(t)); err == nil {
		t.Fatal("expected first attempt to fail")
	}

	available.Store(true)
	got, err := s.Retry(waitCtx(t))
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if got != clients {
		t.Error("Retry returned different clients")
	}

	// Retry on a ready session does not start another attempt.
	available.Store(false)
	if _, err := s.Retry(waitCtx(t)); err != nil {
		t.Fatalf("Retry on ready session failed: %v", err)
	}
}

func TestReady_ContextEndsFirst(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	connect := func(ctx context.Context) (*backend.Clients, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil, backend.ErrNotLoaded
	}
	s := backend.Open(context.Background(), connect, backend.Options{Interval: time.Hour, MaxAttempts: 1}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := s.Ready(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if s.State() != backend.StateUninitialized {
		t.Errorf("state = %v, want uninitialized", s.State())
	}
}

func TestOnEvent(t *testing.T) {
	release := make(chan struct{})
	clients := newClients(t)
	connect := func(context.Context) (*backend.Clients, error) {
		<-release
		return clients, nil
	}
	s := backend.Open(context.Background(), connect, fastOpts, nil)

	var mu sync.Mutex
	var events []backend.Event
	got := make(chan struct{})
	s.OnEvent(func(ev backend.Event, _ *backend.Error) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		close(got)
	})
	close(release)

	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("no event emitted")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 || events[0] != backend.EventReady {
		t.Errorf("events = %v, want [ready]", events)
	}
}

func TestOpen_OptionsListenerSeesFirstAttempt(t *testing.T) {
	connect := func(context.Context) (*backend.Clients, error) {
		return nil, &identity.Error{Code: identity.CodeAPIKeyNotValid, Message: "bad secret"}
	}
	got := make(chan *backend.Error, 1)
	opts := fastOpts
	opts.OnEvent = func(ev backend.Event, err *backend.Error) {
		if ev == backend.EventError {
			got <- err
		}
	}
	backend.Open(context.Background(), connect, opts, nil)

	select {
	case err := <-got:
		if err == nil || err.ErrorCode != identity.CodeAPIKeyNotValid {
			t.Errorf("event error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("listener missed the first attempt")
	}
}

func TestResolved(t *testing.T) {
	clients := newClients(t)
	s := backend.Resolved(clients)
	got, err := s.Ready(context.Background())
	if err != nil || got != clients {
		t.Fatalf("Resolved session: got %v, %v", got, err)
	}
}
