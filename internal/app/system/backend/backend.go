// Package backend owns the process-wide handle to the identity service and
// the document store.
//
// Open starts acquiring the clients in the background. The Session resolves
// exactly once per attempt: every caller of Ready observes the same clients
// or the same *Error. A failed attempt can be re-run with Retry.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dalemusser/classhub/internal/app/system/docstore"
	"github.com/dalemusser/classhub/internal/app/system/identity"
	"go.uber.org/zap"
)

// Error codes published when an attempt fails.
const (
	CodeSDKNotLoaded  = "sdk-not-loaded"
	CodeSDKIncomplete = "sdk-incomplete"
	CodeInitFailed    = "init-failed"
)

// A Connector answers ErrNotLoaded or ErrIncomplete while the clients are not yet
// available; Open keeps polling on those. Any other error ends the attempt.
var (
	ErrNotLoaded  = errors.New("backend not loaded")
	ErrIncomplete = errors.New("backend not fully initialized")
)

// Clients are the handles a ready Session hands out. Store may be nil when
// the identity service came up without a document store.
type Clients struct {
	Identity identity.Provider
	Store    docstore.Store
}

// Connector tries once to acquire the clients.
type Connector func(ctx context.Context) (*Clients, error)

// Options bound the polling loop.
type Options struct {
	Interval    time.Duration // default 100ms
	MaxAttempts int           // default 100

	// OnEvent, when set, is subscribed before the first attempt starts.
	OnEvent func(Event, *Error)
}

// Error is the published failure of an attempt.
type Error struct {
	ErrorCode    string
	ErrorMessage string
	Err          error
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend %s: %s", e.ErrorCode, e.ErrorMessage)
}

func (e *Error) Unwrap() error { return e.Err }

// State of a Session.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateFailed:
		return "error"
	default:
		return "uninitialized"
	}
}

// Event is emitted to listeners when an attempt resolves.
type Event string

const (
	EventReady Event = "ready"
	EventError Event = "error"
)

type attempt struct {
	done    chan struct{}
	clients *Clients
	err     *Error
}

// Session is the initialization future.
type Session struct {
	connect Connector
	opts    Options
	log     *zap.Logger
	ctx     context.Context

	mu        sync.Mutex
	cur       *attempt
	listeners map[int]func(Event, *Error)
	nextID    int
}

// Open starts the first attempt and returns immediately. ctx bounds every
// attempt the Session makes, including retries.
func Open(ctx context.Context, connect Connector, opts Options, logger *zap.Logger) *Session {
	if opts.Interval <= 0 {
		opts.Interval = 100 * time.Millisecond
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		connect:   connect,
		opts:      opts,
		log:       logger,
		ctx:       ctx,
		listeners: make(map[int]func(Event, *Error)),
	}
	if opts.OnEvent != nil {
		s.OnEvent(opts.OnEvent)
	}
	s.mu.Lock()
	s.cur = s.start()
	s.mu.Unlock()
	return s
}

// Resolved returns a Session that is already ready with clients.
func Resolved(clients *Clients) *Session {
	a := &attempt{done: make(chan struct{}), clients: clients}
	close(a.done)
	return &Session{
		connect:   func(context.Context) (*Clients, error) { return clients, nil },
		opts:      Options{Interval: time.Millisecond, MaxAttempts: 1},
		log:       zap.NewNop(),
		ctx:       context.Background(),
		cur:       a,
		listeners: make(map[int]func(Event, *Error)),
	}
}

// start launches a new attempt. Caller holds s.mu.
func (s *Session) start() *attempt {
	a := &attempt{done: make(chan struct{})}
	go s.run(a)
	return a
}

func (s *Session) run(a *attempt) {
	clients, err := s.poll()
	a.clients, a.err = clients, err
	close(a.done)

	if err != nil {
		s.log.Error("backend unavailable",
			zap.String("code", err.ErrorCode),
			zap.String("message", err.ErrorMessage),
			zap.Error(err.Err))
		s.emit(EventError, err)
		return
	}
	s.log.Info("backend ready", zap.Bool("store", clients.Store != nil))
	s.emit(EventReady, nil)
}

func (s *Session) poll() (*Clients, *Error) {
	var last error
	for i := 1; ; i++ {
		attemptCtx, cancel := context.WithTimeout(s.ctx, s.opts.Interval*10)
		clients, err := s.connect(attemptCtx)
		cancel()

		if err == nil && (clients == nil || clients.Identity == nil) {
			err = ErrIncomplete
		}
		if err == nil {
			return clients, nil
		}
		if !retryable(err) {
			return nil, &Error{ErrorCode: codeOf(err), ErrorMessage: err.Error(), Err: err}
		}
		last = err

		if i >= s.opts.MaxAttempts {
			break
		}
		s.log.Debug("waiting for backend",
			zap.Int("attempt", i),
			zap.Int("max", s.opts.MaxAttempts))

		t := time.NewTimer(s.opts.Interval)
		select {
		case <-s.ctx.Done():
			t.Stop()
			return nil, &Error{ErrorCode: CodeSDKNotLoaded, ErrorMessage: "backend initialization canceled", Err: s.ctx.Err()}
		case <-t.C:
		}
	}

	if errors.Is(last, ErrIncomplete) {
		return nil, &Error{
			ErrorCode:    CodeSDKIncomplete,
			ErrorMessage: "backend is not fully initialized",
			Err:          last,
		}
	}
	return nil, &Error{
		ErrorCode:    CodeSDKNotLoaded,
		ErrorMessage: fmt.Sprintf("backend could not be reached after %d attempts", s.opts.MaxAttempts),
		Err:          last,
	}
}

func retryable(err error) bool {
	return errors.Is(err, ErrNotLoaded) ||
		errors.Is(err, ErrIncomplete) ||
		errors.Is(err, context.DeadlineExceeded) ||
		docstore.CodeOf(err) == docstore.CodeUnavailable
}

func codeOf(err error) string {
	if c := identity.CodeOf(err); c != "" {
		return c
	}
	return CodeInitFailed
}

// Ready waits for the current attempt to resolve. It returns the clients,
// the attempt's *Error, or ctx's error if ctx ends first.
func (s *Session) Ready(ctx context.Context) (*Clients, error) {
	s.mu.Lock()
	a := s.cur
	s.mu.Unlock()
	return a.wait(ctx)
}

// Retry re-runs initialization if the last attempt failed, then waits for
// it. On a ready or still-running Session it behaves like Ready.
func (s *Session) Retry(ctx context.Context) (*Clients, error) {
	s.mu.Lock()
	a := s.cur
	select {
	case <-a.done:
		if a.err != nil {
			s.log.Info("retrying backend initialization")
			a = s.start()
			s.cur = a
		}
	default:
	}
	s.mu.Unlock()
	return a.wait(ctx)
}

func (a *attempt) wait(ctx context.Context) (*Clients, error) {
	select {
	case <-a.done:
		if a.err != nil {
			return nil, a.err
		}
		return a.clients, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// State reports the resolution of the current attempt.
func (s *Session) State() State {
	s.mu.Lock()
	a := s.cur
	s.mu.Unlock()
	select {
	case <-a.done:
		if a.err != nil {
			return StateFailed
		}
		return StateReady
	default:
		return StateUninitialized
	}
}

// OnEvent registers fn for ready/error events of future resolutions.
func (s *Session) OnEvent(fn func(Event, *Error)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) emit(ev Event, err *Error) {
	s.mu.Lock()
	fns := make([]func(Event, *Error), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev, err)
	}
}
