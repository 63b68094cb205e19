// Package ratelimit throttles sign-in and sign-up requests per client
// address and per account email with fixed windows held in memory.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Limiter counts requests per key in fixed windows. It is safe for
// concurrent use. Call Close to stop the background sweep.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	limit    int
	duration time.Duration
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type window struct {
	count     int
	expiresAt time.Time
}

// New allows limit requests per key every duration.
func New(limit int, duration time.Duration) *Limiter {
	l := &Limiter{
		windows:  make(map[string]*window),
		limit:    limit,
		duration: duration,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go l.sweep(duration * 2)
	return l
}

// Allow records a request for key and reports whether it is within the limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.After(w.expiresAt) {
		l.windows[key] = &window{count: 1, expiresAt: now.Add(l.duration)}
		return true
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// Remaining returns how many requests key has left in its current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || l.now().After(w.expiresAt) {
		return l.limit
	}
	return max(l.limit-w.count, 0)
}

// Reset forgets key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// Close stops the sweep goroutine.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-t.C:
		}
		l.mu.Lock()
		now := l.now()
		for key, w := range l.windows {
			if now.After(w.expiresAt) {
				delete(l.windows, key)
			}
		}
		l.mu.Unlock()
	}
}

// ClientIP returns the host part of r.RemoteAddr. Behind a proxy, run
// chi's RealIP middleware first so RemoteAddr carries the client address.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// AuthLimiter guards the sign-in and sign-up endpoints: one budget per
// client address and one per account email.
type AuthLimiter struct {
	ip    *Limiter
	email *Limiter
}

// Config sets the two budgets. Zero fields take the defaults: 20 requests
// per minute per address, 5 sign-ins per 5 minutes per email.
type Config struct {
	IPLimit     int
	IPWindow    time.Duration
	EmailLimit  int
	EmailWindow time.Duration
}

// NewAuthLimiter builds an AuthLimiter.
func NewAuthLimiter(cfg Config) *AuthLimiter {
	if cfg.IPLimit <= 0 {
		cfg.IPLimit = 20
	}
	if cfg.IPWindow <= 0 {
		cfg.IPWindow = time.Minute
	}
	if cfg.EmailLimit <= 0 {
		cfg.EmailLimit = 5
	}
	if cfg.EmailWindow <= 0 {
		cfg.EmailWindow = 5 * time.Minute
	}
	return &AuthLimiter{
		ip:    New(cfg.IPLimit, cfg.IPWindow),
		email: New(cfg.EmailLimit, cfg.EmailWindow),
	}
}

// AllowIP spends one request from the client's address budget.
func (a *AuthLimiter) AllowIP(r *http.Request) bool {
	if a == nil {
		return true
	}
	return a.ip.Allow(ClientIP(r))
}

// AllowSignIn spends one request from both budgets. The address is checked
// first; a refused address does not touch the email budget.
func (a *AuthLimiter) AllowSignIn(r *http.Request, email string) bool {
	if a == nil {
		return true
	}
	if !a.ip.Allow(ClientIP(r)) {
		return false
	}
	if key := emailKey(email); key != "" {
		return a.email.Allow(key)
	}
	return true
}

// SignedIn clears the email budget after a successful sign-in.
func (a *AuthLimiter) SignedIn(email string) {
	if a == nil {
		return
	}
	if key := emailKey(email); key != "" {
		a.email.Reset(key)
	}
}

// Close stops both limiters.
func (a *AuthLimiter) Close() {
	if a == nil {
		return
	}
	a.ip.Close()
	a.email.Close()
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
