package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiter_Window(t *testing.T) {
	l := New(2, time.Minute)
	defer l.Close()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if l.Allow("a") {
		t.Error("third request in the window should be refused")
	}
	if l.Remaining("a") != 0 || l.Remaining("b") != 2 {
		t.Errorf("Remaining = %d/%d", l.Remaining("a"), l.Remaining("b"))
	}

	now = now.Add(time.Minute + time.Second)
	if !l.Allow("a") {
		t.Error("request after the window should pass")
	}

	l.Reset("a")
	if l.Remaining("a") != 2 {
		t.Errorf("Remaining after Reset = %d", l.Remaining("a"))
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.7:5123"
	if got := ClientIP(r); got != "10.0.0.7" {
		t.Errorf("ClientIP = %q", got)
	}
	r.RemoteAddr = "10.0.0.8"
	if got := ClientIP(r); got != "10.0.0.8" {
		t.Errorf("ClientIP without port = %q", got)
	}
}

func TestAuthLimiter_SignIn(t *testing.T) {
	a := NewAuthLimiter(Config{IPLimit: 100, EmailLimit: 2})
	defer a.Close()
	r := httptest.NewRequest("POST", "/api/auth/login", nil)

	if !a.AllowSignIn(r, "Ana@Test.com") || !a.AllowSignIn(r, "ana@test.com ") {
		t.Fatal("first two sign-ins should pass")
	}
	if a.AllowSignIn(r, "ana@test.com") {
		t.Error("third sign-in for the same email should be refused")
	}
	if !a.AllowSignIn(r, "luis@test.com") {
		t.Error("another email has its own budget")
	}

	a.SignedIn("ANA@test.com")
	if !a.AllowSignIn(r, "ana@test.com") {
		t.Error("budget should be cleared after a successful sign-in")
	}
}

func TestAuthLimiter_IP(t *testing.T) {
	a := NewAuthLimiter(Config{IPLimit: 1})
	defer a.Close()
	r := httptest.NewRequest("POST", "/api/auth/register", nil)

	if !a.AllowIP(r) {
		t.Fatal("first request should pass")
	}
	if a.AllowIP(r) || a.AllowSignIn(r, "x@test.com") {
		t.Error("address over budget should be refused")
	}
}

func TestAuthLimiter_Nil(t *testing.T) {
	var a *AuthLimiter
	r := httptest.NewRequest("POST", "/", nil)
	if !a.AllowIP(r) || !a.AllowSignIn(r, "x@test.com") {
		t.Error("nil limiter should allow everything")
	}
	a.SignedIn("x@test.com")
	a.Close()
}
