package audit_test

import (
	"testing"
	"time"

	"github.com/dalemusser/classhub/internal/app/store/audit"
	"github.com/dalemusser/classhub/internal/app/system/docstore/memstore"
	"github.com/dalemusser/classhub/internal/testutil"
)

func newStore(t *testing.T) (*audit.Store, *memstore.Store) {
	t.Helper()
	clock := testutil.NewClock()
	ms := memstore.New(memstore.WithClock(clock.Now))
	return audit.New(ms), ms
}

func TestStore_Log(t *testing.T) {
	store, ms := newStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	id, err := store.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLoginSuccess,
		UserID:    "u1",
		IP:        "192.168.1.1",
		UserAgent: "TestBrowser/1.0",
		Success:   true,
	})
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if id == "" {
		t.Error("expected a generated id")
	}
	if ms.Len(audit.Collection) != 1 {
		t.Fatalf("expected 1 stored event, got %d", ms.Len(audit.Collection))
	}

	events, err := store.Query(ctx, audit.Filter{UserID: "u1"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.ID != id || e.Timestamp.IsZero() || e.IP != "192.168.1.1" || !e.Success {
		t.Errorf("event = %+v", e)
	}
}

func TestStore_Log_KeepsGivenTimestamp(t *testing.T) {
	store, _ := newStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	if _, err := store.Log(ctx, audit.Event{Category: audit.CategoryAdmin, EventType: audit.EventCourseDeleted, Timestamp: at}); err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	events, err := store.GetRecent(ctx, 10)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(events) != 1 || !events[0].Timestamp.Equal(at) {
		t.Errorf("events = %+v", events)
	}
}

func TestStore_Query_FiltersAndOrder(t *testing.T) {
	store, _ := newStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	log := func(cat, typ, user string) {
		t.Helper()
		if _, err := store.Log(ctx, audit.Event{Category: cat, EventType: typ, UserID: user}); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}
	log(audit.CategoryAuth, audit.EventLoginSuccess, "u1")
	log(audit.CategoryAuth, audit.EventLoginFailed, "u2")
	log(audit.CategoryAdmin, audit.EventUserDeleted, "u2")
	log(audit.CategoryAuth, audit.EventLogout, "u1")

	all, err := store.GetRecent(ctx, 0)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(all) != 4 || all[0].EventType != audit.EventLogout || all[3].EventType != audit.EventLoginSuccess {
		t.Errorf("order = %v", types(all))
	}

	auth, _ := store.Query(ctx, audit.Filter{Category: audit.CategoryAuth})
	if len(auth) != 3 {
		t.Errorf("auth events = %d, want 3", len(auth))
	}

	u2, _ := store.Query(ctx, audit.Filter{UserID: "u2", EventType: audit.EventUserDeleted})
	if len(u2) != 1 {
		t.Errorf("u2 deletions = %d, want 1", len(u2))
	}

	limited, _ := store.Query(ctx, audit.Filter{Limit: 2})
	if len(limited) != 2 || limited[0].EventType != audit.EventLogout {
		t.Errorf("limited = %v", types(limited))
	}
}

func types(events []audit.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.EventType
	}
	return out
}
