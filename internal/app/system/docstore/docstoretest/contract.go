// Package docstoretest checks that a docstore.Store implementation behaves
// the way the rest of the portal expects. memstore and mongostore run the
// same suite.
package docstoretest

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/classhub/internal/app/system/docstore"
	"go.mongodb.org/mongo-driver/bson"
)

type item struct {
	ID     string    `bson:"_id"`
	Nombre string    `bson:"nombre"`
	Estado string    `bson:"estado"`
	Orden  int       `bson:"orden"`
	Fecha  time.Time `bson:"fecha"`
}

// RunContract runs every store check against stores built by open. Each
// subtest gets its own store.
func RunContract(t *testing.T, open func(t *testing.T) docstore.Store) {
	t.Run("set then get", func(t *testing.T) { testSetGet(t, open(t)) })
	t.Run("missing documents", func(t *testing.T) { testMissing(t, open(t)) })
	t.Run("update merges fields", func(t *testing.T) { testUpdate(t, open(t)) })
	t.Run("add mints ids", func(t *testing.T) { testAdd(t, open(t)) })
	t.Run("find filters and order", func(t *testing.T) { testFind(t, open(t)) })
	t.Run("watch refreshes", func(t *testing.T) { testWatch(t, open(t)) })
}

func ctxFor(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func decode(t *testing.T, d docstore.Document) item {
	t.Helper()
	var it item
	if err := d.Decode(&it); err != nil {
		t.Fatalf("decode %s: %v", d.ID, err)
	}
	return it
}

func testSetGet(t *testing.T, s docstore.Store) {
	ctx := ctxFor(t)
	c := s.Collection("items")

	if err := c.Set(ctx, "a", bson.M{"nombre": "Go", "orden": 1, "fecha": docstore.ServerTimestamp}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	doc, err := c.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got := decode(t, doc)
	if doc.ID != "a" || got.ID != "a" || got.Nombre != "Go" || got.Orden != 1 {
		t.Errorf("got %+v (id %q)", got, doc.ID)
	}
	if got.Fecha.IsZero() {
		t.Error("ServerTimestamp was not resolved")
	}

	// Set replaces the whole document.
	if err := c.Set(ctx, "a", bson.M{"nombre": "Rust"}); err != nil {
		t.Fatalf("Set again: %v", err)
	}
	doc, err = c.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get after replace: %v", err)
	}
	if got := decode(t, doc); got.Nombre != "Rust" || got.Orden != 0 || !got.Fecha.IsZero() {
		t.Errorf("replace kept old fields: %+v", got)
	}
}

func testMissing(t *testing.T, s docstore.Store) {
	ctx := ctxFor(t)
	c := s.Collection("items")

	if _, err := c.Get(ctx, "nope"); !docstore.IsNotFound(err) {
		t.Errorf("Get missing: err = %v, want not-found", err)
	}
	if err := c.Update(ctx, "nope", bson.M{"nombre": "x"}); !docstore.IsNotFound(err) {
		t.Errorf("Update missing: err = %v, want not-found", err)
	}
	if _, err := c.Get(ctx, "nope"); !docstore.IsNotFound(err) {
		t.Errorf("Update of a missing id created it: %v", err)
	}
	if err := c.Delete(ctx, "nope"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}

	docs, err := c.Find(ctx, docstore.Query{})
	if err != nil {
		t.Fatalf("Find on empty collection: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("Find on empty collection returned %d documents", len(docs))
	}
}

func testUpdate(t *testing.T, s docstore.Store) {
	ctx := ctxFor(t)
	c := s.Collection("items")

	if err := c.Set(ctx, "a", bson.M{"nombre": "Go", "estado": "activo", "orden": 3}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Update(ctx, "a", bson.M{"estado": "inactivo", "_id": "b", "fecha": docstore.ServerTimestamp}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	doc, err := c.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got := decode(t, doc)
	if got.Nombre != "Go" || got.Orden != 3 || got.Estado != "inactivo" {
		t.Errorf("got %+v", got)
	}
	if got.Fecha.IsZero() {
		t.Error("ServerTimestamp in a patch was not resolved")
	}
	if _, err := c.Get(ctx, "b"); !docstore.IsNotFound(err) {
		t.Errorf("patch moved the document id: %v", err)
	}

	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, "a"); !docstore.IsNotFound(err) {
		t.Errorf("Get after Delete: err = %v", err)
	}
}

func testAdd(t *testing.T, s docstore.Store) {
	ctx := ctxFor(t)
	c := s.Collection("items")

	id1, err := c.Add(ctx, bson.M{"nombre": "uno"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	id2, err := c.Add(ctx, bson.M{"nombre": "dos"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id1 == "" || id1 == id2 {
		t.Fatalf("ids %q and %q", id1, id2)
	}

	doc, err := c.Get(ctx, id2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := decode(t, doc); got.ID != id2 || got.Nombre != "dos" {
		t.Errorf("got %+v", got)
	}
}

func testFind(t *testing.T, s docstore.Store) {
	ctx := ctxFor(t)
	c := s.Collection("items")

	seed := map[string]bson.M{
		"d": {"nombre": "d", "estado": "activo", "orden": 2},
		"b": {"nombre": "b", "estado": "activo", "orden": 1},
		"c": {"nombre": "c", "estado": "inactivo", "orden": 0},
		"a": {"nombre": "a", "estado": "activo", "orden": 2},
		"e": {"nombre": "e", "estado": "activo", "orden": 3},
	}
	for id, f := range seed {
		if err := c.Set(ctx, id, f); err != nil {
			t.Fatalf("Set %s: %v", id, err)
		}
	}
	if err := s.Collection("other").Set(ctx, "x", bson.M{"estado": "activo"}); err != nil {
		t.Fatalf("Set other: %v", err)
	}

	ids := func(docs []docstore.Document) []string {
		out := make([]string, len(docs))
		for i, d := range docs {
			out[i] = d.ID
		}
		return out
	}

	tests := []struct {
		name string
		q    docstore.Query
		want []string
	}{
		{"ascending with filter", docstore.Query{
			Filters: []docstore.Filter{docstore.Eq("estado", "activo")},
			OrderBy: "orden",
		}, []string{"b", "a", "d", "e"}},
		{"descending keeps id order on ties", docstore.Query{
			Filters: []docstore.Filter{docstore.Eq("estado", "activo")},
			OrderBy: "orden",
			Desc:    true,
		}, []string{"e", "a", "d", "b"}},
		{"two filters", docstore.Query{
			Filters: []docstore.Filter{docstore.Eq("estado", "activo"), docstore.Eq("orden", 2)},
			OrderBy: "nombre",
		}, []string{"a", "d"}},
		{"no match", docstore.Query{
			Filters: []docstore.Filter{docstore.Eq("estado", "archivado")},
		}, []string{}},
		{"all ordered", docstore.Query{OrderBy: "nombre"}, []string{"a", "b", "c", "d", "e"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := c.Find(ctx, tt.q)
			if err != nil {
				t.Fatalf("Find: %v", err)
			}
			got := ids(docs)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func testWatch(t *testing.T, s docstore.Store) {
	ctx := ctxFor(t)
	c := s.Collection("items")

	results := make(chan []string, 8)
	stop := c.Watch(ctx, docstore.Query{
		Filters: []docstore.Filter{docstore.Eq("estado", "activo")},
		OrderBy: "nombre",
	}, func(docs []docstore.Document, err error) {
		if err != nil {
			t.Errorf("watch: %v", err)
			return
		}
		ids := make([]string, len(docs))
		for i, d := range docs {
			ids[i] = d.ID
		}
		results <- ids
	})
	defer stop()

	WaitFor(t, results, func(ids []string) bool { return len(ids) == 0 })

	if err := c.Set(ctx, "a", bson.M{"nombre": "a", "estado": "activo"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	WaitFor(t, results, func(ids []string) bool { return len(ids) == 1 && ids[0] == "a" })

	if err := c.Update(ctx, "a", bson.M{"estado": "inactivo"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	WaitFor(t, results, func(ids []string) bool { return len(ids) == 0 })
}

// WaitFor reads results until ok accepts one, failing the test after five
// seconds.
func WaitFor[T any](t *testing.T, results <-chan T, ok func(T) bool) T {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case r := <-results:
			if ok(r) {
				return r
			}
		case <-deadline:
			var zero T
			t.Fatal("timed out waiting for a watch result")
			return zero
		}
	}
}
