package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/classhub/internal/app/system/docstore"
	"github.com/dalemusser/classhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx, ok := r.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if !ok {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	ds docstore.Store
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance writing to ds.
func NewFixtures(t *testing.T, ds docstore.Store) *Fixtures {
	t.Helper()
	return &Fixtures{ds: ds, t: t}
}

// Store returns the underlying store for direct access in tests.
func (f *Fixtures) Store() docstore.Store {
	return f.ds
}

// CreateProfile writes a profile for uid into coll.
func (f *Fixtures) CreateProfile(ctx context.Context, coll, uid, nombre, email, tipo string) models.Profile {
	f.t.Helper()

	now := time.Now().UTC().Truncate(time.Millisecond)
	p := models.NewProfile(uid, email, nombre, tipo, false)
	p.FechaCreacion = now
	p.FechaRegistro = now
	p.UltimaActualizacion = now

	fields, err := docstore.ToFields(p)
	if err != nil {
		f.t.Fatalf("failed to encode test profile: %v", err)
	}
	if err := f.ds.Collection(coll).Set(ctx, uid, fields); err != nil {
		f.t.Fatalf("failed to create test profile: %v", err)
	}
	p.ID = uid
	return p
}

// CreateStudent creates a usuarios profile with tipoUsuario estudiante.
func (f *Fixtures) CreateStudent(ctx context.Context, uid, nombre, email string) models.Profile {
	f.t.Helper()
	return f.CreateProfile(ctx, models.CollUsuarios, uid, nombre, email, models.TipoEstudiante)
}

// CreateTeacher creates matching usuarios and docentes profiles.
func (f *Fixtures) CreateTeacher(ctx context.Context, uid, nombre, email string) models.Profile {
	f.t.Helper()
	f.CreateProfile(ctx, models.CollUsuarios, uid, nombre, email, models.TipoMaestro)
	return f.CreateProfile(ctx, models.CollDocentes, uid, nombre, email, models.TipoMaestro)
}

// CreateAdmin creates matching usuarios and administradores profiles.
func (f *Fixtures) CreateAdmin(ctx context.Context, uid, nombre, email string) models.Profile {
	f.t.Helper()
	f.CreateProfile(ctx, models.CollUsuarios, uid, nombre, email, models.TipoAdministrador)
	return f.CreateProfile(ctx, models.CollAdministradores, uid, nombre, email, models.TipoAdministrador)
}

// CreateCourse writes an active, visible course owned by docenteID. The
// creation time is supplied so ordering tests control it.
func (f *Fixtures) CreateCourse(ctx context.Context, nombre, docenteID string, created time.Time) models.Course {
	f.t.Helper()

	c := models.NewCourse(nombre, docenteID)
	c.FechaCreacion = created.UTC().Truncate(time.Millisecond)
	c.FechaActualizacion = c.FechaCreacion

	fields, err := docstore.ToFields(c)
	if err != nil {
		f.t.Fatalf("failed to encode test course: %v", err)
	}
	id, err := f.ds.Collection(models.CollCursos).Add(ctx, fields)
	if err != nil {
		f.t.Fatalf("failed to create test course: %v", err)
	}
	c.ID = id
	return c
}
