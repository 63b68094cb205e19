package profilestore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	profilestore "github.com/dalemusser/classhub/internal/app/store/profiles"
	"github.com/dalemusser/classhub/internal/app/system/backend"
	"github.com/dalemusser/classhub/internal/app/system/docstore"
	"github.com/dalemusser/classhub/internal/app/system/docstore/memstore"
	"github.com/dalemusser/classhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
)

type tick struct{ t time.Time }

func (c *tick) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func setup(t *testing.T) (*profilestore.Store, *memstore.Store) {
	t.Helper()
	clock := &tick{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	ms := memstore.New(memstore.WithClock(clock.Now))
	return profilestore.New(ms), ms
}

func TestPutAndGet(t *testing.T) {
	store, _ := setup(t)
	ctx := context.Background()

	p := models.NewProfile("uid-1", "ana@example.com", "Ana", models.TipoMaestro, false)
	if err := store.Put(ctx, models.CollDocentes, p); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, models.CollDocentes, "uid-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Nombre != "Ana" || got.TipoUsuario != models.TipoMaestro {
		t.Errorf("unexpected profile: %+v", got)
	}
	if len(got.Roles) != 1 || got.Roles[0] != models.RolDocenteBasico {
		t.Errorf("roles = %v", got.Roles)
	}
	if got.FechaCreacion.IsZero() || got.FechaRegistro.IsZero() {
		t.Error("timestamps should be filled by the store")
	}

	if _, err := store.Get(ctx, models.CollUsuarios, "uid-1"); !errors.Is(err, profilestore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.Put(ctx, "cursos", p); err == nil {
		t.Error("Put into a non-profile collection should fail")
	}
}

func TestResolve_Priority(t *testing.T) {
	store, _ := setup(t)
	ctx := context.Background()

	put := func(coll, tipo string) {
		t.Helper()
		p := models.NewProfile("uid-1", "ana@example.com", coll, tipo, false)
		if err := store.Put(ctx, coll, p); err != nil {
			t.Fatalf("Put %s failed: %v", coll, err)
		}
	}

	put(models.CollUsuarios, models.TipoEstudiante)
	p, coll, err := store.Resolve(ctx, "uid-1")
	if err != nil || coll != models.CollUsuarios || p.TipoUsuario != models.TipoEstudiante {
		t.Fatalf("usuarios only: got %v %q %v", p, coll, err)
	}

	put(models.CollAdministradores, models.TipoAdministrador)
	p, coll, _ = store.Resolve(ctx, "uid-1")
	if coll != models.CollAdministradores || p.TipoUsuario != models.TipoAdministrador {
		t.Fatalf("administradores should beat usuarios: got %q %q", coll, p.TipoUsuario)
	}

	put(models.CollDocentes, models.TipoMaestro)
	p, coll, _ = store.Resolve(ctx, "uid-1")
	if coll != models.CollDocentes || p.TipoUsuario != models.TipoMaestro {
		t.Fatalf("docentes should beat everything: got %q %q", coll, p.TipoUsuario)
	}
}

func TestResolve_DefaultsMissingType(t *testing.T) {
	store, ms := setup(t)
	ctx := context.Background()

	err := ms.Collection(models.CollAdministradores).Set(ctx, "uid-2", bson.M{"email": "boss@example.com"})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	p, _, err := store.Resolve(ctx, "uid-2")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if p.TipoUsuario != models.TipoAdministrador {
		t.Errorf("tipoUsuario = %q, want administrador", p.TipoUsuario)
	}
	if p.UID != "uid-2" {
		t.Errorf("uid = %q, want uid-2", p.UID)
	}
}

func TestResolve_NotFoundAndFailure(t *testing.T) {
	store, ms := setup(t)
	ctx := context.Background()

	if _, _, err := store.Resolve(ctx, "nobody"); !errors.Is(err, profilestore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	ms.SetFault(func(op, coll string) error {
		if coll == models.CollAdministradores {
			return &docstore.Error{Code: docstore.CodePermissionDenied, Op: op}
		}
		return nil
	})
	_, _, err := store.Resolve(ctx, "nobody")
	if docstore.CodeOf(err) != docstore.CodePermissionDenied {
		t.Errorf("expected permission-denied, got %v", err)
	}
}

func TestTeachers(t *testing.T) {
	store, _ := setup(t)
	ctx := context.Background()

	id1, err := store.SaveTeacher(ctx, "", profilestore.TeacherInput{Nombre: " Luis  Pérez ", Email: "LUIS@example.com"})
	if err != nil {
		t.Fatalf("SaveTeacher failed: %v", err)
	}
	id2, err := store.SaveTeacher(ctx, "", profilestore.TeacherInput{Nombre: "Marta", Roles: []string{"Coordinador"}})
	if err != nil {
		t.Fatalf("SaveTeacher failed: %v", err)
	}

	list, err := store.ListTeachers(ctx)
	if err != nil {
		t.Fatalf("ListTeachers failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != id2 || list[1].ID != id1 {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if list[1].Nombre != "Luis Pérez" || list[1].Email != "luis@example.com" || list[1].Estado != models.EstadoActivo {
		t.Errorf("unexpected teacher: %+v", list[1])
	}

	if _, err := store.SaveTeacher(ctx, id1, profilestore.TeacherInput{Nombre: "Luis", Especialidad: "Física"}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	got, _ := store.Get(ctx, models.CollDocentes, id1)
	if got.Especialidad != "Física" || got.Nombre != "Luis" {
		t.Errorf("update not applied: %+v", got)
	}

	if _, err := store.SaveTeacher(ctx, "missing", profilestore.TeacherInput{Nombre: "X"}); !errors.Is(err, profilestore.ErrNotFound) {
		t.Errorf("update of missing id: got %v", err)
	}
	if _, err := store.SaveTeacher(ctx, "", profilestore.TeacherInput{Nombre: "X", Estado: "Borrado"}); !errors.Is(err, profilestore.ErrBadStatus) {
		t.Errorf("bad estado: got %v", err)
	}

	estado, err := store.ToggleTeacherStatus(ctx, id1)
	if err != nil || estado != models.EstadoInactivo {
		t.Fatalf("toggle: got %q, %v", estado, err)
	}
	estado, _ = store.ToggleTeacherStatus(ctx, id1)
	if estado != models.EstadoActivo {
		t.Errorf("second toggle: got %q", estado)
	}
	if _, err := store.ToggleTeacherStatus(ctx, "missing"); !errors.Is(err, profilestore.ErrNotFound) {
		t.Errorf("toggle missing: got %v", err)
	}

	if err := store.DeleteTeacher(ctx, id1); err != nil {
		t.Fatalf("DeleteTeacher failed: %v", err)
	}
	list, _ = store.ListTeachers(ctx)
	if len(list) != 1 {
		t.Errorf("expected 1 teacher after delete, got %d", len(list))
	}
}

func TestStudents(t *testing.T) {
	store, ms := setup(t)
	ctx := context.Background()

	for _, p := range []models.Profile{
		models.NewProfile("s1", "s1@example.com", "Uno", models.TipoEstudiante, false),
		models.NewProfile("t1", "t1@example.com", "Profe", models.TipoMaestro, false),
		models.NewProfile("s2", "s2@example.com", "", models.TipoEstudiante, false),
	} {
		if err := store.Put(ctx, models.CollUsuarios, p); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	if err := ms.Collection(models.CollUsuarios).Set(ctx, "legacy", bson.M{"email": "old@example.com"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	list, err := store.ListStudents(ctx)
	if err != nil {
		t.Fatalf("ListStudents failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 students, got %d: %+v", len(list), list)
	}
	if list[0].ID != "s2" {
		t.Errorf("newest student should come first, got %q", list[0].ID)
	}
	for _, s := range list {
		if s.TipoUsuario != models.TipoEstudiante {
			t.Errorf("%s: tipoUsuario = %q", s.ID, s.TipoUsuario)
		}
	}

	if err := store.DeleteStudent(ctx, "t1"); !errors.Is(err, profilestore.ErrNotFound) {
		t.Errorf("deleting a teacher via DeleteStudent: got %v", err)
	}
	if err := store.DeleteStudent(ctx, "s1"); err != nil {
		t.Fatalf("DeleteStudent failed: %v", err)
	}
	if err := store.DeleteStudent(ctx, "s1"); !errors.Is(err, profilestore.ErrNotFound) {
		t.Errorf("deleting twice: got %v, want ErrNotFound", err)
	}
	if ms.Len(models.CollUsuarios) != 3 {
		t.Errorf("usuarios has %d docs, want 3", ms.Len(models.CollUsuarios))
	}
}

func TestDeleteStudent_RefusesStaff(t *testing.T) {
	store, ms := setup(t)
	ctx := context.Background()

	// Role-collection profiles with no usuarios record, and one with a
	// student-typed usuarios record left behind.
	if err := store.Put(ctx, models.CollDocentes, models.NewProfile("t1", "t1@example.com", "Profe", models.TipoMaestro, false)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, models.CollAdministradores, models.NewProfile("a1", "a1@example.com", "Jefa", models.TipoAdministrador, false)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	for _, uid := range []string{"t1", "a1"} {
		if err := store.DeleteStudent(ctx, uid); !errors.Is(err, profilestore.ErrNotFound) {
			t.Errorf("DeleteStudent(%s) = %v, want ErrNotFound", uid, err)
		}
	}

	if err := store.Put(ctx, models.CollUsuarios, models.NewProfile("a1", "a1@example.com", "Jefa", models.TipoEstudiante, false)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.DeleteStudent(ctx, "a1"); !errors.Is(err, profilestore.ErrNotFound) {
		t.Errorf("DeleteStudent on an administrator with a student record = %v, want ErrNotFound", err)
	}
	if ms.Len(models.CollUsuarios) != 1 {
		t.Errorf("usuarios has %d docs, want 1", ms.Len(models.CollUsuarios))
	}

	if err := store.DeleteStudent(ctx, "nobody"); !errors.Is(err, profilestore.ErrNotFound) {
		t.Errorf("DeleteStudent(nobody) = %v, want ErrNotFound", err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	ms := memstore.New()
	ps, clients, err := profilestore.Open(ctx, backend.Resolved(&backend.Clients{Store: ms}))
	if err != nil || ps == nil || clients.Store != ms {
		t.Fatalf("Open = %v, %v, %v", ps, clients, err)
	}

	_, _, err = profilestore.Open(ctx, backend.Resolved(&backend.Clients{}))
	if !errors.Is(err, profilestore.ErrStoreUnavailable) {
		t.Errorf("Open without store: err = %v, want ErrStoreUnavailable", err)
	}
}
