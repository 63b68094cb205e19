package profilestore

import (
	"context"
	"errors"
	"sort"

	"github.com/dalemusser/classhub/internal/app/system/backend"
	"github.com/dalemusser/classhub/internal/app/system/docstore"
	"github.com/dalemusser/classhub/internal/app/system/normalize"
	"github.com/dalemusser/classhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotFound is returned when no profile exists for the id.
	ErrNotFound = errors.New("profile not found")
	// ErrBadStatus is returned for an estado other than Activo/Inactivo.
	ErrBadStatus = errors.New(`estado must be "Activo"|"Inactivo"`)
	// ErrStoreUnavailable is returned by Open when the backend has no
	// document store.
	ErrStoreUnavailable = errors.New("document store is not available")
	errBadColl          = errors.New("not a profile collection")
)

// resolveOrder is the priority in which a uid's profile is looked up.
var resolveOrder = []string{models.CollDocentes, models.CollAdministradores, models.CollUsuarios}

type Store struct {
	ds docstore.Store
}

func New(ds docstore.Store) *Store {
	return &Store{ds: ds}
}

// Open waits for session and returns a Store over its document store,
// together with the resolved clients.
func Open(ctx context.Context, session *backend.Session) (*Store, *backend.Clients, error) {
	clients, err := session.Ready(ctx)
	if err != nil {
		return nil, nil, err
	}
	if clients.Store == nil {
		return nil, clients, ErrStoreUnavailable
	}
	return New(clients.Store), clients, nil
}

func validColl(coll string) bool {
	switch coll {
	case models.CollUsuarios, models.CollDocentes, models.CollAdministradores:
		return true
	}
	return false
}

// Put writes p as document p.UID of coll. Zero timestamps are filled by the
// store clock.
func (s *Store) Put(ctx context.Context, coll string, p models.Profile) error {
	if !validColl(coll) {
		return errBadColl
	}
	fields, err := docstore.ToFields(p)
	if err != nil {
		return err
	}
	if p.FechaCreacion.IsZero() {
		fields["fechaCreacion"] = docstore.ServerTimestamp
	}
	if p.FechaRegistro.IsZero() {
		fields["fechaRegistro"] = docstore.ServerTimestamp
	}
	if p.UltimaActualizacion.IsZero() {
		fields["ultimaActualizacion"] = docstore.ServerTimestamp
	}
	return s.ds.Collection(coll).Set(ctx, p.UID, fields)
}

// Get loads the profile stored under uid in coll.
func (s *Store) Get(ctx context.Context, coll, uid string) (*models.Profile, error) {
	if !validColl(coll) {
		return nil, errBadColl
	}
	doc, err := s.ds.Collection(coll).Get(ctx, uid)
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decode(doc)
}

// Resolve finds the authoritative profile for uid: docentes first, then
// administradores, then usuarios. The three reads run concurrently. A profile
// found in a role collection without tipoUsuario gets that role's type.
// It returns the collection the profile came from.
func (s *Store) Resolve(ctx context.Context, uid string) (*models.Profile, string, error) {
	found := make([]*models.Profile, len(resolveOrder))

	g, gctx := errgroup.WithContext(ctx)
	for i, coll := range resolveOrder {
		g.Go(func() error {
			p, err := s.Get(gctx, coll, uid)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			found[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, "", err
	}

	for i, p := range found {
		if p == nil {
			continue
		}
		coll := resolveOrder[i]
		if p.TipoUsuario == "" {
			p.TipoUsuario = defaultType(coll)
		}
		if p.UID == "" {
			p.UID = uid
		}
		return p, coll, nil
	}
	return nil, "", ErrNotFound
}

func defaultType(coll string) string {
	switch coll {
	case models.CollDocentes:
		return models.TipoMaestro
	case models.CollAdministradores:
		return models.TipoAdministrador
	default:
		return models.TipoEstudiante
	}
}

// TeacherInput is what the admin screen edits on a teacher.
type TeacherInput struct {
	Nombre       string   `json:"nombre" validate:"notblank,max=200"`
	Email        string   `json:"email" validate:"omitempty,email"`
	Especialidad string   `json:"especialidad" validate:"max=200"`
	Estado       string   `json:"estado" validate:"omitempty,oneof=Activo Inactivo"`
	Roles        []string `json:"roles" validate:"dive,notblank"`
}

// ListTeachers returns every docentes profile, newest first.
func (s *Store) ListTeachers(ctx context.Context) ([]models.Profile, error) {
	docs, err := s.ds.Collection(models.CollDocentes).Find(ctx, docstore.Query{OrderBy: "fechaCreacion", Desc: true})
	if err != nil {
		return nil, err
	}
	out := make([]models.Profile, 0, len(docs))
	for _, d := range docs {
		p, err := decode(d)
		if err != nil {
			return nil, err
		}
		if p.Estado == "" {
			p.Estado = models.EstadoActivo
		}
		if p.Roles == nil {
			p.Roles = []string{}
		}
		if p.TipoUsuario == "" {
			p.TipoUsuario = models.TipoMaestro
		}
		out = append(out, *p)
	}
	return out, nil
}

// SaveTeacher updates docentes/id, or inserts a new teacher when id is
// empty. It returns the document id.
func (s *Store) SaveTeacher(ctx context.Context, id string, in TeacherInput) (string, error) {
	estado := in.Estado
	if estado == "" {
		estado = models.EstadoActivo
	}
	if estado != models.EstadoActivo && estado != models.EstadoInactivo {
		return "", ErrBadStatus
	}
	roles := in.Roles
	if roles == nil {
		roles = []string{}
	}
	fields := bson.M{
		"nombre":             normalize.Name(in.Nombre),
		"email":              normalize.Email(in.Email),
		"especialidad":       normalize.Name(in.Especialidad),
		"estado":             estado,
		"roles":              roles,
		"fechaActualizacion": docstore.ServerTimestamp,
	}

	coll := s.ds.Collection(models.CollDocentes)
	if id != "" {
		if err := coll.Update(ctx, id, fields); err != nil {
			if docstore.IsNotFound(err) {
				return "", ErrNotFound
			}
			return "", err
		}
		return id, nil
	}

	fields["tipoUsuario"] = models.TipoMaestro
	fields["fechaCreacion"] = docstore.ServerTimestamp
	return coll.Add(ctx, fields)
}

// ToggleTeacherStatus flips a teacher between Activo and Inactivo and
// returns the new estado.
func (s *Store) ToggleTeacherStatus(ctx context.Context, id string) (string, error) {
	p, err := s.Get(ctx, models.CollDocentes, id)
	if err != nil {
		return "", err
	}
	next := models.EstadoInactivo
	if p.Estado == models.EstadoInactivo {
		next = models.EstadoActivo
	}
	err = s.ds.Collection(models.CollDocentes).Update(ctx, id, bson.M{
		"estado":             next,
		"fechaActualizacion": docstore.ServerTimestamp,
	})
	if err != nil {
		if docstore.IsNotFound(err) {
			return "", ErrNotFound
		}
		return "", err
	}
	return next, nil
}

// DeleteTeacher removes docentes/id.
func (s *Store) DeleteTeacher(ctx context.Context, id string) error {
	return s.ds.Collection(models.CollDocentes).Delete(ctx, id)
}

// ListStudents returns the usuarios profiles that are students, newest
// first. Records without tipoUsuario count as students.
func (s *Store) ListStudents(ctx context.Context) ([]models.Profile, error) {
	docs, err := s.ds.Collection(models.CollUsuarios).Find(ctx, docstore.Query{})
	if err != nil {
		return nil, err
	}
	out := make([]models.Profile, 0, len(docs))
	for _, d := range docs {
		p, err := decode(d)
		if err != nil {
			return nil, err
		}
		if p.TipoUsuario != "" && p.TipoUsuario != models.TipoEstudiante {
			continue
		}
		p.TipoUsuario = models.TipoEstudiante
		if p.Nombre == "" {
			p.Nombre = p.Email
		}
		out = append(out, *p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].FechaCreacion.Equal(out[j].FechaCreacion) {
			return out[i].FechaCreacion.After(out[j].FechaCreacion)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteStudent removes usuarios/id. It returns ErrNotFound when id has no
// usuarios profile or also has a teacher or administrator profile.
func (s *Store) DeleteStudent(ctx context.Context, id string) error {
	p, coll, err := s.Resolve(ctx, id)
	if err != nil {
		return err
	}
	if coll != models.CollUsuarios || p.TipoUsuario != models.TipoEstudiante {
		return ErrNotFound
	}
	return s.ds.Collection(models.CollUsuarios).Delete(ctx, id)
}

func decode(d docstore.Document) (*models.Profile, error) {
	var p models.Profile
	if err := d.Decode(&p); err != nil {
		return nil, err
	}
	p.ID = d.ID
	return &p, nil
}
