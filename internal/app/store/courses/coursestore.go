// internal/app/store/courses/coursestore.go
package coursestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dalemusser/classhub/internal/app/system/backend"
	"github.com/dalemusser/classhub/internal/app/system/docstore"
	"github.com/dalemusser/classhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/classhub/internal/app/system/normalize"
	"github.com/dalemusser/classhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

var (
	ErrStoreUnavailable       = errors.New("document store is not available")
	ErrPermissionDenied       = errors.New("permission denied on the cursos collection")
	ErrNameAndTeacherRequired = errors.New("course name and teacher id are required")
	ErrIDRequired             = errors.New("course id is required")
	ErrNotFound               = errors.New("course not found")
	ErrAlreadyEnrolled        = errors.New("student is already enrolled")
	ErrInvalidState           = errors.New(`estado must be "Activo"|"Inactivo"|"Borrador"`)
	ErrInvalidLevel           = errors.New(`nivel must be "Principiante"|"Intermedio"|"Avanzado"`)
)

// WarnUnconfirmed is set on a CreateResult when the course was written but
// could not be read back.
const WarnUnconfirmed = "course created but could not be verified"

// newestFirst is the server ordering used by GetAll and Subscribe.
var newestFirst = docstore.Query{OrderBy: "fechaCreacion", Desc: true}

type Store struct {
	session *backend.Session
	log     *zap.Logger
	locks   keyedMutex
}

func New(session *backend.Session, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{session: session, log: logger}
}

// Input is a new course. Temario is the raw multi-line text from the form;
// each non-blank line becomes one topic.
type Input struct {
	Nombre        string   `json:"nombre" validate:"notblank,max=200" label:"Nombre"`
	Descripcion   string   `json:"descripcion" validate:"max=5000"`
	DocenteID     string   `json:"docenteId"`
	DocenteNombre string   `json:"docenteNombre" validate:"max=200"`
	ImagenURL     string   `json:"imagenUrl" validate:"omitempty,httpurl" label:"Imagen"`
	Categoria     string   `json:"categoria" validate:"max=100"`
	Duracion      float64  `json:"duracion" validate:"gte=0"`
	Estado        string   `json:"estado" validate:"omitempty,coursestate" label:"Estado"`
	Nivel         string   `json:"nivel" validate:"omitempty,courselevel" label:"Nivel"`
	Temario       string   `json:"temario"`
	Precio        float64  `json:"precio" validate:"gte=0"`
	Tags          []string `json:"tags" validate:"dive,notblank"`

	VisibleEstudiantes *bool `json:"visibleEstudiantes"`
	Activo             *bool `json:"activo"`
}

// Patch is a partial update. Nil fields are left alone.
type Patch struct {
	Nombre        *string  `json:"nombre" validate:"omitempty,notblank,max=200" label:"Nombre"`
	Descripcion   *string  `json:"descripcion" validate:"omitempty,max=5000"`
	DocenteNombre *string  `json:"docenteNombre" validate:"omitempty,max=200"`
	ImagenURL     *string  `json:"imagenUrl" validate:"omitempty,httpurl" label:"Imagen"`
	Categoria     *string  `json:"categoria" validate:"omitempty,max=100"`
	Duracion      *float64 `json:"duracion" validate:"omitempty,gte=0"`
	Estado        *string  `json:"estado" validate:"omitempty,coursestate" label:"Estado"`
	Nivel         *string  `json:"nivel" validate:"omitempty,courselevel" label:"Nivel"`
	Temario       *string  `json:"temario"`
	Precio        *float64 `json:"precio" validate:"omitempty,gte=0"`
	Tags          []string `json:"tags" validate:"omitempty,dive,notblank"`

	VisibleEstudiantes *bool `json:"visibleEstudiantes"`
	Activo             *bool `json:"activo"`
}

// CreateResult is what Create hands back. Course is nil when the write
// could not be confirmed; ID is always set and Warning says why.
type CreateResult struct {
	ID      string         `json:"id"`
	Course  *models.Course `json:"curso,omitempty"`
	Warning string         `json:"warning,omitempty"`
}

// ParseTemario splits raw topic text into its non-blank, trimmed lines.
func ParseTemario(raw string) []string {
	out := []string{}
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, htmlsanitize.PlainText(line))
		}
	}
	return out
}

// collection waits for the backend and returns the cursos collection.
func (s *Store) collection(ctx context.Context) (docstore.Collection, error) {
	clients, err := s.session.Ready(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if clients.Store == nil {
		return nil, ErrStoreUnavailable
	}
	return clients.Store.Collection(models.CollCursos), nil
}

// Create validates in, fills the defaults and stores a new course.
func (s *Store) Create(ctx context.Context, in Input) (*CreateResult, error) {
	c, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}
	nombre := normalize.Name(in.Nombre)
	docenteID := strings.TrimSpace(in.DocenteID)
	if nombre == "" || docenteID == "" {
		return nil, ErrNameAndTeacherRequired
	}

	course := models.NewCourse(nombre, docenteID)
	course.Descripcion = htmlsanitize.PlainText(in.Descripcion)
	course.DocenteNombre = normalize.Name(in.DocenteNombre)
	course.ImagenURL = strings.TrimSpace(in.ImagenURL)
	if cat := normalize.Name(in.Categoria); cat != "" {
		course.Categoria = cat
	}
	course.Duracion = in.Duracion
	course.Precio = in.Precio
	if in.Estado != "" {
		if course.Estado, err = courseState(in.Estado); err != nil {
			return nil, err
		}
	}
	if in.Nivel != "" {
		if course.Nivel, err = level(in.Nivel); err != nil {
			return nil, err
		}
	}
	course.Temario = ParseTemario(in.Temario)
	if in.Tags != nil {
		course.Tags = cleanTags(in.Tags)
	}
	if in.VisibleEstudiantes != nil {
		course.VisibleEstudiantes = *in.VisibleEstudiantes
	}
	if in.Activo != nil {
		course.Activo = *in.Activo
	}

	fields, err := docstore.ToFields(course)
	if err != nil {
		return nil, err
	}
	fields["fechaCreacion"] = docstore.ServerTimestamp
	fields["fechaActualizacion"] = docstore.ServerTimestamp

	id, err := c.Add(ctx, fields)
	if err != nil {
		return nil, s.classify("create", err)
	}
	s.log.Info("course created",
		zap.String("id", id),
		zap.String("docente_id", docenteID),
		zap.String("estado", course.Estado))

	saved, err := s.get(ctx, c, id)
	if err != nil {
		s.log.Warn("course created but not confirmed", zap.String("id", id), zap.Error(err))
		return &CreateResult{ID: id, Warning: WarnUnconfirmed}, nil
	}
	return &CreateResult{ID: id, Course: saved}, nil
}

// GetAll returns every course, newest first.
func (s *Store) GetAll(ctx context.Context) ([]models.Course, error) {
	c, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := c.Find(ctx, newestFirst)
	if err != nil {
		return nil, s.classify("get all", err)
	}
	return decodeAll(docs)
}

// GetByID returns the course stored under id.
func (s *Store) GetByID(ctx context.Context, id string) (*models.Course, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrIDRequired
	}
	c, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}
	course, err := s.get(ctx, c, id)
	if err != nil {
		return nil, s.classify("get", err)
	}
	return course, nil
}

// GetByTeacher returns the courses of one teacher, newest first. Only the
// equality filter runs on the server, so no compound index is required.
func (s *Store) GetByTeacher(ctx context.Context, teacherID string) ([]models.Course, error) {
	return s.findSorted(ctx, "get by teacher", docstore.Eq("docenteId", teacherID))
}

// GetActiveVisible returns the active courses students may see, newest
// first.
func (s *Store) GetActiveVisible(ctx context.Context) ([]models.Course, error) {
	return s.findSorted(ctx, "get active",
		docstore.Eq("estado", models.CursoActivo),
		docstore.Eq("visibleEstudiantes", true))
}

func (s *Store) findSorted(ctx context.Context, op string, filters ...docstore.Filter) ([]models.Course, error) {
	c, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := c.Find(ctx, docstore.Query{Filters: filters})
	if err != nil {
		return nil, s.classify(op, err)
	}
	out, err := decodeAll(docs)
	if err != nil {
		return nil, err
	}
	SortNewestFirst(out)
	return out, nil
}

// SortNewestFirst orders courses by fechaCreacion descending, then by id.
func SortNewestFirst(cs []models.Course) {
	sort.SliceStable(cs, func(i, j int) bool {
		if !cs[i].FechaCreacion.Equal(cs[j].FechaCreacion) {
			return cs[i].FechaCreacion.After(cs[j].FechaCreacion)
		}
		return cs[i].ID < cs[j].ID
	})
}

// Update applies p to course id and returns the stored result.
func (s *Store) Update(ctx context.Context, id string, p Patch) (*models.Course, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrIDRequired
	}
	c, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}
	fields, err := p.fields()
	if err != nil {
		return nil, err
	}
	fields["fechaActualizacion"] = docstore.ServerTimestamp

	if err := c.Update(ctx, id, fields); err != nil {
		return nil, s.classify("update", err)
	}
	course, err := s.get(ctx, c, id)
	if err != nil {
		return nil, s.classify("update", err)
	}
	s.log.Info("course updated", zap.String("id", id), zap.Int("fields", len(fields)))
	return course, nil
}

func (p Patch) fields() (bson.M, error) {
	m := bson.M{}
	if p.Nombre != nil {
		n := normalize.Name(*p.Nombre)
		if n == "" {
			return nil, ErrNameAndTeacherRequired
		}
		m["nombre"] = n
	}
	if p.Descripcion != nil {
		m["descripcion"] = htmlsanitize.PlainText(*p.Descripcion)
	}
	if p.DocenteNombre != nil {
		m["docenteNombre"] = normalize.Name(*p.DocenteNombre)
	}
	if p.ImagenURL != nil {
		m["imagenUrl"] = strings.TrimSpace(*p.ImagenURL)
	}
	if p.Categoria != nil {
		cat := normalize.Name(*p.Categoria)
		if cat == "" {
			cat = models.CategoriaGeneral
		}
		m["categoria"] = cat
	}
	if p.Duracion != nil {
		m["duracion"] = *p.Duracion
	}
	if p.Estado != nil {
		st, err := courseState(*p.Estado)
		if err != nil {
			return nil, err
		}
		m["estado"] = st
	}
	if p.Nivel != nil {
		lv, err := level(*p.Nivel)
		if err != nil {
			return nil, err
		}
		m["nivel"] = lv
	}
	if p.Temario != nil {
		m["temario"] = ParseTemario(*p.Temario)
	}
	if p.Precio != nil {
		m["precio"] = *p.Precio
	}
	if p.Tags != nil {
		m["tags"] = cleanTags(p.Tags)
	}
	if p.VisibleEstudiantes != nil {
		m["visibleEstudiantes"] = *p.VisibleEstudiantes
	}
	if p.Activo != nil {
		m["activo"] = *p.Activo
	}
	return m, nil
}

// Delete removes course id. Deleting an absent id succeeds.
func (s *Store) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrIDRequired
	}
	c, err := s.collection(ctx)
	if err != nil {
		return err
	}
	if err := c.Delete(ctx, id); err != nil {
		return s.classify("delete", err)
	}
	s.log.Info("course deleted", zap.String("id", id))
	return nil
}

// Enroll adds studentID to the course. Enrollment changes on one course are
// serialized within this process; two instances writing the same course
// concurrently can still lose an update.
func (s *Store) Enroll(ctx context.Context, courseID, studentID string) (*models.Course, error) {
	return s.changeEnrollment(ctx, "enroll", courseID, studentID, func(ids []string) ([]string, error) {
		for _, id := range ids {
			if id == studentID {
				return nil, ErrAlreadyEnrolled
			}
		}
		return append(ids, studentID), nil
	})
}

// Unenroll removes studentID from the course. Removing a student who is not
// enrolled leaves the list unchanged and succeeds.
func (s *Store) Unenroll(ctx context.Context, courseID, studentID string) (*models.Course, error) {
	return s.changeEnrollment(ctx, "unenroll", courseID, studentID, func(ids []string) ([]string, error) {
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if id != studentID {
				out = append(out, id)
			}
		}
		return out, nil
	})
}

func (s *Store) changeEnrollment(ctx context.Context, op, courseID, studentID string, change func([]string) ([]string, error)) (*models.Course, error) {
	if strings.TrimSpace(courseID) == "" || strings.TrimSpace(studentID) == "" {
		return nil, ErrIDRequired
	}
	c, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(courseID)
	defer unlock()

	course, err := s.get(ctx, c, courseID)
	if err != nil {
		return nil, s.classify(op, err)
	}
	ids, err := change(append([]string(nil), course.EstudiantesIDs...))
	if err != nil {
		return nil, err
	}
	err = c.Update(ctx, courseID, bson.M{
		"estudiantesIds":       ids,
		"estudiantesInscritos": len(ids),
		"fechaActualizacion":   docstore.ServerTimestamp,
	})
	if err != nil {
		return nil, s.classify(op, err)
	}
	s.log.Info("course enrollment changed",
		zap.String("op", op),
		zap.String("course_id", courseID),
		zap.String("student_id", studentID),
		zap.Int("enrolled", len(ids)))

	updated, err := s.get(ctx, c, courseID)
	if err != nil {
		return nil, s.classify(op, err)
	}
	return updated, nil
}

// Subscribe calls fn with the full course list, newest first, now and after
// every change until the returned function is called or ctx ends. A failed
// refresh is reported to fn as an empty list.
func (s *Store) Subscribe(ctx context.Context, fn func([]models.Course)) (func(), error) {
	c, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}
	stop := c.Watch(ctx, newestFirst, func(docs []docstore.Document, err error) {
		if err != nil {
			s.log.Warn("course subscription refresh failed", zap.Error(err))
			fn([]models.Course{})
			return
		}
		courses, err := decodeAll(docs)
		if err != nil {
			s.log.Warn("course subscription decode failed", zap.Error(err))
			fn([]models.Course{})
			return
		}
		fn(courses)
	})
	return stop, nil
}

func (s *Store) get(ctx context.Context, c docstore.Collection, id string) (*models.Course, error) {
	doc, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return decode(doc)
}

// classify maps store failures onto the package's sentinel errors. The
// original error stays in the chain.
func (s *Store) classify(op string, err error) error {
	switch docstore.CodeOf(err) {
	case docstore.CodeNotFound:
		return ErrNotFound
	case docstore.CodePermissionDenied:
		s.log.Error("course store permission denied", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	case docstore.CodeUnavailable:
		s.log.Warn("course store unavailable", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	default:
		s.log.Error("course store failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("courses %s: %w", op, err)
	}
}

func courseState(s string) (string, error) {
	st := normalize.CourseState(s)
	if !models.IsValidCourseState(st) {
		return "", ErrInvalidState
	}
	return st, nil
}

func level(s string) (string, error) {
	lv := normalize.Level(s)
	if !models.IsValidLevel(lv) {
		return "", ErrInvalidLevel
	}
	return lv, nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func decode(d docstore.Document) (*models.Course, error) {
	var c models.Course
	if err := d.Decode(&c); err != nil {
		return nil, err
	}
	c.ID = d.ID
	if c.EstudiantesIDs == nil {
		c.EstudiantesIDs = []string{}
	}
	if c.Temario == nil {
		c.Temario = []string{}
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return &c, nil
}

func decodeAll(docs []docstore.Document) ([]models.Course, error) {
	out := make([]models.Course, 0, len(docs))
	for _, d := range docs {
		c, err := decode(d)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
