// internal/domain/models/course.go
package models

import (
	"time"
)

// Course states.
const (
	CursoActivo   = "Activo"
	CursoInactivo = "Inactivo"
	CursoBorrador = "Borrador"
)

// Course levels.
const (
	NivelPrincipiante = "Principiante"
	NivelIntermedio   = "Intermedio"
	NivelAvanzado     = "Avanzado"
)

// CategoriaGeneral is the category assigned when none is given.
const CategoriaGeneral = "General"

// CollCursos is the course collection.
const CollCursos = "cursos"

// Course is a course owned by a teacher. The field names match the documents
// the mobile app reads, so they stay in Spanish.
//
// Invariant: EstudiantesInscritos == len(EstudiantesIDs) after every
// enrollment change.
type Course struct {
	ID            string `bson:"_id,omitempty" json:"id"`
	Nombre        string `bson:"nombre" json:"nombre"`
	Descripcion   string `bson:"descripcion" json:"descripcion"`
	DocenteID     string `bson:"docenteId" json:"docenteId"`
	DocenteNombre string `bson:"docenteNombre" json:"docenteNombre"`
	ImagenURL     string `bson:"imagenUrl" json:"imagenUrl"`
	Categoria     string `bson:"categoria" json:"categoria"`

	Duracion float64  `bson:"duracion" json:"duracion"` // hours
	Estado   string   `bson:"estado" json:"estado"`     // Activo | Inactivo | Borrador
	Temario  []string `bson:"temario" json:"temario"`

	EstudiantesInscritos int      `bson:"estudiantesInscritos" json:"estudiantesInscritos"`
	EstudiantesIDs       []string `bson:"estudiantesIds" json:"estudiantesIds"`

	Nivel               string   `bson:"nivel" json:"nivel"`
	VisibleEstudiantes  bool     `bson:"visibleEstudiantes" json:"visibleEstudiantes"`
	Activo              bool     `bson:"activo" json:"activo"`
	Precio              float64  `bson:"precio" json:"precio"`
	Tags                []string `bson:"tags" json:"tags"`
	Rating              float64  `bson:"rating" json:"rating"`
	TotalCalificaciones int      `bson:"totalCalificaciones" json:"totalCalificaciones"`

	FechaCreacion      time.Time `bson:"fechaCreacion" json:"fechaCreacion"`
	FechaActualizacion time.Time `bson:"fechaActualizacion" json:"fechaActualizacion"`
}

// NewCourse returns a course with every optional field at its default.
func NewCourse(nombre, docenteID string) Course {
	return Course{
		Nombre:             nombre,
		DocenteID:          docenteID,
		Categoria:          CategoriaGeneral,
		Estado:             CursoActivo,
		Nivel:              NivelPrincipiante,
		Temario:            []string{},
		EstudiantesIDs:     []string{},
		Tags:               []string{},
		VisibleEstudiantes: true,
		Activo:             true,
	}
}

// HasStudent reports whether studentID is enrolled.
func (c Course) HasStudent(studentID string) bool {
	for _, id := range c.EstudiantesIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

// IsValidCourseState reports whether s is a known course state.
func IsValidCourseState(s string) bool {
	switch s {
	case CursoActivo, CursoInactivo, CursoBorrador:
		return true
	}
	return false
}

// IsValidLevel reports whether l is a known course level.
func IsValidLevel(l string) bool {
	switch l {
	case NivelPrincipiante, NivelIntermedio, NivelAvanzado:
		return true
	}
	return false
}
