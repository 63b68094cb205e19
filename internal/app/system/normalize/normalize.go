// Package normalize cleans user-supplied strings before they are compared or
// stored.
package normalize

import (
	"strings"

	"github.com/dalemusser/classhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
)

// Email trims and lowercases an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims a display name and collapses inner runs of whitespace.
// Case is preserved.
func Name(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// UserType maps a user type (or one of the labels the forms used over time)
// to its stored value. Unknown values come back lowercased and trimmed so
// the caller can reject them.
func UserType(s string) string {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "docente", "teacher", "profesor":
		return models.TipoMaestro
	case "admin", "administrator":
		return models.TipoAdministrador
	case "alumno", "student":
		return models.TipoEstudiante
	}
	return v
}

// CourseState maps a course state in any case to Activo/Inactivo/Borrador.
// Unknown values are returned trimmed.
func CourseState(s string) string {
	v := strings.TrimSpace(s)
	switch text.Fold(v) {
	case "activo", "active":
		return models.CursoActivo
	case "inactivo", "inactive":
		return models.CursoInactivo
	case "borrador", "draft":
		return models.CursoBorrador
	}
	return v
}

// Level maps a course level in any case (with or without accents) to its
// stored value. Unknown values are returned trimmed.
func Level(s string) string {
	v := strings.TrimSpace(s)
	switch text.Fold(v) {
	case "principiante", "beginner":
		return models.NivelPrincipiante
	case "intermedio", "intermediate":
		return models.NivelIntermedio
	case "avanzado", "advanced":
		return models.NivelAvanzado
	}
	return v
}

// QueryParam trims a query-string value.
func QueryParam(s string) string {
	return strings.TrimSpace(s)
}
