// internal/domain/models/user.go
package models

// Terminology: User Identifiers
//   - UID / uid: the identity service's account id. Profile documents are keyed
//     by the same value in every profile collection.
//   - Email: what the user types to sign in (stored lowercase).

import (
	"time"
)

// User types. The values are persisted as-is and shared with the mobile app.
const (
	TipoEstudiante    = "estudiante"
	TipoMaestro       = "maestro"
	TipoAdministrador = "administrador"
)

// Profile collections. Every user has a usuarios document; teachers and
// administrators also have one in their role collection.
const (
	CollUsuarios        = "usuarios"
	CollDocentes        = "docentes"
	CollAdministradores = "administradores"
)

// Profile states.
const (
	EstadoActivo   = "Activo"
	EstadoInactivo = "Inactivo"
)

// RolDocenteBasico is the role every self-registered teacher starts with.
const RolDocenteBasico = "Docente básico"

// Profile is the application-level user record, distinct from the identity
// credential. It carries the display data and the user type.
type Profile struct {
	ID              string   `bson:"-" json:"id"` // document id, filled on read
	UID             string   `bson:"uid" json:"uid"`
	Email           string   `bson:"email" json:"email"`
	Nombre          string   `bson:"nombre" json:"nombre"`
	TipoUsuario     string   `bson:"tipoUsuario" json:"tipoUsuario"` // estudiante | maestro | administrador
	Estado          string   `bson:"estado,omitempty" json:"estado,omitempty"`
	Roles           []string `bson:"roles" json:"roles"`
	Especialidad    string   `bson:"especialidad,omitempty" json:"especialidad,omitempty"`
	EmailVerificado bool     `bson:"emailVerificado" json:"emailVerificado"`

	FechaCreacion       time.Time `bson:"fechaCreacion" json:"fechaCreacion"`
	FechaRegistro       time.Time `bson:"fechaRegistro,omitempty" json:"fechaRegistro,omitempty"`
	UltimaActualizacion time.Time `bson:"ultimaActualizacion,omitempty" json:"ultimaActualizacion,omitempty"`
	FechaActualizacion  time.Time `bson:"fechaActualizacion,omitempty" json:"fechaActualizacion,omitempty"`
}

// NewProfile builds the profile written at registration time. An empty
// userType means estudiante and an empty name falls back to the email.
func NewProfile(uid, email, nombre, userType string, emailVerified bool) Profile {
	if userType == "" {
		userType = TipoEstudiante
	}
	if nombre == "" {
		nombre = email
	}
	roles := []string{}
	if userType == TipoMaestro {
		roles = []string{RolDocenteBasico}
	}
	return Profile{
		UID:             uid,
		Email:           email,
		Nombre:          nombre,
		TipoUsuario:     userType,
		Estado:          EstadoActivo,
		Roles:           roles,
		EmailVerificado: emailVerified,
	}
}

// RoleCollection returns the role-specific profile collection for a user type,
// or "" when the type only lives in usuarios.
func RoleCollection(userType string) string {
	switch userType {
	case TipoMaestro:
		return CollDocentes
	case TipoAdministrador:
		return CollAdministradores
	default:
		return ""
	}
}

// IsValidUserType reports whether t is one of the three known user types.
func IsValidUserType(t string) bool {
	switch t {
	case TipoEstudiante, TipoMaestro, TipoAdministrador:
		return true
	}
	return false
}
