// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/classhub/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. On servers that don't support collMod/validators (e.g. some
// DocumentDB versions), we log and skip gracefully.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	ensure(models.CollCursos, cursosSchema())
	ensure(models.CollCredenciales, credencialesSchema())
	ensure(models.CollUsuarios, profileSchema(false))
	ensure(models.CollDocentes, profileSchema(true))
	ensure(models.CollAdministradores, profileSchema(false))

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
// Uses ListCollectionNames to avoid "created collection" log when it didn't.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		zap.L().Info("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		// NamespaceExists / already exists is fine (race or prior run).
		if isNamespaceExistsErr(err) {
			zap.L().Info("collection exists", zap.String("collection", name))
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

func strEnum(vals ...string) bson.A {
	out := bson.A{}
	for _, v := range vals {
		out = append(out, v)
	}
	return out
}

func cursosSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"nombre", "docenteId", "estado", "estudiantesInscritos", "estudiantesIds"},
			"properties": bson.M{
				"nombre":               bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"docenteId":            bson.M{"bsonType": "string", "minLength": 1},
				"estado":               bson.M{"enum": strEnum(models.CursoActivo, models.CursoInactivo, models.CursoBorrador)},
				"nivel":                bson.M{"enum": strEnum(models.NivelPrincipiante, models.NivelIntermedio, models.NivelAvanzado)},
				"temario":              bson.M{"bsonType": "array", "items": bson.M{"bsonType": "string"}},
				"estudiantesIds":       bson.M{"bsonType": "array", "items": bson.M{"bsonType": "string"}},
				"estudiantesInscritos": bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
				"duracion":             bson.M{"bsonType": bson.A{"double", "int", "long"}},
				"visibleEstudiantes":   bson.M{"bsonType": "bool"},
				"activo":               bson.M{"bsonType": "bool"},
				"fechaCreacion":        bson.M{"bsonType": "date"},
				"fechaActualizacion":   bson.M{"bsonType": "date"},
			},
		},
	}
}

func credencialesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"email", "password_hash", "created_at"},
			"properties": bson.M{
				"email":           bson.M{"bsonType": "string", "minLength": 3},
				"password_hash":   bson.M{"bsonType": "string", "minLength": 1},
				"disabled":        bson.M{"bsonType": "bool"},
				"failed_attempts": bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
				"session_version": bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
				"created_at":      bson.M{"bsonType": "date"},
			},
		},
	}
}

// profileSchema covers usuarios, docentes and administradores. Teachers
// created from the admin screen have no uid, so uid is only required
// elsewhere.
func profileSchema(adminCreated bool) bson.M {
	required := bson.A{"uid", "email"}
	if adminCreated {
		required = bson.A{"nombre"}
	}
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": required,
			"properties": bson.M{
				"uid":         bson.M{"bsonType": "string"},
				"email":       bson.M{"bsonType": "string"},
				"nombre":      bson.M{"bsonType": "string"},
				"tipoUsuario": bson.M{"enum": strEnum(models.TipoEstudiante, models.TipoMaestro, models.TipoAdministrador)},
				"estado":      bson.M{"enum": strEnum(models.EstadoActivo, models.EstadoInactivo)},
				"roles":       bson.M{"bsonType": "array", "items": bson.M{"bsonType": "string"}},
			},
		},
	}
}
