// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/classhub/internal/app/store/audit"
	"github.com/dalemusser/classhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup and by `classhub ensure-indexes`. Each
ensure* function is idempotent. Errors are aggregated so every problem is
visible at once.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	sets := []struct {
		coll    string
		indexes []mongo.IndexModel
	}{
		{models.CollCredenciales, credencialesIndexes()},
		{models.CollCursos, cursosIndexes()},
		{models.CollUsuarios, usuariosIndexes()},
		{models.CollDocentes, docentesIndexes()},
		{models.CollAdministradores, administradoresIndexes()},
		{audit.Collection, auditoriaIndexes()},
	}
	for _, s := range sets {
		if err := ensureIndexSet(ctx, db.Collection(s.coll), s.indexes); err != nil {
			problems = append(problems, s.coll+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Core helper: reconcile a set of desired indexes for one collection         */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func isUnique(b *bool) bool { return b != nil && *b }

// Best-effort duplicate-detector (works cross-vendors)
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

// Mongo/DocDB sometimes returns IndexOptionsConflict when an index with the
// same keys already exists under a different name (or options differ).
func isOptionsConflictErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "IndexOptionsConflict")
}

func listIndexes(ctx context.Context, coll *mongo.Collection) map[string]existingIndex {
	existing := map[string]existingIndex{}
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return existing
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		existing[keySig(idx.Key)] = idx
	}
	return existing
}

// recreate drops name and creates m in its place.
func recreate(ctx context.Context, coll *mongo.Collection, name string, m mongo.IndexModel) error {
	if _, err := coll.Indexes().DropOne(ctx, name); err != nil {
		return fmt.Errorf("drop %s: %w", name, err)
	}
	if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
		if isDuplicateKeyErr(err) {
			return fmt.Errorf("cannot create unique index (duplicates present): %w", err)
		}
		return err
	}
	return nil
}

func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	var errs []string

	for _, m := range models {
		var desiredName string
		var desiredUnique *bool
		if m.Options != nil {
			if m.Options.Name != nil {
				desiredName = *m.Options.Name
			}
			desiredUnique = m.Options.Unique
		}
		desiredSig := keySig(m.Keys.(bson.D))
		start := time.Now()

		fields := []zap.Field{
			zap.String("collection", coll.Name()),
			zap.String("name", desiredName),
			zap.String("keys", desiredSig),
			zap.Bool("unique", isUnique(desiredUnique)),
		}

		ex, ok := listIndexes(ctx, coll)[desiredSig]
		if !ok {
			_, err := coll.Indexes().CreateOne(ctx, m)
			if isOptionsConflictErr(err) {
				// Raced with another instance or an equivalent index appeared.
				if ex, ok = listIndexes(ctx, coll)[desiredSig]; ok && isUnique(ex.Unique) == isUnique(desiredUnique) {
					zap.L().Info("reusing existing index (post-conflict)", fields...)
					continue
				}
			}
			if err != nil {
				zap.L().Warn("index ensure failed", append(fields, zap.Error(err))...)
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), desiredName, err))
				continue
			}
			zap.L().Info("index ensured", append(fields, zap.Duration("took", time.Since(start)))...)
			continue
		}

		switch {
		case isUnique(ex.Unique) != isUnique(desiredUnique):
			// Options mismatch (e.g. upgrading to unique).
			if err := recreate(ctx, coll, ex.Name, m); err != nil {
				zap.L().Warn("index recreate failed", append(fields, zap.Error(err))...)
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), desiredName, err))
				continue
			}
			zap.L().Info("index dropped and recreated", append(fields, zap.Duration("took", time.Since(start)))...)

		case desiredName != "" && ex.Name != desiredName:
			if err := recreate(ctx, coll, ex.Name, m); err != nil {
				zap.L().Warn("index rename failed", append(fields, zap.String("from", ex.Name), zap.Error(err))...)
				errs = append(errs, fmt.Sprintf("%s(%s): rename: %v", coll.Name(), desiredName, err))
				continue
			}
			zap.L().Info("index renamed", append(fields, zap.String("from", ex.Name))...)

		default:
			zap.L().Info("reusing existing index", fields...)
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func credencialesIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		// Sign-in looks accounts up by email; one account per address.
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_credenciales_email"),
		},
	}
}

func cursosIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		// GetAll orders by creation time.
		{
			Keys:    bson.D{{Key: "fechaCreacion", Value: -1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_cursos_fecha_id"),
		},
		// GetByTeacher filters by docenteId and sorts in process; the
		// compound index also serves a server-side sort if one is added.
		{
			Keys:    bson.D{{Key: "docenteId", Value: 1}, {Key: "fechaCreacion", Value: -1}},
			Options: options.Index().SetName("idx_cursos_docente_fecha"),
		},
		// Catalog of active, visible courses.
		{
			Keys: bson.D{
				{Key: "estado", Value: 1},
				{Key: "visibleEstudiantes", Value: 1},
				{Key: "fechaCreacion", Value: -1},
			},
			Options: options.Index().SetName("idx_cursos_estado_visible_fecha"),
		},
		// Courses a student is enrolled in (multikey).
		{
			Keys:    bson.D{{Key: "estudiantesIds", Value: 1}},
			Options: options.Index().SetName("idx_cursos_estudiantes"),
		},
	}
}

func usuariosIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tipoUsuario", Value: 1}, {Key: "fechaCreacion", Value: -1}},
			Options: options.Index().SetName("idx_usuarios_tipo_fecha"),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("idx_usuarios_email"),
		},
	}
}

func docentesIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "fechaCreacion", Value: -1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_docentes_fecha_id"),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("idx_docentes_email"),
		},
	}
}

func administradoresIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("idx_administradores_email"),
		},
	}
}

func auditoriaIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_auditoria_timestamp"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_auditoria_user_timestamp"),
		},
		{
			Keys: bson.D{
				{Key: "category", Value: 1},
				{Key: "event_type", Value: 1},
				{Key: "timestamp", Value: -1},
			},
			Options: options.Index().SetName("idx_auditoria_category_type_timestamp"),
		},
	}
}
