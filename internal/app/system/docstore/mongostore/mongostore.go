// Package mongostore implements docstore.Store on MongoDB. Documents keep a
// string _id; ids minted by Add are ObjectID hex strings.
package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/classhub/internal/app/system/docstore"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Store is a docstore.Store backed by one MongoDB database.
type Store struct {
	db       *mongo.Database
	notifier docstore.Notifier
	now      func() time.Time
	log      *zap.Logger
}

// New wraps db. Writes are announced on notifier so Watch subscribers in
// this process (or, with a Redis notifier, in any process) refresh.
func New(db *mongo.Database, notifier docstore.Notifier, logger *zap.Logger) *Store {
	if notifier == nil {
		notifier = docstore.NewLocalNotifier()
	}
	return &Store{db: db, notifier: notifier, now: time.Now, log: logger}
}

func (s *Store) Collection(name string) docstore.Collection {
	return &collection{s: s, c: s.db.Collection(name)}
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Client().Ping(ctx, readpref.Primary()); err != nil {
		return classify("ping", err)
	}
	return nil
}

type collection struct {
	s *Store
	c *mongo.Collection
}

func (c *collection) Name() string { return c.c.Name() }

func (c *collection) Get(ctx context.Context, id string) (docstore.Document, error) {
	raw, err := c.c.FindOne(ctx, bson.M{"_id": id}).Raw()
	if err != nil {
		return docstore.Document{}, classify("get", err)
	}
	return docstore.NewDocument(id, raw), nil
}

func (c *collection) Set(ctx context.Context, id string, fields bson.M) error {
	doc := docstore.ResolveTimestamps(fields, c.s.now())
	doc["_id"] = id
	_, err := c.c.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return classify("set", err)
	}
	c.publish(ctx)
	return nil
}

func (c *collection) Add(ctx context.Context, fields bson.M) (string, error) {
	id := primitive.NewObjectID().Hex()
	doc := docstore.ResolveTimestamps(fields, c.s.now())
	doc["_id"] = id
	if _, err := c.c.InsertOne(ctx, doc); err != nil {
		return "", classify("add", err)
	}
	c.publish(ctx)
	return id, nil
}

func (c *collection) Update(ctx context.Context, id string, patch bson.M) error {
	set := docstore.ResolveTimestamps(patch, c.s.now())
	delete(set, "_id")
	res, err := c.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return classify("update", err)
	}
	if res.MatchedCount == 0 {
		return docstore.NotFound("update")
	}
	c.publish(ctx)
	return nil
}

func (c *collection) Delete(ctx context.Context, id string) error {
	if _, err := c.c.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return classify("delete", err)
	}
	c.publish(ctx)
	return nil
}

func (c *collection) Find(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	filter := bson.D{}
	for _, f := range q.Filters {
		filter = append(filter, bson.E{Key: f.Field, Value: f.Value})
	}

	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Desc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}, {Key: "_id", Value: 1}})
	}

	cur, err := c.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, classify("find", err)
	}
	defer cur.Close(ctx)

	var out []docstore.Document
	for cur.Next(ctx) {
		raw := make(bson.Raw, len(cur.Current))
		copy(raw, cur.Current)
		out = append(out, docstore.NewDocument(docID(raw), raw))
	}
	if err := cur.Err(); err != nil {
		return nil, classify("find", err)
	}
	return out, nil
}

func (c *collection) Watch(ctx context.Context, q docstore.Query, fn func([]docstore.Document, error)) func() {
	return docstore.WatchQuery(ctx, c, c.s.notifier, q, fn)
}

func (c *collection) publish(ctx context.Context) {
	if err := c.s.notifier.Publish(context.WithoutCancel(ctx), c.c.Name()); err != nil && c.s.log != nil {
		c.s.log.Warn("change notification failed",
			zap.String("collection", c.c.Name()),
			zap.Error(err))
	}
}

// docID reads _id as a string, accepting ObjectIDs written by older tools.
func docID(raw bson.Raw) string {
	v := raw.Lookup("_id")
	if s, ok := v.StringValueOK(); ok {
		return s
	}
	if oid, ok := v.ObjectIDOK(); ok {
		return oid.Hex()
	}
	return ""
}

// MongoDB error codes we surface as permission-denied.
const (
	codeUnauthorized         = 13
	codeAuthenticationFailed = 18
)

func classify(op string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return docstore.NotFound(op)
	case wafflemongo.IsDup(err):
		return &docstore.Error{Code: docstore.CodeAlreadyExists, Op: op, Err: err}
	case mongo.IsTimeout(err), mongo.IsNetworkError(err),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, mongo.ErrClientDisconnected):
		return &docstore.Error{Code: docstore.CodeUnavailable, Op: op, Err: err}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == codeUnauthorized || ce.Code == codeAuthenticationFailed) {
		return &docstore.Error{Code: docstore.CodePermissionDenied, Op: op, Err: err}
	}
	return &docstore.Error{Code: docstore.CodeUnknown, Op: op, Err: err}
}
