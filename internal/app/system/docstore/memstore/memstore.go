// Package memstore is an in-process docstore.Store. It keeps each document as
// marshaled BSON so reads return copies and field types match what MongoDB
// would hand back.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/classhub/internal/app/system/docstore"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// Fault lets tests make an operation fail. It is called before every
// operation with the op name ("get", "set", "add", "update", "delete",
// "find") and the collection; a non-nil return aborts the operation.
type Fault func(op, collection string) error

// Store is a docstore.Store held in memory.
type Store struct {
	mu    sync.RWMutex
	colls map[string]map[string]bson.Raw

	notifier docstore.Notifier
	now      func() time.Time
	fault    Fault
	log      *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for ServerTimestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithNotifier sets the change notifier used by Watch.
func WithNotifier(n docstore.Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithLogger sets the logger that reports failed change notifications.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		colls:    make(map[string]map[string]bson.Raw),
		notifier: docstore.NewLocalNotifier(),
		now:      time.Now,
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetFault installs (or, with nil, removes) a fault hook.
func (s *Store) SetFault(f Fault) {
	s.mu.Lock()
	s.fault = f
	s.mu.Unlock()
}

func (s *Store) Collection(name string) docstore.Collection {
	return &collection{s: s, name: name}
}

func (s *Store) Ping(context.Context) error { return nil }

// Len returns the number of documents in a collection.
func (s *Store) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.colls[name])
}

func (s *Store) check(ctx context.Context, op, coll string) error {
	if err := ctx.Err(); err != nil {
		return &docstore.Error{Code: docstore.CodeUnavailable, Op: op, Err: err}
	}
	s.mu.RLock()
	f := s.fault
	s.mu.RUnlock()
	if f == nil {
		return nil
	}
	if err := f(op, coll); err != nil {
		if docstore.CodeOf(err) == docstore.CodeUnknown {
			return &docstore.Error{Code: docstore.CodeUnknown, Op: op, Err: err}
		}
		return err
	}
	return nil
}

type collection struct {
	s    *Store
	name string
}

func (c *collection) Name() string { return c.name }

func (c *collection) Get(ctx context.Context, id string) (docstore.Document, error) {
	if err := c.s.check(ctx, "get", c.name); err != nil {
		return docstore.Document{}, err
	}
	c.s.mu.RLock()
	raw, ok := c.s.colls[c.name][id]
	c.s.mu.RUnlock()
	if !ok {
		return docstore.Document{}, docstore.NotFound("get")
	}
	return docstore.NewDocument(id, cloneRaw(raw)), nil
}

func (c *collection) Set(ctx context.Context, id string, fields bson.M) error {
	if err := c.s.check(ctx, "set", c.name); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return &docstore.Error{Code: docstore.CodeInvalidArgument, Op: "set", Err: errEmptyID}
	}
	if err := c.put(id, fields); err != nil {
		return err
	}
	c.publish(ctx)
	return nil
}

func (c *collection) Add(ctx context.Context, fields bson.M) (string, error) {
	if err := c.s.check(ctx, "add", c.name); err != nil {
		return "", err
	}
	id := newID()
	if err := c.put(id, fields); err != nil {
		return "", err
	}
	c.publish(ctx)
	return id, nil
}

func (c *collection) Update(ctx context.Context, id string, patch bson.M) error {
	if err := c.s.check(ctx, "update", c.name); err != nil {
		return err
	}

	c.s.mu.Lock()
	raw, ok := c.s.colls[c.name][id]
	if !ok {
		c.s.mu.Unlock()
		return docstore.NotFound("update")
	}
	var current bson.M
	if err := bson.Unmarshal(raw, &current); err != nil {
		c.s.mu.Unlock()
		return &docstore.Error{Code: docstore.CodeUnknown, Op: "update", Err: err}
	}
	for k, v := range docstore.ResolveTimestamps(patch, c.s.now()) {
		if k == "_id" {
			continue
		}
		current[k] = v
	}
	next, err := bson.Marshal(current)
	if err != nil {
		c.s.mu.Unlock()
		return &docstore.Error{Code: docstore.CodeInvalidArgument, Op: "update", Err: err}
	}
	c.s.colls[c.name][id] = next
	c.s.mu.Unlock()

	c.publish(ctx)
	return nil
}

func (c *collection) Delete(ctx context.Context, id string) error {
	if err := c.s.check(ctx, "delete", c.name); err != nil {
		return err
	}
	c.s.mu.Lock()
	delete(c.s.colls[c.name], id)
	c.s.mu.Unlock()
	c.publish(ctx)
	return nil
}

func (c *collection) Find(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := c.s.check(ctx, "find", c.name); err != nil {
		return nil, err
	}

	filters := make([]docstore.Filter, len(q.Filters))
	for i, f := range q.Filters {
		filters[i] = docstore.Filter{Field: f.Field, Value: normalize(f.Value)}
	}

	type row struct {
		doc    docstore.Document
		fields bson.M
	}

	c.s.mu.RLock()
	rows := make([]row, 0, len(c.s.colls[c.name]))
	for id, raw := range c.s.colls[c.name] {
		var m bson.M
		if err := bson.Unmarshal(raw, &m); err != nil {
			c.s.mu.RUnlock()
			return nil, &docstore.Error{Code: docstore.CodeUnknown, Op: "find", Err: err}
		}
		if !matches(m, filters) {
			continue
		}
		rows = append(rows, row{doc: docstore.NewDocument(id, cloneRaw(raw)), fields: m})
	}
	c.s.mu.RUnlock()

	// Map iteration is random; id order gives unordered queries a stable result.
	sort.Slice(rows, func(i, j int) bool { return rows[i].doc.ID < rows[j].doc.ID })
	if q.OrderBy != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			cmp := compare(rows[i].fields[q.OrderBy], rows[j].fields[q.OrderBy])
			if q.Desc {
				return cmp > 0
			}
			return cmp < 0
		})
	}

	out := make([]docstore.Document, len(rows))
	for i, r := range rows {
		out[i] = r.doc
	}
	return out, nil
}

func (c *collection) Watch(ctx context.Context, q docstore.Query, fn func([]docstore.Document, error)) func() {
	return docstore.WatchQuery(ctx, c, c.s.notifier, q, fn)
}

func (c *collection) put(id string, fields bson.M) error {
	doc := docstore.ResolveTimestamps(fields, c.s.now())
	doc["_id"] = id
	raw, err := bson.Marshal(doc)
	if err != nil {
		return &docstore.Error{Code: docstore.CodeInvalidArgument, Op: "write", Err: err}
	}

	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	coll, ok := c.s.colls[c.name]
	if !ok {
		coll = make(map[string]bson.Raw)
		c.s.colls[c.name] = coll
	}
	coll[id] = raw
	return nil
}

func (c *collection) publish(ctx context.Context) {
	if err := c.s.notifier.Publish(context.WithoutCancel(ctx), c.name); err != nil {
		c.s.log.Warn("change notification failed",
			zap.String("collection", c.name),
			zap.Error(err))
	}
}

func cloneRaw(raw bson.Raw) bson.Raw {
	out := make(bson.Raw, len(raw))
	copy(out, raw)
	return out
}

// newID returns a random 20-character document id.
func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}
