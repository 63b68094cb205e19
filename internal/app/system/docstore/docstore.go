// Package docstore is the document database the portal talks to: named
// collections of schema-less documents keyed by string ids, queried by
// equality filters with optional ordering, and observable for changes.
//
// Two implementations exist. mongostore backs production; memstore backs
// tests and the --memory development mode. Both resolve the ServerTimestamp
// sentinel to the store's clock at write time.
package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Store hands out collections.
type Store interface {
	Collection(name string) Collection
	Ping(ctx context.Context) error
}

// Collection is one named set of documents.
//
// Get, Update and Find report ErrNotFound (wrapped in *Error) for missing
// documents. Delete is unconditional and succeeds for absent ids.
type Collection interface {
	Name() string
	Get(ctx context.Context, id string) (Document, error)
	Set(ctx context.Context, id string, fields bson.M) error
	Add(ctx context.Context, fields bson.M) (string, error)
	Update(ctx context.Context, id string, patch bson.M) error
	Delete(ctx context.Context, id string) error
	Find(ctx context.Context, q Query) ([]Document, error)

	// Watch calls fn with the result of q now and after every change to the
	// collection until the returned stop function is called or ctx ends.
	// A failed query is reported as (nil, err).
	Watch(ctx context.Context, q Query, fn func([]Document, error)) (stop func())
}

// Filter is an equality match on a top-level field.
type Filter struct {
	Field string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Query selects documents. OrderBy is optional; an empty OrderBy leaves the
// order to the store.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
}

// Document is one stored document.
type Document struct {
	ID  string
	raw bson.Raw
}

// NewDocument wraps raw BSON read from a store.
func NewDocument(id string, raw bson.Raw) Document {
	return Document{ID: id, raw: raw}
}

// Decode unmarshals the document into v.
func (d Document) Decode(v any) error {
	if len(d.raw) == 0 {
		return &Error{Code: CodeNotFound, Op: "decode", Err: ErrNotFound}
	}
	return bson.Unmarshal(d.raw, v)
}

type serverTimestamp struct{}

// ServerTimestamp is replaced with the store's clock when a write lands.
var ServerTimestamp any = serverTimestamp{}

// ToFields converts a bson-tagged struct into a field map suitable for Set
// and Add. The _id field is dropped; ids are passed separately.
func ToFields(v any) (bson.M, error) {
	b, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	var m bson.M
	if err := bson.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshal %T: %w", v, err)
	}
	delete(m, "_id")
	return m, nil
}

// ResolveTimestamps returns a copy of fields with every ServerTimestamp
// replaced by now, truncated to the millisecond precision stores keep.
func ResolveTimestamps(fields bson.M, now time.Time) bson.M {
	ts := now.UTC().Truncate(time.Millisecond)
	out := make(bson.M, len(fields))
	for k, v := range fields {
		if v == ServerTimestamp {
			out[k] = ts
			continue
		}
		out[k] = v
	}
	return out
}
