// internal/app/store/audit/store.go
package audit

import (
	"context"
	"time"

	"github.com/dalemusser/classhub/internal/app/system/docstore"
)

// Collection holds one document per audit event.
const Collection = "auditoria"

// Event categories
const (
	CategoryAuth  = "auth"
	CategoryAdmin = "admin"
)

// Auth event types
const (
	EventLoginSuccess     = "login_success"
	EventLoginFailed      = "login_failed"
	EventLoginRateLimited = "login_failed_rate_limit"
	EventLogout           = "logout"
	EventAccountCreated   = "account_created"
)

// Admin event types
const (
	EventTeacherCreated  = "teacher_created"
	EventTeacherUpdated  = "teacher_updated"
	EventTeacherDisabled = "teacher_disabled"
	EventTeacherEnabled  = "teacher_enabled"
	EventUserDeleted     = "user_deleted"
	EventCourseDeleted   = "course_deleted"
)

// Event represents an audit event.
type Event struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`

	// Event classification
	Category  string `bson:"category" json:"category"`
	EventType string `bson:"event_type" json:"eventType"`

	// Who
	UserID  string `bson:"user_id,omitempty" json:"userId,omitempty"`   // affected user
	ActorID string `bson:"actor_id,omitempty" json:"actorId,omitempty"` // who performed the action

	// Context
	IP        string `bson:"ip" json:"ip"`
	UserAgent string `bson:"user_agent,omitempty" json:"userAgent,omitempty"`

	// Outcome
	Success       bool   `bson:"success" json:"success"`
	FailureReason string `bson:"failure_reason,omitempty" json:"failureReason,omitempty"`

	// Additional details (varies by event type)
	Details map[string]string `bson:"details,omitempty" json:"details,omitempty"`
}

// Filter selects events. Empty fields match everything.
type Filter struct {
	UserID    string
	Category  string
	EventType string
	Limit     int // default 100
}

// Store manages audit event records.
type Store struct {
	c docstore.Collection
}

// New creates a new audit Store on ds.
func New(ds docstore.Store) *Store {
	return &Store{c: ds.Collection(Collection)}
}

// Log records an audit event. A zero Timestamp is set by the store.
func (s *Store) Log(ctx context.Context, event Event) (string, error) {
	fields, err := docstore.ToFields(event)
	if err != nil {
		return "", err
	}
	if event.Timestamp.IsZero() {
		fields["timestamp"] = docstore.ServerTimestamp
	}
	return s.c.Add(ctx, fields)
}

// Query returns the events matching f, most recent first.
func (s *Store) Query(ctx context.Context, f Filter) ([]Event, error) {
	q := docstore.Query{OrderBy: "timestamp", Desc: true}
	if f.UserID != "" {
		q.Filters = append(q.Filters, docstore.Eq("user_id", f.UserID))
	}
	if f.Category != "" {
		q.Filters = append(q.Filters, docstore.Eq("category", f.Category))
	}
	if f.EventType != "" {
		q.Filters = append(q.Filters, docstore.Eq("event_type", f.EventType))
	}

	docs, err := s.c.Find(ctx, q)
	if err != nil {
		return nil, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	events := make([]Event, 0, min(len(docs), limit))
	for _, d := range docs {
		if len(events) == limit {
			break
		}
		var e Event
		if err := d.Decode(&e); err != nil {
			return nil, err
		}
		e.ID = d.ID
		events = append(events, e)
	}
	return events, nil
}

// GetRecent retrieves the most recent audit events.
func (s *Store) GetRecent(ctx context.Context, limit int) ([]Event, error) {
	return s.Query(ctx, Filter{Limit: limit})
}
