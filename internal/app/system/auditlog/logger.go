// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"

	"github.com/dalemusser/classhub/internal/app/store/audit"
	"github.com/dalemusser/classhub/internal/app/system/backend"
	"github.com/dalemusser/classhub/internal/app/system/ratelimit"
	"go.uber.org/zap"
)

// Destinations for a category.
const (
	DestAll = "all" // store and log
	DestDB  = "db"
	DestLog = "log"
	DestOff = "off"
)

// Config holds audit logging configuration.
type Config struct {
	// Auth controls logging for sign-in, sign-out and sign-up events.
	Auth string
	// Admin controls logging for administrator actions on teachers,
	// students and courses.
	Admin string
}

// Logger records audit events in the auditoria collection and in the
// structured log. A nil *Logger is a no-op.
type Logger struct {
	session *backend.Session
	zapLog  *zap.Logger
	config  Config
}

// New creates a Logger. The store is taken from session when an event is
// written, so events raised before the backend is ready go to the log only.
func New(session *backend.Session, zapLog *zap.Logger, config Config) *Logger {
	if zapLog == nil {
		zapLog = zap.NewNop()
	}
	return &Logger{session: session, zapLog: zapLog, config: config}
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}
	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	if event.ActorID != "" {
		fields = append(fields, zap.String("actor_id", event.ActorID))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

func (l *Logger) setting(category string) string {
	var s string
	switch category {
	case audit.CategoryAuth:
		s = l.config.Auth
	case audit.CategoryAdmin:
		s = l.config.Admin
	}
	if s == "" {
		return DestAll
	}
	return s
}

// Log records event according to the category's destination. Store
// failures are logged, never returned.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}
	dest := l.setting(event.Category)
	if dest == DestOff {
		return
	}
	if dest == DestAll || dest == DestLog {
		l.logToZap(event)
	}
	if dest != DestAll && dest != DestDB {
		return
	}

	clients, err := l.session.Ready(ctx)
	if err == nil && clients.Store == nil {
		err = backend.ErrIncomplete
	}
	if err == nil {
		_, err = audit.New(clients.Store).Log(ctx, event)
	}
	if err != nil {
		l.zapLog.Error("failed to store audit event",
			zap.Error(err),
			zap.String("event_type", event.EventType))
	}
}

func fromRequest(r *http.Request, e audit.Event) audit.Event {
	e.IP = ratelimit.ClientIP(r)
	e.UserAgent = r.UserAgent()
	return e
}

// --- Authentication Events ---

// LoginSuccess logs a successful sign-in.
func (l *Logger) LoginSuccess(ctx context.Context, r *http.Request, uid, email, role string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLoginSuccess,
		UserID:    uid,
		Success:   true,
		Details:   map[string]string{"email": email, "role": role},
	}))
}

// LoginFailed logs a refused sign-in; code is the facade error code.
func (l *Logger) LoginFailed(ctx context.Context, r *http.Request, email, code string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailed,
		FailureReason: code,
		Details:       map[string]string{"email": email},
	}))
}

// LoginRateLimited logs a sign-in refused by the rate limiter.
func (l *Logger) LoginRateLimited(ctx context.Context, r *http.Request, email string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginRateLimited,
		FailureReason: "rate limit exceeded",
		Details:       map[string]string{"email": email},
	}))
}

// Logout logs a sign-out.
func (l *Logger) Logout(ctx context.Context, r *http.Request, uid string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLogout,
		UserID:    uid,
		Success:   true,
	}))
}

// AccountCreated logs a registration. actorID is the signed-in user who
// created the account, or "" for self sign-up.
func (l *Logger) AccountCreated(ctx context.Context, r *http.Request, actorID, uid, email, role string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventAccountCreated,
		UserID:    uid,
		ActorID:   actorID,
		Success:   true,
		Details:   map[string]string{"email": email, "role": role},
	}))
}

// --- Admin Events ---

// TeacherSaved logs the creation or update of a teacher record.
func (l *Logger) TeacherSaved(ctx context.Context, r *http.Request, actorID, teacherID string, created bool) {
	typ := audit.EventTeacherUpdated
	if created {
		typ = audit.EventTeacherCreated
	}
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: typ,
		UserID:    teacherID,
		ActorID:   actorID,
		Success:   true,
	}))
}

// TeacherStatusChanged logs a teacher being enabled or disabled.
func (l *Logger) TeacherStatusChanged(ctx context.Context, r *http.Request, actorID, teacherID string, active bool) {
	typ := audit.EventTeacherDisabled
	if active {
		typ = audit.EventTeacherEnabled
	}
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: typ,
		UserID:    teacherID,
		ActorID:   actorID,
		Success:   true,
	}))
}

// UserDeleted logs the removal of a teacher or student.
func (l *Logger) UserDeleted(ctx context.Context, r *http.Request, actorID, uid, role string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventUserDeleted,
		UserID:    uid,
		ActorID:   actorID,
		Success:   true,
		Details:   map[string]string{"role": role},
	}))
}

// CourseDeleted logs the removal of a course.
func (l *Logger) CourseDeleted(ctx context.Context, r *http.Request, actorID, courseID string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventCourseDeleted,
		ActorID:   actorID,
		Success:   true,
		Details:   map[string]string{"course_id": courseID},
	}))
}
