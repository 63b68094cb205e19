// internal/app/features/errors/errors.go
package errors

import (
	"errors"
	"net/http"

	coursestore "github.com/dalemusser/classhub/internal/app/store/courses"
	profilestore "github.com/dalemusser/classhub/internal/app/store/profiles"
	"github.com/dalemusser/classhub/internal/app/system/accounts"
	"github.com/dalemusser/classhub/internal/app/system/backend"
	"github.com/dalemusser/classhub/internal/app/system/docstore"
	"github.com/dalemusser/classhub/internal/app/system/i18n"
	"github.com/dalemusser/classhub/internal/app/system/identity"
	"go.uber.org/zap"
)

// ErrorLogger logs handler failures and writes the matching JSON error
// response in the caller's language.
type ErrorLogger struct {
	log *zap.Logger
	tr  *i18n.Translator
}

// NewErrorLogger builds an ErrorLogger. A nil translator uses the default
// catalog.
func NewErrorLogger(logger *zap.Logger, tr *i18n.Translator) *ErrorLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tr == nil {
		tr = i18n.Default()
	}
	return &ErrorLogger{log: logger, tr: tr}
}

// Translator returns the catalog for the request's Accept-Language.
func (l *ErrorLogger) Translator(r *http.Request) *i18n.Translator {
	return l.tr.For(r.Header.Get("Accept-Language"))
}

// LogBadRequest logs at info level and answers 400 with userMsg.
func (l *ErrorLogger) LogBadRequest(w http.ResponseWriter, r *http.Request, msg string, err error, userMsg string) {
	l.log.Info(msg,
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	if errors.Is(err, ErrNotJSON) {
		Fail(w, http.StatusUnsupportedMediaType, l.Translator(r).T("http.unsupported_media_type"))
		return
	}
	if userMsg == "" {
		userMsg = l.Translator(r).T("http.bad_request")
	}
	Fail(w, http.StatusBadRequest, userMsg)
}

// LogServerError logs at error level and answers 500 with userMsg.
func (l *ErrorLogger) LogServerError(w http.ResponseWriter, r *http.Request, msg string, err error, userMsg string) {
	l.log.Error(msg,
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	if userMsg == "" {
		userMsg = l.Translator(r).T("http.internal")
	}
	Fail(w, http.StatusInternalServerError, userMsg)
}

// Respond classifies err, logs it and writes the error response. Expected
// failures (validation, not found, wrong password) are logged at info
// level; availability problems at warn; anything unclassified goes through
// LogServerError.
func (l *ErrorLogger) Respond(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg, ok := Classify(l.Translator(r), err)
	if !ok {
		l.LogServerError(w, r, op, err, "")
		return
	}
	fields := []zap.Field{
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError || status == http.StatusForbidden {
		l.log.Warn("request failed", fields...)
	} else {
		l.log.Info("request rejected", fields...)
	}
	Fail(w, status, msg)
}

// Classify maps a service error to an HTTP status and a localized message.
// ok is false when err is not one of the known failures.
func Classify(tr *i18n.Translator, err error) (status int, msg string, ok bool) {
	var ae *accounts.Error
	if errors.As(err, &ae) {
		return accountStatus(ae.Code), ae.Localize(tr), true
	}

	switch {
	case errors.Is(err, coursestore.ErrNotFound):
		return http.StatusNotFound, tr.T("courses.not_found"), true
	case errors.Is(err, coursestore.ErrIDRequired):
		return http.StatusBadRequest, tr.T("courses.id_required"), true
	case errors.Is(err, coursestore.ErrNameAndTeacherRequired):
		return http.StatusBadRequest, tr.T("courses.name_and_teacher_required"), true
	case errors.Is(err, coursestore.ErrAlreadyEnrolled):
		return http.StatusConflict, tr.T("courses.already_enrolled"), true
	case errors.Is(err, coursestore.ErrInvalidState):
		return http.StatusBadRequest, tr.T("courses.invalid_state"), true
	case errors.Is(err, coursestore.ErrInvalidLevel):
		return http.StatusBadRequest, tr.T("courses.invalid_level"), true
	case errors.Is(err, coursestore.ErrPermissionDenied):
		return http.StatusForbidden, tr.T("store.permission_denied"), true
	case errors.Is(err, coursestore.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, tr.T("courses.store_unavailable"), true
	case errors.Is(err, profilestore.ErrNotFound):
		return http.StatusNotFound, tr.T("profiles.not_found"), true
	case errors.Is(err, profilestore.ErrBadStatus):
		return http.StatusBadRequest, tr.T("profiles.invalid_status"), true
	case errors.Is(err, profilestore.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, tr.T("store.unavailable"), true
	}

	var be *backend.Error
	if errors.As(err, &be) {
		if be.ErrorCode == backend.CodeSDKIncomplete {
			return http.StatusServiceUnavailable, tr.T("backend.sdk_incomplete"), true
		}
		return http.StatusServiceUnavailable, tr.T("backend.sdk_not_loaded"), true
	}

	switch docstore.CodeOf(err) {
	case docstore.CodeNotFound:
		return http.StatusNotFound, tr.T("http.not_found"), true
	case docstore.CodePermissionDenied:
		return http.StatusForbidden, tr.T("store.permission_denied"), true
	case docstore.CodeUnavailable:
		return http.StatusServiceUnavailable, tr.T("store.unavailable"), true
	}
	return 0, "", false
}

func accountStatus(code string) int {
	switch code {
	case accounts.CodeAuthUnavailable, identity.CodeNetworkRequestFailed:
		return http.StatusServiceUnavailable
	case identity.CodeEmailAlreadyInUse:
		return http.StatusConflict
	case identity.CodeUserNotFound, identity.CodeWrongPassword, identity.CodeInvalidIDToken:
		return http.StatusUnauthorized
	case identity.CodeUserDisabled, identity.CodeOperationNotAllowed:
		return http.StatusForbidden
	case identity.CodeTooManyRequests:
		return http.StatusTooManyRequests
	case accounts.CodeUnknown, identity.CodeInternal, identity.CodeAPIKeyNotValid:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
