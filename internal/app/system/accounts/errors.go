package accounts

import (
	"errors"
	"strings"

	"github.com/dalemusser/classhub/internal/app/system/docstore"
	"github.com/dalemusser/classhub/internal/app/system/i18n"
	"github.com/dalemusser/classhub/internal/app/system/identity"
)

// Codes raised by the facade itself. Identity failures keep the identity
// service's code.
const (
	CodePasswordRequired = "password-required"
	CodeAuthUnavailable  = "auth-unavailable"
	CodeUnknown          = "unknown"
)

var (
	// ErrAuthUnavailable is in the chain of every error raised because the
	// identity service could not be reached.
	ErrAuthUnavailable = errors.New("auth unavailable")

	// ErrSessionEnded is returned by CheckSession for a session that may no
	// longer be used.
	ErrSessionEnded = errors.New("session ended")
)

// messageIDs maps known codes to catalog entries.
var messageIDs = map[string]string{
	identity.CodeEmailAlreadyInUse:    "auth.email_already_in_use",
	identity.CodeWeakPassword:         "auth.weak_password",
	identity.CodeInvalidEmail:         "auth.invalid_email",
	identity.CodeOperationNotAllowed:  "auth.operation_not_allowed",
	identity.CodeUserNotFound:         "auth.user_not_found",
	identity.CodeWrongPassword:        "auth.wrong_password",
	identity.CodeUserDisabled:         "auth.user_disabled",
	identity.CodeTooManyRequests:      "auth.too_many_requests",
	identity.CodeNetworkRequestFailed: "auth.network_request_failed",
	identity.CodeAPIKeyNotValid:       "auth.api_key_not_valid",
	identity.CodeInvalidIDToken:       "auth.invalid_id_token",
	CodePasswordRequired:              "auth.password_required",
	CodeAuthUnavailable:               "auth.unavailable",
}

// Error is a failed facade operation. Message is already localized in the
// facade's language; Localize renders it in another.
type Error struct {
	Code    string
	Message string
	Err     error

	detail string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Localize renders the error with tr.
func (e *Error) Localize(tr *i18n.Translator) string {
	return render(tr, e.Code, e.detail)
}

// CodeOf returns the facade code of err, or "" when err is not an *Error.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

func render(tr *i18n.Translator, code, detail string) string {
	if id, ok := messageIDs[code]; ok {
		return tr.T(id)
	}
	return tr.Tf("auth.unknown", map[string]any{"Code": code, "Message": detail})
}

func (s *Service) fail(code string, err error) *Error {
	detail := ""
	if err != nil {
		detail = err.Error()
		var ie *identity.Error
		if errors.As(err, &ie) && ie.Message != "" {
			detail = ie.Message
		}
	}
	return &Error{Code: code, Message: render(s.tr, code, detail), Err: err, detail: detail}
}

// authError classifies an identity failure.
func (s *Service) authError(err error) *Error {
	code := identity.CodeOf(err)
	if code == "" {
		code = CodeUnknown
	}
	return s.fail(code, err)
}

func (s *Service) unavailable(err error) *Error {
	if err == nil {
		err = ErrAuthUnavailable
	} else {
		err = errors.Join(ErrAuthUnavailable, err)
	}
	return s.fail(CodeAuthUnavailable, err)
}

// storeWarning turns a profile write failure into the warning text of a
// successful registration.
func (s *Service) storeWarning(err error) string {
	msg := s.tr.T("auth.profile_not_saved")
	switch docstore.CodeOf(err) {
	case docstore.CodePermissionDenied:
		return msg + ". " + s.tr.T("store.permission_denied")
	case docstore.CodeUnavailable:
		return msg + ". " + s.tr.T("store.unavailable")
	}
	var de *docstore.Error
	detail := err.Error()
	if errors.As(err, &de) && de.Err != nil {
		detail = de.Err.Error()
	}
	return msg + ". " + s.tr.Tf("store.unknown", map[string]any{
		"Code":    docstore.CodeOf(err),
		"Message": strings.TrimSpace(detail),
	})
}
