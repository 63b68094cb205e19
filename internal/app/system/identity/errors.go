package identity

import (
	"errors"
	"fmt"
)

// Error codes. The set is closed: callers translate these into user-facing
// text and treat anything else as an unknown failure.
const (
	CodeEmailAlreadyInUse    = "email-already-in-use"
	CodeWeakPassword         = "weak-password"
	CodeInvalidEmail         = "invalid-email"
	CodeOperationNotAllowed  = "operation-not-allowed"
	CodeUserNotFound         = "user-not-found"
	CodeWrongPassword        = "wrong-password"
	CodeUserDisabled         = "user-disabled"
	CodeTooManyRequests      = "too-many-requests"
	CodeNetworkRequestFailed = "network-request-failed"
	CodeAPIKeyNotValid       = "api-key-not-valid"
	CodeInvalidIDToken       = "invalid-id-token"
	CodeInternal             = "internal-error"
)

// Error is an identity failure with a stable code.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return "identity: " + e.Code
	}
	return fmt.Sprintf("identity: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// CodeOf returns the identity code carried by err, or "" when err is not an
// identity error.
func CodeOf(err error) string {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}
