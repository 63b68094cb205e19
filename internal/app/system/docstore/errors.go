package docstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned (wrapped) when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Error codes shared by every store implementation.
const (
	CodeNotFound         = "not-found"
	CodeAlreadyExists    = "already-exists"
	CodePermissionDenied = "permission-denied"
	CodeUnavailable      = "unavailable"
	CodeInvalidArgument  = "invalid-argument"
	CodeUnknown          = "unknown"
)

// Error is a classified store failure.
type Error struct {
	Code string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("docstore %s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("docstore %s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound builds the not-found error for op.
func NotFound(op string) error {
	return &Error{Code: CodeNotFound, Op: op, Err: ErrNotFound}
}

// CodeOf classifies err. It returns "" for nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	if errors.Is(err, ErrNotFound) {
		return CodeNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CodeUnavailable
	}
	return CodeUnknown
}

// IsNotFound reports whether err means the document does not exist.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}
