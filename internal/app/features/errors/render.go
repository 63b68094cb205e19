// internal/app/features/errors/render.go
package errors

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
)

// ErrNotJSON is returned by DecodeJSON for a body that is not declared as
// application/json.
var ErrNotJSON = errors.New("request body is not application/json")

// Envelope is the body of every failed API response.
type Envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// JSON writes v with status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Fail writes {"success":false,"error":msg}.
func Fail(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, Envelope{Success: false, Error: msg})
}

// RenderUnauthorized answers 401 with the localized "sign in" message.
func (l *ErrorLogger) RenderUnauthorized(w http.ResponseWriter, r *http.Request) {
	Fail(w, http.StatusUnauthorized, l.Translator(r).T("auth.not_signed_in"))
}

// RenderForbidden answers 403 with the localized "not allowed" message.
func (l *ErrorLogger) RenderForbidden(w http.ResponseWriter, r *http.Request) {
	Fail(w, http.StatusForbidden, l.Translator(r).T("auth.forbidden"))
}

// DecodeJSON reads the request body into v. An empty body leaves v
// untouched. A non-empty body must be sent as application/json. Bodies are
// capped at 1 MiB.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return nil
	}
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		return ErrNotJSON
	}
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
