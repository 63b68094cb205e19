// internal/app/features/static/handler.go
package static

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/dalemusser/classhub/internal/app/system/i18n"
	"go.uber.org/zap"
)

// contentTypes maps the extensions the portal ships. Anything else is
// served as application/octet-stream.
var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".js":   "text/javascript; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
}

// ContentType returns the Content-Type served for name.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Handler serves the portal's HTML/JS/CSS from a directory. Nothing is
// cached by the browser.
type Handler struct {
	Files fs.FS
	Log   *zap.Logger
	tr    *i18n.Translator
}

func NewHandler(files fs.FS, tr *i18n.Translator, logger *zap.Logger) *Handler {
	if tr == nil {
		tr = i18n.Default()
	}
	return &Handler{Files: files, Log: logger, tr: tr}
}

func noCache(h http.Header) {
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set("X-Content-Type-Options", "nosniff")
}

// Serve handles GET/HEAD for any path not claimed by the API. "/" and
// directories map to their index.html.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	noCache(w.Header())

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" {
		name = "index.html"
	}
	if !fs.ValidPath(name) {
		h.notFound(w, r)
		return
	}

	if info, err := fs.Stat(h.Files, name); err == nil && info.IsDir() {
		name = path.Join(name, "index.html")
	}

	data, err := fs.ReadFile(h.Files, name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		h.notFound(w, r)
		return
	case err != nil:
		h.Log.Error("static: read file", zap.String("name", name), zap.Error(err))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = fmt.Fprint(w, h.tr.For(r.Header.Get("Accept-Language")).T("http.internal"))
		return
	}

	w.Header().Set("Content-Type", ContentType(name))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(data)
	}
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	msg := h.tr.For(r.Header.Get("Accept-Language")).T("http.not_found")
	_, _ = fmt.Fprintf(w, "<h1>%s</h1>", msg)
}
