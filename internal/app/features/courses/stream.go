// internal/app/features/courses/stream.go
package courses

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dalemusser/classhub/internal/domain/models"
	"go.uber.org/zap"
)

// ServeStream handles GET /api/courses/stream. It sends the full course
// list as a Server-Sent Event named "cursos" on connect and after every
// change. Only the latest list is kept while the client is slow.
func (h *Handler) ServeStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.ErrLog.LogServerError(w, r, "stream: response writer cannot flush", nil, "")
		return
	}

	updates := make(chan []models.Course, 1)
	stop, err := h.Courses.Subscribe(r.Context(), func(cs []models.Course) {
		select {
		case <-updates:
		default:
		}
		updates <- cs
	})
	if err != nil {
		h.ErrLog.Respond(w, r, "stream courses", err)
		return
	}
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case cs := <-updates:
			data, err := json.Marshal(cs)
			if err != nil {
				h.Log.Error("stream: encode courses", zap.Error(err))
				return
			}
			if _, err := fmt.Fprintf(w, "event: cursos\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
