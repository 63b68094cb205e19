// internal/app/features/auditlog/list.go
package auditlog

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	uierrors "github.com/dalemusser/classhub/internal/app/features/errors"
	"github.com/dalemusser/classhub/internal/app/store/audit"
	"github.com/dalemusser/classhub/internal/app/system/backend"
	"github.com/dalemusser/classhub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

const (
	defaultLimit = 100
	maxLimit     = 500
)

type listResponse struct {
	Success bool          `json:"success"`
	Eventos []audit.Event `json:"eventos"`
}

// ServeList handles GET /api/admin/audit.
//
//	?category=auth|admin &type=<event_type> &user=<uid> &limit=<1..500>
//
// Events come back most recent first.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		Category:  strings.TrimSpace(q.Get("category")),
		EventType: strings.TrimSpace(q.Get("type")),
		UserID:    strings.TrimSpace(q.Get("user")),
		Limit:     defaultLimit,
	}
	switch filter.Category {
	case "", audit.CategoryAuth, audit.CategoryAdmin:
	default:
		h.ErrLog.LogBadRequest(w, r, "unknown audit category", nil, "")
		return
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxLimit {
			h.ErrLog.LogBadRequest(w, r, "bad audit limit", err, "")
			return
		}
		filter.Limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	clients, err := h.Session.Ready(ctx)
	if err == nil && clients.Store == nil {
		err = backend.ErrIncomplete
	}
	if err != nil {
		h.ErrLog.Respond(w, r, "audit log list", err)
		return
	}

	events, err := audit.New(clients.Store).Query(ctx, filter)
	if err != nil {
		h.Log.Error("failed to query audit events", zap.Error(err))
		h.ErrLog.Respond(w, r, "audit log list", err)
		return
	}

	uierrors.JSON(w, http.StatusOK, listResponse{Success: true, Eventos: events})
}
