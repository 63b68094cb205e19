// internal/app/features/health/handler.go
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dalemusser/classhub/internal/app/system/backend"
	"github.com/dalemusser/classhub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Handler holds dependencies needed for health checks.
type Handler struct {
	Session *backend.Session
	Log     *zap.Logger
}

// NewHandler constructs a health Handler with the backend session and logger.
func NewHandler(session *backend.Session, logger *zap.Logger) *Handler {
	return &Handler{
		Session: session,
		Log:     logger,
	}
}

// healthResponse is the JSON structure for the health check response.
type healthResponse struct {
	Status   string `json:"status"`
	Backend  string `json:"backend"`
	Database string `json:"database"`
	Identity string `json:"identity"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "backend":"ready", "database":"connected", "identity":"ready" }
//
// While the backend is still starting, when it failed, or when the store
// does not answer a ping: 503 with status "error" and the reason.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{
		Status:   "ok",
		Backend:  h.Session.State().String(),
		Database: "unknown",
		Identity: "unknown",
	}

	if h.Session.State() == backend.StateUninitialized {
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.Status = "error"
		resp.Message = "Backend starting"
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	clients, err := h.Session.Ready(ctx)
	if err != nil {
		h.Log.Error("health-check: backend not ready", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.Status = "error"
		resp.Message = "Backend unavailable"
		var be *backend.Error
		if errors.As(err, &be) {
			resp.Error = be.ErrorCode + ": " + be.ErrorMessage
		} else {
			resp.Error = err.Error()
		}
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	resp.Identity = "ready"
	if clients.Identity == nil {
		resp.Identity = "missing"
	}

	if clients.Store == nil {
		resp.Database = "missing"
	} else if err := clients.Store.Ping(ctx); err != nil {
		h.Log.Error("health-check: store ping failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
		resp.Error = err.Error()
		_ = json.NewEncoder(w).Encode(resp)
		return
	} else {
		resp.Database = "connected"
	}

	if resp.Identity != "ready" || resp.Database != "connected" {
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.Status = "degraded"
	}
	_ = json.NewEncoder(w).Encode(resp)
}
