// internal/app/features/auditlog/handler.go
package auditlog

import (
	uierrors "github.com/dalemusser/classhub/internal/app/features/errors"
	"github.com/dalemusser/classhub/internal/app/system/backend"
	"go.uber.org/zap"
)

type Handler struct {
	Session *backend.Session
	Log     *zap.Logger
	ErrLog  *uierrors.ErrorLogger
}

// NewHandler constructs an Audit Log feature handler reading the
// auditoria collection through session.
func NewHandler(session *backend.Session, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Session: session,
		Log:     logger,
		ErrLog:  errLog,
	}
}
