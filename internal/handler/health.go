package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/library-seat-lease/internal/lease"
)

// Sweeper runs one expiry pass.
type Sweeper interface {
	Sweep(ctx context.Context) (lease.SweepReport, error)
}

// HealthHandler answers liveness probes.  Each probe also runs a sweep so
// abandoned holds are reclaimed even when the background sweeper is off.
type HealthHandler struct {
	sweeper Sweeper
	log     *zap.Logger
}

func NewHealthHandler(sweeper Sweeper, log *zap.Logger) *HealthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &HealthHandler{sweeper: sweeper, log: log.Named("health")}
}

// Health handles GET /health.  It always answers 200 {"ok": true}; sweep
// failures are only logged.
func (h *HealthHandler) Health(c echo.Context) error {
	if h.sweeper != nil {
		if _, err := h.sweeper.Sweep(c.Request().Context()); err != nil {
			h.log.Warn("sweep during health check failed", zap.Error(err))
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}
