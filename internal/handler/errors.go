package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/library-seat-lease/internal/floor"
	"github.com/iliyamo/library-seat-lease/internal/lease"
)

// statusFor maps lease and floor errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lease.ErrTableNotFound), errors.Is(err, lease.ErrHoldNotFound):
		return http.StatusNotFound
	case errors.Is(err, lease.ErrInvalidSeatIndex):
		return http.StatusBadRequest
	case errors.Is(err, lease.ErrSeatConflict):
		return http.StatusConflict
	case errors.Is(err, lease.ErrHoldGone):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {"error": "..."}.  Internal errors are logged and
// reported without detail.
func fail(c echo.Context, log *zap.Logger, err error) error {
	status := statusFor(err)
	if status != http.StatusInternalServerError {
		return c.JSON(status, echo.Map{"error": err.Error()})
	}
	msg := "internal error"
	if errors.Is(err, floor.ErrStoreUnavailable) {
		msg = floor.ErrStoreUnavailable.Error()
	}
	log.Error("request failed", zap.String("method", c.Request().Method),
		zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(status, echo.Map{"error": msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}
