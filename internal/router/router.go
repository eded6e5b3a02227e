// Package router registers the HTTP routes of the seat lease service.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/library-seat-lease/internal/handler"
)

// Routes bundles the handlers and the per-group middleware.
type Routes struct {
	Health *handler.HealthHandler
	Lease  *handler.LeaseHandler
	Floor  *handler.FloorHandler

	// Reads are served through ReadMiddleware (response cache), writes
	// through WriteMiddleware (rate limiting).
	ReadMiddleware  []echo.MiddlewareFunc
	WriteMiddleware []echo.MiddlewareFunc
}

// RegisterRoutes maps every endpoint onto e.
func RegisterRoutes(e *echo.Echo, r Routes) {
	e.GET("/health", r.Health.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/floor/:floorId/tables", r.Floor.ListFloor, r.ReadMiddleware...)
	e.GET("/match", r.Floor.Match, r.ReadMiddleware...)

	// hold state is read back right after writes; never cached
	e.GET("/holds/:holdId", r.Lease.GetHold)

	e.POST("/hold", r.Lease.Hold, r.WriteMiddleware...)
	e.POST("/confirm", r.Lease.Confirm, r.WriteMiddleware...)
	e.POST("/release/:tableId/:seatIndex", r.Lease.Release, r.WriteMiddleware...)
}
