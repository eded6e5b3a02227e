package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/library-seat-lease/internal/lease"
	"github.com/iliyamo/library-seat-lease/internal/middleware"
	"github.com/iliyamo/library-seat-lease/internal/model"
)

// Leaser is the lease state machine as seen by HTTP.
type Leaser interface {
	Hold(ctx context.Context, tableID string, seatIndex, ttlSec int) (lease.HoldResult, error)
	Confirm(ctx context.Context, req lease.ConfirmRequest) (lease.ConfirmResult, error)
	Release(ctx context.Context, tableID string, seatIndex int) error
	GetHold(ctx context.Context, holdID string) (model.Hold, error)
}

// LeaseHandler serves hold, confirm, release and the hold lookup.
type LeaseHandler struct {
	leases Leaser
	log    *zap.Logger
}

func NewLeaseHandler(leases Leaser, log *zap.Logger) *LeaseHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &LeaseHandler{leases: leases, log: log.Named("http")}
}

// ttlSec is advisory; zero or negative values fall back to the default
// advertised window.
type holdRequest struct {
	TableID   string `json:"tableId" validate:"required"`
	SeatIndex *int   `json:"seatIndex" validate:"required"`
	TTLSec    int    `json:"ttlSec"`
}

type confirmRequest struct {
	HoldID       string   `json:"holdId" validate:"required"`
	CourseCodes  []string `json:"courseCodes" validate:"dive,max=64"`
	TopicTags    []string `json:"topicTags" validate:"dive,max=64"`
	IsOpenToJoin bool     `json:"isOpenToJoin"`
}

// Hold handles POST /hold.
func (h *LeaseHandler) Hold(c echo.Context) error {
	var req holdRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "tableId and seatIndex are required")
	}
	res, err := h.leases.Hold(c.Request().Context(), req.TableID, *req.SeatIndex, req.TTLSec)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Confirm handles POST /confirm.  The identified caller, if any, becomes
// the occupant of the seat.
func (h *LeaseHandler) Confirm(c echo.Context) error {
	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "holdId is required")
	}
	res, err := h.leases.Confirm(c.Request().Context(), lease.ConfirmRequest{
		HoldID:         req.HoldID,
		CourseCodes:    req.CourseCodes,
		TopicTags:      req.TopicTags,
		IsOpenToJoin:   req.IsOpenToJoin,
		OccupantUserID: middleware.UserID(c),
	})
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "tableId": res.TableID, "seatIndex": res.SeatIndex})
}

// Release handles POST /release/:tableId/:seatIndex.
func (h *LeaseHandler) Release(c echo.Context) error {
	seatIndex, err := strconv.Atoi(c.Param("seatIndex"))
	if err != nil {
		return badRequest(c, "invalid seat index")
	}
	if err := h.leases.Release(c.Request().Context(), c.Param("tableId"), seatIndex); err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// GetHold handles GET /holds/:holdId.
func (h *LeaseHandler) GetHold(c echo.Context) error {
	hold, err := h.leases.GetHold(c.Request().Context(), c.Param("holdId"))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, hold)
}
