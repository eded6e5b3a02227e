package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/library-seat-lease/internal/match"
	"github.com/iliyamo/library-seat-lease/internal/model"
)

// TableLister is the floor read path.
type TableLister interface {
	ListByFloor(ctx context.Context, floorID string) ([]model.Table, error)
	ListAll(ctx context.Context) ([]model.Table, error)
}

// FloorHandler serves table listings.
type FloorHandler struct {
	tables TableLister
	log    *zap.Logger
}

func NewFloorHandler(tables TableLister, log *zap.Logger) *FloorHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &FloorHandler{tables: tables, log: log.Named("http")}
}

// ListFloor handles GET /floor/:floorId/tables.
func (h *FloorHandler) ListFloor(c echo.Context) error {
	tables, err := h.tables.ListByFloor(c.Request().Context(), c.Param("floorId"))
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, tables)
}

// Match handles GET /match?floorId=&courses=&openOnly=.  Without floorId
// every floor is searched.  openOnly defaults to true.
func (h *FloorHandler) Match(c echo.Context) error {
	openOnly := true
	if v := c.QueryParam("openOnly"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return badRequest(c, "openOnly must be a boolean")
		}
		openOnly = b
	}
	courses := match.ParseCourses(c.QueryParams()["courses"])

	ctx := c.Request().Context()
	var (
		tables []model.Table
		err    error
	)
	if floorID := c.QueryParam("floorId"); floorID != "" {
		tables, err = h.tables.ListByFloor(ctx, floorID)
	} else {
		tables, err = h.tables.ListAll(ctx)
	}
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, match.Match(tables, openOnly, courses))
}
