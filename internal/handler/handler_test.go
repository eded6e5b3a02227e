package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/library-seat-lease/internal/floor"
	"github.com/iliyamo/library-seat-lease/internal/lease"
	"github.com/iliyamo/library-seat-lease/internal/middleware"
	"github.com/iliyamo/library-seat-lease/internal/model"
	"github.com/iliyamo/library-seat-lease/internal/store"
	"github.com/iliyamo/library-seat-lease/internal/utils"
)

const secret = "s3cret"

type server struct {
	e   *echo.Echo
	mem *store.Memory
	now time.Time
}

func (s *server) clock() time.Time { return s.now }

func newServer(t *testing.T) *server {
	t.Helper()
	s := &server{now: time.Unix(1_700_000_000, 0)}
	s.mem = store.NewMemory(time.Hour, s.clock)

	open := model.NewTable("F1-T03", "F1", "group", 2)
	open.IsOpenToJoin = true
	open.CourseCodes = []string{"CS101"}
	for _, tb := range []model.Table{
		model.NewTable("F1-T01", "F1", "group", 4),
		model.NewTable("F1-T02", "F1", "individual", 1),
		open,
		model.NewTable("F2-T01", "F2", "duo", 2),
	} {
		require.NoError(t, s.mem.PutTable(tb))
	}

	mgr := lease.NewManager(s.mem, s.mem, nil, nil, lease.Options{Now: s.clock})
	sw := lease.NewSweeper(s.mem, s.mem, nil, nil, lease.SweeperOptions{Retention: time.Hour, Now: s.clock})
	lh := NewLeaseHandler(mgr, nil)
	fh := NewFloorHandler(floor.NewIndex(s.mem, nil), nil)
	hh := NewHealthHandler(sw, nil)

	e := echo.New()
	e.Validator = NewValidator()
	e.Use(middleware.Identity(secret))
	e.GET("/health", hh.Health)
	e.GET("/floor/:floorId/tables", fh.ListFloor)
	e.GET("/match", fh.Match)
	e.GET("/holds/:holdId", lh.GetHold)
	e.POST("/hold", lh.Hold)
	e.POST("/confirm", lh.Confirm)
	e.POST("/release/:tableId/:seatIndex", lh.Release)
	s.e = e
	return s
}

func (s *server) do(t *testing.T, method, target, body string, hdr ...string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func (s *server) list(t *testing.T, target string) []model.Table {
	t.Helper()
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out []model.Table
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHoldConfirmFlow(t *testing.T) {
	s := newServer(t)
	tok, err := utils.NewAccessToken(secret, "u-9", time.Minute)
	require.NoError(t, err)

	code, body := s.do(t, http.MethodPost, "/hold", `{"tableId":"F1-T02","seatIndex":0,"ttlSec":60}`)
	require.Equal(t, http.StatusOK, code)
	holdID, _ := body["holdId"].(string)
	require.NotEmpty(t, holdID)
	assert.EqualValues(t, 60, body["expiresIn"])

	code, body = s.do(t, http.MethodGet, "/holds/"+holdID, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "F1-T02", body["tableId"])

	code, body = s.do(t, http.MethodPost, "/confirm",
		`{"holdId":"`+holdID+`","courseCodes":["MATH200"],"topicTags":["calculus"],"isOpenToJoin":true}`,
		echo.HeaderAuthorization, "Bearer "+tok)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"ok": true, "tableId": "F1-T02", "seatIndex": float64(0)}, body)

	tables := s.list(t, "/floor/F1/tables")
	require.Len(t, tables, 3)
	seat := tables[1].Seats[0]
	assert.Equal(t, model.SeatOccupied, seat.Status)
	assert.Equal(t, "u-9", seat.OccupantUserID)

	code, _ = s.do(t, http.MethodGet, "/holds/"+holdID, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHoldErrors(t *testing.T) {
	s := newServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"table missing", `{"tableId":"F9-T01","seatIndex":0}`, http.StatusNotFound},
		{"index past capacity", `{"tableId":"F1-T01","seatIndex":5,"ttlSec":60}`, http.StatusBadRequest},
		{"negative index", `{"tableId":"F1-T01","seatIndex":-1}`, http.StatusBadRequest},
		{"no seat index", `{"tableId":"F1-T01"}`, http.StatusBadRequest},
		{"no table id", `{"seatIndex":0}`, http.StatusBadRequest},
		{"bad json", `{"tableId":`, http.StatusBadRequest},
		{"first hold", `{"tableId":"F2-T01","seatIndex":1}`, http.StatusOK},
		{"seat taken", `{"tableId":"F2-T01","seatIndex":1}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.do(t, http.MethodPost, "/hold", tt.body)
			assert.Equal(t, tt.want, code)
			if tt.want != http.StatusOK {
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestHold_NegativeTTLUsesDefaultWindow(t *testing.T) {
	s := newServer(t)

	code, body := s.do(t, http.MethodPost, "/hold", `{"tableId":"F1-T01","seatIndex":3,"ttlSec":-5}`)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 420, body["expiresIn"])
	assert.NotEmpty(t, body["holdId"])
}

func TestConfirm_GoneAfterSweep(t *testing.T) {
	s := newServer(t)

	code, body := s.do(t, http.MethodPost, "/hold", `{"tableId":"F1-T02","seatIndex":0}`)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 420, body["expiresIn"])
	holdID := body["holdId"].(string)

	s.now = s.now.Add(lease.DefaultHoldTTL + time.Second)
	code, body = s.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])

	assert.Equal(t, model.SeatFree, s.list(t, "/floor/F1/tables")[1].Seats[0].Status)

	code, _ = s.do(t, http.MethodPost, "/confirm", `{"holdId":"`+holdID+`"}`)
	assert.Equal(t, http.StatusGone, code)

	code, _ = s.do(t, http.MethodPost, "/confirm", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestConfirm_OccupiedConflict(t *testing.T) {
	s := newServer(t)

	_, first := s.do(t, http.MethodPost, "/hold", `{"tableId":"F1-T01","seatIndex":2}`)
	code, _ := s.do(t, http.MethodPost, "/release/F1-T01/2", "")
	require.Equal(t, http.StatusOK, code)
	_, second := s.do(t, http.MethodPost, "/hold", `{"tableId":"F1-T01","seatIndex":2}`)

	// the seat is HELD by the second hold; the first one still confirms
	code, _ = s.do(t, http.MethodPost, "/confirm", `{"holdId":"`+first["holdId"].(string)+`"}`)
	require.Equal(t, http.StatusOK, code)

	code, body := s.do(t, http.MethodPost, "/confirm", `{"holdId":"`+second["holdId"].(string)+`"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.NotEmpty(t, body["error"])
}

func TestRelease(t *testing.T) {
	s := newServer(t)

	code, body := s.do(t, http.MethodPost, "/release/F1-T01/0", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])

	code, _ = s.do(t, http.MethodPost, "/release/F1-T01/4", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, http.MethodPost, "/release/F1-T01/x", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, http.MethodPost, "/release/nope/0", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestMatch(t *testing.T) {
	s := newServer(t)

	ids := func(ts []model.Table) []string {
		out := []string{}
		for _, tb := range ts {
			out = append(out, tb.TableID)
		}
		return out
	}
	assert.Equal(t, []string{"F1-T03"}, ids(s.list(t, "/match?floorId=F1&courses=cs101")))
	assert.Equal(t, []string{"F1-T03"}, ids(s.list(t, "/match")))
	assert.Equal(t, []string{"F1-T01", "F1-T02", "F1-T03", "F2-T01"}, ids(s.list(t, "/match?openOnly=false")))
	assert.Empty(t, s.list(t, "/match?floorId=F2&courses=CS101,MATH200"))

	code, _ := s.do(t, http.MethodGet, "/match?openOnly=maybe", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestListFloor_IndexFallback(t *testing.T) {
	s := newServer(t)
	s.mem.SetIndexError(errors.New("index not ready"))
	assert.Len(t, s.list(t, "/floor/F1/tables"), 3)
	assert.Empty(t, s.list(t, "/floor/F7/tables"))
}

type failingSweeper struct{}

func (failingSweeper) Sweep(context.Context) (lease.SweepReport, error) {
	return lease.SweepReport{}, errors.New("store down")
}

func TestHealth_SweepFailureStillOK(t *testing.T) {
	e := echo.New()
	e.GET("/health", NewHealthHandler(failingSweeper{}, nil).Health)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(lease.ErrTableNotFound))
	assert.Equal(t, http.StatusNotFound, statusFor(lease.ErrHoldNotFound))
	assert.Equal(t, http.StatusBadRequest, statusFor(lease.ErrInvalidSeatIndex))
	assert.Equal(t, http.StatusConflict, statusFor(lease.ErrSeatConflict))
	assert.Equal(t, http.StatusGone, statusFor(lease.ErrHoldGone))
	assert.Equal(t, http.StatusInternalServerError, statusFor(floor.ErrStoreUnavailable))
}
