package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/library-seat-lease/internal/model"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestMemory(t *testing.T) (*Memory, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := NewMemory(time.Hour, clk.Now)
	require.NoError(t, m.PutTable(model.NewTable("F1-T01", "F1", "group", 4)))
	require.NoError(t, m.PutTable(model.NewTable("F1-T02", "F1", "individual", 1)))
	require.NoError(t, m.PutTable(model.NewTable("F2-T01", "F2", "duo", 2)))
	return m, clk
}

func TestMemory_PutTableRejectsMalformed(t *testing.T) {
	m := NewMemory(time.Hour, nil)
	tab := model.NewTable("X", "F1", "duo", 2)
	tab.Capacity = 3
	err := m.PutTable(tab)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestMemory_QueryByFloor(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()

	got, err := m.QueryTablesByFloor(ctx, "F1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "F1-T01", got[0].TableID)
	assert.Equal(t, "F1-T02", got[1].TableID)

	m.SetIndexError(errors.New("index missing"))
	_, err = m.QueryTablesByFloor(ctx, "F1")
	assert.ErrorIs(t, err, ErrIndexUnavailable)

	all, err := m.ScanTables(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemory_UpdateSeatConditions(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()

	hold := SeatUpdate{TableID: "F1-T01", SeatIndex: 1, From: []model.SeatStatus{model.SeatFree}, To: model.SeatHeld, HoldID: "h1"}
	require.NoError(t, m.UpdateSeat(ctx, hold))
	assert.ErrorIs(t, m.UpdateSeat(ctx, hold), ErrConditionFailed)

	tab, err := m.GetTable(ctx, "F1-T01")
	require.NoError(t, err)
	assert.Equal(t, model.SeatHeld, tab.Seats[1].Status)
	assert.Equal(t, "h1", tab.Seats[1].HoldID)
	assert.Equal(t, model.SeatFree, tab.Seats[0].Status)

	// held by another hold
	steal := SeatUpdate{TableID: "F1-T01", SeatIndex: 1, From: []model.SeatStatus{model.SeatHeld}, HeldBy: "h2", To: model.SeatFree}
	assert.ErrorIs(t, m.UpdateSeat(ctx, steal), ErrConditionFailed)

	assert.ErrorIs(t, m.UpdateSeat(ctx, SeatUpdate{TableID: "nope", To: model.SeatFree}), ErrNotFound)
	assert.ErrorIs(t, m.UpdateSeat(ctx, SeatUpdate{TableID: "F1-T01", SeatIndex: 4, To: model.SeatFree}), ErrSeatOutOfRange)
}

func TestMemory_UpdateSeatAppliesMeta(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()

	err := m.UpdateSeat(ctx, SeatUpdate{
		TableID:        "F2-T01",
		SeatIndex:      0,
		To:             model.SeatOccupied,
		OccupantUserID: "u-7",
		HoldID:         "ignored",
		Meta:           &TableMeta{IsOpenToJoin: true, CourseCodes: []string{"cs101"}, TopicTags: []string{"algorithms"}},
	})
	require.NoError(t, err)

	tab, err := m.GetTable(ctx, "F2-T01")
	require.NoError(t, err)
	assert.True(t, tab.IsOpenToJoin)
	assert.Equal(t, []string{"cs101"}, tab.CourseCodes)
	assert.Equal(t, []string{"algorithms"}, tab.TopicTags)
	assert.Equal(t, "u-7", tab.Seats[0].OccupantUserID)
	assert.Empty(t, tab.Seats[0].HoldID)
	require.NoError(t, tab.Validate())
}

func TestMemory_ReturnedTablesAreCopies(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()

	tab, err := m.GetTable(ctx, "F1-T02")
	require.NoError(t, err)
	tab.Seats[0].Status = model.SeatOccupied

	again, err := m.GetTable(ctx, "F1-T02")
	require.NoError(t, err)
	assert.Equal(t, model.SeatFree, again.Seats[0].Status)
}

func TestMemory_HoldsPassiveExpiration(t *testing.T) {
	m, clk := newTestMemory(t)
	ctx := context.Background()

	h := model.Hold{HoldID: "h1", TableID: "F1-T02", SeatIndex: 0, ExpiresAt: clk.t.Unix() + 120}
	require.NoError(t, m.PutHold(ctx, h))
	assert.ErrorIs(t, m.PutHold(ctx, h), ErrConditionFailed)

	got, err := m.GetHold(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, h, got)

	// past the deadline but inside retention: still visible to the sweep
	clk.t = clk.t.Add(10 * time.Minute)
	holds, err := m.ScanHolds(ctx)
	require.NoError(t, err)
	assert.Len(t, holds, 1)

	// past retention: gone
	clk.t = clk.t.Add(2 * time.Hour)
	_, err = m.GetHold(ctx, "h1")
	assert.ErrorIs(t, err, ErrNotFound)
	holds, err = m.ScanHolds(ctx)
	require.NoError(t, err)
	assert.Empty(t, holds)
}

func TestMemory_DeleteHoldIsIdempotent(t *testing.T) {
	m, clk := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, m.PutHold(ctx, model.Hold{HoldID: "h1", TableID: "F1-T02", ExpiresAt: clk.t.Unix() + 60}))
	require.NoError(t, m.DeleteHold(ctx, "h1"))
	require.NoError(t, m.DeleteHold(ctx, "h1"))
	_, err := m.GetHold(ctx, "h1")
	assert.ErrorIs(t, err, ErrNotFound)
}
