// Package lease implements the seat lease state machine: holding a free
// seat, confirming a hold into an occupied seat, releasing a seat, and
// sweeping holds whose deadline has passed.
//
// Every seat transition is a single conditional per-seat write against the
// table store, so concurrent requests on the same table never clobber each
// other and at most one hold can win a given free seat.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/library-seat-lease/internal/metrics"
	"github.com/iliyamo/library-seat-lease/internal/model"
	"github.com/iliyamo/library-seat-lease/internal/queue"
	"github.com/iliyamo/library-seat-lease/internal/store"
)

const (
	DefaultHoldTTL       = 120 * time.Second
	DefaultAdvertisedTTL = 420 * time.Second
)

// Options tunes a Manager.  Zero values fall back to the defaults.
type Options struct {
	// HoldTTL is the authoritative lifetime of a hold.
	HoldTTL time.Duration
	// DefaultAdvertisedTTL is reported as expiresIn when the caller asks
	// for no particular window.  It is advisory only.
	DefaultAdvertisedTTL time.Duration
	Now                  func() time.Time
	NewID                func() string
}

func (o Options) withDefaults() Options {
	if o.HoldTTL <= 0 {
		o.HoldTTL = DefaultHoldTTL
	}
	if o.DefaultAdvertisedTTL <= 0 {
		o.DefaultAdvertisedTTL = DefaultAdvertisedTTL
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

// Manager runs hold, confirm and release against the entity store.
type Manager struct {
	tables store.TableStore
	holds  store.HoldStore
	pub    Publisher
	log    *zap.Logger
	opts   Options
}

// NewManager wires a Manager.  pub and log may be nil.
func NewManager(tables store.TableStore, holds store.HoldStore, pub Publisher, log *zap.Logger, opts Options) *Manager {
	if pub == nil {
		pub = NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		tables: tables,
		holds:  holds,
		pub:    pub,
		log:    log.Named("lease"),
		opts:   opts.withDefaults(),
	}
}

// HoldResult is returned by Hold.  ExpiresIn is the advisory window in
// seconds; the hold itself lives for Options.HoldTTL.
type HoldResult struct {
	HoldID    string `json:"holdId"`
	ExpiresIn int    `json:"expiresIn"`
}

// ConfirmRequest turns a hold into an occupied seat and updates the join
// metadata of its table.
type ConfirmRequest struct {
	HoldID         string
	CourseCodes    []string
	TopicTags      []string
	IsOpenToJoin   bool
	OccupantUserID string
}

type ConfirmResult struct {
	TableID   string `json:"tableId"`
	SeatIndex int    `json:"seatIndex"`
}

// Hold places a hold on a free seat.  ttlSec only shapes the advertised
// expiresIn.
func (m *Manager) Hold(ctx context.Context, tableID string, seatIndex, ttlSec int) (res HoldResult, err error) {
	defer func() { observe("hold", err) }()

	t, err := m.table(ctx, tableID)
	if err != nil {
		return HoldResult{}, err
	}
	if !t.InBounds(seatIndex) {
		return HoldResult{}, ErrInvalidSeatIndex
	}
	if t.Seats[seatIndex].Status != model.SeatFree {
		return HoldResult{}, ErrSeatConflict
	}

	holdID := m.opts.NewID()
	err = m.tables.UpdateSeat(ctx, store.SeatUpdate{
		TableID:   tableID,
		SeatIndex: seatIndex,
		From:      []model.SeatStatus{model.SeatFree},
		To:        model.SeatHeld,
		HoldID:    holdID,
	})
	if err != nil {
		return HoldResult{}, seatWriteErr(err)
	}

	h := model.Hold{
		HoldID:    holdID,
		TableID:   tableID,
		SeatIndex: seatIndex,
		ExpiresAt: m.opts.Now().Add(m.opts.HoldTTL).Unix(),
	}
	if err := m.holds.PutHold(ctx, h); err != nil {
		m.undoHold(ctx, h)
		return HoldResult{}, fmt.Errorf("store hold: %w", err)
	}

	m.publish(ctx, queue.LeaseEvent{
		Type:      queue.EventSeatHeld,
		TableID:   tableID,
		SeatIndex: seatIndex,
		HoldID:    holdID,
		ExpiresAt: h.ExpiresAt,
	})

	expiresIn := ttlSec
	if expiresIn <= 0 {
		expiresIn = int(m.opts.DefaultAdvertisedTTL / time.Second)
	}
	return HoldResult{HoldID: holdID, ExpiresIn: expiresIn}, nil
}

// undoHold frees a seat whose hold record could not be written.  The
// request context may already be done, so a detached one is used.
func (m *Manager) undoHold(ctx context.Context, h model.Hold) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := m.tables.UpdateSeat(ctx, store.SeatUpdate{
		TableID:   h.TableID,
		SeatIndex: h.SeatIndex,
		From:      []model.SeatStatus{model.SeatHeld},
		HeldBy:    h.HoldID,
		To:        model.SeatFree,
	})
	if err != nil {
		m.log.Error("could not free seat after failed hold write; the seat stays HELD until released",
			zap.String("table_id", h.TableID), zap.Int("seat_index", h.SeatIndex),
			zap.String("hold_id", h.HoldID), zap.Error(err))
	}
}

// Confirm marks the held seat OCCUPIED and consumes the hold.
//
// The seat only has to be FREE or HELD: a seat released after the hold was
// taken, or held again by a newer hold, is still confirmed.  Only an
// OCCUPIED seat is a conflict.
func (m *Manager) Confirm(ctx context.Context, req ConfirmRequest) (res ConfirmResult, err error) {
	defer func() { observe("confirm", err) }()

	h, err := m.holds.GetHold(ctx, req.HoldID)
	if errors.Is(err, store.ErrNotFound) {
		return ConfirmResult{}, ErrHoldGone
	}
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("get hold: %w", err)
	}
	if h.Expired(m.opts.Now()) {
		return ConfirmResult{}, ErrHoldGone
	}

	t, err := m.table(ctx, h.TableID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if !t.InBounds(h.SeatIndex) {
		return ConfirmResult{}, ErrInvalidSeatIndex
	}
	upd := store.SeatUpdate{
		TableID:        h.TableID,
		SeatIndex:      h.SeatIndex,
		From:           []model.SeatStatus{model.SeatFree, model.SeatHeld},
		To:             model.SeatOccupied,
		OccupantUserID: req.OccupantUserID,
		Meta: &store.TableMeta{
			IsOpenToJoin: req.IsOpenToJoin,
			CourseCodes:  req.CourseCodes,
			TopicTags:    req.TopicTags,
		},
	}
	if !upd.Allows(t.Seats[h.SeatIndex]) {
		return ConfirmResult{}, ErrSeatConflict
	}
	if err := m.tables.UpdateSeat(ctx, upd); err != nil {
		return ConfirmResult{}, seatWriteErr(err)
	}

	// The seat is committed; a leftover hold expires or gets swept later.
	if err := m.holds.DeleteHold(ctx, h.HoldID); err != nil {
		m.log.Warn("delete confirmed hold", zap.String("hold_id", h.HoldID), zap.Error(err))
	}

	m.publish(ctx, queue.LeaseEvent{
		Type:           queue.EventSeatConfirmed,
		TableID:        h.TableID,
		SeatIndex:      h.SeatIndex,
		HoldID:         h.HoldID,
		OccupantUserID: req.OccupantUserID,
	})
	return ConfirmResult{TableID: h.TableID, SeatIndex: h.SeatIndex}, nil
}

// Release sets a seat FREE whatever its state.  Holds that still point at
// the seat are left for confirm and the sweeper to deal with.
func (m *Manager) Release(ctx context.Context, tableID string, seatIndex int) (err error) {
	defer func() { observe("release", err) }()

	t, err := m.table(ctx, tableID)
	if err != nil {
		return err
	}
	if !t.InBounds(seatIndex) {
		return ErrInvalidSeatIndex
	}
	err = m.tables.UpdateSeat(ctx, store.SeatUpdate{
		TableID:   tableID,
		SeatIndex: seatIndex,
		To:        model.SeatFree,
	})
	if err != nil {
		return seatWriteErr(err)
	}
	m.publish(ctx, queue.LeaseEvent{
		Type:      queue.EventSeatReleased,
		TableID:   tableID,
		SeatIndex: seatIndex,
	})
	return nil
}

// GetHold returns a hold record as stored, expired or not.
func (m *Manager) GetHold(ctx context.Context, holdID string) (model.Hold, error) {
	h, err := m.holds.GetHold(ctx, holdID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Hold{}, ErrHoldNotFound
	}
	if err != nil {
		return model.Hold{}, fmt.Errorf("get hold: %w", err)
	}
	return h, nil
}

func (m *Manager) table(ctx context.Context, tableID string) (model.Table, error) {
	t, err := m.tables.GetTable(ctx, tableID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Table{}, ErrTableNotFound
	}
	if err != nil {
		return model.Table{}, fmt.Errorf("get table %s: %w", tableID, err)
	}
	return t, nil
}

func (m *Manager) publish(ctx context.Context, ev queue.LeaseEvent) {
	ev.Stamp(m.opts.Now())
	if err := m.pub.Publish(ctx, ev); err != nil {
		m.log.Warn("publish lease event", zap.String("type", string(ev.Type)),
			zap.String("table_id", ev.TableID), zap.Error(err))
	}
}

func observe(op string, err error) {
	metrics.LeaseOperations.WithLabelValues(op, outcome(err)).Inc()
}
