package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/library-seat-lease/internal/metrics"
	"github.com/iliyamo/library-seat-lease/internal/model"
	"github.com/iliyamo/library-seat-lease/internal/queue"
	"github.com/iliyamo/library-seat-lease/internal/store"
)

// SweepReport summarises one sweep pass.
type SweepReport struct {
	Scanned int   `json:"scanned"`
	Expired int   `json:"expired"`
	Freed   int   `json:"freed"`
	Deleted int   `json:"deleted"`
	Failed  int   `json:"failed"`
	Purged  int64 `json:"purged"`
}

// SweeperOptions tunes a Sweeper.
type SweeperOptions struct {
	// Retention is how long past its deadline a hold may linger before a
	// purge removes it.  Only used with stores implementing
	// store.ExpiredHoldPurger.
	Retention time.Duration
	Now       func() time.Time
}

// Sweeper reclaims seats whose holds have passed their deadline.  It is
// safe to run concurrently with the Manager and with itself.
type Sweeper struct {
	tables store.TableStore
	holds  store.HoldStore
	pub    Publisher
	log    *zap.Logger
	opts   SweeperOptions
}

// NewSweeper wires a Sweeper.  pub and log may be nil.
func NewSweeper(tables store.TableStore, holds store.HoldStore, pub Publisher, log *zap.Logger, opts SweeperOptions) *Sweeper {
	if pub == nil {
		pub = NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retention <= 0 {
		opts.Retention = store.DefaultRetention
	}
	return &Sweeper{tables: tables, holds: holds, pub: pub, log: log.Named("sweeper"), opts: opts}
}

// Sweep runs one pass over every hold.  A failure on one hold is recorded
// and the pass continues; the returned error joins all of them.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	now := s.opts.Now()

	holds, err := s.holds.ScanHolds(ctx)
	if err != nil {
		return rep, fmt.Errorf("scan holds: %w", err)
	}

	var errs []error
	for _, h := range holds {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		rep.Scanned++
		if !h.Expired(now) {
			continue
		}
		rep.Expired++

		freed, err := s.reclaim(ctx, h)
		if freed {
			rep.Freed++
			metrics.SweepHolds.WithLabelValues("freed").Inc()
		}
		if err != nil {
			rep.Failed++
			metrics.SweepHolds.WithLabelValues("failed").Inc()
			s.log.Warn("reclaim expired hold", zap.String("hold_id", h.HoldID),
				zap.String("table_id", h.TableID), zap.Int("seat_index", h.SeatIndex), zap.Error(err))
			errs = append(errs, fmt.Errorf("hold %s: %w", h.HoldID, err))
			continue
		}
		rep.Deleted++
		metrics.SweepHolds.WithLabelValues("deleted").Inc()

		ev := queue.LeaseEvent{
			Type:      queue.EventHoldExpired,
			TableID:   h.TableID,
			SeatIndex: h.SeatIndex,
			HoldID:    h.HoldID,
			ExpiresAt: h.ExpiresAt,
			SeatFreed: freed,
		}
		ev.Stamp(now)
		if err := s.pub.Publish(ctx, ev); err != nil {
			s.log.Warn("publish lease event", zap.String("type", string(ev.Type)), zap.Error(err))
		}
	}

	if p, ok := s.holds.(store.ExpiredHoldPurger); ok && ctx.Err() == nil {
		n, err := p.PurgeExpiredHolds(ctx, now.Add(-s.opts.Retention))
		if err != nil {
			errs = append(errs, fmt.Errorf("purge expired holds: %w", err))
		} else {
			rep.Purged = n
			metrics.SweepHolds.WithLabelValues("purged").Add(float64(n))
		}
	}

	if rep.Expired > 0 || len(errs) > 0 {
		s.log.Info("sweep finished", zap.Int("scanned", rep.Scanned), zap.Int("expired", rep.Expired),
			zap.Int("freed", rep.Freed), zap.Int("failed", rep.Failed))
	}
	return rep, errors.Join(errs...)
}

// reclaim frees the seat of an expired hold when that hold still owns it,
// then deletes the hold.  A seat already moved on (OCCUPIED, FREE, or held
// by a newer hold) is left alone.  When the seat write fails for another
// reason the hold is kept so the next pass retries.
func (s *Sweeper) reclaim(ctx context.Context, h model.Hold) (freed bool, err error) {
	t, err := s.tables.GetTable(ctx, h.TableID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// table gone; only the hold remains to clean up
	case err != nil:
		return false, fmt.Errorf("get table: %w", err)
	case t.InBounds(h.SeatIndex) && t.Seats[h.SeatIndex].Status == model.SeatHeld:
		err := s.tables.UpdateSeat(ctx, store.SeatUpdate{
			TableID:   h.TableID,
			SeatIndex: h.SeatIndex,
			From:      []model.SeatStatus{model.SeatHeld},
			HeldBy:    h.HoldID,
			To:        model.SeatFree,
		})
		switch {
		case err == nil:
			freed = true
		case errors.Is(err, store.ErrConditionFailed),
			errors.Is(err, store.ErrNotFound),
			errors.Is(err, store.ErrSeatOutOfRange):
		default:
			return false, fmt.Errorf("free seat: %w", err)
		}
	}

	if err := s.holds.DeleteHold(ctx, h.HoldID); err != nil {
		return freed, fmt.Errorf("delete hold: %w", err)
	}
	return freed, nil
}

// Run sweeps every interval until ctx is done.  It always returns nil;
// sweep failures are logged.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	s.log.Info("sweeper started", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("sweep failed", zap.Error(err))
			}
		}
	}
}
