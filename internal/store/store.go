// Package store defines the entity store contract used by the lease logic.
// Tables and holds are independent top-level records; the store offers
// point lookups, a floor lookup through a secondary index, full scans and a
// single conditional per-seat write.  There is no foreign key between the
// two record kinds: the lease manager and the expiry sweeper keep them
// consistent.
package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/iliyamo/library-seat-lease/internal/model"
)

// DefaultRetention is how long an expired hold stays readable past its
// deadline when no positive retention is configured.  A hold must outlive
// its deadline or the sweeper never sees it and its seat stays HELD.
const DefaultRetention = time.Hour

var (
	// ErrNotFound is returned when a table or hold does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSeatOutOfRange is returned when a seat index does not address a
	// seat of the table.
	ErrSeatOutOfRange = errors.New("seat index out of range")
	// ErrConditionFailed is returned when a conditional write finds the
	// record in a state other than the one it requires.
	ErrConditionFailed = errors.New("condition failed")
	// ErrMalformed is returned when a stored record fails shape validation.
	ErrMalformed = errors.New("malformed record")
	// ErrIndexUnavailable is returned when the floor index cannot serve a
	// query (missing, not yet built, or not permitted).
	ErrIndexUnavailable = errors.New("floor index unavailable")
)

// TableMeta is the join metadata written together with a confirmed seat.
type TableMeta struct {
	IsOpenToJoin bool
	CourseCodes  []string
	TopicTags    []string
}

// SeatUpdate is a conditional write of one seat of one table:
// seat[SeatIndex] becomes To only if its current status is listed in From
// (an empty From accepts any status) and, when HeldBy is set, a HELD seat
// is owned by that hold or by no recorded hold.
type SeatUpdate struct {
	TableID        string
	SeatIndex      int
	From           []model.SeatStatus
	HeldBy         string
	To             model.SeatStatus
	OccupantUserID string     // kept only when To is OCCUPIED
	HoldID         string     // kept only when To is HELD
	Meta           *TableMeta // optional, applied in the same write
}

// Allows reports whether the precondition of u holds for s.
func (u SeatUpdate) Allows(s model.Seat) bool {
	if len(u.From) > 0 && !slices.Contains(u.From, s.Status) {
		return false
	}
	if u.HeldBy != "" && s.Status == model.SeatHeld && s.HoldID != "" && s.HoldID != u.HeldBy {
		return false
	}
	return true
}

// Apply returns s transitioned to u.To with the occupant and hold id
// invariants enforced.
func (u SeatUpdate) Apply(s model.Seat) model.Seat {
	s.Status = u.To
	s.OccupantUserID = ""
	s.HoldID = ""
	switch u.To {
	case model.SeatOccupied:
		s.OccupantUserID = u.OccupantUserID
	case model.SeatHeld:
		s.HoldID = u.HoldID
	}
	return s
}

// ApplyMeta merges meta into t: the open flag is overwritten, course codes
// and topic tags are merged.
func ApplyMeta(t *model.Table, meta *TableMeta) {
	if meta == nil {
		return
	}
	t.IsOpenToJoin = meta.IsOpenToJoin
	t.CourseCodes = model.MergeTags(t.CourseCodes, meta.CourseCodes)
	t.TopicTags = model.MergeTags(t.TopicTags, meta.TopicTags)
}

// TableStore persists tables.
type TableStore interface {
	GetTable(ctx context.Context, tableID string) (model.Table, error)
	QueryTablesByFloor(ctx context.Context, floorID string) ([]model.Table, error)
	ScanTables(ctx context.Context) ([]model.Table, error)
	UpdateSeat(ctx context.Context, u SeatUpdate) error
}

// HoldStore persists holds.  Implementations may delete a hold on their
// own some time after its deadline (passive expiration).
type HoldStore interface {
	PutHold(ctx context.Context, h model.Hold) error
	GetHold(ctx context.Context, holdID string) (model.Hold, error)
	DeleteHold(ctx context.Context, holdID string) error
	ScanHolds(ctx context.Context) ([]model.Hold, error)
}

// ExpiredHoldPurger is implemented by hold stores without native record
// expiry.  PurgeExpiredHolds deletes holds whose deadline is before cutoff
// and returns how many were removed.
type ExpiredHoldPurger interface {
	PurgeExpiredHolds(ctx context.Context, cutoff time.Time) (int64, error)
}
