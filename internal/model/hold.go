package model

import (
	"errors"
	"fmt"
	"time"
)

// Hold is a detached lease token on one seat.  It only references the seat
// by (TableID, SeatIndex) and carries an absolute deadline.  Holds are
// created by the hold operation, consumed by confirm and reclaimed by the
// expiry sweep; they are never updated in place.
//
// Fields:
//
//	HoldID    – opaque token returned to the client.
//	TableID   – table that owns the held seat.
//	SeatIndex – position of the seat within the table.
//	ExpiresAt – deadline in epoch seconds.
type Hold struct {
	HoldID    string `json:"holdId"`
	TableID   string `json:"tableId"`
	SeatIndex int    `json:"seatIndex"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Expired reports whether the deadline has been reached at now.
func (h Hold) Expired(now time.Time) bool {
	return now.Unix() >= h.ExpiresAt
}

// Deadline returns ExpiresAt as a time.Time in UTC.
func (h Hold) Deadline() time.Time {
	return time.Unix(h.ExpiresAt, 0).UTC()
}

// Validate checks that the hold references a seat.
func (h Hold) Validate() error {
	if h.HoldID == "" {
		return errors.New("hold: empty holdId")
	}
	if h.TableID == "" {
		return fmt.Errorf("hold %s: empty tableId", h.HoldID)
	}
	if h.SeatIndex < 0 {
		return fmt.Errorf("hold %s: negative seatIndex %d", h.HoldID, h.SeatIndex)
	}
	return nil
}
