package model

import (
	"fmt"
	"strings"
)

// SeatStatus is the lease state of a single seat.  Every seat is in exactly
// one of FREE, HELD or OCCUPIED.
type SeatStatus string

const (
	SeatFree     SeatStatus = "FREE"     // nobody holds or occupies the seat
	SeatHeld     SeatStatus = "HELD"     // a hold has been granted but not confirmed
	SeatOccupied SeatStatus = "OCCUPIED" // the hold was confirmed, the seat is in use
)

// ParseSeatStatus converts a stored status into a SeatStatus.  Unknown
// values are rejected so that malformed records never reach the lease
// logic.
func ParseSeatStatus(s string) (SeatStatus, error) {
	switch st := SeatStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case SeatFree, SeatHeld, SeatOccupied:
		return st, nil
	}
	return "", fmt.Errorf("unknown seat status %q", s)
}

// Valid reports whether s is one of the known statuses.
func (s SeatStatus) Valid() bool {
	return s == SeatFree || s == SeatHeld || s == SeatOccupied
}

// Seat describes one seat of a table.  Seats have no identity outside of
// their parent table; they are addressed by position.
//
// Fields:
//
//	SeatID         – derived identifier, {tableId}-S{index}.
//	Status         – FREE, HELD or OCCUPIED.
//	OccupantUserID – who sits there; only set while OCCUPIED.
//	HoldID         – the hold that owns a HELD seat; only set while HELD.
type Seat struct {
	SeatID         string     `json:"seatId"`
	Status         SeatStatus `json:"status"`
	OccupantUserID string     `json:"occupantUserId,omitempty"`
	HoldID         string     `json:"holdId,omitempty"`
}

// SeatIDFor derives the stable seat identifier for position index of table.
func SeatIDFor(tableID string, index int) string {
	return fmt.Sprintf("%s-S%d", tableID, index)
}

// Validate checks the status enumeration and the occupant / hold id
// invariants of a seat.
func (s Seat) Validate() error {
	if !s.Status.Valid() {
		return fmt.Errorf("seat %s: unknown status %q", s.SeatID, s.Status)
	}
	if s.OccupantUserID != "" && s.Status != SeatOccupied {
		return fmt.Errorf("seat %s: occupant set while %s", s.SeatID, s.Status)
	}
	if s.HoldID != "" && s.Status != SeatHeld {
		return fmt.Errorf("seat %s: hold id set while %s", s.SeatID, s.Status)
	}
	return nil
}
