// Package queue defines the lease event payload exchanged over the message
// broker and the consumer that turns those events into an audit log.
package queue

import "time"

// EventType names a seat transition.
type EventType string

const (
	EventSeatHeld      EventType = "seat.held"
	EventSeatConfirmed EventType = "seat.confirmed"
	EventSeatReleased  EventType = "seat.released"
	EventHoldExpired   EventType = "hold.expired"
)

// LeaseEvent is published after every committed seat transition.  It
// carries enough information for downstream consumers to log or notify
// without reading the table store.
type LeaseEvent struct {
	Type           EventType `json:"type"`
	TableID        string    `json:"table_id"`
	SeatIndex      int       `json:"seat_index"`
	HoldID         string    `json:"hold_id,omitempty"`
	OccupantUserID string    `json:"occupant_user_id,omitempty"`
	ExpiresAt      int64     `json:"expires_at,omitempty"`
	SeatFreed      bool      `json:"seat_freed,omitempty"` // hold.expired only
	OccurredAt     string    `json:"occurred_at"`
}

// Stamp sets OccurredAt to t in RFC 3339 UTC.
func (e *LeaseEvent) Stamp(t time.Time) {
	e.OccurredAt = t.UTC().Format(time.RFC3339)
}
