package lease

import (
	"errors"
	"fmt"

	"github.com/iliyamo/library-seat-lease/internal/store"
)

// Errors returned by Manager.  Handlers map them to HTTP statuses; any
// other error is an internal store failure.
var (
	ErrTableNotFound    = errors.New("table not found")
	ErrHoldNotFound     = errors.New("hold not found")
	ErrInvalidSeatIndex = errors.New("seat index out of range")
	ErrSeatConflict     = errors.New("seat is not available")
	// ErrHoldGone covers both unknown and expired holds; the two cannot be
	// told apart once the store has dropped the record.
	ErrHoldGone = errors.New("hold expired or not found")
)

// seatWriteErr translates a failed conditional seat write.
func seatWriteErr(err error) error {
	switch {
	case errors.Is(err, store.ErrConditionFailed):
		return ErrSeatConflict
	case errors.Is(err, store.ErrNotFound):
		return ErrTableNotFound
	case errors.Is(err, store.ErrSeatOutOfRange):
		return ErrInvalidSeatIndex
	default:
		return fmt.Errorf("update seat: %w", err)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTableNotFound), errors.Is(err, ErrHoldNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidSeatIndex):
		return "invalid"
	case errors.Is(err, ErrSeatConflict):
		return "conflict"
	case errors.Is(err, ErrHoldGone):
		return "gone"
	default:
		return "error"
	}
}
