package lease

import (
	"context"

	"github.com/iliyamo/library-seat-lease/internal/queue"
)

// Publisher delivers lease events.  Publishing is best effort: failures are
// logged by the caller and never undo a committed transition.
type Publisher interface {
	Publish(ctx context.Context, ev queue.LeaseEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, queue.LeaseEvent) error { return nil }
