// Package metrics holds the prometheus collectors of the seat lease service.
// Collectors register with the default registry; /metrics serves them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LeaseOperations counts lease operations by op (hold, confirm,
	// release) and outcome (ok, not_found, invalid, conflict, gone, error).
	LeaseOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seatlease",
		Name:      "lease_operations_total",
		Help:      "Lease operations by operation and outcome.",
	}, []string{"op", "outcome"})

	// SweepHolds counts holds handled by the expiry sweeper by result
	// (freed, deleted, skipped, failed, purged).
	SweepHolds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seatlease",
		Name:      "sweep_holds_total",
		Help:      "Expired holds processed by the sweeper.",
	}, []string{"result"})

	// FloorIndexFallbacks counts floor lookups served by a full scan
	// because the index query failed.
	FloorIndexFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "seatlease",
		Name:      "floor_index_fallback_total",
		Help:      "Floor lookups that fell back to a full table scan.",
	})

	// EventsPublished counts lease events handed to the broker by result.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seatlease",
		Name:      "events_published_total",
		Help:      "Lease events published to the broker.",
	}, []string{"type", "result"})
)
