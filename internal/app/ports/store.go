// Package ports declares the interfaces between the aggregation services and
// their injected collaborators: the durable failure log and the metric cache.
package ports

import (
	"context"
	"time"

	"github.com/doms-project/crmpulse/internal/cache"
)

// FailureRecord is one authentication failure event for a (location,
// endpoint) pair. Records are append-only; resolution flips Resolved but
// never deletes, preserving the audit trail.
type FailureRecord struct {
	ID           string
	LocationID   string
	LocationName string
	Endpoint     string
	Message      string
	OccurredAt   time.Time
	Resolved     bool
	ResolvedAt   *time.Time
}

// UnresolvedFailure is the review-facing view: one row per location with the
// distinct endpoints merged for display.
type UnresolvedFailure struct {
	LocationID   string    `json:"locationId"`
	LocationName string    `json:"locationName"`
	Endpoints    []string  `json:"endpoints"`
	Count        int       `json:"count"`
	LastSeen     time.Time `json:"lastSeen"`
}

// FailureStore is the durable authentication-failure log. It is
// backend-agnostic: the sqlite adapter implements it today, tests inject
// in-memory fakes.
type FailureStore interface {
	// Record appends one failure event.
	Record(ctx context.Context, record FailureRecord) error
	// ListUnresolved returns unresolved failures within the window,
	// deduplicated by location.
	ListUnresolved(ctx context.Context, window time.Duration) ([]UnresolvedFailure, error)
	// Resolve marks every unresolved record for the location as resolved,
	// regardless of endpoint: one credential refresh fixes all endpoints at
	// once. Returns the number of records resolved.
	Resolve(ctx context.Context, locationID string) (int64, error)
}

// MetricCache is the time-boxed memoization store for aggregate results.
type MetricCache interface {
	Get(key cache.Key) (cache.Entry, bool)
	Put(key cache.Key, value any, ttl time.Duration)
	Invalidate(key cache.Key)
	InvalidateLocation(locationID string) int
}
