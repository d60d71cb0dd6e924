package sqlite

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/doms-project/crmpulse/internal/app/ports"
	"github.com/doms-project/crmpulse/internal/db"
)

type failureDatabase interface {
	InsertFailure(ctx context.Context, row db.FailureRow) error
	ListUnresolvedFailuresSince(ctx context.Context, since time.Time) ([]db.FailureRow, error)
	ResolveFailuresByLocation(ctx context.Context, locationID string, resolvedAt time.Time) (int64, error)
}

// FailureStore is the sqlite-backed durable authentication-failure log.
type FailureStore struct {
	db  failureDatabase
	now func() time.Time
}

// NewFailureStore constructs the sqlite failure store.
func NewFailureStore(database *db.Database) *FailureStore {
	return &FailureStore{db: database, now: time.Now}
}

// Record appends one failure event. An empty ID gets a generated one.
func (s *FailureStore) Record(ctx context.Context, record ports.FailureRecord) error {
	id := strings.TrimSpace(record.ID)
	if id == "" {
		id = uuid.NewString()
	}
	occurredAt := record.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}
	return s.db.InsertFailure(ctx, db.FailureRow{
		ID:           id,
		LocationID:   record.LocationID,
		LocationName: record.LocationName,
		Endpoint:     record.Endpoint,
		Message:      record.Message,
		OccurredAt:   occurredAt.UTC().Format(time.RFC3339),
	})
}

// ListUnresolved returns unresolved failures inside the window, one entry
// per location with distinct endpoints merged. The underlying log keeps
// every discrete event for audit.
func (s *FailureStore) ListUnresolved(ctx context.Context, window time.Duration) ([]ports.UnresolvedFailure, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	rows, err := s.db.ListUnresolvedFailuresSince(ctx, s.now().Add(-window))
	if err != nil {
		return nil, err
	}

	grouped := lo.GroupBy(rows, func(row db.FailureRow) string { return row.LocationID })
	out := make([]ports.UnresolvedFailure, 0, len(grouped))
	for locationID, events := range grouped {
		entry := ports.UnresolvedFailure{LocationID: locationID, Count: len(events)}
		endpoints := make([]string, 0, len(events))
		for _, event := range events {
			endpoints = append(endpoints, event.Endpoint)
			if entry.LocationName == "" && event.LocationName != "" {
				entry.LocationName = event.LocationName
			}
			if occurred, parseErr := time.Parse(time.RFC3339, event.OccurredAt); parseErr == nil && occurred.After(entry.LastSeen) {
				entry.LastSeen = occurred
			}
		}
		entry.Endpoints = lo.Uniq(endpoints)
		sort.Strings(entry.Endpoints)
		out = append(out, entry)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out, nil
}

// Resolve marks all unresolved records for the location as resolved.
func (s *FailureStore) Resolve(ctx context.Context, locationID string) (int64, error) {
	return s.db.ResolveFailuresByLocation(ctx, locationID, s.now())
}

var _ ports.FailureStore = (*FailureStore)(nil)
