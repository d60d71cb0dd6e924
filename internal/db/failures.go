package db

import (
	"context"
	"database/sql"
	"time"
)

// FailureRow is one credential failure row as stored. Timestamps are RFC3339
// strings in the table.
type FailureRow struct {
	ID           string
	LocationID   string
	LocationName string
	Endpoint     string
	Message      string
	OccurredAt   string
	Resolved     bool
	ResolvedAt   sql.NullString
}

// InsertFailure appends one credential failure event.
func (c *Database) InsertFailure(ctx context.Context, row FailureRow) error {
	_, err := c.execTracked(ctx, "InsertFailure", `
		INSERT INTO credential_failures (id, location_id, location_name, endpoint, message, occurred_at, resolved)
		VALUES (?, ?, ?, ?, ?, ?, 0)`,
		row.ID, row.LocationID, row.LocationName, row.Endpoint, row.Message, row.OccurredAt,
	)
	return err
}

// ListUnresolvedFailuresSince returns unresolved failure rows with
// occurred_at at or after the cutoff, newest first.
func (c *Database) ListUnresolvedFailuresSince(ctx context.Context, since time.Time) ([]FailureRow, error) {
	rows, err := c.queryTracked(ctx, "ListUnresolvedFailuresSince", `
		SELECT id, location_id, location_name, endpoint, message, occurred_at, resolved, resolved_at
		FROM credential_failures
		WHERE resolved = 0 AND occurred_at >= ?
		ORDER BY occurred_at DESC`,
		since.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FailureRow
	for rows.Next() {
		var row FailureRow
		var resolved int64
		if err := rows.Scan(&row.ID, &row.LocationID, &row.LocationName, &row.Endpoint, &row.Message, &row.OccurredAt, &resolved, &row.ResolvedAt); err != nil {
			return nil, err
		}
		row.Resolved = resolved != 0
		out = append(out, row)
	}
	return out, rows.Err()
}

// ResolveFailuresByLocation marks every unresolved record for the location
// as resolved in one statement and reports how many rows changed.
func (c *Database) ResolveFailuresByLocation(ctx context.Context, locationID string, resolvedAt time.Time) (int64, error) {
	result, err := c.execTracked(ctx, "ResolveFailuresByLocation", `
		UPDATE credential_failures
		SET resolved = 1, resolved_at = ?
		WHERE location_id = ? AND resolved = 0`,
		resolvedAt.UTC().Format(time.RFC3339), locationID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// QueryLatencyStats returns current per-query latency distribution samples.
func (c *Database) QueryLatencyStats() []queryLatencyStats {
	if c == nil || c.tracker == nil {
		return nil
	}
	return c.tracker.snapshot()
}
