package entity

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// historyTimeFormat is fixed-width so created_at sorts lexically.
	historyTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

// SQLiteHistoryRepository implements HistoryRepository on the
// switch_state_history table.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a repository using an open, migrated database.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// RecordStateChange inserts one history row. A zero timestamp is replaced by now.
func (r *SQLiteHistoryRepository) RecordStateChange(ctx context.Context, change StateChange) error {
	if change.EntityID == "" {
		return fmt.Errorf("entity id is required")
	}
	if change.Source == "" {
		change.Source = SourceFeedback
	}
	ts := change.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	isOn := 0
	if change.On {
		isOn = 1
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO switch_state_history (entity_id, name, is_on, source, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		change.EntityID,
		change.Name,
		isOn,
		change.Source,
		ts.UTC().Format(historyTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}
	return nil
}

// GetHistory returns entries newest first (default 50, max 200).
func (r *SQLiteHistoryRepository) GetHistory(ctx context.Context, entityID string, limit int) ([]HistoryEntry, error) {
	if entityID == "" {
		return nil, fmt.Errorf("entity id is required")
	}
	limit = ClampHistoryLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, entity_id, name, is_on, source, created_at
		 FROM switch_state_history
		 WHERE entity_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		entityID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			entry     HistoryEntry
			isOn      int
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.EntityID, &entry.Name, &isOn, &entry.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		entry.On = isOn == 1
		entry.State = StateString(entry.On)

		entry.CreatedAt, err = time.Parse(historyTimeFormat, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}

	return entries, nil
}

// PruneHistory deletes entries older than the given age and returns the count removed.
func (r *SQLiteHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(historyTimeFormat)
	result, err := r.db.ExecContext(ctx, "DELETE FROM switch_state_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// ClampHistoryLimit maps a requested limit onto [1, 200], with 0 or
// negative meaning the default of 50.
func ClampHistoryLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
