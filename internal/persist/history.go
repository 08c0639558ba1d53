package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// HistoryEntry is one recorded entity value change.
type HistoryEntry struct {
	ID         int64     `json:"id"`
	EntityID   string    `json:"entity_id"`
	Value      any       `json:"value"`
	Available  bool      `json:"available"`
	RecordedAt time.Time `json:"recorded_at"`
}

// HistoryRepository stores entity value changes.
//
// Implementations must be thread-safe and use UTC timestamps.
type HistoryRepository interface {
	// Record appends a value change for an entity.
	Record(ctx context.Context, entry HistoryEntry) error

	// History returns recent entries for an entity, newest first.
	// limit is clamped to a sane range.
	History(ctx context.Context, entityID string, limit int) ([]HistoryEntry, error)

	// Prune deletes entries recorded before now-olderThan and returns the
	// number of rows removed.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteHistoryRepository implements HistoryRepository on entity_history.
// Values are stored as JSON so strings, numbers, booleans and null survive.
type SQLiteHistoryRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteHistoryRepository creates a history repository.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db, now: time.Now}
}

// Record appends a value change.
func (r *SQLiteHistoryRepository) Record(ctx context.Context, entry HistoryEntry) error {
	if entry.EntityID == "" {
		return ErrEntityIDRequired
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = r.now()
	}

	valueJSON, err := json.Marshal(entry.Value)
	if err != nil {
		return fmt.Errorf("marshalling value: %w", err)
	}

	available := 0
	if entry.Available {
		available = 1
	}

	if _, err := r.db.ExecContext(ctx,
		"INSERT INTO entity_history (entity_id, value, available, recorded_at) VALUES (?, ?, ?, ?)",
		entry.EntityID,
		string(valueJSON),
		available,
		entry.RecordedAt.UTC().UnixNano(),
	); err != nil {
		return fmt.Errorf("inserting entity history: %w", err)
	}
	return nil
}

// History returns recent entries for an entity, newest first.
func (r *SQLiteHistoryRepository) History(ctx context.Context, entityID string, limit int) ([]HistoryEntry, error) {
	if entityID == "" {
		return nil, ErrEntityIDRequired
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, entity_id, value, available, recorded_at
		 FROM entity_history
		 WHERE entity_id = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		entityID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying entity history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var e HistoryEntry
		var valueJSON string
		var available int
		var recordedAt int64

		if err := rows.Scan(&e.ID, &e.EntityID, &valueJSON, &available, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning entity history: %w", err)
		}
		if err := json.Unmarshal([]byte(valueJSON), &e.Value); err != nil {
			return nil, fmt.Errorf("unmarshalling value: %w", err)
		}
		e.Available = available == 1
		e.RecordedAt = time.Unix(0, recordedAt).UTC()
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entity history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than the given duration.
func (r *SQLiteHistoryRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := r.now().UTC().Add(-olderThan).UnixNano()
	result, err := r.db.ExecContext(ctx, "DELETE FROM entity_history WHERE recorded_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting entity history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
