package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Logger defines the logging interface used by the repositories.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Record is one entity's snapshot as stored.
type Record struct {
	EntityID string
	SensorID string
	Snapshot Snapshot
	SavedAt  time.Time
}

// SnapshotRepository stores one snapshot blob per entity.
type SnapshotRepository interface {
	// Save upserts a single record.
	Save(ctx context.Context, rec Record) error

	// SaveAll upserts every record in one transaction.
	SaveAll(ctx context.Context, recs []Record) error

	// Load returns the snapshot for an entity.
	// Returns ErrSnapshotNotFound if none is stored.
	Load(ctx context.Context, entityID string) (Snapshot, error)

	// LoadAll returns every decodable snapshot keyed by entity ID.
	// Undecodable blobs are skipped, never fatal.
	LoadAll(ctx context.Context) (map[string]Snapshot, error)

	// Delete removes an entity's snapshot. Missing snapshots are not an error.
	Delete(ctx context.Context, entityID string) error
}

// SQLiteSnapshotRepository implements SnapshotRepository on the
// entity_snapshots table.
type SQLiteSnapshotRepository struct {
	db     *sql.DB
	logger Logger
}

// NewSQLiteSnapshotRepository creates a snapshot repository.
func NewSQLiteSnapshotRepository(db *sql.DB) *SQLiteSnapshotRepository {
	return &SQLiteSnapshotRepository{db: db, logger: noopLogger{}}
}

// SetLogger sets the logger used to report skipped blobs.
func (r *SQLiteSnapshotRepository) SetLogger(logger Logger) {
	r.logger = logger
}

const upsertSnapshot = `
	INSERT INTO entity_snapshots (entity_id, sensor_id, payload, saved_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(entity_id) DO UPDATE SET
		sensor_id = excluded.sensor_id,
		payload = excluded.payload,
		saved_at = excluded.saved_at`

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveRecord(ctx context.Context, ex execer, rec Record) error {
	if rec.EntityID == "" {
		return ErrEntityIDRequired
	}
	payload, err := Marshal(rec.Snapshot)
	if err != nil {
		return err
	}
	savedAt := rec.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	if _, err := ex.ExecContext(ctx, upsertSnapshot,
		rec.EntityID,
		rec.SensorID,
		string(payload),
		formatTime(savedAt),
	); err != nil {
		return fmt.Errorf("saving snapshot %s: %w", rec.EntityID, err)
	}
	return nil
}

// Save upserts a single record.
func (r *SQLiteSnapshotRepository) Save(ctx context.Context, rec Record) error {
	return saveRecord(ctx, r.db, rec)
}

// SaveAll upserts every record in one transaction, so a checkpoint is
// either fully written or not at all.
func (r *SQLiteSnapshotRepository) SaveAll(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	for _, rec := range recs {
		if err := saveRecord(ctx, tx, rec); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshots: %w", err)
	}
	return nil
}

// Load returns the snapshot for an entity.
func (r *SQLiteSnapshotRepository) Load(ctx context.Context, entityID string) (Snapshot, error) {
	var payload string
	err := r.db.QueryRowContext(ctx,
		"SELECT payload FROM entity_snapshots WHERE entity_id = ?", entityID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, ErrSnapshotNotFound
		}
		return Snapshot{}, fmt.Errorf("querying snapshot: %w", err)
	}
	return Unmarshal([]byte(payload))
}

// LoadAll returns every decodable snapshot keyed by entity ID.
func (r *SQLiteSnapshotRepository) LoadAll(ctx context.Context) (map[string]Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT entity_id, payload FROM entity_snapshots")
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Snapshot)
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snap, err := Unmarshal([]byte(payload))
		if err != nil {
			r.logger.Warn("skipping undecodable snapshot", "entity_id", id, "error", err)
			continue
		}
		if len(snap.Dropped) > 0 {
			r.logger.Warn("snapshot fields dropped", "entity_id", id, "fields", snap.Dropped)
		}
		out[id] = snap
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return out, nil
}

// Delete removes an entity's snapshot.
func (r *SQLiteSnapshotRepository) Delete(ctx context.Context, entityID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM entity_snapshots WHERE entity_id = ?", entityID); err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	return nil
}
