package sensor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for sensor persistence operations.
type Repository interface {
	// GetByID retrieves a sensor by its unique identifier.
	// Returns ErrSensorNotFound if the sensor does not exist.
	GetByID(ctx context.Context, id string) (*Sensor, error)

	// List retrieves all sensors ordered by ID.
	List(ctx context.Context) ([]Sensor, error)

	// Create inserts a new sensor.
	// Returns ErrSensorExists if a sensor with the same ID already exists.
	Create(ctx context.Context, s *Sensor) error

	// Update modifies an existing sensor.
	// Returns ErrSensorNotFound if the sensor does not exist.
	Update(ctx context.Context, s *Sensor) error

	// Delete removes a sensor by ID.
	// Returns ErrSensorNotFound if the sensor does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using the sensors table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const sensorColumns = `id, name, model, measurements, update_period, created_at, updated_at`

// GetByID retrieves a sensor by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Sensor, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sensorColumns+` FROM sensors WHERE id = ?`, id)
	s, err := scanSensor(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSensorNotFound
		}
		return nil, fmt.Errorf("querying sensor by id: %w", err)
	}
	return s, nil
}

// List retrieves all sensors.
func (r *SQLiteRepository) List(ctx context.Context) ([]Sensor, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sensorColumns+` FROM sensors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying sensors: %w", err)
	}
	defer rows.Close()

	var sensors []Sensor
	for rows.Next() {
		s, err := scanSensor(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sensor: %w", err)
		}
		sensors = append(sensors, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sensors: %w", err)
	}
	return sensors, nil
}

// Create inserts a new sensor.
func (r *SQLiteRepository) Create(ctx context.Context, s *Sensor) error {
	measurementsJSON, err := json.Marshal(s.Measurements)
	if err != nil {
		return fmt.Errorf("marshalling measurements: %w", err)
	}

	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sensors (`+sensorColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.Name,
		s.Model,
		string(measurementsJSON),
		int64(s.UpdatePeriod/time.Second),
		s.CreatedAt.Format(time.RFC3339),
		s.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrSensorExists
		}
		return fmt.Errorf("inserting sensor: %w", err)
	}
	return nil
}

// Update modifies an existing sensor.
func (r *SQLiteRepository) Update(ctx context.Context, s *Sensor) error {
	measurementsJSON, err := json.Marshal(s.Measurements)
	if err != nil {
		return fmt.Errorf("marshalling measurements: %w", err)
	}

	s.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE sensors SET
			name = ?, model = ?, measurements = ?, update_period = ?, updated_at = ?
		WHERE id = ?`,
		s.Name,
		s.Model,
		string(measurementsJSON),
		int64(s.UpdatePeriod/time.Second),
		s.UpdatedAt.Format(time.RFC3339),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("updating sensor: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrSensorNotFound
	}
	return nil
}

// Delete removes a sensor by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM sensors WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting sensor: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrSensorNotFound
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSensor(scanner rowScanner) (*Sensor, error) {
	var s Sensor
	var measurementsJSON, createdAt, updatedAt string
	var periodSeconds int64

	if err := scanner.Scan(&s.ID, &s.Name, &s.Model, &measurementsJSON, &periodSeconds, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(measurementsJSON), &s.Measurements); err != nil {
		return nil, fmt.Errorf("unmarshalling measurements: %w", err)
	}
	s.UpdatePeriod = time.Duration(periodSeconds) * time.Second
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled

	return &s, nil
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
