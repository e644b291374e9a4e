package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/afroash/envmon/internal/models"
)

// DefaultReadingCap is the number of readings kept across all sensors
const DefaultReadingCap = 1000

// ReadingStore is the sensor registry and the bounded reading log
type ReadingStore struct {
	db       *sql.DB
	logger   zerolog.Logger
	capacity int
}

// NewReadingStore creates a ReadingStore on top of store. A capacity of
// zero or less falls back to DefaultReadingCap.
func NewReadingStore(store *SQLiteStore, capacity int) *ReadingStore {
	if capacity <= 0 {
		capacity = DefaultReadingCap
	}
	return &ReadingStore{
		db:       store.db,
		logger:   store.logger.With().Str("store", "readings").Logger(),
		capacity: capacity,
	}
}

// Capacity returns the retention cap
func (s *ReadingStore) Capacity() int {
	return s.capacity
}

// RegisterSensor inserts sensor unless its id is already known. The first
// registration wins; it reports whether a row was created.
func (s *ReadingStore) RegisterSensor(sensor *models.Sensor) (bool, error) {
	if sensor.CreatedAt.IsZero() {
		sensor.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO sensors (id, name, location, type, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sensor.ID,
		sensor.Name,
		sensor.Location,
		string(sensor.Type),
		formatTime(sensor.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to register sensor %s: %w", sensor.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		s.logger.Info().
			Str("sensor_id", sensor.ID).
			Str("type", string(sensor.Type)).
			Str("location", sensor.Location).
			Msg("Registered new sensor")
	}
	return n > 0, nil
}

// GetSensor returns the sensor with id, or nil if it is unknown
func (s *ReadingStore) GetSensor(id string) (*models.Sensor, error) {
	row := s.db.QueryRow(
		`SELECT id, name, location, type, created_at FROM sensors WHERE id = ?`, id)

	sensor, err := scanSensor(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sensor %s: %w", id, err)
	}
	return sensor, nil
}

// ListSensors returns every registered sensor in registration order
func (s *ReadingStore) ListSensors() ([]*models.Sensor, error) {
	rows, err := s.db.Query(
		`SELECT id, name, location, type, created_at FROM sensors ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensors: %w", err)
	}
	defer rows.Close()

	sensors := []*models.Sensor{}
	for rows.Next() {
		sensor, err := scanSensor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sensor: %w", err)
		}
		sensors = append(sensors, sensor)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sensors: %w", err)
	}
	return sensors, nil
}

// Append stores reading and evicts the oldest entries beyond the cap in the
// same transaction. An empty ID is filled with a new UUID.
func (s *ReadingStore) Append(reading *models.Reading) error {
	if reading.ID == "" {
		reading.ID = uuid.NewString()
	}

	var metadata sql.NullString
	if len(reading.Metadata) > 0 {
		b, err := json.Marshal(reading.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO readings (id, sensor_id, type, value, unit, timestamp, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		reading.ID,
		reading.SensorID,
		string(reading.Type),
		reading.Value,
		reading.Unit,
		formatTime(reading.Timestamp),
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}

	evicted, err := trimTable(tx, "readings", s.capacity)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reading: %w", err)
	}

	if evicted > 0 {
		s.logger.Debug().Int64("evicted", evicted).Msg("Evicted oldest readings")
	}
	return nil
}

// ListBySensor returns up to limit readings for sensorID, most recent first.
// A limit of zero or less returns everything retained.
func (s *ReadingStore) ListBySensor(sensorID string, limit int) ([]*models.Reading, error) {
	query := `SELECT id, sensor_id, type, value, unit, timestamp, metadata
		FROM readings
		WHERE sensor_id = ?
		ORDER BY timestamp DESC, seq DESC`
	args := []interface{}{sensorID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	return scanReadings(rows)
}

// Count returns the number of retained readings
func (s *ReadingStore) Count() (int64, error) {
	var count int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM readings").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count readings: %w", err)
	}
	return count, nil
}

// Trim evicts readings beyond the cap. Append keeps the log bounded on its
// own; Trim covers a cap lowered between restarts.
func (s *ReadingStore) Trim() (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	evicted, err := trimTable(tx, "readings", s.capacity)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit trim: %w", err)
	}
	return evicted, nil
}

// trimTable keeps the newest capacity rows of table by insertion sequence
func trimTable(tx *sql.Tx, table string, capacity int) (int64, error) {
	result, err := tx.Exec(
		fmt.Sprintf(`DELETE FROM %s WHERE seq <= (
			SELECT seq FROM %s ORDER BY seq DESC LIMIT 1 OFFSET ?
		)`, table, table),
		capacity,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to trim %s: %w", table, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// scanner is implemented by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSensor(row scanner) (*models.Sensor, error) {
	var sensor models.Sensor
	var sensorType, createdAt string

	if err := row.Scan(&sensor.ID, &sensor.Name, &sensor.Location, &sensorType, &createdAt); err != nil {
		return nil, err
	}

	sensor.Type = models.SensorType(sensorType)
	t, err := parseTimestamp(createdAt)
	if err != nil {
		return nil, err
	}
	sensor.CreatedAt = t
	return &sensor, nil
}

// scanReadings is a helper to scan multiple readings from rows
func scanReadings(rows *sql.Rows) ([]*models.Reading, error) {
	readings := []*models.Reading{}

	for rows.Next() {
		var r models.Reading
		var sensorType, ts string
		var metadata sql.NullString

		err := rows.Scan(&r.ID, &r.SensorID, &sensorType, &r.Value, &r.Unit, &ts, &metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}

		r.Type = models.SensorType(sensorType)
		if r.Timestamp, err = parseTimestamp(ts); err != nil {
			return nil, fmt.Errorf("failed to parse timestamp: %w", err)
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &r.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata: %w", err)
			}
		}

		readings = append(readings, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return readings, nil
}
