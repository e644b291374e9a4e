package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/envmon/internal/models"
)

// ThresholdStore holds at most one threshold row per sensor type
type ThresholdStore struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// NewThresholdStore creates a ThresholdStore on top of store
func NewThresholdStore(store *SQLiteStore) *ThresholdStore {
	return &ThresholdStore{
		db:     store.db,
		logger: store.logger.With().Str("store", "thresholds").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the threshold for sensorType, or nil when none is configured
func (s *ThresholdStore) Get(sensorType models.SensorType) (*models.Threshold, error) {
	row := s.db.QueryRow(
		`SELECT sensor_type, min_value, max_value, unit, updated_at
		 FROM thresholds WHERE sensor_type = ?`,
		string(sensorType),
	)

	threshold, err := scanThreshold(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get threshold %s: %w", sensorType, err)
	}
	return threshold, nil
}

// Upsert replaces the threshold for sensorType. Both bounds are always
// overwritten, so a nil bound clears that side.
func (s *ThresholdStore) Upsert(sensorType models.SensorType, minValue, maxValue *float64, unit string) (*models.Threshold, error) {
	threshold := &models.Threshold{
		SensorType: sensorType,
		MinValue:   minValue,
		MaxValue:   maxValue,
		Unit:       unit,
		UpdatedAt:  s.now(),
	}

	_, err := s.db.Exec(
		`INSERT INTO thresholds (sensor_type, min_value, max_value, unit, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(sensor_type) DO UPDATE SET
			min_value = excluded.min_value,
			max_value = excluded.max_value,
			unit = excluded.unit,
			updated_at = excluded.updated_at`,
		string(sensorType),
		nullableFloat(minValue),
		nullableFloat(maxValue),
		unit,
		formatTime(threshold.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert threshold %s: %w", sensorType, err)
	}

	s.logger.Info().
		Str("sensor_type", string(sensorType)).
		Interface("min", minValue).
		Interface("max", maxValue).
		Str("unit", unit).
		Msg("Threshold updated")

	return threshold, nil
}

// List returns every configured threshold ordered by sensor type
func (s *ThresholdStore) List() ([]*models.Threshold, error) {
	rows, err := s.db.Query(
		`SELECT sensor_type, min_value, max_value, unit, updated_at
		 FROM thresholds ORDER BY sensor_type ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query thresholds: %w", err)
	}
	defer rows.Close()

	thresholds := []*models.Threshold{}
	for rows.Next() {
		threshold, err := scanThreshold(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan threshold: %w", err)
		}
		thresholds = append(thresholds, threshold)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating thresholds: %w", err)
	}
	return thresholds, nil
}

func scanThreshold(row scanner) (*models.Threshold, error) {
	var t models.Threshold
	var sensorType, updatedAt string
	var minValue, maxValue sql.NullFloat64

	if err := row.Scan(&sensorType, &minValue, &maxValue, &t.Unit, &updatedAt); err != nil {
		return nil, err
	}

	t.SensorType = models.SensorType(sensorType)
	t.MinValue = floatPtr(minValue)
	t.MaxValue = floatPtr(maxValue)

	var err error
	if t.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
