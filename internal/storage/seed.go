package storage

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/afroash/envmon/internal/models"
)

const (
	seedLocation        = "Main Campus"
	seedReadingsPerType = 10
)

var seedSensors = []struct {
	id         string
	name       string
	sensorType models.SensorType
}{
	{"temp-01", "Temperature Sensor - Lab 1", models.SensorTypeTemperature},
	{"hum-01", "Humidity Sensor - Lab 1", models.SensorTypeHumidity},
	{"air-01", "Air Quality - Room 2", models.SensorTypeAirQuality},
	{"lum-01", "Luminosity - Auditorium", models.SensorTypeLuminosity},
}

// SeedResult reports what a Seed call inserted
type SeedResult struct {
	Sensors    int64 `json:"sensors"`
	Thresholds int64 `json:"thresholds"`
	Readings   int64 `json:"readings"`
}

// Seed inserts the demo sensors and their thresholds unless they already
// exist. Sample readings are only written when the reading log is empty, so
// running it again is harmless.
func (s *SQLiteStore) Seed(now time.Time) (*SeedResult, error) {
	result := &SeedResult{}
	now = now.UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin seed: %w", err)
	}
	defer tx.Rollback()

	for _, sensor := range seedSensors {
		res, err := tx.Exec(
			`INSERT OR IGNORE INTO sensors (id, name, location, type, created_at) VALUES (?, ?, ?, ?, ?)`,
			sensor.id, sensor.name, seedLocation, string(sensor.sensorType), formatTime(now),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to seed sensor %s: %w", sensor.id, err)
		}
		n, _ := res.RowsAffected()
		result.Sensors += n

		var minValue, maxValue *float64
		if sensor.sensorType == models.SensorTypeTemperature {
			minValue, maxValue = models.Float(18), models.Float(28)
		}
		res, err = tx.Exec(
			`INSERT OR IGNORE INTO thresholds (sensor_type, min_value, max_value, unit, updated_at) VALUES (?, ?, ?, ?, ?)`,
			string(sensor.sensorType),
			nullableFloat(minValue),
			nullableFloat(maxValue),
			sensor.sensorType.DefaultUnit(),
			formatTime(now),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to seed threshold %s: %w", sensor.sensorType, err)
		}
		n, _ = res.RowsAffected()
		result.Thresholds += n
	}

	var existing int64
	if err := tx.QueryRow("SELECT COUNT(*) FROM readings").Scan(&existing); err != nil {
		return nil, fmt.Errorf("failed to count readings: %w", err)
	}

	if existing == 0 {
		for idx, sensor := range seedSensors {
			// oldest first so insertion order follows time
			for i := seedReadingsPerType - 1; i >= 0; i-- {
				ts := now.Add(-time.Duration(i)*time.Minute - time.Duration(idx)*10*time.Second)
				_, err := tx.Exec(
					`INSERT INTO readings (id, sensor_id, type, value, unit, timestamp, metadata) VALUES (?, ?, ?, ?, ?, ?, ?)`,
					uuid.NewString(),
					sensor.id,
					string(sensor.sensorType),
					seedValue(sensor.sensorType, i),
					sensor.sensorType.DefaultUnit(),
					formatTime(ts),
					`{"sample":true}`,
				)
				if err != nil {
					return nil, fmt.Errorf("failed to seed reading for %s: %w", sensor.id, err)
				}
				result.Readings++
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit seed: %w", err)
	}

	s.logger.Info().
		Int64("sensors", result.Sensors).
		Int64("thresholds", result.Thresholds).
		Int64("readings", result.Readings).
		Msg("Seed completed")

	return result, nil
}

// seedValue produces a smooth sample curve per sensor type
func seedValue(sensorType models.SensorType, i int) float64 {
	x := float64(i)
	switch sensorType {
	case models.SensorTypeTemperature:
		return 22 + math.Sin(x/2)*3
	case models.SensorTypeHumidity:
		return 45 + math.Cos(x/3)*10
	case models.SensorTypeAirQuality:
		return 35 + math.Sin(x)*5 + 5
	case models.SensorTypeLuminosity:
		return 300 + math.Cos(x*0.7)*50
	default:
		return 0
	}
}
