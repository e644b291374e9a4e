package server

import (
	"github.com/afroash/envmon/internal/hub"
	"github.com/afroash/envmon/internal/ingest"
	"github.com/afroash/envmon/internal/models"
	"github.com/afroash/envmon/internal/storage"
)

// SensorStore is the read side of the sensor registry and reading log
// storage.ReadingStore implements this interface
type SensorStore interface {
	// ListSensors returns every registered sensor, oldest first
	ListSensors() ([]*models.Sensor, error)

	// GetSensor returns nil when the sensor is unknown
	GetSensor(id string) (*models.Sensor, error)

	// ListBySensor returns up to limit readings, most recent first
	ListBySensor(sensorID string, limit int) ([]*models.Reading, error)
}

// AlertStore lists and acknowledges alerts
// storage.AlertStore implements this interface
type AlertStore interface {
	ListRecent(limit int) ([]*models.Alert, error)

	// Acknowledge returns nil when the alert is unknown
	Acknowledge(id string) (*models.Alert, error)
}

// ThresholdStore lists and replaces thresholds
// storage.ThresholdStore implements this interface
type ThresholdStore interface {
	List() ([]*models.Threshold, error)
	Upsert(sensorType models.SensorType, minValue, maxValue *float64, unit string) (*models.Threshold, error)
}

// DashboardSource derives dashboard views
// dashboard.Aggregator implements this interface
type DashboardSource interface {
	Snapshot() (*models.DashboardSnapshot, error)
	SensorSnapshot(sensorID string) (*models.SensorSnapshot, error)
}

// LiveHub is the part of the broadcast hub a websocket session talks to
// hub.Hub implements this interface
type LiveHub interface {
	Register(c hub.Client) bool
	Subscribe(c hub.Client) error
	Unsubscribe(c hub.Client)
	Stats() hub.Stats
}

// StorageStatsSource reports database statistics
type StorageStatsSource interface {
	GetStorageStats() (*storage.StorageStats, error)
}

// RetentionStatsSource reports retention sweeper activity
type RetentionStatsSource interface {
	Stats() storage.RetentionSweeperStats
}

// IngestStatsSource reports pipeline counters
type IngestStatsSource interface {
	Stats() ingest.PipelineStats
}

// SessionSource lists connected dashboards
// Handler implements this interface
type SessionSource interface {
	ActiveSessions() []SessionInfo
}
