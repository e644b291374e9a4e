package dashboard

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/afroash/envmon/internal/models"
)

const (
	// HistoryWindow is the number of points kept per chart series
	HistoryWindow = 30

	// SnapshotAlerts is the number of alerts in a full dashboard snapshot
	SnapshotAlerts = 20
)

// ReadingSource is the read side of the reading store
type ReadingSource interface {
	ListSensors() ([]*models.Sensor, error)
	GetSensor(id string) (*models.Sensor, error)
	ListBySensor(sensorID string, limit int) ([]*models.Reading, error)
}

// ThresholdSource is the read side of the threshold store
type ThresholdSource interface {
	Get(sensorType models.SensorType) (*models.Threshold, error)
	List() ([]*models.Threshold, error)
}

// AlertSource is the read side of the alert store
type AlertSource interface {
	ListRecent(limit int) ([]*models.Alert, error)
}

// Aggregator derives dashboard views from the stores. It never writes.
type Aggregator struct {
	readings   ReadingSource
	thresholds ThresholdSource
	alerts     AlertSource
	logger     zerolog.Logger
}

// NewAggregator creates an Aggregator
func NewAggregator(readings ReadingSource, thresholds ThresholdSource, alerts AlertSource, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		readings:   readings,
		thresholds: thresholds,
		alerts:     alerts,
		logger:     logger,
	}
}

// Snapshot builds the full dashboard view. Sensors without retained
// readings are left out of summaries and history.
func (a *Aggregator) Snapshot() (*models.DashboardSnapshot, error) {
	sensors, err := a.readings.ListSensors()
	if err != nil {
		return nil, fmt.Errorf("failed to list sensors: %w", err)
	}

	thresholds, err := a.thresholds.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list thresholds: %w", err)
	}
	byType := make(map[models.SensorType]*models.Threshold, len(thresholds))
	for _, t := range thresholds {
		byType[t.SensorType] = t
	}

	alerts, err := a.alerts.ListRecent(SnapshotAlerts)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	snapshot := &models.DashboardSnapshot{
		Summaries:  []models.SensorSummary{},
		Alerts:     alerts,
		Thresholds: thresholds,
		History:    []models.HistoricalSeries{},
	}

	for _, sensor := range sensors {
		recent, err := a.readings.ListBySensor(sensor.ID, HistoryWindow)
		if err != nil {
			return nil, fmt.Errorf("failed to list readings for %s: %w", sensor.ID, err)
		}
		if len(recent) == 0 {
			continue
		}

		snapshot.Summaries = append(snapshot.Summaries, *Summarize(sensor, recent, byType[recent[0].Type]))
		snapshot.History = append(snapshot.History, *BuildHistory(sensor.ID, recent))
	}

	return snapshot, nil
}

// SensorSnapshot builds the summary and history of one sensor. It returns
// nil when the sensor is unknown or has no retained readings.
func (a *Aggregator) SensorSnapshot(sensorID string) (*models.SensorSnapshot, error) {
	sensor, err := a.readings.GetSensor(sensorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sensor %s: %w", sensorID, err)
	}
	if sensor == nil {
		return nil, nil
	}

	recent, err := a.readings.ListBySensor(sensorID, HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to list readings for %s: %w", sensorID, err)
	}
	if len(recent) == 0 {
		return nil, nil
	}

	threshold, err := a.thresholds.Get(recent[0].Type)
	if err != nil {
		return nil, fmt.Errorf("failed to get threshold: %w", err)
	}

	return &models.SensorSnapshot{
		Summary: Summarize(sensor, recent, threshold),
		History: BuildHistory(sensorID, recent),
	}, nil
}
