package models

import "time"

// Trend compares the latest reading of a sensor with the one before it
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// SensorStatus is the latest value judged against the type's threshold
type SensorStatus string

const (
	StatusNormal   SensorStatus = "normal"
	StatusWarning  SensorStatus = "warning"
	StatusCritical SensorStatus = "critical"
)

// SensorSummary is the derived current view of one sensor. It is recomputed
// on every request and never stored.
type SensorSummary struct {
	SensorID      string       `json:"sensorId"`
	SensorType    SensorType   `json:"sensorType"`
	Label         string       `json:"label"`
	Value         float64      `json:"value"`
	Unit          string       `json:"unit"`
	Trend         Trend        `json:"trend"`
	Change        float64      `json:"change"`
	ChangePercent float64      `json:"changePercent"`
	Status        SensorStatus `json:"status"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// HistoryPoint is one chart sample
type HistoryPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// HistoricalSeries holds the most recent points of a sensor, oldest first
type HistoricalSeries struct {
	SensorID   string         `json:"sensorId"`
	SensorType SensorType     `json:"sensorType"`
	Unit       string         `json:"unit"`
	Points     []HistoryPoint `json:"points"`
}

// SensorSnapshot pairs the summary and history of a single sensor
type SensorSnapshot struct {
	Summary *SensorSummary    `json:"summary"`
	History *HistoricalSeries `json:"history"`
}

// DashboardSnapshot is everything the dashboard needs on first load
type DashboardSnapshot struct {
	Summaries  []SensorSummary    `json:"summaries"`
	Alerts     []*Alert           `json:"alerts"`
	Thresholds []*Threshold       `json:"thresholds"`
	History    []HistoricalSeries `json:"history"`
}
