package models

import "time"

// Severity of a generated alert
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AlertStatus moves from new to acknowledged exactly once
type AlertStatus string

const (
	AlertStatusNew          AlertStatus = "new"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
)

// Alert is raised when a reading violates its type's threshold
type Alert struct {
	ID         string      `json:"id"`
	SensorID   string      `json:"sensorId"`
	SensorType SensorType  `json:"sensorType"`
	Message    string      `json:"message"`
	Severity   Severity    `json:"severity"`
	Value      float64     `json:"value"`
	Threshold  *float64    `json:"threshold"`
	Status     AlertStatus `json:"status"`
	CreatedAt  time.Time   `json:"createdAt"`
	ResolvedAt *time.Time  `json:"resolvedAt,omitempty"`
}

// IsAcknowledged reports whether the alert reached its terminal state
func (a *Alert) IsAcknowledged() bool {
	return a.Status == AlertStatusAcknowledged
}
