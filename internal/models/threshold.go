package models

import "time"

// Threshold holds the allowed range for one sensor type. A nil bound means
// the range is open on that side.
type Threshold struct {
	SensorType SensorType `json:"sensorType"`
	MinValue   *float64   `json:"minValue"`
	MaxValue   *float64   `json:"maxValue"`
	Unit       string     `json:"unit"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// ThresholdUpdate is the operator payload for replacing a threshold row
type ThresholdUpdate struct {
	MinValue *float64 `json:"minValue"`
	MaxValue *float64 `json:"maxValue"`
	Unit     string   `json:"unit"`
}

// AboveMax reports whether value exceeds the configured maximum
func (t *Threshold) AboveMax(value float64) bool {
	return t.MaxValue != nil && value > *t.MaxValue
}

// BelowMin reports whether value is under the configured minimum
func (t *Threshold) BelowMin(value float64) bool {
	return t.MinValue != nil && value < *t.MinValue
}

// Float returns a pointer to v, for building optional bounds
func Float(v float64) *float64 {
	return &v
}
