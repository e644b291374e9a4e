package models

import (
	"fmt"
	"maps"
	"time"
)

// Reading is one timestamped measurement from one sensor
type Reading struct {
	ID        string         `json:"id"`
	SensorID  string         `json:"sensorId"`
	Type      SensorType     `json:"type"`
	Value     float64        `json:"value"`
	Unit      string         `json:"unit"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ReadingPayload is the JSON document producers publish on the sensor topic.
// Value is a pointer so that a missing value can be told apart from zero.
type ReadingPayload struct {
	SensorID  string         `json:"sensorId"`
	Type      string         `json:"type"`
	Value     *float64       `json:"value"`
	Unit      string         `json:"unit,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Location returns the "location" metadata entry when it is a non-empty string
func (r *Reading) Location() (string, bool) {
	if r.Metadata == nil {
		return "", false
	}
	loc, ok := r.Metadata["location"].(string)
	if !ok || loc == "" {
		return "", false
	}
	return loc, true
}

// get the reading as a string
func (r *Reading) String() string {
	return fmt.Sprintf("SensorID: %s, Type: %s, Value: %.2f %s, Timestamp: %s",
		r.SensorID,
		r.Type,
		r.Value,
		r.Unit,
		r.Timestamp.Format(time.RFC3339))
}

// Copy returns a deep copy of the Reading
func (r *Reading) Copy() *Reading {
	if r == nil {
		return nil
	}
	c := *r
	if r.Metadata != nil {
		c.Metadata = maps.Clone(r.Metadata)
	}
	return &c
}
