package models

import "time"

// SensorInfo describes the device a publisher process runs on
type SensorInfo struct {
	ID         string    `json:"id"`
	Location   string    `json:"location"`
	SensorType string    `json:"sensor_type"`
	Version    string    `json:"version"`
	StartTime  time.Time `json:"start_time"`
}

// Uptime returns the duration since the publisher started
func (s *SensorInfo) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// Metadata returns the metadata bag attached to every published reading
func (s *SensorInfo) Metadata() map[string]any {
	return map[string]any{
		"location": s.Location,
		"device":   s.SensorType,
		"version":  s.Version,
	}
}

// NewSensorInfo creates a new SensorInfo with the current time as start time
func NewSensorInfo(id, location, sensorType, version string) *SensorInfo {
	return &SensorInfo{
		ID:         id,
		Location:   location,
		SensorType: sensorType,
		Version:    version,
		StartTime:  time.Now(),
	}
}
