package models

import "time"

// SensorType is the kind of quantity a sensor measures. Thresholds are
// configured per type, not per sensor.
type SensorType string

const (
	SensorTypeTemperature SensorType = "temperature"
	SensorTypeHumidity    SensorType = "humidity"
	SensorTypeAirQuality  SensorType = "airQuality"
	SensorTypeLuminosity  SensorType = "luminosity"
	SensorTypePressure    SensorType = "pressure"
)

// SensorTypes lists every known sensor type
var SensorTypes = []SensorType{
	SensorTypeTemperature,
	SensorTypeHumidity,
	SensorTypeAirQuality,
	SensorTypeLuminosity,
	SensorTypePressure,
}

// ParseSensorType returns the SensorType for s and whether it is known
func ParseSensorType(s string) (SensorType, bool) {
	t := SensorType(s)
	return t, t.IsValid()
}

// IsValid reports whether t is one of the known sensor types
func (t SensorType) IsValid() bool {
	for _, known := range SensorTypes {
		if t == known {
			return true
		}
	}
	return false
}

// DefaultUnit returns the unit assumed when a producer omits one
func (t SensorType) DefaultUnit() string {
	switch t {
	case SensorTypeTemperature:
		return "°C"
	case SensorTypeHumidity:
		return "%"
	case SensorTypeAirQuality:
		return "AQI"
	case SensorTypeLuminosity:
		return "lux"
	case SensorTypePressure:
		return "hPa"
	default:
		return ""
	}
}

// Sensor is a registered sensor. Sensors are created on the first reading
// from an unseen id and never change afterwards.
type Sensor struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Location  string     `json:"location"`
	Type      SensorType `json:"type"`
	CreatedAt time.Time  `json:"createdAt"`
}
