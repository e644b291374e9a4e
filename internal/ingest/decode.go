package ingest

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/afroash/envmon/internal/models"
)

var timestampFormats = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Decode parses a raw sensor message into a Reading. Every failure is a
// *models.ValidationError. now supplies the timestamp when the producer
// sent none.
func Decode(data []byte, now time.Time) (*models.Reading, error) {
	var payload models.ReadingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return nil, models.NewValidationError(typeErr.Field, "unexpected "+typeErr.Value)
		}
		return nil, models.NewValidationError("payload", "malformed JSON: "+err.Error())
	}
	return FromPayload(&payload, now)
}

// FromPayload validates an already unmarshalled payload
func FromPayload(payload *models.ReadingPayload, now time.Time) (*models.Reading, error) {
	sensorID := strings.TrimSpace(payload.SensorID)
	if sensorID == "" {
		return nil, models.NewValidationError("sensorId", "is required")
	}

	sensorType, ok := models.ParseSensorType(payload.Type)
	if !ok {
		return nil, models.NewValidationError("type", "unknown sensor type "+strconv.Quote(payload.Type))
	}

	if payload.Value == nil {
		return nil, models.NewValidationError("value", "is required")
	}
	value := *payload.Value
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, models.NewValidationError("value", "must be a finite number")
	}

	unit := payload.Unit
	if unit == "" {
		unit = sensorType.DefaultUnit()
	}

	timestamp := now.UTC()
	if payload.Timestamp != "" {
		ts, err := parseTimestamp(payload.Timestamp)
		if err != nil {
			return nil, models.NewValidationError("timestamp", "unparsable "+strconv.Quote(payload.Timestamp))
		}
		timestamp = ts
	}

	return &models.Reading{
		SensorID:  sensorID,
		Type:      sensorType,
		Value:     value,
		Unit:      unit,
		Timestamp: timestamp,
		Metadata:  payload.Metadata,
	}, nil
}

// parseTimestamp accepts RFC 3339 and zone-less ISO 8601 (read as UTC)
func parseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, format := range timestampFormats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
