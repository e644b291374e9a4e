package alerting

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/afroash/envmon/internal/models"
)

// highSeverityFactor marks an overshoot past max*factor as high severity
const highSeverityFactor = 1.2

// ThresholdSource looks up the threshold for a sensor type
type ThresholdSource interface {
	Get(sensorType models.SensorType) (*models.Threshold, error)
}

// AlertSink persists alerts
type AlertSink interface {
	Append(alert *models.Alert) error
}

// Broadcaster pushes new alerts to live clients
type Broadcaster interface {
	BroadcastAlert(alert *models.Alert)
}

// Notifier delivers an alert to external channels. Notify must not block;
// delivery happens in the background.
type Notifier interface {
	Notify(alert *models.Alert)
}

// Evaluator raises alerts for readings outside their type's threshold
type Evaluator struct {
	thresholds  ThresholdSource
	alerts      AlertSink
	broadcaster Broadcaster
	notifier    Notifier
	logger      zerolog.Logger
}

// NewEvaluator creates an Evaluator. broadcaster and notifier may be nil.
func NewEvaluator(thresholds ThresholdSource, alerts AlertSink, broadcaster Broadcaster, notifier Notifier, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		thresholds:  thresholds,
		alerts:      alerts,
		broadcaster: broadcaster,
		notifier:    notifier,
		logger:      logger,
	}
}

// Evaluate checks reading against its threshold. When it is violated the
// alert is persisted, broadcast and handed to the notifier, in that order.
// No threshold or no violation returns nil.
func (e *Evaluator) Evaluate(reading *models.Reading) (*models.Alert, error) {
	threshold, err := e.thresholds.Get(reading.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to load threshold for %s: %w", reading.Type, err)
	}

	alert := Detect(reading, threshold)
	if alert == nil {
		return nil, nil
	}
	alert.ID = uuid.NewString()

	if err := e.alerts.Append(alert); err != nil {
		return nil, fmt.Errorf("failed to persist alert: %w", err)
	}

	e.logger.Warn().
		Str("alert_id", alert.ID).
		Str("sensor_id", alert.SensorID).
		Str("severity", string(alert.Severity)).
		Float64("value", alert.Value).
		Msg(alert.Message)

	if e.broadcaster != nil {
		e.broadcaster.BroadcastAlert(alert)
	}
	if e.notifier != nil {
		c := *alert
		e.notifier.Notify(&c)
	}

	return alert, nil
}

// Detect builds the alert for reading if it violates threshold. The result
// has no ID. A nil threshold never alerts.
func Detect(reading *models.Reading, threshold *models.Threshold) *models.Alert {
	if threshold == nil {
		return nil
	}

	above := threshold.AboveMax(reading.Value)
	below := threshold.BelowMin(reading.Value)
	if !above && !below {
		return nil
	}

	// only an overshoot of the max can be high; undershoot stays medium
	severity := models.SeverityMedium
	if threshold.MaxValue != nil && reading.Value > *threshold.MaxValue*highSeverityFactor {
		severity = models.SeverityHigh
	}

	direction := "below"
	if above {
		direction = "above"
	}

	limit := threshold.MaxValue
	if limit == nil {
		limit = threshold.MinValue
	}
	var thresholdValue *float64
	if limit != nil {
		v := *limit
		thresholdValue = &v
	}

	return &models.Alert{
		SensorID:   reading.SensorID,
		SensorType: reading.Type,
		Message:    formatMessage(direction, reading.Value, reading.Unit),
		Severity:   severity,
		Value:      reading.Value,
		Threshold:  thresholdValue,
		Status:     models.AlertStatusNew,
		CreatedAt:  reading.Timestamp,
	}
}

func formatMessage(direction string, value float64, unit string) string {
	amount := strings.TrimSpace(fmt.Sprintf("%.1f %s", value, unit))
	return fmt.Sprintf("Value %s limit (%s)", direction, amount)
}
