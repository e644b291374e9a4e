package ingest

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/envmon/internal/models"
)

// ReadingStore is the part of the reading store the pipeline writes to
type ReadingStore interface {
	RegisterSensor(sensor *models.Sensor) (bool, error)
	Append(reading *models.Reading) error
}

// Evaluator checks a stored reading against its threshold
type Evaluator interface {
	Evaluate(reading *models.Reading) (*models.Alert, error)
}

// Broadcaster pushes the recomputed sensor view to live clients
type Broadcaster interface {
	BroadcastSensorUpdate(sensorID string)
}

// Pipeline turns inbound sensor messages into stored readings, alerts and
// live updates. Messages are handled one at a time by the caller.
type Pipeline struct {
	readings    ReadingStore
	evaluator   Evaluator
	broadcaster Broadcaster
	logger      zerolog.Logger
	now         func() time.Time

	received atomic.Int64
	accepted atomic.Int64
	rejected atomic.Int64
	failed   atomic.Int64
	alerted  atomic.Int64
}

// PipelineStats counts what happened to inbound messages
type PipelineStats struct {
	Received int64 `json:"received"`
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
	Failed   int64 `json:"failed"`
	Alerts   int64 `json:"alerts"`
}

// NewPipeline creates a Pipeline. broadcaster may be nil.
func NewPipeline(readings ReadingStore, evaluator Evaluator, broadcaster Broadcaster, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		readings:    readings,
		evaluator:   evaluator,
		broadcaster: broadcaster,
		logger:      logger,
		now:         time.Now,
	}
}

// Ingest decodes, validates and processes one raw message. A malformed
// message returns a *models.ValidationError and changes nothing.
func (p *Pipeline) Ingest(data []byte) error {
	p.received.Add(1)

	reading, err := Decode(data, p.now())
	if err != nil {
		p.rejected.Add(1)
		p.logger.Warn().
			Err(err).
			Int("bytes", len(data)).
			Msg("Dropping invalid sensor message")
		return err
	}

	return p.process(reading)
}

// IngestPayload processes a payload that has already been unmarshalled
func (p *Pipeline) IngestPayload(payload *models.ReadingPayload) error {
	p.received.Add(1)

	reading, err := FromPayload(payload, p.now())
	if err != nil {
		p.rejected.Add(1)
		p.logger.Warn().
			Err(err).
			Str("sensor_id", payload.SensorID).
			Msg("Dropping invalid sensor payload")
		return err
	}

	return p.process(reading)
}

// HandleMessage is the transport callback. Validation failures are logged
// and dropped inside Ingest, so only storage failures are reported.
func (p *Pipeline) HandleMessage(data []byte) error {
	err := p.Ingest(data)
	var validationErr *models.ValidationError
	if errors.As(err, &validationErr) {
		return nil
	}
	return err
}

func (p *Pipeline) process(reading *models.Reading) error {
	location, ok := reading.Location()
	if !ok {
		location = "Unknown"
	}

	created, err := p.readings.RegisterSensor(&models.Sensor{
		ID:       reading.SensorID,
		Name:     "Sensor " + reading.SensorID,
		Location: location,
		Type:     reading.Type,
	})
	if err != nil {
		p.failed.Add(1)
		return fmt.Errorf("failed to register sensor: %w", err)
	}
	if created {
		p.logger.Info().Str("sensor_id", reading.SensorID).Msg("New sensor discovered")
	}

	if err := p.readings.Append(reading); err != nil {
		p.failed.Add(1)
		return fmt.Errorf("failed to store reading: %w", err)
	}
	p.accepted.Add(1)

	p.logger.Debug().
		Str("sensor_id", reading.SensorID).
		Str("type", string(reading.Type)).
		Float64("value", reading.Value).
		Str("unit", reading.Unit).
		Msg("Reading stored")

	alert, evalErr := p.evaluator.Evaluate(reading)
	if evalErr != nil {
		p.logger.Error().Err(evalErr).Str("sensor_id", reading.SensorID).Msg("Threshold evaluation failed")
	}
	if alert != nil {
		p.alerted.Add(1)
	}

	// the reading is stored either way, so clients still get the update
	if p.broadcaster != nil {
		p.broadcaster.BroadcastSensorUpdate(reading.SensorID)
	}

	if evalErr != nil {
		return fmt.Errorf("failed to evaluate reading: %w", evalErr)
	}
	return nil
}

// Stats returns the message counters
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		Received: p.received.Load(),
		Accepted: p.accepted.Load(),
		Rejected: p.rejected.Load(),
		Failed:   p.failed.Load(),
		Alerts:   p.alerted.Load(),
	}
}
