package sensor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/envmon/internal/models"
)

// Reader orchestrates periodic sensor readings. Every read yields one
// temperature and one humidity payload.
type Reader struct {
	sensor     DHTSensor
	sensorInfo *models.SensorInfo
	interval   time.Duration
	logger     zerolog.Logger
	readings   chan *models.ReadingPayload
	now        func() time.Time
}

// NewReader creates a new sensor reader
func NewReader(sensor DHTSensor, info *models.SensorInfo, interval time.Duration, logger zerolog.Logger) *Reader {
	return &Reader{
		sensor:     sensor,
		sensorInfo: info,
		interval:   interval,
		logger:     logger,
		readings:   make(chan *models.ReadingPayload, 10),
		now:        time.Now,
	}
}

// Start begins periodic reading from the sensor.
// Blocks until ctx is cancelled.
func (r *Reader) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.readAndPublish(ctx)
		}
	}
}

// ReadOnce performs a single reading
func (r *Reader) ReadOnce() ([]*models.ReadingPayload, error) {
	temperature, humidity, err := r.sensor.Read()
	if err != nil {
		return nil, err
	}

	ts := r.now().UTC().Format(time.RFC3339Nano)
	return []*models.ReadingPayload{
		r.payload(models.SensorTypeTemperature, temperature, ts),
		r.payload(models.SensorTypeHumidity, humidity, ts),
	}, nil
}

// SensorID returns the logical sensor id used for readings of sensorType
func SensorID(deviceID string, sensorType models.SensorType) string {
	return deviceID + "-" + string(sensorType)
}

func (r *Reader) payload(sensorType models.SensorType, value float64, ts string) *models.ReadingPayload {
	return &models.ReadingPayload{
		SensorID:  SensorID(r.sensorInfo.ID, sensorType),
		Type:      string(sensorType),
		Value:     &value,
		Unit:      sensorType.DefaultUnit(),
		Timestamp: ts,
		Metadata:  r.sensorInfo.Metadata(),
	}
}

// readAndPublish performs a read and publishes to the channel
func (r *Reader) readAndPublish(ctx context.Context) {
	payloads, err := r.ReadOnce()
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to read from sensor")
		return
	}
	for _, p := range payloads {
		select {
		case r.readings <- p:
		case <-ctx.Done():
			return
		}
	}
	r.logger.Debug().Float64("temperature", *payloads[0].Value).Float64("humidity", *payloads[1].Value).Msg("Read from sensor")
}

// Readings returns the channel where payloads are published
func (r *Reader) Readings() <-chan *models.ReadingPayload {
	return r.readings
}

// Close stops the reader and cleans up resources
func (r *Reader) Close() error {
	return r.sensor.Close()
}
