package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/envmon/internal/client"
	"github.com/afroash/envmon/internal/config"
	"github.com/afroash/envmon/internal/logging"
	"github.com/afroash/envmon/internal/models"
	"github.com/afroash/envmon/internal/sensor"
	"github.com/afroash/envmon/internal/transport"
)

const version = "v0.3.0"

const statsInterval = time.Minute

func main() {
	configPath := flag.String("config", "configs/sensor.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()
	logger = logger.With().Str("sensor_id", cfg.Sensor.ID).Logger()

	logger.Info().
		Str("version", version).
		Str("type", cfg.Sensor.Type).
		Dur("interval", cfg.Sensor.ReadInterval).
		Msg("Starting sensor publisher")
	logger.Debug().Msg(cfg.String())

	source, err := openSensor(cfg.Sensor)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open sensor")
	}

	info := models.NewSensorInfo(cfg.Sensor.ID, cfg.Sensor.Location, cfg.Sensor.Type, version)
	reader := sensor.NewReader(source, info, cfg.Sensor.ReadInterval, logger)
	defer reader.Close()

	buffer := client.NewReadingBuffer(cfg.Buffer.Size, cfg.Buffer.DropOldest)
	publisher := transport.NewPublisher(cfg.MQTT, cfg.Sensor.ID, buffer, logger)
	if err := publisher.Connect(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to MQTT broker")
	}
	defer publisher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, reader, publisher, logger); err != nil {
		logger.Error().Err(err).Msg("Sensor publisher failed")
	}
	logger.Info().Str("buffer", buffer.String()).Msg("Sensor publisher stopped")
}

func openSensor(cfg config.SensorConfig) (sensor.DHTSensor, error) {
	switch cfg.Type {
	case config.SensorTypeSimulated:
		return sensor.NewSimulatedSensor(time.Now().UnixNano()), nil
	default:
		dht, err := sensor.NewDHT11Reader(cfg.GPIOPin)
		if err != nil {
			return nil, err
		}
		return dht, nil
	}
}

// run reads and publishes until ctx is cancelled
func run(ctx context.Context, reader *sensor.Reader, publisher *transport.Publisher, logger zerolog.Logger) error {
	readErr := make(chan error, 1)
	go func() {
		readErr <- reader.Start(ctx)
	}()

	go func() {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := publisher.Stats()
				logger.Info().
					Bool("connected", stats.Connected).
					Int64("published", stats.Published).
					Int("buffered", stats.Buffered).
					Int64("dropped", stats.Buffer.TotalDropped).
					Msg("Publisher stats")
			}
		}
	}()

	publisher.Run(ctx, reader.Readings())

	err := <-readErr
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
