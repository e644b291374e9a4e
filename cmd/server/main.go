package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/envmon/internal/alerting"
	"github.com/afroash/envmon/internal/config"
	"github.com/afroash/envmon/internal/dashboard"
	"github.com/afroash/envmon/internal/hub"
	"github.com/afroash/envmon/internal/ingest"
	"github.com/afroash/envmon/internal/logging"
	"github.com/afroash/envmon/internal/notify"
	"github.com/afroash/envmon/internal/server"
	"github.com/afroash/envmon/internal/storage"
	"github.com/afroash/envmon/internal/transport"
)

const version = "v0.3.0"

// inbound is the transport feeding the pipeline
type inbound interface {
	Stats() transport.Stats
}

func main() {
	configPath := flag.String("config", "", "path to config file (environment only when empty)")
	seedOnly := flag.Bool("seed", false, "create the schema, insert demo data and exit")
	flag.Parse()

	cfg, err := config.LoadAppConfig(*configPath)
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

	logger.Info().
		Str("version", version).
		Str("transport", cfg.Transport).
		Int("port", cfg.Server.Port).
		Msg("Starting environment monitor server")
	logger.Debug().Msg(cfg.String())

	if err := storage.EnsureDir(cfg.Storage.DBPath); err != nil {
		logger.Fatal().Err(err).Msg("Failed to create data directory")
	}
	sqliteStore, err := storage.NewSQLiteStore(cfg.Storage.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open SQLite store")
	}
	defer func() {
		sqliteStore.Close()
		logger.Info().Msg("SQLiteStore closed")
	}()

	if *seedOnly || cfg.Storage.Seed {
		result, err := sqliteStore.Seed(time.Now())
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to seed database")
		}
		logger.Info().
			Int64("sensors", result.Sensors).
			Int64("thresholds", result.Thresholds).
			Int64("readings", result.Readings).
			Msg("Database seeded")
		if *seedOnly {
			return
		}
	}

	readings := storage.NewReadingStore(sqliteStore, cfg.Storage.ReadingCap)
	alerts := storage.NewAlertStore(sqliteStore, cfg.Storage.AlertCap)
	thresholds := storage.NewThresholdStore(sqliteStore)

	aggregator := dashboard.NewAggregator(readings, thresholds, alerts, logger)
	liveHub := hub.New(aggregator, alerts, cfg.Realtime.InitAlerts, logger)

	dispatcher := newDispatcher(cfg, logger)
	evaluator := alerting.NewEvaluator(thresholds, alerts, liveHub, dispatcher, logger)
	pipeline := ingest.NewPipeline(readings, evaluator, liveHub, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source, stopSource, err := startTransport(ctx, cfg, pipeline.HandleMessage, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start transport")
	}

	sweeper := storage.NewRetentionSweeper(
		map[string]storage.Trimmer{"readings": readings, "alerts": alerts},
		sqliteStore,
		storage.RetentionSweeperConfig{SweepPeriod: cfg.Storage.SweepPeriod},
		logger,
	)

	ws := server.NewHandler(cfg.Server.AuthToken, liveHub, cfg.Realtime.SendBuffer, logger, cfg.Server.AllowedOrigins...)
	api := server.NewAPIHandler(server.APIDeps{
		Sensors:    readings,
		Alerts:     alerts,
		Thresholds: thresholds,
		Dashboard:  aggregator,
		Hub:        liveHub,
		Storage:    sqliteStore,
		Retention:  sweeper,
		Ingest:     pipeline,
		Sessions:   ws,
	}, logger)
	router := server.NewRouter(api, ws, server.RouterConfig{
		AuthToken:      cfg.Server.AuthToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Version:        version,
	}, logger)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	stopSource()
	stats := source.Stats()
	logger.Info().Int64("received", stats.Received).Int64("failed", stats.Failed).Msg("Transport stopped")

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}

	sweeper.Stop()
	logger.Info().Msg("RetentionSweeper stopped")

	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Notification dispatcher did not drain")
	}

	logger.Info().Msg("Server stopped")
}

// newDispatcher wires the configured notification sinks
func newDispatcher(cfg *config.AppConfig, logger zerolog.Logger) *notify.Dispatcher {
	var sinks []notify.Sink
	if cfg.Notify.TelegramEnabled() {
		t := cfg.Notify.Telegram
		sinks = append(sinks, notify.NewTelegramSink(t.APIURL, t.BotToken, t.ChatID))
		logger.Info().Msg("Telegram notifications enabled")
	}
	if cfg.Kafka.Enabled && cfg.Kafka.AlertsTopic != "" {
		sinks = append(sinks, notify.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.AlertsTopic))
		logger.Info().Str("topic", cfg.Kafka.AlertsTopic).Msg("Kafka alert publishing enabled")
	}

	var cooldown notify.Cooldown
	if cfg.Notify.Redis.Addr != "" && cfg.Notify.Cooldown > 0 {
		rc := notify.NewRedisCooldown(cfg.Notify.Redis, cfg.Notify.Cooldown, logger)
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rc.Ping(pingCtx); err != nil {
			logger.Warn().Err(err).Msg("Redis unreachable, cooldown fails open until it recovers")
		}
		cancel()
		cooldown = rc
	}

	return notify.NewDispatcher(sinks, cooldown, cfg.Notify.Timeout, logger)
}

// startTransport starts the configured inbound transport. The returned stop
// function blocks until no more messages are delivered.
func startTransport(ctx context.Context, cfg *config.AppConfig, handler transport.Handler, logger zerolog.Logger) (inbound, func(), error) {
	switch cfg.Transport {
	case config.TransportKafka:
		consumer := transport.NewKafkaConsumer(cfg.Kafka, handler, logger)
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			consumer.Run(runCtx)
		}()
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.ReadingsTopic).Msg("Consuming readings from Kafka")
		return consumer, func() {
			cancel()
			<-done
			if err := consumer.Close(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close Kafka reader")
			}
		}, nil
	default:
		subscriber := transport.NewMQTTSubscriber(cfg.MQTT, handler, logger)
		if err := subscriber.Start(); err != nil {
			return nil, nil, err
		}
		return subscriber, subscriber.Stop, nil
	}
}
