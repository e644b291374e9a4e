package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Transports accepted for inbound readings
const (
	TransportMQTT  = "mqtt"
	TransportKafka = "kafka"
)

// AppConfig holds configuration for the monitoring server
type AppConfig struct {
	Server    ServerSettings   `yaml:"server"`
	MQTT      MQTTConfig       `yaml:"mqtt"`
	Kafka     KafkaSettings    `yaml:"kafka"`
	Storage   StorageSettings  `yaml:"storage"`
	Realtime  RealtimeSettings `yaml:"realtime"`
	Notify    NotifySettings   `yaml:"notify"`
	Transport string           `yaml:"transport"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// ServerSettings contains HTTP server configuration
type ServerSettings struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	AuthToken       string        `yaml:"auth_token"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// KafkaSettings configures the alert sink and the optional Kafka transport
type KafkaSettings struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	ReadingsTopic string   `yaml:"readings_topic"`
	AlertsTopic   string   `yaml:"alerts_topic"`
	GroupID       string   `yaml:"group_id"`
}

// StorageSettings contains storage configuration
type StorageSettings struct {
	DBPath      string        `yaml:"db_path"`
	ReadingCap  int           `yaml:"reading_cap"`
	AlertCap    int           `yaml:"alert_cap"`
	SweepPeriod time.Duration `yaml:"sweep_period"`
	Seed        bool          `yaml:"seed"`
}

// RealtimeSettings configures the live dashboard channel
type RealtimeSettings struct {
	InitAlerts int `yaml:"init_alerts"`
	SendBuffer int `yaml:"send_buffer"`
}

// NotifySettings configures outbound alert delivery
type NotifySettings struct {
	Timeout  time.Duration    `yaml:"timeout"`
	Cooldown time.Duration    `yaml:"cooldown"`
	Telegram TelegramSettings `yaml:"telegram"`
	Redis    RedisSettings    `yaml:"redis"`
}

// TelegramSettings holds the bot credentials; empty disables Telegram
type TelegramSettings struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	APIURL   string `yaml:"api_url"`
}

// RedisSettings locates the cooldown store; empty Addr disables it
type RedisSettings struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TelegramEnabled reports whether both bot token and chat id are set
func (n NotifySettings) TelegramEnabled() bool {
	return n.Telegram.BotToken != "" && n.Telegram.ChatID != ""
}

// LoadAppConfig loads server configuration. A .env file in the working
// directory is applied first when present; an empty path skips the YAML
// file and uses defaults plus environment.
func LoadAppConfig(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var config AppConfig
	if path != "" {
		yamlData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(yamlData, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.ApplyDefaults()
	if err := config.OverrideFromEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// ApplyDefaults sets default values for server config
func (ac *AppConfig) ApplyDefaults() {
	if ac.Server.Port == 0 {
		ac.Server.Port = 8081
	}
	if ac.Server.Host == "" {
		ac.Server.Host = "localhost"
	}
	if ac.Server.ReadTimeout == 0 {
		ac.Server.ReadTimeout = 60 * time.Second
	}
	if ac.Server.WriteTimeout == 0 {
		ac.Server.WriteTimeout = 10 * time.Second
	}
	if ac.Server.ShutdownTimeout == 0 {
		ac.Server.ShutdownTimeout = 10 * time.Second
	}
	if ac.Transport == "" {
		ac.Transport = TransportMQTT
	}

	ac.MQTT.applyDefaults("envmon-server")

	if ac.Kafka.ReadingsTopic == "" {
		ac.Kafka.ReadingsTopic = "sensor-readings"
	}
	if ac.Kafka.AlertsTopic == "" {
		ac.Kafka.AlertsTopic = "sensor-alerts"
	}
	if ac.Kafka.GroupID == "" {
		ac.Kafka.GroupID = "envmon"
	}

	if ac.Storage.DBPath == "" {
		ac.Storage.DBPath = "./data/envmon.db"
	}
	if ac.Storage.ReadingCap == 0 {
		ac.Storage.ReadingCap = 1000
	}
	if ac.Storage.AlertCap == 0 {
		ac.Storage.AlertCap = 100
	}
	if ac.Storage.SweepPeriod == 0 {
		ac.Storage.SweepPeriod = 10 * time.Minute
	}

	if ac.Realtime.InitAlerts == 0 {
		ac.Realtime.InitAlerts = 5
	}
	if ac.Realtime.SendBuffer == 0 {
		ac.Realtime.SendBuffer = 64
	}

	if ac.Notify.Timeout == 0 {
		ac.Notify.Timeout = 10 * time.Second
	}
	if ac.Notify.Cooldown == 0 {
		ac.Notify.Cooldown = 5 * time.Minute
	}
	if ac.Notify.Telegram.APIURL == "" {
		ac.Notify.Telegram.APIURL = "https://api.telegram.org"
	}

	ac.Logging.applyDefaults()
}

// OverrideFromEnv overrides config from environment variables
func (ac *AppConfig) OverrideFromEnv() error {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SERVER_PORT %q: %w", v, err)
		}
		ac.Server.Port = port
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		ac.Server.Host = v
	}
	if v := os.Getenv("SERVER_AUTH_TOKEN"); v != "" {
		ac.Server.AuthToken = v
	}
	if v := os.Getenv("CORS_ORIGIN"); v != "" {
		ac.Server.AllowedOrigins = splitList(v)
	}

	ac.MQTT.overrideFromEnv()
	if v := os.Getenv("MQTT_SENSOR_TOPIC"); v != "" {
		ac.MQTT.Topic = v
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		ac.Kafka.Brokers = splitList(v)
		ac.Kafka.Enabled = true
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		ac.Storage.DBPath = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		ac.Notify.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		ac.Notify.Telegram.ChatID = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		ac.Notify.Redis.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		ac.Logging.Level = v
	}
	return nil
}

// Validate checks if server configuration is valid
func (ac *AppConfig) Validate() error {
	if ac.Server.Port < 1 || ac.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	switch ac.Transport {
	case TransportMQTT:
		if ac.MQTT.Broker == "" {
			return fmt.Errorf("mqtt broker is required for the mqtt transport")
		}
		if ac.MQTT.Topic == "" {
			return fmt.Errorf("mqtt topic is required for the mqtt transport")
		}
	case TransportKafka:
		if len(ac.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required for the kafka transport")
		}
	default:
		return fmt.Errorf("transport must be %q or %q, got %q", TransportMQTT, TransportKafka, ac.Transport)
	}
	if ac.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}
	if ac.Kafka.Enabled && len(ac.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}

	if ac.Storage.ReadingCap < 1 {
		return fmt.Errorf("reading cap must be at least 1")
	}
	if ac.Storage.AlertCap < 1 {
		return fmt.Errorf("alert cap must be at least 1")
	}
	if ac.Realtime.InitAlerts < 1 {
		return fmt.Errorf("init alerts must be at least 1")
	}
	if ac.Realtime.SendBuffer < 1 {
		return fmt.Errorf("send buffer must be at least 1")
	}
	if (ac.Notify.Telegram.BotToken == "") != (ac.Notify.Telegram.ChatID == "") {
		return fmt.Errorf("telegram bot token and chat id must be set together")
	}

	return ac.Logging.validate()
}

// Addr returns the host:port the HTTP server listens on
func (ac *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", ac.Server.Host, ac.Server.Port)
}

// String returns a safe string representation (hides secrets)
func (ac *AppConfig) String() string {
	return fmt.Sprintf("AppConfig{Server: [Addr=%s, Token=%s, Origins=%v], Transport: %s, MQTT: [Broker=%s, Topic=%s, User=%s, Password=%s], Kafka: %+v, Storage: %+v, Realtime: %+v, Notify: [Telegram=%v, BotToken=%s, Redis=%s, Cooldown=%s], Logging: %+v}",
		ac.Addr(),
		maskToken(ac.Server.AuthToken),
		ac.Server.AllowedOrigins,
		ac.Transport,
		ac.MQTT.Broker,
		ac.MQTT.Topic,
		ac.MQTT.Username,
		maskToken(ac.MQTT.Password),
		ac.Kafka,
		ac.Storage,
		ac.Realtime,
		ac.Notify.TelegramEnabled(),
		maskToken(ac.Notify.Telegram.BotToken),
		ac.Notify.Redis.Addr,
		ac.Notify.Cooldown,
		ac.Logging,
	)
}

// splitList splits a comma separated env value, dropping blanks
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
