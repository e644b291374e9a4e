package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Sensor drivers understood by the publisher
const (
	SensorTypeDHT11     = "DHT11"
	SensorTypeSimulated = "simulated"
)

// DefaultSensorTopic is the wildcard the server subscribes to
const DefaultSensorTopic = "sensors/+/data"

// Config holds all configuration for the sensor publisher and the watch client
type Config struct {
	Sensor  SensorConfig  `yaml:"sensor"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Server  ServerConfig  `yaml:"server"`
	Buffer  BufferConfig  `yaml:"buffer"`
	Logging LoggingConfig `yaml:"logging"`
}

// SensorConfig contains sensor-specific settings
type SensorConfig struct {
	ID           string        `yaml:"id"`
	Location     string        `yaml:"location"`
	Type         string        `yaml:"type"`
	GPIOPin      int           `yaml:"gpio_pin"`
	ReadInterval time.Duration `yaml:"read_interval"`
}

// MQTTConfig describes a broker connection. Topic may contain a single
// level "+" wildcard; publishers substitute their sensor id for it.
type MQTTConfig struct {
	Broker               string        `yaml:"broker"`
	ClientID             string        `yaml:"client_id"`
	Username             string        `yaml:"username"`
	Password             string        `yaml:"password"`
	Topic                string        `yaml:"topic"`
	QoS                  byte          `yaml:"qos"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	KeepAlive            time.Duration `yaml:"keep_alive"`
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval"`
}

// ServerConfig contains connection settings for the live feed of the server
type ServerConfig struct {
	URL                  string        `yaml:"url"`
	AuthToken            string        `yaml:"auth_token"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	PongTimeout          time.Duration `yaml:"pong_timeout"`
}

// BufferConfig contains settings for the offline reading buffer
type BufferConfig struct {
	Size       int  `yaml:"size"`
	DropOldest bool `yaml:"drop_oldest"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"file_path"`
}

// PublishTopic returns the concrete topic for sensorID
func (m MQTTConfig) PublishTopic(sensorID string) string {
	return strings.Replace(m.Topic, "+", sensorID, 1)
}

func (m *MQTTConfig) applyDefaults(clientID string) {
	if m.Broker == "" {
		m.Broker = "tcp://localhost:1883"
	}
	if m.ClientID == "" {
		m.ClientID = clientID
	}
	if m.Topic == "" {
		m.Topic = DefaultSensorTopic
	}
	if m.ConnectTimeout == 0 {
		m.ConnectTimeout = 10 * time.Second
	}
	if m.KeepAlive == 0 {
		m.KeepAlive = 30 * time.Second
	}
	if m.MaxReconnectInterval == 0 {
		m.MaxReconnectInterval = 5 * time.Minute
	}
}

func (m *MQTTConfig) overrideFromEnv() {
	if v := os.Getenv("MQTT_URL"); v != "" {
		m.Broker = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		m.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		m.Password = v
	}
}

func (l *LoggingConfig) applyDefaults() {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "json"
	}
}

func (l *LoggingConfig) validate() error {
	if _, err := zerolog.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("invalid log level %q", l.Level)
	}
	if l.Format != "json" && l.Format != "console" {
		return fmt.Errorf("log format must be json or console")
	}
	return nil
}

// LoadConfig loads publisher configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	config, err := readConfig(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// LoadWatchConfig loads configuration for the live feed client. Only the
// server and logging sections are required.
func LoadWatchConfig(path string) (*Config, error) {
	config, err := readConfig(path)
	if err != nil {
		return nil, err
	}
	if err := config.ValidateWatch(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

func readConfig(path string) (*Config, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var config Config
	if err := yaml.Unmarshal(yamlData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	config.OverrideFromEnv()
	return &config, nil
}

// ApplyDefaults sets default values for any unset fields
func (c *Config) ApplyDefaults() {
	if c.Sensor.Type == "" {
		c.Sensor.Type = SensorTypeDHT11
	}
	if c.Sensor.ReadInterval == 0 {
		c.Sensor.ReadInterval = 30 * time.Second
	}

	clientID := "envmon-sensor"
	if c.Sensor.ID != "" {
		clientID += "-" + c.Sensor.ID
	}
	c.MQTT.applyDefaults(clientID)

	if c.Server.ConnectTimeout == 0 {
		c.Server.ConnectTimeout = 10 * time.Second
	}
	if c.Server.ReconnectInterval == 0 {
		c.Server.ReconnectInterval = 1 * time.Second
	}
	if c.Server.MaxReconnectInterval == 0 {
		c.Server.MaxReconnectInterval = 5 * time.Minute
	}
	if c.Server.PingInterval == 0 {
		c.Server.PingInterval = 30 * time.Second
	}
	if c.Server.PongTimeout == 0 {
		c.Server.PongTimeout = 10 * time.Second
	}
	if c.Buffer.Size == 0 {
		c.Buffer.Size = 1000
		c.Buffer.DropOldest = true
	}
	c.Logging.applyDefaults()
}

// OverrideFromEnv overrides config values from environment variables
func (c *Config) OverrideFromEnv() {
	if v := os.Getenv("SENSOR_ID"); v != "" {
		c.Sensor.ID = v
	}
	if v := os.Getenv("SENSOR_LOCATION"); v != "" {
		c.Sensor.Location = v
	}
	c.MQTT.overrideFromEnv()
	if v := os.Getenv("SERVER_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("SERVER_AUTH_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks if the publisher configuration is valid
func (c *Config) Validate() error {
	if c.Sensor.ID == "" {
		return fmt.Errorf("sensor ID is required")
	}
	switch c.Sensor.Type {
	case SensorTypeDHT11:
		if c.Sensor.GPIOPin <= 0 {
			return fmt.Errorf("GPIO pin must be greater than 0")
		}
	case SensorTypeSimulated:
	default:
		return fmt.Errorf("sensor type must be %s or %s", SensorTypeDHT11, SensorTypeSimulated)
	}
	if c.Sensor.ReadInterval < 1*time.Second {
		return fmt.Errorf("read interval must be at least 1 second")
	}
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt broker is required")
	}
	if strings.Count(c.MQTT.Topic, "+") > 1 || strings.Contains(c.MQTT.Topic, "#") {
		return fmt.Errorf("mqtt topic may contain at most one + wildcard")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}
	if c.Buffer.Size < 10 || c.Buffer.Size > 100000 {
		return fmt.Errorf("buffer size must be between 10 and 100000")
	}
	return c.Logging.validate()
}

// ValidateWatch checks the settings the live feed client needs
func (c *Config) ValidateWatch() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server URL is required")
	}
	if !strings.HasPrefix(c.Server.URL, "ws://") && !strings.HasPrefix(c.Server.URL, "wss://") {
		return fmt.Errorf("server URL must start with ws:// or wss://")
	}
	if c.Server.ReconnectInterval < 1*time.Second {
		return fmt.Errorf("reconnect interval must be at least 1 second")
	}
	return c.Logging.validate()
}

// String returns a safe string representation (hides secrets)
func (c *Config) String() string {
	return fmt.Sprintf("Config{Sensor: %+v, MQTT: [Broker=%s, Topic=%s, User=%s, Password=%s], Server: [URL=%s, Token=%s], Buffer: %+v, Logging: %+v}",
		c.Sensor,
		c.MQTT.Broker,
		c.MQTT.Topic,
		c.MQTT.Username,
		maskToken(c.MQTT.Password),
		c.Server.URL,
		maskToken(c.Server.AuthToken),
		c.Buffer,
		c.Logging,
	)
}

// maskToken masks all but first 4 characters of a token
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
