package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "test-config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return configPath
}

func TestLoadConfig(t *testing.T) {
	configPath := writeConfig(t, `
sensor:
  id: "test-sensor-01"
  location: "Test Lab"
  type: "DHT11"
  gpio_pin: 4
  read_interval: 30s

mqtt:
  broker: "tcp://broker.local:1883"
  username: "publisher"
  password: "mqtt-secret"
  topic: "sensors/+/data"
  qos: 1

buffer:
  size: 1000
  drop_oldest: true

logging:
  level: "info"
  format: "json"
  file_path: "/var/log/sensor.log"
`)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Sensor.ID != "test-sensor-01" {
		t.Errorf("Sensor.ID = %v, want test-sensor-01", cfg.Sensor.ID)
	}
	if cfg.Sensor.GPIOPin != 4 {
		t.Errorf("Sensor.GPIOPin = %v, want 4", cfg.Sensor.GPIOPin)
	}
	if cfg.Sensor.ReadInterval != 30*time.Second {
		t.Errorf("Sensor.ReadInterval = %v, want 30s", cfg.Sensor.ReadInterval)
	}
	if cfg.MQTT.Broker != "tcp://broker.local:1883" {
		t.Errorf("MQTT.Broker = %v", cfg.MQTT.Broker)
	}
	if cfg.MQTT.QoS != 1 {
		t.Errorf("MQTT.QoS = %v, want 1", cfg.MQTT.QoS)
	}
	if cfg.MQTT.ClientID != "envmon-sensor-test-sensor-01" {
		t.Errorf("MQTT.ClientID = %v", cfg.MQTT.ClientID)
	}
	if got := cfg.MQTT.PublishTopic(cfg.Sensor.ID); got != "sensors/test-sensor-01/data" {
		t.Errorf("PublishTopic = %v", got)
	}
	if cfg.Buffer.Size != 1000 {
		t.Errorf("Buffer.Size = %v, want 1000", cfg.Buffer.Size)
	}
	if cfg.Logging.FilePath != "/var/log/sensor.log" {
		t.Errorf("Logging.FilePath = %v", cfg.Logging.FilePath)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("LoadConfig expected error for missing file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "sensor: [unclosed")); err == nil {
		t.Error("LoadConfig expected error for invalid yaml")
	}
}

func TestLoadWatchConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  url: "ws://localhost:8081/ws"
  auth_token: "watch-token"
`)

	cfg, err := LoadWatchConfig(configPath)
	if err != nil {
		t.Fatalf("LoadWatchConfig failed: %v", err)
	}
	if cfg.Server.PingInterval != 30*time.Second {
		t.Errorf("Server.PingInterval = %v, want 30s", cfg.Server.PingInterval)
	}

	// the publisher view of the same file lacks a sensor id
	if _, err := LoadConfig(configPath); err == nil {
		t.Error("LoadConfig expected error without sensor id")
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	if cfg.Sensor.Type != SensorTypeDHT11 {
		t.Errorf("Default Sensor.Type = %v, want DHT11", cfg.Sensor.Type)
	}
	if cfg.Sensor.ReadInterval != 30*time.Second {
		t.Errorf("Default ReadInterval = %v, want 30s", cfg.Sensor.ReadInterval)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("Default MQTT.Broker = %v", cfg.MQTT.Broker)
	}
	if cfg.MQTT.Topic != DefaultSensorTopic {
		t.Errorf("Default MQTT.Topic = %v", cfg.MQTT.Topic)
	}
	if cfg.Buffer.Size != 1000 {
		t.Errorf("Default Buffer.Size = %v, want 1000", cfg.Buffer.Size)
	}
	if !cfg.Buffer.DropOldest {
		t.Error("Default Buffer.DropOldest should be true")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Default Logging = %+v", cfg.Logging)
	}
}

func TestConfig_OverrideFromEnv(t *testing.T) {
	t.Setenv("SENSOR_ID", "env-sensor-01")
	t.Setenv("MQTT_URL", "tcp://env-broker:1883")
	t.Setenv("SERVER_URL", "wss://env-server.com/ws")
	t.Setenv("SERVER_AUTH_TOKEN", "env-token-xyz")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := &Config{
		Sensor:  SensorConfig{ID: "config-sensor"},
		MQTT:    MQTTConfig{Broker: "tcp://config-broker:1883"},
		Server:  ServerConfig{URL: "wss://config-server.com/ws", AuthToken: "config-token"},
		Logging: LoggingConfig{Level: "info"},
	}

	cfg.OverrideFromEnv()

	if cfg.Sensor.ID != "env-sensor-01" {
		t.Errorf("Sensor.ID = %v, want env-sensor-01", cfg.Sensor.ID)
	}
	if cfg.MQTT.Broker != "tcp://env-broker:1883" {
		t.Errorf("MQTT.Broker = %v", cfg.MQTT.Broker)
	}
	if cfg.Server.URL != "wss://env-server.com/ws" {
		t.Errorf("Server.URL = %v", cfg.Server.URL)
	}
	if cfg.Server.AuthToken != "env-token-xyz" {
		t.Errorf("Server.AuthToken = %v", cfg.Server.AuthToken)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}
}

func validConfig() Config {
	cfg := Config{
		Sensor: SensorConfig{ID: "sensor-01", GPIOPin: 4},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantError bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"simulated without pin", func(c *Config) { c.Sensor.Type = SensorTypeSimulated; c.Sensor.GPIOPin = 0 }, false},
		{"missing sensor ID", func(c *Config) { c.Sensor.ID = "" }, true},
		{"invalid GPIO pin", func(c *Config) { c.Sensor.GPIOPin = 0 }, true},
		{"unknown sensor type", func(c *Config) { c.Sensor.Type = "BME280" }, true},
		{"missing broker", func(c *Config) { c.MQTT.Broker = "" }, true},
		{"multi-level wildcard", func(c *Config) { c.MQTT.Topic = "sensors/#" }, true},
		{"invalid qos", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"buffer size too small", func(c *Config) { c.Buffer.Size = 5 }, true},
		{"read interval too short", func(c *Config) { c.Sensor.ReadInterval = 500 * time.Millisecond }, true},
		{"invalid log level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"invalid log format", func(c *Config) { c.Logging.Format = "text" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantError && err == nil {
				t.Error("Validate() expected error, got nil")
			}
			if !tt.wantError && err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestConfig_ValidateWatch(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantError bool
	}{
		{"ws scheme", "ws://localhost:8081/ws", false},
		{"wss scheme", "wss://example.com/ws", false},
		{"missing url", "", true},
		{"http scheme", "http://example.com/ws", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Server: ServerConfig{URL: tt.url}}
			cfg.ApplyDefaults()
			err := cfg.ValidateWatch()
			if tt.wantError && err == nil {
				t.Error("ValidateWatch() expected error, got nil")
			}
			if !tt.wantError && err != nil {
				t.Errorf("ValidateWatch() unexpected error: %v", err)
			}
		})
	}
}

func TestConfig_String_MasksToken(t *testing.T) {
	cfg := &Config{
		Sensor: SensorConfig{ID: "sensor-01"},
		MQTT:   MQTTConfig{Password: "broker-password"},
		Server: ServerConfig{URL: "wss://example.com/ws", AuthToken: "secret-token-12345"},
	}

	str := cfg.String()

	if strings.Contains(str, "secret-token-12345") || strings.Contains(str, "broker-password") {
		t.Error("String() should mask secrets")
	}
	if !strings.Contains(str, "secr****") {
		t.Error("String() should contain masked token")
	}
}

func TestMaskToken(t *testing.T) {
	if got := maskToken("abc"); got != "****" {
		t.Errorf("maskToken(short) = %v", got)
	}
	if got := maskToken("abcdefgh"); got != "abcd****" {
		t.Errorf("maskToken = %v", got)
	}
}
