package server

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all control panel configuration.
type Config struct {
	mu sync.RWMutex

	// Rover serial link
	Serial SerialConfig `yaml:"serial" json:"serial"`

	// Rover camera
	Camera CameraConfig `yaml:"camera" json:"camera"`

	// GPS track plot
	Plot PlotConfig `yaml:"plot" json:"plot"`

	// Telemetry recording
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// MQTT republish
	MQTT MQTTConfig `yaml:"mqtt" json:"mqtt"`

	// Server
	Server ServerConfig `yaml:"server" json:"server"`

	// Echo raw and parsed telemetry lines to the console
	Debug bool `yaml:"debug" json:"debug"`

	path string // file path for save/load
}

type SerialConfig struct {
	Type          string `yaml:"type" json:"type"`          // "serial", "demo" or "disabled"
	PortPath      string `yaml:"port_path" json:"portPath"` // e.g. /dev/ttyUSB0, COM3
	BaudRate      int    `yaml:"baud_rate" json:"baudRate"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms" json:"readTimeoutMs"`
	IdleMs        int    `yaml:"idle_ms" json:"idleMs"` // wait after an empty poll
}

type CameraConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	BaseURL     string `yaml:"base_url" json:"baseUrl"`         // ESP32-CAM address
	CapturePath string `yaml:"capture_path" json:"capturePath"` // still image endpoint
	TimeoutMs   int    `yaml:"timeout_ms" json:"timeoutMs"`
	MaxFPS      int    `yaml:"max_fps" json:"maxFps"` // 0 = unlimited
	JPEGQuality int    `yaml:"jpeg_quality" json:"jpegQuality"`
}

type PlotConfig struct {
	Width  int `yaml:"width" json:"width"`   // px
	Height int `yaml:"height" json:"height"` // px
}

type LoggingConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Path     string `yaml:"path" json:"path"`
	Format   string `yaml:"format" json:"format"`          // "csv" or "sqlite"
	Interval int    `yaml:"interval_ms" json:"intervalMs"` // ms between log entries, 0 = all
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Broker   string `yaml:"broker" json:"broker"` // e.g. tcp://localhost:1883
	ClientID string `yaml:"client_id" json:"clientId"`
	Topic    string `yaml:"topic" json:"topic"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			Type:          "serial",
			PortPath:      "/dev/ttyUSB0",
			BaudRate:      115200,
			ReadTimeoutMs: 1000,
			IdleMs:        10,
		},
		Camera: CameraConfig{
			Enabled:     true,
			BaseURL:     "http://10.21.93.7",
			CapturePath: "/capture",
			TimeoutMs:   1000,
			MaxFPS:      0,
			JPEGQuality: 85,
		},
		Plot: PlotConfig{
			Width:  500,
			Height: 400,
		},
		Logging: LoggingConfig{
			Enabled:  false,
			Path:     "/var/log/roverdash",
			Format:   "csv",
			Interval: 0,
		},
		MQTT: MQTTConfig{
			Enabled:  false,
			Broker:   "tcp://localhost:1883",
			ClientID: "roverdash",
			Topic:    "rover/telemetry",
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	// Load .env file from the same directory as the config, or from CWD
	envPaths := []string{
		filepath.Join(filepath.Dir(path), ".env"),
		".env",
	}
	for _, ep := range envPaths {
		loadEnvFile(ep)
	}

	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Printf("[config] loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		// Real env takes precedence
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

func truthy(v string) bool {
	return v == "1" || v == "true" || v == "yes"
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: SERIAL_TYPE, SERIAL_PORT, SERIAL_BAUD, CAM_URL, CAM_ENABLED,
// CAM_MAX_FPS, LISTEN_ADDR, LOG_ENABLED, LOG_PATH, LOG_FORMAT,
// LOG_INTERVAL_MS, MQTT_ENABLED, MQTT_BROKER, MQTT_TOPIC, DEBUG
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SERIAL_TYPE"); v != "" {
		c.Serial.Type = v
	}
	if v := os.Getenv("SERIAL_PORT"); v != "" {
		c.Serial.PortPath = v
	}
	if v := os.Getenv("SERIAL_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Serial.BaudRate = n
		}
	}
	if v := os.Getenv("CAM_URL"); v != "" {
		c.Camera.BaseURL = v
	}
	if v := os.Getenv("CAM_ENABLED"); v != "" {
		c.Camera.Enabled = truthy(v)
	}
	if v := os.Getenv("CAM_MAX_FPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Camera.MaxFPS = n
		}
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	// Logging
	if v := os.Getenv("LOG_ENABLED"); v != "" {
		c.Logging.Enabled = truthy(v)
	}
	if v := os.Getenv("LOG_PATH"); v != "" {
		c.Logging.Path = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("LOG_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Logging.Interval = n
		}
	}
	// MQTT
	if v := os.Getenv("MQTT_ENABLED"); v != "" {
		c.MQTT.Enabled = truthy(v)
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("MQTT_TOPIC"); v != "" {
		c.MQTT.Topic = v
	}
	if v := os.Getenv("DEBUG"); v != "" {
		c.Debug = truthy(v)
	}
}

// ReadTimeout is the serial read timeout.
func (s SerialConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMs) * time.Millisecond
}

// Idle is the wait after a serial poll that returned no line.
func (s SerialConfig) Idle() time.Duration {
	return time.Duration(s.IdleMs) * time.Millisecond
}

// Timeout is the per-request camera timeout.
func (c CameraConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		c.path = "/etc/roverdash/config.yaml"
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config. Fields not present in the
// incoming JSON are preserved.
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}

	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}

	deepMerge(base, patch)

	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged config: %w", err)
	}
	// Decode into a scratch copy so a bad field leaves c untouched.
	var next Config
	if err := json.Unmarshal(merged, &next); err != nil {
		return fmt.Errorf("apply patch: %w", err)
	}
	c.Serial = next.Serial
	c.Camera = next.Camera
	c.Plot = next.Plot
	c.Logging = next.Logging
	c.MQTT = next.MQTT
	c.Server = next.Server
	c.Debug = next.Debug
	return nil
}

// LoggingEnabled reports the current logging.enabled setting.
func (c *Config) LoggingEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Logging.Enabled
}

// deepMerge recursively merges src into dst. For nested maps, values are
// merged rather than replaced. For all other types, src overwrites dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
