package fltrain

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml"
)

const (
	DefaultHost              = "localhost"
	DefaultPort              = 8777
	DefaultLogLevel          = "info"
	DefaultMQTTTimeout       = 30 * time.Second
	DefaultHeartbeatInterval = 10 * time.Second

	workerEnvPrefix      = "FL_WORKER_"
	coordinatorEnvPrefix = "FL_COORDINATOR_"
)

// DefaultMaxFrameSize bounds a single websocket frame read from a coordinator.
const DefaultMaxFrameSize int64 = 64 << 20

type Config struct {
	Worker      WorkerConfig      `toml:"worker"`
	Coordinator CoordinatorConfig `toml:"coordinator"`
}

type WorkerConfig struct {
	ID           string        `toml:"id" env:"ID"`
	Host         string        `toml:"host" env:"HOST"`
	Port         int           `toml:"port" env:"PORT"`
	DataDir      string        `toml:"data_dir" env:"DATA_DIR"`
	SkipSamples  bool          `toml:"skip_samples" env:"SKIP_SAMPLES"`
	WorkloadKey  string        `toml:"workload_key" env:"WORKLOAD_KEY"` // Key used to open models sent by coordinators
	HandleTTL    time.Duration `toml:"handle_ttl" env:"HANDLE_TTL"`
	MaxFrameSize int64         `toml:"max_frame_size" env:"MAX_FRAME_SIZE"` // Bytes
	LogLevel     string        `toml:"log_level" env:"LOG_LEVEL"`
	MQTT         MQTTConfig    `toml:"mqtt" envPrefix:"MQTT_"`
}

type MQTTConfig struct {
	URL               string        `toml:"url" env:"URL"`
	Username          string        `toml:"username" env:"USERNAME"`
	Password          string        `toml:"password" env:"PASSWORD"`
	Timeout           time.Duration `toml:"timeout" env:"TIMEOUT"`
	HeartbeatInterval time.Duration `toml:"heartbeat_interval" env:"HEARTBEAT_INTERVAL"`
	CAPath            string        `toml:"ca_path" env:"CA_PATH"`
	CertPath          string        `toml:"cert_path" env:"CERT_PATH"`
	KeyPath           string        `toml:"key_path" env:"KEY_PATH"`
}

type CoordinatorConfig struct {
	Host        string `toml:"host" env:"HOST"`
	Port        int    `toml:"port" env:"PORT"`
	ID          string `toml:"id" env:"ID"`
	Verbose     bool   `toml:"verbose" env:"VERBOSE"`
	WorkloadKey string `toml:"workload_key" env:"WORKLOAD_KEY"` // Key used to seal models before sending
}

// LoadConfig reads the TOML file at path, when given, then applies
// FL_WORKER_* and FL_COORDINATOR_* environment overrides and defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}

		tree, err := toml.Load(string(data))
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}

		if err := tree.Unmarshal(&cfg); err != nil {
			return nil, fmt.Errorf("error unmarshaling config: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg.Worker, env.Options{Prefix: workerEnvPrefix}); err != nil {
		return nil, fmt.Errorf("error loading worker env config: %w", err)
	}
	if err := env.ParseWithOptions(&cfg.Coordinator, env.Options{Prefix: coordinatorEnvPrefix}); err != nil {
		return nil, fmt.Errorf("error loading coordinator env config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Worker.Host == "" {
		c.Worker.Host = "0.0.0.0"
	}
	if c.Worker.Port == 0 {
		c.Worker.Port = DefaultPort
	}
	if c.Worker.MaxFrameSize <= 0 {
		c.Worker.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.Worker.LogLevel == "" {
		c.Worker.LogLevel = DefaultLogLevel
	}
	if c.Worker.MQTT.Timeout == 0 {
		c.Worker.MQTT.Timeout = DefaultMQTTTimeout
	}
	if c.Worker.MQTT.HeartbeatInterval == 0 {
		c.Worker.MQTT.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Coordinator.Host == "" {
		c.Coordinator.Host = DefaultHost
	}
	if c.Coordinator.Port == 0 {
		c.Coordinator.Port = DefaultPort
	}
}
