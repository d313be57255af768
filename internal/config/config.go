package config

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Env type for environment
type Env string

const (
	// Dev is the development environment
	Dev Env = "dev"
	// Prod is the production environment
	Prod Env = "prod"
)

// EngineInMemory is the only supported engine type
const EngineInMemory = "in_memory"

// MaxMessageSizeLimit caps network.max_message_size
const MaxMessageSizeLimit = math.MaxInt32

// Config is the configuration for the application
type Config struct {
	Env     Env           `yaml:"env" env:"ENV" env-default:"dev"`
	Engine  EngineConfig  `yaml:"engine"`
	Network NetworkConfig `yaml:"network"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// EngineConfig is the configuration for the engine
type EngineConfig struct {
	Type            string        `yaml:"type" env-default:"in_memory"`
	Shards          int           `yaml:"shards" env-default:"16"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env-default:"1s"`
}

// NetworkConfig is the configuration for the network
type NetworkConfig struct {
	Address             string        `yaml:"address" env:"ADDRESS" env-default:"127.0.0.1:8080"`
	MaxConnections      int           `yaml:"max_connections" env-default:"100"`
	MaxMessageSize      string        `yaml:"max_message_size" env-default:"512KB"`
	MaxMessageSizeBytes uint64        `yaml:"-"` // calculated field
	IdleTimeout         time.Duration `yaml:"idle_timeout" env-default:"5m"`
	CommandsPerSecond   int           `yaml:"commands_per_second" env-default:"0"`
}

// LoggingConfig is the configuration for the logging
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Output string `yaml:"output" env:"LOG_OUTPUT" env-default:"stdout"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED" env-default:"false"`
	Address string `yaml:"address" env:"METRICS_ADDRESS" env-default:"127.0.0.1:9121"`
}

// NewConfig creates a new instance of Config.
// An empty path skips the file and uses environment variables and defaults only.
func NewConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		// Load configuration from yaml file
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Load environment variables
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read env variables: %w", err)
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Finalize fills calculated fields and validates the configuration.
// It must be called again after fields are changed by hand.
func (c *Config) Finalize() error {
	size, err := parseSize(c.Network.MaxMessageSize)
	if err != nil {
		return fmt.Errorf("invalid network.max_message_size: %w", err)
	}
	c.Network.MaxMessageSizeBytes = size

	return c.Validate()
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.Env != Dev && c.Env != Prod {
		errs = append(errs, fmt.Errorf("unknown env %q", c.Env))
	}
	if c.Engine.Type != EngineInMemory {
		errs = append(errs, fmt.Errorf("unsupported engine type %q", c.Engine.Type))
	}
	if c.Engine.Shards <= 0 {
		errs = append(errs, errors.New("engine.shards must be positive"))
	}
	if c.Network.Address == "" {
		errs = append(errs, errors.New("network.address must be set"))
	}
	if c.Network.MaxConnections <= 0 {
		errs = append(errs, errors.New("network.max_connections must be positive"))
	}
	if c.Network.MaxMessageSizeBytes == 0 {
		errs = append(errs, errors.New("network.max_message_size must be positive"))
	}
	if c.Network.MaxMessageSizeBytes > MaxMessageSizeLimit {
		errs = append(errs, fmt.Errorf("network.max_message_size must not exceed %d bytes", MaxMessageSizeLimit))
	}
	if c.Network.CommandsPerSecond < 0 {
		errs = append(errs, errors.New("network.commands_per_second must not be negative"))
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, errors.New("metrics.address must be set when metrics are enabled"))
	}

	return errors.Join(errs...)
}
