// Package config loads sockread settings from defaults, an optional YAML
// file and SOCKREAD_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/nomasters/sockread/decoder"
	"github.com/nomasters/sockread/errors"
	"github.com/nomasters/sockread/logger"
	"github.com/nomasters/sockread/reader"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "sockread"

// Config holds the reader settings.
type Config struct {
	// Path of the Unix-domain socket to read from.
	Path string `yaml:"path"`

	// ChunkSize is the maximum number of bytes requested per read.
	ChunkSize int `yaml:"chunk_size" split_words:"true"`

	// Mode is the decode strategy, "buffered" or "chunk".
	Mode string `yaml:"mode"`

	// LogLevel is one of debug, info, warn, error or silent.
	LogLevel string `yaml:"log_level" split_words:"true"`

	// LogFile, when set, sends logs to a rotating file instead of stderr.
	LogFile string `yaml:"log_file" split_words:"true"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Path:      reader.DefaultPath,
		ChunkSize: reader.DefaultChunkSize,
		Mode:      string(decoder.ModeBuffered),
		LogLevel:  "info",
	}
}

// Load builds a Config from the defaults, the YAML file at path (skipped when
// path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		if err := c.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("socket path is required")
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: %d", errors.ErrInvalidChunkSize, c.ChunkSize)
	}
	if _, err := decoder.ParseMode(c.Mode); err != nil {
		return err
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error", logger.LevelSilent:
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return nil
}

// ReaderConfig converts c into the reader package's Config.
func (c *Config) ReaderConfig() *reader.Config {
	cfg := reader.DefaultConfig(c.Path)
	cfg.ChunkSize = c.ChunkSize
	cfg.Mode = decoder.Mode(c.Mode)
	return cfg
}
