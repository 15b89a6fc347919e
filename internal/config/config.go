package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"

	"multidisplay/internal/logger"
)

const defaultAddr = ":8080"

const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the server configuration. Values come from the environment
// (optionally via a .env file) and may be overridden by flags.
type Config struct {
	Addr string `envconfig:"ADDR"`
	// Port is honoured for hosts that only set PORT. ADDR wins when both
	// are set.
	Port string `envconfig:"PORT"`

	DataDir     string `envconfig:"DATA_DIR" default:"data"`
	Backend     string `envconfig:"STORE_BACKEND" default:"file"`
	RedisURL    string `envconfig:"REDIS_URL"`
	RedisPrefix string `envconfig:"REDIS_PREFIX" default:"multidisplay"`

	OutboxSize         int     `envconfig:"OUTBOX_SIZE" default:"16"`
	TemplateWriteRate  float64 `envconfig:"TEMPLATE_WRITE_RATE" default:"5"`
	TemplateWriteBurst int     `envconfig:"TEMPLATE_WRITE_BURST" default:"10"`

	Log logger.Config `envconfig:"LOG"`
}

// TemplatesDir is where the file backend keeps template bodies.
func (c *Config) TemplatesDir() string {
	return filepath.Join(c.DataDir, "templates")
}

// AssignmentsDir is where the file backend keeps client assignments.
func (c *Config) AssignmentsDir() string {
	return filepath.Join(c.DataDir, "client_info")
}

// Load reads .env (if present), the environment, then args.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
		if port := strings.TrimSpace(cfg.Port); port != "" {
			cfg.Addr = ":" + port
		}
	}

	flags := pflag.NewFlagSet("multidisplay", pflag.ContinueOnError)
	flags.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flags.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for template and assignment files")
	flags.StringVar(&cfg.Backend, "store", cfg.Backend, "store backend: file, memory or redis")
	flags.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "redis URL for the redis backend")
	flags.IntVar(&cfg.OutboxSize, "outbox-size", cfg.OutboxSize, "pending messages per connection before it is dropped")
	flags.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level")
	flags.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "log format: json or console")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that envconfig cannot.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFile, BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Backend)
	}
	if c.OutboxSize < 1 {
		return fmt.Errorf("outbox size must be positive, got %d", c.OutboxSize)
	}
	if c.TemplateWriteRate <= 0 || c.TemplateWriteBurst < 1 {
		return errors.New("template write rate and burst must be positive")
	}
	return nil
}
