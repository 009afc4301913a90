package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/agenthands/graphmerge/internal/errors"
	"github.com/agenthands/graphmerge/internal/logging"
)

// Duration is a time.Duration that reads TOML strings such as "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type StoreConfig struct {
	URI            string   `toml:"uri"`
	User           string   `toml:"user"`
	Password       string   `toml:"password"`
	Database       string   `toml:"database"`
	Dialect        string   `toml:"dialect"` // neo4j or memgraph
	MaxPoolSize    int      `toml:"max_pool_size"`
	ConnectTimeout Duration `toml:"connect_timeout"`
}

type BatchConfig struct {
	Size           int      `toml:"size"`
	MaxAttempts    int      `toml:"max_attempts"`
	BaseDelay      Duration `toml:"base_delay"`
	MaxDelay       Duration `toml:"max_delay"`
	AttemptTimeout Duration `toml:"attempt_timeout"`
}

type SourceConfig struct {
	Kind  string `toml:"kind"` // graph, file or postgres
	Path  string `toml:"path"`
	DSN   string `toml:"dsn"`
	Table string `toml:"table"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type StepsConfig struct {
	Skip []int `toml:"skip"`
}

type Config struct {
	Store  StoreConfig    `toml:"store"`
	Batch  BatchConfig    `toml:"batch"`
	Source SourceConfig   `toml:"source"`
	Log    logging.Config `toml:"log"`
	Server ServerConfig   `toml:"server"`
	Steps  StepsConfig    `toml:"steps"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			URI:            "bolt://localhost:7687",
			Dialect:        "neo4j",
			MaxPoolSize:    50,
			ConnectTimeout: Duration{10 * time.Second},
		},
		Batch: BatchConfig{
			Size:           500,
			MaxAttempts:    5,
			BaseDelay:      Duration{500 * time.Millisecond},
			MaxDelay:       Duration{30 * time.Second},
			AttemptTimeout: Duration{2 * time.Minute},
		},
		Source: SourceConfig{Kind: "graph", Table: "staged_records"},
		Log:    logging.DefaultConfig(),
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load reads a TOML file on top of Default. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.NewConfigError("config", "failed to parse TOML", err)
	}

	return cfg, nil
}

// Validate checks the values the engine depends on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Store.URI) == "" {
		return errors.NewConfigError("store", "uri is required", nil)
	}
	switch c.Store.Dialect {
	case "neo4j", "memgraph":
	default:
		return errors.NewConfigError("store", fmt.Sprintf("unsupported dialect %q", c.Store.Dialect), nil)
	}
	if c.Batch.Size <= 0 {
		return errors.NewConfigError("batch", "size must be positive", nil)
	}
	if c.Batch.MaxAttempts <= 0 {
		return errors.NewConfigError("batch", "max_attempts must be positive", nil)
	}
	if c.Batch.MaxDelay.Duration < c.Batch.BaseDelay.Duration {
		return errors.NewConfigError("batch", "max_delay must not be below base_delay", nil)
	}
	switch c.Source.Kind {
	case "graph":
	case "file":
		if c.Source.Path == "" {
			return errors.NewConfigError("source", "path is required for file sources", nil)
		}
	case "postgres":
		if c.Source.DSN == "" {
			return errors.NewConfigError("source", "dsn is required for postgres sources", nil)
		}
	default:
		return errors.NewConfigError("source", fmt.Sprintf("unsupported kind %q", c.Source.Kind), nil)
	}
	for _, idx := range c.Steps.Skip {
		if idx <= 0 {
			return errors.NewConfigError("steps", fmt.Sprintf("skip index %d must be 1-based", idx), nil)
		}
	}
	return nil
}
