// Package config loads the railyard configuration file and applies
// environment overrides. Everything has a working default so the binary
// runs with no file at all.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings such as
// "500ms" or "2.5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Store backend names accepted in the config file.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreREST   = "rest"
)

// Config is the full railyard configuration.
type Config struct {
	// Store selects the section store backend: memory, redis or rest.
	Store string `yaml:"store"`

	// Backend is the document-store HTTP endpoint (store: rest).
	Backend BackendConfig `yaml:"backend"`
	// Redis is the redis connection (store: redis).
	Redis RedisConfig `yaml:"redis"`

	// Events is the push channel the tracker listens on.
	Events EventsConfig `yaml:"events"`

	// Serve configures the built-in dev server.
	Serve ServeConfig `yaml:"serve"`

	// Debounce is the write-coalescing window for pending graph edits.
	Debounce Duration `yaml:"debounce"`
	// Dwell is how long completed/error badges linger before reverting.
	Dwell Duration `yaml:"dwell"`
	// Pulse is how long a flow edge stays highlighted.
	Pulse Duration `yaml:"pulse"`

	LogLevel string `yaml:"logLevel"`
}

type BackendConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type EventsConfig struct {
	URL string `yaml:"url"`
}

type ServeConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Store:    StoreMemory,
		Backend:  BackendConfig{URL: "http://localhost:8080"},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Events:   EventsConfig{URL: "ws://localhost:8080/events"},
		Serve:    ServeConfig{Addr: ":8080"},
		Debounce: Duration(500 * time.Millisecond),
		Dwell:    Duration(2500 * time.Millisecond),
		Pulse:    Duration(750 * time.Millisecond),
		LogLevel: "info",
	}
}

// Load reads the config file at path, falling back to defaults when the
// file does not exist, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv lets deployment environments override the file without editing it.
func (c *Config) applyEnv() {
	if v := os.Getenv("RAILYARD_STORE"); v != "" {
		c.Store = v
	}
	if v := os.Getenv("RAILYARD_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("RAILYARD_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("RAILYARD_EVENTS_URL"); v != "" {
		c.Events.URL = v
	}
	if v := os.Getenv("RAILYARD_SERVE_ADDR"); v != "" {
		c.Serve.Addr = v
	}
	if v := os.Getenv("RAILYARD_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) validate() error {
	switch c.Store {
	case StoreMemory, StoreRedis, StoreREST:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store)
	}
	if c.Debounce.Std() < 0 || c.Dwell.Std() < 0 || c.Pulse.Std() < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}
