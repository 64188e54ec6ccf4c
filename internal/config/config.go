// Package config loads the formwizard CLI settings from a YAML file and
// FORMWIZARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FORMWIZARD_"

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config is the full CLI configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Wizard  WizardConfig  `yaml:"wizard"`
	API     APIConfig     `yaml:"api"`
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
}

// StorageConfig selects where drafts live. Path is a directory for the file
// backend and a database file for sqlite.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	DSN     string `yaml:"dsn"`
	Root    string `yaml:"root"`
}

type WizardConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// APIConfig points at the events backend. An empty BaseURL runs against an
// in-process backend.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration that runs fully in memory.
func Default() Config {
	return Config{
		Storage: StorageConfig{Backend: BackendMemory, Root: "formwizard"},
		Wizard:  WizardConfig{Debounce: 300 * time.Millisecond},
		API:     APIConfig{Timeout: 10 * time.Second},
		HTTP:    HTTPConfig{Addr: ":8080"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (optional) over the defaults, applies the process
// environment and validates the result.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if lookup != nil {
		if err := cfg.applyEnv(lookup); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"STORAGE_BACKEND": &c.Storage.Backend,
		"STORAGE_PATH":    &c.Storage.Path,
		"STORAGE_DSN":     &c.Storage.DSN,
		"STORAGE_ROOT":    &c.Storage.Root,
		"API_BASE_URL":    &c.API.BaseURL,
		"HTTP_ADDR":       &c.HTTP.Addr,
		"LOG_LEVEL":       &c.Log.Level,
		"LOG_FORMAT":      &c.Log.Format,
	}
	for key, target := range strs {
		if value, ok := lookup(EnvPrefix + key); ok {
			*target = strings.TrimSpace(value)
		}
	}

	durations := map[string]*time.Duration{
		"WIZARD_DEBOUNCE": &c.Wizard.Debounce,
		"API_TIMEOUT":     &c.API.Timeout,
	}
	for key, target := range durations {
		value, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
		}
		*target = d
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("config: "+format, args...))
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendFile, BackendSQLite:
		if strings.TrimSpace(c.Storage.Path) == "" {
			add("storage.path is required for the %s backend", c.Storage.Backend)
		}
	case BackendPostgres:
		if strings.TrimSpace(c.Storage.DSN) == "" {
			add("storage.dsn is required for the postgres backend")
		}
	default:
		add("unknown storage.backend %q", c.Storage.Backend)
	}

	if c.Wizard.Debounce < 0 {
		add("wizard.debounce must not be negative")
	}
	if c.API.Timeout <= 0 {
		add("api.timeout must be positive")
	}
	if c.API.BaseURL != "" {
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			add("api.base_url %q is not an absolute URL", c.API.BaseURL)
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("unknown log.level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		add("unknown log.format %q", c.Log.Format)
	}
	return errors.Join(errs...)
}
