// Package config loads runtime settings.
//
// Values are layered: built-in defaults, then an optional YAML file, then a
// .env file, then BIZSYNC_* environment variables. The result is checked
// against an embedded CUE schema.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BIZSYNC_"

// Config holds runtime settings.
type Config struct {
	DataDir         string        `yaml:"data_dir"`
	Database        string        `yaml:"database"`
	BaseURL         string        `yaml:"base_url"`
	Token           string        `yaml:"token"`
	ProbeURL        string        `yaml:"probe_url"`
	Link            string        `yaml:"link"`
	DrainInterval   time.Duration `yaml:"drain_interval"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
	MaxAttempts     int           `yaml:"max_attempts"`
	RateLimit       float64       `yaml:"rate_limit"`
	RateBurst       int           `yaml:"rate_burst"`
	Listen          string        `yaml:"listen"`
	LogLevel        string        `yaml:"log_level"`
}

// DefaultDataDir is the XDG data directory for bizsync.
func DefaultDataDir() string {
	return filepath.Join(xdg.DataHome, "bizsync")
}

// DefaultConfigPath is where Load looks when no file is named.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "bizsync", "config.yaml")
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DataDir:         DefaultDataDir(),
		DrainInterval:   30 * time.Second,
		DeliveryTimeout: 10 * time.Second,
		Link:            "ethernet",
		MaxAttempts:     5,
		RateLimit:       5,
		RateBurst:       10,
		Listen:          "127.0.0.1:8787",
		LogLevel:        "info",
	}
}

type loadOptions struct {
	envFile string
	lookup  func(string) (string, bool)
}

// Option configures Load.
type Option func(*loadOptions)

// WithEnvFile names the .env file to read. Defaults to ".env".
// An empty name disables .env loading.
func WithEnvFile(path string) Option {
	return func(o *loadOptions) {
		o.envFile = path
	}
}

// WithLookupEnv replaces os.LookupEnv.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(o *loadOptions) {
		o.lookup = fn
	}
}

// Load builds a Config. If path is empty the default config file is used
// when it exists; a named file must exist.
//
// Process environment wins over the .env file, matching godotenv.Load.
func Load(path string, opts ...Option) (Config, error) {
	o := loadOptions{envFile: ".env", lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := Default()

	file, required := path, true
	if file == "" {
		file, required = DefaultConfigPath(), false
	}
	if err := cfg.readYAML(file, required); err != nil {
		return Config{}, err
	}

	dotenv := map[string]string{}
	if o.envFile != "" {
		m, err := godotenv.Read(o.envFile)
		switch {
		case err == nil:
			dotenv = m
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read %s: %w", o.envFile, err)
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := o.lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}

	if cfg.Database == "" {
		cfg.Database = filepath.Join(cfg.DataDir, "bizsync.db")
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readYAML(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DATA_DIR":  &c.DataDir,
		"DATABASE":  &c.Database,
		"BASE_URL":  &c.BaseURL,
		"TOKEN":     &c.Token,
		"PROBE_URL": &c.ProbeURL,
		"LINK":      &c.Link,
		"LISTEN":    &c.Listen,
		"LOG_LEVEL": &c.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"DRAIN_INTERVAL":   &c.DrainInterval,
		"DELIVERY_TIMEOUT": &c.DeliveryTimeout,
	}
	for key, dst := range durations {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
	}

	ints := map[string]*int{
		"MAX_ATTEMPTS": &c.MaxAttempts,
		"RATE_BURST":   &c.RateBurst,
	}
	for key, dst := range ints {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}

	if v, ok := lookup(EnvPrefix + "RATE_LIMIT"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT: %w", EnvPrefix, err)
		}
		c.RateLimit = f
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level. Unknown names map to Info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
