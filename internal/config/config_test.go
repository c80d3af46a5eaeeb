package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) Option {
	return WithLookupEnv(func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	})
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeFile(t, "config.yaml", "")

	cfg, err := Load(path, WithEnvFile(""), env(nil))
	require.NoError(t, err)

	assert.Equal(t, DefaultDataDir(), cfg.DataDir)
	assert.Equal(t, filepath.Join(cfg.DataDir, "bizsync.db"), cfg.Database)
	assert.Equal(t, 30*time.Second, cfg.DrainInterval)
	assert.Equal(t, 10*time.Second, cfg.DeliveryTimeout)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, "127.0.0.1:8787", cfg.Listen)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "ethernet", cfg.Link)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
data_dir: /var/lib/bizsync
base_url: https://api.example.com
drain_interval: 45s
max_attempts: 3
rate_limit: 2.5
`)

	cfg, err := Load(path, WithEnvFile(""), env(nil))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/bizsync", cfg.DataDir)
	assert.Equal(t, "/var/lib/bizsync/bizsync.db", cfg.Database)
	assert.Equal(t, "https://api.example.com", cfg.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.DrainInterval)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.InDelta(t, 2.5, cfg.RateLimit, 1e-9)
}

func TestLoad_EnvWinsOverDotenv(t *testing.T) {
	path := writeFile(t, "config.yaml", "max_attempts: 2\n")
	dotenv := writeFile(t, ".env", "BIZSYNC_MAX_ATTEMPTS=7\nBIZSYNC_LISTEN=:9000\n")

	cfg, err := Load(path, WithEnvFile(dotenv), env(map[string]string{
		"BIZSYNC_MAX_ATTEMPTS":   "9",
		"BIZSYNC_DRAIN_INTERVAL": "2s",
		"BIZSYNC_TOKEN":          "secret",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.MaxAttempts)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, 2*time.Second, cfg.DrainInterval)
	assert.Equal(t, "secret", cfg.Token)
}

func TestLoad_MissingDotenvIgnored(t *testing.T) {
	path := writeFile(t, "config.yaml", "")

	_, err := Load(path, WithEnvFile(filepath.Join(t.TempDir(), "absent.env")), env(nil))
	require.NoError(t, err)
}

func TestLoad_NamedFileMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), WithEnvFile(""), env(nil))
	require.Error(t, err)
}

func TestLoad_BadEnvValue(t *testing.T) {
	path := writeFile(t, "config.yaml", "")

	_, err := Load(path, WithEnvFile(""), env(map[string]string{"BIZSYNC_DELIVERY_TIMEOUT": "soon"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BIZSYNC_DELIVERY_TIMEOUT")
}

func TestLoad_SchemaRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero attempts", "max_attempts: 0\n"},
		{"bad level", "log_level: loud\n"},
		{"bad url", "base_url: ftp://example.com\n"},
		{"bad listen", "listen: localhost\n"},
		{"bad link", "link: carrier_pigeon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "config.yaml", tt.yaml)

			_, err := Load(path, WithEnvFile(""), env(nil))
			require.Error(t, err)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "expected ValidationError, got %T: %v", err, err)
		})
	}
}

func TestValidate_Default(t *testing.T) {
	cfg := Default()
	cfg.Database = "bizsync.db"
	assert.NoError(t, Validate(cfg))
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", Config{LogLevel: "debug"}.SlogLevel().String())
	assert.Equal(t, "INFO", Config{LogLevel: "whatever"}.SlogLevel().String())
	assert.Equal(t, "ERROR", Config{LogLevel: "ERROR"}.SlogLevel().String())
}
