package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv(EnvAPIURL, "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.ini"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8001", cfg.BaseURL)
	assert.Equal(t, 8, cfg.EstimateSeconds)
	assert.Equal(t, 1000, cfg.TickIntervalMs)
	assert.Equal(t, 100, cfg.PageLimit)
	assert.Equal(t, 0, cfg.ReadRetries)
	assert.True(t, cfg.Notifications.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv(EnvAPIURL, "")
	path := filepath.Join(t.TempDir(), "sub", "config.ini")

	cfg := New()
	cfg.BaseURL = "https://cleanup.internal:9000"
	cfg.EstimateSeconds = 12
	cfg.PageLimit = 250
	cfg.ProxyMode = "basic"
	cfg.ProxyHost = "proxy.corp"
	cfg.ProxyPassword = "hunter2"
	cfg.Notifications.UploadFailed = false
	cfg.Export.S3Region = "ap-southeast-1"
	require.NoError(t, Save(cfg, path))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestEnvOverridesBaseURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	require.NoError(t, os.WriteFile(path, []byte("[service]\nbase_url = http://from-file:1\n"), 0600))

	t.Setenv(EnvAPIURL, "http://from-env:2")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:2", cfg.BaseURL)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	require.NoError(t, os.WriteFile(path, []byte("[service\nbase_url"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"empty url", func(c *Config) { c.BaseURL = " " }, ErrMissingBaseURL},
		{"relative url", func(c *Config) { c.BaseURL = "localhost:8001" }, ErrInvalidBaseURL},
		{"ftp url", func(c *Config) { c.BaseURL = "ftp://host" }, ErrInvalidBaseURL},
		{"zero timeout", func(c *Config) { c.TimeoutSeconds = 0 }, ErrInvalidTimeout},
		{"too many retries", func(c *Config) { c.ReadRetries = 11 }, ErrInvalidReadRetries},
		{"zero rate", func(c *Config) { c.RequestsPerSecond = 0 }, ErrInvalidRate},
		{"zero estimate", func(c *Config) { c.EstimateSeconds = 0 }, ErrInvalidEstimate},
		{"zero tick", func(c *Config) { c.TickIntervalMs = 0 }, ErrInvalidTickInterval},
		{"page too large", func(c *Config) { c.PageLimit = 1001 }, ErrInvalidPageLimit},
		{"bad proxy mode", func(c *Config) { c.ProxyMode = "socks" }, ErrInvalidProxyMode},
		{"ntlm without host", func(c *Config) { c.ProxyMode = "ntlm" }, ErrMissingProxyHost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			assert.True(t, errors.Is(cfg.Validate(), tt.want), "got %v", cfg.Validate())
		})
	}
}

func TestSetAndGet(t *testing.T) {
	cfg := New()

	require.NoError(t, cfg.Set("upload.estimate_seconds", "15"))
	assert.Equal(t, 15, cfg.EstimateSeconds)

	require.NoError(t, cfg.Set("Notifications.Enabled", "false"))
	assert.False(t, cfg.Notifications.Enabled)

	require.NoError(t, cfg.Set("service.requests_per_second", "2.5"))
	v, err := cfg.Get("service.requests_per_second")
	require.NoError(t, err)
	assert.Equal(t, "2.5", v)

	err = cfg.Set("upload.estimate_seconds", "soon")
	assert.Error(t, err)

	err = cfg.Set("service.api_key", "x")
	assert.True(t, errors.Is(err, ErrUnknownKey))
}

func TestEntriesMaskSecrets(t *testing.T) {
	cfg := New()
	cfg.ProxyPassword = "hunter2"
	for _, e := range cfg.Entries() {
		if e[0] == "proxy.password" {
			assert.Equal(t, "********", e[1])
			return
		}
	}
	t.Fatal("proxy.password missing from entries")
}

func TestKeysSorted(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "service.base_url")
	assert.IsNonDecreasing(t, keys)
}
