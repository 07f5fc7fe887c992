package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.ListenAddr)
	assert.Equal(t, "./downloads", cfg.DownloadDir)
	assert.Equal(t, 10*time.Minute, cfg.Retention)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, "yt-dlp", cfg.YtDlpPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "localhost:4318", cfg.Tracing.Endpoint)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, time.Minute, cfg.ProbeTimeout)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "ytserver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":8080"
download_dir: /srv/downloads
retention: 2m
cookies_from_browser: firefox
tracing:
  enabled: true
  endpoint: collector:4318
`), 0644))

	t.Setenv("YTSERVER_LISTEN_ADDR", ":9090")
	t.Setenv("YTSERVER_NO_CHECK_CERTIFICATE", "true")
	t.Setenv("YTSERVER_TRACING_ENDPOINT", "otel:4318")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "/srv/downloads", cfg.DownloadDir)
	assert.Equal(t, 2*time.Minute, cfg.Retention)
	assert.Equal(t, "firefox", cfg.CookiesFromBrowser)
	assert.True(t, cfg.NoCheckCertificate)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "otel:4318", cfg.Tracing.Endpoint)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("YTSERVER_RETENTION", "0s")

	_, err := Load(viper.New(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retention must be positive")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			ListenAddr:      ":3000",
			DownloadDir:     "d",
			YtDlpPath:       "yt-dlp",
			Retention:       time.Minute,
			SweepInterval:   time.Minute,
			ShutdownTimeout: time.Second,
			ProbeTimeout:    time.Second,
			LogLevel:        "info",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"empty download dir", func(c *Config) { c.DownloadDir = " " }, "download_dir must not be empty"},
		{"empty ytdlp path", func(c *Config) { c.YtDlpPath = "" }, "ytdlp_path must not be empty"},
		{"negative sweep", func(c *Config) { c.SweepInterval = -time.Second }, "sweep_interval must be positive"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "unknown log_level"},
		{"tracing without endpoint", func(c *Config) { c.Tracing.Enabled = true }, "tracing.endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMarshalYAMLRoundTrips(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "retention: 10m0s"), string(data))

	path := filepath.Join(t.TempDir(), "shown.yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))
	reloaded, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, cfg, reloaded)
}
