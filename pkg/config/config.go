// Package config loads server settings from file, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. YTSERVER_LISTEN_ADDR
const EnvPrefix = "YTSERVER"

// TracingConfig controls span export
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// Config is the complete server configuration
type Config struct {
	ListenAddr         string        `mapstructure:"listen_addr"`
	DownloadDir        string        `mapstructure:"download_dir"`
	Retention          time.Duration `mapstructure:"retention"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	YtDlpPath          string        `mapstructure:"ytdlp_path"`
	FFmpegLocation     string        `mapstructure:"ffmpeg_location"`
	CookiesFromBrowser string        `mapstructure:"cookies_from_browser"`
	UserAgent          string        `mapstructure:"user_agent"`
	NoCheckCertificate bool          `mapstructure:"no_check_certificate"`
	StaticDir          string        `mapstructure:"static_dir"`
	LogLevel           string        `mapstructure:"log_level"`
	LogJSON            bool          `mapstructure:"log_json"`
	LogFile            bool          `mapstructure:"log_file"`
	Tracing            TracingConfig `mapstructure:"tracing"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	ProbeTimeout       time.Duration `mapstructure:"probe_timeout"`
}

// SetDefaults registers every key with its default value
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":3000")
	v.SetDefault("download_dir", "./downloads")
	v.SetDefault("retention", "10m")
	v.SetDefault("sweep_interval", "1m")
	v.SetDefault("ytdlp_path", "yt-dlp")
	v.SetDefault("ffmpeg_location", "")
	v.SetDefault("cookies_from_browser", "")
	v.SetDefault("user_agent", "")
	v.SetDefault("no_check_certificate", false)
	v.SetDefault("static_dir", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("log_file", false)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("shutdown_timeout", "30s")
	v.SetDefault("probe_timeout", "60s")
}

// DefaultPath returns $HOME/.ytserver/config.yaml, or "" without a home dir
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ytserver", "config.yaml")
}

// Load reads configuration into v and decodes it. An explicit path must
// exist; the default location is optional.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	def := DefaultPath()
	switch {
	case path != "":
		v.SetConfigFile(path)
	case def != "":
		v.AddConfigPath(filepath.Dir(def))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" || def != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if path != "" || !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	var problems []string

	required := map[string]string{
		"listen_addr":  c.ListenAddr,
		"download_dir": c.DownloadDir,
		"ytdlp_path":   c.YtDlpPath,
	}
	for _, key := range []string{"listen_addr", "download_dir", "ytdlp_path"} {
		if strings.TrimSpace(required[key]) == "" {
			problems = append(problems, key+" must not be empty")
		}
	}

	durations := []struct {
		key   string
		value time.Duration
	}{
		{"retention", c.Retention},
		{"sweep_interval", c.SweepInterval},
		{"shutdown_timeout", c.ShutdownTimeout},
		{"probe_timeout", c.ProbeTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			problems = append(problems, d.key+" must be positive")
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		problems = append(problems, fmt.Sprintf("unknown log_level %q", c.LogLevel))
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		problems = append(problems, "tracing.endpoint is required when tracing is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// displayConfig is the YAML view of Config with readable durations
type displayConfig struct {
	ListenAddr         string `yaml:"listen_addr"`
	DownloadDir        string `yaml:"download_dir"`
	Retention          string `yaml:"retention"`
	SweepInterval      string `yaml:"sweep_interval"`
	YtDlpPath          string `yaml:"ytdlp_path"`
	FFmpegLocation     string `yaml:"ffmpeg_location"`
	CookiesFromBrowser string `yaml:"cookies_from_browser"`
	UserAgent          string `yaml:"user_agent"`
	NoCheckCertificate bool   `yaml:"no_check_certificate"`
	StaticDir          string `yaml:"static_dir"`
	LogLevel           string `yaml:"log_level"`
	LogJSON            bool   `yaml:"log_json"`
	LogFile            bool   `yaml:"log_file"`
	Tracing            struct {
		Enabled  bool   `yaml:"enabled"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"tracing"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	ProbeTimeout    string `yaml:"probe_timeout"`
}

// MarshalYAML renders durations as strings so the output can be fed back
// into Load.
func (c Config) MarshalYAML() (interface{}, error) {
	out := displayConfig{
		ListenAddr:         c.ListenAddr,
		DownloadDir:        c.DownloadDir,
		Retention:          c.Retention.String(),
		SweepInterval:      c.SweepInterval.String(),
		YtDlpPath:          c.YtDlpPath,
		FFmpegLocation:     c.FFmpegLocation,
		CookiesFromBrowser: c.CookiesFromBrowser,
		UserAgent:          c.UserAgent,
		NoCheckCertificate: c.NoCheckCertificate,
		StaticDir:          c.StaticDir,
		LogLevel:           c.LogLevel,
		LogJSON:            c.LogJSON,
		LogFile:            c.LogFile,
		ShutdownTimeout:    c.ShutdownTimeout.String(),
		ProbeTimeout:       c.ProbeTimeout.String(),
	}
	out.Tracing.Enabled = c.Tracing.Enabled
	out.Tracing.Endpoint = c.Tracing.Endpoint
	return out, nil
}
