package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/traffix-ai/traffix-dashboard/internal/api"
)

// EnvPrefix is prepended to every environment override, e.g.
// TRAFFIX_API_BASE_URL or TRAFFIX_CAMERA_SOURCE.
const EnvPrefix = "TRAFFIX"

// Camera sources.
const (
	CameraNone    = "none"
	CameraPattern = "pattern"
	CameraMJPEG   = "mjpeg"
)

// Archive backends.
const (
	ArchiveLocal = "local"
	ArchiveS3    = "s3"
)

// Config defines the runtime configuration of the dashboard.
type Config struct {
	APIBaseURL          string        `mapstructure:"api_base_url"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	RefreshAfterAnalyze bool          `mapstructure:"refresh_after_analyze"`

	HTTPAddr       string        `mapstructure:"http_addr"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`
	StatusInterval time.Duration `mapstructure:"status_interval"`
	MJPEGInterval  time.Duration `mapstructure:"mjpeg_interval"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`

	LogLevel string `mapstructure:"log_level"`
	LogColor bool   `mapstructure:"log_color"`
	LogJSON  bool   `mapstructure:"log_json"`

	Camera  CameraConfig  `mapstructure:"camera"`
	Archive ArchiveConfig `mapstructure:"archive"`
}

type CameraConfig struct {
	Source      string `mapstructure:"source"`
	URL         string `mapstructure:"url"`
	Width       int    `mapstructure:"width"`
	Height      int    `mapstructure:"height"`
	JPEGQuality int    `mapstructure:"jpeg_quality"`
}

type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	QueueSize int    `mapstructure:"queue_size"`
}

// DefaultConfig returns a config matching the stock dashboard page.
func DefaultConfig() Config {
	return Config{
		APIBaseURL:          "http://127.0.0.1:8000",
		PollInterval:        10 * time.Second,
		RequestTimeout:      0,
		RefreshAfterAnalyze: true,
		HTTPAddr:            ":8080",
		MetricsAddr:         ":9090",
		StatusInterval:      2 * time.Second,
		MJPEGInterval:       100 * time.Millisecond,
		CORSOrigins:         []string{"*"},
		LogLevel:            "info",
		LogColor:            true,
		Camera: CameraConfig{
			Source:      CameraPattern,
			Width:       640,
			Height:      480,
			JPEGQuality: 85,
		},
		Archive: ArchiveConfig{
			Backend:   ArchiveLocal,
			Dir:       "./captures",
			Prefix:    "captures",
			QueueSize: 16,
		},
	}
}

// NewViper returns a viper instance with every key defaulted and
// TRAFFIX_* environment overrides enabled.
func NewViper() *viper.Viper {
	v := viper.New()
	d := DefaultConfig()

	v.SetDefault("api_base_url", d.APIBaseURL)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("refresh_after_analyze", d.RefreshAfterAnalyze)
	v.SetDefault("http_addr", d.HTTPAddr)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("status_interval", d.StatusInterval)
	v.SetDefault("mjpeg_interval", d.MJPEGInterval)
	v.SetDefault("cors_origins", d.CORSOrigins)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_color", d.LogColor)
	v.SetDefault("log_json", d.LogJSON)

	v.SetDefault("camera.source", d.Camera.Source)
	v.SetDefault("camera.url", d.Camera.URL)
	v.SetDefault("camera.width", d.Camera.Width)
	v.SetDefault("camera.height", d.Camera.Height)
	v.SetDefault("camera.jpeg_quality", d.Camera.JPEGQuality)

	v.SetDefault("archive.enabled", d.Archive.Enabled)
	v.SetDefault("archive.backend", d.Archive.Backend)
	v.SetDefault("archive.dir", d.Archive.Dir)
	v.SetDefault("archive.bucket", d.Archive.Bucket)
	v.SetDefault("archive.prefix", d.Archive.Prefix)
	v.SetDefault("archive.region", d.Archive.Region)
	v.SetDefault("archive.queue_size", d.Archive.QueueSize)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads .env (if present), the optional config file and the
// environment into a validated Config.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	decoderConfigOption := viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err := v.Unmarshal(&cfg, decoderConfigOption); err != nil {
		return Config{}, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c Config) Validate() error {
	if _, err := api.ParseBaseURL(c.APIBaseURL); err != nil {
		return fmt.Errorf("api_base_url: %w", err)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative, got %s", c.RequestTimeout)
	}
	if c.StatusInterval <= 0 || c.MJPEGInterval <= 0 {
		return fmt.Errorf("status_interval and mjpeg_interval must be positive")
	}

	switch c.Camera.Source {
	case CameraNone, CameraPattern:
	case CameraMJPEG:
		if c.Camera.URL == "" {
			return fmt.Errorf("camera.url is required for the mjpeg source")
		}
	default:
		return fmt.Errorf("unknown camera.source %q", c.Camera.Source)
	}
	if c.Camera.JPEGQuality < 0 || c.Camera.JPEGQuality > 100 {
		return fmt.Errorf("camera.jpeg_quality must be within 1-100, got %d", c.Camera.JPEGQuality)
	}

	if c.Archive.Enabled {
		switch c.Archive.Backend {
		case ArchiveLocal:
			if c.Archive.Dir == "" {
				return fmt.Errorf("archive.dir is required for the local backend")
			}
		case ArchiveS3:
			if c.Archive.Bucket == "" {
				return fmt.Errorf("archive.bucket is required for the s3 backend")
			}
		default:
			return fmt.Errorf("unknown archive.backend %q", c.Archive.Backend)
		}
	}
	return nil
}
