package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"twilight-stack/internal/models"
	"twilight-stack/shared/astro"
	"twilight-stack/shared/recorder"
	"twilight-stack/shared/scheduler"
)

type Config struct {
	Location   models.Location  `yaml:"location"`
	Twilight   TwilightConfig   `yaml:"twilight"`
	Stream     StreamConfig     `yaml:"stream"`
	Logger     LoggerConfig     `yaml:"logger"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Storage    StorageConfig    `yaml:"storage"`
	Email      EmailConfig      `yaml:"email"`
}

type TwilightConfig struct {
	Horizon         string `yaml:"horizon"`
	Timezone        string `yaml:"timezone"`
	RefreshSchedule string `yaml:"refresh_schedule"`
	// DipCorrection lowers the horizon by the dip at location.elevation.
	DipCorrection bool `yaml:"dip_correction"`
}

type StreamConfig struct {
	Command        string        `yaml:"command"`
	Args           []string      `yaml:"args"`
	Endpoint       string        `yaml:"endpoint" env:"RTMP_URL"`
	GracePeriod    time.Duration `yaml:"grace_period"`
	LogFile        string        `yaml:"log_file"`
	HealthInterval time.Duration `yaml:"health_interval"`
	Retry          RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type MonitoringConfig struct {
	HealthPort *int `yaml:"health_port"`
}

type StorageConfig struct {
	DataDir       string        `yaml:"data_dir"`
	HistoryMaxAge time.Duration `yaml:"history_max_age"`
}

type EmailConfig struct {
	SMTPServer string `yaml:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port"`
	Username   string `yaml:"username" env:"EMAIL_USERNAME"`
	Password   string `yaml:"password" env:"EMAIL_PASSWORD"`
	FromEmail  string `yaml:"from_email"`
	ToEmail    string `yaml:"to_email"`
}

// DefaultStreamArgs loops the allsky camera's latest frame into an FLV
// stream at 9 fps.
var DefaultStreamArgs = []string{
	"-re",
	"-stream_loop", "-1",
	"-framerate", "9",
	"-f", "image2",
	"-i", "/home/astroberry/allsky/tmp/image.jpg",
	"-vf", "scale=1280:720",
	"-vcodec", "libx264",
	"-preset", "medium",
	"-f", "flv",
	"{{.Endpoint}}",
}

const (
	defaultHealthPort = 8080
	defaultTimezone   = "Europe/Berlin"
	defaultSchedule   = "0 12 * * *" // daily at noon local time
)

// Load reads the dotenv file (if present) and the YAML config file. An empty
// configFile falls back to CONFIG_FILE, then config.yaml.
func Load(configFile, envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	if configFile == "" {
		configFile = "config.yaml"
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}
	return Parse(data)
}

// Parse decodes a YAML document, applies env overrides and defaults, and
// validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Stream.Endpoint == "" {
		cfg.Stream.Endpoint = os.Getenv("RTMP_URL")
	}
	if cfg.Email.Username == "" {
		cfg.Email.Username = os.Getenv("EMAIL_USERNAME")
	}
	if cfg.Email.Password == "" {
		cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Twilight.Horizon == "" {
		c.Twilight.Horizon = "nautical"
	}
	if c.Twilight.Timezone == "" {
		c.Twilight.Timezone = defaultTimezone
	}
	if c.Twilight.RefreshSchedule == "" {
		c.Twilight.RefreshSchedule = defaultSchedule
	}

	if c.Stream.Command == "" {
		c.Stream.Command = "ffmpeg"
	}
	if c.Stream.Args == nil {
		c.Stream.Args = append([]string(nil), DefaultStreamArgs...)
	}
	if c.Stream.GracePeriod == 0 {
		c.Stream.GracePeriod = 10 * time.Second
	}
	if c.Stream.HealthInterval == 0 {
		c.Stream.HealthInterval = 30 * time.Second
	}
	if c.Stream.Retry.MaxAttempts == 0 {
		c.Stream.Retry.MaxAttempts = 5
	}
	if c.Stream.Retry.InitialInterval == 0 {
		c.Stream.Retry.InitialInterval = 5 * time.Second
	}
	if c.Stream.Retry.MaxInterval == 0 {
		c.Stream.Retry.MaxInterval = 2 * time.Minute
	}

	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Monitoring.HealthPort == nil {
		port := defaultHealthPort
		c.Monitoring.HealthPort = &port
	}
	if c.Storage.HistoryMaxAge == 0 {
		c.Storage.HistoryMaxAge = 30 * 24 * time.Hour
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
}

func (c *Config) validate() error {
	if err := c.Location.Validate(); err != nil {
		return err
	}
	if _, err := c.HorizonDegrees(); err != nil {
		return err
	}
	display, err := c.Display()
	if err != nil {
		return err
	}
	if _, err := scheduler.ParseRefreshSchedule(c.Twilight.RefreshSchedule, display.Location()); err != nil {
		return err
	}
	if c.Stream.Endpoint == "" {
		return fmt.Errorf("stream endpoint is required (set RTMP_URL or stream.endpoint)")
	}
	if _, err := recorder.ParseLaunch(c.LaunchSpec()); err != nil {
		return err
	}
	if c.Stream.GracePeriod < 0 {
		return fmt.Errorf("stream.grace_period must be positive, got %s", c.Stream.GracePeriod)
	}
	if c.Stream.HealthInterval < 0 {
		return fmt.Errorf("stream.health_interval must not be negative, got %s", c.Stream.HealthInterval)
	}
	if c.Stream.Retry.MaxAttempts < 0 {
		return fmt.Errorf("stream.retry.max_attempts must not be negative, got %d", c.Stream.Retry.MaxAttempts)
	}
	if port := c.HealthPort(); port < 0 || port > 65535 {
		return fmt.Errorf("monitoring.health_port out of range: %d", port)
	}
	return nil
}

// HorizonDegrees returns the configured solar elevation threshold.
func (c *Config) HorizonDegrees() (float64, error) {
	return astro.ParseHorizon(c.Twilight.Horizon)
}

func (c *Config) Display() (astro.Display, error) {
	return astro.NewDisplay(c.Twilight.Timezone)
}

func (c *Config) LaunchSpec() recorder.LaunchSpec {
	return recorder.LaunchSpec{
		Command:  c.Stream.Command,
		Args:     c.Stream.Args,
		Endpoint: c.Stream.Endpoint,
	}
}

func (c *Config) Retry() scheduler.RetryConfig {
	return scheduler.RetryConfig{
		MaxAttempts:     c.Stream.Retry.MaxAttempts,
		InitialInterval: c.Stream.Retry.InitialInterval,
		MaxInterval:     c.Stream.Retry.MaxInterval,
	}
}

// HealthPort returns the health server port; 0 disables it.
func (c *Config) HealthPort() int {
	if c.Monitoring.HealthPort == nil {
		return defaultHealthPort
	}
	return *c.Monitoring.HealthPort
}

func (c LoggerConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Enabled reports whether alert mail can be sent.
func (c EmailConfig) Enabled() bool {
	return c.SMTPServer != "" && c.ToEmail != ""
}
