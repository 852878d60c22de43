// Package config manages application configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverJSON     = "json"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all storefeed configuration. Durations are Go duration
// strings in YAML ("90s") and nanoseconds in JSON.
type Config struct {
	// YouTubeAPIKey is the Data API v3 key.
	YouTubeAPIKey string `yaml:"youtube_api_key" json:"youtube_api_key"`
	// YouTubeChannelID is the channel whose uploads are mirrored.
	YouTubeChannelID string `yaml:"youtube_channel_id" json:"youtube_channel_id"`

	// MaxVideos and MaxShorts cap the stored set per type.
	MaxVideos int `yaml:"max_videos" json:"max_videos"`
	MaxShorts int `yaml:"max_shorts" json:"max_shorts"`
	// FetchTimeout bounds the fetch stage of a sync run.
	FetchTimeout time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`
	// SyncSchedule is a five-field cron spec. Empty disables the timer.
	SyncSchedule string `yaml:"sync_schedule" json:"sync_schedule"`
	// SyncOnStart runs one sync when the server starts.
	SyncOnStart bool `yaml:"sync_on_start" json:"sync_on_start"`
	// LeaseTTL bounds how long a crashed run blocks the next one.
	LeaseTTL time.Duration `yaml:"lease_ttl" json:"lease_ttl"`

	// RequestsPerSecond limits calls to the Data API host.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	// HTTPTimeout bounds each Data API request.
	HTTPTimeout time.Duration `yaml:"http_timeout" json:"http_timeout"`

	// MaxRetries is the maximum number of retries for failed API calls.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
	// InitialBackoff is the initial backoff duration for retries.
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
	// MaxBackoff is the maximum backoff duration for retries.
	MaxBackoff time.Duration `yaml:"max_backoff" json:"max_backoff"`
	// BackoffMultiplier is the multiplier for exponential backoff (must be > 1).
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier"`

	// StorageDriver is json, sqlite or postgres.
	StorageDriver string `yaml:"storage_driver" json:"storage_driver"`
	// StorageDSN is a file path for json and sqlite, a connection string for postgres.
	StorageDSN string `yaml:"storage_dsn" json:"storage_dsn"`

	// ListenAddr is the HTTP API address.
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
	// CORSOrigins are the storefront origins allowed on /youtube and /linktree.
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`

	// RedisURL enables the Redis sync lease when set.
	RedisURL string `yaml:"redis_url" json:"redis_url"`
	// NATSURL enables sync events when set.
	NATSURL string `yaml:"nats_url" json:"nats_url"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level" json:"log_level"`
	// LogFormat is json or console.
	LogFormat string `yaml:"log_format" json:"log_format"`
	// MetricsNamespace prefixes every Prometheus metric.
	MetricsNamespace string `yaml:"metrics_namespace" json:"metrics_namespace"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxVideos:         4,
		MaxShorts:         8,
		FetchTimeout:      60 * time.Second,
		SyncSchedule:      "0 */12 * * *",
		LeaseTTL:          5 * time.Minute,
		RequestsPerSecond: 5,
		HTTPTimeout:       30 * time.Second,
		MaxRetries:        3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		StorageDriver:     DriverJSON,
		StorageDSN:        filepath.Join("data", "store.json"),
		ListenAddr:        ":9000",
		CORSOrigins:       []string{"http://localhost:8000"},
		LogLevel:          "info",
		LogFormat:         "json",
		MetricsNamespace:  "storefeed",
	}
}

// Load loads configuration from defaults, the first config file found, a
// .env file and the environment, in increasing priority.
func Load() (*Config, error) {
	return load(defaultPaths(), ".env")
}

// LoadFile is Load with an explicit config file, which must exist.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	return load([]string{path}, ".env")
}

func load(paths []string, envFile string) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(paths); err != nil {
		// Config file is optional
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	// .env never overrides variables already set
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultPaths() []string {
	names := []string{"storefeed.yaml", "storefeed.yml", "storefeed.json"}
	paths := append([]string(nil), names...)
	if home, err := os.UserHomeDir(); err == nil {
		for _, n := range names {
			paths = append(paths, filepath.Join(home, ".config", "storefeed", n))
		}
	}
	return paths
}

// loadFromFile reads the first existing path, decoding by extension.
func (c *Config) loadFromFile(paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			err = json.Unmarshal(data, c)
		default:
			err = yaml.Unmarshal(data, c)
		}
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}

	return fs.ErrNotExist
}

// loadFromEnv overrides config with STOREFEED_* variables. YOUTUBE_API_KEY
// and YOUTUBE_CHANNEL_ID are read when the prefixed forms are unset.
func (c *Config) loadFromEnv() error {
	e := &envReader{}

	e.setString(&c.YouTubeAPIKey, "STOREFEED_YOUTUBE_API_KEY", "YOUTUBE_API_KEY")
	e.setString(&c.YouTubeChannelID, "STOREFEED_YOUTUBE_CHANNEL_ID", "YOUTUBE_CHANNEL_ID")
	e.setInt(&c.MaxVideos, "STOREFEED_MAX_VIDEOS")
	e.setInt(&c.MaxShorts, "STOREFEED_MAX_SHORTS")
	e.setDuration(&c.FetchTimeout, "STOREFEED_FETCH_TIMEOUT")
	e.setString(&c.SyncSchedule, "STOREFEED_SYNC_SCHEDULE")
	e.setBool(&c.SyncOnStart, "STOREFEED_SYNC_ON_START")
	e.setDuration(&c.LeaseTTL, "STOREFEED_LEASE_TTL")
	e.setFloat(&c.RequestsPerSecond, "STOREFEED_REQUESTS_PER_SECOND")
	e.setDuration(&c.HTTPTimeout, "STOREFEED_HTTP_TIMEOUT")
	e.setInt(&c.MaxRetries, "STOREFEED_MAX_RETRIES")
	e.setDuration(&c.InitialBackoff, "STOREFEED_INITIAL_BACKOFF")
	e.setDuration(&c.MaxBackoff, "STOREFEED_MAX_BACKOFF")
	e.setFloat(&c.BackoffMultiplier, "STOREFEED_BACKOFF_MULTIPLIER")
	e.setString(&c.StorageDriver, "STOREFEED_STORAGE_DRIVER")
	e.setString(&c.StorageDSN, "STOREFEED_STORAGE_DSN")
	e.setString(&c.ListenAddr, "STOREFEED_LISTEN_ADDR")
	e.setList(&c.CORSOrigins, "STOREFEED_CORS_ORIGINS")
	e.setString(&c.RedisURL, "STOREFEED_REDIS_URL")
	e.setString(&c.NATSURL, "STOREFEED_NATS_URL")
	e.setString(&c.LogLevel, "STOREFEED_LOG_LEVEL")
	e.setString(&c.LogFormat, "STOREFEED_LOG_FORMAT")
	e.setString(&c.MetricsNamespace, "STOREFEED_METRICS_NAMESPACE")

	return e.err
}

// envReader collects the first malformed variable.
type envReader struct {
	err error
}

func (e *envReader) lookup(keys ...string) (string, string, bool) {
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok && v != "" {
			return k, v, true
		}
	}
	return "", "", false
}

func (e *envReader) fail(key, v string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("%s=%q: %w", key, v, err)
	}
}

func (e *envReader) setString(dst *string, keys ...string) {
	if _, v, ok := e.lookup(keys...); ok {
		*dst = v
	}
}

func (e *envReader) setInt(dst *int, key string) {
	if _, v, ok := e.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) setFloat(dst *float64, key string) {
	if _, v, ok := e.lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) setBool(dst *bool, key string) {
	if _, v, ok := e.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) setDuration(dst *time.Duration, key string) {
	if _, v, ok := e.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = d
	}
}

func (e *envReader) setList(dst *[]string, key string) {
	if _, v, ok := e.lookup(key); ok {
		var out []string
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}

// Validate checks that configuration values are valid and consistent.
// It returns an error if any configuration value is invalid.
func (c *Config) Validate() error {
	if c.MaxVideos < 0 {
		return fmt.Errorf("max_videos must be non-negative")
	}
	if c.MaxShorts < 0 {
		return fmt.Errorf("max_shorts must be non-negative")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch_timeout must be positive")
	}
	if c.LeaseTTL <= c.FetchTimeout {
		return fmt.Errorf("lease_ttl must be greater than fetch_timeout")
	}
	if c.SyncSchedule != "" {
		if _, err := cron.ParseStandard(c.SyncSchedule); err != nil {
			return fmt.Errorf("sync_schedule: %w", err)
		}
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must be non-negative")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("initial_backoff must be positive")
	}
	if c.MaxBackoff <= 0 {
		return fmt.Errorf("max_backoff must be positive")
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max_backoff must be >= initial_backoff")
	}
	if c.BackoffMultiplier <= 1 {
		return fmt.Errorf("backoff_multiplier must be > 1")
	}
	switch c.StorageDriver {
	case DriverJSON, DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("storage_driver must be one of json, sqlite, postgres")
	}
	if c.StorageDSN == "" {
		return fmt.Errorf("storage_dsn is required")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	return nil
}

// ValidateSync checks the settings a sync run needs on top of Validate.
func (c *Config) ValidateSync() error {
	if c.YouTubeAPIKey == "" {
		return fmt.Errorf("youtube_api_key is required (STOREFEED_YOUTUBE_API_KEY or YOUTUBE_API_KEY)")
	}
	if c.YouTubeChannelID == "" {
		return fmt.Errorf("youtube_channel_id is required (STOREFEED_YOUTUBE_CHANNEL_ID or YOUTUBE_CHANNEL_ID)")
	}
	return nil
}
