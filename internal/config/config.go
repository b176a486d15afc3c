// Package config loads and validates rankscope configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rankscope/rankscope/internal/serp"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Live     LiveConfig     `mapstructure:"live"`
	Standard StandardConfig `mapstructure:"standard"`
	Query    QueryConfig    `mapstructure:"query"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// APIConfig controls access to the remote SERP API.
type APIConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	Login            string `mapstructure:"login"`
	Password         string `mapstructure:"password"`
	SerpType         string `mapstructure:"serp_type"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
}

// LiveConfig governs the Live-mode dispatcher.
type LiveConfig struct {
	Workers           int `mapstructure:"workers"`
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

// StandardConfig governs Standard-mode batching, polling, and fetching.
type StandardConfig struct {
	BatchSize      int `mapstructure:"batch_size"`
	SubmitDelayMs  int `mapstructure:"submit_delay_ms"`
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
	FetchWorkers   int `mapstructure:"fetch_workers"`
}

// QueryConfig carries the per-keyword request parameters shared by a run.
type QueryConfig struct {
	LocationCode      int    `mapstructure:"location_code"`
	LanguageCode      string `mapstructure:"language_code"`
	Device            string `mapstructure:"device"`
	OS                string `mapstructure:"os"`
	Depth             int    `mapstructure:"depth"`
	IncludeSubdomains bool   `mapstructure:"include_subdomains"`
}

// StorageConfig sets where run history and exports land.
type StorageConfig struct {
	ResultsDir string `mapstructure:"results_dir"`
	GCSBucket  string `mapstructure:"gcs_bucket"`
}

// DBConfig controls the optional Postgres record sink.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for run-completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the optional HTTP inspection server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RANKSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://api.dataforseo.com/v3")
	v.SetDefault("api.serp_type", "google")
	v.SetDefault("api.timeout_seconds", 120)
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.backoff_initial_ms", 250)
	v.SetDefault("api.backoff_max_ms", 5000)
	v.SetDefault("live.workers", 10)
	v.SetDefault("live.requests_per_minute", 600)
	v.SetDefault("standard.batch_size", 100)
	v.SetDefault("standard.submit_delay_ms", 300)
	v.SetDefault("standard.poll_interval_ms", 2000)
	v.SetDefault("standard.fetch_workers", 12)
	v.SetDefault("query.location_code", 2840)
	v.SetDefault("query.language_code", "en")
	v.SetDefault("query.device", string(serp.DeviceDesktop))
	v.SetDefault("query.depth", 100)
	v.SetDefault("query.include_subdomains", true)
	v.SetDefault("storage.results_dir", "data/results")
	v.SetDefault("db.table", "rank_records")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must be set")
	}
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be > 0")
	}
	if c.Live.Workers <= 0 {
		return fmt.Errorf("live.workers must be > 0")
	}
	if c.Live.RequestsPerMinute <= 0 {
		return fmt.Errorf("live.requests_per_minute must be > 0")
	}
	if c.Standard.BatchSize <= 0 {
		return fmt.Errorf("standard.batch_size must be > 0")
	}
	if c.Standard.FetchWorkers <= 0 {
		return fmt.Errorf("standard.fetch_workers must be > 0")
	}
	switch serp.Device(c.Query.Device) {
	case serp.DeviceDesktop, serp.DeviceMobile:
	default:
		return fmt.Errorf("query.device must be desktop or mobile")
	}
	if c.Query.Depth <= 0 {
		return fmt.Errorf("query.depth must be > 0")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when server is enabled")
	}
	return nil
}

// RequestTimeout converts the API timeout to a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// PollInterval converts the poll interval to a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Standard.PollIntervalMs) * time.Millisecond
}

// SubmitDelay converts the inter-batch pause to a duration.
func (c Config) SubmitDelay() time.Duration {
	return time.Duration(c.Standard.SubmitDelayMs) * time.Millisecond
}
