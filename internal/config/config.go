package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the notification pipeline.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	SES        SESConfig        `yaml:"ses"`
	SMS        SMSConfig        `yaml:"sms"`
	Directory  DirectoryConfig  `yaml:"directory"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Reputation ReputationConfig `yaml:"reputation"`
	Archive    ArchiveConfig    `yaml:"archive"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection.
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the optional Redis connection used for sweep dedup locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// SESConfig holds AWS SES API configuration for the email channel.
type SESConfig struct {
	Region         string `yaml:"region"`
	AccessKeyEnv   string `yaml:"access_key_env"`
	SecretKeyEnv   string `yaml:"secret_key_env"`
	FromEmail      string `yaml:"from_email"`
	FromName       string `yaml:"from_name"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SMSConfig holds the SMS provider HTTP API configuration.
type SMSConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	FromNumber     string `yaml:"from_number"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// MaxSegmentChars caps a rendered SMS body at the single-segment budget.
	MaxSegmentChars int  `yaml:"max_segment_chars"`
	Enabled         bool `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration.
func (c SMSConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DirectoryConfig points at the staff directory collaborator used to resolve
// recipient roles into addresses.
type DirectoryConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	CacheSeconds   int    `yaml:"cache_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c DirectoryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DispatchConfig tunes the queue sweep and retry behavior.
type DispatchConfig struct {
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
	BatchSize            int `yaml:"batch_size"`
	MaxRetries           int `yaml:"max_retries"`
	// BackoffBaseSeconds is doubled per retry: base * 2^retryCount, capped.
	BackoffBaseSeconds int `yaml:"backoff_base_seconds"`
	BackoffCapSeconds  int `yaml:"backoff_cap_seconds"`
	// ClaimTimeoutSeconds is how long an item may sit in SENDING before the
	// reaper returns it to PENDING (crash safety net).
	ClaimTimeoutSeconds int `yaml:"claim_timeout_seconds"`
	SendTimeoutSeconds  int `yaml:"send_timeout_seconds"`
}

// SweepInterval returns the sweep cadence as a duration.
func (c DispatchConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// BackoffBase returns the first retry delay.
func (c DispatchConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseSeconds) * time.Second
}

// BackoffCap returns the maximum retry delay.
func (c DispatchConfig) BackoffCap() time.Duration {
	return time.Duration(c.BackoffCapSeconds) * time.Second
}

// ClaimTimeout returns the stale-claim reaper threshold.
func (c DispatchConfig) ClaimTimeout() time.Duration {
	return time.Duration(c.ClaimTimeoutSeconds) * time.Second
}

// SendTimeout bounds a single provider call.
func (c DispatchConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// ReputationConfig tunes the provider reputation monitor.
type ReputationConfig struct {
	IntervalMinutes        int     `yaml:"interval_minutes"`
	BounceRateThreshold    float64 `yaml:"bounce_rate_threshold"`
	ComplaintRateThreshold float64 `yaml:"complaint_rate_threshold"`
	// AlertQueueURL is the SQS queue the operator alert sink publishes to.
	// Empty means log-only alerts.
	AlertQueueURL string `yaml:"alert_queue_url"`
}

// Interval returns the monitor cadence as a duration.
func (c ReputationConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// ArchiveConfig controls time-boxing of signals and events to S3.
type ArchiveConfig struct {
	Enabled       bool   `yaml:"enabled"`
	S3Bucket      string `yaml:"s3_bucket"`
	S3Prefix      string `yaml:"s3_prefix"`
	AWSRegion     string `yaml:"aws_region"`
	RetentionDays int    `yaml:"retention_days"`
}

// Retention returns the archive retention window.
func (c ArchiveConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Load reads and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-1"
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.SES.AccessKeyEnv == "" {
		cfg.SES.AccessKeyEnv = "AWS_SES_ACCESS_KEY"
	}
	if cfg.SES.SecretKeyEnv == "" {
		cfg.SES.SecretKeyEnv = "AWS_SES_SECRET_KEY"
	}
	if cfg.SMS.TimeoutSeconds == 0 {
		cfg.SMS.TimeoutSeconds = 15
	}
	if cfg.SMS.MaxSegmentChars == 0 {
		cfg.SMS.MaxSegmentChars = 160
	}
	if cfg.SMS.APIKeyEnv == "" {
		cfg.SMS.APIKeyEnv = "SMS_API_KEY"
	}
	if cfg.Directory.TimeoutSeconds == 0 {
		cfg.Directory.TimeoutSeconds = 10
	}
	if cfg.Directory.CacheSeconds == 0 {
		cfg.Directory.CacheSeconds = 300
	}
	if cfg.Dispatch.SweepIntervalSeconds == 0 {
		cfg.Dispatch.SweepIntervalSeconds = 120
	}
	if cfg.Dispatch.BatchSize == 0 {
		cfg.Dispatch.BatchSize = 100
	}
	if cfg.Dispatch.MaxRetries == 0 {
		cfg.Dispatch.MaxRetries = 5
	}
	if cfg.Dispatch.BackoffBaseSeconds == 0 {
		cfg.Dispatch.BackoffBaseSeconds = 60
	}
	if cfg.Dispatch.BackoffCapSeconds == 0 {
		cfg.Dispatch.BackoffCapSeconds = 3600
	}
	if cfg.Dispatch.ClaimTimeoutSeconds == 0 {
		cfg.Dispatch.ClaimTimeoutSeconds = 600
	}
	if cfg.Dispatch.SendTimeoutSeconds == 0 {
		cfg.Dispatch.SendTimeoutSeconds = 30
	}
	if cfg.Reputation.IntervalMinutes == 0 {
		cfg.Reputation.IntervalMinutes = 60
	}
	if cfg.Reputation.BounceRateThreshold == 0 {
		cfg.Reputation.BounceRateThreshold = 0.05
	}
	if cfg.Reputation.ComplaintRateThreshold == 0 {
		cfg.Reputation.ComplaintRateThreshold = 0.001
	}
	if cfg.Archive.RetentionDays == 0 {
		cfg.Archive.RetentionDays = 90
	}
	if cfg.Archive.S3Prefix == "" {
		cfg.Archive.S3Prefix = "notification-archive"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.SES.Region = region
	}
	if from := os.Getenv("NOTIFY_FROM_EMAIL"); from != "" {
		cfg.SES.FromEmail = from
	}
	if baseURL := os.Getenv("SMS_BASE_URL"); baseURL != "" {
		cfg.SMS.BaseURL = baseURL
		cfg.SMS.Enabled = true
	}
	if baseURL := os.Getenv("DIRECTORY_BASE_URL"); baseURL != "" {
		cfg.Directory.BaseURL = baseURL
	}
	if queueURL := os.Getenv("ALERT_QUEUE_URL"); queueURL != "" {
		cfg.Reputation.AlertQueueURL = queueURL
	}
	if bucket := os.Getenv("ARCHIVE_S3_BUCKET"); bucket != "" {
		cfg.Archive.S3Bucket = bucket
		cfg.Archive.Enabled = true
	}

	return cfg, nil
}
