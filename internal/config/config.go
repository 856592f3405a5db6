package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Bedrock   BedrockConfig   `yaml:"bedrock"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Cadence   CadenceConfig   `yaml:"cadence"`
	AntiBan   AntiBanConfig   `yaml:"antiban"`
	Warmup    WarmupConfig    `yaml:"warmup"`
	Schedules SchedulesConfig `yaml:"schedules"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	WebhookSecret  string   `yaml:"webhook_secret"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
	MigrationsDir   string `yaml:"migrations_dir"`
}

// ConnLifetime returns the connection max lifetime as a time.Duration
func (c DatabaseConfig) ConnLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetime) * time.Minute
}

// RedisConfig holds Redis connection settings for queues, locks and the rate limiter
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// GatewayConfig holds the messaging gateway REST API settings
type GatewayConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
	DefaultRegion  string `yaml:"default_region"`
}

// Timeout returns the timeout as a time.Duration
func (c GatewayConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BedrockConfig holds AWS Bedrock settings for reply generation
type BedrockConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	ModelID   string `yaml:"model_id"`
	MaxTokens int    `yaml:"max_tokens"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// AlertsConfig holds operator alert delivery settings
type AlertsConfig struct {
	Enabled     bool     `yaml:"enabled"`
	SESRegion   string   `yaml:"ses_region"`
	AccessKey   string   `yaml:"access_key"`
	SecretKey   string   `yaml:"secret_key"`
	From        string   `yaml:"from"`
	To          []string `yaml:"to"`
	MinSeverity string   `yaml:"min_severity"`
}

// CadenceConfig holds the dispatch and send pacing settings
type CadenceConfig struct {
	SendIntervalSeconds int `yaml:"send_interval_seconds"`
	ReplyConcurrency    int `yaml:"reply_concurrency"`
	HistoryTurns        int `yaml:"history_turns"`
	LockTTLSeconds      int `yaml:"lock_ttl_seconds"`
	PollIntervalMillis  int `yaml:"poll_interval_millis"`
}

// SendInterval returns the minimum gap between two sends
func (c CadenceConfig) SendInterval() time.Duration {
	return time.Duration(c.SendIntervalSeconds) * time.Second
}

// LockTTL returns the distributed lock TTL
func (c CadenceConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// PollInterval returns how often queue consumers look for due jobs
func (c CadenceConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

// AntiBanConfig holds the failure-rate circuit breaker settings. The
// lookback window is fixed at one hour; these values can only make the
// breaker trip sooner.
type AntiBanConfig struct {
	MinSamples     int     `yaml:"min_samples"`
	MaxFailureRate float64 `yaml:"max_failure_rate"`
}

// WarmupConfig holds the warm-up ramp applied to new channel accounts
type WarmupConfig struct {
	AutoStart bool         `yaml:"auto_start"`
	Steps     []WarmupStep `yaml:"steps"`
}

// WarmupStep maps an inclusive day range to a daily limit
type WarmupStep struct {
	FromDay int `yaml:"from_day"`
	ToDay   int `yaml:"to_day"`
	Limit   int `yaml:"limit"`
}

// SchedulesConfig holds cron specs for the periodic orchestrator
type SchedulesConfig struct {
	Feed   string `yaml:"feed"`
	Reset  string `yaml:"reset"`
	Warmup string `yaml:"warmup"`
	Health string `yaml:"health"`
}

// LoggingConfig holds structured logger settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads and parses the configuration file
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
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30
	}
	if cfg.Database.MigrationsDir == "" {
		cfg.Database.MigrationsDir = "migrations"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "cadence"
	}
	if cfg.Gateway.TimeoutSeconds == 0 {
		cfg.Gateway.TimeoutSeconds = 30
	}
	if cfg.Gateway.MaxRetries == 0 {
		cfg.Gateway.MaxRetries = 2
	}
	if cfg.Gateway.DefaultRegion == "" {
		cfg.Gateway.DefaultRegion = "BR"
	}
	if cfg.Bedrock.Region == "" {
		cfg.Bedrock.Region = "us-east-1"
	}
	if cfg.Bedrock.ModelID == "" {
		cfg.Bedrock.ModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	if cfg.Bedrock.MaxTokens == 0 {
		cfg.Bedrock.MaxTokens = 300
	}
	if cfg.Alerts.SESRegion == "" {
		cfg.Alerts.SESRegion = "us-west-2"
	}
	if cfg.Alerts.MinSeverity == "" {
		cfg.Alerts.MinSeverity = "warning"
	}
	if cfg.Cadence.SendIntervalSeconds == 0 {
		cfg.Cadence.SendIntervalSeconds = 10
	}
	if cfg.Cadence.ReplyConcurrency == 0 {
		cfg.Cadence.ReplyConcurrency = 4
	}
	if cfg.Cadence.HistoryTurns == 0 {
		cfg.Cadence.HistoryTurns = 20
	}
	if cfg.Cadence.LockTTLSeconds == 0 {
		cfg.Cadence.LockTTLSeconds = 120
	}
	if cfg.Cadence.PollIntervalMillis == 0 {
		cfg.Cadence.PollIntervalMillis = 500
	}
	if cfg.AntiBan.MinSamples == 0 {
		cfg.AntiBan.MinSamples = 10
	}
	if cfg.AntiBan.MaxFailureRate == 0 {
		cfg.AntiBan.MaxFailureRate = 0.20
	}
	if cfg.Schedules.Feed == "" {
		cfg.Schedules.Feed = "@every 5m"
	}
	if cfg.Schedules.Reset == "" {
		cfg.Schedules.Reset = "0 0 * * *"
	}
	if cfg.Schedules.Warmup == "" {
		cfg.Schedules.Warmup = "5 0 * * *"
	}
	if cfg.Schedules.Health == "" {
		cfg.Schedules.Health = "@every 10m"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("GATEWAY_BASE_URL"); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := os.Getenv("GATEWAY_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		cfg.Server.WebhookSecret = v
	}
	if v := os.Getenv("BEDROCK_MODEL_ID"); v != "" {
		cfg.Bedrock.ModelID = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.Bedrock.AccessKey = v
		cfg.Alerts.AccessKey = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.Bedrock.SecretKey = v
		cfg.Alerts.SecretKey = v
	}
	if v := os.Getenv("ALERTS_FROM"); v != "" {
		cfg.Alerts.From = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	return cfg, nil
}
