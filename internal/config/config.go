// Package config handles configuration loading for chain-sentry.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Chain    ChainConfig    `yaml:"chain"`
	News     NewsConfig     `yaml:"news"`
	Assess   AssessConfig   `yaml:"assess"`
	Alerting AlertingConfig `yaml:"alerting"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	HTTPPort     int           `yaml:"http_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// ChainConfig holds on-chain monitoring settings.
type ChainConfig struct {
	Enabled      bool           `yaml:"enabled"`
	RPCURL       string         `yaml:"rpc_url"`
	StartBlock   string         `yaml:"start_block"`
	BatchSize    int            `yaml:"batch_size"`
	PollInterval time.Duration  `yaml:"poll_interval"`
	Detector     DetectorConfig `yaml:"detector"`
}

// DetectorConfig holds transaction anomaly detection thresholds.
type DetectorConfig struct {
	WhaleThreshold    float64       `yaml:"whale_threshold"`
	BurstThreshold    int           `yaml:"burst_threshold"`
	BurstWindow       time.Duration `yaml:"burst_window"`
	VulnerableTargets []string      `yaml:"vulnerable_targets"`
}

// NewsConfig holds security news feed settings.
type NewsConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Feeds        []FeedConfig  `yaml:"feeds"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// FeedConfig holds a single news feed.
type FeedConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// AssessConfig holds risk assessment settings.
type AssessConfig struct {
	Sources       []SourceConfig `yaml:"sources"`
	SourceTimeout time.Duration  `yaml:"source_timeout"`
}

// SourceConfig holds a single external assessment source.
type SourceConfig struct {
	Name     string `yaml:"name"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

// AlertingConfig holds alert delivery settings.
type AlertingConfig struct {
	Delivery DeliveryConfig `yaml:"delivery"`
	Sinks    SinksConfig    `yaml:"sinks"`
}

// DeliveryConfig holds retry and dead-letter settings for alert delivery.
type DeliveryConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	BackoffFactor  float64       `yaml:"backoff_factor"`
	RetryTimeout   time.Duration `yaml:"retry_timeout"`
}

// SinksConfig holds the configured alert sinks.
type SinksConfig struct {
	Console  ConsoleSinkConfig  `yaml:"console"`
	Webhook  WebhookSinkConfig  `yaml:"webhook"`
	Telegram TelegramSinkConfig `yaml:"telegram"`
	Kafka    KafkaSinkConfig    `yaml:"kafka"`
}

// ConsoleSinkConfig holds console sink settings.
type ConsoleSinkConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Categories []string `yaml:"categories"`
}

// WebhookSinkConfig holds webhook sink settings.
type WebhookSinkConfig struct {
	Enabled    bool     `yaml:"enabled"`
	URL        string   `yaml:"url"`
	Categories []string `yaml:"categories"`
}

// TelegramSinkConfig holds Telegram sink settings.
type TelegramSinkConfig struct {
	Enabled    bool     `yaml:"enabled"`
	BotToken   string   `yaml:"bot_token"`
	ChatID     string   `yaml:"chat_id"`
	Categories []string `yaml:"categories"`
}

// KafkaSinkConfig holds Kafka sink settings.
type KafkaSinkConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Brokers    []string `yaml:"brokers"`
	Topic      string   `yaml:"topic"`
	Categories []string `yaml:"categories"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Redis      RedisConfig      `yaml:"redis"`
}

// ClickHouseConfig holds ClickHouse connection and batching settings.
type ClickHouseConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Hosts         []string      `yaml:"hosts"`
	Database      string        `yaml:"database"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	MaxOpenConns  int           `yaml:"max_open_conns"`
	MaxIdleConns  int           `yaml:"max_idle_conns"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	Retention     time.Duration `yaml:"retention"`
}

// RedisConfig holds Redis deduplication settings.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	SeenTTL  time.Duration `yaml:"seen_ttl"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Chain: ChainConfig{
			Enabled:      false, // Enable when an RPC endpoint is configured
			RPCURL:       "http://localhost:8545",
			StartBlock:   "latest",
			BatchSize:    10,
			PollInterval: 15 * time.Second,
			Detector: DetectorConfig{
				WhaleThreshold: 10000,
				BurstThreshold: 50,
				BurstWindow:    5 * time.Minute,
			},
		},
		News: NewsConfig{
			Enabled:      false,
			PollInterval: 75 * time.Second,
		},
		Assess: AssessConfig{
			SourceTimeout: 30 * time.Second,
		},
		Alerting: AlertingConfig{
			Delivery: DeliveryConfig{
				MaxRetries:     5,
				InitialBackoff: time.Second,
				MaxBackoff:     30 * time.Second,
				BackoffFactor:  2.0,
				RetryTimeout:   10 * time.Second,
			},
			Sinks: SinksConfig{
				Console: ConsoleSinkConfig{
					Enabled: true,
				},
			},
		},
		Storage: StorageConfig{
			ClickHouse: ClickHouseConfig{
				Enabled:       false, // Disabled by default for development without ClickHouse
				Hosts:         []string{"localhost:9000"},
				Database:      "sentry",
				Username:      "default",
				Password:      "",
				DialTimeout:   10 * time.Second,
				MaxOpenConns:  10,
				MaxIdleConns:  5,
				BatchSize:     500,
				FlushInterval: 5 * time.Second,
				MaxRetries:    3,
				RetryDelay:    time.Second,
				Retention:     90 * 24 * time.Hour,
			},
			Redis: RedisConfig{
				Enabled: false,
				Addr:    "localhost:6379",
				SeenTTL: 7 * 24 * time.Hour,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a file or returns defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Check for config file path in environment
	configPath := os.Getenv("SENTRY_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	// Try to load from file
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, use defaults
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("SENTRY_HTTP_PORT"); port != "" {
		fmt.Sscanf(port, "%d", &c.Server.HTTPPort)
	}

	if level := os.Getenv("SENTRY_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if rpc := os.Getenv("SENTRY_RPC_URL"); rpc != "" {
		c.Chain.RPCURL = rpc
		c.Chain.Enabled = true
	}

	if feeds := os.Getenv("SENTRY_NEWS_FEEDS"); feeds != "" {
		c.News.Feeds = c.News.Feeds[:0]
		for _, url := range splitAndTrim(feeds, ",") {
			c.News.Feeds = append(c.News.Feeds, FeedConfig{Name: url, URL: url})
		}
		c.News.Enabled = true
	}

	// Storage settings
	if enabled := os.Getenv("SENTRY_STORAGE_ENABLED"); enabled == "true" {
		c.Storage.ClickHouse.Enabled = true
	}

	if host := os.Getenv("CLICKHOUSE_HOST"); host != "" {
		c.Storage.ClickHouse.Hosts = []string{host}
	}

	if db := os.Getenv("CLICKHOUSE_DATABASE"); db != "" {
		c.Storage.ClickHouse.Database = db
	}

	if user := os.Getenv("CLICKHOUSE_USER"); user != "" {
		c.Storage.ClickHouse.Username = user
	}

	if pass := os.Getenv("CLICKHOUSE_PASSWORD"); pass != "" {
		c.Storage.ClickHouse.Password = pass
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Storage.Redis.Addr = addr
		c.Storage.Redis.Enabled = true
	}

	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		c.Storage.Redis.Password = pass
	}
}

// splitAndTrim splits a string by separator and trims whitespace from each part.
func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(s, sep) {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}

	if c.Chain.Enabled {
		if c.Chain.RPCURL == "" {
			return fmt.Errorf("chain monitoring enabled but rpc_url is empty")
		}
		if c.Chain.BatchSize <= 0 {
			return fmt.Errorf("chain batch_size must be positive")
		}
		if c.Chain.PollInterval <= 0 {
			return fmt.Errorf("chain poll_interval must be positive")
		}
		if c.Chain.Detector.WhaleThreshold <= 0 {
			return fmt.Errorf("whale_threshold must be positive")
		}
		if c.Chain.Detector.BurstThreshold <= 0 {
			return fmt.Errorf("burst_threshold must be positive")
		}
	}

	if c.News.Enabled && len(c.News.Feeds) == 0 {
		return fmt.Errorf("news monitoring enabled but no feeds configured")
	}
	for _, f := range c.News.Feeds {
		if f.URL == "" {
			return fmt.Errorf("news feed %q has no url", f.Name)
		}
	}

	for i, src := range c.Assess.Sources {
		if src.Name == "" {
			return fmt.Errorf("assess source %d has no name", i)
		}
		if src.Endpoint == "" {
			return fmt.Errorf("assess source %q has no endpoint", src.Name)
		}
	}

	if c.Alerting.Delivery.MaxRetries < 0 {
		return fmt.Errorf("delivery max_retries must not be negative")
	}
	if c.Alerting.Delivery.BackoffFactor < 1 {
		return fmt.Errorf("delivery backoff_factor must be at least 1")
	}

	if c.Storage.ClickHouse.Enabled {
		if len(c.Storage.ClickHouse.Hosts) == 0 {
			return fmt.Errorf("clickhouse enabled but no hosts configured")
		}
		if c.Storage.ClickHouse.BatchSize <= 0 {
			return fmt.Errorf("clickhouse batch_size must be positive")
		}
	}

	if c.Storage.Redis.Enabled && c.Storage.Redis.Addr == "" {
		return fmt.Errorf("redis enabled but addr is empty")
	}

	return nil
}
