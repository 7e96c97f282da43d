package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the anomaly service.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Auth       AuthConfig       `mapstructure:"auth"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// PipelineConfig controls scoring windows and model parameters.
type PipelineConfig struct {
	// Interval between scheduled scoring runs.
	Interval time.Duration `mapstructure:"interval"`

	// BaselineDays is the trusted reference window preceding the target window.
	BaselineDays int `mapstructure:"baseline_days"`

	// LookbackHours is the target window and the hourly-mode lookback.
	LookbackHours int `mapstructure:"lookback_hours"`

	// Aggregation selects the feature mode: "hourly" or "window".
	Aggregation string `mapstructure:"aggregation"`

	// Percentile of baseline scores used as the detection threshold.
	Percentile float64 `mapstructure:"percentile"`

	// IndicatorTablePath optionally overrides the built-in indicator table.
	IndicatorTablePath string `mapstructure:"indicator_table_path"`
}

// OpenSearchConfig holds event index connection settings.
type OpenSearchConfig struct {
	URL       string `mapstructure:"url"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Insecure  bool   `mapstructure:"insecure"`
	Index     string `mapstructure:"index"`
	MaxEvents int    `mapstructure:"max_events"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds the pgx connection string.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

// RedisConfig holds the optional snapshot-mirror settings.
type RedisConfig struct {
	URL     string        `mapstructure:"url"`
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// NATSConfig holds the optional run-announcement settings.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// AuthConfig holds read-API authentication settings.
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// Load reads configuration from file and environment variables. Environment
// variables use the STRIX_ prefix with underscores, e.g. STRIX_SERVER_PORT.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8087)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("pipeline.interval", "5m")
	v.SetDefault("pipeline.baseline_days", 7)
	v.SetDefault("pipeline.lookback_hours", 24)
	v.SetDefault("pipeline.aggregation", "hourly")
	v.SetDefault("pipeline.percentile", 0.99)
	v.SetDefault("pipeline.indicator_table_path", "")

	v.SetDefault("opensearch.url", "https://localhost:9200")
	v.SetDefault("opensearch.username", "admin")
	v.SetDefault("opensearch.password", "admin")
	v.SetDefault("opensearch.insecure", true)
	v.SetDefault("opensearch.index", "strix-events")
	v.SetDefault("opensearch.max_events", 10000)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "strix")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "strix_anomaly")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.ttl", "0")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("STRIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Pipeline.Percentile < 0 || c.Pipeline.Percentile > 1 {
		return fmt.Errorf("pipeline.percentile must be within [0,1], got %v", c.Pipeline.Percentile)
	}
	switch c.Pipeline.Aggregation {
	case "hourly", "window":
	default:
		return fmt.Errorf("pipeline.aggregation must be hourly or window, got %q", c.Pipeline.Aggregation)
	}
	if c.Pipeline.BaselineDays <= 0 {
		return fmt.Errorf("pipeline.baseline_days must be positive")
	}
	if c.Pipeline.LookbackHours <= 0 {
		return fmt.Errorf("pipeline.lookback_hours must be positive")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}
	return nil
}
