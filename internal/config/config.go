// Package config loads the application configuration from YAML and the
// environment via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	RateLimit      string   `mapstructure:"rate_limit"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // "postgres" or "sqlite"
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig represents the optional quote-cache backend
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig represents token signing configuration
type JWTConfig struct {
	Secret          string `mapstructure:"secret"`
	ExpirationHours int    `mapstructure:"expiration_hours"`
}

// FinnhubConfig represents the upstream market-data provider
type FinnhubConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	WSURL   string `mapstructure:"ws_url"`
}

// FeedConfig tunes the upstream reconnect policy
type FeedConfig struct {
	BackoffMin time.Duration `mapstructure:"backoff_min"`
	BackoffMax time.Duration `mapstructure:"backoff_max"`
	BufferSize int           `mapstructure:"buffer_size"`
}

// QuotesConfig tunes the REST price oracle
type QuotesConfig struct {
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	SearchCacheTTL time.Duration `mapstructure:"search_cache_ttl"`
	RatePerMinute  int           `mapstructure:"rate_per_minute"`
	UseMock        bool          `mapstructure:"use_mock"`
}

// Config represents the application configuration
type Config struct {
	LogLevel string         `mapstructure:"log_level"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Finnhub  FinnhubConfig  `mapstructure:"finnhub"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Quotes   QuotesConfig   `mapstructure:"quotes"`
}

// Load reads config.yaml (if present) and environment variables prefixed
// with TRADELOG_, e.g. TRADELOG_FINNHUB_API_KEY.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("log_level", "info")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000"})
	v.SetDefault("server.rate_limit", "100-M")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "tradelog.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiration_hours", 24)
	v.SetDefault("finnhub.base_url", "https://finnhub.io/api/v1")
	v.SetDefault("finnhub.ws_url", "wss://ws.finnhub.io")
	v.SetDefault("feed.backoff_min", time.Second)
	v.SetDefault("feed.backoff_max", 30*time.Second)
	v.SetDefault("feed.buffer_size", 1024)
	v.SetDefault("quotes.cache_ttl", 5*time.Minute)
	v.SetDefault("quotes.search_cache_ttl", time.Hour)
	v.SetDefault("quotes.rate_per_minute", 60)
	v.SetDefault("quotes.use_mock", false)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/tradelog")

	v.SetEnvPrefix("TRADELOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt.secret must be set (TRADELOG_JWT_SECRET)")
	}

	return &cfg, nil
}
