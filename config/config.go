package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Cache      CacheConfig
	Embedding  EmbeddingConfig
	Validation ValidationConfig
	Vision     VisionConfig
	Crawler    CrawlerConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Type         string `mapstructure:"type"` // "memory" or "postgres"
	PostgresDSN  string `mapstructure:"postgres_dsn"`
	EmbeddingDim int    `mapstructure:"embedding_dim"`
}

// CacheConfig holds cache and progress-store configuration
type CacheConfig struct {
	Type     string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// EmbeddingConfig holds embedding service configuration
type EmbeddingConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// ValidationConfig holds arbitration service configuration. An empty base
// URL disables arbitration globally regardless of per-job settings.
type ValidationConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// VisionConfig holds the image feature service configuration. Optional.
type VisionConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// CrawlerConfig holds scraping service configuration. Optional; without a
// base URL, products must arrive with titles pre-filled.
type CrawlerConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/shelfmatch/")

	v.SetEnvPrefix("SHELFMATCH")
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional; env vars and defaults cover everything.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:*"})

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.embedding_dim", 384)

	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", "24h")

	v.SetDefault("embedding.base_url", "http://localhost:8100")
	v.SetDefault("embedding.requests_per_second", 10)

	v.SetDefault("crawler.max_concurrent", 5)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Storage.Type != "memory" && config.Storage.Type != "postgres" {
		return fmt.Errorf("storage type must be 'memory' or 'postgres', got: %s", config.Storage.Type)
	}
	if config.Storage.Type == "postgres" && config.Storage.PostgresDSN == "" {
		return fmt.Errorf("postgres DSN is required when storage type is 'postgres' (set SHELFMATCH_STORAGE_POSTGRES_DSN)")
	}
	if config.Storage.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got: %d", config.Storage.EmbeddingDim)
	}

	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}
	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when cache type is 'redis'")
	}

	if config.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding service base URL is required (set SHELFMATCH_EMBEDDING_BASE_URL)")
	}

	if config.Crawler.MaxConcurrent <= 0 {
		return fmt.Errorf("crawler max_concurrent must be positive, got: %d", config.Crawler.MaxConcurrent)
	}

	return nil
}
