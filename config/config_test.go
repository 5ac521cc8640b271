package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	cleanupEnv := func() {
		os.Unsetenv("SHELFMATCH_SERVER_PORT")
		os.Unsetenv("SHELFMATCH_SERVER_ENVIRONMENT")
		os.Unsetenv("SHELFMATCH_STORAGE_TYPE")
		os.Unsetenv("SHELFMATCH_STORAGE_POSTGRES_DSN")
		os.Unsetenv("SHELFMATCH_STORAGE_EMBEDDING_DIM")
		os.Unsetenv("SHELFMATCH_CACHE_TYPE")
		os.Unsetenv("SHELFMATCH_CACHE_REDIS_URL")
		os.Unsetenv("SHELFMATCH_CACHE_TTL")
		os.Unsetenv("SHELFMATCH_EMBEDDING_BASE_URL")
		os.Unsetenv("SHELFMATCH_VALIDATION_BASE_URL")
		os.Unsetenv("SHELFMATCH_VISION_BASE_URL")
		os.Unsetenv("SHELFMATCH_CRAWLER_BASE_URL")
		os.Unsetenv("SHELFMATCH_CRAWLER_MAX_CONCURRENT")
	}

	t.Run("loads with defaults when no env vars set", func(t *testing.T) {
		cleanupEnv()
		defer cleanupEnv()

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}

		if cfg.Server.Port != "8080" {
			t.Errorf("Server.Port = %s, want 8080", cfg.Server.Port)
		}
		if cfg.Server.Environment != "development" {
			t.Errorf("Server.Environment = %s, want development", cfg.Server.Environment)
		}
		if cfg.Storage.Type != "memory" {
			t.Errorf("Storage.Type = %s, want memory", cfg.Storage.Type)
		}
		if cfg.Storage.EmbeddingDim != 384 {
			t.Errorf("Storage.EmbeddingDim = %d, want 384", cfg.Storage.EmbeddingDim)
		}
		if cfg.Cache.Type != "memory" {
			t.Errorf("Cache.Type = %s, want memory", cfg.Cache.Type)
		}
		if cfg.Cache.TTL != 24*time.Hour {
			t.Errorf("Cache.TTL = %v, want 24h", cfg.Cache.TTL)
		}
		if cfg.Embedding.BaseURL != "http://localhost:8100" {
			t.Errorf("Embedding.BaseURL = %s, want http://localhost:8100", cfg.Embedding.BaseURL)
		}
		if cfg.Crawler.MaxConcurrent != 5 {
			t.Errorf("Crawler.MaxConcurrent = %d, want 5", cfg.Crawler.MaxConcurrent)
		}
	})

	t.Run("loads custom values from environment variables", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("SHELFMATCH_SERVER_PORT", "9090")
		os.Setenv("SHELFMATCH_SERVER_ENVIRONMENT", "production")
		os.Setenv("SHELFMATCH_STORAGE_TYPE", "postgres")
		os.Setenv("SHELFMATCH_STORAGE_POSTGRES_DSN", "postgres://localhost/shelfmatch")
		os.Setenv("SHELFMATCH_CACHE_TYPE", "redis")
		os.Setenv("SHELFMATCH_CACHE_REDIS_URL", "redis://localhost:6379")
		os.Setenv("SHELFMATCH_EMBEDDING_BASE_URL", "http://embed.internal:8100")
		defer cleanupEnv()

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}

		if cfg.Server.Port != "9090" {
			t.Errorf("Server.Port = %s, want 9090", cfg.Server.Port)
		}
		if cfg.Storage.Type != "postgres" {
			t.Errorf("Storage.Type = %s, want postgres", cfg.Storage.Type)
		}
		if cfg.Cache.RedisURL != "redis://localhost:6379" {
			t.Errorf("Cache.RedisURL = %s", cfg.Cache.RedisURL)
		}
		if cfg.Embedding.BaseURL != "http://embed.internal:8100" {
			t.Errorf("Embedding.BaseURL = %s", cfg.Embedding.BaseURL)
		}
	})

	t.Run("rejects postgres storage without a DSN", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("SHELFMATCH_STORAGE_TYPE", "postgres")
		defer cleanupEnv()

		if _, err := Load(); err == nil {
			t.Error("Load() = nil error, want DSN validation failure")
		}
	})

	t.Run("rejects redis cache without a URL", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("SHELFMATCH_CACHE_TYPE", "redis")
		defer cleanupEnv()

		if _, err := Load(); err == nil {
			t.Error("Load() = nil error, want Redis URL validation failure")
		}
	})

	t.Run("rejects unknown storage type", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("SHELFMATCH_STORAGE_TYPE", "dynamo")
		defer cleanupEnv()

		if _, err := Load(); err == nil {
			t.Error("Load() = nil error, want storage type validation failure")
		}
	})
}
