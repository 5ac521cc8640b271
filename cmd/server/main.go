package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/shelfmatch/backend/config"
	httpDelivery "github.com/shelfmatch/backend/internal/delivery/http"
	"github.com/shelfmatch/backend/internal/domain"
	"github.com/shelfmatch/backend/internal/infrastructure/embed"
	"github.com/shelfmatch/backend/internal/infrastructure/memory"
	"github.com/shelfmatch/backend/internal/infrastructure/postgres"
	"github.com/shelfmatch/backend/internal/infrastructure/redisstore"
	"github.com/shelfmatch/backend/internal/infrastructure/scraper"
	"github.com/shelfmatch/backend/internal/infrastructure/verdict"
	"github.com/shelfmatch/backend/internal/infrastructure/vision"
	"github.com/shelfmatch/backend/internal/usecase"
)

func main() {
	// Local .env is optional; real deployments use environment variables.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg.Server.Environment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting ShelfMatch backend",
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Type),
		zap.String("cache", cfg.Cache.Type))

	ctx := context.Background()

	// Persistence: one store object implements jobs, products, embeddings,
	// candidate search, matches and progress.
	var (
		jobs       httpDelivery.JobStore
		products   domain.ProductStore
		embeddings domain.EmbeddingStore
		matches    domain.MatchStore
		progress   domain.ProgressStore
		index      domain.CandidateIndex
		byteCache  domain.ByteCache
	)
	switch cfg.Storage.Type {
	case "postgres":
		store, err := postgres.NewStore(ctx, cfg.Storage.PostgresDSN, cfg.Storage.EmbeddingDim)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to ensure schema", zap.Error(err))
		}
		jobs, products, embeddings, matches, progress, index = store, store, store, store, store, store
	default:
		store := memory.NewStore()
		jobs, products, embeddings, matches, progress, index = store, store, store, store, store, store
	}

	// Redis replaces the in-process progress store and byte cache when
	// multiple replicas must observe the same job state.
	if cfg.Cache.Type == "redis" {
		redisStore, err := redisstore.NewStore(ctx, cfg.Cache.RedisURL)
		if err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redisStore.Close()
		progress = redisStore
		byteCache = redisStore
	} else {
		byteCache = memory.NewByteCache()
	}

	embedClient := embed.NewClient(cfg.Embedding.BaseURL, cfg.Embedding.RequestsPerSecond, logger)
	verdictClient := verdict.NewClient(cfg.Validation.BaseURL, logger)
	if !verdictClient.Configured() {
		logger.Warn("arbitration service not configured, borderline matches will not be arbitrated")
	}

	var visualComparer domain.VisualComparer
	if cfg.Vision.BaseURL != "" {
		visualComparer = vision.NewComparer(cfg.Vision.BaseURL, byteCache, logger)
	}

	var pageScraper domain.PageScraper
	if cfg.Crawler.BaseURL != "" {
		pageScraper = scraper.NewClient(cfg.Crawler.BaseURL, logger)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Jobs:             jobs,
		Products:         products,
		Embeddings:       embeddings,
		Matches:          matches,
		Progress:         progress,
		Index:            index,
		Embedder:         embedClient,
		Verdict:          verdictClient,
		Visual:           visualComparer,
		Scraper:          pageScraper,
		CrawlConcurrency: cfg.Crawler.MaxConcurrent,
		Logger:           logger,
	})

	matcherDeps := usecase.MatcherDeps{
		Index:    index,
		Embedder: embedClient,
		Verdict:  verdictClient,
		Visual:   visualComparer,
		Logger:   logger,
	}

	handler := httpDelivery.NewHandler(jobs, products, matches, progress, pipeline, matcherDeps, logger)
	router := httpDelivery.SetupRouter(cfg, handler, logger)

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	logger.Info("server listening", zap.String("addr", addr))
	if err := router.Run(addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func buildLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
