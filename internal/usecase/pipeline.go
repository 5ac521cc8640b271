package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shelfmatch/backend/internal/domain"
)

// embedBatchSize is how many titles go to the embedding service per request.
const embedBatchSize = 32

// PipelineDeps are the stores and collaborators one pipeline needs. Scraper,
// Verdict and Visual may be nil; the corresponding stages or signals are
// then skipped.
type PipelineDeps struct {
	Jobs       domain.JobStore
	Products   domain.ProductStore
	Embeddings domain.EmbeddingStore
	Matches    domain.MatchStore
	Progress   domain.ProgressStore

	Index    domain.CandidateIndex
	Embedder domain.EmbeddingClient
	Verdict  domain.VerdictClient
	Visual   domain.VisualComparer
	Scraper  domain.PageScraper

	CrawlConcurrency int
	Logger           *zap.Logger
}

// Pipeline drives a job from raw product lists to persisted match results:
// crawl pending pages, batch-generate embeddings, match source items one at
// a time, then aggregate. The stage order is fixed; a precondition or
// pipeline-level failure transitions the job straight to failed.
type Pipeline struct {
	deps PipelineDeps
	log  *zap.Logger
}

// NewPipeline wires a pipeline from its dependencies.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.CrawlConcurrency <= 0 {
		deps.CrawlConcurrency = 5
	}
	return &Pipeline{deps: deps, log: deps.Logger}
}

// matchCounters are the running counters surfaced in progress messages
// during the matching stage. They are presentation only; the persisted job
// stats are recomputed from the stored result set at completion.
type matchCounters struct {
	Processed         int `json:"processed"`
	Matched           int `json:"matched"`
	HighConfidence    int `json:"highConfidence"`
	NoMatch           int `json:"noMatch"`
	NeedsReview       int `json:"needsReview"`
	ItemErrors        int `json:"itemErrors"`
	EmbeddingFailures int `json:"embeddingFailures"`
}

func (c matchCounters) message(text string) string {
	payload, err := json.Marshal(struct {
		Text     string        `json:"text"`
		Counters matchCounters `json:"counters"`
	}{Text: text, Counters: c})
	if err != nil {
		return text
	}
	return string(payload)
}

// Run executes the full pipeline for one job. It returns the end-of-run
// stats, or an error after transitioning the job to failed.
func (p *Pipeline) Run(ctx context.Context, jobID uuid.UUID) (*domain.JobStats, error) {
	tracker := NewTracker(jobID, p.deps.Progress, p.log)

	job, err := p.deps.Jobs.GetJob(ctx, jobID)
	if err != nil {
		tracker.Fail(ctx, err.Error())
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}

	cfg, err := job.Config.Normalize()
	if err != nil {
		return nil, p.fail(ctx, tracker, jobID, fmt.Errorf("job config: %w", err))
	}

	if err := p.deps.Jobs.UpdateJobStatus(ctx, jobID, domain.JobRunning, ""); err != nil {
		return nil, p.fail(ctx, tracker, jobID, fmt.Errorf("mark job running: %w", err))
	}
	tracker.StartStage(ctx, domain.StageStarted, 1, "Initializing job...")

	sourceProducts, err := p.deps.Products.ProductsBySide(ctx, jobID, domain.SideSource)
	if err != nil {
		return nil, p.fail(ctx, tracker, jobID, fmt.Errorf("load source products: %w", err))
	}
	targetProducts, err := p.deps.Products.ProductsBySide(ctx, jobID, domain.SideTarget)
	if err != nil {
		return nil, p.fail(ctx, tracker, jobID, fmt.Errorf("load target products: %w", err))
	}

	p.log.Info("job loaded",
		zap.String("job_id", jobID.String()),
		zap.Int("source_products", len(sourceProducts)),
		zap.Int("target_products", len(targetProducts)))

	// Both catalogs must be non-empty before any later stage is entered.
	if len(sourceProducts) == 0 {
		return nil, p.fail(ctx, tracker, jobID, fmt.Errorf("%w: no source products", domain.ErrEmptyCatalog))
	}
	if len(targetProducts) == 0 {
		return nil, p.fail(ctx, tracker, jobID, fmt.Errorf("%w: no target products", domain.ErrEmptyCatalog))
	}

	p.crawlPending(ctx, tracker, jobID, sourceProducts, domain.StageCrawlingSource)
	p.crawlPending(ctx, tracker, jobID, targetProducts, domain.StageCrawlingTarget)

	// Re-read after crawling so matching sees the scraped titles.
	if refreshed, err := p.deps.Products.ProductsBySide(ctx, jobID, domain.SideSource); err == nil {
		sourceProducts = refreshed
	}
	if refreshed, err := p.deps.Products.ProductsBySide(ctx, jobID, domain.SideTarget); err == nil {
		targetProducts = refreshed
	}

	// Fresh matching context per run: immutable config plus run-scoped
	// metrics, never shared across jobs.
	matcher := NewMatcher(cfg, MatcherDeps{
		Index:    p.deps.Index,
		Embedder: p.deps.Embedder,
		Verdict:  p.deps.Verdict,
		Visual:   p.deps.Visual,
		Logger:   p.log,
	})

	embeddingFailures, err := p.embedTargets(ctx, tracker, matcher, targetProducts)
	if err != nil {
		return nil, p.fail(ctx, tracker, jobID, err)
	}

	p.matchSources(ctx, tracker, matcher, sourceProducts, embeddingFailures)

	stats, err := p.aggregate(ctx, jobID, matcher, len(sourceProducts), embeddingFailures)
	if err != nil {
		return nil, p.fail(ctx, tracker, jobID, err)
	}

	if err := p.deps.Jobs.UpdateJobStats(ctx, jobID, *stats); err != nil {
		p.log.Warn("failed to persist job stats", zap.String("job_id", jobID.String()), zap.Error(err))
	}
	if err := p.deps.Jobs.UpdateJobStatus(ctx, jobID, domain.JobCompleted, ""); err != nil {
		return nil, p.fail(ctx, tracker, jobID, fmt.Errorf("mark job completed: %w", err))
	}

	tracker.Finish(ctx, fmt.Sprintf("Completed: %d matches found (%d high confidence)",
		stats.Matched, stats.HighConfidence))

	return stats, nil
}

// fail transitions the job and progress to their terminal failed states.
func (p *Pipeline) fail(ctx context.Context, tracker *Tracker, jobID uuid.UUID, cause error) error {
	tracker.Fail(ctx, cause.Error())
	if err := p.deps.Jobs.UpdateJobStatus(ctx, jobID, domain.JobFailed, cause.Error()); err != nil {
		p.log.Error("failed to mark job failed", zap.String("job_id", jobID.String()), zap.Error(err))
	}
	return cause
}

// crawlPending scrapes the products still marked pending, with bounded
// concurrency. A single URL's failure is isolated and logged; the batch and
// the job continue regardless.
func (p *Pipeline) crawlPending(ctx context.Context, tracker *Tracker, jobID uuid.UUID, products []domain.Product, stage domain.Stage) {
	if p.deps.Scraper == nil {
		return
	}

	var pending []domain.Product
	for _, product := range products {
		if product.CrawlStatus == domain.CrawlPending {
			pending = append(pending, product)
		}
	}
	if len(pending) == 0 {
		return
	}

	tracker.StartStage(ctx, stage, len(pending), fmt.Sprintf("Crawling %d products...", len(pending)))

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.deps.CrawlConcurrency)

	for _, product := range pending {
		g.Go(func() error {
			page, err := p.deps.Scraper.Scrape(gctx, product.URL)

			updated := product
			if err != nil || page == nil || page.Title == "" {
				p.log.Warn("crawl failed",
					zap.String("job_id", jobID.String()),
					zap.String("url", product.URL),
					zap.Error(err))
				updated.CrawlStatus = domain.CrawlFailed
			} else {
				updated.Title = page.Title
				if page.Brand != "" {
					updated.Brand = page.Brand
				}
				if page.Category != "" {
					updated.Category = page.Category
				}
				if page.Price > 0 {
					updated.Price = page.Price
				}
				if page.ImageURL != "" {
					updated.ImageURL = page.ImageURL
				}
				updated.CrawlStatus = domain.CrawlCompleted
			}

			if err := p.deps.Products.UpdateProduct(gctx, updated); err != nil {
				p.log.Warn("failed to update crawled product",
					zap.String("product_id", product.ID.String()),
					zap.Error(err))
			}

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			tracker.Update(ctx, n, fmt.Sprintf("Crawled %d/%d products", n, len(pending)))
			return nil
		})
	}
	// Workers never return errors; failures are per-URL and already logged.
	_ = g.Wait()

	tracker.CompleteStage(ctx, fmt.Sprintf("Crawled %d products", len(pending)))
}

// embedTargets batch-generates vectors for every target product in order,
// stores the successes, and counts failures without aborting the batch.
func (p *Pipeline) embedTargets(ctx context.Context, tracker *Tracker, matcher *Matcher, targets []domain.Product) (int, error) {
	tracker.StartStage(ctx, domain.StageEmbedding, len(targets),
		fmt.Sprintf("Generating embeddings for %d products...", len(targets)))

	failures := 0
	stored := 0

	for start := 0; start < len(targets); start += embedBatchSize {
		end := min(start+embedBatchSize, len(targets))
		batch := targets[start:end]

		texts := make([]string, len(batch))
		for i, product := range batch {
			texts[i] = matcher.EmbedText(product)
		}

		vectors, err := p.deps.Embedder.EncodeBatch(ctx, texts)
		if err != nil || len(vectors) != len(batch) {
			p.log.Warn("embedding batch failed",
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(batch)),
				zap.Error(err))
			failures += len(batch)
			tracker.Update(ctx, end, fmt.Sprintf("Embedding %d/%d products", end, len(targets)))
			continue
		}

		embeddings := make([]domain.Embedding, 0, len(batch))
		for i, vector := range vectors {
			if len(vector) == 0 {
				failures++
				continue
			}
			embeddings = append(embeddings, domain.Embedding{ProductID: batch[i].ID, Vector: vector})
		}

		n, err := p.deps.Embeddings.StoreEmbeddings(ctx, embeddings)
		if err != nil {
			return failures, fmt.Errorf("store embeddings: %w", err)
		}
		failures += len(embeddings) - n
		stored += n

		tracker.Update(ctx, end, fmt.Sprintf("Embedding %d/%d products", end, len(targets)))
	}

	// A fully failed embedding stage leaves nothing to match against.
	if stored == 0 {
		return failures, fmt.Errorf("embedding generation failed for all %d target products", len(targets))
	}

	tracker.CompleteStage(ctx, fmt.Sprintf("Generated %d embeddings (%d failed)", stored, failures))
	return failures, nil
}

// matchSources iterates source items sequentially through the orchestrator.
// A single item's failure is counted and never aborts the remaining items.
func (p *Pipeline) matchSources(ctx context.Context, tracker *Tracker, matcher *Matcher, sources []domain.Product, embeddingFailures int) {
	tracker.StartStage(ctx, domain.StageMatching, len(sources),
		fmt.Sprintf("Matching %d products...", len(sources)))

	counters := matchCounters{EmbeddingFailures: embeddingFailures}

	for i, source := range sources {
		result, err := matcher.MatchProduct(ctx, source)
		if err != nil {
			matcher.Metrics().incItemError()
			counters.ItemErrors++
			p.log.Warn("match attempt failed",
				zap.String("product_id", source.ID.String()),
				zap.Error(err))
		} else if err := p.deps.Matches.CreateMatch(ctx, result); err != nil {
			matcher.Metrics().incItemError()
			counters.ItemErrors++
			p.log.Warn("failed to store match result",
				zap.String("product_id", source.ID.String()),
				zap.Error(err))
		} else {
			applyToCounters(&counters, result)
		}

		counters.Processed = i + 1
		tracker.Update(ctx, i+1, counters.message(
			fmt.Sprintf("Matching product %d/%d: %s", i+1, len(sources), truncate(source.Title, 50))))
	}

	tracker.CompleteStage(ctx, counters.message("Matching complete"))
}

// aggregate recomputes the end-of-run stats from the stored result set. This
// recomputation, not the running counters, is the single source of truth.
func (p *Pipeline) aggregate(ctx context.Context, jobID uuid.UUID, matcher *Matcher, totalSources, embeddingFailures int) (*domain.JobStats, error) {
	results, err := p.deps.Matches.MatchesByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load match results: %w", err)
	}

	stats := domain.JobStats{
		TotalProducts:     totalSources,
		ItemErrors:        matcher.Metrics().ItemErrors(),
		EmbeddingFailures: embeddingFailures,
		Metrics:           matcher.Metrics().Snapshot(),
	}
	for _, result := range results {
		if result.IsNoMatch {
			stats.NoMatch++
			stats.NeedsReview++
			continue
		}
		stats.Matched++
		switch result.Tier {
		case domain.TierExactMatch, domain.TierHighConfidence:
			stats.HighConfidence++
		case domain.TierLikelyMatch, domain.TierManualReview:
			stats.NeedsReview++
		}
	}
	if totalSources > 0 {
		stats.MatchRate = float64(stats.Matched) / float64(totalSources)
	}
	return &stats, nil
}

func applyToCounters(c *matchCounters, result *domain.MatchResult) {
	if result.IsNoMatch {
		c.NoMatch++
		c.NeedsReview++
		return
	}
	c.Matched++
	switch result.Tier {
	case domain.TierExactMatch, domain.TierHighConfidence:
		c.HighConfidence++
	case domain.TierLikelyMatch, domain.TierManualReview:
		c.NeedsReview++
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
