package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shelfmatch/backend/internal/domain"
)

type pipelineHarness struct {
	jobs     *fakeJobStore
	products *fakeProductStore
	embeds   *fakeEmbeddingStore
	matches  *fakeMatchStore
	progress *fakeProgressStore
	index    *fakeIndex
	embedder *fakeEmbedder
	scraper  *fakeScraper

	pipeline *Pipeline
	jobID    uuid.UUID
}

func newPipelineHarness(t *testing.T) *pipelineHarness {
	t.Helper()
	h := &pipelineHarness{
		jobs:     newFakeJobStore(),
		products: newFakeProductStore(),
		embeds:   &fakeEmbeddingStore{},
		matches:  &fakeMatchStore{},
		progress: &fakeProgressStore{},
		index:    &fakeIndex{},
		embedder: newFakeEmbedder(),
		jobID:    uuid.New(),
	}
	job := &domain.Job{
		ID:        h.jobID,
		Name:      "test job",
		Status:    domain.JobPending,
		Config:    domain.DefaultJobConfig(),
		CreatedAt: time.Now().UTC(),
	}
	if err := h.jobs.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return h
}

func (h *pipelineHarness) build() *Pipeline {
	deps := PipelineDeps{
		Jobs:       h.jobs,
		Products:   h.products,
		Embeddings: h.embeds,
		Matches:    h.matches,
		Progress:   h.progress,
		Index:      h.index,
		Embedder:   h.embedder,
	}
	if h.scraper != nil {
		deps.Scraper = h.scraper
	}
	h.pipeline = NewPipeline(deps)
	return h.pipeline
}

func (h *pipelineHarness) addProducts(t *testing.T, side domain.Side, titles ...string) []domain.Product {
	t.Helper()
	var out []domain.Product
	for _, title := range titles {
		p := testProduct(h.jobID, side, title, "Maybelline", "Foundation")
		out = append(out, p)
	}
	if err := h.products.CreateProducts(context.Background(), out); err != nil {
		t.Fatalf("create products: %v", err)
	}
	return out
}

func TestPipelineEmptyCatalog(t *testing.T) {
	ctx := context.Background()

	t.Run("no source products", func(t *testing.T) {
		h := newPipelineHarness(t)
		h.addProducts(t, domain.SideTarget, "Target Product")

		_, err := h.build().Run(ctx, h.jobID)
		if !errors.Is(err, domain.ErrEmptyCatalog) {
			t.Fatalf("err = %v, want ErrEmptyCatalog", err)
		}

		job, _ := h.jobs.GetJob(ctx, h.jobID)
		if job.Status != domain.JobFailed {
			t.Errorf("job status = %q, want failed", job.Status)
		}
		p, _ := h.progress.GetProgress(ctx, h.jobID)
		if p == nil || p.Stage != domain.StageFailed {
			t.Errorf("progress not in failed stage: %+v", p)
		}
	})

	t.Run("no target products", func(t *testing.T) {
		h := newPipelineHarness(t)
		h.addProducts(t, domain.SideSource, "Source Product")

		_, err := h.build().Run(ctx, h.jobID)
		if !errors.Is(err, domain.ErrEmptyCatalog) {
			t.Fatalf("err = %v, want ErrEmptyCatalog", err)
		}
	})
}

func TestPipelineMissingJob(t *testing.T) {
	h := newPipelineHarness(t)
	_, err := h.build().Run(context.Background(), uuid.New())
	if !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestPipelineHappyPath(t *testing.T) {
	ctx := context.Background()
	h := newPipelineHarness(t)
	h.addProducts(t, domain.SideSource, "Fit Me Foundation", "Superstay Lipstick")
	targets := h.addProducts(t, domain.SideTarget, "Fit Me Foundation", "Superstay Lipstick")

	// Both sources find an identical-titled target at high similarity.
	for _, target := range targets {
		h.index.rows = append(h.index.rows, domain.CandidateRow{Product: target, Similarity: 0.95})
	}

	stats, err := h.build().Run(ctx, h.jobID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if stats.TotalProducts != 2 || stats.Matched != 2 || stats.NoMatch != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.MatchRate != 1.0 {
		t.Errorf("match rate = %v, want 1.0", stats.MatchRate)
	}
	if stats.Metrics == nil {
		t.Error("run metrics missing from stats")
	}

	job, _ := h.jobs.GetJob(ctx, h.jobID)
	if job.Status != domain.JobCompleted {
		t.Errorf("job status = %q, want completed", job.Status)
	}
	if job.Stats == nil {
		t.Error("stats not persisted on job")
	}

	if len(h.embeds.stored) != 2 {
		t.Errorf("stored %d embeddings, want 2", len(h.embeds.stored))
	}
	results, _ := h.matches.MatchesByJob(ctx, h.jobID)
	if len(results) != 2 {
		t.Errorf("stored %d match results, want 2", len(results))
	}

	// Stage order: no pending crawls, so crawl stages are skipped.
	want := []domain.Stage{domain.StageStarted, domain.StageEmbedding, domain.StageMatching, domain.StageCompleted}
	got := h.progress.stages()
	if len(got) != len(want) {
		t.Fatalf("stages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stages = %v, want %v", got, want)
		}
	}
}

func TestPipelinePerItemIsolation(t *testing.T) {
	ctx := context.Background()
	h := newPipelineHarness(t)
	h.addProducts(t, domain.SideSource, "Good Product", "Bad Product")
	targets := h.addProducts(t, domain.SideTarget, "Good Product")
	h.index.rows = []domain.CandidateRow{{Product: targets[0], Similarity: 0.95}}

	// One source's embedding call fails; the run must still complete.
	h.embedder.failFor["Bad Product"] = true

	stats, err := h.build().Run(ctx, h.jobID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if stats.ItemErrors != 1 {
		t.Errorf("item errors = %d, want 1", stats.ItemErrors)
	}
	if stats.Matched != 1 {
		t.Errorf("matched = %d, want 1", stats.Matched)
	}
	job, _ := h.jobs.GetJob(ctx, h.jobID)
	if job.Status != domain.JobCompleted {
		t.Errorf("job status = %q, a single bad item must not fail the job", job.Status)
	}
}

func TestPipelineEmbeddingFailuresCounted(t *testing.T) {
	ctx := context.Background()
	h := newPipelineHarness(t)
	h.addProducts(t, domain.SideSource, "Source Product")
	targets := h.addProducts(t, domain.SideTarget, "Good Target", "Broken Target")
	h.index.rows = []domain.CandidateRow{{Product: targets[0], Similarity: 0.95}}

	h.embedder.failFor["Broken Target"] = true

	stats, err := h.build().Run(ctx, h.jobID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.EmbeddingFailures != 1 {
		t.Errorf("embedding failures = %d, want 1", stats.EmbeddingFailures)
	}
	if len(h.embeds.stored) != 1 {
		t.Errorf("stored %d embeddings, want 1", len(h.embeds.stored))
	}
}

func TestPipelineAllEmbeddingsFailing(t *testing.T) {
	ctx := context.Background()
	h := newPipelineHarness(t)
	h.addProducts(t, domain.SideSource, "Source Product")
	h.addProducts(t, domain.SideTarget, "Target Product")
	h.embedder.failFor["Target Product"] = true

	_, err := h.build().Run(ctx, h.jobID)
	if err == nil {
		t.Fatal("expected failure when no target could be embedded")
	}
	job, _ := h.jobs.GetJob(ctx, h.jobID)
	if job.Status != domain.JobFailed {
		t.Errorf("job status = %q, want failed", job.Status)
	}
}

func TestPipelineCrawling(t *testing.T) {
	ctx := context.Background()
	h := newPipelineHarness(t)

	good := testProduct(h.jobID, domain.SideSource, "", "", "")
	good.URL = "https://shop.example/p/1"
	good.CrawlStatus = domain.CrawlPending
	broken := testProduct(h.jobID, domain.SideSource, "", "", "")
	broken.URL = "https://shop.example/p/404"
	broken.CrawlStatus = domain.CrawlPending
	if err := h.products.CreateProducts(ctx, []domain.Product{good, broken}); err != nil {
		t.Fatalf("create products: %v", err)
	}
	targets := h.addProducts(t, domain.SideTarget, "Fit Me Foundation")
	h.index.rows = []domain.CandidateRow{{Product: targets[0], Similarity: 0.95}}

	h.scraper = &fakeScraper{pages: map[string]*domain.ScrapedPage{
		"https://shop.example/p/1": {
			Title: "Fit Me Foundation", Brand: "Maybelline", Category: "Foundation", Price: 499,
		},
	}}

	if _, err := h.build().Run(ctx, h.jobID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sources, _ := h.products.ProductsBySide(ctx, h.jobID, domain.SideSource)
	byID := make(map[uuid.UUID]domain.Product, len(sources))
	for _, p := range sources {
		byID[p.ID] = p
	}

	crawled := byID[good.ID]
	if crawled.CrawlStatus != domain.CrawlCompleted {
		t.Errorf("crawl status = %q, want completed", crawled.CrawlStatus)
	}
	if crawled.Title != "Fit Me Foundation" || crawled.Brand != "Maybelline" {
		t.Errorf("scraped fields not applied: %+v", crawled)
	}

	failed := byID[broken.ID]
	if failed.CrawlStatus != domain.CrawlFailed {
		t.Errorf("crawl status = %q, want failed for broken URL", failed.CrawlStatus)
	}

	// A failed crawl is isolated; the job still runs to completion.
	job, _ := h.jobs.GetJob(ctx, h.jobID)
	if job.Status != domain.JobCompleted {
		t.Errorf("job status = %q, want completed", job.Status)
	}
	if h.scraper.calls != 2 {
		t.Errorf("scraper called %d times, want 2", h.scraper.calls)
	}
}

func TestPipelineCrawlsManyProductsConcurrently(t *testing.T) {
	ctx := context.Background()
	h := newPipelineHarness(t)

	// Enough pending products that several crawl workers run at once and
	// report progress in parallel.
	pages := make(map[string]*domain.ScrapedPage, 40)
	pending := make([]domain.Product, 0, 40)
	for i := 0; i < 40; i++ {
		p := testProduct(h.jobID, domain.SideSource, "", "", "")
		p.URL = fmt.Sprintf("https://shop.example/p/%d", i)
		p.CrawlStatus = domain.CrawlPending
		pending = append(pending, p)
		pages[p.URL] = &domain.ScrapedPage{
			Title: fmt.Sprintf("Fit Me Foundation %d", i), Brand: "Maybelline", Category: "Foundation",
		}
	}
	if err := h.products.CreateProducts(ctx, pending); err != nil {
		t.Fatalf("create products: %v", err)
	}
	targets := h.addProducts(t, domain.SideTarget, "Fit Me Foundation")
	h.index.rows = []domain.CandidateRow{{Product: targets[0], Similarity: 0.95}}
	h.scraper = &fakeScraper{pages: pages}

	if _, err := h.build().Run(ctx, h.jobID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sources, _ := h.products.ProductsBySide(ctx, h.jobID, domain.SideSource)
	for _, p := range sources {
		if p.CrawlStatus != domain.CrawlCompleted {
			t.Errorf("product %s crawl status = %q, want completed", p.URL, p.CrawlStatus)
		}
	}
	if h.scraper.calls != 40 {
		t.Errorf("scraper called %d times, want 40", h.scraper.calls)
	}

	// The crawl stage's final write carries the full count.
	var crawlFinal *domain.Progress
	for i := range h.progress.saves {
		if h.progress.saves[i].Stage == domain.StageCrawlingSource {
			crawlFinal = &h.progress.saves[i]
		}
	}
	if crawlFinal == nil || crawlFinal.Current != 40 || crawlFinal.Total != 40 {
		t.Errorf("final crawl progress = %+v, want 40/40", crawlFinal)
	}
}

func TestPipelineAggregatesFromStoredResults(t *testing.T) {
	ctx := context.Background()
	h := newPipelineHarness(t)
	h.addProducts(t, domain.SideSource, "Fit Me Foundation", "Obscure Item")
	targets := h.addProducts(t, domain.SideTarget, "Fit Me Foundation")

	// One source matches at exact tier; the other is semantically orthogonal
	// to the only candidate and falls below the no-match threshold.
	h.index.rows = []domain.CandidateRow{{Product: targets[0]}}
	h.index.vectors = [][]float32{{1, 0, 0}}
	h.embedder.vectors["Fit Me Foundation"] = []float32{1, 0, 0}
	h.embedder.vectors["Obscure Item"] = []float32{0, 1, 0}

	stats, err := h.build().Run(ctx, h.jobID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	results, _ := h.matches.MatchesByJob(ctx, h.jobID)
	matched, noMatch := 0, 0
	for _, r := range results {
		if r.IsNoMatch {
			noMatch++
		} else {
			matched++
		}
	}
	if stats.Matched != matched || stats.NoMatch != noMatch {
		t.Errorf("stats (%d matched, %d no-match) disagree with stored results (%d, %d)",
			stats.Matched, stats.NoMatch, matched, noMatch)
	}
	if stats.NoMatch == 0 {
		t.Error("expected at least one no-match result")
	}
}
