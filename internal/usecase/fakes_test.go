package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shelfmatch/backend/internal/domain"
)

// In-memory fakes shared by the tests in this package.

type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	failFor map[string]bool
	failAll bool
	calls   int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{
		vectors: make(map[string][]float32),
		failFor: make(map[string]bool),
	}
}

func (f *fakeEmbedder) Encode(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAll || f.failFor[text] {
		return nil, errors.New("embedding service unavailable")
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.failAll {
		return nil, errors.New("embedding service unavailable")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.Encode(ctx, text)
		if err != nil {
			out[i] = nil
			continue
		}
		out[i] = v
	}
	return out, nil
}

type fakeIndex struct {
	rows []domain.CandidateRow
	// vectors, when set per-row, recomputes Similarity against the query so
	// different sources see different rankings.
	vectors [][]float32
	err     error
}

func (f *fakeIndex) SearchSimilar(_ context.Context, vector []float32, _ uuid.UUID, _ domain.Side, limit int) ([]domain.CandidateRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	rows := make([]domain.CandidateRow, len(f.rows))
	copy(rows, f.rows)
	for i := range rows {
		if i < len(f.vectors) && f.vectors[i] != nil {
			rows[i].Similarity = cosineSimilarity(vector, f.vectors[i])
		}
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

type fakeVerdictClient struct {
	resp  domain.VerdictResponse
	err   error
	calls int
}

func (f *fakeVerdictClient) Validate(_ context.Context, _ domain.VerdictRequest) (domain.VerdictResponse, error) {
	f.calls++
	if f.err != nil {
		return domain.VerdictResponse{}, f.err
	}
	return f.resp, nil
}

type fakeJobStore struct {
	mu     sync.Mutex
	jobs   map[uuid.UUID]*domain.Job
	status []domain.JobStatus
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[uuid.UUID]*domain.Job)}
}

func (f *fakeJobStore) CreateJob(_ context.Context, job *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobStore) GetJob(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobStore) ClaimJob(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status == domain.JobRunning {
		return domain.ErrJobNotRunnable
	}
	job.Status = domain.JobRunning
	f.status = append(f.status, domain.JobRunning)
	return nil
}

func (f *fakeJobStore) UpdateJobStatus(_ context.Context, id uuid.UUID, status domain.JobStatus, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	job.Status = status
	job.Error = errMsg
	f.status = append(f.status, status)
	return nil
}

func (f *fakeJobStore) UpdateJobStats(_ context.Context, id uuid.UUID, stats domain.JobStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	job.Stats = &stats
	return nil
}

type fakeProductStore struct {
	mu       sync.Mutex
	products map[uuid.UUID]domain.Product
}

func newFakeProductStore() *fakeProductStore {
	return &fakeProductStore{products: make(map[uuid.UUID]domain.Product)}
}

func (f *fakeProductStore) CreateProducts(_ context.Context, products []domain.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range products {
		f.products[p.ID] = p
	}
	return nil
}

func (f *fakeProductStore) ProductsBySide(_ context.Context, jobID uuid.UUID, side domain.Side) ([]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Product
	for _, p := range f.products {
		if p.JobID == jobID && p.Side == side {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProductStore) UpdateProduct(_ context.Context, product domain.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[product.ID] = product
	return nil
}

type fakeEmbeddingStore struct {
	mu     sync.Mutex
	stored []domain.Embedding
	err    error
}

func (f *fakeEmbeddingStore) StoreEmbeddings(_ context.Context, embeddings []domain.Embedding) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, embeddings...)
	return len(embeddings), nil
}

type fakeMatchStore struct {
	mu      sync.Mutex
	results []domain.MatchResult
}

func (f *fakeMatchStore) CreateMatch(_ context.Context, result *domain.MatchResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, *result)
	return nil
}

func (f *fakeMatchStore) MatchesByJob(_ context.Context, jobID uuid.UUID) ([]domain.MatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.MatchResult
	for _, r := range f.results {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeMatchStore) UpdateMatchStatus(_ context.Context, id uuid.UUID, status domain.MatchStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.results {
		if f.results[i].ID == id {
			f.results[i].Status = status
			return nil
		}
	}
	return domain.ErrMatchNotFound
}

type fakeProgressStore struct {
	mu    sync.Mutex
	saves []domain.Progress
	err   error
}

func (f *fakeProgressStore) SaveProgress(_ context.Context, progress domain.Progress) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, progress)
	return nil
}

func (f *fakeProgressStore) GetProgress(_ context.Context, jobID uuid.UUID) (*domain.Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.saves) - 1; i >= 0; i-- {
		if f.saves[i].JobID == jobID {
			p := f.saves[i]
			return &p, nil
		}
	}
	return nil, domain.ErrProgressNotFound
}

func (f *fakeProgressStore) stages() []domain.Stage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Stage
	for _, s := range f.saves {
		if len(out) == 0 || out[len(out)-1] != s.Stage {
			out = append(out, s.Stage)
		}
	}
	return out
}

type fakeScraper struct {
	mu    sync.Mutex
	pages map[string]*domain.ScrapedPage
	err   error
	calls int
}

func (f *fakeScraper) Scrape(_ context.Context, url string) (*domain.ScrapedPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	page, ok := f.pages[url]
	if !ok {
		return nil, errors.New("page not found")
	}
	return page, nil
}

func defaultConfig() domain.JobConfig {
	cfg, _ := domain.DefaultJobConfig().Normalize()
	return cfg
}

func testProduct(jobID uuid.UUID, side domain.Side, title, brand, category string) domain.Product {
	return domain.Product{
		ID:          uuid.New(),
		JobID:       jobID,
		Side:        side,
		Title:       title,
		Brand:       brand,
		Category:    category,
		CrawlStatus: domain.CrawlCompleted,
		CreatedAt:   time.Now().UTC(),
	}
}
