package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shelfmatch/backend/internal/domain"
)

// Store is a thread-safe in-memory implementation of every persistence
// interface. It backs local development and tests; production deployments
// use the postgres store.
type Store struct {
	mu sync.RWMutex

	jobs       map[uuid.UUID]*domain.Job
	products   map[uuid.UUID]domain.Product
	embeddings map[uuid.UUID][]float32
	matches    map[uuid.UUID]domain.MatchResult
	progress   map[uuid.UUID]domain.Progress
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		jobs:       make(map[uuid.UUID]*domain.Job),
		products:   make(map[uuid.UUID]domain.Product),
		embeddings: make(map[uuid.UUID][]float32),
		matches:    make(map[uuid.UUID]domain.MatchResult),
		progress:   make(map[uuid.UUID]domain.Progress),
	}
}

// CreateJob stores a new job.
func (s *Store) CreateJob(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

// GetJob returns a copy of the job.
func (s *Store) GetJob(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

// ClaimJob marks a job running if it is not already; the store lock makes
// concurrent claims mutually exclusive.
func (s *Store) ClaimJob(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status == domain.JobRunning {
		return domain.ErrJobNotRunnable
	}
	now := time.Now().UTC()
	job.Status = domain.JobRunning
	job.Error = ""
	job.StartedAt = &now
	job.CompletedAt = nil
	return nil
}

// UpdateJobStatus transitions a job's lifecycle state and stamps the
// started/completed times.
func (s *Store) UpdateJobStatus(_ context.Context, id uuid.UUID, status domain.JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	job.Status = status
	job.Error = errMsg
	now := time.Now().UTC()
	switch status {
	case domain.JobRunning:
		job.StartedAt = &now
	case domain.JobCompleted, domain.JobFailed:
		job.CompletedAt = &now
	}
	return nil
}

// UpdateJobStats attaches end-of-run aggregates to the job.
func (s *Store) UpdateJobStats(_ context.Context, id uuid.UUID, stats domain.JobStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	job.Stats = &stats
	return nil
}

// ListJobs returns all jobs, newest first.
func (s *Store) ListJobs(_ context.Context) ([]domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// CreateProducts stores a batch of products.
func (s *Store) CreateProducts(_ context.Context, products []domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		s.products[p.ID] = p
	}
	return nil
}

// ProductsBySide returns one side of a job's catalog in insertion-time order.
func (s *Store) ProductsBySide(_ context.Context, jobID uuid.UUID, side domain.Side) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Product
	for _, p := range s.products {
		if p.JobID == jobID && p.Side == side {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// UpdateProduct replaces a stored product.
func (s *Store) UpdateProduct(_ context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
	return nil
}

// StoreEmbeddings stores vectors keyed by product and returns how many were
// stored. Zero-length vectors are skipped.
func (s *Store) StoreEmbeddings(_ context.Context, embeddings []domain.Embedding) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := 0
	for _, e := range embeddings {
		if len(e.Vector) == 0 {
			continue
		}
		s.embeddings[e.ProductID] = e.Vector
		stored++
	}
	return stored, nil
}

// SearchSimilar brute-forces cosine similarity over the stored embeddings of
// one job side and returns the top rows, highest similarity first.
func (s *Store) SearchSimilar(_ context.Context, vector []float32, jobID uuid.UUID, side domain.Side, limit int) ([]domain.CandidateRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []domain.CandidateRow
	for _, p := range s.products {
		if p.JobID != jobID || p.Side != side {
			continue
		}
		stored, ok := s.embeddings[p.ID]
		if !ok {
			continue
		}
		rows = append(rows, domain.CandidateRow{
			Product:    p,
			Similarity: cosine(vector, stored),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Similarity > rows[j].Similarity
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// CreateMatch stores one match result.
func (s *Store) CreateMatch(_ context.Context, result *domain.MatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[result.ID] = *result
	return nil
}

// MatchesByJob returns a job's results, oldest first.
func (s *Store) MatchesByJob(_ context.Context, jobID uuid.UUID) ([]domain.MatchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.MatchResult
	for _, r := range s.matches {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// UpdateMatchStatus changes the review status of one result.
func (s *Store) UpdateMatchStatus(_ context.Context, id uuid.UUID, status domain.MatchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.matches[id]
	if !ok {
		return domain.ErrMatchNotFound
	}
	r.Status = status
	s.matches[id] = r
	return nil
}

// SaveProgress replaces a job's progress snapshot.
func (s *Store) SaveProgress(_ context.Context, progress domain.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[progress.JobID] = progress
	return nil
}

// GetProgress returns the latest progress snapshot for a job.
func (s *Store) GetProgress(_ context.Context, jobID uuid.UUID) (*domain.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[jobID]
	if !ok {
		return nil, domain.ErrProgressNotFound
	}
	return &p, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
