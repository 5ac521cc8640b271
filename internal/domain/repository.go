package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobStore persists jobs and their lifecycle state. ClaimJob atomically
// transitions a job that is not already running into the running state, so
// concurrent run requests cannot both start a pipeline; it returns
// ErrJobNotRunnable when the job is already running.
type JobStore interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	ClaimJob(ctx context.Context, id uuid.UUID) error
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status JobStatus, errMsg string) error
	UpdateJobStats(ctx context.Context, id uuid.UUID, stats JobStats) error
}

// ProductStore persists catalog products for a job.
type ProductStore interface {
	CreateProducts(ctx context.Context, products []Product) error
	ProductsBySide(ctx context.Context, jobID uuid.UUID, side Side) ([]Product, error)
	UpdateProduct(ctx context.Context, product Product) error
}

// EmbeddingStore persists product embeddings. StoreEmbeddings returns the
// number of vectors actually stored.
type EmbeddingStore interface {
	StoreEmbeddings(ctx context.Context, embeddings []Embedding) (int, error)
}

// CandidateIndex is the external similarity index: given a query embedding it
// returns up to limit rows ranked by similarity descending.
type CandidateIndex interface {
	SearchSimilar(ctx context.Context, vector []float32, jobID uuid.UUID, side Side, limit int) ([]CandidateRow, error)
}

// MatchStore persists match results.
type MatchStore interface {
	CreateMatch(ctx context.Context, result *MatchResult) error
	MatchesByJob(ctx context.Context, jobID uuid.UUID) ([]MatchResult, error)
	UpdateMatchStatus(ctx context.Context, id uuid.UUID, status MatchStatus) error
}

// ProgressStore persists job progress durably enough that a reader in a
// different process than the writer observes the latest state.
type ProgressStore interface {
	SaveProgress(ctx context.Context, progress Progress) error
	GetProgress(ctx context.Context, jobID uuid.UUID) (*Progress, error)
}

// EmbeddingClient is the embedding model collaborator. EncodeBatch is
// order-preserving and returns L2-normalized vectors.
type EmbeddingClient interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Verdict is the arbitration service's decision on a borderline pair.
type Verdict string

const (
	VerdictConfirmed Verdict = "confirmed"
	VerdictRejected  Verdict = "rejected"
	VerdictUncertain Verdict = "uncertain"
	VerdictSkipped   Verdict = "skipped"
)

// VerdictRequest carries the pair to arbitrate. Prices of 0 mean unknown.
type VerdictRequest struct {
	SourceTitle    string  `json:"sourceTitle"`
	TargetTitle    string  `json:"targetTitle"`
	SourceBrand    string  `json:"sourceBrand,omitempty"`
	TargetBrand    string  `json:"targetBrand,omitempty"`
	SourceCategory string  `json:"sourceCategory,omitempty"`
	TargetCategory string  `json:"targetCategory,omitempty"`
	SourcePrice    float64 `json:"sourcePrice,omitempty"`
	TargetPrice    float64 `json:"targetPrice,omitempty"`
}

// VerdictResponse is the arbitration outcome. Confidence is in [0,1].
type VerdictResponse struct {
	Verdict    Verdict `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// VerdictClient is the external arbitration collaborator. Implementations
// must degrade gracefully: when unconfigured they return a skipped verdict
// rather than an error.
type VerdictClient interface {
	Validate(ctx context.Context, req VerdictRequest) (VerdictResponse, error)
}

// VisualComparer compares two product images by URL. ok is false when the
// comparison could not be made (feature disabled, fetch failed, oversized
// payload); that is an absent signal, not an error.
type VisualComparer interface {
	Compare(ctx context.Context, sourceURL, targetURL string) (score float64, ok bool)
}

// ScrapedPage is the output of the headless-browser scraping collaborator.
type ScrapedPage struct {
	Title    string  `json:"title"`
	Brand    string  `json:"brand,omitempty"`
	Category string  `json:"category,omitempty"`
	Price    float64 `json:"price,omitempty"`
	ImageURL string  `json:"imageUrl,omitempty"`
}

// PageScraper fetches product page metadata for one URL.
type PageScraper interface {
	Scrape(ctx context.Context, url string) (*ScrapedPage, error)
}

// ByteCache is a simple TTL byte cache used for memoizing visual signatures.
type ByteCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
