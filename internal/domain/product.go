package domain

import (
	"time"

	"github.com/google/uuid"
)

// Side identifies which catalog a product belongs to.
type Side string

const (
	SideSource Side = "source"
	SideTarget Side = "target"
)

// CrawlStatus tracks whether a product's page has been scraped yet.
type CrawlStatus string

const (
	CrawlPending   CrawlStatus = "pending"
	CrawlCompleted CrawlStatus = "completed"
	CrawlFailed    CrawlStatus = "failed"
)

// Product is one catalog listing. Products are created during ingestion and
// never mutated by the matcher.
type Product struct {
	ID          uuid.UUID         `json:"id"`
	JobID       uuid.UUID         `json:"jobId"`
	Side        Side              `json:"side"`
	Title       string            `json:"title"`
	URL         string            `json:"url"`
	Brand       string            `json:"brand,omitempty"`
	Category    string            `json:"category,omitempty"`
	Price       float64           `json:"price,omitempty"`
	ImageURL    string            `json:"imageUrl,omitempty"`
	CrawlStatus CrawlStatus       `json:"crawlStatus,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// Embedding is a product's fixed-dimension normalized vector. Generated once
// during the embedding stage; absent when generation failed for that item.
type Embedding struct {
	ProductID uuid.UUID `json:"productId"`
	Vector    []float32 `json:"vector"`
}

// CandidateRow is a typed row from the similarity index: a target product
// plus its semantic similarity to the query embedding. The loosely-typed
// index output is mapped into this form at the boundary; internal logic only
// ever sees CandidateRow.
type CandidateRow struct {
	Product    Product
	Similarity float64
}

// Candidate is a scored target product attached to one match attempt.
// Transient: recomputed on every matching run and persisted only inside a
// MatchResult.
type Candidate struct {
	ProductID     uuid.UUID `json:"productId"`
	Title         string    `json:"title"`
	URL           string    `json:"url"`
	Brand         string    `json:"brand,omitempty"`
	Category      string    `json:"category,omitempty"`
	ImageURL      string    `json:"imageUrl,omitempty"`
	Score         float64   `json:"score"`
	Validated     bool      `json:"validated,omitempty"`
	AdjustedScore *float64  `json:"adjustedScore,omitempty"`
	Reasoning     string    `json:"reasoning,omitempty"`
}

// ConfidenceTier is the discrete bucket a final score maps into.
type ConfidenceTier string

const (
	TierExactMatch     ConfidenceTier = "exact_match"
	TierHighConfidence ConfidenceTier = "high_confidence"
	TierGoodMatch      ConfidenceTier = "good_match"
	TierLikelyMatch    ConfidenceTier = "likely_match"
	TierManualReview   ConfidenceTier = "manual_review"
	TierNoMatch        ConfidenceTier = "no_match"
)

// Rank orders tiers from no-match (0) to exact (5).
func (t ConfidenceTier) Rank() int {
	switch t {
	case TierExactMatch:
		return 5
	case TierHighConfidence:
		return 4
	case TierGoodMatch:
		return 3
	case TierLikelyMatch:
		return 2
	case TierManualReview:
		return 1
	default:
		return 0
	}
}

// MatchStatus is the review state of a persisted match result.
type MatchStatus string

const (
	MatchPending  MatchStatus = "pending"
	MatchApproved MatchStatus = "approved"
	MatchRejected MatchStatus = "rejected"
)

// MatchResult is the outcome of matching one source product during one job
// run. Immutable after creation; re-running a job creates new results rather
// than mutating old ones.
type MatchResult struct {
	ID              uuid.UUID      `json:"id"`
	JobID           uuid.UUID      `json:"jobId"`
	SourceProductID uuid.UUID      `json:"sourceProductId"`
	Best            *Candidate     `json:"best,omitempty"`
	TopCandidates   []Candidate    `json:"topCandidates,omitempty"`
	Tier            ConfidenceTier `json:"tier"`
	Explanation     string         `json:"explanation,omitempty"`
	IsNoMatch       bool           `json:"isNoMatch"`
	NoMatchReason   string         `json:"noMatchReason,omitempty"`
	Validated       bool           `json:"validated,omitempty"`
	Verdict         string         `json:"verdict,omitempty"`
	OriginalScore   *float64       `json:"originalScore,omitempty"`
	Status          MatchStatus    `json:"status"`
	CreatedAt       time.Time      `json:"createdAt"`
}
