package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the user-visible lifecycle state of a matching job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Stage is a pipeline stage within one job run.
type Stage string

const (
	StagePending        Stage = "pending"
	StageStarted        Stage = "started"
	StageCrawlingSource Stage = "crawling_source"
	StageCrawlingTarget Stage = "crawling_target"
	StageEmbedding      Stage = "embedding"
	StageMatching       Stage = "matching"
	StageCompleted      Stage = "completed"
	StageFailed         Stage = "failed"
)

// JobConfig holds the per-run matching configuration. It is supplied once at
// job start, fully defaulted by Normalize, and treated as immutable for the
// duration of the run. Every feature toggle is explicit; nothing probes for
// missing settings at match time.
type JobConfig struct {
	SemanticWeight  float64 `json:"semanticWeight"`
	TokenWeight     float64 `json:"tokenWeight"`
	AttributeWeight float64 `json:"attributeWeight"`

	CandidateLimit   int     `json:"candidateLimit"`
	NoMatchThreshold float64 `json:"noMatchThreshold"`

	ValidationEnabled bool    `json:"validationEnabled"`
	ValidationMin     float64 `json:"validationMin"`
	ValidationMax     float64 `json:"validationMax"`
	ValidationCap     int     `json:"validationCap"`

	EnhancedTokens    bool `json:"enhancedTokens"`
	BrandOntology     bool `json:"brandOntology"`
	CategoryOntology  bool `json:"categoryOntology"`
	VariantExtraction bool `json:"variantExtraction"`
	EmbedEnrichedText bool `json:"embedEnrichedText"`

	VisualSignal bool `json:"visualSignal"`
	VisualCap    int  `json:"visualCap"`
}

// Weights used when a visual similarity value is present for a candidate.
const (
	visualSemanticWeight  = 0.50
	visualTokenWeight     = 0.20
	visualAttributeWeight = 0.15
	visualVisualWeight    = 0.15
)

// DefaultJobConfig returns the standard configuration: 60% semantic, 25%
// token overlap, 15% attributes, no optional features.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		SemanticWeight:   0.60,
		TokenWeight:      0.25,
		AttributeWeight:  0.15,
		CandidateLimit:   100,
		NoMatchThreshold: 0.50,
		ValidationMin:    0.70,
		ValidationMax:    0.94,
		ValidationCap:    100,
		VisualCap:        500,
	}
}

// Normalize fills zero values with defaults and validates the invariants the
// rest of the engine relies on. Returned configs always have weights summing
// to 1.0 and a validation window inside [0,1].
func (c JobConfig) Normalize() (JobConfig, error) {
	def := DefaultJobConfig()
	if c.SemanticWeight == 0 && c.TokenWeight == 0 && c.AttributeWeight == 0 {
		c.SemanticWeight = def.SemanticWeight
		c.TokenWeight = def.TokenWeight
		c.AttributeWeight = def.AttributeWeight
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = def.CandidateLimit
	}
	if c.NoMatchThreshold <= 0 {
		c.NoMatchThreshold = def.NoMatchThreshold
	}
	if c.ValidationMin == 0 {
		c.ValidationMin = def.ValidationMin
	}
	if c.ValidationMax == 0 {
		c.ValidationMax = def.ValidationMax
	}
	if c.ValidationCap <= 0 {
		c.ValidationCap = def.ValidationCap
	}
	if c.VisualCap <= 0 {
		c.VisualCap = def.VisualCap
	}

	sum := c.SemanticWeight + c.TokenWeight + c.AttributeWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return c, fmt.Errorf("scoring weights must sum to 1.0, got %.4f", sum)
	}
	if c.ValidationMin < 0 || c.ValidationMax > 1 || c.ValidationMin > c.ValidationMax {
		return c, fmt.Errorf("invalid validation window [%.2f, %.2f]", c.ValidationMin, c.ValidationMax)
	}
	return c, nil
}

// Weights returns the scoring weights for one candidate. The visual-mode
// weights apply only when a visual similarity value was actually obtained.
func (c JobConfig) Weights(visual bool) (semantic, token, attribute, vis float64) {
	if visual {
		return visualSemanticWeight, visualTokenWeight, visualAttributeWeight, visualVisualWeight
	}
	return c.SemanticWeight, c.TokenWeight, c.AttributeWeight, 0
}

// JobStats are the end-of-run aggregates persisted alongside the job record.
// They are recomputed from the full result set at completion; the running
// counters kept during the matching loop feed progress messages only.
type JobStats struct {
	TotalProducts     int            `json:"totalProducts"`
	Matched           int            `json:"matched"`
	NoMatch           int            `json:"noMatch"`
	HighConfidence    int            `json:"highConfidence"`
	NeedsReview       int            `json:"needsReview"`
	ItemErrors        int            `json:"itemErrors"`
	EmbeddingFailures int            `json:"embeddingFailures"`
	MatchRate         float64        `json:"matchRate"`
	Metrics           map[string]int `json:"metrics,omitempty"`
}

// Job is one matching job: two product lists and a configuration.
type Job struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Status      JobStatus  `json:"status"`
	Config      JobConfig  `json:"config"`
	Stats       *JobStats  `json:"stats,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Progress is the pollable state of a running job. It is superseded on each
// update, never appended, and remains readable after completion or failure.
type Progress struct {
	JobID      uuid.UUID `json:"jobId"`
	Stage      Stage     `json:"stage"`
	Current    int       `json:"current"`
	Total      int       `json:"total"`
	Rate       float64   `json:"rate"`
	ETASeconds int       `json:"etaSeconds"`
	Message    string    `json:"message"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Percentage of the current stage, clamped to [0,100].
func (p Progress) Percentage() float64 {
	if p.Total <= 0 {
		return 0
	}
	pct := float64(p.Current) / float64(p.Total) * 100
	return math.Min(100, math.Max(0, pct))
}
