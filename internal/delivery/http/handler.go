package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shelfmatch/backend/internal/domain"
	"github.com/shelfmatch/backend/internal/usecase"
)

// JobStore is the handler's job persistence surface: the pipeline's store
// plus listing for the dashboard.
type JobStore interface {
	domain.JobStore
	ListJobs(ctx context.Context) ([]domain.Job, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	jobs     JobStore
	products domain.ProductStore
	matches  domain.MatchStore
	progress domain.ProgressStore

	pipeline    *usecase.Pipeline
	matcherDeps usecase.MatcherDeps
	log         *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(jobs JobStore, products domain.ProductStore, matches domain.MatchStore,
	progress domain.ProgressStore, pipeline *usecase.Pipeline, matcherDeps usecase.MatcherDeps,
	log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		jobs:        jobs,
		products:    products,
		matches:     matches,
		progress:    progress,
		pipeline:    pipeline,
		matcherDeps: matcherDeps,
		log:         log,
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "shelfmatch-backend",
		"version": "1.0.0",
	})
}

// productRequest is one catalog entry in a job creation request. Entries
// with a URL but no title are crawled before matching.
type productRequest struct {
	Title    string            `json:"title"`
	URL      string            `json:"url"`
	Brand    string            `json:"brand"`
	Category string            `json:"category"`
	Price    float64           `json:"price"`
	ImageURL string            `json:"imageUrl"`
	Metadata map[string]string `json:"metadata"`
}

// configRequest carries per-job overrides. Absent fields keep their
// defaults, so callers only send what they change.
type configRequest struct {
	SemanticWeight    *float64 `json:"semanticWeight"`
	TokenWeight       *float64 `json:"tokenWeight"`
	AttributeWeight   *float64 `json:"attributeWeight"`
	CandidateLimit    *int     `json:"candidateLimit"`
	NoMatchThreshold  *float64 `json:"noMatchThreshold"`
	ValidationEnabled *bool    `json:"validationEnabled"`
	ValidationMin     *float64 `json:"validationMin"`
	ValidationMax     *float64 `json:"validationMax"`
	ValidationCap     *int     `json:"validationCap"`
	EnhancedTokens    *bool    `json:"enhancedTokens"`
	BrandOntology     *bool    `json:"brandOntology"`
	CategoryOntology  *bool    `json:"categoryOntology"`
	VariantExtraction *bool    `json:"variantExtraction"`
	EmbedEnrichedText *bool    `json:"embedEnrichedText"`
	VisualSignal      *bool    `json:"visualSignal"`
	VisualCap         *int     `json:"visualCap"`
}

func (r *configRequest) apply(cfg domain.JobConfig) domain.JobConfig {
	if r == nil {
		return cfg
	}
	if r.SemanticWeight != nil {
		cfg.SemanticWeight = *r.SemanticWeight
	}
	if r.TokenWeight != nil {
		cfg.TokenWeight = *r.TokenWeight
	}
	if r.AttributeWeight != nil {
		cfg.AttributeWeight = *r.AttributeWeight
	}
	if r.CandidateLimit != nil {
		cfg.CandidateLimit = *r.CandidateLimit
	}
	if r.NoMatchThreshold != nil {
		cfg.NoMatchThreshold = *r.NoMatchThreshold
	}
	if r.ValidationEnabled != nil {
		cfg.ValidationEnabled = *r.ValidationEnabled
	}
	if r.ValidationMin != nil {
		cfg.ValidationMin = *r.ValidationMin
	}
	if r.ValidationMax != nil {
		cfg.ValidationMax = *r.ValidationMax
	}
	if r.ValidationCap != nil {
		cfg.ValidationCap = *r.ValidationCap
	}
	if r.EnhancedTokens != nil {
		cfg.EnhancedTokens = *r.EnhancedTokens
	}
	if r.BrandOntology != nil {
		cfg.BrandOntology = *r.BrandOntology
	}
	if r.CategoryOntology != nil {
		cfg.CategoryOntology = *r.CategoryOntology
	}
	if r.VariantExtraction != nil {
		cfg.VariantExtraction = *r.VariantExtraction
	}
	if r.EmbedEnrichedText != nil {
		cfg.EmbedEnrichedText = *r.EmbedEnrichedText
	}
	if r.VisualSignal != nil {
		cfg.VisualSignal = *r.VisualSignal
	}
	if r.VisualCap != nil {
		cfg.VisualCap = *r.VisualCap
	}
	return cfg
}

type createJobRequest struct {
	Name           string           `json:"name" binding:"required"`
	Config         *configRequest   `json:"config"`
	SourceProducts []productRequest `json:"sourceProducts" binding:"required"`
	TargetProducts []productRequest `json:"targetProducts" binding:"required"`
}

// CreateJob registers a job with its two catalogs. The job stays pending
// until explicitly run.
func (h *Handler) CreateJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.SourceProducts) == 0 || len(req.TargetProducts) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "both sourceProducts and targetProducts must be non-empty"})
		return
	}

	cfg, err := req.Config.apply(domain.DefaultJobConfig()).Normalize()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job := &domain.Job{
		ID:        uuid.New(),
		Name:      req.Name,
		Status:    domain.JobPending,
		Config:    cfg,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.jobs.CreateJob(c.Request.Context(), job); err != nil {
		h.log.Error("failed to create job", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create job"})
		return
	}

	products := make([]domain.Product, 0, len(req.SourceProducts)+len(req.TargetProducts))
	products = append(products, toProducts(job.ID, domain.SideSource, req.SourceProducts)...)
	products = append(products, toProducts(job.ID, domain.SideTarget, req.TargetProducts)...)
	if err := h.products.CreateProducts(c.Request.Context(), products); err != nil {
		h.log.Error("failed to store products", zap.String("job_id", job.ID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store products"})
		return
	}

	c.JSON(http.StatusCreated, job)
}

func toProducts(jobID uuid.UUID, side domain.Side, reqs []productRequest) []domain.Product {
	now := time.Now().UTC()
	out := make([]domain.Product, 0, len(reqs))
	for _, r := range reqs {
		status := domain.CrawlCompleted
		if r.Title == "" && r.URL != "" {
			status = domain.CrawlPending
		}
		out = append(out, domain.Product{
			ID:          uuid.New(),
			JobID:       jobID,
			Side:        side,
			Title:       r.Title,
			URL:         r.URL,
			Brand:       r.Brand,
			Category:    r.Category,
			Price:       r.Price,
			ImageURL:    r.ImageURL,
			CrawlStatus: status,
			Metadata:    r.Metadata,
			CreatedAt:   now,
		})
	}
	return out
}

// RunJob starts the pipeline for a pending or previously finished job. The
// run itself is asynchronous; clients poll progress.
func (h *Handler) RunJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	// Claiming the running status in the store is atomic, so concurrent run
	// requests for the same job start at most one pipeline.
	if err := h.jobs.ClaimJob(c.Request.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		case errors.Is(err, domain.ErrJobNotRunnable):
			c.JSON(http.StatusConflict, gin.H{"error": domain.ErrJobNotRunnable.Error()})
		default:
			h.log.Error("failed to claim job", zap.String("job_id", jobID.String()), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start job"})
		}
		return
	}

	go func() {
		// Detached from the request: the run outlives the HTTP exchange.
		if _, err := h.pipeline.Run(context.Background(), jobID); err != nil {
			h.log.Error("job run failed", zap.String("job_id", jobID.String()), zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID, "status": domain.JobRunning})
}

// GetJob returns one job with its stats.
func (h *Handler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	job, err := h.jobs.GetJob(c.Request.Context(), jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListJobs returns all jobs, newest first.
func (h *Handler) ListJobs(c *gin.Context) {
	jobs, err := h.jobs.ListJobs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// GetProgress returns the latest progress snapshot for a job.
func (h *Handler) GetProgress(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	progress, err := h.progress.GetProgress(c.Request.Context(), jobID)
	if errors.Is(err, domain.ErrProgressNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no progress recorded for job"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load progress"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobId":      progress.JobID,
		"stage":      progress.Stage,
		"current":    progress.Current,
		"total":      progress.Total,
		"percentage": progress.Percentage(),
		"rate":       progress.Rate,
		"etaSeconds": progress.ETASeconds,
		"message":    progress.Message,
		"updatedAt":  progress.UpdatedAt,
	})
}

// ListMatches returns a job's match results.
func (h *Handler) ListMatches(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	results, err := h.matches.MatchesByJob(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load matches"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": results, "count": len(results)})
}

type reviewRequest struct {
	Status domain.MatchStatus `json:"status" binding:"required"`
}

// ReviewMatch sets the manual review status of one match result.
func (h *Handler) ReviewMatch(c *gin.Context) {
	matchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match id"})
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Status {
	case domain.MatchApproved, domain.MatchRejected, domain.MatchPending:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be approved, rejected or pending"})
		return
	}

	err = h.matches.UpdateMatchStatus(c.Request.Context(), matchID, req.Status)
	if errors.Is(err, domain.ErrMatchNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update match"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matchId": matchID, "status": req.Status})
}

type quickMatchRequest struct {
	Source productRequest `json:"source" binding:"required"`
	Target productRequest `json:"target" binding:"required"`
	Config *configRequest `json:"config"`
}

// QuickMatch scores a single ad-hoc pair without creating a job.
func (h *Handler) QuickMatch(c *gin.Context) {
	var req quickMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Source.Title == "" || req.Target.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "both products need a title"})
		return
	}

	cfg, err := req.Config.apply(domain.DefaultJobConfig()).Normalize()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pairID := uuid.New()
	source := toProducts(pairID, domain.SideSource, []productRequest{req.Source})[0]
	target := toProducts(pairID, domain.SideTarget, []productRequest{req.Target})[0]

	matcher := usecase.NewMatcher(cfg, h.matcherDeps)
	result, err := matcher.MatchPair(c.Request.Context(), source, target)
	if err != nil {
		h.log.Error("quick match failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "matching failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}
