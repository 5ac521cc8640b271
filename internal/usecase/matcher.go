package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/shelfmatch/backend/internal/domain"
)

// Matcher is the per-job matching context: one immutable config, one set of
// run-scoped metrics, and the collaborators needed to score candidates. A
// fresh Matcher is constructed for each job run; there is no process-wide
// instance to reset.
type Matcher struct {
	cfg      domain.JobConfig
	ontology *Ontology
	metrics  *Metrics
	gate     *ValidationGate

	index    domain.CandidateIndex
	embedder domain.EmbeddingClient
	visual   domain.VisualComparer

	log *zap.Logger
}

// MatcherDeps are the collaborators a Matcher needs. Verdict and Visual may
// be nil; the corresponding signals are then absent.
type MatcherDeps struct {
	Index    domain.CandidateIndex
	Embedder domain.EmbeddingClient
	Verdict  domain.VerdictClient
	Visual   domain.VisualComparer
	Logger   *zap.Logger
}

// NewMatcher builds a matching context for one job run. The config must
// already be normalized.
func NewMatcher(cfg domain.JobConfig, deps MatcherDeps) *Matcher {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	metrics := NewMetrics()
	return &Matcher{
		cfg:      cfg,
		ontology: NewOntology(),
		metrics:  metrics,
		gate:     NewValidationGate(cfg, deps.Verdict, metrics, log),
		index:    deps.Index,
		embedder: deps.Embedder,
		visual:   deps.Visual,
		log:      log,
	}
}

// Metrics exposes the run-scoped counters, e.g. for persistence with job
// stats at completion.
func (m *Matcher) Metrics() *Metrics {
	return m.metrics
}

// EmbedText returns the text a product is embedded under: the bare title, or
// title enriched with brand and category when the toggle is on.
func (m *Matcher) EmbedText(p domain.Product) string {
	if !m.cfg.EmbedEnrichedText {
		return p.Title
	}
	parts := []string{p.Title}
	if p.Brand != "" {
		parts = append(parts, p.Brand)
	}
	if p.Category != "" {
		parts = append(parts, p.Category)
	}
	return strings.Join(parts, " | ")
}

// searchCandidates fetches the ranked candidate set for one source
// embedding. Any lookup failure degrades to an empty result; the caller
// treats that as an empty catalog for this item.
func (m *Matcher) searchCandidates(ctx context.Context, vector []float32, source domain.Product) []domain.CandidateRow {
	rows, err := m.index.SearchSimilar(ctx, vector, source.JobID, domain.SideTarget, m.cfg.CandidateLimit)
	if err != nil {
		m.log.Warn("candidate search failed",
			zap.String("job_id", source.JobID.String()),
			zap.String("product_id", source.ID.String()),
			zap.Error(err))
		return nil
	}
	return rows
}

// visualSimilarity fetches the visual signal for one candidate pair, bounded
// by the per-job comparison cap. Returns nil when the signal is absent.
func (m *Matcher) visualSimilarity(ctx context.Context, source domain.Product, target domain.Product) *float64 {
	if !m.cfg.VisualSignal || m.visual == nil {
		return nil
	}
	if source.ImageURL == "" || target.ImageURL == "" {
		return nil
	}
	if !m.metrics.imageComparisonBudget(m.cfg.VisualCap) {
		return nil
	}
	sim, ok := m.visual.Compare(ctx, source.ImageURL, target.ImageURL)
	if !ok {
		return nil
	}
	return &sim
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func formatPercent(score float64) string {
	return fmt.Sprintf("%.0f%%", score*100)
}
