package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/shelfmatch/backend/internal/domain"
)

// Bounded adjustments applied on a definitive verdict, scaled by the
// service's confidence.
const (
	confirmedBoostCap  = 0.08
	rejectedPenaltyCap = 0.15
)

// ValidationOutcome is the result of one arbitration attempt. Applied is
// false when the call was skipped (ineligible, budget exhausted, service
// unavailable, or an uncertain verdict); the score is then unchanged.
type ValidationOutcome struct {
	Applied   bool
	Verdict   domain.Verdict
	Score     float64
	Reasoning string
}

// ValidationGate decides when a borderline score warrants arbitration by the
// external verdict service, applies the bounded score adjustment, and
// enforces the per-job call budget. One gate exists per job run.
type ValidationGate struct {
	cfg     domain.JobConfig
	client  domain.VerdictClient
	metrics *Metrics
	log     *zap.Logger

	calls int
}

// NewValidationGate builds the gate for one run.
func NewValidationGate(cfg domain.JobConfig, client domain.VerdictClient, metrics *Metrics, log *zap.Logger) *ValidationGate {
	return &ValidationGate{cfg: cfg, client: client, metrics: metrics, log: log}
}

// Calls returns how many arbitration calls this run has attempted.
func (g *ValidationGate) Calls() int {
	return g.calls
}

// eligible reports whether a score may be arbitrated right now. The budget
// check is strictly below the cap: the cap-th eligible attempt executes, the
// one after it does not.
func (g *ValidationGate) eligible(score float64) bool {
	if !g.cfg.ValidationEnabled || g.client == nil {
		return false
	}
	if score < g.cfg.ValidationMin || score > g.cfg.ValidationMax {
		return false
	}
	return g.calls < g.cfg.ValidationCap
}

// Validate arbitrates one borderline pair. Every attempted eligible call
// counts against the budget regardless of verdict. Call failures and
// uncertain verdicts leave the score untouched and are never fatal.
func (g *ValidationGate) Validate(ctx context.Context, source domain.Product, candidate domain.Candidate) ValidationOutcome {
	unchanged := ValidationOutcome{Verdict: domain.VerdictSkipped, Score: candidate.Score}

	if !g.eligible(candidate.Score) {
		return unchanged
	}

	g.calls++
	g.metrics.incValidationCall()

	resp, err := g.client.Validate(ctx, domain.VerdictRequest{
		SourceTitle:    source.Title,
		TargetTitle:    candidate.Title,
		SourceBrand:    source.Brand,
		TargetBrand:    candidate.Brand,
		SourceCategory: source.Category,
		TargetCategory: candidate.Category,
		SourcePrice:    source.Price,
	})
	if err != nil {
		g.log.Warn("arbitration call failed",
			zap.String("source_title", source.Title),
			zap.Error(err))
		g.metrics.recordVerdict(false, false)
		return unchanged
	}

	confidence := clamp01(resp.Confidence)

	switch resp.Verdict {
	case domain.VerdictConfirmed:
		g.metrics.recordVerdict(true, false)
		return ValidationOutcome{
			Applied:   true,
			Verdict:   domain.VerdictConfirmed,
			Score:     clamp01(candidate.Score + confirmedBoostCap*confidence),
			Reasoning: resp.Reasoning,
		}
	case domain.VerdictRejected:
		g.metrics.recordVerdict(false, true)
		return ValidationOutcome{
			Applied:   true,
			Verdict:   domain.VerdictRejected,
			Score:     clamp01(candidate.Score - rejectedPenaltyCap*confidence),
			Reasoning: resp.Reasoning,
		}
	default:
		g.metrics.recordVerdict(false, false)
		unchanged.Verdict = domain.VerdictUncertain
		unchanged.Reasoning = resp.Reasoning
		return unchanged
	}
}
