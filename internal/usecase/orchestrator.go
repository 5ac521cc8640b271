package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shelfmatch/backend/internal/domain"
)

// topCandidateCount is how many ranked candidates a MatchResult keeps.
const topCandidateCount = 5

// MatchProduct drives one source item through search, scoring, thresholding,
// optional arbitration, and classification, and returns the immutable result.
func (m *Matcher) MatchProduct(ctx context.Context, source domain.Product) (*domain.MatchResult, error) {
	m.metrics.incTotalMatches()

	vector, err := m.embedder.Encode(ctx, m.EmbedText(source))
	if err != nil {
		return nil, fmt.Errorf("encode source %s: %w", source.ID, err)
	}

	rows := m.searchCandidates(ctx, vector, source)
	if len(rows) == 0 {
		return m.noMatchResult(source, "No products found in catalog", "empty catalog"), nil
	}

	// Score every returned candidate, carrying the target product alongside
	// so arbitration and explanations can see its attributes.
	type scored struct {
		candidate domain.Candidate
		target    domain.Product
	}
	candidates := make([]scored, 0, len(rows))
	for _, row := range rows {
		visualSim := m.visualSimilarity(ctx, source, row.Product)
		candidates = append(candidates, scored{
			candidate: domain.Candidate{
				ProductID: row.Product.ID,
				Title:     row.Product.Title,
				URL:       row.Product.URL,
				Brand:     row.Product.Brand,
				Category:  row.Product.Category,
				ImageURL:  row.Product.ImageURL,
				Score:     m.scoreCandidate(source, row.Product, row.Similarity, visualSim),
			},
			target: row.Product,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].candidate.Score > candidates[j].candidate.Score
	})

	best := &candidates[0].candidate

	// Below the no-match threshold the whole attempt is structurally a
	// no-match: candidates are discarded, not merely tiered.
	if best.Score < m.cfg.NoMatchThreshold {
		explanation := fmt.Sprintf("Best match scored %s, below %s threshold",
			formatPercent(best.Score), formatPercent(m.cfg.NoMatchThreshold))
		reason := fmt.Sprintf("Best candidate: %s (%s)", best.Title, formatPercent(best.Score))
		return m.noMatchResult(source, explanation, reason), nil
	}

	validated := false
	var verdict domain.Verdict
	var originalScore *float64

	outcome := m.gate.Validate(ctx, source, *best)
	if outcome.Applied {
		prior := best.Score
		validated = true
		verdict = outcome.Verdict
		originalScore = &prior

		adjusted := outcome.Score
		best.Validated = true
		best.AdjustedScore = &adjusted
		best.Reasoning = outcome.Reasoning
		best.Score = adjusted

		// The adjustment can demote the previous leader; re-rank and
		// re-select before classifying.
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].candidate.Score > candidates[j].candidate.Score
		})
		best = &candidates[0].candidate

		// A rejection can push the whole field below the no-match
		// threshold when the validation window reaches that low. The
		// threshold is structural wherever the final score lands.
		if best.Score < m.cfg.NoMatchThreshold {
			explanation := fmt.Sprintf("Best match scored %s after arbitration, below %s threshold",
				formatPercent(best.Score), formatPercent(m.cfg.NoMatchThreshold))
			reason := fmt.Sprintf("Best candidate: %s (%s)", best.Title, formatPercent(best.Score))
			return m.noMatchResult(source, explanation, reason), nil
		}
	}

	top := make([]domain.Candidate, 0, topCandidateCount)
	for i := 0; i < len(candidates) && i < topCandidateCount; i++ {
		top = append(top, candidates[i].candidate)
	}

	tier := ClassifyScore(best.Score)
	explanation := m.buildExplanation(source, *best, tier)

	bestCopy := *best
	return &domain.MatchResult{
		ID:              uuid.New(),
		JobID:           source.JobID,
		SourceProductID: source.ID,
		Best:            &bestCopy,
		TopCandidates:   top,
		Tier:            tier,
		Explanation:     explanation,
		IsNoMatch:       false,
		Validated:       validated,
		Verdict:         string(verdict),
		OriginalScore:   originalScore,
		Status:          autoStatus(tier, false),
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// MatchPair scores two ad-hoc products against each other without a job or
// a similarity index, for one-shot comparisons.
func (m *Matcher) MatchPair(ctx context.Context, source, target domain.Product) (*domain.MatchResult, error) {
	srcVec, err := m.embedder.Encode(ctx, m.EmbedText(source))
	if err != nil {
		return nil, fmt.Errorf("encode source: %w", err)
	}
	tgtVec, err := m.embedder.Encode(ctx, m.EmbedText(target))
	if err != nil {
		return nil, fmt.Errorf("encode target: %w", err)
	}

	semantic := cosineSimilarity(srcVec, tgtVec)
	score := m.scoreCandidate(source, target, semantic, nil)
	tier := ClassifyScore(score)

	candidate := domain.Candidate{
		ProductID: target.ID,
		Title:     target.Title,
		URL:       target.URL,
		Brand:     target.Brand,
		Category:  target.Category,
		Score:     score,
	}

	if score < m.cfg.NoMatchThreshold {
		explanation := fmt.Sprintf("Scored %s, below %s threshold",
			formatPercent(score), formatPercent(m.cfg.NoMatchThreshold))
		return m.noMatchResult(source, explanation, fmt.Sprintf("Candidate: %s (%s)", target.Title, formatPercent(score))), nil
	}

	return &domain.MatchResult{
		ID:              uuid.New(),
		JobID:           source.JobID,
		SourceProductID: source.ID,
		Best:            &candidate,
		TopCandidates:   []domain.Candidate{candidate},
		Tier:            tier,
		Explanation:     m.buildExplanation(source, candidate, tier),
		Status:          autoStatus(tier, false),
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// noMatchResult builds the terminal no-match result: no best candidate, an
// empty top list, and an auto-rejected review status.
func (m *Matcher) noMatchResult(source domain.Product, explanation, reason string) *domain.MatchResult {
	return &domain.MatchResult{
		ID:              uuid.New(),
		JobID:           source.JobID,
		SourceProductID: source.ID,
		Best:            nil,
		TopCandidates:   nil,
		Tier:            domain.TierNoMatch,
		Explanation:     explanation,
		IsNoMatch:       true,
		NoMatchReason:   reason,
		Status:          autoStatus(domain.TierNoMatch, true),
		CreatedAt:       time.Now().UTC(),
	}
}

// buildExplanation assembles the human-readable summary: brand mismatch if
// any, the raw score (omitted for exact and high-confidence matches), and
// arbitration reasoning when arbitration ran.
func (m *Matcher) buildExplanation(source domain.Product, best domain.Candidate, tier domain.ConfidenceTier) string {
	var reasons []string

	srcBrand := strings.TrimSpace(source.Brand)
	if srcBrand != "" && best.Brand != "" && !strings.EqualFold(srcBrand, best.Brand) {
		reasons = append(reasons, fmt.Sprintf("Brand: %s -> %s", srcBrand, best.Brand))
	}

	if tier != domain.TierExactMatch && tier != domain.TierHighConfidence {
		reasons = append(reasons, fmt.Sprintf("Score: %s", formatPercent(best.Score)))
	}

	explanation := strings.Join(reasons, "; ")
	if explanation == "" && tier != domain.TierExactMatch {
		explanation = "Minor variations detected"
	}

	if best.Validated && best.Reasoning != "" {
		if explanation == "" {
			explanation = "Arbitration: " + best.Reasoning
		} else {
			explanation += "; Arbitration: " + best.Reasoning
		}
	}
	return explanation
}

// autoStatus derives the initial review status from the tier: exact and
// high-confidence matches are auto-approved, no-matches auto-rejected,
// everything else awaits review.
func autoStatus(tier domain.ConfidenceTier, noMatch bool) domain.MatchStatus {
	if noMatch || tier == domain.TierNoMatch {
		return domain.MatchRejected
	}
	if tier == domain.TierExactMatch || tier == domain.TierHighConfidence {
		return domain.MatchApproved
	}
	return domain.MatchPending
}

// cosineSimilarity of two vectors; inputs are L2-normalized so the dot
// product suffices, but the norm is computed anyway to tolerate unnormalized
// test vectors.
func cosineSimilarity(a, b []float32) float64 {
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
