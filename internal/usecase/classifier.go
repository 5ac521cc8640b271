package usecase

import "github.com/shelfmatch/backend/internal/domain"

// Tier boundaries, highest first. Non-overlapping: every score in [0,1] maps
// to exactly one tier.
const (
	exactThreshold  = 0.95
	highThreshold   = 0.90
	goodThreshold   = 0.80
	likelyThreshold = 0.70
	reviewThreshold = 0.50
)

// ClassifyScore maps a final score to its confidence tier. It sees nothing
// but the score; the decision to discard sub-threshold candidates entirely
// is made by the orchestrator.
func ClassifyScore(score float64) domain.ConfidenceTier {
	switch {
	case score >= exactThreshold:
		return domain.TierExactMatch
	case score >= highThreshold:
		return domain.TierHighConfidence
	case score >= goodThreshold:
		return domain.TierGoodMatch
	case score >= likelyThreshold:
		return domain.TierLikelyMatch
	case score >= reviewThreshold:
		return domain.TierManualReview
	default:
		return domain.TierNoMatch
	}
}
