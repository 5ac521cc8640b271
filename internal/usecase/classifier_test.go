package usecase

import (
	"testing"

	"github.com/shelfmatch/backend/internal/domain"
)

func TestClassifyScore(t *testing.T) {
	cases := []struct {
		score float64
		want  domain.ConfidenceTier
	}{
		{1.00, domain.TierExactMatch},
		{0.95, domain.TierExactMatch},
		{0.9499, domain.TierHighConfidence},
		{0.90, domain.TierHighConfidence},
		{0.8999, domain.TierGoodMatch},
		{0.80, domain.TierGoodMatch},
		{0.7999, domain.TierLikelyMatch},
		{0.70, domain.TierLikelyMatch},
		{0.6999, domain.TierManualReview},
		{0.50, domain.TierManualReview},
		{0.4999, domain.TierNoMatch},
		{0.0, domain.TierNoMatch},
	}
	for _, tc := range cases {
		if got := ClassifyScore(tc.score); got != tc.want {
			t.Errorf("ClassifyScore(%v) = %q, want %q", tc.score, got, tc.want)
		}
	}
}

func TestClassifyScoreMonotonic(t *testing.T) {
	prev := ClassifyScore(0)
	for i := 1; i <= 1000; i++ {
		score := float64(i) / 1000
		tier := ClassifyScore(score)
		if tier.Rank() < prev.Rank() {
			t.Fatalf("tier rank decreased at score %v: %q after %q", score, tier, prev)
		}
		prev = tier
	}
}
