package usecase

import (
	"strings"

	"github.com/shelfmatch/backend/internal/domain"
)

// brandMismatchPenalty is subtracted from the combined score when the brand
// ontology is enabled and both sides resolve to different canonical brands.
const brandMismatchPenalty = 0.05

// scoreCandidate combines semantic similarity, token overlap, attribute
// match and the optional visual signal into one score in [0,1].
//
// Standard:    (0.60 x semantic) + (0.25 x token) + (0.15 x attributes)
// With visual: (0.50 x semantic) + (0.20 x token) + (0.15 x attr) + (0.15 x visual)
func (m *Matcher) scoreCandidate(source domain.Product, target domain.Product, semanticSim float64, visualSim *float64) float64 {
	wSem, wTok, wAttr, wVis := m.cfg.Weights(visualSim != nil)

	tokenSim := jaccard(
		tokenize(source.Title, m.cfg.EnhancedTokens),
		tokenize(target.Title, m.cfg.EnhancedTokens),
	)

	score := semanticSim*wSem + tokenSim*wTok + m.attributeScore(source, target)*wAttr
	if visualSim != nil {
		score += *visualSim * wVis
	}

	if m.cfg.BrandOntology {
		srcBrand := m.canonicalBrand(source.Brand)
		tgtBrand := m.canonicalBrand(target.Brand)
		if srcBrand != "" && tgtBrand != "" && srcBrand != tgtBrand {
			score -= brandMismatchPenalty
		}
	}

	return clamp01(score)
}

// attributeScore averages the applicable attribute checks: brand, category
// and, when enabled, variant comparison. Checks where neither side has data
// do not count.
func (m *Matcher) attributeScore(source, target domain.Product) float64 {
	var total float64
	checks := 0

	srcBrand := m.canonicalBrand(source.Brand)
	tgtBrand := m.canonicalBrand(target.Brand)
	if srcBrand != "" && tgtBrand != "" {
		checks++
		switch {
		case srcBrand == tgtBrand:
			total += 1.0
		case strings.Contains(srcBrand, tgtBrand) || strings.Contains(tgtBrand, srcBrand):
			total += 0.5
		}
	}

	srcCat := strings.ToLower(strings.TrimSpace(source.Category))
	tgtCat := strings.ToLower(strings.TrimSpace(target.Category))
	if srcCat != "" && tgtCat != "" {
		checks++
		switch {
		case srcCat == tgtCat:
			total += 1.0
		case m.cfg.CategoryOntology && m.ontology.RelatedCategories(srcCat, tgtCat):
			total += 0.5
		}
	}

	if m.cfg.VariantExtraction {
		if score, ok := CompareVariants(ExtractVariants(source.Title), ExtractVariants(target.Title)); ok {
			checks++
			total += score
		}
	}

	if checks == 0 {
		return 0
	}
	return total / float64(checks)
}

// canonicalBrand lowercases and, when the brand ontology is enabled,
// resolves aliases to their canonical key.
func (m *Matcher) canonicalBrand(brand string) string {
	if !m.cfg.BrandOntology {
		return strings.ToLower(strings.TrimSpace(brand))
	}
	if m.ontology.KnownAlias(brand) {
		m.metrics.incOntologyHit()
	}
	return m.ontology.CanonicalBrand(brand)
}
