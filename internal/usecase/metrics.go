package usecase

import "sync"

// Metrics are the per-run counters for one job. A fresh instance is created
// for every run and threaded through the matcher; concurrent jobs never see
// each other's counters.
type Metrics struct {
	mu sync.Mutex

	totalMatches        int
	validationCalls     int
	validationConfirmed int
	validationRejected  int
	validationSkipped   int
	scoreAdjustments    int
	ontologyHits        int
	imageComparisons    int
	itemErrors          int
}

// NewMetrics returns zeroed counters for one job run.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) incTotalMatches() {
	m.mu.Lock()
	m.totalMatches++
	m.mu.Unlock()
}

func (m *Metrics) incValidationCall() {
	m.mu.Lock()
	m.validationCalls++
	m.mu.Unlock()
}

func (m *Metrics) recordVerdict(confirmed, rejected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case confirmed:
		m.validationConfirmed++
		m.scoreAdjustments++
	case rejected:
		m.validationRejected++
		m.scoreAdjustments++
	default:
		m.validationSkipped++
	}
}

func (m *Metrics) incOntologyHit() {
	m.mu.Lock()
	m.ontologyHits++
	m.mu.Unlock()
}

// imageComparisonBudget increments the comparison counter if it is still
// below cap and reports whether the caller may proceed.
func (m *Metrics) imageComparisonBudget(cap int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.imageComparisons >= cap {
		return false
	}
	m.imageComparisons++
	return true
}

func (m *Metrics) incItemError() {
	m.mu.Lock()
	m.itemErrors++
	m.mu.Unlock()
}

// ItemErrors returns the count of source items whose match attempt failed.
func (m *Metrics) ItemErrors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.itemErrors
}

// Snapshot returns the counters as a map for persistence with job stats.
func (m *Metrics) Snapshot() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{
		"total_matches":        m.totalMatches,
		"validation_calls":     m.validationCalls,
		"validation_confirmed": m.validationConfirmed,
		"validation_rejected":  m.validationRejected,
		"validation_skipped":   m.validationSkipped,
		"score_adjustments":    m.scoreAdjustments,
		"ontology_hits":        m.ontologyHits,
		"image_comparisons":    m.imageComparisons,
		"item_errors":          m.itemErrors,
	}
}
