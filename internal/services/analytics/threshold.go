package analytics

import (
	"FieldScan/internal/domain/models"
	"FieldScan/internal/services/stats"
)

const (
	DefaultPercentile    = 0.95
	DefaultMassThreshold = -0.5
	DefaultScoreFloor    = 0.0
)

// ThresholdEngine decides whether a normalized bar qualifies for entry.
type ThresholdEngine struct {
	percentile    float64
	massThreshold float64
	floor         float64
	window        int
}

// NewThresholdEngine accepts percentile in (0, 1]. At 1 the threshold is the
// window maximum, which includes the current bar, so nothing triggers.
func NewThresholdEngine(percentile, massThreshold, floor float64, window int) *ThresholdEngine {
	if !(percentile > 0 && percentile <= 1) {
		percentile = DefaultPercentile
	}
	if !stats.Finite(massThreshold) {
		massThreshold = DefaultMassThreshold
	}
	if !stats.Finite(floor) {
		floor = DefaultScoreFloor
	}
	if window < 2 {
		window = DefaultWindow
	}
	return &ThresholdEngine{percentile: percentile, massThreshold: massThreshold, floor: floor, window: window}
}

// Apply fills PercentileThreshold with the rolling quantile of aqm_score.
// The window includes the current bar.
func (t *ThresholdEngine) Apply(scores []models.NormalizedScore) {
	aqm := make([]float64, len(scores))
	for i, s := range scores {
		aqm[i] = s.AQMScore
	}
	q := stats.RollingQuantile(aqm, t.window, t.percentile)
	for i := range scores {
		scores[i].PercentileThreshold = q[i]
	}
}

// Triggered reports whether all entry conditions hold. An undefined threshold never triggers.
func (t *ThresholdEngine) Triggered(s models.NormalizedScore) bool {
	if !stats.Finite(s.PercentileThreshold) {
		return false
	}
	return s.AQMScore > s.PercentileThreshold &&
		s.MNorm < t.massThreshold &&
		s.AQMScore > t.floor
}
