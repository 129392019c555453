package analytics

import (
	"FieldScan/internal/domain/models"
	"FieldScan/internal/services/stats"
)

const DefaultWindow = 100

// Normalizer z-scores J, nabla_sq and m_sq against their rolling window.
type Normalizer struct {
	window int
}

// NewNormalizer uses DefaultWindow when window is below 2.
func NewNormalizer(window int) *Normalizer {
	if window < 2 {
		window = DefaultWindow
	}
	return &Normalizer{window: window}
}

// Window is the z-score length, shared with the ThresholdEngine.
func (n *Normalizer) Window() int { return n.window }

// Normalize returns one score per metrics row with AQMScore filled in.
// PercentileThreshold is left for the ThresholdEngine.
func (n *Normalizer) Normalize(metrics []models.DerivedMetrics) []models.NormalizedScore {
	j := make([]float64, len(metrics))
	nabla := make([]float64, len(metrics))
	mass := make([]float64, len(metrics))
	for i, m := range metrics {
		j[i] = m.J
		nabla[i] = m.NablaSq()
		mass[i] = m.MSq
	}

	jn := n.zscores(j)
	nn := n.zscores(nabla)
	mn := n.zscores(mass)

	out := make([]models.NormalizedScore, len(metrics))
	for i := range out {
		out[i] = models.NormalizedScore{
			JNorm:     jn[i],
			NablaNorm: nn[i],
			MNorm:     mn[i],
			AQMScore:  AQMScore(jn[i], nn[i], mn[i]),
		}
	}
	return out
}

func (n *Normalizer) zscores(xs []float64) []float64 {
	return stats.ZScores(xs, stats.RollingMean(xs, n.window), stats.RollingStd(xs, n.window))
}

// AQMScore rewards field activity and penalizes gravity and mass.
func AQMScore(jNorm, nablaNorm, mNorm float64) float64 {
	return jNorm - nablaNorm - mNorm
}
