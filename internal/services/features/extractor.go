package features

import (
	"math"

	"FieldScan/internal/domain/models"
	"FieldScan/internal/services/stats"
)

// TrueRange computes per-bar true range. The first bar has no previous close and uses high-low.
func TrueRange(bars []models.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		tr := b.High - b.Low
		if i > 0 {
			pc := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(b.High-pc), math.Abs(b.Low-pc)))
		}
		out[i] = tr
	}
	return out
}

// ATR computes the rolling mean of true range over period bars, forward-filled
// and then zero-filled for warm-up bars.
func ATR(bars []models.PriceBar, period int) []float64 {
	raw := stats.RollingMean(TrueRange(bars), period)
	return stats.FillZero(stats.ForwardFill(raw))
}

// PriceGravity is (typical price - close) / close, 0 for a non-positive close.
func PriceGravity(b models.PriceBar) float64 {
	vwap := (b.High + b.Low + b.Close) / 3
	if b.Close <= 0 {
		return 0
	}
	return stats.SafeDiv(vwap-b.Close, b.Close, 0)
}

// DailyReturns computes simple returns r_t = P_t / P_{t-1} - 1 on the return basis.
// The first element and any step from a non-positive price are NaN.
func DailyReturns(bars []models.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		if i == 0 {
			out[i] = math.NaN()
			continue
		}
		prev := bars[i-1].ReturnBasis()
		if prev <= 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = bars[i].ReturnBasis()/prev - 1
	}
	return out
}

// TimeDilation is the rolling sample std of daily returns.
func TimeDilation(bars []models.PriceBar, window int) []float64 {
	return stats.RollingStd(DailyReturns(bars), window)
}

// Volumes extracts the volume column.
func Volumes(bars []models.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

// SelfZScore z-scores xs against its own rolling mean/std over window bars.
// Undefined values become 0.
func SelfZScore(xs []float64, window int) []float64 {
	return stats.ZScores(xs, stats.RollingMean(xs, window), stats.RollingStd(xs, window))
}
