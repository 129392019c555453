package features

import (
	"math"

	"FieldScan/internal/domain/models"
	"FieldScan/internal/services/stats"
)

// Config holds the feature windows. Zero values are replaced by DefaultConfig.
type Config struct {
	ATRPeriod           int
	VolatilityWindow    int
	EntropyWindow       int
	VolumeAvgWindow     int
	ZScoreWindow        int
	InsiderLookbackDays int
	HerdingLookbackDays int
}

// DefaultConfig returns the production windows: ATR 14, volatility 20,
// entropy 10, volume average 10 and a 200-bar z-score.
func DefaultConfig() Config {
	return Config{
		ATRPeriod:           14,
		VolatilityWindow:    20,
		EntropyWindow:       10,
		VolumeAvgWindow:     10,
		ZScoreWindow:        200,
		InsiderLookbackDays: 30,
		HerdingLookbackDays: 5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ATRPeriod <= 0 {
		c.ATRPeriod = d.ATRPeriod
	}
	if c.VolatilityWindow <= 1 {
		c.VolatilityWindow = d.VolatilityWindow
	}
	if c.EntropyWindow <= 0 {
		c.EntropyWindow = d.EntropyWindow
	}
	if c.VolumeAvgWindow <= 0 {
		c.VolumeAvgWindow = d.VolumeAvgWindow
	}
	if c.ZScoreWindow <= 1 {
		c.ZScoreWindow = d.ZScoreWindow
	}
	if c.InsiderLookbackDays <= 0 {
		c.InsiderLookbackDays = d.InsiderLookbackDays
	}
	if c.HerdingLookbackDays <= 0 {
		c.HerdingLookbackDays = d.HerdingLookbackDays
	}
	return c
}

// Builder derives DerivedMetrics for every bar of a series.
type Builder struct {
	cfg Config
}

// NewBuilder fills unset windows in cfg from DefaultConfig.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg.withDefaults()}
}

// Build returns one DerivedMetrics per bar. Each row depends only on bars and
// events up to and including that bar's date.
func (b *Builder) Build(series models.TickerSeries) []models.DerivedMetrics {
	bars := AlignAdjusted(series.Bars, series.Adjusted)
	n := len(bars)
	out := make([]models.DerivedMetrics, n)
	if n == 0 {
		return out
	}

	atr := ATR(bars, b.cfg.ATRPeriod)
	dilation := TimeDilation(bars, b.cfg.VolatilityWindow)
	sync := EventDensity(bars, series.Insider, b.cfg.InsiderLookbackDays)
	herding := EventDensity(bars, series.News, b.cfg.HerdingLookbackDays)
	entropy := stats.RollingSum(DailyCounts(bars, series.News), b.cfg.EntropyWindow)

	volAvg := stats.RollingMean(Volumes(bars), b.cfg.VolumeAvgWindow)
	normVolume := SelfZScore(volAvg, b.cfg.ZScoreWindow)
	normNews := SelfZScore(entropy, b.cfg.ZScoreWindow)

	for i := range bars {
		out[i] = models.DerivedMetrics{
			ATR14:              atr[i],
			PriceGravity:       PriceGravity(bars[i]),
			TimeDilation:       dilation[i],
			InstitutionalSync:  sync[i],
			RetailHerding:      herding[i],
			InformationEntropy: entropy[i],
			NormalizedVolume:   normVolume[i],
			NormalizedNews:     normNews[i],
			MSq:                normVolume[i] + normNews[i],
			J:                  FieldJ(entropy[i], herding[i], dilation[i], sync[i]),
		}
	}
	return out
}

// FieldJ computes entropy - herding/dilation + sync. With zero or undefined
// dilation the division term is dropped.
func FieldJ(entropy, herding, dilation, sync float64) float64 {
	term := stats.SafeDiv(herding, dilation, math.NaN())
	if math.IsNaN(term) {
		return entropy + sync
	}
	return entropy - term + sync
}

// AlignAdjusted copies adjusted closes onto bars by calendar day. Bars without
// a matching adjusted row keep their own AdjClose.
func AlignAdjusted(bars, adjusted []models.PriceBar) []models.PriceBar {
	if len(adjusted) == 0 {
		return bars
	}
	byDay := make(map[int64]float64, len(adjusted))
	for _, a := range adjusted {
		v := a.AdjClose
		if v <= 0 {
			v = a.Close
		}
		byDay[models.Day(a.Date).Unix()] = v
	}
	out := make([]models.PriceBar, len(bars))
	copy(out, bars)
	for i := range out {
		if v, ok := byDay[models.Day(out[i].Date).Unix()]; ok && v > 0 {
			out[i].AdjClose = v
		}
	}
	return out
}
