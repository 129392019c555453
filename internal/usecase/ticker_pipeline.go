package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"FieldScan/internal/domain/models"
	"FieldScan/internal/services/analytics"
	"FieldScan/internal/services/features"
	"FieldScan/internal/services/resolver"
	"FieldScan/internal/services/signal"
)

var (
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrMalformedSeries     = errors.New("malformed series")
)

// DefaultHistoryBuffer is the number of bars that must exist up to and
// including a bar before its score is valid. Index 200 is the first scored
// bar, and a ticker needs one bar beyond the buffer to be scanned at all.
const DefaultHistoryBuffer = 201

type PipelineConfig struct {
	Features      features.Config
	NormWindow    int
	Percentile    float64
	MassThreshold float64
	MinScoreFloor float64
	Signal        signal.Config
	MaxHold       int
	TieBreak      resolver.TieBreak
	DedupeWindow  time.Duration
	HistoryBuffer int
}

// TickerPipeline runs feature building, normalization, thresholding, signal
// emission and (in backtest) trade resolution for one ticker. It keeps no
// per-ticker state, so one instance serves every worker.
type TickerPipeline struct {
	builder   *features.Builder
	norm      *analytics.Normalizer
	threshold *analytics.ThresholdEngine
	emitters  map[models.ScanMode]*signal.Emitter
	resolver  *resolver.Resolver
	deduper   *signal.Deduper
	buffer    int
}

// NewTickerPipeline wires the engine. finder backs live duplicate suppression
// and may be nil to disable it.
func NewTickerPipeline(cfg PipelineConfig, finder signal.OpenSignalFinder, now func() time.Time) *TickerPipeline {
	if now == nil {
		now = time.Now
	}
	if cfg.HistoryBuffer <= 0 {
		cfg.HistoryBuffer = DefaultHistoryBuffer
	}
	norm := analytics.NewNormalizer(cfg.NormWindow)
	p := &TickerPipeline{
		builder:   features.NewBuilder(cfg.Features),
		norm:      norm,
		threshold: analytics.NewThresholdEngine(cfg.Percentile, cfg.MassThreshold, cfg.MinScoreFloor, norm.Window()),
		emitters: map[models.ScanMode]*signal.Emitter{
			models.ModeBacktest: signal.NewEmitter(cfg.Signal, signal.NextOpen{}, signal.WithClock(now)),
			models.ModeLive:     signal.NewEmitter(cfg.Signal, signal.LatestClose{}, signal.WithClock(now)),
		},
		resolver: resolver.New(cfg.MaxHold, cfg.TieBreak),
		buffer:   cfg.HistoryBuffer,
	}
	if finder != nil {
		p.deduper = signal.NewDeduper(finder, cfg.DedupeWindow, now)
	}
	return p
}

// MinBars is the shortest series the pipeline accepts. Shorter ones are skipped.
func (p *TickerPipeline) MinBars() int { return p.buffer + 1 }

// Resolver returns the trade resolver shared with the signal reviewer.
func (p *TickerPipeline) Resolver() *resolver.Resolver { return p.resolver }

// Run evaluates series in the given mode. Backtest signals that close inside
// the series come back as Trades; the rest stay in Signals.
func (p *TickerPipeline) Run(ctx context.Context, series *models.TickerSeries, mode models.ScanMode) (models.TickerResult, error) {
	if series == nil {
		return models.TickerResult{}, fmt.Errorf("%w: nil series", ErrMalformedSeries)
	}
	result := models.TickerResult{Ticker: series.Ticker}

	emitter, ok := p.emitters[mode]
	if !ok {
		return result, fmt.Errorf("unknown scan mode %q", mode)
	}
	if err := ValidateSeries(series.Bars); err != nil {
		return result, err
	}
	n := len(series.Bars)
	if n < p.MinBars() {
		return result, fmt.Errorf("%w: %d bars, need %d", ErrInsufficientHistory, n, p.MinBars())
	}

	metrics := p.builder.Build(*series)
	scores := p.norm.Normalize(metrics)
	p.threshold.Apply(scores)

	bars := features.AlignAdjusted(series.Bars, series.Adjusted)
	from, to := emitter.Policy().Range(n, p.buffer)
	for i := from; i < to; i++ {
		result.Evaluated++
		if !p.threshold.Triggered(scores[i]) {
			continue
		}
		if mode == models.ModeLive {
			allowed, err := p.deduper.Allow(ctx, series.Ticker)
			if err != nil {
				return result, err
			}
			if !allowed {
				continue
			}
		}

		sig, entryIdx, ok := emitter.Emit(series.Ticker, bars, i, metrics[i], scores[i])
		if !ok {
			continue
		}
		if mode == models.ModeLive {
			result.Signals = append(result.Signals, sig)
			continue
		}
		if trade, _, closed := p.resolver.Resolve(sig, bars, entryIdx); closed {
			result.Trades = append(result.Trades, trade)
		} else {
			result.Signals = append(result.Signals, sig)
		}
	}
	return result, nil
}

// ValidateSeries rejects series the engine cannot evaluate: empty, unsorted
// or duplicate dates, non-finite or non-positive prices, high below low.
func ValidateSeries(bars []models.PriceBar) error {
	if len(bars) == 0 {
		return fmt.Errorf("%w: empty series", ErrMalformedSeries)
	}
	for i, b := range bars {
		day := b.Date.Format("2006-01-02")
		if i > 0 && !models.Day(b.Date).After(models.Day(bars[i-1].Date)) {
			return fmt.Errorf("%w: unsorted or duplicate date %s", ErrMalformedSeries, day)
		}
		for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close} {
			if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
				return fmt.Errorf("%w: invalid price on %s", ErrMalformedSeries, day)
			}
		}
		if math.IsNaN(b.Volume) || math.IsInf(b.Volume, 0) || b.Volume < 0 {
			return fmt.Errorf("%w: invalid volume on %s", ErrMalformedSeries, day)
		}
		if b.High < b.Low {
			return fmt.Errorf("%w: high below low on %s", ErrMalformedSeries, day)
		}
	}
	return nil
}
