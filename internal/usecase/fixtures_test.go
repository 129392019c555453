package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"FieldScan/internal/domain/models"
	"FieldScan/internal/repository"
	"FieldScan/internal/services/resolver"
	"FieldScan/internal/testutil"
	"FieldScan/pkg/metrics"
)

func testConfig() PipelineConfig {
	return PipelineConfig{
		Percentile:    0.95,
		MassThreshold: -0.5,
		MinScoreFloor: 0,
		MaxHold:       5,
		TieBreak:      resolver.TPFirst,
		DedupeWindow:  20 * time.Hour,
		HistoryBuffer: DefaultHistoryBuffer,
	}
}

// triggeringSeries finds a synthetic series with a backtest emission after
// the first scored bar, so the series can be cut back to it and still be scanned.
func triggeringSeries(t *testing.T, ticker string) (models.TickerSeries, models.TickerResult) {
	t.Helper()
	p := NewTickerPipeline(testConfig(), nil, nil)
	for seed := int64(1); seed <= 60; seed++ {
		s := testutil.Series(ticker, 500, seed)
		res, err := p.Run(context.Background(), &s, models.ModeBacktest)
		require.NoError(t, err)
		for _, sig := range emitted(res) {
			if barIndex(s.Bars, sig.GenerationDate) >= DefaultHistoryBuffer {
				return s, res
			}
		}
	}
	t.Fatal("no synthetic series triggered")
	return models.TickerSeries{}, models.TickerResult{}
}

// emitted flattens a result into the signals it emitted, trades included.
func emitted(res models.TickerResult) []models.Signal {
	out := append([]models.Signal(nil), res.Signals...)
	for _, tr := range res.Trades {
		out = append(out, tr.Signal)
	}
	return out
}

// laterSignal returns the first emission generated after the first scored bar.
func laterSignal(t *testing.T, s models.TickerSeries, res models.TickerResult) (models.Signal, int) {
	t.Helper()
	for _, sig := range emitted(res) {
		if gen := barIndex(s.Bars, sig.GenerationDate); gen >= DefaultHistoryBuffer {
			return sig, gen
		}
	}
	t.Fatal("no emission after the first scored bar")
	return models.Signal{}, -1
}

func barIndex(bars []models.PriceBar, day time.Time) int {
	for i, b := range bars {
		if b.Date.Equal(day) {
			return i
		}
	}
	return -1
}

type fakeData struct {
	mu      sync.Mutex
	series  map[string]models.TickerSeries
	errs    map[string]error
	missing map[string]bool
	calls   map[string]int
	release chan struct{}
}

func newFakeData() *fakeData {
	return &fakeData{
		series:  make(map[string]models.TickerSeries),
		errs:    make(map[string]error),
		missing: make(map[string]bool),
		calls:   make(map[string]int),
	}
}

func (f *fakeData) Series(ctx context.Context, ticker string) (*models.TickerSeries, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[ticker]++
	if err := f.errs[ticker]; err != nil {
		return nil, err
	}
	if f.missing[ticker] {
		return nil, nil
	}
	s, ok := f.series[ticker]
	if !ok {
		return nil, errors.New("unknown ticker")
	}
	return &s, nil
}

func (f *fakeData) Tickers(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.series))
	for k := range f.series {
		out = append(out, k)
	}
	return out, nil
}

func newTestOrchestrator(data *fakeData, store *repository.MemorySignalStore, p *TickerPipeline, workers int) *ScanOrchestrator {
	proc := NewResultProcessor(store, nil, nil, metrics.Nop{}, nil)
	return NewScanOrchestrator(data, data, p, proc, NewScanStatus(0), metrics.Nop{}, nil, nil,
		OrchestratorConfig{Workers: workers, LiveConcurrency: 2})
}
