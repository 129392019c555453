package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FieldScan/internal/domain/models"
	"FieldScan/internal/repository"
	"FieldScan/internal/services/resolver"
	"FieldScan/internal/testutil"
	"FieldScan/pkg/metrics"
)

func liveSignal(id, ticker string, bars []models.PriceBar, entry int) models.Signal {
	return models.Signal{
		ID:             id,
		Ticker:         ticker,
		Setup:          "FIELD_AQM",
		Mode:           models.ModeLive,
		EntryPrice:     100,
		StopLoss:       95,
		TakeProfit:     110,
		GenerationDate: bars[entry].Date,
		EntryDate:      bars[entry].Date,
		CreatedAt:      bars[entry].Date,
		Status:         models.StatusPending,
	}
}

func newTestReviewer(store *repository.MemorySignalStore, data *fakeData) *SignalReviewer {
	proc := NewResultProcessor(store, nil, nil, metrics.Nop{}, nil)
	return NewSignalReviewer(store, data, resolver.New(5, resolver.TPFirst), proc, metrics.Nop{}, nil)
}

func TestReview_ClosesActivatesAndWaits(t *testing.T) {
	ctx := context.Background()
	bars := testutil.Flat(20, 100)
	bars[12].High = 111

	data := newFakeData()
	data.series["TPX"] = models.TickerSeries{Ticker: "TPX", Bars: bars}
	data.series["HOLD"] = models.TickerSeries{Ticker: "HOLD", Bars: testutil.Flat(20, 100)}
	data.series["LAG"] = models.TickerSeries{Ticker: "LAG", Bars: testutil.Flat(10, 100)}
	later := testutil.Flat(12, 100)

	store := repository.NewMemorySignalStore()
	require.NoError(t, store.SaveTickerResults(ctx, models.TickerResult{Ticker: "TPX",
		Signals: []models.Signal{liveSignal("tp", "TPX", bars, 10)}}))
	require.NoError(t, store.SaveTickerResults(ctx, models.TickerResult{Ticker: "HOLD",
		Signals: []models.Signal{liveSignal("hold", "HOLD", bars, 18)}}))
	require.NoError(t, store.SaveTickerResults(ctx, models.TickerResult{Ticker: "LAG",
		Signals: []models.Signal{liveSignal("lag", "LAG", later, 11)}}))

	sum, err := newTestReviewer(store, data).Review(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Reviewed)
	assert.Equal(t, 1, sum.Closed)
	assert.Equal(t, 1, sum.Activated)
	assert.Equal(t, 1, sum.Unchanged)
	assert.Zero(t, sum.Failed)

	require.Len(t, sum.Trades, 1)
	tr := sum.Trades[0]
	assert.Equal(t, models.StatusClosedTP, tr.Status)
	assert.Equal(t, 110.0, tr.ClosePrice)
	assert.Equal(t, 2, tr.HoldingDays)
	assert.InDelta(t, 10.0, tr.ProfitLossPct, 1e-9)

	open, err := store.OpenSignals(ctx, models.ModeLive)
	require.NoError(t, err)
	status := map[string]models.SignalStatus{}
	for _, s := range open {
		status[s.ID] = s.Status
	}
	assert.Equal(t, map[string]models.SignalStatus{
		"hold": models.StatusActive,
		"lag":  models.StatusPending,
	}, status)
}

func TestReview_FetchFailureCounted(t *testing.T) {
	ctx := context.Background()
	bars := testutil.Flat(5, 100)
	data := newFakeData()
	data.errs["DOWN"] = errors.New("timeout")

	store := repository.NewMemorySignalStore()
	require.NoError(t, store.SaveTickerResults(ctx, models.TickerResult{Ticker: "DOWN",
		Signals: []models.Signal{liveSignal("d1", "DOWN", bars, 2)}}))

	sum, err := newTestReviewer(store, data).Review(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Reviewed)
	assert.Equal(t, 1, sum.Failed)
}

func TestReview_NilSeriesCountsAsFetchFailure(t *testing.T) {
	ctx := context.Background()
	bars := testutil.Flat(5, 100)
	data := newFakeData()
	data.missing["GONE"] = true

	store := repository.NewMemorySignalStore()
	require.NoError(t, store.SaveTickerResults(ctx, models.TickerResult{Ticker: "GONE",
		Signals: []models.Signal{liveSignal("g1", "GONE", bars, 2)}}))

	var sum models.ReviewSummary
	require.NotPanics(t, func() {
		var err error
		sum, err = newTestReviewer(store, data).Review(ctx)
		require.NoError(t, err)
	})
	assert.Equal(t, 1, sum.Reviewed)
	assert.Equal(t, 1, sum.Failed)
}
