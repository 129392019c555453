package resolver

import (
	"testing"
	"time"

	"FieldScan/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(i int) time.Time {
	return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

// path builds an entry bar followed by the given (high, low, close) days.
func path(days ...[3]float64) []models.PriceBar {
	bars := []models.PriceBar{{Date: day(0), Open: 100, High: 101, Low: 99, Close: 100}}
	for i, d := range days {
		bars = append(bars, models.PriceBar{Date: day(i + 1), Open: 100, High: d[0], Low: d[1], Close: d[2]})
	}
	return bars
}

func referenceSignal() models.Signal {
	return models.Signal{Ticker: "AAA", EntryPrice: 100, StopLoss: 96, TakeProfit: 120, EntryDate: day(0), Status: models.StatusActive}
}

func TestResolveTakeProfit(t *testing.T) {
	bars := path([3]float64{121, 99, 118})
	trade, days, ok := New(5, TPFirst).Resolve(referenceSignal(), bars, 0)
	require.True(t, ok)
	assert.Equal(t, 1, days)
	assert.Equal(t, models.StatusClosedTP, trade.Status)
	assert.Equal(t, 120.0, trade.ClosePrice)
	assert.Equal(t, 20.0, trade.ProfitLossPct)
	assert.Equal(t, day(1), trade.CloseDate)
	assert.Equal(t, 1, trade.HoldingDays)
	assert.False(t, trade.AmbiguousBar)
}

func TestResolveStopLoss(t *testing.T) {
	bars := path([3]float64{101, 95, 97})
	trade, _, ok := New(5, TPFirst).Resolve(referenceSignal(), bars, 0)
	require.True(t, ok)
	assert.Equal(t, models.StatusClosedSL, trade.Status)
	assert.Equal(t, 96.0, trade.ClosePrice)
	assert.Equal(t, -4.0, trade.ProfitLossPct)
}

func TestResolveTimeExit(t *testing.T) {
	quiet := [3]float64{105, 98, 101}
	bars := path(quiet, quiet, quiet, quiet, [3]float64{110, 97, 108}, [3]float64{130, 90, 125})
	trade, days, ok := New(5, TPFirst).Resolve(referenceSignal(), bars, 0)
	require.True(t, ok)
	assert.Equal(t, 5, days)
	assert.Equal(t, models.StatusClosedTime, trade.Status)
	assert.Equal(t, 108.0, trade.ClosePrice)
	assert.Equal(t, day(5), trade.CloseDate)
	assert.InDelta(t, 8.0, trade.ProfitLossPct, 1e-9)
}

func TestResolveSkipsEntryBar(t *testing.T) {
	bars := path([3]float64{105, 98, 101})
	bars[0].High = 150 // entry bar itself must not trigger
	trade, _, ok := New(1, TPFirst).Resolve(referenceSignal(), bars, 0)
	require.True(t, ok)
	assert.Equal(t, models.StatusClosedTime, trade.Status)
}

func TestResolveOpenWhenSeriesEnds(t *testing.T) {
	bars := path([3]float64{105, 98, 101}, [3]float64{104, 99, 102})
	_, days, ok := New(5, TPFirst).Resolve(referenceSignal(), bars, 0)
	assert.False(t, ok)
	assert.Equal(t, 2, days)
}

func TestTieBreakPolicies(t *testing.T) {
	both := [3]float64{125, 90, 110} // closes above open: up bar
	cases := []struct {
		tie  TieBreak
		bar  [3]float64
		want models.SignalStatus
	}{
		{TPFirst, both, models.StatusClosedTP},
		{SLFirst, both, models.StatusClosedSL},
		{BarPath, both, models.StatusClosedSL},
		{BarPath, [3]float64{125, 90, 95}, models.StatusClosedTP},
	}
	for _, tc := range cases {
		trade, _, ok := New(5, tc.tie).Resolve(referenceSignal(), path(tc.bar), 0)
		require.True(t, ok)
		assert.Equal(t, tc.want, trade.Status, tc.tie.String())
		assert.True(t, trade.AmbiguousBar)
	}
}

func TestParseTieBreak(t *testing.T) {
	for _, tie := range []TieBreak{TPFirst, SLFirst, BarPath} {
		got, err := ParseTieBreak(tie.String())
		require.NoError(t, err)
		assert.Equal(t, tie, got)
	}
	got, err := ParseTieBreak("")
	require.NoError(t, err)
	assert.Equal(t, TPFirst, got)
	_, err = ParseTieBreak("coin_flip")
	assert.Error(t, err)
}

func TestPositionIgnoresBarsAfterClose(t *testing.T) {
	p := New(5, TPFirst).Open(referenceSignal())
	assert.False(t, p.Advance(models.PriceBar{Date: day(1), High: 101, Low: 99, Close: 100}))
	assert.Nil(t, p.Closed())
	assert.True(t, p.Advance(models.PriceBar{Date: day(2), High: 121, Low: 99, Close: 120}))
	assert.True(t, p.Advance(models.PriceBar{Date: day(3), High: 90, Low: 80, Close: 85}))
	assert.Equal(t, models.StatusClosedTP, p.Closed().Status)
	assert.Equal(t, 2, p.Closed().HoldingDays)
}

func TestEntryIndex(t *testing.T) {
	bars := path([3]float64{105, 98, 101}, [3]float64{104, 99, 102})
	sig := referenceSignal()
	sig.EntryDate = day(1).Add(16 * time.Hour)
	assert.Equal(t, 1, EntryIndex(sig, bars))
	sig.EntryDate = day(9)
	assert.Equal(t, -1, EntryIndex(sig, bars))
}
