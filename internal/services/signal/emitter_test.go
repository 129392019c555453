package signal

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"FieldScan/internal/domain/models"
	"FieldScan/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextOpenEntersOnFollowingBar(t *testing.T) {
	bars := testutil.Bars(10, 1)
	e := NewEmitter(Config{TPMultiplier: 5, SLMultiplier: 2}, NextOpen{})
	sig, idx, ok := e.Emit("AAA", bars, 4, models.DerivedMetrics{ATR14: 2}, models.NormalizedScore{})
	require.True(t, ok)
	assert.Equal(t, 5, idx)
	assert.Equal(t, bars[5].Open, sig.EntryPrice)
	assert.Equal(t, bars[4].Date, sig.GenerationDate)
	assert.Equal(t, bars[5].Date, sig.EntryDate)
	assert.Equal(t, sig.EntryPrice+10, sig.TakeProfit)
	assert.Equal(t, sig.EntryPrice-4, sig.StopLoss)
	assert.Equal(t, models.StatusActive, sig.Status)
	assert.Equal(t, models.ModeBacktest, sig.Mode)
}

func TestNextOpenCannotEnterOnLastBar(t *testing.T) {
	bars := testutil.Bars(10, 1)
	_, _, ok := NewEmitter(Config{}, NextOpen{}).Emit("AAA", bars, 9, models.DerivedMetrics{ATR14: 1}, models.NormalizedScore{})
	assert.False(t, ok)
}

func TestLatestCloseEntersAtClose(t *testing.T) {
	bars := testutil.Bars(10, 2)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e := NewEmitter(Config{}, LatestClose{}, WithClock(func() time.Time { return now }))
	sig, idx, ok := e.Emit("AAA", bars, 9, models.DerivedMetrics{ATR14: 1}, models.NormalizedScore{})
	require.True(t, ok)
	assert.Equal(t, 9, idx)
	assert.Equal(t, bars[9].Close, sig.EntryPrice)
	assert.Equal(t, models.StatusPending, sig.Status)
	assert.Equal(t, now, sig.CreatedAt)
	assert.Equal(t, DefaultSetup, sig.Setup)

	_, _, ok = e.Emit("AAA", bars, 8, models.DerivedMetrics{ATR14: 1}, models.NormalizedScore{})
	assert.False(t, ok, "live mode only enters on the latest bar")
}

func TestZeroOrNaNATRSkips(t *testing.T) {
	bars := testutil.Bars(10, 3)
	e := NewEmitter(Config{}, NextOpen{})
	for _, atr := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, _, ok := e.Emit("AAA", bars, 3, models.DerivedMetrics{ATR14: atr}, models.NormalizedScore{})
		assert.False(t, ok, "atr %v", atr)
	}
}

func TestZeroEntryPriceSkips(t *testing.T) {
	bars := testutil.Bars(10, 3)
	bars[4].Open = 0
	_, _, ok := NewEmitter(Config{}, NextOpen{}).Emit("AAA", bars, 3, models.DerivedMetrics{ATR14: 1}, models.NormalizedScore{})
	assert.False(t, ok)
}

func TestRiskOrdering(t *testing.T) {
	bars := testutil.Bars(50, 4)
	e := NewEmitter(Config{TPMultiplier: 5, SLMultiplier: 2}, NextOpen{})
	for i := 0; i < len(bars)-1; i++ {
		sig, _, ok := e.Emit("AAA", bars, i, models.DerivedMetrics{ATR14: 0.1 + float64(i)/10}, models.NormalizedScore{})
		require.True(t, ok)
		assert.Less(t, sig.StopLoss, sig.EntryPrice)
		assert.Less(t, sig.EntryPrice, sig.TakeProfit)
	}
}

func TestSnapshotIsSanitized(t *testing.T) {
	bars := testutil.Bars(5, 1)
	m := models.DerivedMetrics{ATR14: 1, TimeDilation: math.NaN(), J: 2}
	sig, _, ok := NewEmitter(Config{}, NextOpen{}).Emit("AAA", bars, 1, m, models.NormalizedScore{AQMScore: 3})
	require.True(t, ok)
	assert.Equal(t, 0.0, sig.Snapshot.Metrics.TimeDilation)
	assert.Equal(t, 2.0, sig.Snapshot.Metrics.J)
	assert.Equal(t, 3.0, sig.Snapshot.Score.AQMScore)
	assert.Equal(t, bars[1], sig.Snapshot.Bar)
}

func TestSignalIDIsStable(t *testing.T) {
	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	a := SignalID("AAA", "S", models.ModeLive, d)
	assert.Equal(t, a, SignalID("AAA", "S", models.ModeLive, d.Add(3*time.Hour)))
	assert.NotEqual(t, a, SignalID("AAA", "S", models.ModeBacktest, d))
	assert.NotEqual(t, a, SignalID("BBB", "S", models.ModeLive, d))
}

func TestPolicyRanges(t *testing.T) {
	// index 200 is the first scored bar; backtest needs bar 201 to enter on
	from, to := NextOpen{}.Range(202, 201)
	assert.Equal(t, [2]int{200, 201}, [2]int{from, to})
	from, to = NextOpen{}.Range(201, 201)
	assert.Equal(t, 0, to-from)
	from, to = NextOpen{}.Range(300, 201)
	assert.Equal(t, [2]int{200, 299}, [2]int{from, to})
	from, to = LatestClose{}.Range(202, 201)
	assert.Equal(t, [2]int{201, 202}, [2]int{from, to})
	from, to = LatestClose{}.Range(201, 201)
	assert.Equal(t, [2]int{200, 201}, [2]int{from, to})
	from, to = LatestClose{}.Range(200, 201)
	assert.Equal(t, 0, to-from)
	assert.IsType(t, LatestClose{}, PolicyFor(models.ModeLive))
	assert.IsType(t, NextOpen{}, PolicyFor(models.ModeBacktest))
}

type fakeFinder struct {
	sig *models.Signal
	err error
}

func (f fakeFinder) LatestOpenSignal(context.Context, string) (*models.Signal, error) {
	return f.sig, f.err
}

func TestDeduperWindow(t *testing.T) {
	now := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	ctx := context.Background()

	allow, err := NewDeduper(fakeFinder{}, 0, clock).Allow(ctx, "AAA")
	require.NoError(t, err)
	assert.True(t, allow)

	recent := &models.Signal{Status: models.StatusPending, CreatedAt: now.Add(-19 * time.Hour)}
	allow, err = NewDeduper(fakeFinder{sig: recent}, 0, clock).Allow(ctx, "AAA")
	require.NoError(t, err)
	assert.False(t, allow)

	old := &models.Signal{Status: models.StatusActive, CreatedAt: now.Add(-21 * time.Hour)}
	allow, err = NewDeduper(fakeFinder{sig: old}, 0, clock).Allow(ctx, "AAA")
	require.NoError(t, err)
	assert.True(t, allow)

	closed := &models.Signal{Status: models.StatusClosedTP, CreatedAt: now.Add(-time.Hour)}
	allow, err = NewDeduper(fakeFinder{sig: closed}, 0, clock).Allow(ctx, "AAA")
	require.NoError(t, err)
	assert.True(t, allow)

	_, err = NewDeduper(fakeFinder{err: errors.New("db down")}, 0, clock).Allow(ctx, "AAA")
	assert.Error(t, err)
}
