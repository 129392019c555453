package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FieldScan/internal/domain/models"
	domrepo "FieldScan/internal/domain/repository"
)

func TestMemoryStore_Lifecycle(t *testing.T) {
	s := NewMemorySignalStore()
	ctx := context.Background()

	a := fixtureSignal("a", "AAPL", models.ModeLive, models.StatusPending, day0)
	b := fixtureSignal("b", "AAPL", models.ModeLive, models.StatusPending, day0.AddDate(0, 0, 2))
	require.NoError(t, s.SaveTickerResults(ctx, models.TickerResult{Ticker: "AAPL", Signals: []models.Signal{a, b}}))

	latest, err := s.LatestOpenSignal(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "b", latest.ID)

	require.NoError(t, s.CloseSignal(ctx, fixtureTrade(b, models.StatusClosedTP, 110, 10, 1)))
	open, err := s.OpenSignals(ctx, models.ModeLive)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "a", open[0].ID)

	trades, err := s.ListTrades(ctx, models.TradeQuery{})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, models.StatusClosedTP, trades[0].Status)

	assert.ErrorIs(t, s.UpdateStatus(ctx, "zzz", models.StatusActive), domrepo.ErrNotFound)
}

func TestMemoryStore_InjectedFailure(t *testing.T) {
	s := NewMemorySignalStore()
	s.FailTicker = "BAD"
	ctx := context.Background()

	err := s.SaveTickerResults(ctx, models.TickerResult{
		Ticker:  "BAD",
		Signals: []models.Signal{fixtureSignal("x", "BAD", models.ModeBacktest, models.StatusActive, day0)},
	})
	assert.Error(t, err)
	sigs, _ := s.ListSignals(ctx, models.SignalQuery{})
	assert.Empty(t, sigs)
}
