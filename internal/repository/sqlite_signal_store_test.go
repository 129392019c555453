package repository

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FieldScan/internal/domain/models"
	domrepo "FieldScan/internal/domain/repository"
	pkgsqlite "FieldScan/pkg/sqlite"
)

func newSQLiteStore(t *testing.T) *SQLiteSignalStore {
	t.Helper()
	ctx := context.Background()
	db, err := pkgsqlite.Open(ctx, pkgsqlite.Config{Path: filepath.Join(t.TempDir(), "signals.db")})
	require.NoError(t, err)
	s := NewSQLiteSignalStore(db)
	require.NoError(t, s.Init(ctx))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_SaveAndQuery(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	open := fixtureSignal("a1", "AAPL", models.ModeBacktest, models.StatusActive, day0.AddDate(0, 0, 10))
	closed := fixtureTrade(fixtureSignal("a0", "AAPL", models.ModeBacktest, models.StatusActive, day0),
		models.StatusClosedTP, 110, 10, 2)
	closed.AmbiguousBar = true

	require.NoError(t, s.SaveTickerResults(ctx, models.TickerResult{
		Ticker:  "AAPL",
		Signals: []models.Signal{open},
		Trades:  []models.ResolvedTrade{closed},
	}))

	sigs, err := s.ListSignals(ctx, models.SignalQuery{Ticker: "AAPL"})
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.Equal(t, "a1", sigs[0].ID)
	assert.Equal(t, models.StatusActive, sigs[0].Status)
	assert.Equal(t, models.StatusClosedTP, sigs[1].Status)
	assert.True(t, sigs[0].GenerationDate.Equal(open.GenerationDate))
	assert.Equal(t, 2.1, sigs[0].Snapshot.Score.AQMScore)

	trades, err := s.ListTrades(ctx, models.TradeQuery{Ticker: "AAPL"})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, 10.0, trades[0].ProfitLossPct)
	assert.Equal(t, 2, trades[0].HoldingDays)
	assert.True(t, trades[0].AmbiguousBar)
	assert.True(t, trades[0].CloseDate.Equal(closed.CloseDate))

	active, err := s.ListSignals(ctx, models.SignalQuery{Status: models.StatusActive})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestSQLiteStore_SaveIsIdempotent(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	sig := fixtureSignal("x", "MSFT", models.ModeBacktest, models.StatusActive, day0)
	res := models.TickerResult{Ticker: "MSFT", Signals: []models.Signal{sig}}

	require.NoError(t, s.SaveTickerResults(ctx, res))
	require.NoError(t, s.SaveTickerResults(ctx, res))

	sigs, err := s.ListSignals(ctx, models.SignalQuery{})
	require.NoError(t, err)
	assert.Len(t, sigs, 1)
}

func TestSQLiteStore_LatestOpenAndClose(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	older := fixtureSignal("l1", "NVDA", models.ModeLive, models.StatusPending, day0)
	newer := fixtureSignal("l2", "NVDA", models.ModeLive, models.StatusPending, day0.AddDate(0, 0, 3))
	newer.CreatedAt = day0.AddDate(0, 0, 3).Add(21 * time.Hour)
	require.NoError(t, s.SaveTickerResults(ctx, models.TickerResult{Ticker: "NVDA", Signals: []models.Signal{older, newer}}))

	latest, err := s.LatestOpenSignal(ctx, "NVDA")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "l2", latest.ID)
	assert.True(t, latest.CreatedAt.Equal(newer.CreatedAt))

	none, err := s.LatestOpenSignal(ctx, "TSLA")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, s.UpdateStatus(ctx, "l1", models.StatusActive))
	assert.ErrorIs(t, s.UpdateStatus(ctx, "missing", models.StatusActive), domrepo.ErrNotFound)

	require.NoError(t, s.CloseSignal(ctx, fixtureTrade(newer, models.StatusClosedSL, 96, -4, 1)))

	open, err := s.OpenSignals(ctx, models.ModeLive)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "l1", open[0].ID)
	assert.Equal(t, models.StatusActive, open[0].Status)

	latest, err = s.LatestOpenSignal(ctx, "NVDA")
	require.NoError(t, err)
	assert.Equal(t, "l1", latest.ID)
}

func TestSQLiteStore_NonFiniteSnapshotStored(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	sig := fixtureSignal("nan", "AMD", models.ModeBacktest, models.StatusActive, day0)
	sig.Snapshot.Metrics.TimeDilation = math.NaN()
	sig.Snapshot.Score.JNorm = math.Inf(1)

	require.NoError(t, s.SaveTickerResults(ctx, models.TickerResult{Ticker: "AMD", Signals: []models.Signal{sig}}))
	sigs, err := s.ListSignals(ctx, models.SignalQuery{Ticker: "AMD"})
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, 0.0, sigs[0].Snapshot.Metrics.TimeDilation)
	assert.Equal(t, 0.0, sigs[0].Snapshot.Score.JNorm)
}

func TestSQLiteStore_TradeDateFilter(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	t1 := fixtureTrade(fixtureSignal("t1", "IBM", models.ModeBacktest, models.StatusActive, day0), models.StatusClosedTime, 101, 1, 5)
	t2 := fixtureTrade(fixtureSignal("t2", "IBM", models.ModeBacktest, models.StatusActive, day0.AddDate(0, 1, 0)), models.StatusClosedTP, 110, 10, 1)
	require.NoError(t, s.SaveTickerResults(ctx, models.TickerResult{Ticker: "IBM", Trades: []models.ResolvedTrade{t1, t2}}))

	trades, err := s.ListTrades(ctx, models.TradeQuery{From: day0.AddDate(0, 0, 20), Limit: 10})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "t2", trades[0].ID)
}

func TestSQLiteStore_RollsBackWholeTicker(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	s := NewSQLiteSignalStore(db)

	sig := fixtureSignal("r1", "AAPL", models.ModeBacktest, models.StatusActive, day0)
	trade := fixtureTrade(fixtureSignal("r0", "AAPL", models.ModeBacktest, models.StatusActive, day0), models.StatusClosedTP, 110, 10, 1)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO signals").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO signals").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO trades").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = s.SaveTickerResults(context.Background(), models.TickerResult{
		Ticker: "AAPL", Signals: []models.Signal{sig}, Trades: []models.ResolvedTrade{trade},
	})
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_EmptyResultSkipsTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	s := NewSQLiteSignalStore(db)

	require.NoError(t, s.SaveTickerResults(context.Background(), models.TickerResult{Ticker: "AAPL"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
