package marketdata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FieldScan/internal/domain/models"
	"FieldScan/pkg/cache"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestCSVSource_Series(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "AAPL.csv", `Date,Open,High,Low,Close,Adj Close,Volume
2024-03-04,10,11,9,10.5,10.4,1000
2024-03-05,null,null,null,null,null,null
2024-03-06,10.5,12,10,11.5,11.4,2000
`)
	writeFile(t, dir, "AAPL_events.csv", `timestamp,type,title
2024-03-05,news,earnings beat
2024-03-01T15:00:00Z,Insider,ceo buy
garbage,news,skip me
2024-03-02,dividend,ignored
`)

	src := NewCSVSource(dir, nil)
	s, err := src.Series(context.Background(), "AAPL")
	require.NoError(t, err)

	require.Len(t, s.Bars, 2)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), s.Bars[0].Date)
	assert.Equal(t, 10.4, s.Bars[0].AdjClose)
	assert.Equal(t, 2000.0, s.Bars[1].Volume)

	require.Len(t, s.News, 1)
	assert.Equal(t, "earnings beat", s.News[0].Payload["title"])
	require.Len(t, s.Insider, 1)
	assert.Equal(t, time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC), s.Insider[0].Timestamp)
}

func TestCSVSource_MissingFileAndNoEvents(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "MSFT.csv", "Date,Open,High,Low,Close,Adj Close,Volume\n2024-03-04,1,2,1,2,2,10\n")

	src := NewCSVSource(dir, nil)
	s, err := src.Series(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Len(t, s.Bars, 1)
	assert.Empty(t, s.News)

	_, err = src.Series(context.Background(), "NOPE")
	assert.Error(t, err)
}

func TestCSVSource_Tickers(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"NVDA.csv", "AAPL.csv", "AAPL_events.csv", "notes.txt"} {
		writeFile(t, dir, n, "Date\n")
	}
	got, err := NewCSVSource(dir, nil).Tickers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "NVDA"}, got)
}

type countingSource struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingSource) Series(_ context.Context, ticker string) (*models.TickerSeries, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &models.TickerSeries{
		Ticker: ticker,
		Bars:   []models.PriceBar{{Date: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 1, Close: 2, Volume: 5}},
	}, nil
}

func TestCachedSource_HitAfterMiss(t *testing.T) {
	inner := &countingSource{}
	mem := cache.NewMemoryCache()
	defer mem.Close()

	src := NewCachedSource(inner, mem, time.Hour, nil)
	src.now = func() time.Time { return time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC) }

	first, err := src.Series(context.Background(), "AAPL")
	require.NoError(t, err)
	second, err := src.Series(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, first.Bars[0].Date, second.Bars[0].Date)
	assert.Equal(t, first.Bars[0].Close, second.Bars[0].Close)

	// the next calendar day is a different key
	src.now = func() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) }
	_, err = src.Series(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)

	require.NoError(t, src.Invalidate(context.Background()))
	_, err = src.Series(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestCachedSource_ErrorsAreNotCached(t *testing.T) {
	inner := &countingSource{err: errors.New("upstream down")}
	mem := cache.NewMemoryCache()
	defer mem.Close()
	src := NewCachedSource(inner, mem, time.Hour, nil)

	_, err := src.Series(context.Background(), "AAPL")
	require.Error(t, err)

	inner.err = nil
	_, err = src.Series(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

type listing []string

func (l listing) Tickers(context.Context) ([]string, error) { return l, nil }

func TestResolvingUniverse_Order(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	file := filepath.Join(dir, "universe.txt")
	writeFile(t, dir, "universe.txt", "# watchlist\nmsft, nvda\n\naapl # core\nMSFT\n")

	got, err := ResolvingUniverse{List: []string{" aapl", "AAPL", "tsla"}, File: file, Source: listing{"X"}}.Tickers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "TSLA"}, got)

	got, err = ResolvingUniverse{File: file, Source: listing{"X"}}.Tickers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"MSFT", "NVDA", "AAPL"}, got)

	got, err = ResolvingUniverse{Source: listing{"x", "y"}}.Tickers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Y"}, got)

	_, err = ResolvingUniverse{Source: listing{}}.Tickers(ctx)
	assert.ErrorIs(t, err, ErrNoUniverse)

	_, err = ResolvingUniverse{File: filepath.Join(dir, "missing.txt")}.Tickers(ctx)
	assert.Error(t, err)
}
