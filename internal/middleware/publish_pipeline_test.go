package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FieldScan/internal/domain/models"
	"FieldScan/pkg/metrics"
)

type flakyPublisher struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	published []string
	closed    bool
}

func (f *flakyPublisher) Publish(_ context.Context, r models.TickerResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failFirst {
		return errors.New("broker unavailable")
	}
	f.published = append(f.published, r.Ticker)
	return nil
}

func (f *flakyPublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *flakyPublisher) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.published...), f.calls
}

func result(ticker string) models.TickerResult {
	return models.TickerResult{Ticker: ticker, Signals: []models.Signal{{ID: ticker + "-1", Ticker: ticker}}}
}

func TestPublishPipeline_RetriesUntilDelivered(t *testing.T) {
	down := &flakyPublisher{failFirst: 2}
	p := NewPublishPipeline(down, metrics.Nop{}, nil, WithRetry(5, time.Millisecond, 4*time.Millisecond))
	p.Start(context.Background())
	defer p.Close()

	require.NoError(t, p.Publish(context.Background(), result("AAPL")))

	require.Eventually(t, func() bool {
		got, _ := down.snapshot()
		return len(got) == 1
	}, 2*time.Second, 5*time.Millisecond)
	got, calls := down.snapshot()
	assert.Equal(t, []string{"AAPL"}, got)
	assert.Equal(t, 3, calls)
}

func TestPublishPipeline_DropsAfterRetryCap(t *testing.T) {
	down := &flakyPublisher{failFirst: 100}
	p := NewPublishPipeline(down, metrics.Nop{}, nil, WithRetry(3, time.Millisecond, time.Millisecond))
	p.Start(context.Background())

	require.NoError(t, p.Publish(context.Background(), result("AAPL")))
	require.Eventually(t, func() bool {
		_, calls := down.snapshot()
		return calls == 3 && p.Buffered() == 0
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, p.Close())
	_, calls := down.snapshot()
	assert.Equal(t, 3, calls)
}

func TestPublishPipeline_BufferFull(t *testing.T) {
	down := &flakyPublisher{failFirst: 100}
	p := NewPublishPipeline(down, metrics.Nop{}, nil, WithBufferSize(1))

	require.NoError(t, p.Publish(context.Background(), result("AAPL")))
	assert.Error(t, p.Publish(context.Background(), result("MSFT")))
	assert.Equal(t, 1, p.Buffered())
}

func TestPublishPipeline_SkipsEmptyResults(t *testing.T) {
	down := &flakyPublisher{}
	p := NewPublishPipeline(down, metrics.Nop{}, nil)
	require.NoError(t, p.Publish(context.Background(), models.TickerResult{Ticker: "AAPL"}))
	_, calls := down.snapshot()
	assert.Zero(t, calls)
}

func TestPublishPipeline_CloseFlushesBuffer(t *testing.T) {
	down := &flakyPublisher{failFirst: 1}
	p := NewPublishPipeline(down, metrics.Nop{}, nil)

	// not started: the failed result waits in the buffer
	require.NoError(t, p.Publish(context.Background(), result("NVDA")))
	assert.Equal(t, 1, p.Buffered())

	require.NoError(t, p.Close())
	got, _ := down.snapshot()
	assert.Equal(t, []string{"NVDA"}, got)
	assert.True(t, down.closed)
}
