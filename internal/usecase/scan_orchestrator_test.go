package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FieldScan/internal/domain/models"
	"FieldScan/internal/repository"
	"FieldScan/internal/testutil"
	"FieldScan/pkg/metrics"
)

func TestOrchestrator_AggregatesOutcomes(t *testing.T) {
	good, want := triggeringSeries(t, "GOOD")

	data := newFakeData()
	data.series["GOOD"] = good
	data.series["SHORT"] = testutil.Series("SHORT", 150, 3)
	bad := testutil.Series("BAD", 300, 3)
	bad.Bars[260].Close = -1
	data.series["BAD"] = bad
	data.errs["DOWN"] = errors.New("upstream 503")

	store := repository.NewMemorySignalStore()
	o := newTestOrchestrator(data, store, NewTickerPipeline(testConfig(), nil, nil), 2)

	res, err := o.Run(context.Background(), models.ModeBacktest, []string{"GOOD", "SHORT", "BAD", "DOWN"})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 4, res.Processed)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, res.Failed)
	assert.False(t, res.Cancelled)
	assert.Equal(t, len(want.Signals), len(res.Signals))
	assert.Equal(t, len(want.Trades), len(res.Trades))

	trades, err := store.ListTrades(context.Background(), models.TradeQuery{Ticker: "GOOD"})
	require.NoError(t, err)
	assert.Len(t, trades, len(want.Trades))

	p := o.Progress()
	assert.False(t, p.Running)
	assert.Equal(t, 4, p.Processed)
	assert.Len(t, p.Lines, 4)
	assert.Same(t, res, o.Last())
}

func TestOrchestrator_PersistFailureIsIsolated(t *testing.T) {
	good, _ := triggeringSeries(t, "GOOD")
	other := good
	other.Ticker = "OTHER"

	data := newFakeData()
	data.series["GOOD"] = good
	data.series["OTHER"] = other

	store := repository.NewMemorySignalStore()
	store.FailTicker = "GOOD"
	o := newTestOrchestrator(data, store, NewTickerPipeline(testConfig(), nil, nil), 1)

	res, err := o.Run(context.Background(), models.ModeBacktest, []string{"GOOD", "OTHER"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Processed)
	for _, tr := range res.Trades {
		assert.Equal(t, "OTHER", tr.Ticker)
	}
	for _, s := range res.Signals {
		assert.Equal(t, "OTHER", s.Ticker)
	}
}

func TestOrchestrator_LiveDedupeAcrossScans(t *testing.T) {
	full, res := triggeringSeries(t, "AAA")
	_, gen := laterSignal(t, full, res)
	live := full
	live.Bars = full.Bars[:gen+1]

	data := newFakeData()
	data.series["AAA"] = live

	store := repository.NewMemorySignalStore()
	now := time.Date(2024, 6, 3, 21, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	o := newTestOrchestrator(data, store, NewTickerPipeline(testConfig(), store, clock), 4)

	first, err := o.Run(context.Background(), models.ModeLive, []string{"AAA"})
	require.NoError(t, err)
	require.Len(t, first.Signals, 1)
	assert.Equal(t, models.StatusPending, first.Signals[0].Status)
	assert.Equal(t, now, first.Signals[0].CreatedAt)

	now = now.Add(2 * time.Hour)
	second, err := o.Run(context.Background(), models.ModeLive, []string{"AAA"})
	require.NoError(t, err)
	assert.Empty(t, second.Signals)

	open, err := store.OpenSignals(context.Background(), models.ModeLive)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestOrchestrator_RejectsConcurrentBatch(t *testing.T) {
	data := newFakeData()
	data.release = make(chan struct{})
	for _, tk := range []string{"A", "B", "C", "D"} {
		data.series[tk] = testutil.Series(tk, 150, 1)
	}
	o := newTestOrchestrator(data, repository.NewMemorySignalStore(), NewTickerPipeline(testConfig(), nil, nil), 1)

	require.NoError(t, o.Start(context.Background(), models.ModeBacktest, []string{"A", "B", "C", "D"}))
	assert.True(t, o.Running())

	_, err := o.Run(context.Background(), models.ModeBacktest, nil)
	assert.ErrorIs(t, err, ErrScanRunning)
	assert.ErrorIs(t, o.Start(context.Background(), models.ModeLive, nil), ErrScanRunning)

	assert.True(t, o.Stop())
	close(data.release)
	o.Wait()

	assert.False(t, o.Running())
	assert.False(t, o.Stop())
	last := o.Last()
	require.NotNil(t, last)
	assert.True(t, last.Cancelled)
	assert.Less(t, last.Processed, 4)
}

func TestOrchestrator_CancelledContext(t *testing.T) {
	data := newFakeData()
	data.series["A"] = testutil.Series("A", 150, 1)
	o := newTestOrchestrator(data, repository.NewMemorySignalStore(), NewTickerPipeline(testConfig(), nil, nil), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := o.Run(ctx, models.ModeBacktest, []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.True(t, res.Cancelled)
}

func TestOrchestrator_EmptyListScansUniverse(t *testing.T) {
	data := newFakeData()
	data.series["A"] = testutil.Series("A", 150, 1)
	data.series["B"] = testutil.Series("B", 150, 2)
	o := newTestOrchestrator(data, repository.NewMemorySignalStore(), NewTickerPipeline(testConfig(), nil, nil), 0)

	res, err := o.Run(context.Background(), models.ModeBacktest, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Skipped)

	_, err = o.Run(context.Background(), models.ScanMode("paper"), nil)
	assert.Error(t, err)
}

func TestScanStatus_KeepsTail(t *testing.T) {
	s := NewScanStatus(2)
	s.Begin(models.ModeLive, 3)
	s.Advance("a")
	s.Advance("b")
	s.Advance("c")

	p := s.Progress()
	assert.True(t, p.Running)
	assert.Equal(t, 3, p.Processed)
	assert.Equal(t, []string{"b", "c"}, p.Lines)
	assert.Equal(t, "c", p.LastLine)

	s.Finish()
	assert.False(t, s.Progress().Running)
}

type recordingStatus struct {
	*ScanStatus
	begins   int
	total    int
	advances []string
	finishes int
}

func (r *recordingStatus) Begin(mode models.ScanMode, total int) {
	r.begins++
	r.total = total
	r.ScanStatus.Begin(mode, total)
}

func (r *recordingStatus) Advance(line string) {
	r.advances = append(r.advances, line)
	r.ScanStatus.Advance(line)
}

func (r *recordingStatus) Finish() {
	r.finishes++
	r.ScanStatus.Finish()
}

func TestOrchestrator_ReportsThroughStatusSink(t *testing.T) {
	data := newFakeData()
	data.series["SHORT"] = testutil.Series("SHORT", 150, 3)
	data.errs["DOWN"] = errors.New("upstream 503")

	sink := &recordingStatus{ScanStatus: NewScanStatus(0)}
	proc := NewResultProcessor(repository.NewMemorySignalStore(), nil, nil, metrics.Nop{}, nil)
	o := NewScanOrchestrator(data, data, NewTickerPipeline(testConfig(), nil, nil), proc, sink,
		metrics.Nop{}, nil, nil, OrchestratorConfig{Workers: 1})

	_, err := o.Run(context.Background(), models.ModeBacktest, []string{"SHORT", "DOWN"})
	require.NoError(t, err)

	assert.Equal(t, 1, sink.begins)
	assert.Equal(t, 2, sink.total)
	assert.Len(t, sink.advances, 2)
	assert.Equal(t, 1, sink.finishes)
	assert.Equal(t, 2, o.Progress().Processed)
}
