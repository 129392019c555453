package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"FieldScan/internal/domain/models"
	drepo "FieldScan/internal/domain/repository"
	applogger "FieldScan/pkg/logger"
	"FieldScan/pkg/tracing"
)

var ErrScanRunning = errors.New("scan already running")

const (
	outcomeOK      = "ok"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

// ProgressTracker is a status sink the orchestrator can read back for the
// progress endpoint. ScanStatus is the default implementation.
type ProgressTracker interface {
	drepo.StatusSink
	Progress() models.ScanProgress
}

var _ ProgressTracker = (*ScanStatus)(nil)

type OrchestratorConfig struct {
	// Workers bounds concurrent tickers; 0 means runtime.NumCPU().
	Workers int
	// LiveConcurrency further caps live scans, normally the upstream rate-limit burst.
	LiveConcurrency int
}

// ScanOrchestrator runs one batch at a time over the ticker universe with a
// bounded worker pool. A failing ticker never aborts the batch.
type ScanOrchestrator struct {
	data      drepo.MarketData
	universe  drepo.Universe
	pipeline  *TickerPipeline
	processor *ResultProcessor
	status    ProgressTracker
	metrics   drepo.Metrics
	tracer    *tracing.Provider
	l         *applogger.Logger
	cfg       OrchestratorConfig
	now       func() time.Time

	running atomic.Bool
	stop    atomic.Bool
	async   sync.WaitGroup

	mu   sync.Mutex
	last *models.ScanResult
}

func NewScanOrchestrator(
	data drepo.MarketData,
	universe drepo.Universe,
	pipeline *TickerPipeline,
	processor *ResultProcessor,
	status ProgressTracker,
	metrics drepo.Metrics,
	tracer *tracing.Provider,
	l *applogger.Logger,
	cfg OrchestratorConfig,
) *ScanOrchestrator {
	if tracer == nil {
		tracer = tracing.Noop()
	}
	if l == nil {
		l = applogger.Nop()
	}
	if status == nil {
		status = NewScanStatus(0)
	}
	return &ScanOrchestrator{
		data:      data,
		universe:  universe,
		pipeline:  pipeline,
		processor: processor,
		status:    status,
		metrics:   metrics,
		tracer:    tracer,
		l:         l,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Run executes a batch synchronously. An empty ticker list scans the whole universe.
func (o *ScanOrchestrator) Run(ctx context.Context, mode models.ScanMode, tickers []string) (*models.ScanResult, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown scan mode %q", mode)
	}
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrScanRunning
	}
	defer o.running.Store(false)
	o.stop.Store(false)
	return o.run(ctx, mode, tickers)
}

// Start launches a batch in the background. It detaches from ctx's
// cancellation; use Stop to end the batch early.
func (o *ScanOrchestrator) Start(ctx context.Context, mode models.ScanMode, tickers []string) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown scan mode %q", mode)
	}
	if !o.running.CompareAndSwap(false, true) {
		return ErrScanRunning
	}
	o.stop.Store(false)
	o.async.Add(1)
	go func() {
		defer o.async.Done()
		defer o.running.Store(false)
		if _, err := o.run(context.WithoutCancel(ctx), mode, tickers); err != nil {
			o.l.Error("scan failed", applogger.String("mode", string(mode)), applogger.Error(err))
		}
	}()
	return nil
}

// Stop asks the running batch to finish after the tickers already in flight.
func (o *ScanOrchestrator) Stop() bool {
	if !o.running.Load() {
		return false
	}
	o.stop.Store(true)
	return true
}

func (o *ScanOrchestrator) Running() bool { return o.running.Load() }

// Wait blocks until background batches return.
func (o *ScanOrchestrator) Wait() { o.async.Wait() }

func (o *ScanOrchestrator) Progress() models.ScanProgress { return o.status.Progress() }

// Last returns the most recent finished batch, or nil.
func (o *ScanOrchestrator) Last() *models.ScanResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

func (o *ScanOrchestrator) workers(mode models.ScanMode) int {
	n := o.cfg.Workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if mode == models.ModeLive && o.cfg.LiveConcurrency > 0 && n > o.cfg.LiveConcurrency {
		n = o.cfg.LiveConcurrency
	}
	return n
}

func (o *ScanOrchestrator) cancelled(ctx context.Context) bool {
	return o.stop.Load() || ctx.Err() != nil
}

type tickerOutcome struct {
	outcome string
	result  models.TickerResult
	line    string
}

func (o *ScanOrchestrator) run(ctx context.Context, mode models.ScanMode, tickers []string) (*models.ScanResult, error) {
	if len(tickers) == 0 {
		var err error
		if tickers, err = o.universe.Tickers(ctx); err != nil {
			return nil, fmt.Errorf("resolve universe: %w", err)
		}
	}

	total := len(tickers)
	result := &models.ScanResult{Mode: mode, StartedAt: o.now().UTC(), Total: total}
	o.status.Begin(mode, total)
	o.metrics.RecordProgress(0, total)
	workers := o.workers(mode)
	o.l.Info("scan started",
		applogger.String("mode", string(mode)),
		applogger.Int("tickers", total),
		applogger.Int("workers", workers),
	)

	var (
		g         errgroup.Group
		mu        sync.Mutex
		processed atomic.Int64
	)
	g.SetLimit(workers)

	for _, ticker := range tickers {
		if o.cancelled(ctx) {
			break
		}
		ticker := ticker
		g.Go(func() error {
			if o.cancelled(ctx) {
				return nil
			}
			out := o.runTicker(ctx, mode, ticker)

			mu.Lock()
			switch out.outcome {
			case outcomeOK:
				result.Signals = append(result.Signals, out.result.Signals...)
				result.Trades = append(result.Trades, out.result.Trades...)
			case outcomeSkipped:
				result.Skipped++
			case outcomeFailed:
				result.Failed++
			}
			mu.Unlock()

			n := processed.Add(1)
			o.status.Advance(out.line)
			o.metrics.RecordProgress(int(n), total)
			return nil
		})
	}
	_ = g.Wait()

	sortSignals(result.Signals)
	sortTrades(result.Trades)
	result.Processed = int(processed.Load())
	result.Cancelled = result.Processed < total
	result.FinishedAt = o.now().UTC()
	o.status.Finish()

	o.mu.Lock()
	o.last = result
	o.mu.Unlock()

	o.l.Info("scan finished",
		applogger.String("mode", string(mode)),
		applogger.Int("processed", result.Processed),
		applogger.Int("skipped", result.Skipped),
		applogger.Int("failed", result.Failed),
		applogger.Int("signals", len(result.Signals)),
		applogger.Int("trades", len(result.Trades)),
		applogger.Bool("cancelled", result.Cancelled),
		applogger.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
	)
	return result, nil
}

func (o *ScanOrchestrator) runTicker(ctx context.Context, mode models.ScanMode, ticker string) (out tickerOutcome) {
	ctx, span := o.tracer.StartSpan(ctx, "scan.ticker",
		attribute.String("ticker", ticker),
		attribute.String("mode", string(mode)),
	)
	start := time.Now()
	var spanErr error
	defer func() {
		o.metrics.RecordTicker(string(mode), out.outcome)
		o.metrics.RecordLatency("ticker", time.Since(start).Seconds())
		span.SetAttributes(attribute.String("outcome", out.outcome))
		tracing.EndSpan(span, spanErr)
	}()

	fail := func(stage string, err error) tickerOutcome {
		spanErr = err
		o.metrics.RecordError(stage)
		o.l.Warn("ticker failed",
			applogger.String("ticker", ticker),
			applogger.String("stage", stage),
			applogger.Error(err),
		)
		return tickerOutcome{outcome: outcomeFailed, line: fmt.Sprintf("%s: failed at %s: %v", ticker, stage, err)}
	}

	series, err := o.data.Series(ctx, ticker)
	if err != nil {
		return fail("fetch", err)
	}
	if series != nil && series.Ticker == "" {
		series.Ticker = ticker
	}

	res, err := o.pipeline.Run(ctx, series, mode)
	switch {
	case errors.Is(err, ErrInsufficientHistory):
		o.l.Debug("ticker skipped", applogger.String("ticker", ticker), applogger.Error(err))
		return tickerOutcome{outcome: outcomeSkipped, line: fmt.Sprintf("%s: skipped (%v)", ticker, err)}
	case errors.Is(err, ErrMalformedSeries):
		o.l.Warn("ticker skipped", applogger.String("ticker", ticker), applogger.Error(err))
		return tickerOutcome{outcome: outcomeSkipped, line: fmt.Sprintf("%s: skipped (%v)", ticker, err)}
	case err != nil:
		return fail("evaluate", err)
	}

	if err := o.processor.Process(ctx, mode, res); err != nil {
		return fail("persist", err)
	}

	return tickerOutcome{
		outcome: outcomeOK,
		result:  res,
		line: fmt.Sprintf("%s: %d bars evaluated, %d open signals, %d trades",
			ticker, res.Evaluated, len(res.Signals), len(res.Trades)),
	}
}

func sortSignals(s []models.Signal) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Ticker != s[j].Ticker {
			return s[i].Ticker < s[j].Ticker
		}
		return s[i].GenerationDate.Before(s[j].GenerationDate)
	})
}

func sortTrades(t []models.ResolvedTrade) {
	sort.Slice(t, func(i, j int) bool {
		if t[i].Ticker != t[j].Ticker {
			return t[i].Ticker < t[j].Ticker
		}
		return t[i].GenerationDate.Before(t[j].GenerationDate)
	})
}
