package usecase

import (
	"context"
	"fmt"
	"time"

	"FieldScan/internal/domain/models"
	drepo "FieldScan/internal/domain/repository"
	applogger "FieldScan/pkg/logger"
)

// ResultProcessor persists one ticker's records and then fans them out.
// Only the store write can fail the ticker; archive and publish are best effort.
type ResultProcessor struct {
	store   drepo.SignalStore
	archive drepo.Archive
	pub     drepo.Publisher
	metrics drepo.Metrics
	l       *applogger.Logger
}

// NewResultProcessor creates a processor. archive and pub may be nil.
func NewResultProcessor(
	store drepo.SignalStore,
	archive drepo.Archive,
	pub drepo.Publisher,
	metrics drepo.Metrics,
	l *applogger.Logger,
) *ResultProcessor {
	if l == nil {
		l = applogger.Nop()
	}
	return &ResultProcessor{
		store:   store,
		archive: archive,
		pub:     pub,
		metrics: metrics,
		l:       l,
	}
}

// Process commits result in one store transaction and fans it out.
func (p *ResultProcessor) Process(ctx context.Context, mode models.ScanMode, result models.TickerResult) error {
	if result.Empty() {
		return nil
	}

	start := time.Now()
	if err := p.store.SaveTickerResults(ctx, result); err != nil {
		p.metrics.RecordError("persist")
		return fmt.Errorf("persist %s: %w", result.Ticker, err)
	}
	p.metrics.RecordLatency("persist", time.Since(start).Seconds())

	p.metrics.RecordSignals(string(mode), len(result.Signals)+len(result.Trades))
	for _, t := range result.Trades {
		p.metrics.RecordTrade(string(t.Status), t.ProfitLossPct)
	}

	p.FanOut(ctx, result)
	return nil
}

// FanOut archives and publishes already committed records.
func (p *ResultProcessor) FanOut(ctx context.Context, result models.TickerResult) {
	if p.archive != nil {
		if err := p.archive.Archive(ctx, result); err != nil {
			p.metrics.RecordError("archive")
			p.l.Warn("archive failed", applogger.String("ticker", result.Ticker), applogger.Error(err))
		}
	}
	if p.pub != nil {
		if err := p.pub.Publish(ctx, result); err != nil {
			p.metrics.RecordError("publish")
			p.l.Warn("publish failed", applogger.String("ticker", result.Ticker), applogger.Error(err))
		}
	}
}

// Close releases the fan-out sinks. The store is owned by the caller.
func (p *ResultProcessor) Close() error {
	var firstErr error
	if p.pub != nil {
		if err := p.pub.Close(); err != nil {
			firstErr = err
		}
	}
	if p.archive != nil {
		if err := p.archive.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
