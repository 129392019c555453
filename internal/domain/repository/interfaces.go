package repository

import (
	"context"
	"errors"

	"FieldScan/internal/domain/models"
)

var ErrNotFound = errors.New("not found")

// MarketData supplies the full input series of one ticker.
type MarketData interface {
	Series(ctx context.Context, ticker string) (*models.TickerSeries, error)
}

// Universe lists the tickers a scan iterates.
type Universe interface {
	Tickers(ctx context.Context) ([]string, error)
}

// SignalStore persists signals and trades. SaveTickerResults is atomic per ticker.
type SignalStore interface {
	Init(ctx context.Context) error
	SaveTickerResults(ctx context.Context, result models.TickerResult) error
	LatestOpenSignal(ctx context.Context, ticker string) (*models.Signal, error)
	OpenSignals(ctx context.Context, mode models.ScanMode) ([]models.Signal, error)
	UpdateStatus(ctx context.Context, id string, status models.SignalStatus) error
	CloseSignal(ctx context.Context, trade models.ResolvedTrade) error
	ListSignals(ctx context.Context, q models.SignalQuery) ([]models.Signal, error)
	ListTrades(ctx context.Context, q models.TradeQuery) ([]models.ResolvedTrade, error)
	Health(ctx context.Context) error
	Close() error
}

// Archive is an append-only analytics sink for results.
type Archive interface {
	Archive(ctx context.Context, result models.TickerResult) error
	Close() error
}

// Publisher fans results out to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, result models.TickerResult) error
	Close() error
}

// StatusSink receives batch progress.
type StatusSink interface {
	Begin(mode models.ScanMode, total int)
	Advance(line string)
	Finish()
}

// Metrics takes plain string labels so pkg/metrics stays free of domain types.
type Metrics interface {
	RecordTicker(mode, outcome string)
	RecordSignals(mode string, n int)
	RecordTrade(status string, pnlPct float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordProgress(processed, total int)
}
