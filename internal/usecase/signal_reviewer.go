package usecase

import (
	"context"
	"fmt"
	"sync"

	"FieldScan/internal/domain/models"
	drepo "FieldScan/internal/domain/repository"
	"FieldScan/internal/services/resolver"
	applogger "FieldScan/pkg/logger"
)

// SignalReviewer walks open live signals forward through fresh bars. A
// signal whose exit triggered is closed; a PENDING signal that has seen a
// post-entry bar becomes ACTIVE.
type SignalReviewer struct {
	store     drepo.SignalStore
	data      drepo.MarketData
	resolver  *resolver.Resolver
	processor *ResultProcessor
	metrics   drepo.Metrics
	l         *applogger.Logger
	mu        sync.Mutex
}

func NewSignalReviewer(
	store drepo.SignalStore,
	data drepo.MarketData,
	res *resolver.Resolver,
	processor *ResultProcessor,
	metrics drepo.Metrics,
	l *applogger.Logger,
) *SignalReviewer {
	if l == nil {
		l = applogger.Nop()
	}
	return &SignalReviewer{store: store, data: data, resolver: res, processor: processor, metrics: metrics, l: l}
}

// Review processes every open live signal. Concurrent calls are serialized.
// Per-signal failures are counted, not returned.
func (r *SignalReviewer) Review(ctx context.Context) (models.ReviewSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sum models.ReviewSummary
	open, err := r.store.OpenSignals(ctx, models.ModeLive)
	if err != nil {
		return sum, fmt.Errorf("load open signals: %w", err)
	}

	seriesByTicker := make(map[string][]models.PriceBar)
	for _, sig := range open {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Reviewed++

		bars, ok := seriesByTicker[sig.Ticker]
		if !ok {
			series, err := r.data.Series(ctx, sig.Ticker)
			if err == nil && series == nil {
				err = fmt.Errorf("no series for %s", sig.Ticker)
			}
			if err != nil {
				r.failed(&sum, sig, "fetch", err)
				continue
			}
			bars = series.Bars
			seriesByTicker[sig.Ticker] = bars
		}

		if err := r.reviewOne(ctx, sig, bars, &sum); err != nil {
			r.failed(&sum, sig, "review", err)
		}
	}

	r.l.Info("signal review finished",
		applogger.Int("reviewed", sum.Reviewed),
		applogger.Int("activated", sum.Activated),
		applogger.Int("closed", sum.Closed),
		applogger.Int("failed", sum.Failed),
	)
	return sum, nil
}

func (r *SignalReviewer) reviewOne(ctx context.Context, sig models.Signal, bars []models.PriceBar, sum *models.ReviewSummary) error {
	entryIdx := resolver.EntryIndex(sig, bars)
	if entryIdx < 0 {
		// the feed has not caught up with the entry day yet
		sum.Unchanged++
		return nil
	}

	trade, days, closed := r.resolver.Resolve(sig, bars, entryIdx)
	switch {
	case closed:
		if err := r.store.CloseSignal(ctx, trade); err != nil {
			return err
		}
		sum.Closed++
		sum.Trades = append(sum.Trades, trade)
		r.metrics.RecordTrade(string(trade.Status), trade.ProfitLossPct)
		if r.processor != nil {
			r.processor.FanOut(ctx, models.TickerResult{Ticker: trade.Ticker, Trades: []models.ResolvedTrade{trade}})
		}
		r.l.Info("signal closed",
			applogger.String("ticker", trade.Ticker),
			applogger.String("status", string(trade.Status)),
			applogger.Float64("pnl_pct", trade.ProfitLossPct),
			applogger.Int("holding_days", trade.HoldingDays),
		)
	case sig.Status == models.StatusPending && days > 0:
		if err := r.store.UpdateStatus(ctx, sig.ID, models.StatusActive); err != nil {
			return err
		}
		sum.Activated++
	default:
		sum.Unchanged++
	}
	return nil
}

func (r *SignalReviewer) failed(sum *models.ReviewSummary, sig models.Signal, stage string, err error) {
	sum.Failed++
	r.metrics.RecordError("review_" + stage)
	r.l.Warn("signal review failed",
		applogger.String("ticker", sig.Ticker),
		applogger.String("signal_id", sig.ID),
		applogger.Error(err),
	)
}
