package repository

import (
	"context"
	"fmt"
	"time"

	"FieldScan/internal/domain/models"
	pkgch "FieldScan/pkg/clickhouse"
	applogger "FieldScan/pkg/logger"
)

var clickhouseArchiveSchema = []string{
	`CREATE TABLE IF NOT EXISTS signal_archive (
		signal_id       String,
		ticker          LowCardinality(String),
		setup           LowCardinality(String),
		mode            LowCardinality(String),
		status          LowCardinality(String),
		generation_date Date,
		entry_date      Date,
		created_at      DateTime64(3, 'UTC'),
		entry_price     Float64,
		stop_loss       Float64,
		take_profit     Float64,
		atr_14          Float64,
		aqm_score       Float64,
		j_norm          Float64,
		nabla_norm      Float64,
		m_norm          Float64,
		threshold       Float64,
		archived_at     DateTime('UTC')
	) ENGINE = ReplacingMergeTree(archived_at)
	ORDER BY (ticker, generation_date, signal_id)`,
	`CREATE TABLE IF NOT EXISTS trade_archive (
		signal_id     String,
		ticker        LowCardinality(String),
		mode          LowCardinality(String),
		status        LowCardinality(String),
		entry_date    Date,
		close_date    Date,
		entry_price   Float64,
		close_price   Float64,
		pnl_pct       Float64,
		holding_days  UInt16,
		ambiguous_bar UInt8,
		archived_at   DateTime('UTC')
	) ENGINE = ReplacingMergeTree(archived_at)
	ORDER BY (ticker, close_date, signal_id)`,
}

const (
	qArchiveSignal = `INSERT INTO signal_archive (signal_id, ticker, setup, mode, status, generation_date,
		entry_date, created_at, entry_price, stop_loss, take_profit, atr_14, aqm_score, j_norm, nabla_norm,
		m_norm, threshold, archived_at)`
	qArchiveTrade = `INSERT INTO trade_archive (signal_id, ticker, mode, status, entry_date, close_date,
		entry_price, close_price, pnl_pct, holding_days, ambiguous_bar, archived_at)`
)

// CHArchive appends results to ClickHouse for offline analysis. Replays of
// the same signal collapse through ReplacingMergeTree.
type CHArchive struct {
	ch  *pkgch.Client
	l   *applogger.Logger
	now func() time.Time
}

func NewCHArchive(ch *pkgch.Client, l *applogger.Logger) *CHArchive {
	return &CHArchive{ch: ch, l: l, now: time.Now}
}

func (a *CHArchive) Init(ctx context.Context) error {
	return a.ch.InitSchema(ctx, clickhouseArchiveSchema)
}

func (a *CHArchive) Archive(ctx context.Context, result models.TickerResult) error {
	if result.Empty() {
		return nil
	}
	start := time.Now()
	archived := a.now().UTC()

	signals := make([][]any, 0, len(result.Signals)+len(result.Trades))
	for _, s := range result.Signals {
		signals = append(signals, signalArchiveRow(s, archived))
	}
	trades := make([][]any, 0, len(result.Trades))
	for _, t := range result.Trades {
		signals = append(signals, signalArchiveRow(t.Signal, archived))
		trades = append(trades, []any{
			t.ID, t.Ticker, string(t.Mode), string(t.Status), t.EntryDate, t.CloseDate,
			t.EntryPrice, t.ClosePrice, t.ProfitLossPct, uint16(t.HoldingDays), boolToUint8(t.AmbiguousBar), archived,
		})
	}

	if err := a.ch.InsertBatch(ctx, qArchiveSignal, signals); err != nil {
		a.logError("signal_archive", result.Ticker, err)
		return fmt.Errorf("archive signals %s: %w", result.Ticker, err)
	}
	if err := a.ch.InsertBatch(ctx, qArchiveTrade, trades); err != nil {
		a.logError("trade_archive", result.Ticker, err)
		return fmt.Errorf("archive trades %s: %w", result.Ticker, err)
	}
	if a.l != nil {
		a.l.Debug("clickhouse archive ok",
			applogger.String("ticker", result.Ticker),
			applogger.Int("signals", len(signals)),
			applogger.Int("trades", len(trades)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

func (a *CHArchive) logError(table, ticker string, err error) {
	if a.l == nil {
		return
	}
	a.l.Error("clickhouse archive insert error",
		applogger.String("table", table),
		applogger.String("ticker", ticker),
		applogger.Error(err),
	)
}

// Close is a no-op: the client is shared with the bar source and closed by the app.
func (a *CHArchive) Close() error {
	return nil
}

func signalArchiveRow(s models.Signal, archived time.Time) []any {
	snap := s.Snapshot.Sanitized()
	return []any{
		s.ID, s.Ticker, s.Setup, string(s.Mode), string(s.Status), s.GenerationDate, s.EntryDate, s.CreatedAt,
		s.EntryPrice, s.StopLoss, s.TakeProfit, snap.Metrics.ATR14, snap.Score.AQMScore, snap.Score.JNorm,
		snap.Score.NablaNorm, snap.Score.MNorm, snap.Score.PercentileThreshold, archived,
	}
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
