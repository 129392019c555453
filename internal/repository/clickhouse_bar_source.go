package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"FieldScan/internal/domain/models"
	pkgch "FieldScan/pkg/clickhouse"
	applogger "FieldScan/pkg/logger"
)

// CHBarSource implements MarketData and Universe over the warehouse tables
// daily_bars and ticker_events.
type CHBarSource struct {
	db   *sql.DB
	l    *applogger.Logger
	days int
	now  func() time.Time
}

func NewCHBarSource(ch *pkgch.Client, historyDays int, l *applogger.Logger) *CHBarSource {
	return &CHBarSource{db: ch.DB(), l: l, days: historyDays, now: time.Now}
}

const (
	qDailyBars = `
        SELECT date, open, high, low, close, adj_close, volume
        FROM daily_bars FINAL
        WHERE ticker = ? AND date >= ?
        ORDER BY date ASC
    `
	qTickerEvents = `
        SELECT ts, type, payload
        FROM ticker_events
        WHERE ticker = ? AND ts >= ?
        ORDER BY ts ASC
    `
	qTickers = `SELECT DISTINCT ticker FROM daily_bars ORDER BY ticker`
)

func (s *CHBarSource) since() time.Time {
	if s.days <= 0 {
		return time.Time{}
	}
	return models.Day(s.now()).AddDate(0, 0, -s.days)
}

func (s *CHBarSource) Series(ctx context.Context, ticker string) (*models.TickerSeries, error) {
	start := time.Now()
	from := s.since()

	bars, err := s.bars(ctx, ticker, from)
	if err != nil {
		s.logError("daily_bars", ticker, err)
		return nil, err
	}
	events, err := s.events(ctx, ticker, from)
	if err != nil {
		s.logError("ticker_events", ticker, err)
		return nil, err
	}

	series := &models.TickerSeries{Ticker: ticker, Bars: bars}
	for _, ev := range events {
		switch ev.Type {
		case models.EventInsider:
			series.Insider = append(series.Insider, ev)
		case models.EventNews:
			series.News = append(series.News, ev)
		}
	}
	if s.l != nil {
		s.l.Debug("clickhouse series ok",
			applogger.String("ticker", ticker),
			applogger.Int("bars", len(bars)),
			applogger.Int("events", len(events)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return series, nil
}

func (s *CHBarSource) bars(ctx context.Context, ticker string, from time.Time) ([]models.PriceBar, error) {
	rows, err := s.db.QueryContext(ctx, qDailyBars, ticker, from)
	if err != nil {
		return nil, fmt.Errorf("get bars %s: %w", ticker, err)
	}
	defer rows.Close()

	out := make([]models.PriceBar, 0, 512)
	for rows.Next() {
		var b models.PriceBar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Date = models.Day(b.Date)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHBarSource) events(ctx context.Context, ticker string, from time.Time) ([]models.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, qTickerEvents, ticker, from)
	if err != nil {
		return nil, fmt.Errorf("get events %s: %w", ticker, err)
	}
	defer rows.Close()

	var out []models.EventRecord
	for rows.Next() {
		var (
			ev      models.EventRecord
			typ     string
			payload string
		)
		if err := rows.Scan(&ev.Timestamp, &typ, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = models.EventType(typ)
		if payload != "" {
			// payload is audit-only; a malformed blob does not drop the event
			_ = sonic.UnmarshalString(payload, &ev.Payload)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// Tickers lists every ticker with stored bars.
func (s *CHBarSource) Tickers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, qTickers)
	if err != nil {
		return nil, fmt.Errorf("list tickers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan ticker: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *CHBarSource) logError(table, ticker string, err error) {
	if s.l == nil {
		return
	}
	s.l.Error("clickhouse series query error",
		applogger.String("table", table),
		applogger.String("ticker", ticker),
		applogger.Error(err),
	)
}
