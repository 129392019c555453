package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"FieldScan/internal/domain/models"
)

// Dates are stored as UTC unix milliseconds in both dialects so the row
// mapping below is shared.

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS signals (
		id              TEXT PRIMARY KEY,
		ticker          TEXT NOT NULL,
		setup           TEXT NOT NULL,
		mode            TEXT NOT NULL,
		entry_price     REAL NOT NULL,
		stop_loss       REAL NOT NULL,
		take_profit     REAL NOT NULL,
		generation_date INTEGER NOT NULL,
		entry_date      INTEGER NOT NULL,
		created_at      INTEGER NOT NULL,
		status          TEXT NOT NULL,
		snapshot        TEXT NOT NULL,
		updated_at      INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_ticker_status ON signals(ticker, status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_mode_status ON signals(mode, status)`,
	`CREATE TABLE IF NOT EXISTS trades (
		signal_id     TEXT PRIMARY KEY REFERENCES signals(id),
		close_date    INTEGER NOT NULL,
		close_price   REAL NOT NULL,
		pnl_pct       REAL NOT NULL,
		holding_days  INTEGER NOT NULL,
		ambiguous_bar INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_close ON trades(close_date)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS signals (
		id              TEXT PRIMARY KEY,
		ticker          TEXT NOT NULL,
		setup           TEXT NOT NULL,
		mode            TEXT NOT NULL,
		entry_price     DOUBLE PRECISION NOT NULL,
		stop_loss       DOUBLE PRECISION NOT NULL,
		take_profit     DOUBLE PRECISION NOT NULL,
		generation_date BIGINT NOT NULL,
		entry_date      BIGINT NOT NULL,
		created_at      BIGINT NOT NULL,
		status          TEXT NOT NULL,
		snapshot        JSONB NOT NULL,
		updated_at      BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_ticker_status ON signals(ticker, status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_mode_status ON signals(mode, status)`,
	`CREATE TABLE IF NOT EXISTS trades (
		signal_id     TEXT PRIMARY KEY REFERENCES signals(id),
		close_date    BIGINT NOT NULL,
		close_price   DOUBLE PRECISION NOT NULL,
		pnl_pct       DOUBLE PRECISION NOT NULL,
		holding_days  INTEGER NOT NULL,
		ambiguous_bar BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_close ON trades(close_date)`,
}

const signalColumns = `id, ticker, setup, mode, entry_price, stop_loss, take_profit,
	generation_date, entry_date, created_at, status, snapshot`

const (
	qInsertSignal = `INSERT INTO signals (` + signalColumns + `, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`

	qUpsertClosedSignal = `INSERT INTO signals (` + signalColumns + `, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`

	qInsertTrade = `INSERT INTO trades (signal_id, close_date, close_price, pnl_pct, holding_days, ambiguous_bar)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (signal_id) DO NOTHING`

	qUpdateStatus = `UPDATE signals SET status = ?, updated_at = ? WHERE id = ?`

	qLatestOpenSignal = `SELECT ` + signalColumns + ` FROM signals
		WHERE ticker = ? AND status IN ('PENDING', 'ACTIVE')
		ORDER BY created_at DESC LIMIT 1`

	qOpenSignals = `SELECT ` + signalColumns + ` FROM signals
		WHERE mode = ? AND status IN ('PENDING', 'ACTIVE')
		ORDER BY ticker, generation_date`

	tradeSelect = `SELECT s.id, s.ticker, s.setup, s.mode, s.entry_price, s.stop_loss, s.take_profit,
		s.generation_date, s.entry_date, s.created_at, s.status, s.snapshot,
		t.close_date, t.close_price, t.pnl_pct, t.holding_days, t.ambiguous_bar
		FROM trades t JOIN signals s ON s.id = t.signal_id`
)

const defaultListLimit = 100

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// rebindDollar rewrites '?' placeholders to $1..$n for Postgres.
func rebindDollar(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 16)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func signalArgs(s models.Signal, updated time.Time) ([]any, error) {
	snap, err := sonic.Marshal(s.Snapshot.Sanitized())
	if err != nil {
		return nil, fmt.Errorf("encode snapshot %s: %w", s.ID, err)
	}
	return []any{
		s.ID, s.Ticker, s.Setup, string(s.Mode), s.EntryPrice, s.StopLoss, s.TakeProfit,
		toMillis(s.GenerationDate), toMillis(s.EntryDate), toMillis(s.CreatedAt),
		string(s.Status), string(snap), toMillis(updated),
	}, nil
}

func tradeArgs(t models.ResolvedTrade) []any {
	return []any{t.ID, toMillis(t.CloseDate), t.ClosePrice, t.ProfitLossPct, t.HoldingDays, t.AmbiguousBar}
}

// execFunc runs one statement and reports affected rows.
type execFunc func(ctx context.Context, q string, args ...any) (int64, error)

// writeTickerResult writes one ticker's records through exec, which is
// expected to be bound to an open transaction.
func writeTickerResult(ctx context.Context, exec execFunc, result models.TickerResult, now time.Time) error {
	for _, s := range result.Signals {
		args, err := signalArgs(s, now)
		if err != nil {
			return err
		}
		if _, err := exec(ctx, qInsertSignal, args...); err != nil {
			return fmt.Errorf("insert signal %s: %w", s.ID, err)
		}
	}
	for _, t := range result.Trades {
		if err := writeTrade(ctx, exec, t, now); err != nil {
			return err
		}
	}
	return nil
}

func writeTrade(ctx context.Context, exec execFunc, t models.ResolvedTrade, now time.Time) error {
	args, err := signalArgs(t.Signal, now)
	if err != nil {
		return err
	}
	if _, err := exec(ctx, qUpsertClosedSignal, args...); err != nil {
		return fmt.Errorf("close signal %s: %w", t.ID, err)
	}
	if _, err := exec(ctx, qInsertTrade, tradeArgs(t)...); err != nil {
		return fmt.Errorf("insert trade %s: %w", t.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type rowIter interface {
	rowScanner
	Next() bool
	Err() error
}

type signalRow struct {
	id, ticker, setup, mode, status string
	entry, sl, tp                   float64
	gen, entryDate, created         int64
	snapshot                        []byte
}

func (r *signalRow) dest() []any {
	return []any{&r.id, &r.ticker, &r.setup, &r.mode, &r.entry, &r.sl, &r.tp,
		&r.gen, &r.entryDate, &r.created, &r.status, &r.snapshot}
}

func (r *signalRow) signal() (models.Signal, error) {
	s := models.Signal{
		ID:             r.id,
		Ticker:         r.ticker,
		Setup:          r.setup,
		Mode:           models.ScanMode(r.mode),
		EntryPrice:     r.entry,
		StopLoss:       r.sl,
		TakeProfit:     r.tp,
		GenerationDate: fromMillis(r.gen),
		EntryDate:      fromMillis(r.entryDate),
		CreatedAt:      fromMillis(r.created),
		Status:         models.SignalStatus(r.status),
	}
	if len(r.snapshot) > 0 {
		if err := sonic.Unmarshal(r.snapshot, &s.Snapshot); err != nil {
			return s, fmt.Errorf("decode snapshot %s: %w", r.id, err)
		}
	}
	return s, nil
}

func scanSignal(sc rowScanner) (models.Signal, error) {
	var r signalRow
	if err := sc.Scan(r.dest()...); err != nil {
		return models.Signal{}, err
	}
	return r.signal()
}

func collectSignals(rows rowIter) ([]models.Signal, error) {
	out := make([]models.Signal, 0, 16)
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func collectTrades(rows rowIter) ([]models.ResolvedTrade, error) {
	out := make([]models.ResolvedTrade, 0, 16)
	for rows.Next() {
		var (
			r         signalRow
			closeDate int64
			t         models.ResolvedTrade
		)
		dest := append(r.dest(), &closeDate, &t.ClosePrice, &t.ProfitLossPct, &t.HoldingDays, &t.AmbiguousBar)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		s, err := r.signal()
		if err != nil {
			return nil, err
		}
		t.Signal = s
		t.CloseDate = fromMillis(closeDate)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func listSignalsQuery(q models.SignalQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	if q.Ticker != "" {
		where = append(where, "ticker = ?")
		args = append(args, q.Ticker)
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.Mode != "" {
		where = append(where, "mode = ?")
		args = append(args, string(q.Mode))
	}
	sb := strings.Builder{}
	sb.WriteString("SELECT " + signalColumns + " FROM signals")
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY generation_date DESC, ticker LIMIT ?")
	args = append(args, limitOrDefault(q.Limit))
	return sb.String(), args
}

func listTradesQuery(q models.TradeQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	if q.Ticker != "" {
		where = append(where, "s.ticker = ?")
		args = append(args, q.Ticker)
	}
	if !q.From.IsZero() {
		where = append(where, "t.close_date >= ?")
		args = append(args, toMillis(q.From))
	}
	if !q.To.IsZero() {
		where = append(where, "t.close_date <= ?")
		args = append(args, toMillis(q.To))
	}
	sb := strings.Builder{}
	sb.WriteString(tradeSelect)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY t.close_date DESC, s.ticker LIMIT ?")
	args = append(args, limitOrDefault(q.Limit))
	return sb.String(), args
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
