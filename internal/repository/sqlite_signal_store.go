package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"FieldScan/internal/domain/models"
	domrepo "FieldScan/internal/domain/repository"
	pkgsqlite "FieldScan/pkg/sqlite"
)

// SQLiteSignalStore implements SignalStore over database/sql with the
// modernc SQLite driver.
type SQLiteSignalStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteSignalStore(db *sql.DB) *SQLiteSignalStore {
	return &SQLiteSignalStore{db: db, now: time.Now}
}

func (s *SQLiteSignalStore) Init(ctx context.Context) error {
	return pkgsqlite.Migrate(ctx, s.db, sqliteSchema)
}

func txExec(tx *sql.Tx) execFunc {
	return func(ctx context.Context, q string, args ...any) (int64, error) {
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}
}

func (s *SQLiteSignalStore) inTx(ctx context.Context, fn func(exec execFunc) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("commit tx: %w", cerr)
		}
	}()
	return fn(txExec(tx))
}

func (s *SQLiteSignalStore) SaveTickerResults(ctx context.Context, result models.TickerResult) error {
	if result.Empty() {
		return nil
	}
	now := s.now()
	return s.inTx(ctx, func(exec execFunc) error {
		return writeTickerResult(ctx, exec, result, now)
	})
}

func (s *SQLiteSignalStore) LatestOpenSignal(ctx context.Context, ticker string) (*models.Signal, error) {
	sig, err := scanSignal(s.db.QueryRowContext(ctx, qLatestOpenSignal, ticker))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest open signal %s: %w", ticker, err)
	}
	return &sig, nil
}

func (s *SQLiteSignalStore) OpenSignals(ctx context.Context, mode models.ScanMode) ([]models.Signal, error) {
	rows, err := s.db.QueryContext(ctx, qOpenSignals, string(mode))
	if err != nil {
		return nil, fmt.Errorf("open signals: %w", err)
	}
	defer rows.Close()
	return collectSignals(rows)
}

func (s *SQLiteSignalStore) UpdateStatus(ctx context.Context, id string, status models.SignalStatus) error {
	res, err := s.db.ExecContext(ctx, qUpdateStatus, string(status), toMillis(s.now()), id)
	if err != nil {
		return fmt.Errorf("update status %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status %s: %w", id, err)
	}
	if n == 0 {
		return domrepo.ErrNotFound
	}
	return nil
}

func (s *SQLiteSignalStore) CloseSignal(ctx context.Context, trade models.ResolvedTrade) error {
	now := s.now()
	return s.inTx(ctx, func(exec execFunc) error {
		return writeTrade(ctx, exec, trade, now)
	})
}

func (s *SQLiteSignalStore) ListSignals(ctx context.Context, q models.SignalQuery) ([]models.Signal, error) {
	query, args := listSignalsQuery(q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()
	return collectSignals(rows)
}

func (s *SQLiteSignalStore) ListTrades(ctx context.Context, q models.TradeQuery) ([]models.ResolvedTrade, error) {
	query, args := listTradesQuery(q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

func (s *SQLiteSignalStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteSignalStore) Close() error {
	return s.db.Close()
}
