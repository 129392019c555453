package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"FieldScan/internal/domain/models"
	domrepo "FieldScan/internal/domain/repository"
	"FieldScan/pkg/postgres"
)

// PgSignalStore implements SignalStore on pgx through the tx manager.
type PgSignalStore struct {
	tm  *postgres.PgTxManager
	now func() time.Time
}

func NewPgSignalStore(tm *postgres.PgTxManager) *PgSignalStore {
	return &PgSignalStore{tm: tm, now: time.Now}
}

func pgExec(tx postgres.Transaction) execFunc {
	return func(ctx context.Context, q string, args ...any) (int64, error) {
		tag, err := tx.Exec(ctx, rebindDollar(q), args...)
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	}
}

func (s *PgSignalStore) Init(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PgSignalStore.Init: %w", err)
		}
	}()
	return s.tm.RunMaster(ctx, func(ctxTx context.Context, tx postgres.Transaction) error {
		for _, stmt := range postgresSchema {
			if _, err := tx.Exec(ctxTx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PgSignalStore) SaveTickerResults(ctx context.Context, result models.TickerResult) (err error) {
	if result.Empty() {
		return nil
	}
	defer func() {
		if err != nil {
			err = fmt.Errorf("PgSignalStore.SaveTickerResults %s: %w", result.Ticker, err)
		}
	}()
	now := s.now()
	return s.tm.RunMaster(ctx, func(ctxTx context.Context, tx postgres.Transaction) error {
		return writeTickerResult(ctxTx, pgExec(tx), result, now)
	})
}

func (s *PgSignalStore) LatestOpenSignal(ctx context.Context, ticker string) (*models.Signal, error) {
	sig, err := scanSignal(s.tm.Conn().QueryRow(ctx, rebindDollar(qLatestOpenSignal), ticker))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("PgSignalStore.LatestOpenSignal %s: %w", ticker, err)
	}
	return &sig, nil
}

func (s *PgSignalStore) OpenSignals(ctx context.Context, mode models.ScanMode) ([]models.Signal, error) {
	rows, err := s.tm.Conn().Query(ctx, rebindDollar(qOpenSignals), string(mode))
	if err != nil {
		return nil, fmt.Errorf("PgSignalStore.OpenSignals: %w", err)
	}
	defer rows.Close()
	return collectSignals(rows)
}

func (s *PgSignalStore) UpdateStatus(ctx context.Context, id string, status models.SignalStatus) error {
	tag, err := s.tm.Conn().Exec(ctx, rebindDollar(qUpdateStatus), string(status), toMillis(s.now()), id)
	if err != nil {
		return fmt.Errorf("PgSignalStore.UpdateStatus %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domrepo.ErrNotFound
	}
	return nil
}

func (s *PgSignalStore) CloseSignal(ctx context.Context, trade models.ResolvedTrade) error {
	now := s.now()
	err := s.tm.RunMaster(ctx, func(ctxTx context.Context, tx postgres.Transaction) error {
		return writeTrade(ctxTx, pgExec(tx), trade, now)
	})
	if err != nil {
		return fmt.Errorf("PgSignalStore.CloseSignal %s: %w", trade.ID, err)
	}
	return nil
}

func (s *PgSignalStore) ListSignals(ctx context.Context, q models.SignalQuery) ([]models.Signal, error) {
	query, args := listSignalsQuery(q)
	rows, err := s.tm.Conn().Query(ctx, rebindDollar(query), args...)
	if err != nil {
		return nil, fmt.Errorf("PgSignalStore.ListSignals: %w", err)
	}
	defer rows.Close()
	return collectSignals(rows)
}

func (s *PgSignalStore) ListTrades(ctx context.Context, q models.TradeQuery) ([]models.ResolvedTrade, error) {
	query, args := listTradesQuery(q)
	rows, err := s.tm.Conn().Query(ctx, rebindDollar(query), args...)
	if err != nil {
		return nil, fmt.Errorf("PgSignalStore.ListTrades: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

func (s *PgSignalStore) Health(ctx context.Context) error {
	return s.tm.Ping(ctx)
}

func (s *PgSignalStore) Close() error {
	s.tm.Close()
	return nil
}
