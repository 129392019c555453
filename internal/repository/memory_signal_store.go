package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"FieldScan/internal/domain/models"
	domrepo "FieldScan/internal/domain/repository"
)

var errInjected = errors.New("memory store: injected failure")

// MemorySignalStore keeps everything in process. It backs the "memory"
// storage backend and usecase tests.
type MemorySignalStore struct {
	mu      sync.RWMutex
	signals map[string]models.Signal
	trades  map[string]models.ResolvedTrade
	// FailTicker makes SaveTickerResults fail for one ticker, for failure tests.
	FailTicker string
}

func NewMemorySignalStore() *MemorySignalStore {
	return &MemorySignalStore{
		signals: make(map[string]models.Signal),
		trades:  make(map[string]models.ResolvedTrade),
	}
}

func (s *MemorySignalStore) Init(context.Context) error { return nil }

func (s *MemorySignalStore) SaveTickerResults(_ context.Context, result models.TickerResult) error {
	if result.Ticker != "" && result.Ticker == s.FailTicker {
		return errInjected
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sig := range result.Signals {
		if _, exists := s.signals[sig.ID]; !exists {
			sig.Snapshot = sig.Snapshot.Sanitized()
			s.signals[sig.ID] = sig
		}
	}
	for _, t := range result.Trades {
		s.putTradeLocked(t)
	}
	return nil
}

func (s *MemorySignalStore) putTradeLocked(t models.ResolvedTrade) {
	sig := t.Signal
	if existing, ok := s.signals[sig.ID]; ok {
		existing.Status = sig.Status
		sig = existing
	} else {
		sig.Snapshot = sig.Snapshot.Sanitized()
	}
	s.signals[sig.ID] = sig
	if _, exists := s.trades[sig.ID]; !exists {
		t.Signal = sig
		s.trades[sig.ID] = t
	}
}

func (s *MemorySignalStore) LatestOpenSignal(_ context.Context, ticker string) (*models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.Signal
	for _, sig := range s.signals {
		if sig.Ticker != ticker || !sig.Status.Open() {
			continue
		}
		if latest == nil || sig.CreatedAt.After(latest.CreatedAt) {
			cp := sig
			latest = &cp
		}
	}
	return latest, nil
}

func (s *MemorySignalStore) OpenSignals(_ context.Context, mode models.ScanMode) ([]models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Signal, 0)
	for _, sig := range s.signals {
		if sig.Mode == mode && sig.Status.Open() {
			out = append(out, sig)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ticker != out[j].Ticker {
			return out[i].Ticker < out[j].Ticker
		}
		return out[i].GenerationDate.Before(out[j].GenerationDate)
	})
	return out, nil
}

func (s *MemorySignalStore) UpdateStatus(_ context.Context, id string, status models.SignalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, ok := s.signals[id]
	if !ok {
		return domrepo.ErrNotFound
	}
	sig.Status = status
	s.signals[id] = sig
	return nil
}

func (s *MemorySignalStore) CloseSignal(_ context.Context, trade models.ResolvedTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putTradeLocked(trade)
	return nil
}

func (s *MemorySignalStore) ListSignals(_ context.Context, q models.SignalQuery) ([]models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Signal, 0)
	for _, sig := range s.signals {
		if q.Ticker != "" && sig.Ticker != q.Ticker {
			continue
		}
		if q.Status != "" && sig.Status != q.Status {
			continue
		}
		if q.Mode != "" && sig.Mode != q.Mode {
			continue
		}
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].GenerationDate.Equal(out[j].GenerationDate) {
			return out[i].GenerationDate.After(out[j].GenerationDate)
		}
		return out[i].Ticker < out[j].Ticker
	})
	return truncate(out, limitOrDefault(q.Limit)), nil
}

func (s *MemorySignalStore) ListTrades(_ context.Context, q models.TradeQuery) ([]models.ResolvedTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ResolvedTrade, 0)
	for _, t := range s.trades {
		if q.Ticker != "" && t.Ticker != q.Ticker {
			continue
		}
		if !q.From.IsZero() && t.CloseDate.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && t.CloseDate.After(q.To) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CloseDate.Equal(out[j].CloseDate) {
			return out[i].CloseDate.After(out[j].CloseDate)
		}
		return out[i].Ticker < out[j].Ticker
	})
	return truncate(out, limitOrDefault(q.Limit)), nil
}

func truncate[T any](in []T, n int) []T {
	if len(in) > n {
		return in[:n]
	}
	return in
}

func (s *MemorySignalStore) Health(context.Context) error { return nil }

func (s *MemorySignalStore) Close() error { return nil }
