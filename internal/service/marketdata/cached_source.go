package marketdata

import (
	"context"
	"errors"
	"time"

	"FieldScan/internal/domain/models"
	"FieldScan/internal/domain/repository"
	svcmetrics "FieldScan/internal/service/metrics"
	"FieldScan/pkg/cache"
	applogger "FieldScan/pkg/logger"
)

const seriesPrefix = "series"

// CachedSource memoizes a MarketData source per ticker and calendar day.
// Concurrent misses for the same ticker are collapsed with a short lock;
// the loser fetches without writing back.
type CachedSource struct {
	inner repository.MarketData
	cache cache.Service
	ttl   time.Duration
	l     *applogger.Logger
	now   func() time.Time
}

func NewCachedSource(inner repository.MarketData, c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &CachedSource{inner: inner, cache: c, ttl: ttl, l: l, now: time.Now}
}

func (s *CachedSource) Series(ctx context.Context, ticker string) (*models.TickerSeries, error) {
	key := cache.DayKey(seriesPrefix, ticker, s.now())

	var cached models.TickerSeries
	err := s.cache.Get(ctx, key, &cached)
	switch {
	case err == nil:
		svcmetrics.CacheLookups.WithLabelValues("hit").Inc()
		return &cached, nil
	case !errors.Is(err, cache.ErrCacheMiss):
		svcmetrics.CacheLookups.WithLabelValues("error").Inc()
		s.l.Warn("series cache read failed", applogger.String("ticker", ticker), applogger.Error(err))
	default:
		svcmetrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	lockKey := cache.Key(key, "lock")
	owner, lockErr := s.cache.TryLock(ctx, lockKey, 30*time.Second)
	if lockErr != nil {
		owner = false
	}

	series, err := s.inner.Series(ctx, ticker)
	if err != nil {
		if owner {
			_ = s.cache.Unlock(ctx, lockKey)
		}
		return nil, err
	}
	if owner {
		if err := s.cache.Set(ctx, key, series, s.ttl); err != nil {
			s.l.Warn("series cache write failed", applogger.String("ticker", ticker), applogger.Error(err))
		}
		_ = s.cache.Unlock(ctx, lockKey)
	}
	return series, nil
}

// Invalidate drops every cached series.
func (s *CachedSource) Invalidate(ctx context.Context) error {
	return s.cache.DeleteByPattern(ctx, cache.BuildPattern(seriesPrefix))
}
