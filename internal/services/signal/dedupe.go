package signal

import (
	"context"
	"fmt"
	"time"

	"FieldScan/internal/domain/models"
)

const DefaultDedupeWindow = 20 * time.Hour

// OpenSignalFinder looks up the most recent PENDING/ACTIVE signal for a ticker.
type OpenSignalFinder interface {
	LatestOpenSignal(ctx context.Context, ticker string) (*models.Signal, error)
}

// Deduper suppresses live emissions while a recent open signal exists.
type Deduper struct {
	finder OpenSignalFinder
	window time.Duration
	now    func() time.Time
}

func NewDeduper(finder OpenSignalFinder, window time.Duration, now func() time.Time) *Deduper {
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Deduper{finder: finder, window: window, now: now}
}

// Allow reports whether a new signal for ticker may be emitted.
func (d *Deduper) Allow(ctx context.Context, ticker string) (bool, error) {
	if d == nil || d.finder == nil {
		return true, nil
	}
	sig, err := d.finder.LatestOpenSignal(ctx, ticker)
	if err != nil {
		return false, fmt.Errorf("dedupe lookup %s: %w", ticker, err)
	}
	if sig == nil || !sig.Status.Open() {
		return true, nil
	}
	return d.now().Sub(sig.CreatedAt) >= d.window, nil
}
