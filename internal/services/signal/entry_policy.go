package signal

import "FieldScan/internal/domain/models"

// EntryPolicy decides which bars are evaluated and at what price a triggered bar enters.
type EntryPolicy interface {
	Mode() models.ScanMode
	// Range returns the half-open index range [from, to) of bars to evaluate,
	// given n bars and the history buffer. A bar is scored once buffer bars
	// exist up to and including it, so the first candidate index is buffer-1.
	Range(n, buffer int) (from, to int)
	// Entry returns the entry price and the index of the entry bar for a trigger on bar i.
	Entry(bars []models.PriceBar, i int) (price float64, entryIdx int, ok bool)
}

// NextOpen enters on the open of the bar after the trigger.
type NextOpen struct{}

// Mode returns ModeBacktest.
func (NextOpen) Mode() models.ScanMode { return models.ModeBacktest }

// Range stops before the last bar, which has no next open to enter on.
func (NextOpen) Range(n, buffer int) (int, int) {
	from := max(buffer-1, 0)
	if n-1 <= from {
		return n, n
	}
	return from, n - 1
}

// Entry returns the open of bar i+1.
func (NextOpen) Entry(bars []models.PriceBar, i int) (float64, int, bool) {
	if i < 0 || i+1 >= len(bars) {
		return 0, 0, false
	}
	return bars[i+1].Open, i + 1, true
}

// LatestClose enters at the close of the latest bar. Only the latest bar is evaluated.
type LatestClose struct{}

// Mode returns ModeLive.
func (LatestClose) Mode() models.ScanMode { return models.ModeLive }

// Range is the last bar once it is scored.
func (LatestClose) Range(n, buffer int) (int, int) {
	if n == 0 || n-1 < buffer-1 {
		return n, n
	}
	return n - 1, n
}

// Entry returns the close of bar i, which must be the latest.
func (LatestClose) Entry(bars []models.PriceBar, i int) (float64, int, bool) {
	if i < 0 || i != len(bars)-1 {
		return 0, 0, false
	}
	return bars[i].Close, i, true
}

// PolicyFor maps a scan mode to its entry policy.
func PolicyFor(mode models.ScanMode) EntryPolicy {
	if mode == models.ModeLive {
		return LatestClose{}
	}
	return NextOpen{}
}
