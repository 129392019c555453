package models

import "time"

// TickerResult is the output of one ticker's pipeline run.
type TickerResult struct {
	Ticker    string
	Evaluated int
	Signals   []Signal
	Trades    []ResolvedTrade
}

// Empty reports whether nothing needs persisting.
func (r TickerResult) Empty() bool { return len(r.Signals) == 0 && len(r.Trades) == 0 }

// ScanProgress is what the dashboard polls.
type ScanProgress struct {
	Running   bool      `json:"running"`
	Mode      ScanMode  `json:"mode,omitempty"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	StartedAt time.Time `json:"started_at,omitempty"`
	LastLine  string    `json:"last_line,omitempty"`
	Lines     []string  `json:"lines,omitempty"`
}

// ScanResult aggregates one batch.
type ScanResult struct {
	Mode       ScanMode        `json:"mode"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Total      int             `json:"total"`
	Processed  int             `json:"processed"`
	Skipped    int             `json:"skipped"`
	Failed     int             `json:"failed"`
	Cancelled  bool            `json:"cancelled"`
	Signals    []Signal        `json:"signals"`
	Trades     []ResolvedTrade `json:"trades"`
}

// ScanSummary is ScanResult without the records.
type ScanSummary struct {
	Mode       ScanMode  `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Total      int       `json:"total"`
	Processed  int       `json:"processed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Cancelled  bool      `json:"cancelled"`
	Signals    int       `json:"signals"`
	Trades     int       `json:"trades"`
}

func (r *ScanResult) Summary() ScanSummary {
	return ScanSummary{
		Mode:       r.Mode,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Total:      r.Total,
		Processed:  r.Processed,
		Skipped:    r.Skipped,
		Failed:     r.Failed,
		Cancelled:  r.Cancelled,
		Signals:    len(r.Signals),
		Trades:     len(r.Trades),
	}
}

// SignalQuery filters stored signals.
type SignalQuery struct {
	Ticker string
	Status SignalStatus
	Mode   ScanMode
	Limit  int
}

// TradeQuery filters stored trades.
type TradeQuery struct {
	Ticker string
	From   time.Time
	To     time.Time
	Limit  int
}

// ReviewSummary reports one pass over open live signals.
type ReviewSummary struct {
	Reviewed  int             `json:"reviewed"`
	Activated int             `json:"activated"`
	Closed    int             `json:"closed"`
	Unchanged int             `json:"unchanged"`
	Failed    int             `json:"failed"`
	Trades    []ResolvedTrade `json:"trades,omitempty"`
}
