package models

import (
	"math"
	"time"
)

// DerivedMetrics holds the per-bar features. Warm-up bars may carry NaN.
type DerivedMetrics struct {
	ATR14              float64 `json:"atr_14"`
	PriceGravity       float64 `json:"price_gravity"`
	TimeDilation       float64 `json:"time_dilation"`
	InstitutionalSync  float64 `json:"institutional_sync"`
	RetailHerding      float64 `json:"retail_herding"`
	InformationEntropy float64 `json:"information_entropy"`
	NormalizedVolume   float64 `json:"normalized_volume"`
	NormalizedNews     float64 `json:"normalized_news"`
	MSq                float64 `json:"m_sq"`
	J                  float64 `json:"J"`
}

// NablaSq is the volatility-gravity proxy fed to normalization.
func (m DerivedMetrics) NablaSq() float64 { return m.PriceGravity }

type NormalizedScore struct {
	JNorm               float64 `json:"J_norm"`
	NablaNorm           float64 `json:"nabla_norm"`
	MNorm               float64 `json:"m_norm"`
	AQMScore            float64 `json:"aqm_score"`
	PercentileThreshold float64 `json:"percentile_threshold"`
}

// Snapshot is the audit record attached to a signal.
type Snapshot struct {
	Bar     PriceBar        `json:"bar"`
	Metrics DerivedMetrics  `json:"metrics"`
	Score   NormalizedScore `json:"score"`
}

// Sanitized returns a copy with non-finite values replaced by 0.
func (s Snapshot) Sanitized() Snapshot {
	f := func(v *float64) {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			*v = 0
		}
	}
	for _, p := range []*float64{
		&s.Metrics.ATR14, &s.Metrics.PriceGravity, &s.Metrics.TimeDilation,
		&s.Metrics.InstitutionalSync, &s.Metrics.RetailHerding, &s.Metrics.InformationEntropy,
		&s.Metrics.NormalizedVolume, &s.Metrics.NormalizedNews, &s.Metrics.MSq, &s.Metrics.J,
		&s.Score.JNorm, &s.Score.NablaNorm, &s.Score.MNorm, &s.Score.AQMScore, &s.Score.PercentileThreshold,
	} {
		f(p)
	}
	return s
}

type SignalStatus string

const (
	StatusPending    SignalStatus = "PENDING"
	StatusActive     SignalStatus = "ACTIVE"
	StatusClosedTP   SignalStatus = "CLOSED_TP"
	StatusClosedSL   SignalStatus = "CLOSED_SL"
	StatusClosedTime SignalStatus = "CLOSED_TIME"
)

// Open reports whether the signal still waits for resolution.
func (s SignalStatus) Open() bool { return s == StatusPending || s == StatusActive }

func (s SignalStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusClosedTP, StatusClosedSL, StatusClosedTime:
		return true
	}
	return false
}

type ScanMode string

const (
	ModeBacktest ScanMode = "backtest"
	ModeLive     ScanMode = "live"
)

func (m ScanMode) Valid() bool { return m == ModeBacktest || m == ModeLive }

// Signal is a LONG trade candidate.
type Signal struct {
	ID             string       `json:"id"`
	Ticker         string       `json:"ticker"`
	Setup          string       `json:"setup"`
	Mode           ScanMode     `json:"mode"`
	EntryPrice     float64      `json:"entry_price"`
	StopLoss       float64      `json:"stop_loss"`
	TakeProfit     float64      `json:"take_profit"`
	GenerationDate time.Time    `json:"generation_date"`
	EntryDate      time.Time    `json:"entry_date"`
	CreatedAt      time.Time    `json:"created_at"`
	Status         SignalStatus `json:"status"`
	Snapshot       Snapshot     `json:"snapshot"`
}

// ResolvedTrade is a closed signal. It is terminal.
type ResolvedTrade struct {
	Signal
	CloseDate     time.Time `json:"close_date"`
	ClosePrice    float64   `json:"close_price"`
	ProfitLossPct float64   `json:"final_profit_loss_percent"`
	HoldingDays   int       `json:"holding_days"`
	AmbiguousBar  bool      `json:"ambiguous_bar"`
}
