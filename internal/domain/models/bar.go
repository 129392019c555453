package models

import "time"

// PriceBar is one daily OHLCV record. AdjClose is zero when the feed has no adjusted series.
type PriceBar struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adj_close"`
	Volume   float64   `json:"volume"`
}

// ReturnBasis is the price daily returns are computed on.
func (b PriceBar) ReturnBasis() float64 {
	if b.AdjClose > 0 {
		return b.AdjClose
	}
	return b.Close
}

type EventType string

const (
	EventInsider EventType = "insider"
	EventNews    EventType = "news"
)

// EventRecord is a timestamped side input. Payload is kept for audit only.
type EventRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Payload   map[string]string `json:"payload,omitempty"`
}

// TickerSeries is everything the engine reads for one ticker.
type TickerSeries struct {
	Ticker   string        `json:"ticker"`
	Bars     []PriceBar    `json:"bars"`
	Adjusted []PriceBar    `json:"adjusted,omitempty"`
	Insider  []EventRecord `json:"insider,omitempty"`
	News     []EventRecord `json:"news,omitempty"`
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
