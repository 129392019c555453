package resolver

import (
	"time"

	"FieldScan/internal/domain/models"

	"github.com/shopspring/decimal"
)

const DefaultMaxHold = 5

// Position is the OPEN state of a LONG trade walking forward one bar at a time.
type Position struct {
	signal  models.Signal
	maxHold int
	tie     TieBreak
	days    int
	closed  *models.ResolvedTrade
}

// Advance feeds the next bar after entry. It returns true once the position is closed;
// later bars are ignored.
func (p *Position) Advance(bar models.PriceBar) bool {
	if p.closed != nil {
		return true
	}
	p.days++

	if status, price, hit, ambiguous := p.tie.firstTouch(bar, p.signal.TakeProfit, p.signal.StopLoss); hit {
		p.close(status, price, bar.Date, ambiguous)
		return true
	}
	if p.days >= p.maxHold {
		p.close(models.StatusClosedTime, bar.Close, bar.Date, false)
		return true
	}
	return false
}

// Days is the number of bars walked so far.
func (p *Position) Days() int { return p.days }

// Closed returns the resolved trade, or nil while open.
func (p *Position) Closed() *models.ResolvedTrade { return p.closed }

func (p *Position) close(status models.SignalStatus, price float64, date time.Time, ambiguous bool) {
	sig := p.signal
	sig.Status = status
	p.closed = &models.ResolvedTrade{
		Signal:        sig,
		CloseDate:     date,
		ClosePrice:    price,
		ProfitLossPct: ProfitLossPct(sig.EntryPrice, price),
		HoldingDays:   p.days,
		AmbiguousBar:  ambiguous,
	}
}

// ProfitLossPct is (close-entry)/entry*100 for a LONG position.
func ProfitLossPct(entry, closePrice float64) float64 {
	if entry == 0 {
		return 0
	}
	e := decimal.NewFromFloat(entry)
	c := decimal.NewFromFloat(closePrice)
	return c.Sub(e).Div(e).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// Resolver walks signals forward through daily bars.
type Resolver struct {
	maxHold int
	tie     TieBreak
}

func New(maxHold int, tie TieBreak) *Resolver {
	if maxHold < 1 {
		maxHold = DefaultMaxHold
	}
	return &Resolver{maxHold: maxHold, tie: tie}
}

func (r *Resolver) MaxHold() int { return r.maxHold }

func (r *Resolver) TieBreak() TieBreak { return r.tie }

// Open starts a position for sig.
func (r *Resolver) Open(sig models.Signal) *Position {
	return &Position{signal: sig, maxHold: r.maxHold, tie: r.tie}
}

// Resolve evaluates bars after entryIdx. ok is false when the series ends before
// the position closes; days reports how many bars were walked.
func (r *Resolver) Resolve(sig models.Signal, bars []models.PriceBar, entryIdx int) (trade models.ResolvedTrade, days int, ok bool) {
	p := r.Open(sig)
	for i := entryIdx + 1; i < len(bars); i++ {
		if p.Advance(bars[i]) {
			return *p.Closed(), p.Days(), true
		}
	}
	return models.ResolvedTrade{}, p.Days(), false
}

// EntryIndex locates the entry bar of sig in bars by calendar day. It returns -1
// when the entry day is not present.
func EntryIndex(sig models.Signal, bars []models.PriceBar) int {
	want := models.Day(sig.EntryDate)
	for i := len(bars) - 1; i >= 0; i-- {
		d := models.Day(bars[i].Date)
		if d.Equal(want) {
			return i
		}
		if d.Before(want) {
			break
		}
	}
	return -1
}
