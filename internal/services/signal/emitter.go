package signal

import (
	"fmt"
	"time"

	"FieldScan/internal/domain/models"
	"FieldScan/internal/services/stats"

	"github.com/google/uuid"
)

var signalNamespace = uuid.MustParse("3f5b8a62-6c2e-4d7a-9b61-0f2d7c9e4a18")

const DefaultSetup = "FIELD_AQM"

type Config struct {
	Setup        string
	TPMultiplier float64
	SLMultiplier float64
}

// Emitter turns a triggered bar into a Signal.
type Emitter struct {
	cfg    Config
	policy EntryPolicy
	now    func() time.Time
}

type Option func(*Emitter)

// WithClock overrides the wall clock used for CreatedAt in live mode.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEmitter(cfg Config, policy EntryPolicy, opts ...Option) *Emitter {
	if cfg.Setup == "" {
		cfg.Setup = DefaultSetup
	}
	if !(cfg.TPMultiplier > 0) {
		cfg.TPMultiplier = 5.0
	}
	if !(cfg.SLMultiplier > 0) {
		cfg.SLMultiplier = 2.0
	}
	if policy == nil {
		policy = NextOpen{}
	}
	e := &Emitter{cfg: cfg, policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Emitter) Policy() EntryPolicy { return e.policy }

// Emit builds the signal for a trigger on bar i. It returns the entry bar index.
// A missing entry bar, a non-positive entry price or a non-positive ATR yields ok=false.
func (e *Emitter) Emit(ticker string, bars []models.PriceBar, i int, m models.DerivedMetrics, s models.NormalizedScore) (models.Signal, int, bool) {
	price, entryIdx, ok := e.policy.Entry(bars, i)
	if !ok || !stats.Finite(price) || price <= 0 {
		return models.Signal{}, 0, false
	}
	atr := m.ATR14
	if !stats.Finite(atr) || atr <= 0 {
		return models.Signal{}, 0, false
	}

	tp := price + e.cfg.TPMultiplier*atr
	sl := price - e.cfg.SLMultiplier*atr
	if !(sl < price && price < tp) {
		return models.Signal{}, 0, false
	}

	mode := e.policy.Mode()
	gen := bars[i].Date
	sig := models.Signal{
		ID:             SignalID(ticker, e.cfg.Setup, mode, gen),
		Ticker:         ticker,
		Setup:          e.cfg.Setup,
		Mode:           mode,
		EntryPrice:     price,
		StopLoss:       sl,
		TakeProfit:     tp,
		GenerationDate: gen,
		EntryDate:      bars[entryIdx].Date,
		CreatedAt:      gen,
		Status:         models.StatusActive,
		Snapshot:       models.Snapshot{Bar: bars[i], Metrics: m, Score: s}.Sanitized(),
	}
	if mode == models.ModeLive {
		sig.CreatedAt = e.now().UTC()
		sig.Status = models.StatusPending
	}
	return sig, entryIdx, true
}

// SignalID is a UUIDv5 over the identifying fields, stable across runs.
func SignalID(ticker, setup string, mode models.ScanMode, gen time.Time) string {
	name := fmt.Sprintf("%s|%s|%s|%s", ticker, setup, mode, gen.UTC().Format("2006-01-02"))
	return uuid.NewSHA1(signalNamespace, []byte(name)).String()
}
