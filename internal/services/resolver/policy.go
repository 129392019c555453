package resolver

import (
	"fmt"
	"strings"

	"FieldScan/internal/domain/models"
)

// TieBreak decides the exit when a single daily bar touches both take-profit and stop-loss.
// Daily bars carry no intrabar ordering, so every choice is a modeling assumption.
type TieBreak int

const (
	// TPFirst credits the take-profit. This is the historical default.
	TPFirst TieBreak = iota
	// SLFirst credits the stop-loss.
	SLFirst
	// BarPath assumes an up-closing bar travels O->L->H->C and a down-closing bar O->H->L->C.
	BarPath
)

func (t TieBreak) String() string {
	switch t {
	case TPFirst:
		return "tp_first"
	case SLFirst:
		return "sl_first"
	case BarPath:
		return "bar_path"
	default:
		return fmt.Sprintf("tiebreak(%d)", int(t))
	}
}

// ParseTieBreak accepts the String forms; empty means TPFirst.
func ParseTieBreak(s string) (TieBreak, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tp_first":
		return TPFirst, nil
	case "sl_first":
		return SLFirst, nil
	case "bar_path":
		return BarPath, nil
	}
	return TPFirst, fmt.Errorf("unknown tie break %q", s)
}

// firstTouch resolves a bar against the levels of a LONG position.
func (t TieBreak) firstTouch(bar models.PriceBar, tp, sl float64) (status models.SignalStatus, price float64, hit, ambiguous bool) {
	hitTP := bar.High >= tp
	hitSL := bar.Low <= sl
	switch {
	case hitTP && !hitSL:
		return models.StatusClosedTP, tp, true, false
	case hitSL && !hitTP:
		return models.StatusClosedSL, sl, true, false
	case !hitTP && !hitSL:
		return "", 0, false, false
	}

	switch t {
	case SLFirst:
		return models.StatusClosedSL, sl, true, true
	case BarPath:
		if bar.Close >= bar.Open {
			return models.StatusClosedSL, sl, true, true
		}
		return models.StatusClosedTP, tp, true, true
	default:
		return models.StatusClosedTP, tp, true, true
	}
}
