package features

import (
	"sort"
	"time"

	"FieldScan/internal/domain/models"
)

const day = 24 * time.Hour

func sortedDays(events []models.EventRecord) []time.Time {
	out := make([]time.Time, 0, len(events))
	for _, e := range events {
		if e.Timestamp.IsZero() {
			continue
		}
		out = append(out, models.Day(e.Timestamp))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// EventDensity returns, per bar, the number of events whose calendar day lies in
// (barDay - lookbackDays, barDay], divided by lookbackDays. Events after the bar
// day are never counted.
func EventDensity(bars []models.PriceBar, events []models.EventRecord, lookbackDays int) []float64 {
	out := make([]float64, len(bars))
	if len(events) == 0 || lookbackDays <= 0 {
		return out
	}
	days := sortedDays(events)
	lb := time.Duration(lookbackDays) * day
	lo, hi := 0, 0
	for i, b := range bars {
		end := models.Day(b.Date)
		start := end.Add(-lb)
		for hi < len(days) && !days[hi].After(end) {
			hi++
		}
		for lo < hi && !days[lo].After(start) {
			lo++
		}
		out[i] = float64(hi-lo) / float64(lookbackDays)
	}
	return out
}

// DailyCounts attributes each event to the first bar on or after its calendar day
// and returns the per-bar counts. Events before the first bar's day or after the
// last bar's day are dropped.
func DailyCounts(bars []models.PriceBar, events []models.EventRecord) []float64 {
	out := make([]float64, len(bars))
	if len(events) == 0 || len(bars) == 0 {
		return out
	}
	days := sortedDays(events)
	j := 0
	first := models.Day(bars[0].Date)
	for j < len(days) && days[j].Before(first) {
		j++
	}
	for i, b := range bars {
		end := models.Day(b.Date)
		for j < len(days) && !days[j].After(end) {
			out[i]++
			j++
		}
	}
	return out
}
