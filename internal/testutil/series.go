// Package testutil builds deterministic synthetic series for package tests.
package testutil

import (
	"math"
	"math/rand"
	"time"

	"FieldScan/internal/domain/models"
)

// Start is the first bar date of every synthetic series.
var Start = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

// TradingDays returns n weekday dates starting at Start.
func TradingDays(n int) []time.Time {
	out := make([]time.Time, 0, n)
	d := Start
	for len(out) < n {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out = append(out, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return out
}

// Bars generates a random walk around 100 with the given seed.
func Bars(n int, seed int64) []models.PriceBar {
	r := rand.New(rand.NewSource(seed))
	days := TradingDays(n)
	out := make([]models.PriceBar, n)
	price := 100.0
	for i, d := range days {
		open := price
		move := (r.Float64() - 0.5) * 4
		closeP := math.Max(1, open+move)
		high := math.Max(open, closeP) + r.Float64()*1.5
		low := math.Max(0.5, math.Min(open, closeP)-r.Float64()*1.5)
		out[i] = models.PriceBar{
			Date:     d,
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closeP,
			AdjClose: closeP,
			Volume:   1e6 + r.Float64()*5e5,
		}
		price = closeP
	}
	return out
}

// Flat generates n identical bars.
func Flat(n int, price float64) []models.PriceBar {
	days := TradingDays(n)
	out := make([]models.PriceBar, n)
	for i, d := range days {
		out[i] = models.PriceBar{Date: d, Open: price, High: price, Low: price, Close: price, AdjClose: price, Volume: 1000}
	}
	return out
}

// Events creates one event of type typ on each given bar index of bars.
func Events(bars []models.PriceBar, typ models.EventType, idx ...int) []models.EventRecord {
	out := make([]models.EventRecord, 0, len(idx))
	for _, i := range idx {
		out = append(out, models.EventRecord{Timestamp: bars[i].Date.Add(15 * time.Hour), Type: typ})
	}
	return out
}

// Series bundles bars and a reproducible news/insider stream.
func Series(ticker string, n int, seed int64) models.TickerSeries {
	bars := Bars(n, seed)
	r := rand.New(rand.NewSource(seed + 7))
	var news, insider []models.EventRecord
	for i := range bars {
		if r.Float64() < 0.3 {
			news = append(news, Events(bars, models.EventNews, i)...)
		}
		if r.Float64() < 0.05 {
			insider = append(insider, Events(bars, models.EventInsider, i)...)
		}
	}
	return models.TickerSeries{Ticker: ticker, Bars: bars, News: news, Insider: insider}
}
