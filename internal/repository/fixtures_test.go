package repository

import (
	"time"

	"FieldScan/internal/domain/models"
)

var day0 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func fixtureSignal(id, ticker string, mode models.ScanMode, status models.SignalStatus, gen time.Time) models.Signal {
	return models.Signal{
		ID:             id,
		Ticker:         ticker,
		Setup:          "FIELD_AQM",
		Mode:           mode,
		EntryPrice:     100,
		StopLoss:       96,
		TakeProfit:     110,
		GenerationDate: gen,
		EntryDate:      gen.AddDate(0, 0, 1),
		CreatedAt:      gen,
		Status:         status,
		Snapshot: models.Snapshot{
			Bar:     models.PriceBar{Date: gen, Open: 99, High: 101, Low: 98, Close: 100, Volume: 1e6},
			Metrics: models.DerivedMetrics{ATR14: 2, J: 1.5},
			Score:   models.NormalizedScore{AQMScore: 2.1, MNorm: -0.8, PercentileThreshold: 1.9},
		},
	}
}

func fixtureTrade(sig models.Signal, status models.SignalStatus, closePrice, pnl float64, days int) models.ResolvedTrade {
	sig.Status = status
	return models.ResolvedTrade{
		Signal:        sig,
		CloseDate:     sig.EntryDate.AddDate(0, 0, days),
		ClosePrice:    closePrice,
		ProfitLossPct: pnl,
		HoldingDays:   days,
	}
}
