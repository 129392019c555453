package models

// Requests for scan HTTP endpoints. Defined in domain for consistency and reuse.

type StartScanRequest struct {
	Mode    string   `json:"mode" default:"backtest" validate:"oneof=backtest live"`
	Tickers []string `json:"tickers" validate:"omitempty,max=5000,dive,ticker"`
}

type SignalsRequest struct {
	Ticker string `query:"ticker" json:"ticker" validate:"omitempty,ticker"`
	Status string `query:"status" json:"status" validate:"omitempty,oneof=PENDING ACTIVE CLOSED_TP CLOSED_SL CLOSED_TIME"`
	Mode   string `query:"mode" json:"mode" validate:"omitempty,oneof=backtest live"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=5000"`
}

type TradesRequest struct {
	Ticker string `query:"ticker" json:"ticker" validate:"omitempty,ticker"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=5000"`
}
