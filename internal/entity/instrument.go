package entity

import (
	"github.com/shopspring/decimal"
)

// Instrument describes one tradable futures contract as resolved from the broker's
// contract directory.
type Instrument struct {
	Symbol         string          `json:"symbol"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Exchange       string          `json:"exchange"`
	DeliveryMonth  string          `json:"delivery_month"`
	UnderlyingKind string          `json:"underlying_kind"`
	Unit           int64           `json:"unit"`
	LimitUp        decimal.Decimal `json:"limit_up"`
	LimitDown      decimal.Decimal `json:"limit_down"`
	Reference      decimal.Decimal `json:"reference"`
}

type InstrumentSummary struct {
	Symbol string `json:"symbol"`
	Code   string `json:"code"`
	Name   string `json:"name"`
}

func (i Instrument) Summary() InstrumentSummary {
	return InstrumentSummary{Symbol: i.Symbol, Code: i.Code, Name: i.Name}
}
