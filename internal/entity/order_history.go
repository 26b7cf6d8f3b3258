package entity

import (
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

type HistoryStatus string

const (
	HistoryStatusPending  HistoryStatus = "pending"
	HistoryStatusSuccess  HistoryStatus = "success"
	HistoryStatusFailed   HistoryStatus = "failed"
	HistoryStatusNoAction HistoryStatus = "no_action"
)

func (s HistoryStatus) Valid() bool {
	switch s {
	case HistoryStatusPending, HistoryStatusSuccess, HistoryStatusFailed, HistoryStatusNoAction:
		return true
	default:
		return false
	}
}

type OrderHistory struct {
	ID            int64               `db:"id" json:"id"`
	RequestID     null.String         `db:"request_id" json:"request_id"`
	Symbol        string              `db:"symbol" json:"symbol"`
	Action        OrderAction         `db:"action" json:"action"`
	Quantity      int64               `db:"quantity" json:"quantity"`
	Simulation    bool                `db:"simulation" json:"simulation"`
	Status        HistoryStatus       `db:"status" json:"status"`
	OrderID       null.String         `db:"order_id" json:"order_id"`
	OrderResult   null.String         `db:"order_result" json:"order_result"`
	ErrorMessage  null.String         `db:"error_message" json:"error_message"`
	FillStatus    null.String         `db:"fill_status" json:"fill_status"`
	FillQuantity  null.Int            `db:"fill_quantity" json:"fill_quantity"`
	FillPrice     decimal.NullDecimal `db:"fill_price" json:"fill_price"`
	FillCheckedAt null.Time           `db:"fill_checked_at" json:"fill_checked_at"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at" json:"updated_at"`
}

func (o OrderHistory) TableName() string {
	return "order_histories"
}

func (o OrderHistory) Mode() TradingMode {
	return TradingModeFromSimulation(o.Simulation)
}

func (o OrderHistory) Intent() OrderIntent {
	return OrderIntent{Action: o.Action, Quantity: o.Quantity, Symbol: o.Symbol}
}

type OrderHistoryFilter struct {
	Symbol     string
	Action     string
	Status     string
	FillStatus string
	// StartDate is inclusive, EndDate exclusive.
	StartDate *time.Time
	EndDate   *time.Time
	Limit     uint64
	Offset    uint64
}

// ApplyFill copies a reconciled status into the fill columns. The price stays null
// until at least one deal exists.
func (o *OrderHistory) ApplyFill(status OrderStatus, checkedAt time.Time) {
	o.FillStatus = null.StringFrom(string(status.State))
	o.FillQuantity = null.IntFrom(status.DealQuantity)
	o.FillPrice = decimal.NullDecimal{}
	if len(status.Deals) > 0 {
		o.FillPrice = decimal.NewNullDecimal(status.FillAvgPrice())
	}
	o.FillCheckedAt = null.TimeFrom(checkedAt)
}

// FillOpen reports whether the stored fill state can still change on the broker side.
func (o OrderHistory) FillOpen() bool {
	if !o.FillStatus.Valid {
		return false
	}
	state, ok := ParseOrderState(o.FillStatus.String)
	return ok && state.IsOpen()
}
