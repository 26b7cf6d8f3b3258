package entity

import (
	"strings"
)

type OrderAction string

const (
	OrderActionLongEntry  OrderAction = "long_entry"
	OrderActionShortEntry OrderAction = "short_entry"
	OrderActionLongExit   OrderAction = "long_exit"
	OrderActionShortExit  OrderAction = "short_exit"
)

func ParseOrderAction(raw string) (OrderAction, bool) {
	action := OrderAction(strings.ToLower(strings.TrimSpace(raw)))
	return action, action.Valid()
}

func (a OrderAction) Valid() bool {
	switch a {
	case OrderActionLongEntry, OrderActionShortEntry, OrderActionLongExit, OrderActionShortExit:
		return true
	default:
		return false
	}
}

// IsEntry reports whether the action opens or adds exposure. Only entries use the
// caller supplied quantity.
func (a OrderAction) IsEntry() bool {
	return a == OrderActionLongEntry || a == OrderActionShortEntry
}

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

type PriceType string

const (
	PriceTypeMarket PriceType = "MKT"
)

type TimeInForce string

const (
	TimeInForceIOC TimeInForce = "IOC"
)

type OpenCloseType string

const (
	OpenCloseTypeAuto OpenCloseType = "Auto"
)

type OrderIntent struct {
	Action   OrderAction `json:"action"`
	Quantity int64       `json:"quantity"`
	Symbol   string      `json:"symbol"`
}

// ComputedOrder is a single directional order. Quantity is always positive.
type ComputedOrder struct {
	Side       OrderSide  `json:"side"`
	Quantity   int64      `json:"quantity"`
	Instrument Instrument `json:"instrument"`
}

// SubmitOutcome is the result of sizing and submitting one intent. Trade is nil when
// the intent resolved to no action.
type SubmitOutcome struct {
	Intent     OrderIntent    `json:"intent"`
	Instrument Instrument     `json:"instrument"`
	Position   int64          `json:"position"`
	Order      *ComputedOrder `json:"order,omitempty"`
	Trade      *Trade         `json:"trade,omitempty"`
}

func (o *SubmitOutcome) NoAction() bool {
	return o == nil || o.Trade == nil
}
