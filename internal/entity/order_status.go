package entity

import (
	"sync"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

type OrderState string

const (
	OrderStatePendingSubmit OrderState = "PendingSubmit"
	OrderStatePreSubmitted  OrderState = "PreSubmitted"
	OrderStateSubmitted     OrderState = "Submitted"
	OrderStatePartFilled    OrderState = "PartFilled"
	OrderStateFilled        OrderState = "Filled"
	OrderStateCancelled     OrderState = "Cancelled"
	OrderStateFailed        OrderState = "Failed"
	OrderStateInactive      OrderState = "Inactive"

	// OrderStateUnknown marks a degraded snapshot produced when the broker could not
	// be asked for a fresh status. It is never stored on a Trade.
	OrderStateUnknown OrderState = "status_unknown"
)

// OpenOrderStates are the states that can still change on the broker side.
var OpenOrderStates = []OrderState{
	OrderStatePendingSubmit,
	OrderStatePreSubmitted,
	OrderStateSubmitted,
	OrderStatePartFilled,
}

func ParseOrderState(raw string) (OrderState, bool) {
	switch state := OrderState(raw); state {
	case OrderStatePendingSubmit, OrderStatePreSubmitted, OrderStateSubmitted, OrderStatePartFilled,
		OrderStateFilled, OrderStateCancelled, OrderStateFailed, OrderStateInactive:
		return state, true
	default:
		return "", false
	}
}

func (s OrderState) IsOpen() bool {
	for _, open := range OpenOrderStates {
		if s == open {
			return true
		}
	}
	return false
}

type Deal struct {
	Seq       string          `json:"seq"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Timestamp int64           `json:"ts"`
}

type OrderStatus struct {
	State          OrderState `json:"status"`
	StatusCode     string     `json:"status_code,omitempty"`
	Message        string     `json:"msg,omitempty"`
	OrderQuantity  int64      `json:"order_quantity"`
	DealQuantity   int64      `json:"deal_quantity"`
	CancelQuantity int64      `json:"cancel_quantity"`
	Deals          []Deal     `json:"deals"`
	Error          string     `json:"error,omitempty"`
}

// UnknownOrderStatus builds the degraded snapshot returned when a refresh fails.
func UnknownOrderStatus(err error) OrderStatus {
	status := OrderStatus{State: OrderStateUnknown, Deals: []Deal{}}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

func (s OrderStatus) Degraded() bool {
	return s.State == OrderStateUnknown
}

// FillAvgPrice is the quantity weighted mean of the deal prices, zero without deals.
func (s OrderStatus) FillAvgPrice() decimal.Decimal {
	notional := decimal.Zero
	var quantity int64
	for _, deal := range s.Deals {
		notional = notional.Add(deal.Price.Mul(decimal.NewFromInt(deal.Quantity)))
		quantity += deal.Quantity
	}

	if quantity == 0 {
		return decimal.Zero
	}

	return notional.Div(decimal.NewFromInt(quantity))
}

func (s OrderStatus) clone() OrderStatus {
	cloned := s
	cloned.Deals = make([]Deal, len(s.Deals))
	copy(cloned.Deals, s.Deals)
	return cloned
}

// Trade is one submitted order. Its status is replaced wholesale by each successful
// refresh and is safe to read while a refresh is running.
type Trade struct {
	OrderID   string
	SeqNo     string
	OrdNo     string
	AccountID string
	Mode      TradingMode
	Order     ComputedOrder

	mu     sync.RWMutex
	status OrderStatus
}

func NewTrade(orderID string, order ComputedOrder, status OrderStatus) *Trade {
	return &Trade{
		OrderID: orderID,
		Order:   order,
		status:  status.clone(),
	}
}

func (t *Trade) Status() OrderStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status.clone()
}

func (t *Trade) ReplaceStatus(status OrderStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status.clone()
}

type tradeSnapshot struct {
	OrderID   string        `json:"order_id"`
	SeqNo     string        `json:"seqno,omitempty"`
	OrdNo     string        `json:"ordno,omitempty"`
	AccountID string        `json:"account_id,omitempty"`
	Mode      TradingMode   `json:"mode"`
	Order     ComputedOrder `json:"order"`
	Status    OrderStatus   `json:"status"`
}

func (t *Trade) MarshalJSON() ([]byte, error) {
	return json.Marshal(tradeSnapshot{
		OrderID:   t.OrderID,
		SeqNo:     t.SeqNo,
		OrdNo:     t.OrdNo,
		AccountID: t.AccountID,
		Mode:      t.Mode,
		Order:     t.Order,
		Status:    t.Status(),
	})
}

func (t *Trade) UnmarshalJSON(data []byte) error {
	var snapshot tradeSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return err
	}

	t.OrderID = snapshot.OrderID
	t.SeqNo = snapshot.SeqNo
	t.OrdNo = snapshot.OrdNo
	t.AccountID = snapshot.AccountID
	t.Mode = snapshot.Mode
	t.Order = snapshot.Order
	t.ReplaceStatus(snapshot.Status)
	return nil
}
