package orderengine

import (
	"context"
	"time"

	"github.com/krobus00/signal-order-service/internal/entity"
	"github.com/sirupsen/logrus"
)

const defaultSubmitTimeout = 10 * time.Second

// OrderGateway places computed orders as IOC market orders with automatic open or
// close determination.
type OrderGateway struct {
	timeout time.Duration
}

func NewOrderGateway(timeout time.Duration) *OrderGateway {
	if timeout <= 0 {
		timeout = defaultSubmitTimeout
	}
	return &OrderGateway{timeout: timeout}
}

// Submit sends order once. The call is bounded by the gateway timeout but detached
// from the caller's cancellation, so a client hanging up cannot leave a placed order
// unrecorded. A timeout is reported as a submission timeout and never retried.
func (g *OrderGateway) Submit(ctx context.Context, session *entity.Session, order entity.ComputedOrder) (*entity.Trade, error) {
	logger := logrus.WithFields(logrus.Fields{
		"mode":     session.Mode,
		"code":     order.Instrument.Code,
		"side":     order.Side,
		"quantity": order.Quantity,
	})

	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()

	placed, err := session.Broker.PlaceOrder(submitCtx, session.Account, order.Instrument, entity.BrokerOrder{
		Action:      order.Side,
		Quantity:    order.Quantity,
		Price:       0,
		PriceType:   entity.PriceTypeMarket,
		TimeInForce: entity.TimeInForceIOC,
		OCType:      entity.OpenCloseTypeAuto,
	})
	if err != nil {
		logger.WithError(err).Error("order submission failed")
		return nil, classifyOrderFault(err, entity.OrderFaultSubmissionTimeout, "submit order")
	}

	status, err := normalizeStatus(placed.Status, entity.OrderStatePendingSubmit, order.Quantity)
	if err != nil {
		logger.WithError(err).Warn("unrecognized status on placement, assuming pending submit")
		status = entity.OrderStatus{State: entity.OrderStatePendingSubmit, OrderQuantity: order.Quantity, Deals: []entity.Deal{}}
	}

	trade := entity.NewTrade(placed.OrderID, order, status)
	trade.SeqNo = placed.SeqNo
	trade.OrdNo = placed.OrdNo
	trade.AccountID = session.Account.AccountID
	trade.Mode = session.Mode

	logger.WithFields(logrus.Fields{
		"order_id": placed.OrderID,
		"status":   status.State,
	}).Info("order submitted")

	return trade, nil
}
