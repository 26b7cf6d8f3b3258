package orderengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/krobus00/signal-order-service/internal/entity"
	"github.com/krobus00/signal-order-service/internal/metrics"
	"github.com/sirupsen/logrus"
)

const defaultReconcileTimeout = 5 * time.Second

var (
	ErrNoTrade = errors.New("no trade to reconcile")
)

// FillReconciler refreshes a submitted trade's status from the broker.
type FillReconciler struct {
	timeout        time.Duration
	onSessionFault func(session *entity.Session)
}

// NewFillReconciler builds a reconciler. onSessionFault, when set, is called with the
// session whenever the broker rejects its token.
func NewFillReconciler(timeout time.Duration, onSessionFault func(session *entity.Session)) *FillReconciler {
	if timeout <= 0 {
		timeout = defaultReconcileTimeout
	}
	return &FillReconciler{timeout: timeout, onSessionFault: onSessionFault}
}

// RefreshStatus replaces the trade's status with a fresh snapshot and returns it. It
// never fails: when the lookup fails the trade keeps its last known status and a
// status_unknown snapshot carrying the fault is returned instead.
func (r *FillReconciler) RefreshStatus(ctx context.Context, session *entity.Session, trade *entity.Trade) entity.OrderStatus {
	if trade == nil || session == nil {
		metrics.ReconcileTotal.WithLabelValues("degraded").Inc()
		return entity.UnknownOrderStatus(ErrNoTrade)
	}

	logger := logrus.WithFields(logrus.Fields{
		"mode":     session.Mode,
		"order_id": trade.OrderID,
	})

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := session.Broker.OrderStatus(ctx, session.Account, trade.OrderID)
	if err != nil {
		fault := classifyOrderFault(err, entity.OrderFaultSubmissionTimeout, "refresh status")
		if isSessionFault(fault) && r.onSessionFault != nil {
			r.onSessionFault(session)
		}

		logger.WithError(fault).Warn("order status refresh failed")
		metrics.ReconcileTotal.WithLabelValues("degraded").Inc()
		return entity.UnknownOrderStatus(fault)
	}

	status, err := normalizeStatus(*raw, trade.Status().State, trade.Order.Quantity)
	if err != nil {
		logger.WithError(err).Warn("order status refresh returned an unusable snapshot")
		metrics.ReconcileTotal.WithLabelValues("degraded").Inc()
		return entity.UnknownOrderStatus(err)
	}

	trade.ReplaceStatus(status)

	logger.WithFields(logrus.Fields{
		"status":         status.State,
		"deal_quantity":  status.DealQuantity,
		"fill_avg_price": status.FillAvgPrice().String(),
	}).Debug("order status refreshed")
	metrics.ReconcileTotal.WithLabelValues("ok").Inc()

	return status
}

// normalizeStatus fills every field the broker may omit. A missing state keeps the last
// known state, so a snapshot without one never moves a finished order back to open.
// The ordered quantity falls back to the quantity that was submitted and the dealt
// quantity to the sum of the deals.
func normalizeStatus(raw entity.BrokerOrderStatus, lastState entity.OrderState, submittedQuantity int64) (entity.OrderStatus, error) {
	state := lastState
	if state == "" {
		state = entity.OrderStatePendingSubmit
	}
	if raw.Status.Valid && raw.Status.String != "" {
		parsed, ok := entity.ParseOrderState(raw.Status.String)
		if !ok {
			return entity.OrderStatus{}, fmt.Errorf("unrecognized order state %q", raw.Status.String)
		}
		state = parsed
	}

	deals := make([]entity.Deal, 0, len(raw.Deals))
	var dealt int64
	for _, deal := range raw.Deals {
		deals = append(deals, entity.Deal{
			Seq:       deal.Seq,
			Price:     deal.Price,
			Quantity:  deal.Quantity,
			Timestamp: deal.Timestamp,
		})
		dealt += deal.Quantity
	}

	orderQuantity := raw.OrderQuantity.Int64
	if !raw.OrderQuantity.Valid || orderQuantity == 0 {
		orderQuantity = submittedQuantity
	}

	dealQuantity := dealt
	if raw.DealQuantity.Valid {
		dealQuantity = raw.DealQuantity.Int64
	}

	return entity.OrderStatus{
		State:          state,
		StatusCode:     raw.StatusCode.String,
		Message:        raw.Msg.String,
		OrderQuantity:  orderQuantity,
		DealQuantity:   dealQuantity,
		CancelQuantity: raw.CancelQuantity.Int64,
		Deals:          deals,
	}, nil
}
