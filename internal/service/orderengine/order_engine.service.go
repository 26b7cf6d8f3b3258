package orderengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/guregu/null/v6"
	"github.com/krobus00/signal-order-service/internal/config"
	"github.com/krobus00/signal-order-service/internal/entity"
	"github.com/krobus00/signal-order-service/internal/metrics"
	"github.com/krobus00/signal-order-service/internal/repository"
	"github.com/krobus00/signal-order-service/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidOrderRequest      = errors.New("invalid order request")
	ErrDuplicateOrder           = errors.New("duplicate order")
	ErrCreateOrderHistoryFailed = errors.New("failed to create order history")
	ErrFailToGetOrderHistory    = errors.New("failed to get order history")
	ErrUpdateOrderHistoryFailed = errors.New("failed to update order history")
	ErrPublishOrderIntentFailed = errors.New("failed to publish order intent")
	ErrAsyncOrderDisabled       = errors.New("async order queue is not configured")
	ErrNoBrokerOrder            = errors.New("order history has no broker order")
	ErrInstrumentBusy           = errors.New("instrument is locked by another order")
	ErrBrokerQueryFailed        = errors.New("broker query failed")
)

type PlaceOrderRequest struct {
	Intent     entity.OrderIntent
	Simulation bool
	RequestID  string
}

type PlaceOrderResult struct {
	History *entity.OrderHistory
	Outcome *entity.SubmitOutcome
}

type RecheckResult struct {
	History            *entity.OrderHistory
	PreviousFillStatus null.String
	Status             entity.OrderStatus
}

type OrderEngineService struct {
	sessions         SessionProvider
	directory        InstrumentDirectory
	locker           Locker
	positions        *PositionReader
	gateway          *OrderGateway
	reconciler       *FillReconciler
	orderHistoryRepo OrderHistoryRepository
	events           entity.OrderEventPublisher
	js               nats.JetStreamContext
	publishIntent    func(subject string, data any) error
	now              func() time.Time
}

func NewOrderEngineService(
	sessions SessionProvider,
	directory InstrumentDirectory,
	locker Locker,
	orderHistoryRepo OrderHistoryRepository,
	events entity.OrderEventPublisher,
	js nats.JetStreamContext,
	cfg config.TradingConfig,
) *OrderEngineService {
	s := &OrderEngineService{
		sessions:         sessions,
		directory:        directory,
		locker:           locker,
		positions:        NewPositionReader(cfg.PositionTimeout),
		gateway:          NewOrderGateway(cfg.SubmitTimeout),
		reconciler:       NewFillReconciler(cfg.ReconcileTimeout, sessions.Invalidate),
		orderHistoryRepo: orderHistoryRepo,
		events:           events,
		js:               js,
		now:              func() time.Time { return time.Now().UTC() },
	}

	if js != nil {
		s.publishIntent = func(subject string, data any) error {
			return util.PublishEvent(js, subject, data)
		}
	}

	return s
}

// SizeAndSubmit resolves the intent's instrument, reads the current position, sizes
// the order and submits it. The read, sizing and submission for one instrument run
// under a lock, so two concurrent reversals cannot both size against the same stale
// position. A nil Trade in the outcome means nothing had to be sent.
func (s *OrderEngineService) SizeAndSubmit(ctx context.Context, session *entity.Session, intent entity.OrderIntent) (outcome *entity.SubmitOutcome, err error) {
	defer func() {
		if isSessionFault(err) {
			s.sessions.Invalidate(session)
		}
	}()

	if err := validateIntent(intent); err != nil {
		return nil, err
	}

	logger := logrus.WithFields(logrus.Fields{
		"mode":     session.Mode,
		"symbol":   intent.Symbol,
		"action":   intent.Action,
		"entry":    intent.Action.IsEntry(),
		"quantity": intent.Quantity,
	})

	instrument, err := s.directory.Resolve(ctx, session.Broker, intent.Symbol)
	if err != nil {
		return nil, classifyOrderFault(err, entity.OrderFaultBrokerRejected, "resolve instrument")
	}

	unlock, err := s.locker.Lock(ctx, instrumentLockKey(session.Mode, instrument.Code))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInstrumentBusy, instrument.Code, err)
	}
	defer unlock()

	position, err := s.positions.NetPosition(ctx, session, instrument)
	if err != nil {
		return nil, err
	}

	order, err := ComputeOrder(instrument, intent.Action, intent.Quantity, position)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrderRequest, err)
	}

	outcome = &entity.SubmitOutcome{
		Intent:     intent,
		Instrument: instrument,
		Position:   position,
		Order:      order,
	}

	if order == nil {
		logger.WithField("position", position).Info("no position to exit")
		return outcome, nil
	}

	logger.WithFields(logrus.Fields{
		"position": position,
		"side":     order.Side,
		"sized":    order.Quantity,
	}).Info("order sized")

	trade, err := s.gateway.Submit(ctx, session, *order)
	if err != nil {
		return nil, err
	}
	outcome.Trade = trade

	return outcome, nil
}

// RefreshStatus reconciles a submitted trade. It never fails, see FillReconciler.
func (s *OrderEngineService) RefreshStatus(ctx context.Context, session *entity.Session, trade *entity.Trade) entity.OrderStatus {
	return s.reconciler.RefreshStatus(ctx, session, trade)
}

// PlaceOrder records the intent, sizes and submits it, and finalizes the record with
// the outcome. Faults are returned after the record has been finalized as failed.
func (s *OrderEngineService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	history, err := s.recordPending(ctx, req)
	if err != nil {
		return nil, err
	}

	outcome, err := s.execute(ctx, history)
	s.finalize(ctx, history, outcome, err)

	return &PlaceOrderResult{History: history, Outcome: outcome}, err
}

func (s *OrderEngineService) execute(ctx context.Context, history *entity.OrderHistory) (*entity.SubmitOutcome, error) {
	session, err := s.sessions.Acquire(ctx, history.Mode())
	if err != nil {
		return nil, err
	}

	return s.SizeAndSubmit(ctx, session, history.Intent())
}

func (s *OrderEngineService) recordPending(ctx context.Context, req PlaceOrderRequest) (*entity.OrderHistory, error) {
	req.Intent.Symbol = strings.TrimSpace(req.Intent.Symbol)
	req.RequestID = strings.TrimSpace(req.RequestID)

	if err := validateIntent(req.Intent); err != nil {
		metrics.OrderRequestsTotal.WithLabelValues(string(req.Intent.Action), "invalid").Inc()
		return nil, err
	}

	if req.RequestID != "" {
		existing, err := s.orderHistoryRepo.GetByRequestID(ctx, req.RequestID)
		if err != nil && !errors.Is(err, repository.ErrOrderHistoryNotFound) {
			logrus.WithError(err).Error("failed to look up request id")
			return nil, ErrFailToGetOrderHistory
		}
		if existing != nil {
			logrus.WithField("request_id", req.RequestID).Warn("duplicate order request")
			metrics.OrderRequestsTotal.WithLabelValues(string(req.Intent.Action), "duplicate").Inc()
			return nil, ErrDuplicateOrder
		}
	}

	now := s.now()
	history := &entity.OrderHistory{
		Symbol:     req.Intent.Symbol,
		Action:     req.Intent.Action,
		Quantity:   req.Intent.Quantity,
		Simulation: req.Simulation,
		Status:     entity.HistoryStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.RequestID != "" {
		history.RequestID = null.StringFrom(req.RequestID)
	}

	if err := s.orderHistoryRepo.Create(ctx, history); err != nil {
		if errors.Is(err, repository.ErrDuplicateRequestID) {
			metrics.OrderRequestsTotal.WithLabelValues(string(req.Intent.Action), "duplicate").Inc()
			return nil, ErrDuplicateOrder
		}
		logrus.WithError(err).Error("failed to create order history")
		return nil, ErrCreateOrderHistoryFailed
	}

	s.publish(entity.OrderEventRecorded, history)

	return history, nil
}

// finalize moves a pending record to its terminal status. The write is detached from
// ctx so that an order which reached the broker is always recorded.
func (s *OrderEngineService) finalize(ctx context.Context, history *entity.OrderHistory, outcome *entity.SubmitOutcome, execErr error) {
	now := s.now()
	history.UpdatedAt = now

	switch {
	case execErr != nil:
		history.Status = entity.HistoryStatusFailed
		history.ErrorMessage = null.StringFrom(execErr.Error())
	case outcome.NoAction():
		history.Status = entity.HistoryStatusNoAction
	default:
		history.Status = entity.HistoryStatusSuccess
		history.OrderID = null.StringFrom(outcome.Trade.OrderID)
		if payload, err := json.Marshal(outcome.Trade); err == nil {
			history.OrderResult = null.StringFrom(string(payload))
		}
		history.ApplyFill(outcome.Trade.Status(), now)
	}

	logger := logrus.WithFields(logrus.Fields{
		"history_id": history.ID,
		"symbol":     history.Symbol,
		"action":     history.Action,
		"status":     history.Status,
	})
	if execErr != nil {
		logger = logger.WithError(execErr)
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.orderHistoryRepo.Finalize(writeCtx, history); err != nil {
		logger.WithField("finalize_error", err.Error()).Error("failed to finalize order history")
	} else {
		logger.Info("order history finalized")
	}

	metrics.OrderRequestsTotal.WithLabelValues(string(history.Action), string(history.Status)).Inc()
	s.publish(entity.OrderEventFinalized, history)
}

// RecheckOrder reconciles the trade stored on a history record and refreshes the fill
// columns. A degraded refresh only moves fill_checked_at.
func (s *OrderEngineService) RecheckOrder(ctx context.Context, id int64) (*RecheckResult, error) {
	history, err := s.orderHistoryRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderHistoryNotFound) {
			return nil, err
		}
		logrus.WithError(err).WithField("history_id", id).Error("failed to get order history")
		return nil, ErrFailToGetOrderHistory
	}

	return s.ReconcileHistory(ctx, history)
}

func (s *OrderEngineService) ReconcileHistory(ctx context.Context, history *entity.OrderHistory) (*RecheckResult, error) {
	trade, err := tradeFromHistory(history)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Acquire(ctx, history.Mode())
	if err != nil {
		return nil, err
	}

	result := &RecheckResult{
		History:            history,
		PreviousFillStatus: history.FillStatus,
		Status:             s.RefreshStatus(ctx, session, trade),
	}

	now := s.now()
	if result.Status.Degraded() {
		history.FillCheckedAt = null.TimeFrom(now)
		err = s.orderHistoryRepo.TouchFillCheckedAt(ctx, history)
	} else {
		history.ApplyFill(result.Status, now)
		err = s.orderHistoryRepo.UpdateFill(ctx, history)
	}
	if err != nil {
		logrus.WithError(err).WithField("history_id", history.ID).Error("failed to store fill status")
		return nil, ErrUpdateOrderHistoryFailed
	}

	if !result.Status.Degraded() {
		s.publish(entity.OrderEventFilled, history)
	}

	return result, nil
}

func (s *OrderEngineService) ListInstruments(ctx context.Context, mode entity.TradingMode) ([]entity.Instrument, error) {
	session, err := s.sessions.Acquire(ctx, mode)
	if err != nil {
		return nil, err
	}

	instruments, err := s.directory.List(ctx, session.Broker)
	if err != nil {
		return nil, s.queryFault(session, err, "list contracts")
	}
	return instruments, nil
}

func (s *OrderEngineService) GetInstrument(ctx context.Context, mode entity.TradingMode, query string) (entity.Instrument, error) {
	session, err := s.sessions.Acquire(ctx, mode)
	if err != nil {
		return entity.Instrument{}, err
	}

	instrument, err := s.directory.Resolve(ctx, session.Broker, query)
	if err != nil {
		return entity.Instrument{}, s.queryFault(session, err, "resolve contract")
	}
	return instrument, nil
}

func (s *OrderEngineService) ListPositions(ctx context.Context, mode entity.TradingMode) ([]entity.BrokerPosition, error) {
	session, err := s.sessions.Acquire(ctx, mode)
	if err != nil {
		return nil, err
	}

	positions, err := session.Broker.ListPositions(ctx, session.Account)
	if err != nil {
		return nil, s.queryFault(session, err, "list positions")
	}
	return positions, nil
}

func (s *OrderEngineService) ListOrderHistories(ctx context.Context, filter entity.OrderHistoryFilter) ([]entity.OrderHistory, int64, error) {
	histories, err := s.orderHistoryRepo.List(ctx, filter)
	if err != nil {
		logrus.WithError(err).Error("failed to list order histories")
		return nil, 0, ErrFailToGetOrderHistory
	}

	total, err := s.orderHistoryRepo.Count(ctx, filter)
	if err != nil {
		logrus.WithError(err).Error("failed to count order histories")
		return nil, 0, ErrFailToGetOrderHistory
	}

	return histories, total, nil
}

// queryFault classifies a failed read-only broker call. Session faults invalidate the
// session, unknown instruments pass through and everything else is reported as a
// failed query without exposing the broker error type.
func (s *OrderEngineService) queryFault(session *entity.Session, err error, step string) error {
	fault := classifyOrderFault(err, entity.OrderFaultBrokerRejected, step)

	var notFound *entity.InstrumentNotFoundError
	switch {
	case isSessionFault(fault):
		s.sessions.Invalidate(session)
		return fault
	case errors.As(fault, &notFound):
		return fault
	default:
		logrus.WithError(fault).WithField("step", step).Error("broker query failed")
		return fmt.Errorf("%w: %s", ErrBrokerQueryFailed, fault.Error())
	}
}

func (s *OrderEngineService) publish(eventType entity.OrderEventType, history *entity.OrderHistory) {
	if s.events == nil || history == nil {
		return
	}

	s.events.Publish(entity.OrderEvent{
		Type:       eventType,
		History:    *history,
		OccurredAt: s.now(),
	})
}

func validateIntent(intent entity.OrderIntent) error {
	if !intent.Action.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidOrderRequest, ErrUnknownAction, intent.Action)
	}
	if intent.Quantity <= 0 {
		return fmt.Errorf("%w: %w", ErrInvalidOrderRequest, ErrInvalidQuantity)
	}
	if strings.TrimSpace(intent.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidOrderRequest)
	}
	return nil
}

func instrumentLockKey(mode entity.TradingMode, code string) string {
	return fmt.Sprintf("%s:%s", mode, code)
}

// tradeFromHistory rebuilds the trade handle stored with a successful record.
func tradeFromHistory(history *entity.OrderHistory) (*entity.Trade, error) {
	if !history.OrderID.Valid || history.OrderID.String == "" {
		return nil, ErrNoBrokerOrder
	}

	if history.OrderResult.Valid {
		trade := &entity.Trade{}
		if err := json.Unmarshal([]byte(history.OrderResult.String), trade); err == nil && trade.OrderID == history.OrderID.String {
			return trade, nil
		}
	}

	status := entity.OrderStatus{State: entity.OrderStatePendingSubmit, OrderQuantity: history.Quantity, Deals: []entity.Deal{}}
	if state, ok := entity.ParseOrderState(history.FillStatus.String); ok {
		status.State = state
	}

	trade := entity.NewTrade(history.OrderID.String, entity.ComputedOrder{Quantity: history.Quantity}, status)
	trade.Mode = history.Mode()
	return trade, nil
}
