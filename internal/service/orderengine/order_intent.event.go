package orderengine

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/signal-order-service/internal/config"
	"github.com/krobus00/signal-order-service/internal/constant"
	"github.com/krobus00/signal-order-service/internal/entity"
	"github.com/krobus00/signal-order-service/internal/repository"
	"github.com/krobus00/signal-order-service/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const (
	defaultIntentHandlerTimeout = 30 * time.Second
	intentAckWaitMargin         = 15 * time.Second
)

type PlaceOrderAsyncResult struct {
	History *entity.OrderHistory
}

func (s *OrderEngineService) JetstreamEventInit(ctx context.Context) error {
	if s.js == nil {
		return ErrAsyncOrderDisabled
	}

	streamConfig := &nats.StreamConfig{
		Name:      constant.SignalOrderStreamName,
		Subjects:  []string{constant.SignalOrderStreamSubjectAll},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
		MaxAge:    24 * time.Hour,
	}

	stream, err := s.js.StreamInfo(constant.SignalOrderStreamName, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		logrus.Error(err)
		return err
	}

	if stream == nil {
		logrus.Infof("creating stream: %s", constant.SignalOrderStreamName)
		_, err = s.js.AddStream(streamConfig, nats.Context(ctx))
		return err
	}

	logrus.Infof("updating stream: %s", constant.SignalOrderStreamName)
	_, err = s.js.UpdateStream(streamConfig, nats.Context(ctx))
	if err != nil {
		logrus.Error(err)
		return err
	}

	return nil
}

func (s *OrderEngineService) JetstreamEventSubscribe(ctx context.Context) error {
	err := s.JetstreamEventInit(ctx)
	if err != nil {
		logrus.Error(err)
		return err
	}

	_, err = s.js.QueueSubscribe(
		constant.SignalOrderStreamSubjectSubmit,
		constant.SignalOrderQueueName,
		func(msg *nats.Msg) {
			// acked even on timeout, the handler still finalizes the record
			err := util.ProcessWithTimeout(intentHandlerTimeout(), msg, s.handleOrderIntentEvent)
			if err != nil {
				logrus.Errorf("error processing message: %v", err)
			}

			err = msg.Ack()
			if err != nil {
				logrus.Errorf("failed to acknowledge message: %v", err)
				return
			}
		},
		nats.ManualAck(),
		nats.AckWait(s.intentAckWait()),
		nats.Durable(constant.SignalOrderQueueGroup),
	)
	if err != nil {
		logrus.Error(err)
		return err
	}

	return nil
}

// PlaceOrderAsync records a pending intent and queues it for the intent consumer.
func (s *OrderEngineService) PlaceOrderAsync(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderAsyncResult, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if s.publishIntent == nil {
		return nil, ErrAsyncOrderDisabled
	}

	history, err := s.recordPending(ctx, req)
	if err != nil {
		return nil, err
	}

	event := entity.OrderIntentEvent{
		RetryCount: 0,
		HistoryID:  history.ID,
		Simulation: history.Simulation,
		Data:       history.Intent(),
	}

	err = s.publishIntent(constant.SignalOrderStreamSubjectSubmit, event)
	if err != nil {
		logrus.WithError(err).WithField("history_id", history.ID).Error("failed to publish order intent")
		s.finalize(ctx, history, nil, ErrPublishOrderIntentFailed)
		return nil, ErrPublishOrderIntentFailed
	}

	return &PlaceOrderAsyncResult{History: history}, nil
}

// handleOrderIntentEvent executes a queued intent. The message is always acked: an
// intent is re-published only when login failed with a retryable fault, because no
// order can have reached the broker in that case. The record is claimed before
// execution so a redelivered copy of the message cannot submit a second order.
func (s *OrderEngineService) handleOrderIntentEvent(ctx context.Context, msg *nats.Msg) error {
	logger := logrus.WithFields(logrus.Fields{
		"req": string(msg.Data),
	})

	var req entity.OrderIntentEvent
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		logger.WithError(err).Error("dropping malformed order intent")
		return nil
	}

	history, err := s.orderHistoryRepo.GetByID(ctx, req.HistoryID)
	if err != nil {
		logger.WithError(err).Error("order intent without history")
		return nil
	}
	if history.Status != entity.HistoryStatusPending {
		logger.WithField("status", history.Status).Warn("order intent already handled")
		return nil
	}

	if err := s.orderHistoryRepo.Claim(ctx, history.ID, s.now()); err != nil {
		if errors.Is(err, repository.ErrOrderHistoryClaimed) {
			logger.Warn("order intent already claimed")
			return nil
		}
		logger.WithError(err).Error("failed to claim order intent")
		s.finalize(ctx, history, nil, ErrUpdateOrderHistoryFailed)
		return nil
	}

	outcome, err := s.execute(ctx, history)

	var loginFault *entity.LoginFault
	if errors.As(err, &loginFault) && loginFault.Retryable() && req.RetryCount+1 < maxIntentRetries() && s.publishIntent != nil {
		req.RetryCount++
		logger.WithError(err).WithField("retry", req.RetryCount).Warn("login unavailable, re-queueing order intent")

		if s.requeueIntent(ctx, req) {
			return nil
		}
	}

	s.finalize(ctx, history, outcome, err)
	return nil
}

// requeueIntent releases the claim and publishes the intent again. A record that stays
// claimed is finalized by the caller instead.
func (s *OrderEngineService) requeueIntent(ctx context.Context, req entity.OrderIntentEvent) bool {
	logger := logrus.WithFields(logrus.Fields{
		"history_id": req.HistoryID,
		"retry":      req.RetryCount,
	})

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.orderHistoryRepo.ReleaseClaim(writeCtx, req.HistoryID); err != nil {
		logger.WithError(err).Error("failed to release order intent")
		return false
	}

	if err := s.publishIntent(constant.SignalOrderStreamSubjectSubmit, req); err != nil {
		logger.WithError(err).Error("failed to re-queue order intent")
		if err := s.orderHistoryRepo.Claim(writeCtx, req.HistoryID, s.now()); err != nil {
			logger.WithError(err).Error("failed to reclaim order intent")
		}
		return false
	}

	return true
}

// intentAckWait outlasts the handler timeout and a submission still running in the
// background, so the server never redelivers an intent that is being executed.
func (s *OrderEngineService) intentAckWait() time.Duration {
	return intentHandlerTimeout() + s.gateway.timeout + intentAckWaitMargin
}

func maxIntentRetries() int {
	if config.Env == nil || config.Env.NatsJetstream.MaxRetries <= 0 {
		return 1
	}
	return config.Env.NatsJetstream.MaxRetries
}

func intentHandlerTimeout() time.Duration {
	if config.Env == nil {
		return defaultIntentHandlerTimeout
	}
	if timeout := config.Env.NatsJetstream.TimeoutHandler["place_order"]; timeout > 0 {
		return timeout
	}
	return defaultIntentHandlerTimeout
}
