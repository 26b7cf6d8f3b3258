package orderengine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/signal-order-service/internal/config"
	"github.com/krobus00/signal-order-service/internal/constant"
	"github.com/krobus00/signal-order-service/internal/entity"
	"github.com/krobus00/signal-order-service/internal/repository"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type publishedIntent struct {
	subject string
	event   entity.OrderIntentEvent
}

func withIntentRetries(t *testing.T, retries int) {
	t.Helper()

	previous := config.Env
	config.Env = &config.EnvConfig{NatsJetstream: config.NatsJetstreamConfig{MaxRetries: retries}}
	t.Cleanup(func() { config.Env = previous })
}

func captureIntents(f *engineFixture, err error) *[]publishedIntent {
	published := make([]publishedIntent, 0)
	f.svc.publishIntent = func(subject string, data any) error {
		published = append(published, publishedIntent{subject: subject, event: data.(entity.OrderIntentEvent)})
		return err
	}
	return &published
}

func intentMessage(t *testing.T, event entity.OrderIntentEvent) *nats.Msg {
	t.Helper()

	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return &nats.Msg{Subject: constant.SignalOrderStreamSubjectSubmit, Data: payload}
}

func pendingHistory(id int64) *entity.OrderHistory {
	return &entity.OrderHistory{
		ID:         id,
		Symbol:     "MXF202611",
		Action:     entity.OrderActionLongEntry,
		Quantity:   1,
		Simulation: true,
		Status:     entity.HistoryStatusPending,
	}
}

func TestOrderEngineService_PlaceOrderAsync(t *testing.T) {
	f := newEngineFixture(t)
	published := captureIntents(f, nil)
	f.expectCreate(21)

	result, err := f.svc.PlaceOrderAsync(context.Background(), PlaceOrderRequest{
		Intent:     entity.OrderIntent{Action: entity.OrderActionShortExit, Quantity: 2, Symbol: "MXF202611"},
		Simulation: true,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(21), result.History.ID)
	assert.Equal(t, entity.HistoryStatusPending, result.History.Status)
	require.Len(t, *published, 1)
	assert.Equal(t, constant.SignalOrderStreamSubjectSubmit, (*published)[0].subject)
	assert.Equal(t, entity.OrderIntentEvent{
		HistoryID:  21,
		Simulation: true,
		Data:       entity.OrderIntent{Action: entity.OrderActionShortExit, Quantity: 2, Symbol: "MXF202611"},
	}, (*published)[0].event)
}

func TestOrderEngineService_PlaceOrderAsyncDisabled(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.svc.PlaceOrderAsync(context.Background(), PlaceOrderRequest{
		Intent: entity.OrderIntent{Action: entity.OrderActionLongEntry, Quantity: 1, Symbol: "MXF202611"},
	})
	assert.ErrorIs(t, err, ErrAsyncOrderDisabled)
}

func TestOrderEngineService_PlaceOrderAsyncPublishFailed(t *testing.T) {
	f := newEngineFixture(t)
	captureIntents(f, errors.New("nats: timeout"))
	f.expectCreate(22)

	var finalized entity.OrderHistory
	f.expectFinalize(&finalized)

	_, err := f.svc.PlaceOrderAsync(context.Background(), PlaceOrderRequest{
		Intent: entity.OrderIntent{Action: entity.OrderActionLongEntry, Quantity: 1, Symbol: "MXF202611"},
	})
	assert.ErrorIs(t, err, ErrPublishOrderIntentFailed)
	assert.Equal(t, entity.HistoryStatusFailed, finalized.Status)
	assert.Equal(t, ErrPublishOrderIntentFailed.Error(), finalized.ErrorMessage.String)
}

func TestOrderEngineService_HandleOrderIntentEvent(t *testing.T) {
	maintenance := entity.NewLoginFault(entity.LoginFaultMaintenance, "broker maintenance", nil)
	credential := entity.NewLoginFault(entity.LoginFaultCredential, "bad secret", nil)

	tests := []struct {
		name          string
		retryCount    int
		loginErr      error
		wantRequeued  bool
		wantFinalized entity.HistoryStatus
	}{
		{
			name:         "retryable login fault is re-queued",
			retryCount:   0,
			loginErr:     maintenance,
			wantRequeued: true,
		},
		{
			name:          "retries exhausted",
			retryCount:    2,
			loginErr:      maintenance,
			wantFinalized: entity.HistoryStatusFailed,
		},
		{
			name:          "credential fault is final",
			retryCount:    0,
			loginErr:      credential,
			wantFinalized: entity.HistoryStatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withIntentRetries(t, 3)
			f := newEngineFixture(t)
			published := captureIntents(f, nil)

			history := pendingHistory(5)
			f.repo.On("GetByID", mock.Anything, int64(5)).Return(history, nil).Once()
			f.repo.On("Claim", mock.Anything, int64(5), f.now).Return(nil).Once()
			if tt.wantRequeued {
				f.repo.On("ReleaseClaim", mock.Anything, int64(5)).Return(nil).Once()
			}
			f.sessions.On("Acquire", mock.Anything, entity.TradingModeSimulated).Return(nil, tt.loginErr).Once()

			var finalized entity.OrderHistory
			if tt.wantFinalized != "" {
				f.expectFinalize(&finalized)
			}

			err := f.svc.handleOrderIntentEvent(context.Background(), intentMessage(t, entity.OrderIntentEvent{
				RetryCount: tt.retryCount,
				HistoryID:  5,
				Simulation: true,
				Data:       history.Intent(),
			}))
			require.NoError(t, err)

			if tt.wantRequeued {
				require.Len(t, *published, 1)
				assert.Equal(t, tt.retryCount+1, (*published)[0].event.RetryCount)
				f.repo.AssertNotCalled(t, "Finalize", mock.Anything, mock.Anything)
				return
			}

			assert.Empty(t, *published)
			assert.Equal(t, tt.wantFinalized, finalized.Status)
			assert.Equal(t, tt.loginErr.Error(), finalized.ErrorMessage.String)
		})
	}
}

func TestOrderEngineService_HandleOrderIntentEventExecutes(t *testing.T) {
	f := newEngineFixture(t)

	history := pendingHistory(6)
	f.expectInstruments()
	f.repo.On("GetByID", mock.Anything, int64(6)).Return(history, nil).Once()
	f.repo.On("Claim", mock.Anything, int64(6), f.now).Return(nil).Once()
	f.sessions.On("Acquire", mock.Anything, entity.TradingModeSimulated).Return(f.session, nil).Once()
	f.broker.On("ListPositions", mock.Anything, f.session.Account).Return([]entity.BrokerPosition{}, nil).Once()
	f.broker.On("PlaceOrder", mock.Anything, f.session.Account, testInstrument, mock.Anything).
		Return(&entity.BrokerTrade{OrderID: "ord-6"}, nil).Once()

	var finalized entity.OrderHistory
	f.expectFinalize(&finalized)

	err := f.svc.handleOrderIntentEvent(context.Background(), intentMessage(t, entity.OrderIntentEvent{HistoryID: 6, Simulation: true, Data: history.Intent()}))
	require.NoError(t, err)

	assert.Equal(t, entity.HistoryStatusSuccess, finalized.Status)
	assert.Equal(t, "ord-6", finalized.OrderID.String)
	assert.Equal(t, string(entity.OrderStatePendingSubmit), finalized.FillStatus.String)
}

func TestOrderEngineService_HandleOrderIntentEventRequeueFailed(t *testing.T) {
	withIntentRetries(t, 3)
	f := newEngineFixture(t)
	captureIntents(f, errors.New("nats: timeout"))

	history := pendingHistory(10)
	maintenance := entity.NewLoginFault(entity.LoginFaultMaintenance, "broker maintenance", nil)
	f.repo.On("GetByID", mock.Anything, int64(10)).Return(history, nil).Once()
	f.repo.On("Claim", mock.Anything, int64(10), f.now).Return(nil).Twice()
	f.repo.On("ReleaseClaim", mock.Anything, int64(10)).Return(nil).Once()
	f.sessions.On("Acquire", mock.Anything, entity.TradingModeSimulated).Return(nil, maintenance).Once()

	var finalized entity.OrderHistory
	f.expectFinalize(&finalized)

	err := f.svc.handleOrderIntentEvent(context.Background(), intentMessage(t, entity.OrderIntentEvent{HistoryID: 10, Simulation: true, Data: history.Intent()}))
	require.NoError(t, err)

	assert.Equal(t, entity.HistoryStatusFailed, finalized.Status)
	assert.Equal(t, maintenance.Error(), finalized.ErrorMessage.String)
}

func TestOrderEngineService_HandleOrderIntentEventRedelivered(t *testing.T) {
	f := newEngineFixture(t)

	var claimed atomic.Bool
	f.expectInstruments()
	f.repo.On("GetByID", mock.Anything, int64(9)).
		Return(func(context.Context, int64) *entity.OrderHistory { return pendingHistory(9) }, nil).Twice()
	f.repo.On("Claim", mock.Anything, int64(9), f.now).
		Return(func(context.Context, int64, time.Time) error {
			if claimed.CompareAndSwap(false, true) {
				return nil
			}
			return repository.ErrOrderHistoryClaimed
		}).Twice()
	f.sessions.On("Acquire", mock.Anything, entity.TradingModeSimulated).Return(f.session, nil).Once()
	f.broker.On("ListPositions", mock.Anything, f.session.Account).Return([]entity.BrokerPosition{}, nil).Once()
	f.broker.On("PlaceOrder", mock.Anything, f.session.Account, testInstrument, mock.Anything).
		After(50*time.Millisecond).
		Return(&entity.BrokerTrade{OrderID: "ord-9"}, nil).Once()

	var finalized entity.OrderHistory
	f.expectFinalize(&finalized)

	msg := intentMessage(t, entity.OrderIntentEvent{HistoryID: 9, Simulation: true, Data: pendingHistory(9).Intent()})

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.svc.handleOrderIntentEvent(context.Background(), msg))
		}()
	}
	wg.Wait()

	f.broker.AssertNumberOfCalls(t, "PlaceOrder", 1)
	assert.Equal(t, entity.HistoryStatusSuccess, finalized.Status)
	assert.Equal(t, "ord-9", finalized.OrderID.String)
}

func TestOrderEngineService_HandleOrderIntentEventSkips(t *testing.T) {
	t.Run("malformed payload", func(t *testing.T) {
		f := newEngineFixture(t)

		err := f.svc.handleOrderIntentEvent(context.Background(), &nats.Msg{Data: []byte("{")})
		assert.NoError(t, err)
	})

	t.Run("already handled", func(t *testing.T) {
		f := newEngineFixture(t)

		history := pendingHistory(8)
		history.Status = entity.HistoryStatusSuccess
		f.repo.On("GetByID", mock.Anything, int64(8)).Return(history, nil).Once()

		err := f.svc.handleOrderIntentEvent(context.Background(), intentMessage(t, entity.OrderIntentEvent{HistoryID: 8}))
		assert.NoError(t, err)
		f.sessions.AssertNotCalled(t, "Acquire", mock.Anything, mock.Anything)
	})

	t.Run("claimed by another consumer", func(t *testing.T) {
		f := newEngineFixture(t)

		f.repo.On("GetByID", mock.Anything, int64(11)).Return(pendingHistory(11), nil).Once()
		f.repo.On("Claim", mock.Anything, int64(11), f.now).Return(repository.ErrOrderHistoryClaimed).Once()

		err := f.svc.handleOrderIntentEvent(context.Background(), intentMessage(t, entity.OrderIntentEvent{HistoryID: 11}))
		assert.NoError(t, err)
		f.sessions.AssertNotCalled(t, "Acquire", mock.Anything, mock.Anything)
		f.repo.AssertNotCalled(t, "Finalize", mock.Anything, mock.Anything)
	})
}

func TestOrderEngineService_IntentAckWait(t *testing.T) {
	withIntentRetries(t, 1)
	f := newEngineFixture(t)

	config.Env.NatsJetstream.TimeoutHandler = map[string]time.Duration{"place_order": 20 * time.Second}
	assert.Greater(t, f.svc.intentAckWait(), 20*time.Second+f.svc.gateway.timeout)
}

func TestMaxIntentRetries(t *testing.T) {
	withIntentRetries(t, 0)
	assert.Equal(t, 1, maxIntentRetries())

	config.Env.NatsJetstream.MaxRetries = 4
	assert.Equal(t, 4, maxIntentRetries())
}
