package orderengine

import (
	"context"
	"errors"
	"testing"

	"github.com/guregu/null/v6"
	"github.com/krobus00/signal-order-service/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestOrderFillSyncService_SyncOpenFills(t *testing.T) {
	f := newEngineFixture(t)

	filled := *tradeHistory(t)
	unreachable := *tradeHistory(t)
	unreachable.ID = 8
	unreachable.OrderID = null.StringFrom("ord-8")
	unreachable.OrderResult = null.String{}

	f.repo.On("GetOpenFills", mock.Anything, uint64(50)).Return([]entity.OrderHistory{filled, unreachable}, nil).Once()
	f.sessions.On("Acquire", mock.Anything, entity.TradingModeSimulated).Return(f.session, nil).Twice()
	f.broker.On("OrderStatus", mock.Anything, f.session.Account, "ord-7").Return(&entity.BrokerOrderStatus{
		Status:       null.StringFrom("Filled"),
		DealQuantity: null.IntFrom(2),
	}, nil).Once()
	f.broker.On("OrderStatus", mock.Anything, f.session.Account, "ord-8").
		Return(nil, entity.NewBrokerError(entity.BrokerErrorUnavailable, "", nil)).Once()
	f.repo.On("UpdateFill", mock.Anything, mock.MatchedBy(func(h *entity.OrderHistory) bool { return h.ID == 7 })).Return(nil).Once()
	f.repo.On("TouchFillCheckedAt", mock.Anything, mock.MatchedBy(func(h *entity.OrderHistory) bool { return h.ID == 8 })).Return(nil).Once()

	refreshed := NewOrderFillSyncService(f.svc, f.repo, 0, 50).SyncOpenFills(context.Background())
	assert.Equal(t, 1, refreshed)
}

func TestOrderFillSyncService_SyncOpenFillsLoadFailed(t *testing.T) {
	f := newEngineFixture(t)

	f.repo.On("GetOpenFills", mock.Anything, uint64(defaultOrderFillSyncBatch)).Return(nil, errors.New("connection refused")).Once()

	refreshed := NewOrderFillSyncService(f.svc, f.repo, 0, 0).SyncOpenFills(context.Background())
	assert.Equal(t, 0, refreshed)
}

func TestOrderFillSyncService_RunStopsOnCancel(t *testing.T) {
	f := newEngineFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	f.repo.On("GetOpenFills", mock.Anything, uint64(defaultOrderFillSyncBatch)).
		Run(func(mock.Arguments) { cancel() }).
		Return([]entity.OrderHistory{}, nil).Once()

	done := make(chan struct{})
	go func() {
		NewOrderFillSyncService(f.svc, f.repo, 0, 0).Run(ctx)
		close(done)
	}()

	<-done
}
