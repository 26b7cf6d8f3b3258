package http

import (
	"context"

	"github.com/krobus00/signal-order-service/internal/entity"
	"github.com/krobus00/signal-order-service/internal/service/orderengine"
	"github.com/stretchr/testify/mock"
)

type mockOrderService struct {
	mock.Mock
}

func (m *mockOrderService) PlaceOrder(ctx context.Context, req orderengine.PlaceOrderRequest) (*orderengine.PlaceOrderResult, error) {
	ret := m.Called(ctx, req)
	result, _ := ret.Get(0).(*orderengine.PlaceOrderResult)
	return result, ret.Error(1)
}

func (m *mockOrderService) PlaceOrderAsync(ctx context.Context, req orderengine.PlaceOrderRequest) (*orderengine.PlaceOrderAsyncResult, error) {
	ret := m.Called(ctx, req)
	result, _ := ret.Get(0).(*orderengine.PlaceOrderAsyncResult)
	return result, ret.Error(1)
}

func (m *mockOrderService) RecheckOrder(ctx context.Context, id int64) (*orderengine.RecheckResult, error) {
	ret := m.Called(ctx, id)
	result, _ := ret.Get(0).(*orderengine.RecheckResult)
	return result, ret.Error(1)
}

func (m *mockOrderService) ListInstruments(ctx context.Context, mode entity.TradingMode) ([]entity.Instrument, error) {
	ret := m.Called(ctx, mode)
	instruments, _ := ret.Get(0).([]entity.Instrument)
	return instruments, ret.Error(1)
}

func (m *mockOrderService) GetInstrument(ctx context.Context, mode entity.TradingMode, query string) (entity.Instrument, error) {
	ret := m.Called(ctx, mode, query)
	instrument, _ := ret.Get(0).(entity.Instrument)
	return instrument, ret.Error(1)
}

func (m *mockOrderService) ListPositions(ctx context.Context, mode entity.TradingMode) ([]entity.BrokerPosition, error) {
	ret := m.Called(ctx, mode)
	positions, _ := ret.Get(0).([]entity.BrokerPosition)
	return positions, ret.Error(1)
}

func (m *mockOrderService) ListOrderHistories(ctx context.Context, filter entity.OrderHistoryFilter) ([]entity.OrderHistory, int64, error) {
	ret := m.Called(ctx, filter)
	histories, _ := ret.Get(0).([]entity.OrderHistory)
	total, _ := ret.Get(1).(int64)
	return histories, total, ret.Error(2)
}
