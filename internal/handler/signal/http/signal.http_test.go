package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/guregu/null/v6"
	"github.com/krobus00/signal-order-service/internal/config"
	"github.com/krobus00/signal-order-service/internal/constant"
	"github.com/krobus00/signal-order-service/internal/entity"
	"github.com/krobus00/signal-order-service/internal/repository"
	"github.com/krobus00/signal-order-service/internal/service/orderengine"
	"github.com/krobus00/signal-order-service/internal/service/orderfeed"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testAuthKey = "secret-key"

type testHandler struct {
	service *mockOrderService
	hub     *orderfeed.Hub
	mux     *http.ServeMux
}

func newTestHandler(t *testing.T, mutate func(cfg *HandlerConfig)) *testHandler {
	t.Helper()

	cfg := HandlerConfig{
		AuthKey:            testAuthKey,
		WebhookKeyRequired: false,
		DefaultSimulation:  true,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	service := &mockOrderService{}
	t.Cleanup(func() { service.AssertExpectations(t) })

	hub := orderfeed.NewHub(8)
	t.Cleanup(hub.Close)

	mux := http.NewServeMux()
	NewSignalHTTPHandler(service, hub, cfg).Register(mux)

	return &testHandler{service: service, hub: hub, mux: mux}
}

func (th *testHandler) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	th.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func authHeader() map[string]string {
	return map[string]string{constant.HeaderAuthKey: testAuthKey}
}

func TestHandler_PlaceOrder(t *testing.T) {
	filledTrade := entity.NewTrade("ord-1", entity.ComputedOrder{Side: entity.OrderSideBuy, Quantity: 3}, entity.OrderStatus{
		State:         entity.OrderStateFilled,
		OrderQuantity: 3,
		DealQuantity:  3,
		Deals:         []entity.Deal{{Seq: "1", Price: decimal.NewFromInt(22850), Quantity: 3}},
	})

	expectedReq := orderengine.PlaceOrderRequest{
		Intent:     entity.OrderIntent{Action: entity.OrderActionLongEntry, Quantity: 2, Symbol: "MXF202611"},
		Simulation: true,
		RequestID:  "req-1",
	}

	tests := []struct {
		name       string
		target     string
		body       string
		mockFn     func(service *mockOrderService)
		wantCode   int
		assertBody func(t *testing.T, body map[string]any)
	}{
		{
			name:   "success",
			target: "/order",
			body:   `{"action":"long_entry","quantity":2,"symbol":" MXF202611 ","request_id":"req-1"}`,
			mockFn: func(service *mockOrderService) {
				service.On("PlaceOrder", mock.Anything, expectedReq).Return(&orderengine.PlaceOrderResult{
					History: &entity.OrderHistory{ID: 7, Status: entity.HistoryStatusSuccess, OrderID: null.StringFrom("ord-1")},
					Outcome: &entity.SubmitOutcome{Position: -1, Trade: filledTrade},
				}, nil).Once()
			},
			wantCode: http.StatusOK,
			assertBody: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "success", body["status"])
				assert.Equal(t, float64(7), body["history_id"])
				assert.Equal(t, "ord-1", body["order_id"])
				assert.Equal(t, float64(-1), body["position"])
				trade, ok := body["trade"].(map[string]any)
				require.True(t, ok)
				assert.Equal(t, "ord-1", trade["order_id"])
			},
		},
		{
			name:   "no action",
			target: "/order?simulation=false",
			body:   `{"action":"long_exit","quantity":1,"symbol":"TXF202611"}`,
			mockFn: func(service *mockOrderService) {
				service.On("PlaceOrder", mock.Anything, mock.MatchedBy(func(req orderengine.PlaceOrderRequest) bool {
					return !req.Simulation && req.Intent.Action == entity.OrderActionLongExit
				})).Return(&orderengine.PlaceOrderResult{
					History: &entity.OrderHistory{ID: 8, Status: entity.HistoryStatusNoAction},
					Outcome: &entity.SubmitOutcome{Position: 0},
				}, nil).Once()
			},
			wantCode: http.StatusOK,
			assertBody: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "no_action", body["status"])
				assert.NotContains(t, body, "trade")
				assert.NotContains(t, body, "order_id")
			},
		},
		{
			name:   "login fault",
			target: "/order",
			body:   `{"action":"long_entry","quantity":1,"symbol":"MXF202611"}`,
			mockFn: func(service *mockOrderService) {
				service.On("PlaceOrder", mock.Anything, mock.Anything).Return(&orderengine.PlaceOrderResult{
					History: &entity.OrderHistory{ID: 9, Status: entity.HistoryStatusFailed},
				}, entity.NewLoginFault(entity.LoginFaultMaintenance, "system maintenance", nil)).Once()
			},
			wantCode: http.StatusServiceUnavailable,
			assertBody: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "maintenance", body["kind"])
				assert.Equal(t, float64(9), body["history_id"])
			},
		},
		{
			name:   "order fault",
			target: "/order",
			body:   `{"action":"short_entry","quantity":1,"symbol":"MXF202611"}`,
			mockFn: func(service *mockOrderService) {
				service.On("PlaceOrder", mock.Anything, mock.Anything).Return(nil,
					entity.NewOrderFault(entity.OrderFaultAccountNotAuthorized, "account not signed", nil)).Once()
			},
			wantCode: http.StatusBadRequest,
			assertBody: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "account_not_authorized", body["kind"])
			},
		},
		{
			name:   "unknown instrument",
			target: "/order",
			body:   `{"action":"short_entry","quantity":1,"symbol":"ZZZ"}`,
			mockFn: func(service *mockOrderService) {
				service.On("PlaceOrder", mock.Anything, mock.Anything).Return(nil,
					&entity.InstrumentNotFoundError{Query: "ZZZ"}).Once()
			},
			wantCode: http.StatusNotFound,
		},
		{
			name:   "duplicate request",
			target: "/order",
			body:   `{"action":"short_entry","quantity":1,"symbol":"MXF202611","request_id":"dup"}`,
			mockFn: func(service *mockOrderService) {
				service.On("PlaceOrder", mock.Anything, mock.Anything).Return(nil, orderengine.ErrDuplicateOrder).Once()
			},
			wantCode: http.StatusConflict,
		},
		{
			name:   "instrument busy",
			target: "/order",
			body:   `{"action":"short_entry","quantity":1,"symbol":"MXF202611"}`,
			mockFn: func(service *mockOrderService) {
				service.On("PlaceOrder", mock.Anything, mock.Anything).Return(nil,
					errors.Join(orderengine.ErrInstrumentBusy, context.DeadlineExceeded)).Once()
			},
			wantCode: http.StatusServiceUnavailable,
		},
		{
			name:     "invalid json",
			target:   "/order",
			body:     `{"action":`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "invalid action",
			target:   "/order",
			body:     `{"action":"flip","quantity":1,"symbol":"MXF202611"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "zero quantity",
			target:   "/order",
			body:     `{"action":"long_exit","quantity":0,"symbol":"MXF202611"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing symbol",
			target:   "/order",
			body:     `{"action":"long_exit","quantity":1,"symbol":"  "}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "invalid simulation flag",
			target:   "/order?simulation=maybe",
			body:     `{"action":"long_exit","quantity":1,"symbol":"MXF202611"}`,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := newTestHandler(t, nil)
			if tt.mockFn != nil {
				tt.mockFn(th.service)
			}

			rec := th.do(http.MethodPost, tt.target, tt.body, nil)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.assertBody != nil {
				tt.assertBody(t, decodeBody(t, rec))
			}
		})
	}
}

func TestHandler_PlaceOrderWebhookKey(t *testing.T) {
	th := newTestHandler(t, func(cfg *HandlerConfig) {
		cfg.WebhookKeyRequired = true
	})

	body := `{"action":"long_entry","quantity":1,"symbol":"MXF202611"}`
	rec := th.do(http.MethodPost, "/order", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = th.do(http.MethodPost, "/order", body, map[string]string{constant.HeaderAuthKey: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	th.service.On("PlaceOrder", mock.Anything, mock.Anything).Return(&orderengine.PlaceOrderResult{
		History: &entity.OrderHistory{ID: 1, Status: entity.HistoryStatusNoAction},
	}, nil).Twice()

	rec = th.do(http.MethodPost, "/order", body, authHeader())
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = th.do(http.MethodPost, "/order", `{"action":"long_entry","quantity":1,"symbol":"MXF202611","auth_key":"secret-key"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_PlaceOrderAsync(t *testing.T) {
	th := newTestHandler(t, nil)

	th.service.On("PlaceOrderAsync", mock.Anything, mock.Anything).Return(&orderengine.PlaceOrderAsyncResult{
		History: &entity.OrderHistory{ID: 11, RequestID: null.StringFrom("req-async"), Status: entity.HistoryStatusPending},
	}, nil).Once()

	rec := th.do(http.MethodPost, "/order/async", `{"action":"short_exit","quantity":1,"symbol":"MXF202611","request_id":"req-async"}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "queued", body["status"])
	assert.Equal(t, float64(11), body["history_id"])
	assert.Equal(t, "req-async", body["request_id"])

	th.service.On("PlaceOrderAsync", mock.Anything, mock.Anything).Return(nil, orderengine.ErrAsyncOrderDisabled).Once()
	rec = th.do(http.MethodPost, "/order/async", `{"action":"short_exit","quantity":1,"symbol":"MXF202611"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandler_ListOrders(t *testing.T) {
	th := newTestHandler(t, nil)

	rec := th.do(http.MethodGet, "/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	createdAt := time.Date(2026, 10, 19, 2, 0, 0, 0, time.UTC)
	th.service.On("ListOrderHistories", mock.Anything, mock.MatchedBy(func(filter entity.OrderHistoryFilter) bool {
		return filter.Symbol == "MXF202611" &&
			filter.Limit == 10 &&
			filter.Offset == 5 &&
			filter.StartDate.Equal(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)) &&
			filter.EndDate.Equal(time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC))
	})).Return([]entity.OrderHistory{
		{
			ID:           3,
			Symbol:       "MXF202611",
			Action:       entity.OrderActionLongEntry,
			Quantity:     1,
			Status:       entity.HistoryStatusSuccess,
			OrderID:      null.StringFrom("ord-3"),
			FillStatus:   null.StringFrom("Filled"),
			FillQuantity: null.IntFrom(1),
			FillPrice:    decimal.NewNullDecimal(decimal.NewFromInt(22850)),
			CreatedAt:    createdAt,
			UpdatedAt:    createdAt,
		},
	}, int64(42), nil).Once()

	rec = th.do(http.MethodGet, "/orders?symbol=MXF202611&limit=10&offset=5&start_date=2026-10-01&end_date=2026-10-19", "", authHeader())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, float64(42), body["total"])
	orders, ok := body["orders"].([]any)
	require.True(t, ok)
	order := orders[0].(map[string]any)
	assert.Equal(t, "22850", order["fill_price"])
	assert.Equal(t, "2026-10-19T02:00:00Z", order["created_at"])

	for _, target := range []string{"/orders?limit=0", "/orders?limit=1001", "/orders?offset=-1", "/orders?start_date=19-10-2026"} {
		rec = th.do(http.MethodGet, target, "", authHeader())
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestHandler_ExportOrders(t *testing.T) {
	th := newTestHandler(t, nil)
	createdAt := time.Date(2026, 10, 19, 2, 0, 0, 0, time.UTC)

	th.service.On("ListOrderHistories", mock.Anything, mock.MatchedBy(func(filter entity.OrderHistoryFilter) bool {
		return filter.Limit == 0 && filter.Status == "failed"
	})).Return([]entity.OrderHistory{
		{
			ID:           5,
			Symbol:       "TXF202611",
			Action:       entity.OrderActionShortEntry,
			Quantity:     2,
			Status:       entity.HistoryStatusFailed,
			ErrorMessage: null.StringFrom("login failed (timeout): broker, unavailable"),
			CreatedAt:    createdAt,
		},
	}, int64(1), nil).Twice()

	rec := th.do(http.MethodGet, "/orders/export?status=failed", "", authHeader())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "order_history.csv")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,symbol,action,quantity,status,fill_status,fill_quantity,fill_price,order_id,error_message,created_at", lines[0])
	assert.Equal(t, `5,TXF202611,short_entry,2,failed,,,,,"login failed (timeout): broker, unavailable",2026-10-19T02:00:00Z`, lines[1])

	rec = th.do(http.MethodGet, "/orders/export?status=failed&format=json", "", authHeader())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "order_history.json")
	var orders []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, "failed", orders[0]["status"])

	rec = th.do(http.MethodGet, "/orders/export?format=xml", "", authHeader())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_RecheckOrder(t *testing.T) {
	th := newTestHandler(t, nil)

	checkedAt := time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	th.service.On("RecheckOrder", mock.Anything, int64(4)).Return(&orderengine.RecheckResult{
		History: &entity.OrderHistory{
			ID:            4,
			Status:        entity.HistoryStatusSuccess,
			FillStatus:    null.StringFrom("Submitted"),
			FillQuantity:  null.IntFrom(0),
			FillCheckedAt: null.TimeFrom(checkedAt),
		},
		PreviousFillStatus: null.StringFrom("Submitted"),
		Status:             entity.UnknownOrderStatus(errors.New("broker unavailable")),
	}, nil).Once()

	rec := th.do(http.MethodPost, "/orders/4/recheck", "", authHeader())
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "status_unknown", body["current_fill_status"])
	assert.Equal(t, "Submitted", body["previous_fill_status"])
	assert.Equal(t, "broker unavailable", body["error"])
	assert.Equal(t, float64(0), body["fill_quantity"])
	assert.Equal(t, []any{}, body["deals"])

	th.service.On("RecheckOrder", mock.Anything, int64(5)).Return(nil, orderengine.ErrNoBrokerOrder).Once()
	rec = th.do(http.MethodPost, "/orders/5/recheck", "", authHeader())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	th.service.On("RecheckOrder", mock.Anything, int64(6)).Return(nil, repository.ErrOrderHistoryNotFound).Once()
	rec = th.do(http.MethodPost, "/orders/6/recheck", "", authHeader())
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = th.do(http.MethodPost, "/orders/abc/recheck", "", authHeader())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Symbols(t *testing.T) {
	th := newTestHandler(t, nil)

	instruments := []entity.Instrument{
		{Symbol: "MXF202611", Code: "MXFK6", Name: "mini", Reference: decimal.NewFromInt(22850), Unit: 1},
		{Symbol: "TXF202611", Code: "TXFK6", Name: "big", Reference: decimal.NewFromInt(22852), Unit: 1},
	}
	th.service.On("ListInstruments", mock.Anything, entity.TradingModeSimulated).Return(instruments, nil).Twice()
	th.service.On("GetInstrument", mock.Anything, entity.TradingModeLive, "MXF202611").Return(instruments[0], nil).Once()
	th.service.On("GetInstrument", mock.Anything, entity.TradingModeSimulated, "NOPE").
		Return(entity.Instrument{}, &entity.InstrumentNotFoundError{Query: "NOPE"}).Once()

	rec := th.do(http.MethodGet, "/symbols", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, []any{"MXF202611", "TXF202611"}, body["symbols"])
	assert.Equal(t, float64(2), body["count"])

	rec = th.do(http.MethodGet, "/contracts", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	contracts := body["contracts"].([]any)
	assert.Equal(t, "MXFK6", contracts[0].(map[string]any)["code"])

	rec = th.do(http.MethodGet, "/symbols/MXF202611?simulation=false", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, "22850", body["reference"])

	rec = th.do(http.MethodGet, "/symbols/NOPE", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_ListPositions(t *testing.T) {
	th := newTestHandler(t, nil)

	rec := th.do(http.MethodGet, "/positions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	th.service.On("ListPositions", mock.Anything, entity.TradingModeSimulated).Return([]entity.BrokerPosition{
		{ID: 1, Code: "MXFK6", Direction: entity.OrderSideSell, Quantity: 2, Price: decimal.NewFromInt(22850)},
	}, nil).Once()
	rec = th.do(http.MethodGet, "/positions", "", authHeader())
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	position := body["positions"].([]any)[0].(map[string]any)
	assert.Equal(t, "SELL", position["direction"])
	assert.Equal(t, float64(2), position["quantity"])

	th.service.On("ListPositions", mock.Anything, entity.TradingModeLive).Return(nil,
		errors.Join(orderengine.ErrBrokerQueryFailed, errors.New("status 500"))).Once()
	rec = th.do(http.MethodGet, "/positions?simulation=false", "", authHeader())
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandler_APIKeys(t *testing.T) {
	th := newTestHandler(t, func(cfg *HandlerConfig) {
		cfg.APIKeys = []config.APIKeyConfig{
			{Name: "tradingview", Key: "tv-key", Active: true, ExpiredAt: "2099-01-01"},
			{Name: "retired", Key: "old-key", Active: false},
			{Name: "expired", Key: "exp-key", Active: true, ExpiredAt: "2020-01-01T00:00:00Z"},
		}
	})
	th.service.On("ListPositions", mock.Anything, mock.Anything).Return([]entity.BrokerPosition{}, nil).Once()

	tests := map[string]int{
		"tv-key":  http.StatusOK,
		"old-key": http.StatusUnauthorized,
		"exp-key": http.StatusUnauthorized,
		"nope":    http.StatusUnauthorized,
	}
	for key, wantCode := range tests {
		rec := th.do(http.MethodGet, "/positions", "", map[string]string{constant.HeaderAuthKey: key})
		assert.Equal(t, wantCode, rec.Code, key)
	}
}

func TestHandler_Readyz(t *testing.T) {
	th := newTestHandler(t, func(cfg *HandlerConfig) {
		cfg.Readiness = map[string]ReadinessCheck{
			"database": func(context.Context) error { return errors.New("connection refused") },
		}
	})

	rec := th.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = th.do(http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, map[string]any{"database": "connection refused"}, body["failures"])
}

func TestHandler_StreamOrders(t *testing.T) {
	th := newTestHandler(t, nil)
	server := httptest.NewServer(th.mux)
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/orders"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?auth_key="+testAuthKey, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return th.hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	th.hub.Publish(entity.OrderEvent{
		Type:    entity.OrderEventFinalized,
		History: entity.OrderHistory{ID: 12, Symbol: "MXF202611", Status: entity.HistoryStatusSuccess},
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event map[string]any
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "order_finalized", event["type"])
	history := event["history"].(map[string]any)
	assert.Equal(t, float64(12), history["id"])
}
