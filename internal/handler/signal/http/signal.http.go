package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/signal-order-service/internal/config"
	"github.com/krobus00/signal-order-service/internal/entity"
	"github.com/krobus00/signal-order-service/internal/metrics"
	"github.com/krobus00/signal-order-service/internal/repository"
	"github.com/krobus00/signal-order-service/internal/service/orderengine"
	"github.com/sirupsen/logrus"
)

var errInvalidSimulation = errors.New("simulation must be a boolean")

// OrderService is the order engine surface used by the HTTP handler.
type OrderService interface {
	PlaceOrder(ctx context.Context, req orderengine.PlaceOrderRequest) (*orderengine.PlaceOrderResult, error)
	PlaceOrderAsync(ctx context.Context, req orderengine.PlaceOrderRequest) (*orderengine.PlaceOrderAsyncResult, error)
	RecheckOrder(ctx context.Context, id int64) (*orderengine.RecheckResult, error)
	ListInstruments(ctx context.Context, mode entity.TradingMode) ([]entity.Instrument, error)
	GetInstrument(ctx context.Context, mode entity.TradingMode, query string) (entity.Instrument, error)
	ListPositions(ctx context.Context, mode entity.TradingMode) ([]entity.BrokerPosition, error)
	ListOrderHistories(ctx context.Context, filter entity.OrderHistoryFilter) ([]entity.OrderHistory, int64, error)
}

// OrderFeed streams order history changes.
type OrderFeed interface {
	Subscribe() (<-chan entity.OrderEvent, func())
}

type ReadinessCheck func(ctx context.Context) error

type HandlerConfig struct {
	AuthKey            string
	APIKeys            []config.APIKeyConfig
	WebhookKeyRequired bool
	DefaultSimulation  bool
	Readiness          map[string]ReadinessCheck
}

type Handler struct {
	orderService OrderService
	feed         OrderFeed
	cfg          HandlerConfig
	now          func() time.Time
}

func NewSignalHTTPHandler(orderService OrderService, feed OrderFeed, cfg HandlerConfig) *Handler {
	return &Handler{
		orderService: orderService,
		feed:         feed,
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /symbols", h.ListSymbols)
	mux.HandleFunc("GET /symbols/{symbol}", h.GetSymbol)
	mux.HandleFunc("GET /contracts", h.ListContracts)
	mux.HandleFunc("GET /positions", h.requireAuth(h.ListPositions))
	mux.HandleFunc("POST /order", h.PlaceOrder)
	mux.HandleFunc("POST /order/async", h.PlaceOrderAsync)
	mux.HandleFunc("GET /orders", h.requireAuth(h.ListOrders))
	mux.HandleFunc("GET /orders/export", h.requireAuth(h.ExportOrders))
	mux.HandleFunc("POST /orders/{id}/recheck", h.requireAuth(h.RecheckOrder))
	mux.HandleFunc("GET /ws/orders", h.StreamOrders)
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.Handle("GET /metrics", metrics.Handler())
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	failures := make(map[string]string)
	for name, check := range h.cfg.Readiness {
		if err := check(r.Context()); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "failures": failures})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// tradingMode reads the simulation query flag, falling back to the configured default.
func (h *Handler) tradingMode(r *http.Request) (entity.TradingMode, error) {
	simulation, err := h.simulation(r)
	if err != nil {
		return "", err
	}
	return entity.TradingModeFromSimulation(simulation), nil
}

func (h *Handler) simulation(r *http.Request) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("simulation"))
	if raw == "" {
		return h.cfg.DefaultSimulation, nil
	}

	simulation, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errInvalidSimulation
	}
	return simulation, nil
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"error": err.Error()})
}

// writeServiceError maps order engine errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error, extra map[string]any) {
	body := map[string]any{"error": err.Error()}
	for key, value := range extra {
		body[key] = value
	}

	var (
		loginFault *entity.LoginFault
		orderFault *entity.OrderFault
		notFound   *entity.InstrumentNotFoundError
	)

	code := http.StatusInternalServerError
	switch {
	case errors.As(err, &loginFault):
		code = http.StatusServiceUnavailable
		body["kind"] = loginFault.Kind
	case errors.As(err, &orderFault):
		code = http.StatusBadRequest
		body["kind"] = orderFault.Kind
	case errors.As(err, &notFound):
		code = http.StatusNotFound
	case errors.Is(err, orderengine.ErrDuplicateOrder):
		code = http.StatusConflict
	case errors.Is(err, orderengine.ErrInvalidOrderRequest),
		errors.Is(err, orderengine.ErrNoBrokerOrder):
		code = http.StatusBadRequest
	case errors.Is(err, repository.ErrOrderHistoryNotFound):
		code = http.StatusNotFound
	case errors.Is(err, orderengine.ErrInstrumentBusy),
		errors.Is(err, orderengine.ErrAsyncOrderDisabled):
		code = http.StatusServiceUnavailable
	case errors.Is(err, orderengine.ErrBrokerQueryFailed),
		errors.Is(err, orderengine.ErrPublishOrderIntentFailed):
		code = http.StatusBadGateway
	default:
		logrus.WithError(err).Error("unhandled order service error")
		body["error"] = "internal server error"
	}

	writeJSON(w, code, body)
}
