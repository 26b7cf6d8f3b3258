package broker

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/signal-order-service/internal/config"
	"github.com/krobus00/signal-order-service/internal/entity"
	"github.com/krobus00/signal-order-service/internal/metrics"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	defaultRequestTimeout   = 10 * time.Second
	defaultRateLimit        = 5
	defaultBreakerRequests  = 3
	defaultBreakerInterval  = 60 * time.Second
	defaultBreakerTimeout   = 30 * time.Second
	defaultBreakerThreshold = 5
	maxErrorBodyBytes       = 512
)

var (
	ErrBrokerBaseURLMissing = errors.New("broker base url is required")
)

type apiResp struct {
	Code      int             `json:"code"`
	ErrorType string          `json:"error_type"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
}

type loginResp struct {
	Token    string                 `json:"token"`
	Accounts []entity.BrokerAccount `json:"accounts"`
}

type contractResp struct {
	Symbol         string `json:"symbol"`
	Code           string `json:"code"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	Exchange       string `json:"exchange"`
	DeliveryMonth  string `json:"delivery_month"`
	UnderlyingKind string `json:"underlying_kind"`
	Unit           int64  `json:"unit"`
	LimitUp        string `json:"limit_up"`
	LimitDown      string `json:"limit_down"`
	Reference      string `json:"reference"`
}

type positionResp struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	Direction string `json:"direction"`
	Quantity  int64  `json:"quantity"`
	Price     string `json:"price"`
	LastPrice string `json:"last_price"`
	PnL       string `json:"pnl"`
}

// SinopacBroker talks to the brokerage REST gateway. Every request is signed with the
// account secret, throttled by a token bucket and guarded by a circuit breaker.
type SinopacBroker struct {
	mode       entity.TradingMode
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]

	mu         sync.RWMutex
	token      string
	credential entity.BrokerCredential
}

func NewSinopacBrokerFactory(cfg config.BrokerConfig) entity.BrokerFactory {
	return func(mode entity.TradingMode) (entity.Broker, error) {
		return NewSinopacBroker(cfg, mode)
	}
}

func NewSinopacBroker(cfg config.BrokerConfig, mode entity.TradingMode) (*SinopacBroker, error) {
	baseURL := cfg.BaseURL
	if mode.Simulation() && strings.TrimSpace(cfg.SimulationBaseURL) != "" {
		baseURL = cfg.SimulationBaseURL
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrBrokerBaseURLMissing
	}

	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(limit)
	}

	breakerCfg := cfg.CircuitBreaker
	if breakerCfg.MaxRequests == 0 {
		breakerCfg.MaxRequests = defaultBreakerRequests
	}
	if breakerCfg.Interval <= 0 {
		breakerCfg.Interval = defaultBreakerInterval
	}
	if breakerCfg.Timeout <= 0 {
		breakerCfg.Timeout = defaultBreakerTimeout
	}
	if breakerCfg.MaxFailures == 0 {
		breakerCfg.MaxFailures = defaultBreakerThreshold
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        fmt.Sprintf("sinopac-%s", mode),
		MaxRequests: breakerCfg.MaxRequests,
		Interval:    breakerCfg.Interval,
		Timeout:     breakerCfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerCfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isBusinessError(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("broker circuit breaker state changed")
		},
	})

	return &SinopacBroker{
		mode:       mode,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(limit), burst),
		breaker:    breaker,
	}, nil
}

func (b *SinopacBroker) Login(ctx context.Context, credential entity.BrokerCredential) ([]entity.BrokerAccount, error) {
	b.mu.Lock()
	b.credential = credential
	b.token = ""
	b.mu.Unlock()

	body := map[string]any{
		"api_key":    credential.APIKey,
		"simulation": b.mode.Simulation(),
	}

	var resp loginResp
	if err := b.do(ctx, "login", http.MethodPost, "/api/v1/auth/login", body, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, entity.NewBrokerError(entity.BrokerErrorToken, "login returned an empty token", nil)
	}

	b.mu.Lock()
	b.token = resp.Token
	b.mu.Unlock()

	return resp.Accounts, nil
}

func (b *SinopacBroker) ActivateCA(ctx context.Context, ca entity.CACredential, personID string) error {
	certificate, err := os.ReadFile(ca.Path)
	if err != nil {
		return fmt.Errorf("read ca certificate: %w", err)
	}

	body := map[string]any{
		"person_id":   personID,
		"ca_password": ca.Password,
		"certificate": base64.StdEncoding.EncodeToString(certificate),
	}

	return b.do(ctx, "activate_ca", http.MethodPost, "/api/v1/auth/ca", body, nil)
}

func (b *SinopacBroker) Logout(ctx context.Context) error {
	if b.currentToken() == "" {
		return nil
	}

	err := b.do(ctx, "logout", http.MethodPost, "/api/v1/auth/logout", nil, nil)

	b.mu.Lock()
	b.token = ""
	b.mu.Unlock()

	return err
}

func (b *SinopacBroker) ListFutures(ctx context.Context, family string) ([]entity.Instrument, error) {
	var resp []contractResp
	path := "/api/v1/contracts/futures/" + url.PathEscape(family)
	if err := b.do(ctx, "list_futures", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	instruments := make([]entity.Instrument, 0, len(resp))
	for _, contract := range resp {
		instruments = append(instruments, entity.Instrument{
			Symbol:         contract.Symbol,
			Code:           contract.Code,
			Name:           contract.Name,
			Category:       contract.Category,
			Exchange:       contract.Exchange,
			DeliveryMonth:  contract.DeliveryMonth,
			UnderlyingKind: contract.UnderlyingKind,
			Unit:           contract.Unit,
			LimitUp:        decimalOrZero(contract.LimitUp),
			LimitDown:      decimalOrZero(contract.LimitDown),
			Reference:      decimalOrZero(contract.Reference),
		})
	}

	return instruments, nil
}

func (b *SinopacBroker) ListPositions(ctx context.Context, account entity.BrokerAccount) ([]entity.BrokerPosition, error) {
	var resp []positionResp
	path := "/api/v1/accounts/" + url.PathEscape(account.AccountID) + "/positions"
	if err := b.do(ctx, "list_positions", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	positions := make([]entity.BrokerPosition, 0, len(resp))
	for _, position := range resp {
		direction, err := sinopacSideFromAction(position.Direction)
		if err != nil {
			return nil, entity.NewBrokerError(entity.BrokerErrorRejected, err.Error(), err)
		}

		positions = append(positions, entity.BrokerPosition{
			ID:        position.ID,
			Code:      position.Code,
			Direction: direction,
			Quantity:  position.Quantity,
			Price:     decimalOrZero(position.Price),
			LastPrice: decimalOrZero(position.LastPrice),
			PnL:       decimalOrZero(position.PnL),
		})
	}

	return positions, nil
}

func (b *SinopacBroker) PlaceOrder(ctx context.Context, account entity.BrokerAccount, instrument entity.Instrument, order entity.BrokerOrder) (*entity.BrokerTrade, error) {
	action, err := sinopacActionFromSide(order.Action)
	if err != nil {
		return nil, entity.NewBrokerError(entity.BrokerErrorRejected, err.Error(), err)
	}

	body := map[string]any{
		"code":       instrument.Code,
		"action":     action,
		"price":      order.Price,
		"quantity":   order.Quantity,
		"price_type": order.PriceType,
		"order_type": order.TimeInForce,
		"octype":     order.OCType,
	}

	var resp entity.BrokerTrade
	path := "/api/v1/accounts/" + url.PathEscape(account.AccountID) + "/orders"
	if err := b.do(ctx, "place_order", http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	if resp.OrderID == "" {
		return nil, entity.NewBrokerError(entity.BrokerErrorRejected, "order accepted without an order id", nil)
	}

	logrus.WithFields(logrus.Fields{
		"mode":     b.mode,
		"code":     instrument.Code,
		"action":   action,
		"quantity": order.Quantity,
		"order_id": resp.OrderID,
		"seqno":    resp.SeqNo,
	}).Info("order placed")

	return &resp, nil
}

func (b *SinopacBroker) OrderStatus(ctx context.Context, account entity.BrokerAccount, orderID string) (*entity.BrokerOrderStatus, error) {
	var resp entity.BrokerOrderStatus
	path := "/api/v1/accounts/" + url.PathEscape(account.AccountID) + "/orders/" + url.PathEscape(orderID) + "/status"
	if err := b.do(ctx, "order_status", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

func (b *SinopacBroker) currentToken() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.token
}

func (b *SinopacBroker) do(ctx context.Context, operation, method, path string, body any, out any) error {
	started := time.Now()
	defer func() {
		metrics.BrokerCallDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	}()

	if err := b.limiter.Wait(ctx); err != nil {
		return entity.NewBrokerError(entity.BrokerErrorTimeout, "rate limiter wait aborted", err)
	}

	data, err := b.breaker.Execute(func() ([]byte, error) {
		return b.send(ctx, method, path, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return entity.NewBrokerError(entity.BrokerErrorUnavailable, "broker circuit is open", err)
		}
		return err
	}

	if out == nil || len(data) == 0 || string(data) == "null" {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return entity.NewBrokerError(entity.BrokerErrorRejected, fmt.Sprintf("%s response data parse failed", operation), err)
	}

	return nil
}

func (b *SinopacBroker) send(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	credential := b.credential
	token := b.token
	b.mu.RUnlock()

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", credential.APIKey)
	req.Header.Set("X-TIMESTAMP", timestamp)
	req.Header.Set("X-SIGNATURE", hmacSHA256Hex(credential.SecretKey, timestamp+method+path+string(payload)))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, entity.NewBrokerError(entity.BrokerErrorTimeout, fmt.Sprintf("%s %s timed out", method, path), err)
		}
		return nil, entity.NewBrokerError(entity.BrokerErrorUnavailable, fmt.Sprintf("%s %s failed", method, path), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, entity.NewBrokerError(entity.BrokerErrorTimeout, fmt.Sprintf("%s %s timed out", method, path), err)
		}
		return nil, entity.NewBrokerError(entity.BrokerErrorUnavailable, fmt.Sprintf("%s %s read failed", method, path), err)
	}

	var envelope apiResp
	if err := json.Unmarshal(raw, &envelope); err != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, entity.NewBrokerError(entity.BrokerErrorUnavailable, fmt.Sprintf("status=%d body=%s", resp.StatusCode, truncate(raw)), err)
		}
		return nil, entity.NewBrokerError(entity.BrokerErrorRejected, fmt.Sprintf("response parse failed: status=%d body=%s", resp.StatusCode, truncate(raw)), err)
	}

	if envelope.ErrorType != "" || envelope.Code != 0 || resp.StatusCode >= http.StatusBadRequest {
		return nil, mapSinopacError(resp.StatusCode, envelope)
	}

	return envelope.Data, nil
}

func mapSinopacError(statusCode int, envelope apiResp) *entity.BrokerError {
	message := envelope.Message
	if message == "" {
		message = fmt.Sprintf("status=%d code=%d", statusCode, envelope.Code)
	}

	switch code := entity.BrokerErrorCode(envelope.ErrorType); code {
	case entity.BrokerErrorToken,
		entity.BrokerErrorMaintenance,
		entity.BrokerErrorTimeout,
		entity.BrokerErrorAccountNotSigned,
		entity.BrokerErrorAccountNotProvided,
		entity.BrokerErrorContractNotFound:
		return entity.NewBrokerError(code, message, nil)
	}

	switch statusCode {
	case http.StatusUnauthorized:
		return entity.NewBrokerError(entity.BrokerErrorToken, message, nil)
	case http.StatusServiceUnavailable:
		return entity.NewBrokerError(entity.BrokerErrorMaintenance, message, nil)
	case http.StatusGatewayTimeout:
		return entity.NewBrokerError(entity.BrokerErrorTimeout, message, nil)
	}

	switch {
	case statusCode >= http.StatusInternalServerError:
		return entity.NewBrokerError(entity.BrokerErrorUnavailable, message, nil)
	default:
		return entity.NewBrokerError(entity.BrokerErrorRejected, message, nil)
	}
}

// isBusinessError reports whether the broker answered. Those answers never count
// against the circuit breaker.
func isBusinessError(err error) bool {
	var brokerErr *entity.BrokerError
	if !errors.As(err, &brokerErr) {
		return false
	}

	switch brokerErr.Code {
	case entity.BrokerErrorTimeout, entity.BrokerErrorMaintenance, entity.BrokerErrorUnavailable:
		return false
	default:
		return true
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sinopacActionFromSide(side entity.OrderSide) (string, error) {
	switch side {
	case entity.OrderSideBuy:
		return "Buy", nil
	case entity.OrderSideSell:
		return "Sell", nil
	default:
		return "", fmt.Errorf("unsupported order side for sinopac: %s", side)
	}
}

func sinopacSideFromAction(action string) (entity.OrderSide, error) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "buy":
		return entity.OrderSideBuy, nil
	case "sell":
		return entity.OrderSideSell, nil
	default:
		return "", fmt.Errorf("unsupported sinopac position direction: %q", action)
	}
}

func hmacSHA256Hex(secret, payload string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return fmt.Sprintf("%x", h.Sum(nil))
}

func truncate(raw []byte) string {
	if len(raw) > maxErrorBodyBytes {
		return string(raw[:maxErrorBodyBytes])
	}
	return string(raw)
}
