package entity

import (
	"context"
	"fmt"
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

type TradingMode string

const (
	TradingModeLive      TradingMode = "live"
	TradingModeSimulated TradingMode = "simulated"
)

func TradingModeFromSimulation(simulation bool) TradingMode {
	if simulation {
		return TradingModeSimulated
	}
	return TradingModeLive
}

func (m TradingMode) Simulation() bool {
	return m != TradingModeLive
}

type BrokerCredential struct {
	APIKey    string
	SecretKey string
}

type CACredential struct {
	Path     string
	Password string
}

const BrokerAccountTypeFutures = "F"

type BrokerAccount struct {
	AccountID   string `json:"account_id"`
	PersonID    string `json:"person_id"`
	BrokerID    string `json:"broker_id"`
	AccountType string `json:"account_type"`
	Signed      bool   `json:"signed"`
}

type BrokerPosition struct {
	ID        int64           `json:"id"`
	Code      string          `json:"code"`
	Direction OrderSide       `json:"direction"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	LastPrice decimal.Decimal `json:"last_price"`
	PnL       decimal.Decimal `json:"pnl"`
}

// Net returns the signed quantity of the position.
func (p BrokerPosition) Net() (int64, error) {
	switch p.Direction {
	case OrderSideBuy:
		return p.Quantity, nil
	case OrderSideSell:
		return -p.Quantity, nil
	default:
		return 0, fmt.Errorf("unknown position direction: %q", p.Direction)
	}
}

type BrokerOrder struct {
	Action      OrderSide     `json:"action"`
	Quantity    int64         `json:"quantity"`
	Price       int64         `json:"price"`
	PriceType   PriceType     `json:"price_type"`
	TimeInForce TimeInForce   `json:"order_type"`
	OCType      OpenCloseType `json:"octype"`
}

type BrokerDeal struct {
	Seq       string          `json:"seq"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Timestamp int64           `json:"ts"`
}

// BrokerOrderStatus is the raw status payload. Any field may be absent.
type BrokerOrderStatus struct {
	ID             null.String  `json:"id"`
	Status         null.String  `json:"status"`
	StatusCode     null.String  `json:"status_code"`
	Msg            null.String  `json:"msg"`
	OrderQuantity  null.Int     `json:"order_quantity"`
	DealQuantity   null.Int     `json:"deal_quantity"`
	CancelQuantity null.Int     `json:"cancel_quantity"`
	Deals          []BrokerDeal `json:"deals"`
}

type BrokerTrade struct {
	OrderID string            `json:"order_id"`
	SeqNo   string            `json:"seqno"`
	OrdNo   string            `json:"ordno"`
	Status  BrokerOrderStatus `json:"status"`
}

// Broker is one authenticated connection to the brokerage. Implementations keep the
// session token internally after Login.
type Broker interface {
	Login(ctx context.Context, credential BrokerCredential) ([]BrokerAccount, error)
	ActivateCA(ctx context.Context, ca CACredential, personID string) error
	Logout(ctx context.Context) error
	ListFutures(ctx context.Context, family string) ([]Instrument, error)
	ListPositions(ctx context.Context, account BrokerAccount) ([]BrokerPosition, error)
	PlaceOrder(ctx context.Context, account BrokerAccount, instrument Instrument, order BrokerOrder) (*BrokerTrade, error)
	OrderStatus(ctx context.Context, account BrokerAccount, orderID string) (*BrokerOrderStatus, error)
}

type BrokerFactory func(mode TradingMode) (Broker, error)

// Session is a logged in broker connection bound to the futures account.
type Session struct {
	Mode       TradingMode
	Broker     Broker
	Account    BrokerAccount
	AcquiredAt time.Time
}

type BrokerErrorCode string

const (
	BrokerErrorToken              BrokerErrorCode = "TokenError"
	BrokerErrorMaintenance        BrokerErrorCode = "SystemMaintenance"
	BrokerErrorTimeout            BrokerErrorCode = "TimeoutError"
	BrokerErrorAccountNotSigned   BrokerErrorCode = "AccountNotSignError"
	BrokerErrorAccountNotProvided BrokerErrorCode = "AccountNotProvideError"
	BrokerErrorContractNotFound   BrokerErrorCode = "TargetContractNotExistError"
	BrokerErrorUnavailable        BrokerErrorCode = "Unavailable"
	BrokerErrorRejected           BrokerErrorCode = "Rejected"
)

// BrokerError is the raw fault raised by a Broker implementation.
type BrokerError struct {
	Code    BrokerErrorCode
	Message string
	Err     error
}

func NewBrokerError(code BrokerErrorCode, message string, err error) *BrokerError {
	return &BrokerError{Code: code, Message: message, Err: err}
}

func (e *BrokerError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}
