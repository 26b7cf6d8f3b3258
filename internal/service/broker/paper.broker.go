package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v6"
	"github.com/krobus00/signal-order-service/internal/config"
	"github.com/krobus00/signal-order-service/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var defaultPaperContracts = []config.PaperContractConfig{
	{Symbol: "MXF202611", Code: "MXFK6", Name: "小型臺指11", DeliveryMonth: "202611", Reference: "22850"},
	{Symbol: "MXF202612", Code: "MXFL6", Name: "小型臺指12", DeliveryMonth: "202612", Reference: "22870"},
	{Symbol: "MXFR1", Code: "MXFR1", Name: "小型臺指近月", DeliveryMonth: "202611", Reference: "22850"},
	{Symbol: "TXF202611", Code: "TXFK6", Name: "臺股期貨11", DeliveryMonth: "202611", Reference: "22852"},
	{Symbol: "TXF202612", Code: "TXFL6", Name: "臺股期貨12", DeliveryMonth: "202612", Reference: "22871"},
	{Symbol: "TXFR1", Code: "TXFR1", Name: "臺股期貨近月", DeliveryMonth: "202611", Reference: "22852"},
}

// paperBook is the in-memory state of one trading mode.
type paperBook struct {
	mu        sync.Mutex
	positions map[string]*entity.BrokerPosition
	orders    map[string]*entity.BrokerOrderStatus
	seq       int64
}

// PaperBroker fills IOC market orders in full at the contract reference price and
// nets them into an in-memory position book.
type PaperBroker struct {
	mode      entity.TradingMode
	contracts []entity.Instrument
	book      *paperBook

	mu       sync.RWMutex
	loggedIn bool
}

var _ entity.Broker = (*PaperBroker)(nil)
var _ entity.Broker = (*SinopacBroker)(nil)

// NewPaperBrokerFactory returns a factory whose brokers share one book per mode, so a
// re-acquired session still sees the positions of the previous one.
func NewPaperBrokerFactory(cfg config.PaperBrokerConfig) entity.BrokerFactory {
	contracts := paperInstruments(cfg.Contracts)

	var mu sync.Mutex
	books := make(map[entity.TradingMode]*paperBook)

	return func(mode entity.TradingMode) (entity.Broker, error) {
		mu.Lock()
		book, ok := books[mode]
		if !ok {
			book = &paperBook{
				positions: make(map[string]*entity.BrokerPosition),
				orders:    make(map[string]*entity.BrokerOrderStatus),
			}
			books[mode] = book
		}
		mu.Unlock()

		return &PaperBroker{mode: mode, contracts: contracts, book: book}, nil
	}
}

func (b *PaperBroker) Login(ctx context.Context, credential entity.BrokerCredential) ([]entity.BrokerAccount, error) {
	if strings.TrimSpace(credential.APIKey) == "" || strings.TrimSpace(credential.SecretKey) == "" {
		return nil, entity.NewBrokerError(entity.BrokerErrorToken, "api key and secret key are required", nil)
	}

	b.mu.Lock()
	b.loggedIn = true
	b.mu.Unlock()

	return []entity.BrokerAccount{
		{
			AccountID:   fmt.Sprintf("paper-%s", b.mode),
			PersonID:    "PAPER0001",
			BrokerID:    "PAPER",
			AccountType: entity.BrokerAccountTypeFutures,
			Signed:      true,
		},
	}, nil
}

func (b *PaperBroker) ActivateCA(ctx context.Context, ca entity.CACredential, personID string) error {
	return b.ensureLoggedIn()
}

func (b *PaperBroker) Logout(ctx context.Context) error {
	b.mu.Lock()
	b.loggedIn = false
	b.mu.Unlock()
	return nil
}

func (b *PaperBroker) ListFutures(ctx context.Context, family string) ([]entity.Instrument, error) {
	if err := b.ensureLoggedIn(); err != nil {
		return nil, err
	}

	instruments := make([]entity.Instrument, 0)
	for _, instrument := range b.contracts {
		if strings.HasPrefix(instrument.Symbol, family) {
			instruments = append(instruments, instrument)
		}
	}

	return instruments, nil
}

func (b *PaperBroker) ListPositions(ctx context.Context, account entity.BrokerAccount) ([]entity.BrokerPosition, error) {
	if err := b.ensureLoggedIn(); err != nil {
		return nil, err
	}

	b.book.mu.Lock()
	defer b.book.mu.Unlock()

	positions := make([]entity.BrokerPosition, 0, len(b.book.positions))
	for _, position := range b.book.positions {
		if position.Quantity == 0 {
			continue
		}
		positions = append(positions, *position)
	}

	return positions, nil
}

func (b *PaperBroker) PlaceOrder(ctx context.Context, account entity.BrokerAccount, instrument entity.Instrument, order entity.BrokerOrder) (*entity.BrokerTrade, error) {
	if err := b.ensureLoggedIn(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, entity.NewBrokerError(entity.BrokerErrorTimeout, "order submission aborted", ctx.Err())
	}

	contract, ok := b.findContract(instrument.Code)
	if !ok {
		return nil, entity.NewBrokerError(entity.BrokerErrorContractNotFound, fmt.Sprintf("contract %s does not exist", instrument.Code), nil)
	}
	if order.Quantity <= 0 {
		return nil, entity.NewBrokerError(entity.BrokerErrorRejected, "quantity must be positive", nil)
	}

	var signed int64
	switch order.Action {
	case entity.OrderSideBuy:
		signed = order.Quantity
	case entity.OrderSideSell:
		signed = -order.Quantity
	default:
		return nil, entity.NewBrokerError(entity.BrokerErrorRejected, fmt.Sprintf("unsupported action %s", order.Action), nil)
	}

	b.book.mu.Lock()
	defer b.book.mu.Unlock()

	b.book.seq++
	orderID := uuid.NewString()
	seqNo := fmt.Sprintf("%06d", b.book.seq)

	b.applyFill(contract, signed)

	status := &entity.BrokerOrderStatus{
		ID:             null.StringFrom(orderID),
		Status:         null.StringFrom(string(entity.OrderStateFilled)),
		StatusCode:     null.StringFrom("00"),
		OrderQuantity:  null.IntFrom(order.Quantity),
		DealQuantity:   null.IntFrom(order.Quantity),
		CancelQuantity: null.IntFrom(0),
		Deals: []entity.BrokerDeal{
			{
				Seq:       seqNo,
				Price:     contract.Reference,
				Quantity:  order.Quantity,
				Timestamp: time.Now().Unix(),
			},
		},
	}
	b.book.orders[orderID] = status

	logrus.WithFields(logrus.Fields{
		"mode":     b.mode,
		"code":     contract.Code,
		"side":     order.Action,
		"quantity": order.Quantity,
		"price":    contract.Reference.String(),
	}).Info("paper order filled")

	return &entity.BrokerTrade{
		OrderID: orderID,
		SeqNo:   seqNo,
		OrdNo:   seqNo,
		Status:  copyBrokerOrderStatus(status),
	}, nil
}

func (b *PaperBroker) OrderStatus(ctx context.Context, account entity.BrokerAccount, orderID string) (*entity.BrokerOrderStatus, error) {
	if err := b.ensureLoggedIn(); err != nil {
		return nil, err
	}

	b.book.mu.Lock()
	defer b.book.mu.Unlock()

	status, ok := b.book.orders[orderID]
	if !ok {
		return nil, entity.NewBrokerError(entity.BrokerErrorRejected, fmt.Sprintf("order %s not found", orderID), nil)
	}

	copied := copyBrokerOrderStatus(status)
	return &copied, nil
}

// applyFill nets a signed fill into the book. Caller holds book.mu.
func (b *PaperBroker) applyFill(contract entity.Instrument, signed int64) {
	position, ok := b.book.positions[contract.Code]
	if !ok {
		position = &entity.BrokerPosition{
			ID:        int64(len(b.book.positions) + 1),
			Code:      contract.Code,
			Direction: entity.OrderSideBuy,
		}
		b.book.positions[contract.Code] = position
	}

	current, _ := position.Net()
	next := current + signed

	switch {
	case next > 0:
		position.Direction = entity.OrderSideBuy
		position.Quantity = next
	case next < 0:
		position.Direction = entity.OrderSideSell
		position.Quantity = -next
	default:
		position.Quantity = 0
	}

	if current == 0 || (current > 0) != (next > 0) {
		position.Price = contract.Reference
	}
	position.LastPrice = contract.Reference
	position.PnL = decimal.Zero
}

func (b *PaperBroker) findContract(code string) (entity.Instrument, bool) {
	for _, contract := range b.contracts {
		if contract.Code == code {
			return contract, true
		}
	}
	return entity.Instrument{}, false
}

func (b *PaperBroker) ensureLoggedIn() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.loggedIn {
		return entity.NewBrokerError(entity.BrokerErrorToken, "paper session is not logged in", nil)
	}
	return nil
}

func paperInstruments(contracts []config.PaperContractConfig) []entity.Instrument {
	if len(contracts) == 0 {
		contracts = defaultPaperContracts
	}

	instruments := make([]entity.Instrument, 0, len(contracts))
	for _, contract := range contracts {
		reference := decimalOrZero(contract.Reference)
		instruments = append(instruments, entity.Instrument{
			Symbol:         contract.Symbol,
			Code:           contract.Code,
			Name:           contract.Name,
			Category:       contract.Symbol[:min(3, len(contract.Symbol))],
			Exchange:       "TAIFEX",
			DeliveryMonth:  contract.DeliveryMonth,
			UnderlyingKind: "I",
			Unit:           1,
			LimitUp:        reference.Mul(decimal.RequireFromString("1.1")).Round(0),
			LimitDown:      reference.Mul(decimal.RequireFromString("0.9")).Round(0),
			Reference:      reference,
		})
	}

	return instruments
}

func copyBrokerOrderStatus(status *entity.BrokerOrderStatus) entity.BrokerOrderStatus {
	copied := *status
	copied.Deals = append([]entity.BrokerDeal(nil), status.Deals...)
	return copied
}

func decimalOrZero(raw string) decimal.Decimal {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero
	}

	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero
	}
	return value
}
