package orderengine

import (
	"context"
	"time"

	"github.com/krobus00/signal-order-service/internal/entity"
)

type SessionProvider interface {
	Acquire(ctx context.Context, mode entity.TradingMode) (*entity.Session, error)
	Invalidate(session *entity.Session)
}

type InstrumentDirectory interface {
	List(ctx context.Context, broker entity.Broker) ([]entity.Instrument, error)
	Resolve(ctx context.Context, broker entity.Broker, query string) (entity.Instrument, error)
}

// Locker serializes work on one key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type OrderHistoryRepository interface {
	Create(ctx context.Context, history *entity.OrderHistory) error
	GetByID(ctx context.Context, id int64) (*entity.OrderHistory, error)
	GetByRequestID(ctx context.Context, requestID string) (*entity.OrderHistory, error)
	Finalize(ctx context.Context, history *entity.OrderHistory) error
	Claim(ctx context.Context, id int64, claimedAt time.Time) error
	ReleaseClaim(ctx context.Context, id int64) error
	UpdateFill(ctx context.Context, history *entity.OrderHistory) error
	TouchFillCheckedAt(ctx context.Context, history *entity.OrderHistory) error
	List(ctx context.Context, filter entity.OrderHistoryFilter) ([]entity.OrderHistory, error)
	Count(ctx context.Context, filter entity.OrderHistoryFilter) (int64, error)
	GetOpenFills(ctx context.Context, limit uint64) ([]entity.OrderHistory, error)
}
