package entity

import (
	"context"
	"time"
)

type Publisher interface {
	JetstreamEventInit(ctx context.Context) error
}

type Subscriber interface {
	JetstreamEventSubscribe(ctx context.Context) error
}

type OrderIntentEvent struct {
	RetryCount int         `json:"retry"`
	HistoryID  int64       `json:"history_id"`
	Simulation bool        `json:"simulation"`
	Data       OrderIntent `json:"data"`
}

type OrderEventType string

const (
	OrderEventRecorded  OrderEventType = "order_recorded"
	OrderEventFinalized OrderEventType = "order_finalized"
	OrderEventFilled    OrderEventType = "fill_updated"
)

type OrderEvent struct {
	Type       OrderEventType `json:"type"`
	History    OrderHistory   `json:"history"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// OrderEventPublisher fans order history changes out to live listeners.
type OrderEventPublisher interface {
	Publish(event OrderEvent)
}
