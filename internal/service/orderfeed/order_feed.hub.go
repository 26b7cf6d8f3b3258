package orderfeed

import (
	"sync"

	"github.com/krobus00/signal-order-service/internal/entity"
	"github.com/sirupsen/logrus"
)

const defaultSubscriberBuffer = 64

// Hub fans order events out to live subscribers. A subscriber whose buffer is full
// is dropped rather than slowing down the publisher.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	buffer      int
}

type subscriber struct {
	ch chan entity.OrderEvent
}

var _ entity.OrderEventPublisher = (*Hub)(nil)

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{subscribers: make(map[*subscriber]struct{}), buffer: buffer}
}

// Subscribe registers a listener. The channel is closed when cancel is called or
// when the listener falls behind.
func (h *Hub) Subscribe() (<-chan entity.OrderEvent, func()) {
	sub := &subscriber{ch: make(chan entity.OrderEvent, h.buffer)}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() { h.remove(sub) })
	}
}

func (h *Hub) Publish(event entity.OrderEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subscribers {
		select {
		case sub.ch <- event:
		default:
			logrus.WithField("type", event.Type).Warn("dropping slow order feed subscriber")
			delete(h.subscribers, sub)
			close(sub.ch)
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		close(sub.ch)
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.ch)
	}
}
