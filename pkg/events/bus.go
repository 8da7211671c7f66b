package events

import (
	"errors"
	"sync"

	"github.com/zfogg/sidechain/chat/pkg/logger"
	"github.com/zfogg/sidechain/chat/pkg/metrics"
)

// Handler receives dispatched events. Handlers must not block or publish.
type Handler func(Event)

// Bus is the single subscription point for real-time events. Publish
// delivers each event to every subscriber, in subscription order, before the
// next event is delivered.
type Bus struct {
	publishMu sync.Mutex

	mu       sync.RWMutex
	nextID   int
	handlers []subscription
}

type subscription struct {
	id      int
	handler Handler
}

// NewBus creates an empty Bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers h and returns a function that removes it
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers = append(b.handlers, subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.handlers {
				if s.id == id {
					b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish dispatches ev synchronously. Events published concurrently from
// several transports are delivered one at a time.
func (b *Bus) Publish(ev Event) {
	if ev == nil {
		return
	}

	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	for i, s := range b.handlers {
		handlers[i] = s.handler
	}
	b.mu.RUnlock()

	metrics.RecordEvent(string(ev.Kind()))
	logger.Debug("Dispatching event", "kind", ev.Kind(), "subscribers", len(handlers))

	for _, h := range handlers {
		h(ev)
	}
}

// PublishRaw decodes a transport frame and publishes it. Frames that cannot be
// decoded are logged and dropped.
func (b *Bus) PublishRaw(raw []byte) bool {
	ev, err := Decode(raw)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, ErrUnknownKind) {
			reason = "unknown_type"
		}
		metrics.RecordDroppedEvent(reason)
		logger.Warn("Dropping real-time event", "reason", reason, "error", err)
		return false
	}
	b.Publish(ev)
	return true
}
