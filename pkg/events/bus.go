package events

import (
	"sync"

	"github.com/robinjoseph08/golib/logger"
)

// Handler receives every published event. Handlers run on the publisher's
// goroutine and must not block.
type Handler func(Event)

// Bus is a small in-process pub/sub for structural-change notifications. It
// decouples the mutation coordinator from the subsystems that react to
// structural changes (the monitor updating its watch set, the worker
// scheduling rescans).
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	log      logger.Logger
}

func New(log logger.Logger) *Bus {
	return &Bus{log: log}
}

// Subscribe registers a handler for all subsequent events.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers the event to every handler in subscription order.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	b.log.Debug("publishing event", logger.Data{"event": e.Name()})

	for _, h := range handlers {
		h(e)
	}
}
