package bus

import (
	"log/slog"
	"sync"
	"time"

	"relaybot/internal/domain"
)

const defaultPublishTimeout = 2 * time.Second

// InMemoryBus is a buffered Go channel between the webhook handler and the
// processing loop.
type InMemoryBus struct {
	events  chan domain.ParsedEvent
	timeout time.Duration
	mu      sync.RWMutex
	closed  bool
	logger  *slog.Logger
}

// New creates a bus holding up to bufferSize pending events. Publish waits at
// most publishTimeout for room before giving up.
func New(bufferSize int, publishTimeout time.Duration, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if publishTimeout <= 0 {
		publishTimeout = defaultPublishTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryBus{
		events:  make(chan domain.ParsedEvent, bufferSize),
		timeout: publishTimeout,
		logger:  logger,
	}
}

// Publish enqueues ev. It returns false if the bus is closed or stayed full
// for the whole publish timeout.
func (b *InMemoryBus) Publish(ev domain.ParsedEvent) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus", "event_id", ev.ID)
		return false
	}

	select {
	case b.events <- ev:
		return true
	default:
	}

	b.logger.Warn("event bus full, waiting", "event_id", ev.ID, "pending", len(b.events))
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case b.events <- ev:
		return true
	case <-timer.C:
		b.logger.Error("event dropped: bus full",
			"event_id", ev.ID,
			"channel", ev.ChannelID,
			"waited", b.timeout,
		)
		return false
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.ParsedEvent {
	return b.events
}

// Pending returns the number of queued events.
func (b *InMemoryBus) Pending() int {
	return len(b.events)
}

// Close stops accepting events. Subscribers drain what is queued and then
// see the channel close.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.events)
	}
}
