// Package fanout broadcasts workflow events to live observers such as
// dashboards (SSE, websocket) and an optional AMQP exchange.
package fanout

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"curbside_relay/platform/logger"
)

// Event is the payload delivered to every observer.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Observer receives broadcast events. Send must not block; an error means the
// observer is gone or cannot keep up and it will be detached.
type Observer interface {
	Send(event Event) error
	Close()
}

var errObserverFull = errors.New("observer buffer full")

// Hub holds the current observer set. Delivery is best effort with no replay.
type Hub struct {
	mu        sync.RWMutex
	observers map[Observer]struct{}
	log       *logger.Logger
	now       func() time.Time
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		observers: make(map[Observer]struct{}),
		log:       log,
		now:       time.Now,
	}
}

// Attach registers an observer.
func (h *Hub) Attach(o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers[o] = struct{}{}
}

// Detach removes and closes an observer. Detaching twice is a no-op.
func (h *Hub) Detach(o Observer) {
	h.mu.Lock()
	_, ok := h.observers[o]
	delete(h.observers, o)
	h.mu.Unlock()
	if ok {
		o.Close()
	}
}

// Count returns the number of attached observers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Broadcast delivers an event to every observer and drops the ones that fail.
func (h *Hub) Broadcast(eventType, title, message string) {
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Title:     title,
		Message:   message,
		Timestamp: h.now(),
	}

	h.mu.RLock()
	targets := make([]Observer, 0, len(h.observers))
	for o := range h.observers {
		targets = append(targets, o)
	}
	h.mu.RUnlock()

	var failed []Observer
	for _, o := range targets {
		if err := o.Send(event); err != nil {
			failed = append(failed, o)
			h.log.Warn("fanout observer dropped", "event", eventType, "error", err)
		}
	}
	for _, o := range failed {
		h.Detach(o)
	}

	h.log.Debug("fanout event broadcast", "event", eventType, "observers", len(targets)-len(failed))
}

// Close detaches every observer.
func (h *Hub) Close() {
	h.mu.Lock()
	observers := h.observers
	h.observers = make(map[Observer]struct{})
	h.mu.Unlock()
	for o := range observers {
		o.Close()
	}
}

// channelObserver buffers events for a connection-bound writer loop.
type channelObserver struct {
	events    chan Event
	closeOnce sync.Once
	closed    chan struct{}
}

func newChannelObserver(buffer int) *channelObserver {
	return &channelObserver{
		events: make(chan Event, buffer),
		closed: make(chan struct{}),
	}
}

func (c *channelObserver) Send(event Event) error {
	select {
	case <-c.closed:
		return errors.New("observer closed")
	default:
	}
	select {
	case c.events <- event:
		return nil
	default:
		return errObserverFull
	}
}

func (c *channelObserver) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}
