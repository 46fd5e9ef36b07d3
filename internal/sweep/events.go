package sweep

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event kinds pushed to subscribers
const (
	EventStatus           EventKind = "status"
	EventCycleConfig      EventKind = "cycle_config"
	EventSweepData        EventKind = "sweep_data"
	EventStatusChange     EventKind = "status_change"
	EventError            EventKind = "error"
	EventRecoveryStart    EventKind = "recovery_start"
	EventRecoveryComplete EventKind = "recovery_complete"
	EventEmergencyStop    EventKind = "emergency_stop"
)

type EventKind string

// Event is a single timestamped push event. The payload depends on the kind:
// EventSweepData carries a *SpectrumSample, EventError an *ErrorDetail,
// EventStatus a Status snapshot and so on.
type Event struct {
	Kind      EventKind `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// ErrorDetail is the payload of EventError events
type ErrorDetail struct {
	Message   string    `json:"message"`
	Kind      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details,omitempty"`
}

// Publisher is the push channel abstraction the manager writes events to
type Publisher interface {
	Publish(Event)
}

const defaultSubscriberBuffer = 64

// Bus fans events out to any number of subscribers. Publishing never blocks:
// a subscriber whose channel buffer is full misses events rather than
// stalling the sweep loop.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]chan Event
	buffer int
	closed bool
}

// WithSubscriberBuffer sets the per-subscriber channel buffer size
func WithSubscriberBuffer(size int) func(*Bus) {
	return func(b *Bus) {
		b.buffer = size
	}
}

// NewBus creates a new event bus
func NewBus(options ...func(*Bus)) *Bus {
	b := Bus{
		subs:   make(map[uuid.UUID]chan Event),
		buffer: defaultSubscriberBuffer,
	}

	for _, option := range options {
		option(&b)
	}

	return &b
}

// Publish delivers an event to every subscriber without blocking
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default: // slow subscriber, drop
		}
	}
}

// Subscribe registers a new subscriber and returns its ID and channel.
// The channel is closed on Unsubscribe or when the bus shuts down.
func (b *Bus) Subscribe() (uuid.UUID, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New()
	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return id, ch
	}

	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel
func (b *Bus) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Close shuts the bus down and closes all subscriber channels
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
