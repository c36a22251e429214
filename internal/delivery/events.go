package delivery

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/xkilldash9x/cadence/api/schemas"
	"go.uber.org/zap"
)

// EventType names a delivery lifecycle event.
type EventType string

const (
	EventDeliveryStart    EventType = "delivery_start"
	EventDeliveryProgress EventType = "delivery_progress"
	EventDeliveryComplete EventType = "delivery_complete"
	EventDeliveryError    EventType = "delivery_error"
	EventKeystrokeSent    EventType = "keystroke_sent"
	EventChannelSwitched  EventType = "channel_switched"
)

// Event is the envelope handed to listeners. Optional fields are set only by
// the event types that carry them.
type Event struct {
	Type       EventType
	Timestamp  time.Time
	Channel    string
	DeliveryID string

	// delivery_start
	Message string
	// channel_switched
	PreviousChannel string
	// delivery_progress
	Progress *schemas.Progress
	// delivery_complete, delivery_error
	Result *schemas.DeliveryResult
	Err    error
	// keystroke_sent
	Keystroke *schemas.KeystrokeEvent
}

// Listener observes events. It runs synchronously on the delivering
// goroutine, so it should return quickly.
type Listener func(Event)

type subscription struct {
	id    string
	fn    Listener
	once  bool
	fired atomic.Bool
}

// EventBus dispatches delivery events to typed listeners. A panicking
// listener is recovered and logged; it never interrupts a delivery.
type EventBus struct {
	logger *zap.Logger

	mu        sync.RWMutex
	listeners map[EventType][]*subscription
}

// NewEventBus initializes an empty bus.
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		logger:    logger.Named("events"),
		listeners: make(map[EventType][]*subscription),
	}
}

// On registers fn for eventType and returns an ID for Off.
func (b *EventBus) On(eventType EventType, fn Listener) string {
	return b.add(eventType, fn, false)
}

// Once registers fn to run for the next eventType event only.
func (b *EventBus) Once(eventType EventType, fn Listener) string {
	return b.add(eventType, fn, true)
}

func (b *EventBus) add(eventType EventType, fn Listener, once bool) string {
	sub := &subscription{id: uuid.New().String(), fn: fn, once: once}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[eventType] = append(b.listeners[eventType], sub)
	return sub.id
}

// Off removes a listener by ID. It reports whether one was removed.
func (b *EventBus) Off(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for eventType, subs := range b.listeners {
		for i, sub := range subs {
			if sub.id != id {
				continue
			}
			// Build a new slice so snapshots held by Emit stay intact.
			rest := make([]*subscription, 0, len(subs)-1)
			rest = append(rest, subs[:i]...)
			rest = append(rest, subs[i+1:]...)
			if len(rest) == 0 {
				delete(b.listeners, eventType)
			} else {
				b.listeners[eventType] = rest
			}
			return true
		}
	}
	return false
}

// Emit delivers e to every listener registered for e.Type, in registration order.
func (b *EventBus) Emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	subs := b.listeners[e.Type]
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.once {
			if !sub.fired.CompareAndSwap(false, true) {
				continue
			}
			b.Off(sub.id)
		}
		b.dispatch(sub, e)
	}
}

func (b *EventBus) dispatch(sub *subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("Event listener panicked; ignoring.",
				zap.String("event", string(e.Type)),
				zap.String("listener_id", sub.id),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	sub.fn(e)
}

// ListenerCount returns how many listeners are registered for eventType.
func (b *EventBus) ListenerCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[eventType])
}

// Clear removes every listener.
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = make(map[EventType][]*subscription)
}
