// Package event provides a lightweight notification system.
//
// Design principles:
// - Events are notifications with a small payload (ids, dates), never full documents
// - Each event type is a separate Go type for type safety
// - Clients call HTTP APIs to fetch actual data after receiving notifications
package event

import (
	"log/slog"
	"sync"

	"github.com/choraleia/daydigest/pkg/utils"
)

// Event is the interface all event types must implement.
type Event interface {
	// EventName returns the unique name for this event type (e.g., "dialogue.recorded")
	EventName() string
}

// Listener is a callback function for handling events.
type Listener func(Event)

type subscription struct {
	id uint64
	fn Listener
}

// Emitter manages event subscriptions and dispatching.
type Emitter struct {
	mu           sync.RWMutex
	nextID       uint64
	listeners    map[string][]subscription // eventName -> listeners
	allListeners []subscription            // listeners for all events
	logger       *slog.Logger
}

// NewEmitter creates a new event emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		listeners: make(map[string][]subscription),
		logger:    utils.GetLogger(),
	}
}

// On subscribes to a specific event type.
// Returns an unsubscribe function.
func (e *Emitter) On(eventName string, fn Listener) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.listeners[eventName] = append(e.listeners[eventName], subscription{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.listeners[eventName] = removeSubscription(e.listeners[eventName], id)
	}
}

// OnAny subscribes to all events.
func (e *Emitter) OnAny(fn Listener) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.allListeners = append(e.allListeners, subscription{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.allListeners = removeSubscription(e.allListeners, id)
	}
}

// Emit dispatches an event to all matching listeners synchronously.
// A nil Emitter drops the event.
func (e *Emitter) Emit(ev Event) {
	if e == nil {
		return
	}
	e.mu.RLock()
	// Copy listeners to avoid holding lock during callbacks
	specific := append([]subscription(nil), e.listeners[ev.EventName()]...)
	all := append([]subscription(nil), e.allListeners...)
	e.mu.RUnlock()

	e.logger.Debug("Emitting event", "event", ev.EventName(), "specific", len(specific), "wildcard", len(all))

	for _, s := range specific {
		s.fn(ev)
	}
	for _, s := range all {
		s.fn(ev)
	}
}

func removeSubscription(subs []subscription, id uint64) []subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}
