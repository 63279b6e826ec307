package agentloop

import (
	"sync"
	"time"
)

// EventKind identifies the type of orchestrator event.
type EventKind string

const (
	EventMessageReceived EventKind = "message_received"
	EventModelCall       EventKind = "model_call"
	EventToolCallStart   EventKind = "tool_call_start"
	EventToolCallEnd     EventKind = "tool_call_end"
	EventIterationLimit  EventKind = "iteration_limit"
	EventContextWarning  EventKind = "context_warning"
	EventError           EventKind = "error"
	EventResponse        EventKind = "response"
)

// Event is emitted by the orchestrator while it processes a message.
type Event struct {
	Kind      EventKind              `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	UserID    string                 `json:"user_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventHandler receives events. Handlers run synchronously on the emitting
// goroutine and must not block.
type EventHandler func(Event)

// EventEmitter fans events out to subscribed handlers.
type EventEmitter struct {
	handlers []EventHandler
	mu       sync.RWMutex
}

// NewEventEmitter creates an EventEmitter with no subscribers.
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{}
}

// Subscribe registers handler for every subsequent event.
func (e *EventEmitter) Subscribe(handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
}

// Emit delivers an event to all handlers. A panicking handler is skipped.
func (e *EventEmitter) Emit(kind EventKind, userID string, data map[string]interface{}) {
	e.mu.RLock()
	handlers := e.handlers
	e.mu.RUnlock()
	if len(handlers) == 0 {
		return
	}

	event := Event{
		Kind:      kind,
		Timestamp: time.Now(),
		UserID:    userID,
		Data:      data,
	}
	for _, h := range handlers {
		func() {
			defer func() { _ = recover() }()
			h(event)
		}()
	}
}
