// Package hooks dispatches baogate lifecycle events to registered handlers.
package hooks

import (
	"context"
	"slices"
	"sync"

	"github.com/soyeahso/baogate/internal/logging"
)

// Event names for the hook system.
const (
	EventGatewayStart      = "gateway_start"
	EventGatewayStop       = "gateway_stop"
	EventSessionCreated    = "session_created"
	EventSessionRevived    = "session_revived"
	EventExchangeCompleted = "exchange_completed"
	EventExchangeFailed    = "exchange_failed"
)

// AllEvents lists all known hook event names.
var AllEvents = []string{
	EventGatewayStart,
	EventGatewayStop,
	EventSessionCreated,
	EventSessionRevived,
	EventExchangeCompleted,
	EventExchangeFailed,
}

// IsKnownEvent reports whether name is one of AllEvents.
func IsKnownEvent(name string) bool {
	return slices.Contains(AllEvents, name)
}

// Payload carries event data to hook handlers.
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler handles a hook event. A returned error is logged and does not stop
// other handlers.
type Handler func(ctx context.Context, p Payload) error

// Manager manages hook registrations and dispatches events.
// A nil *Manager is valid and drops every event.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	log      *logging.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers a handler for the given event under a name used for logging
// and for Off.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off removes all handlers with the given name from the event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = slices.DeleteFunc(m.handlers[event], func(h namedHandler) bool {
		return h.name == name
	})
}

func (m *Manager) snapshot(event string) []namedHandler {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.handlers[event])
}

// Emit runs the event's handlers synchronously in registration order.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}

	payload := Payload{Event: event, Data: data}
	for _, h := range handlers {
		if err := h.handler(ctx, payload); err != nil {
			m.log.Warn().Err(err).Str("event", event).Str("handler", h.name).Msg("hook handler error")
		}
	}
}

// EmitAsync runs the event's handlers concurrently and returns immediately.
// Handlers get a context detached from ctx's cancellation so request-scoped
// callers do not abort them.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}

	payload := Payload{Event: event, Data: data}
	ctx = context.WithoutCancel(ctx)
	for _, h := range handlers {
		go func(h namedHandler) {
			if err := h.handler(ctx, payload); err != nil {
				m.log.Warn().Err(err).Str("event", event).Str("handler", h.name).Msg("async hook handler error")
			}
		}(h)
	}
}

// Count returns the number of handlers registered for an event.
func (m *Manager) Count(event string) int {
	return len(m.snapshot(event))
}

// Events returns the events that have at least one handler, sorted.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	slices.Sort(events)
	return events
}
