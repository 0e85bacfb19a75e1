// Package hooks is the process-wide event bus. Components publish typed
// events; transport listeners, the webhook forwarder and tests subscribe.
package hooks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/jibby/internal/domain"
	"github.com/soyeahso/jibby/internal/logging"
)

// Event names.
const (
	EventMessage           = "message"
	EventMessageSent       = "messageSent"
	EventMessageProcessed  = "messageProcessed"
	EventMessageStatus     = "messageStatus"
	EventCall              = "call"
	EventCallInitiated     = "callInitiated"
	EventCallStatus        = "callStatus"
	EventCallHandled       = "callHandled"
	EventCallEnded         = "callEnded"
	EventConfigUpdated     = "configUpdated"
	EventError             = "error"
	EventStarted           = "started"
	EventStopped           = "stopped"
	EventResponseGenerated = "responseGenerated"
	EventContextUpdated    = "contextUpdated"
	EventContextCleared    = "contextCleared"
)

// AllEvents lists all fixed event names. Webhook receipt events are named
// "<provider>:webhook" and are not listed.
var AllEvents = []string{
	EventMessage,
	EventMessageSent,
	EventMessageProcessed,
	EventMessageStatus,
	EventCall,
	EventCallInitiated,
	EventCallStatus,
	EventCallHandled,
	EventCallEnded,
	EventConfigUpdated,
	EventError,
	EventStarted,
	EventStopped,
	EventResponseGenerated,
	EventContextUpdated,
	EventContextCleared,
}

// WebhookEvent returns the event name published when a provider webhook
// arrives.
func WebhookEvent(provider string) string { return provider + ":webhook" }

// Event is published on the bus. Only the fields relevant to Name are set.
type Event struct {
	Name           string             `json:"event"`
	Timestamp      time.Time          `json:"timestamp"`
	CorrelationID  string             `json:"correlationId,omitempty"`
	ConversationID string             `json:"conversationId,omitempty"`
	Channel        domain.Channel     `json:"channel,omitempty"`
	Message        *domain.Message    `json:"message,omitempty"`
	Response       *domain.Message    `json:"response,omitempty"`
	Call           *domain.CallRecord `json:"call,omitempty"`
	Result         *domain.CallResult `json:"result,omitempty"`
	Stage          string             `json:"stage,omitempty"`
	Err            error              `json:"-"`
	Error          string             `json:"error,omitempty"`
	Data           map[string]any     `json:"data,omitempty"`
}

// Handler handles an event. Returning an error logs the failure but does not
// stop processing.
type Handler func(ctx context.Context, ev Event) error

// Emitter publishes events.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// Discard is an Emitter that drops every event.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(context.Context, Event) {}

// anyEvent subscribes a handler to every event.
const anyEvent = "*"

// Manager manages handler registrations and dispatches events.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	log      *logging.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates an event bus.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers a handler for the given event.
// The name identifies the handler for logging and for Off.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// OnAny registers a handler that receives every event.
func (m *Manager) OnAny(name string, handler Handler) {
	m.On(anyEvent, name, handler)
}

// Off removes all handlers with the given name from the event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handlers := m.handlers[event]
	filtered := make([]namedHandler, 0, len(handlers))
	for _, h := range handlers {
		if h.name != name {
			filtered = append(filtered, h)
		}
	}
	m.handlers[event] = filtered
}

func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	handlers := make([]namedHandler, 0, len(m.handlers[event])+len(m.handlers[anyEvent]))
	handlers = append(handlers, m.handlers[event]...)
	handlers = append(handlers, m.handlers[anyEvent]...)
	return handlers
}

func prepare(ev Event) Event {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.Err != nil && ev.Error == "" {
		ev.Error = ev.Err.Error()
	}
	if ev.Message != nil {
		if ev.ConversationID == "" {
			ev.ConversationID = ev.Message.ConversationID
		}
		if ev.Channel == "" {
			ev.Channel = ev.Message.Channel
		}
	}
	return ev
}

// Emit dispatches an event to all registered handlers synchronously.
// Handlers for the specific event run first, in registration order, followed
// by catch-all handlers.
func (m *Manager) Emit(ctx context.Context, ev Event) {
	handlers := m.snapshot(ev.Name)
	if ev.Name == EventError {
		m.log.Warn().
			Str("correlationId", ev.CorrelationID).
			Str("stage", ev.Stage).
			AnErr("error", ev.Err).
			Msg("error event")
	}
	if len(handlers) == 0 {
		return
	}

	ev = prepare(ev)
	for _, h := range handlers {
		if err := h.handler(ctx, ev); err != nil {
			m.log.Warn().
				Err(err).
				Str("event", ev.Name).
				Str("handler", h.name).
				Msg("hook handler error")
		}
	}
}

// EmitAsync dispatches an event to all registered handlers concurrently.
// Returns immediately; handler errors are logged.
func (m *Manager) EmitAsync(ctx context.Context, ev Event) {
	handlers := m.snapshot(ev.Name)
	if len(handlers) == 0 {
		return
	}

	ev = prepare(ev)
	for _, h := range handlers {
		go func(h namedHandler) {
			if err := h.handler(ctx, ev); err != nil {
				m.log.Warn().
					Err(err).
					Str("event", ev.Name).
					Str("handler", h.name).
					Msg("async hook handler error")
			}
		}(h)
	}
}

// Count returns the number of handlers registered for an event, not counting
// catch-all handlers.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns the sorted events that have at least one handler.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	sort.Strings(events)
	return events
}
