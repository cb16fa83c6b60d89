// Package hooks dispatches bridge lifecycle events to in-process handlers
// and configured shell commands.
package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/flowbridge/internal/logging"
)

// Events emitted by the bridge.
const (
	EventMessageReceived    = "message_received"
	EventReplySent          = "reply_sent"
	EventHandover           = "handover"
	EventFallbackEscalation = "fallback_escalation"
	EventGatewayStart       = "gateway_start"
	EventGatewayStop        = "gateway_stop"
)

// Payload is what a handler receives, and what command hooks read as JSON
// on stdin.
type Payload struct {
	Event string         `json:"event"`
	At    time.Time      `json:"at"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler reacts to one event. Errors and panics are logged; later
// handlers still run.
type Handler func(ctx context.Context, p Payload) error

type registration struct {
	name string
	fn   Handler
}

// Manager holds handlers per event.
type Manager struct {
	mu      sync.RWMutex
	byEvent map[string][]registration
	pending sync.WaitGroup
	log     *logging.Logger
}

func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		byEvent: make(map[string][]registration),
		log:     log.Sub("hooks"),
	}
}

// On appends a handler for event. name shows up in failure logs.
func (m *Manager) On(event, name string, fn Handler) {
	m.mu.Lock()
	m.byEvent[event] = append(m.byEvent[event], registration{name: name, fn: fn})
	m.mu.Unlock()
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

func (m *Manager) registered(event string) []registration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]registration(nil), m.byEvent[event]...)
}

// Emit runs the handlers for event one after another, in registration
// order, before returning.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	p := Payload{Event: event, At: time.Now().UTC(), Data: data}
	for _, r := range m.registered(event) {
		m.run(ctx, r, p)
	}
}

// EmitAsync starts every handler for event in its own goroutine and
// returns. Handlers keep ctx's values but not its cancellation; Wait
// blocks until they finish.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	regs := m.registered(event)
	if len(regs) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	p := Payload{Event: event, At: time.Now().UTC(), Data: data}
	for _, r := range regs {
		m.pending.Add(1)
		go func() {
			defer m.pending.Done()
			m.run(ctx, r, p)
		}()
	}
}

func (m *Manager) run(ctx context.Context, r registration, p Payload) {
	defer func() {
		if v := recover(); v != nil {
			m.log.Error().Str("event", p.Event).Str("handler", r.name).Str("panic", fmt.Sprint(v)).Msg("hook handler panicked")
		}
	}()
	if err := r.fn(ctx, p); err != nil {
		m.log.Warn().Err(err).Str("event", p.Event).Str("handler", r.name).Msg("hook handler failed")
	}
}

// Wait blocks until handlers started by EmitAsync return.
func (m *Manager) Wait() {
	m.pending.Wait()
}
