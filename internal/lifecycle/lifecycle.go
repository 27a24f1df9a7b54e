// Package lifecycle provides event hooks for relay and agent startup,
// extension-link transitions, and shutdown.
package lifecycle

import (
	"sync"

	"github.com/cdprelay/relay/internal/logging"
)

// Event identifies a lifecycle transition.
type Event string

const (
	EventServerStarted        Event = "server_started"
	EventExtensionConnected   Event = "extension_connected"
	EventExtensionDisconnected Event = "extension_disconnected"
	EventShutdownStarted      Event = "shutdown_started"
	EventShutdownComplete     Event = "shutdown_complete"
)

// Handler handles a lifecycle event.
type Handler func(event Event, data any)

// Manager manages lifecycle event subscriptions and dispatching.
type Manager struct {
	mu       sync.RWMutex
	handlers map[Event][]Handler
}

// NewManager creates an empty lifecycle manager.
func NewManager() *Manager {
	return &Manager{handlers: make(map[Event][]Handler)}
}

// global is the process-wide lifecycle manager, mirroring the package-level
// convenience functions most callers use.
var global = NewManager()

// On registers a handler for a lifecycle event on the global manager.
func On(event Event, handler Handler) {
	global.On(event, handler)
}

// Emit dispatches an event to all registered handlers on the global manager.
func Emit(event Event, data any) {
	global.Emit(event, data)
}

// On registers a handler for a lifecycle event.
func (m *Manager) On(event Event, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], handler)
}

// Emit dispatches an event to all registered handlers, synchronously, in
// registration order. Handlers that need to do blocking work should spawn
// their own goroutine.
func (m *Manager) Emit(event Event, data any) {
	m.mu.RLock()
	handlers := m.handlers[event]
	m.mu.RUnlock()

	logging.Debugf("[lifecycle] emitting event: %s", event)
	for _, h := range handlers {
		h(event, data)
	}
}
