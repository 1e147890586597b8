package channel

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Manager manages the lifecycle of all channels and fans inbound messages
// out to a single handler.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
	handler  func(InboundMessage)
}

// NewManager creates a new channel manager.
func NewManager() *Manager {
	return &Manager{
		channels: make(map[string]Channel),
	}
}

// Register adds a channel to the manager and wires it to the shared handler.
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
	ch.OnMessage(func(msg InboundMessage) {
		m.mu.RLock()
		handler := m.handler
		m.mu.RUnlock()
		if handler != nil {
			handler(msg)
		}
	})
}

// OnMessage sets the handler that receives messages from every channel.
func (m *Manager) OnMessage(handler func(InboundMessage)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Get returns a channel by name, for routing replies.
func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// StartAll starts all registered channels.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			log.Printf("[channel] failed to start %s: %v", name, err)
			return fmt.Errorf("start %s: %w", name, err)
		}
		log.Printf("[channel] started %s", name)
	}
	return nil
}

// StopAll stops all running channels.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, ch := range m.channels {
		if ch.IsRunning() {
			if err := ch.Stop(ctx); err != nil {
				log.Printf("[channel] failed to stop %s: %v", name, err)
			} else {
				log.Printf("[channel] stopped %s", name)
			}
		}
	}
}
