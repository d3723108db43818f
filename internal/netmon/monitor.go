// Package netmon exposes the platform connectivity signal as a single boolean
// with subscription support. The embedding process wires its online/offline
// transition events to Report; the monitor never polls.
package netmon

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// CheckFunc reports the platform's current connectivity state. It is
// consulted exactly once, when the monitor is created.
type CheckFunc func() bool

// Always returns a CheckFunc that reports a fixed state.
func Always(online bool) CheckFunc {
	return func() bool { return online }
}

// Monitor holds the last reported connectivity state.
type Monitor struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]chan bool
}

// New creates a monitor, performing the immediate check via check. A nil
// check starts the monitor online.
func New(check CheckFunc) *Monitor {
	m := &Monitor{
		online: true,
		subs:   make(map[int]chan bool),
	}
	if check != nil {
		m.online = check()
	}
	return m
}

// Online returns the last reported connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Report records a connectivity transition and notifies subscribers.
// Reporting the state the monitor already holds has no observable effect.
func (m *Monitor) Report(online bool) {
	m.mu.Lock()
	if online == m.online {
		m.mu.Unlock()
		return
	}
	m.online = online

	targets := make([]chan bool, 0, len(m.subs))
	for _, ch := range m.subs {
		targets = append(targets, ch)
	}
	m.mu.Unlock()

	log.Debug().Bool("online", online).Msg("connectivity changed")

	for _, ch := range targets {
		select {
		case ch <- online:
		default:
			// Subscriber is not keeping up; it will observe the latest
			// state via Online() when it drains.
		}
	}
}

// Subscribe registers for connectivity transitions. The returned cancel
// function is idempotent and safe to call while a notification is in flight;
// the channel is never closed.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 8)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}

	return ch, cancel
}
