// Package connectivity tracks whether the remote story service is reachable
// and notifies subscribers on online/offline edges.
package connectivity

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Event is an online/offline edge
type Event struct {
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
}

type subscription struct {
	id int
	fn func(Event)
}

// Monitor holds the current connectivity state. It starts offline, so the
// first successful probe is an online edge.
type Monitor struct {
	deliver sync.Mutex

	mu     sync.Mutex
	online bool
	nextID int
	subs   []subscription
}

// NewMonitor creates an offline monitor
func NewMonitor() *Monitor {
	return &Monitor{}
}

// Online reports the last known state
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records the state and notifies subscribers if it changed. Subscribers
// run synchronously, in subscription order, and must not call Set.
func (m *Monitor) Set(online bool) bool {
	m.deliver.Lock()
	defer m.deliver.Unlock()

	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	subs := make([]subscription, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	log.Info().Bool("online", online).Msg("Connectivity changed")

	ev := Event{Online: online, At: time.Now()}
	for _, sub := range subs {
		sub.fn(ev)
	}
	return true
}

// Subscribe registers fn for every edge and returns its deregistration
func (m *Monitor) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.subs = append(m.subs, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, sub := range m.subs {
				if sub.id == id {
					m.subs = append(m.subs[:i], m.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// OnOnline registers fn for online edges only
func (m *Monitor) OnOnline(fn func()) func() {
	return m.Subscribe(func(ev Event) {
		if ev.Online {
			fn()
		}
	})
}
