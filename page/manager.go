package page

import (
	"context"
	"sync"

	"hark/bus"
)

// Manager owns one Sampler per observed tab, creating them as snapshots
// arrive and tearing them down when tabs close.
type Manager struct {
	b   *bus.Bus
	cfg Config

	mu       sync.Mutex
	samplers map[int]*Sampler
}

func NewManager(b *bus.Bus, cfg Config) *Manager {
	cfg.fill()
	return &Manager{
		b:        b,
		cfg:      cfg,
		samplers: make(map[int]*Sampler),
	}
}

func (m *Manager) Run(ctx context.Context) {
	sub := m.b.Subscribe(64, bus.DomSnapshot, bus.TabRemoved)
	defer m.b.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			m.stopAll()
			return
		case msg, ok := <-sub.C:
			if !ok {
				m.stopAll()
				return
			}
			switch msg := msg.(type) {
			case bus.DomSnapshotMsg:
				m.sampler(msg.TabID).OnSnapshot(msg)
			case bus.TabRemovedMsg:
				m.remove(msg.TabID)
			}
		}
	}
}

func (m *Manager) sampler(tabID int) *Sampler {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.samplers[tabID]
	if !ok {
		s = NewSampler(m.b, tabID, m.cfg)
		m.samplers[tabID] = s
		s.Start()
	}
	return s
}

func (m *Manager) remove(tabID int) {
	m.mu.Lock()
	s, ok := m.samplers[tabID]
	delete(m.samplers, tabID)
	m.mu.Unlock()
	if ok {
		s.Stop()
	}
}

func (m *Manager) stopAll() {
	m.mu.Lock()
	samplers := m.samplers
	m.samplers = make(map[int]*Sampler)
	m.mu.Unlock()
	for _, s := range samplers {
		s.Stop()
	}
}
