// Package netstatus tracks whether the hosted backend is reachable and
// whether a sync drain is running. Other components read IsOnline to decide
// between an immediate network call and the local upload queue.
package netstatus

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/poleshift/internal/events"
	"github.com/dmitrijs2005/poleshift/internal/logging"
)

type Mode string

const (
	ModeUnknown Mode = ""
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// Pinger reports backend reachability; nil means online.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Change is published on events.NetworkTopic after every transition.
type Change struct {
	Mode    Mode
	Syncing bool
	At      time.Time
}

func (c Change) Online() bool { return c.Mode == ModeOnline }

type Monitor struct {
	pinger  Pinger
	bus     *events.Bus
	log     logging.Logger
	timeout time.Duration

	mu      sync.RWMutex
	mode    Mode
	syncing bool
}

func NewMonitor(pinger Pinger, bus *events.Bus, log logging.Logger) *Monitor {
	return &Monitor{pinger: pinger, bus: bus, log: log, timeout: 3 * time.Second}
}

func (m *Monitor) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

func (m *Monitor) IsOnline() bool { return m.Mode() == ModeOnline }

func (m *Monitor) IsSyncing() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.syncing
}

// SetMode records mode and reports whether it changed.
func (m *Monitor) SetMode(ctx context.Context, mode Mode) bool {
	m.mu.Lock()
	if m.mode == mode {
		m.mu.Unlock()
		return false
	}
	m.mode = mode
	c := Change{Mode: mode, Syncing: m.syncing, At: time.Now()}
	m.mu.Unlock()

	m.log.Info(ctx, "Switched to "+string(mode)+" mode")
	m.bus.Publish(events.NetworkTopic, c)
	return true
}

// SetSyncing flips the syncing flag, publishing a Change when it moves.
func (m *Monitor) SetSyncing(syncing bool) {
	m.mu.Lock()
	if m.syncing == syncing {
		m.mu.Unlock()
		return
	}
	m.syncing = syncing
	c := Change{Mode: m.mode, Syncing: syncing, At: time.Now()}
	m.mu.Unlock()

	m.bus.Publish(events.NetworkTopic, c)
}

// Check pings once and updates the mode.
func (m *Monitor) Check(ctx context.Context) Mode {
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.pinger.Ping(pctx)
	cancel()

	mode := ModeOnline
	if err != nil {
		m.log.Debug(ctx, "backend ping failed", "error", err)
		mode = ModeOffline
	}
	m.SetMode(ctx, mode)
	return mode
}

// Run checks immediately and then on every tick until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	m.Check(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// OnChange subscribes h to transitions.
func (m *Monitor) OnChange(h func(Change)) *events.Subscription {
	return m.bus.Subscribe(events.NetworkTopic, func(payload any) {
		if c, ok := payload.(Change); ok {
			h(c)
		}
	})
}
