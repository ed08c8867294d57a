// Package presence does heartbeat bookkeeping, stale-connection eviction and
// best-effort status persistence.
package presence

import (
	"context"
	"sync"
	"time"

	"AuroraGate/internal/gateway/connmgr"
	"AuroraGate/internal/store"
	"AuroraGate/pkg/monitor"

	"go.uber.org/zap"
)

// CloseStale is the policy-violation-style close code sent to connections
// evicted for missing heartbeats.
const CloseStale = 4008

// sessions is the slice of the connection manager the sweeper needs.
type sessions interface {
	Get(connectionID string) (connmgr.Session, bool)
}

// Manager tracks one "last seen alive" timestamp per connection.
type Manager struct {
	mu   sync.Mutex
	last map[string]time.Time

	conns    sessions
	profiles store.ProfileStore
	timeout  time.Duration
	now      func() time.Time
}

func New(conns sessions, profiles store.ProfileStore, timeout time.Duration) *Manager {
	return &Manager{
		last:     make(map[string]time.Time),
		conns:    conns,
		profiles: profiles,
		timeout:  timeout,
		now:      time.Now,
	}
}

// NewWithClock injects a clock for tests.
func NewWithClock(conns sessions, profiles store.ProfileStore, timeout time.Duration, now func() time.Time) *Manager {
	m := New(conns, profiles, timeout)
	m.now = now
	return m
}

// Touch stamps "now" against the connection.
func (m *Manager) Touch(connectionID string) {
	m.mu.Lock()
	m.last[connectionID] = m.now()
	m.mu.Unlock()
}

// Forget drops the heartbeat record on connection close.
func (m *Manager) Forget(connectionID string) {
	m.mu.Lock()
	delete(m.last, connectionID)
	m.mu.Unlock()
}

// Sweep closes every stale connection in one pass. "Now" is captured once so
// all timeout decisions within a pass are consistent; a connection exactly at
// the boundary is not stale. Sweep only closes the transport and forgets the
// heartbeat record: index teardown happens in the gateway's close callback,
// which the transport close reliably triggers, so bookkeeping stays in one
// place.
func (m *Manager) Sweep() {
	now := m.now()

	m.mu.Lock()
	var stale []string
	for connID, last := range m.last {
		if now.Sub(last) > m.timeout {
			stale = append(stale, connID)
		}
	}
	for _, connID := range stale {
		delete(m.last, connID)
	}
	m.mu.Unlock()

	for _, connID := range stale {
		if s, ok := m.conns.Get(connID); ok {
			if err := s.Close(CloseStale, "heartbeat timeout"); err != nil {
				zap.L().Info("stale connection close failed",
					zap.String("connection_id", connID), zap.Error(err))
			}
		}
		monitor.StaleEvictions.Inc()
		zap.L().Info("evicted stale connection", zap.String("connection_id", connID))
	}
}

// Run sweeps on the given interval until stop is closed.
func (m *Manager) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-stop:
			return
		}
	}
}

// SetStatus persists a status change. Presence is soft state: a write
// failure is logged and swallowed, never surfaced to the caller.
func (m *Manager) SetStatus(ctx context.Context, userID, status string) {
	if err := m.profiles.UpdateStatus(ctx, userID, status); err != nil {
		zap.L().Error("presence status write failed",
			zap.String("user_id", userID),
			zap.String("status", status),
			zap.Error(err))
	}
}
