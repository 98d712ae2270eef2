// Package balance tracks per-asset wallet balances: stream deltas applied
// in real time, with a periodic REST resync to correct drift.
package balance

import (
	"context"
	"log"
	"sync"
	"time"
)

// Source fetches the authoritative wallet snapshot over REST.
type Source interface {
	Balances(ctx context.Context) (map[string]float64, error)
}

// Manager is safe for concurrent use; the account-stream goroutine applies
// deltas while the control loop reads Available.
type Manager struct {
	mu     sync.RWMutex
	assets map[string]float64
	source Source
}

func NewManager(source Source) *Manager {
	return &Manager{assets: make(map[string]float64), source: source}
}

// Sync replaces the tracked balances with a fresh REST snapshot.
func (m *Manager) Sync(ctx context.Context) error {
	snap, err := m.source.Balances(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.assets = snap
	m.mu.Unlock()
	return nil
}

// Start runs periodic resyncs until ctx is canceled. A failed resync is
// logged and retried next interval; the stream deltas keep us roughly
// current in the meantime.
func (m *Manager) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.Sync(ctx); err != nil {
					log.Printf("balance: resync failed: %v", err)
				}
			}
		}
	}()
}

// ApplyDelta adds a signed stream delta to one asset.
func (m *Manager) ApplyDelta(asset string, delta float64) {
	m.mu.Lock()
	m.assets[asset] += delta
	m.mu.Unlock()
}

// Available returns the tracked balance for asset (zero if unseen).
func (m *Manager) Available(asset string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.assets[asset]
}

// Snapshot copies the full balance map for reporting.
func (m *Manager) Snapshot() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]float64, len(m.assets))
	for k, v := range m.assets {
		out[k] = v
	}
	return out
}
