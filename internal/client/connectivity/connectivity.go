// Package connectivity tracks whether the remote service is reachable and
// notifies subscribers when that changes.
package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Monitor is an observable online/offline flag.
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   []chan bool
}

// NewMonitor returns a Monitor in the given initial state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{online: online}
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records the current state and reports whether it changed. Subscribers
// are notified of changes only.
func (m *Monitor) Set(online bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.online == online {
		return false
	}
	m.online = online
	for _, ch := range m.subs {
		// Each channel holds only the latest state; a slow reader skips stale ones.
		select {
		case <-ch:
		default:
		}
		ch <- online
	}
	return true
}

// Subscribe returns a channel receiving every state change after the call.
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// HealthChecker reports whether the remote service answers.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Prober polls a HealthChecker and feeds the result into a Monitor.
type Prober struct {
	Checker  HealthChecker
	Monitor  *Monitor
	Interval time.Duration
	Timeout  time.Duration
	Logger   *zap.Logger
}

// Probe performs one health check and updates the monitor.
func (p *Prober) Probe(ctx context.Context) bool {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	err := p.Checker.Health(ctx)
	online := err == nil
	if p.Monitor.Set(online) && p.Logger != nil {
		if online {
			p.Logger.Info("remote service reachable")
		} else {
			p.Logger.Warn("remote service unreachable", zap.Error(err))
		}
	}
	return online
}

// Run probes immediately and then every Interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	p.Probe(ctx)
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
