// Package sampling drives the touch sampling flag from the foreground application.
package sampling

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/perfctl/internal/logger"
)

// Reconciler converges hardware for a newly observed foreground application.
type Reconciler interface {
	Reconcile(app string) error
}

// Monitor polls the foreground application and reconciles on change. At most one
// poller runs at a time.
type Monitor struct {
	sampler    Sampler
	reconciler Reconciler
	interval   time.Duration
	logger     logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	forget atomic.Bool
}

func NewMonitor(sampler Sampler, reconciler Reconciler, interval time.Duration, log logger.Logger) *Monitor {
	return &Monitor{
		sampler:    sampler,
		reconciler: reconciler,
		interval:   interval,
		logger:     log,
	}
}

// Start replaces any running poller with a fresh one that samples immediately.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stop()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.forget.Store(false)

	go m.run(ctx, m.done)

	m.logger.Debug().Dur("interval", m.interval).Msg("Foreground monitor started")
}

// Stop cancels the poller and returns once it has exited. No-op when not running.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stop() {
		m.logger.Debug().Msg("Foreground monitor stopped")
	}
}

func (m *Monitor) stop() bool {
	if m.cancel == nil {
		return false
	}

	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil

	return true
}

func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Refresh makes the next tick reconcile even if the foreground app is unchanged.
func (m *Monitor) Refresh() {
	m.forget.Store(true)
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var lastSeen string
	m.tick(ctx, &lastSeen)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx, &lastSeen)
		}
	}
}

func (m *Monitor) tick(ctx context.Context, lastSeen *string) {
	if m.forget.Swap(false) {
		*lastSeen = ""
	}

	app, err := m.sampler.Foreground(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Debug().Err(err).Msg("Failed to sample foreground application")
		}
		return
	}

	if app == *lastSeen || ctx.Err() != nil {
		return
	}

	if err := m.reconciler.Reconcile(app); err != nil {
		m.logger.Warn().Err(err).Str("app", app).Msg("Failed to reconcile sampling flag")
		return
	}

	*lastSeen = app
}
