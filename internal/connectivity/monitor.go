// Package connectivity observes network reachability.
//
// The monitor runs a probe on an interval in a background goroutine and
// exposes one boolean: IsAvailable. The reading is a HINT, not a guarantee —
// a "connected" reading can be followed by a failed remote call moments
// later, and the engine must degrade to its offline path when that happens
// rather than trust the monitor over reality.
package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Probe reports whether the network path looks usable right now.
type Probe func(ctx context.Context) bool

// HTTPProbe returns a Probe that issues a HEAD request against url with a
// short timeout. Any response at all counts as reachable — we are probing
// the network path, not the health of the endpoint.
func HTTPProbe(url string) Probe {
	client := &http.Client{Timeout: 3 * time.Second}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return false
		}
		res, err := client.Do(req)
		if err != nil {
			return false
		}
		res.Body.Close()
		return true
	}
}

// Monitor polls a Probe and caches the latest result.
type Monitor struct {
	probe     Probe
	interval  time.Duration
	logger    *slog.Logger
	available atomic.Bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a Monitor, runs the probe once synchronously so the first
// reading is real rather than a default, and starts the polling goroutine.
func New(probe Probe, interval time.Duration, logger *slog.Logger) *Monitor {
	m := &Monitor{
		probe:    probe,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	m.available.Store(probe(context.Background()))
	go m.run()
	return m
}

// Static returns a monitor pinned to a fixed reading and never polling.
// Used by tests and by the dev server (in-memory remote is always "up").
func Static(available bool) *Monitor {
	m := &Monitor{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	close(m.done)
	m.available.Store(available)
	return m
}

// IsAvailable returns the latest probe result.
func (m *Monitor) IsAvailable() bool {
	return m.available.Load()
}

// Close stops the polling goroutine and waits for it to exit.
func (m *Monitor) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

func (m *Monitor) run() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.interval)
			now := m.probe(ctx)
			cancel()

			was := m.available.Swap(now)
			if was != now {
				m.logger.Info("connectivity changed", slog.Bool("available", now))
			}
		}
	}
}
