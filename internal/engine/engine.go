// Package engine contains the reconciliation core: for a given user and
// group scope it decides whether data comes from the remote store or the
// local cache, merges the two views when both exist, deduplicates, and
// persists the chosen view locally for offline use.
//
// THE DEPENDENCY CHAIN:
//
//	handler (HTTP) → engine (reconciliation) → session/cache + remote store
//
// The engine holds no persistent state of its own — it is a pure
// transformation over session + remote inputs, which makes it trivially
// restartable and testable with fakes on both sides.
package engine

import (
	"log/slog"
	"sync"

	"github.com/qliu/flashsync/internal/apperror"
	"github.com/qliu/flashsync/internal/connectivity"
	"github.com/qliu/flashsync/internal/remote"
	"github.com/qliu/flashsync/internal/session"
)

// Mode selects the source-of-truth strategy for a fetch.
type Mode int

const (
	// ModeAuto consults the session's offline toggle and the connectivity
	// monitor: offline if either says so.
	ModeAuto Mode = iota
	// ModeForceOffline reads the local cache only, never the network.
	ModeForceOffline
	// ModeForceOnline goes to the remote store even if the monitor says
	// the network is down (the call will fail fast and degrade).
	ModeForceOnline
)

// ParseMode maps the wire value ("auto", "offline", "online") to a Mode.
// Empty means auto. Anything else is a validation error.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "auto":
		return ModeAuto, nil
	case "offline":
		return ModeForceOffline, nil
	case "online":
		return ModeForceOnline, nil
	}
	return ModeAuto, apperror.ValidationFailed("mode", "mode must be one of auto, offline, online")
}

// Engine is the reconciliation engine.
type Engine struct {
	remote  remote.Store
	session *session.State
	monitor *connectivity.Monitor
	logger  *slog.Logger
	locks   keyedMutex
}

// New creates an Engine. All dependencies are injected — the engine never
// reaches for globals.
func New(rs remote.Store, st *session.State, mon *connectivity.Monitor, logger *slog.Logger) *Engine {
	return &Engine{
		remote:  rs,
		session: st,
		monitor: mon,
		logger:  logger,
	}
}

// offlineFor reports whether the given mode resolves to the offline path
// right now. ForceOnline overrides the toggle AND the monitor; Auto treats
// the monitor as a hint only — an online attempt that then fails still
// degrades to cache at the call site.
func (e *Engine) offlineFor(mode Mode) bool {
	switch mode {
	case ModeForceOffline:
		return true
	case ModeForceOnline:
		return false
	}
	return e.session.OfflineMode() || !e.monitor.IsAvailable()
}

// keyedMutex provides one mutex per cache category key, giving the
// single-writer-per-key discipline: two fetches racing on the same
// category's read-modify-write cycle are serialized, while operations on
// different categories proceed concurrently.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lock acquires the mutex for key and returns its unlock func.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
