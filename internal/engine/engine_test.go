package engine

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/qliu/flashsync/internal/cache"
	"github.com/qliu/flashsync/internal/connectivity"
	"github.com/qliu/flashsync/internal/remote/memory"
	"github.com/qliu/flashsync/internal/session"
)

// memStore is an in-memory cache.Store for tests.
type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte) error {
	m.data[key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

var _ cache.Store = (*memStore)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestEngine builds an Engine over an in-memory remote store and an
// in-memory cache. The connectivity monitor is pinned to the given state;
// tests flip the session's offline toggle for the user-forced-offline cases.
func newTestEngine(t *testing.T, online bool) (*Engine, *memory.Store, *session.State) {
	t.Helper()

	remoteStore := memory.New()
	state, err := session.New(context.Background(), newMemStore(), testLogger())
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	eng := New(remoteStore, state, connectivity.Static(online), testLogger())
	return eng, remoteStore, state
}

func TestParseMode(t *testing.T) {
	cases := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeAuto, false},
		{"auto", ModeAuto, false},
		{"offline", ModeForceOffline, false},
		{"online", ModeForceOnline, false},
		{"bogus", ModeAuto, true},
	}

	for _, tc := range cases {
		got, err := ParseMode(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseMode(%q) expected an error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMode(%q) error = %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestOfflineFor(t *testing.T) {
	ctx := context.Background()

	eng, _, state := newTestEngine(t, true)
	if eng.offlineFor(ModeAuto) {
		t.Error("auto mode with connectivity and no toggle should be online")
	}
	if !eng.offlineFor(ModeForceOffline) {
		t.Error("ForceOffline must always resolve offline")
	}

	// The user toggle forces offline even with the network up.
	if err := state.SetOfflineMode(ctx, true); err != nil {
		t.Fatalf("SetOfflineMode: %v", err)
	}
	if !eng.offlineFor(ModeAuto) {
		t.Error("auto mode must respect the offline toggle")
	}
	// ...but ForceOnline overrides the toggle.
	if eng.offlineFor(ModeForceOnline) {
		t.Error("ForceOnline must override the offline toggle")
	}

	// No connectivity: auto resolves offline.
	engDown, _, _ := newTestEngine(t, false)
	if !engDown.offlineFor(ModeAuto) {
		t.Error("auto mode without connectivity should be offline")
	}
}
