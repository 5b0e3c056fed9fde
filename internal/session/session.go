// Package session holds the process-wide session state: the offline-mode
// toggle, the logged-in identity, and typed access to the cached offline
// categories.
//
// State is an explicitly constructed value with a defined lifecycle —
// initialized from durable storage at startup, mutated by
// login/logout/toggle events, and injected into the reconciliation engine.
// No package-level state, no singleton.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/qliu/flashsync/internal/cache"
	"github.com/qliu/flashsync/internal/model"
)

// State is the session: two flags plus the four cached offline categories.
//
// The flags are mirrored in memory (they're read on every engine call) and
// written through to the cache so they survive restarts. The collections are
// NOT mirrored — every read goes to the cache, which keeps State a thin,
// restart-safe view over durable storage rather than a second source of truth.
type State struct {
	store  cache.Store
	logger *slog.Logger

	mu          sync.RWMutex
	offlineMode bool
	loggedIn    bool
	username    string
}

// New constructs a State initialized from durable storage.
func New(ctx context.Context, store cache.Store, logger *slog.Logger) (*State, error) {
	s := &State{store: store, logger: logger}

	offline, err := s.getBool(ctx, cache.KeyOfflineMode)
	if err != nil {
		return nil, fmt.Errorf("session: loading offline mode: %w", err)
	}
	loggedIn, err := s.getBool(ctx, cache.KeyLoggedIn)
	if err != nil {
		return nil, fmt.Errorf("session: loading login flag: %w", err)
	}
	username, err := s.getString(ctx, cache.KeyUsername)
	if err != nil {
		return nil, fmt.Errorf("session: loading username: %w", err)
	}

	s.offlineMode = offline
	s.loggedIn = loggedIn
	s.username = username
	return s, nil
}

// OfflineMode reports whether the user has explicitly forced offline mode.
// This is an independent toggle, not inferred from connectivity — the user
// can force offline even while the network is up.
func (s *State) OfflineMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offlineMode
}

// SetOfflineMode flips the offline-mode toggle and persists it.
func (s *State) SetOfflineMode(ctx context.Context, on bool) error {
	if err := s.setBool(ctx, cache.KeyOfflineMode, on); err != nil {
		return err
	}
	s.mu.Lock()
	s.offlineMode = on
	s.mu.Unlock()
	s.logger.Info("offline mode toggled", slog.Bool("on", on))
	return nil
}

// LoggedIn reports whether a user is logged in.
func (s *State) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn
}

// Username returns the logged-in username, or "" when logged out.
func (s *State) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// LogIn records the logged-in identity and persists it.
func (s *State) LogIn(ctx context.Context, username string) error {
	if err := s.setBool(ctx, cache.KeyLoggedIn, true); err != nil {
		return err
	}
	if err := s.store.Set(ctx, cache.KeyUsername, []byte(username)); err != nil {
		return fmt.Errorf("session: persisting username: %w", err)
	}
	s.mu.Lock()
	s.loggedIn = true
	s.username = username
	s.mu.Unlock()
	s.logger.Info("logged in", slog.String("username", username))
	return nil
}

// LogOut clears the login flag AND purges every cached offline category.
//
// Logout is a full cache purge, not just a flag reset — otherwise one
// account's offline groups and flashcards would leak into the next session
// on a shared device.
func (s *State) LogOut(ctx context.Context) error {
	if err := s.setBool(ctx, cache.KeyLoggedIn, false); err != nil {
		return err
	}
	purge := []string{
		cache.KeyUsername,
		cache.KeyOfflineGroups,
		cache.KeyOfflineFlashcardSets,
		cache.KeyOfflineIndividual,
		cache.KeyOfflineGroupMembers,
	}
	for _, key := range purge {
		if err := s.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("session: purging %s: %w", key, err)
		}
	}
	s.mu.Lock()
	s.loggedIn = false
	s.username = ""
	s.mu.Unlock()
	s.logger.Info("logged out, offline cache purged")
	return nil
}

// Groups returns the cached groups; an absent key reads as empty.
func (s *State) Groups(ctx context.Context) ([]model.Group, error) {
	var groups []model.Group
	if err := s.getJSON(ctx, cache.KeyOfflineGroups, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// SetGroups replaces the cached groups collection.
func (s *State) SetGroups(ctx context.Context, groups []model.Group) error {
	return s.setJSON(ctx, cache.KeyOfflineGroups, groups)
}

// FlashcardSets returns the cached flashcard sets across ALL group scopes.
func (s *State) FlashcardSets(ctx context.Context) ([]model.FlashcardSet, error) {
	var sets []model.FlashcardSet
	if err := s.getJSON(ctx, cache.KeyOfflineFlashcardSets, &sets); err != nil {
		return nil, err
	}
	return sets, nil
}

// SetFlashcardSets replaces the cached flashcard-set collection.
func (s *State) SetFlashcardSets(ctx context.Context, sets []model.FlashcardSet) error {
	return s.setJSON(ctx, cache.KeyOfflineFlashcardSets, sets)
}

// IndividualFlashcards returns the cached personal (ungrouped) flashcards.
func (s *State) IndividualFlashcards(ctx context.Context) ([]model.Flashcard, error) {
	var cards []model.Flashcard
	if err := s.getJSON(ctx, cache.KeyOfflineIndividual, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// SetIndividualFlashcards replaces the cached personal flashcards.
func (s *State) SetIndividualFlashcards(ctx context.Context, cards []model.Flashcard) error {
	return s.setJSON(ctx, cache.KeyOfflineIndividual, cards)
}

// GroupMembers returns the write-through member cache, keyed by group ID.
// Online member fetches populate this so member lists survive offline even
// when the full Group document was never cached.
func (s *State) GroupMembers(ctx context.Context) (map[string][]model.GroupMember, error) {
	var members map[string][]model.GroupMember
	if err := s.getJSON(ctx, cache.KeyOfflineGroupMembers, &members); err != nil {
		return nil, err
	}
	if members == nil {
		members = make(map[string][]model.GroupMember)
	}
	return members, nil
}

// SetGroupMembers replaces the write-through member cache.
func (s *State) SetGroupMembers(ctx context.Context, members map[string][]model.GroupMember) error {
	return s.setJSON(ctx, cache.KeyOfflineGroupMembers, members)
}

// getJSON decodes the value under key into v; an absent key leaves v zero.
func (s *State) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("session: reading %s: %w", key, err)
	}
	if data == nil {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("session: decoding %s: %w", key, err)
	}
	return nil
}

// setJSON marshals v and writes it under key. The marshal happens before any
// write, so an encoding failure never leaves the key holding partial bytes.
func (s *State) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session: encoding %s: %w", key, err)
	}
	if err := s.store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("session: writing %s: %w", key, err)
	}
	return nil
}

func (s *State) getBool(ctx context.Context, key string) (bool, error) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return string(data) == "true", nil
}

func (s *State) setBool(ctx context.Context, key string, v bool) error {
	value := "false"
	if v {
		value = "true"
	}
	if err := s.store.Set(ctx, key, []byte(value)); err != nil {
		return fmt.Errorf("session: writing %s: %w", key, err)
	}
	return nil
}

func (s *State) getString(ctx context.Context, key string) (string, error) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
