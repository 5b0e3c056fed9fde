package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/xid"

	"github.com/qliu/flashsync/internal/apperror"
	"github.com/qliu/flashsync/internal/cache"
	"github.com/qliu/flashsync/internal/model"
	"github.com/qliu/flashsync/internal/remote"
)

// FetchFlashcardSets returns the flashcard sets for one group scope.
//
// Offline (forced, toggled, or no connectivity under auto): the cached
// subset for groupID, as-is. This path never fails for lack of network.
//
// Online: query the remote collection, merge with the cache via MergeSets
// (other scopes' offline-only data survives untouched), write the merged
// collection back, and return the scope subset.
//
// A remote failure on the online path degrades: the caller still gets the
// cached subset, together with a non-nil ErrRemoteUnavailable as a soft
// warning. Data + error at the same time is deliberate — the caller must
// receive usable data if any exists locally.
func (e *Engine) FetchFlashcardSets(ctx context.Context, groupID string, mode Mode) ([]model.FlashcardSet, error) {
	if e.offlineFor(mode) {
		return e.cachedSetsFor(ctx, groupID)
	}

	docs, err := e.remote.GetDocuments(ctx, remote.FlashcardSetsPath(groupID))
	if err != nil {
		e.logger.Warn("remote fetch failed, serving cached flashcard sets",
			slog.String("groupID", groupID),
			slog.String("error", err.Error()),
		)
		sets, cacheErr := e.cachedSetsFor(ctx, groupID)
		if cacheErr != nil {
			return nil, cacheErr
		}
		return sets, apperror.RemoteUnavailable("fetch flashcard sets", err)
	}

	remoteSets := make([]model.FlashcardSet, 0, len(docs))
	dropped := 0
	for _, doc := range docs {
		set, ok := remote.DecodeFlashcardSet(doc)
		if !ok {
			dropped++
			continue
		}
		// The collection is already group-scoped; pin the field so a
		// stale groupID in an old document can't leak into another scope.
		set.GroupID = groupID
		remoteSets = append(remoteSets, set)
	}
	if dropped > 0 {
		e.logger.Warn("dropped malformed flashcard set documents",
			slog.String("groupID", groupID),
			slog.Int("dropped", dropped),
		)
	}

	unlock := e.locks.lock(cache.KeyOfflineFlashcardSets)
	defer unlock()

	cached, err := e.session.FlashcardSets(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: reading cached sets: %w", err)
	}
	merged := MergeSets(cached, remoteSets, groupID)
	if err := e.session.SetFlashcardSets(ctx, merged); err != nil {
		return nil, fmt.Errorf("engine: caching merged sets: %w", err)
	}

	return filterScope(merged, groupID), nil
}

func (e *Engine) cachedSetsFor(ctx context.Context, groupID string) ([]model.FlashcardSet, error) {
	sets, err := e.session.FlashcardSets(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: reading cached sets: %w", err)
	}
	return filterScope(sets, groupID), nil
}

// ShareFlashcardSet appends (or re-shares) a set into a group's collection.
//
// Offline: last-write-wins upsert into the cached collection, persisted
// immediately.
//
// Online: the cache reflects the pending write first (the caller's own
// optimistic view), then the remote write happens. A remote failure is a
// hard error — the write did not take — and the optimistic cache entry is
// reconciled away on the next fetch for this scope.
func (e *Engine) ShareFlashcardSet(ctx context.Context, groupID string, set model.FlashcardSet) (model.FlashcardSet, error) {
	set.Name = strings.TrimSpace(set.Name)
	if set.Name == "" {
		return model.FlashcardSet{}, apperror.ValidationFailed("name", "flashcard set name is required")
	}
	if set.ID == "" {
		set.ID = xid.New().String()
	}
	set.GroupID = groupID

	unlock := e.locks.lock(cache.KeyOfflineFlashcardSets)
	cached, err := e.session.FlashcardSets(ctx)
	if err != nil {
		unlock()
		return model.FlashcardSet{}, fmt.Errorf("engine: reading cached sets: %w", err)
	}
	if err := e.session.SetFlashcardSets(ctx, upsertSet(cached, set)); err != nil {
		unlock()
		return model.FlashcardSet{}, fmt.Errorf("engine: caching shared set: %w", err)
	}
	unlock()

	if e.offlineFor(ModeAuto) {
		e.logger.Info("flashcard set saved locally in offline mode",
			slog.String("id", set.ID), slog.String("groupID", groupID))
		return set, nil
	}

	if err := e.remote.SetDocument(ctx, remote.FlashcardSetsPath(groupID), set.ID, set.Fields()); err != nil {
		return model.FlashcardSet{}, apperror.RemoteUnavailable("share flashcard set", err)
	}

	e.logger.Info("flashcard set shared",
		slog.String("id", set.ID), slog.String("groupID", groupID))
	return set, nil
}

// upsertSet replaces the entry with set's ID in place, or appends.
func upsertSet(sets []model.FlashcardSet, set model.FlashcardSet) []model.FlashcardSet {
	for i, s := range sets {
		if s.ID == set.ID {
			sets[i] = set
			return sets
		}
	}
	return append(sets, set)
}

// FetchGroupFlashcards returns a group's individual (unset) flashcards.
// Absence — of the group offline, or of any cards — reads as empty, never
// as an error.
func (e *Engine) FetchGroupFlashcards(ctx context.Context, groupID string) ([]model.Flashcard, error) {
	if e.offlineFor(ModeAuto) {
		return e.cachedGroupFlashcards(ctx, groupID)
	}

	docs, err := e.remote.GetDocuments(ctx, remote.GroupFlashcardsPath(groupID))
	if err != nil {
		e.logger.Warn("remote fetch failed, serving cached group flashcards",
			slog.String("groupID", groupID),
			slog.String("error", err.Error()),
		)
		cards, cacheErr := e.cachedGroupFlashcards(ctx, groupID)
		if cacheErr != nil {
			return nil, cacheErr
		}
		return cards, apperror.RemoteUnavailable("fetch group flashcards", err)
	}

	cards := make([]model.Flashcard, 0, len(docs))
	for _, doc := range docs {
		// Placeholder docs (the old clients wrote an "init" marker) and
		// malformed records drop out here.
		if card, ok := remote.DecodeFlashcard(doc.Fields); ok {
			cards = append(cards, card)
		}
	}
	return cards, nil
}

func (e *Engine) cachedGroupFlashcards(ctx context.Context, groupID string) ([]model.Flashcard, error) {
	groups, err := e.session.Groups(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: reading cached groups: %w", err)
	}
	for _, g := range groups {
		if g.ID == groupID {
			return g.IndividualFlashcards, nil
		}
	}
	return []model.Flashcard{}, nil
}

// AddGroupFlashcard adds one card to a group's individual-flashcard
// collection. This is a write path: an uncached group offline is NotFound,
// and a remote failure online is a hard error.
func (e *Engine) AddGroupFlashcard(ctx context.Context, groupID string, card model.Flashcard) (model.Flashcard, error) {
	if strings.TrimSpace(card.Question) == "" {
		return model.Flashcard{}, apperror.ValidationFailed("question", "flashcard question is required")
	}
	if card.ID == "" {
		card.ID = xid.New().String()
	}

	if e.offlineFor(ModeAuto) {
		unlock := e.locks.lock(cache.KeyOfflineGroups)
		defer unlock()

		groups, err := e.session.Groups(ctx)
		if err != nil {
			return model.Flashcard{}, fmt.Errorf("engine: reading cached groups: %w", err)
		}
		idx := findGroup(groups, groupID)
		if idx < 0 {
			return model.Flashcard{}, apperror.NotFound("group", groupID)
		}
		groups[idx].IndividualFlashcards = append(groups[idx].IndividualFlashcards, card)
		if err := e.session.SetGroups(ctx, groups); err != nil {
			return model.Flashcard{}, fmt.Errorf("engine: caching group flashcard: %w", err)
		}
		return card, nil
	}

	if err := e.remote.SetDocument(ctx, remote.GroupFlashcardsPath(groupID), card.ID, card.Fields()); err != nil {
		return model.Flashcard{}, apperror.RemoteUnavailable("add group flashcard", err)
	}

	// Mirror into the cached group once the remote store has acknowledged,
	// so the card is studyable offline without another fetch.
	unlock := e.locks.lock(cache.KeyOfflineGroups)
	defer unlock()
	groups, err := e.session.Groups(ctx)
	if err == nil {
		if idx := findGroup(groups, groupID); idx >= 0 {
			groups[idx].IndividualFlashcards = append(groups[idx].IndividualFlashcards, card)
			if err := e.session.SetGroups(ctx, groups); err != nil {
				e.logger.Warn("failed to mirror group flashcard into cache",
					slog.String("groupID", groupID), slog.String("error", err.Error()))
			}
		}
	}
	return card, nil
}

// SyncUserFlashcards imports the user's personal flashcards from the remote
// per-user collection and REPLACES the cached personal category with them —
// an empty remote collection clears the cache, matching the remote as the
// source of truth for this category.
//
// Imported cards get fresh UUIDs: the legacy collection has no stable IDs
// of its own, only term/explanation content.
func (e *Engine) SyncUserFlashcards(ctx context.Context, userID string) ([]model.Flashcard, error) {
	docs, err := e.remote.GetDocuments(ctx, remote.UserFlashcardsPath(userID))
	if err != nil {
		return nil, apperror.RemoteUnavailable("sync personal flashcards", err)
	}

	cards := make([]model.Flashcard, 0, len(docs))
	dropped := 0
	for _, doc := range docs {
		question, answer, ok := remote.DecodeUserFlashcard(doc.Fields)
		if !ok {
			dropped++
			continue
		}
		cards = append(cards, model.Flashcard{
			ID:       uuid.NewString(),
			Question: question,
			Answer:   answer,
		})
	}
	if dropped > 0 {
		e.logger.Warn("dropped malformed personal flashcard documents",
			slog.String("userID", userID), slog.Int("dropped", dropped))
	}

	unlock := e.locks.lock(cache.KeyOfflineIndividual)
	defer unlock()
	if err := e.session.SetIndividualFlashcards(ctx, cards); err != nil {
		return nil, fmt.Errorf("engine: caching personal flashcards: %w", err)
	}

	e.logger.Info("personal flashcards synced",
		slog.String("userID", userID), slog.Int("count", len(cards)))
	return cards, nil
}

// SaveIndividualFlashcards appends cards to the cached personal category.
// Local-only: the personal category syncs remote→local, never local→remote.
func (e *Engine) SaveIndividualFlashcards(ctx context.Context, cards []model.Flashcard) error {
	unlock := e.locks.lock(cache.KeyOfflineIndividual)
	defer unlock()

	existing, err := e.session.IndividualFlashcards(ctx)
	if err != nil {
		return fmt.Errorf("engine: reading personal flashcards: %w", err)
	}
	if err := e.session.SetIndividualFlashcards(ctx, append(existing, cards...)); err != nil {
		return fmt.Errorf("engine: caching personal flashcards: %w", err)
	}
	return nil
}

// LoadIndividualFlashcards returns the cached personal flashcards.
func (e *Engine) LoadIndividualFlashcards(ctx context.Context) ([]model.Flashcard, error) {
	cards, err := e.session.IndividualFlashcards(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: reading personal flashcards: %w", err)
	}
	return cards, nil
}
