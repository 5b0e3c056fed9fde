package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/qliu/flashsync/internal/apperror"
	"github.com/qliu/flashsync/internal/model"
	"github.com/qliu/flashsync/internal/remote"
	"github.com/qliu/flashsync/internal/remote/memory"
)

func seedRemoteSet(t *testing.T, store *memory.Store, groupID, id, name string) {
	t.Helper()
	fields := map[string]any{"id": id, "name": name, "groupID": groupID}
	if err := store.SetDocument(context.Background(), remote.FlashcardSetsPath(groupID), id, fields); err != nil {
		t.Fatalf("seeding remote set: %v", err)
	}
}

func TestFetchFlashcardSets_OfflineServesCacheOnly(t *testing.T) {
	ctx := context.Background()
	eng, remoteStore, state := newTestEngine(t, true)

	seedRemoteSet(t, remoteStore, "g1", "remote-1", "Remote Set")
	if err := state.SetFlashcardSets(ctx, []model.FlashcardSet{set("local-1", "Local Set", "g1")}); err != nil {
		t.Fatalf("SetFlashcardSets: %v", err)
	}
	if err := state.SetOfflineMode(ctx, true); err != nil {
		t.Fatalf("SetOfflineMode: %v", err)
	}

	sets, err := eng.FetchFlashcardSets(ctx, "g1", ModeAuto)
	if err != nil {
		t.Fatalf("FetchFlashcardSets() offline error = %v", err)
	}
	if len(sets) != 1 || sets[0].ID != "local-1" {
		t.Errorf("offline fetch = %+v, want only the cached set", sets)
	}
}

func TestFetchFlashcardSets_OnlineMergesAndCaches(t *testing.T) {
	ctx := context.Background()
	eng, remoteStore, state := newTestEngine(t, true)

	seedRemoteSet(t, remoteStore, "g1", "remote-1", "Remote Set")
	cached := []model.FlashcardSet{
		set("offline-1", "Offline Only", "g1"),
		set("other-1", "Other Scope", "g2"),
	}
	if err := state.SetFlashcardSets(ctx, cached); err != nil {
		t.Fatalf("SetFlashcardSets: %v", err)
	}

	sets, err := eng.FetchFlashcardSets(ctx, "g1", ModeAuto)
	if err != nil {
		t.Fatalf("FetchFlashcardSets() error = %v", err)
	}

	ids := make(map[string]bool)
	for _, s := range sets {
		ids[s.ID] = true
	}
	if !ids["offline-1"] || !ids["remote-1"] {
		t.Errorf("merged fetch = %+v, want offline-1 and remote-1", sets)
	}
	if ids["other-1"] {
		t.Error("fetch for g1 leaked a g2 set into its result")
	}

	// The merged view must have been persisted, with the other scope intact.
	persisted, err := state.FlashcardSets(ctx)
	if err != nil {
		t.Fatalf("FlashcardSets: %v", err)
	}
	persistedIDs := make(map[string]bool)
	for _, s := range persisted {
		persistedIDs[s.ID] = true
	}
	for _, want := range []string{"offline-1", "remote-1", "other-1"} {
		if !persistedIDs[want] {
			t.Errorf("persisted cache missing %q after merge", want)
		}
	}
}

func TestFetchFlashcardSets_RemoteFailureDegrades(t *testing.T) {
	ctx := context.Background()
	eng, remoteStore, state := newTestEngine(t, true)

	if err := state.SetFlashcardSets(ctx, []model.FlashcardSet{set("local-1", "Local", "g1")}); err != nil {
		t.Fatalf("SetFlashcardSets: %v", err)
	}
	remoteStore.FailWith(errors.New("connection refused"))

	sets, err := eng.FetchFlashcardSets(ctx, "g1", ModeAuto)

	// Degraded read: cached data AND the soft error, together.
	if !errors.Is(err, apperror.ErrRemoteUnavailable) {
		t.Errorf("error = %v, want ErrRemoteUnavailable", err)
	}
	if len(sets) != 1 || sets[0].ID != "local-1" {
		t.Errorf("degraded fetch = %+v, want the cached set", sets)
	}
}

func TestShareFlashcardSet_OfflineCachesWithoutRemote(t *testing.T) {
	ctx := context.Background()
	eng, remoteStore, state := newTestEngine(t, false)

	shared, err := eng.ShareFlashcardSet(ctx, "g1", model.FlashcardSet{Name: "My Set"})
	if err != nil {
		t.Fatalf("ShareFlashcardSet() offline error = %v", err)
	}
	if shared.ID == "" {
		t.Error("ShareFlashcardSet() did not assign an ID")
	}
	if shared.GroupID != "g1" {
		t.Errorf("GroupID = %q, want g1", shared.GroupID)
	}

	cached, _ := state.FlashcardSets(ctx)
	if len(cached) != 1 || cached[0].ID != shared.ID {
		t.Errorf("cache = %+v, want the shared set", cached)
	}

	docs, _ := remoteStore.GetDocuments(ctx, remote.FlashcardSetsPath("g1"))
	if len(docs) != 0 {
		t.Errorf("offline share must not reach the remote store, got %d docs", len(docs))
	}
}

func TestShareFlashcardSet_OnlineWritesRemoteAndCache(t *testing.T) {
	ctx := context.Background()
	eng, remoteStore, state := newTestEngine(t, true)

	shared, err := eng.ShareFlashcardSet(ctx, "g1", model.FlashcardSet{ID: "s1", Name: "My Set"})
	if err != nil {
		t.Fatalf("ShareFlashcardSet() error = %v", err)
	}

	docs, _ := remoteStore.GetDocuments(ctx, remote.FlashcardSetsPath("g1"))
	if len(docs) != 1 || docs[0].ID != "s1" {
		t.Errorf("remote docs = %+v, want the shared set", docs)
	}

	cached, _ := state.FlashcardSets(ctx)
	if len(cached) != 1 || cached[0].ID != shared.ID {
		t.Errorf("cache = %+v, want the shared set", cached)
	}
}

func TestShareFlashcardSet_RequiresName(t *testing.T) {
	eng, _, _ := newTestEngine(t, true)

	_, err := eng.ShareFlashcardSet(context.Background(), "g1", model.FlashcardSet{Name: "   "})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestAddGroupFlashcard_OfflineUncachedGroupIsNotFound(t *testing.T) {
	eng, _, _ := newTestEngine(t, false)

	_, err := eng.AddGroupFlashcard(context.Background(), "never-cached",
		model.Flashcard{Question: "Q", Answer: "A"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound for an uncached group offline", err)
	}
}

func TestAddGroupFlashcard_OfflineAppendsToCachedGroup(t *testing.T) {
	ctx := context.Background()
	eng, _, state := newTestEngine(t, false)

	if err := state.SetGroups(ctx, []model.Group{{ID: "g1", Name: "Study"}}); err != nil {
		t.Fatalf("SetGroups: %v", err)
	}

	card, err := eng.AddGroupFlashcard(ctx, "g1", model.Flashcard{Question: "Q1", Answer: "A1"})
	if err != nil {
		t.Fatalf("AddGroupFlashcard() error = %v", err)
	}
	if card.ID == "" {
		t.Error("AddGroupFlashcard() did not assign an ID")
	}

	cards, err := eng.FetchGroupFlashcards(ctx, "g1")
	if err != nil {
		t.Fatalf("FetchGroupFlashcards() error = %v", err)
	}
	if len(cards) != 1 || cards[0].Question != "Q1" {
		t.Errorf("cards = %+v, want the appended card", cards)
	}
}

func TestFetchGroupFlashcards_DropsPlaceholderDocs(t *testing.T) {
	ctx := context.Background()
	eng, remoteStore, _ := newTestEngine(t, true)

	// Legacy clients wrote an "init" marker document when creating the
	// collection. It has no card fields and must not surface as a card.
	if err := remoteStore.SetDocument(ctx, remote.GroupFlashcardsPath("g1"), "init",
		map[string]any{"init": true}); err != nil {
		t.Fatalf("seeding placeholder: %v", err)
	}
	if err := remoteStore.SetDocument(ctx, remote.GroupFlashcardsPath("g1"), "c1",
		model.Flashcard{ID: "c1", Question: "Q", Answer: "A"}.Fields()); err != nil {
		t.Fatalf("seeding card: %v", err)
	}

	cards, err := eng.FetchGroupFlashcards(ctx, "g1")
	if err != nil {
		t.Fatalf("FetchGroupFlashcards() error = %v", err)
	}
	if len(cards) != 1 || cards[0].ID != "c1" {
		t.Errorf("cards = %+v, want only the real card", cards)
	}
}

func TestSyncUserFlashcards_ReplacesCacheAndMintsFreshIDs(t *testing.T) {
	ctx := context.Background()
	eng, remoteStore, state := newTestEngine(t, true)

	// Stale personal cards that the sync must replace, not merge with.
	if err := state.SetIndividualFlashcards(ctx, []model.Flashcard{{ID: "stale", Question: "old"}}); err != nil {
		t.Fatalf("SetIndividualFlashcards: %v", err)
	}

	for i, doc := range []map[string]any{
		{"term": "goroutine", "explanation": "a lightweight thread"},
		{"term": "channel", "explanation": "a typed conduit"},
	} {
		id := []string{"d1", "d2"}[i]
		if err := remoteStore.SetDocument(ctx, remote.UserFlashcardsPath("u1"), id, doc); err != nil {
			t.Fatalf("seeding personal card: %v", err)
		}
	}

	cards, err := eng.SyncUserFlashcards(ctx, "u1")
	if err != nil {
		t.Fatalf("SyncUserFlashcards() error = %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("synced %d cards, want 2", len(cards))
	}
	if cards[0].ID == "" || cards[1].ID == "" || cards[0].ID == cards[1].ID {
		t.Error("imported cards must get fresh, distinct IDs")
	}

	cached, _ := state.IndividualFlashcards(ctx)
	if len(cached) != 2 {
		t.Errorf("cache holds %d cards after sync, want 2 (replace, not append)", len(cached))
	}
	for _, c := range cached {
		if c.ID == "stale" {
			t.Error("stale card survived the sync; the category must be replaced")
		}
	}
}

func TestSyncUserFlashcards_RemoteFailureIsHard(t *testing.T) {
	eng, remoteStore, _ := newTestEngine(t, true)
	remoteStore.FailWith(errors.New("connection refused"))

	_, err := eng.SyncUserFlashcards(context.Background(), "u1")
	if !errors.Is(err, apperror.ErrRemoteUnavailable) {
		t.Errorf("error = %v, want ErrRemoteUnavailable", err)
	}
}

func TestSaveAndLoadIndividualFlashcards(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := newTestEngine(t, false)

	if err := eng.SaveIndividualFlashcards(ctx, []model.Flashcard{{ID: "c1", Question: "Q1"}}); err != nil {
		t.Fatalf("SaveIndividualFlashcards() error = %v", err)
	}
	if err := eng.SaveIndividualFlashcards(ctx, []model.Flashcard{{ID: "c2", Question: "Q2"}}); err != nil {
		t.Fatalf("SaveIndividualFlashcards() error = %v", err)
	}

	cards, err := eng.LoadIndividualFlashcards(ctx)
	if err != nil {
		t.Fatalf("LoadIndividualFlashcards() error = %v", err)
	}
	if len(cards) != 2 {
		t.Errorf("loaded %d cards, want 2 (saves append)", len(cards))
	}
}
