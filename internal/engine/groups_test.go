package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/qliu/flashsync/internal/apperror"
	"github.com/qliu/flashsync/internal/auth"
	"github.com/qliu/flashsync/internal/model"
	"github.com/qliu/flashsync/internal/remote"
)

var alice = auth.Identity{ID: "u-alice", Email: "Alice@Example.com"}

func TestCreateGroup_OnlineWritesGroupAndMembers(t *testing.T) {
	ctx := context.Background()
	eng, remoteStore, _ := newTestEngine(t, true)

	members := []model.GroupMember{
		{ID: "u-bob", Name: "Bob", Email: "bob@example.com"},
	}
	group, err := eng.CreateGroup(ctx, alice, "Study Group", members)
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	if group.ID == "" {
		t.Fatal("CreateGroup() returned a group without an ID")
	}

	docs, _ := remoteStore.GetDocuments(ctx, remote.GroupsPath)
	if len(docs) != 1 || docs[0].ID != group.ID {
		t.Errorf("remote groups = %+v, want the created group", docs)
	}

	memberDocs, _ := remoteStore.GetDocuments(ctx, remote.MembersPath(group.ID))
	if len(memberDocs) != 2 {
		t.Fatalf("remote members = %d, want creator + 1", len(memberDocs))
	}

	// The creator's email must be stored normalized — membership resolution
	// filters on the lower-cased form.
	creatorDocs, _ := remoteStore.GetDocuments(ctx, remote.MembersPath(group.ID),
		remote.Filter{Field: "email", Value: "alice@example.com"})
	if len(creatorDocs) != 1 {
		t.Error("creator not findable by normalized email")
	}
}

func TestCreateGroup_OfflineCachesLocally(t *testing.T) {
	ctx := context.Background()
	eng, remoteStore, state := newTestEngine(t, false)

	group, err := eng.CreateGroup(ctx, alice, "Offline Group", nil)
	if err != nil {
		t.Fatalf("CreateGroup() offline error = %v", err)
	}

	cached, _ := state.Groups(ctx)
	if len(cached) != 1 || cached[0].ID != group.ID {
		t.Errorf("cached groups = %+v, want the created group", cached)
	}
	if len(cached[0].Members) != 1 {
		t.Errorf("cached members = %+v, want just the creator", cached[0].Members)
	}

	docs, _ := remoteStore.GetDocuments(ctx, remote.GroupsPath)
	if len(docs) != 0 {
		t.Error("offline create must not reach the remote store")
	}
}

func TestCreateGroup_RequiresName(t *testing.T) {
	eng, _, _ := newTestEngine(t, true)

	_, err := eng.CreateGroup(context.Background(), alice, "  ", nil)
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestResolveUserGroups_MatchesByNormalizedEmail(t *testing.T) {
	ctx := context.Background()
	eng, remoteStore, _ := newTestEngine(t, true)

	// Alice belongs to g1 but not g2.
	mustSet := func(path, id string, fields map[string]any) {
		t.Helper()
		if err := remoteStore.SetDocument(ctx, path, id, fields); err != nil {
			t.Fatalf("seeding %s/%s: %v", path, id, err)
		}
	}
	mustSet(remote.GroupsPath, "g1", map[string]any{"id": "g1", "name": "Go Study"})
	mustSet(remote.GroupsPath, "g2", map[string]any{"id": "g2", "name": "Rust Study"})
	mustSet(remote.MembersPath("g1"), "u-alice",
		model.GroupMember{ID: "u-alice", Name: "Alice", Email: "alice@example.com"}.Fields())
	mustSet(remote.MembersPath("g2"), "u-bob",
		model.GroupMember{ID: "u-bob", Name: "Bob", Email: "bob@example.com"}.Fields())

	// The identity carries a mixed-case email; matching must normalize it.
	groups, err := eng.ResolveUserGroups(ctx, alice)
	if err != nil {
		t.Fatalf("ResolveUserGroups() error = %v", err)
	}
	if len(groups) != 1 || groups[0].ID != "g1" {
		t.Errorf("resolved = %+v, want only g1", groups)
	}
}

func TestResolveUserGroups_CachesForOffline(t *testing.T) {
	ctx := context.Background()
	eng, remoteStore, state := newTestEngine(t, true)

	if err := remoteStore.SetDocument(ctx, remote.GroupsPath, "g1",
		map[string]any{"id": "g1", "name": "Go Study"}); err != nil {
		t.Fatalf("seeding group: %v", err)
	}
	if err := remoteStore.SetDocument(ctx, remote.MembersPath("g1"), "u-alice",
		model.GroupMember{ID: "u-alice", Name: "Alice", Email: "alice@example.com"}.Fields()); err != nil {
		t.Fatalf("seeding member: %v", err)
	}

	if _, err := eng.ResolveUserGroups(ctx, alice); err != nil {
		t.Fatalf("online resolve error = %v", err)
	}

	// Going offline, the same groups must come back from the cache.
	if err := state.SetOfflineMode(ctx, true); err != nil {
		t.Fatalf("SetOfflineMode: %v", err)
	}
	groups, err := eng.ResolveUserGroups(ctx, alice)
	if err != nil {
		t.Fatalf("offline resolve error = %v", err)
	}
	if len(groups) != 1 || groups[0].ID != "g1" {
		t.Errorf("offline resolve = %+v, want the cached g1", groups)
	}
}

func TestResolveUserGroups_EmptyEmailResolvesEmpty(t *testing.T) {
	eng, _, _ := newTestEngine(t, true)

	groups, err := eng.ResolveUserGroups(context.Background(), auth.Identity{ID: "u1"})
	if err != nil {
		t.Fatalf("ResolveUserGroups() error = %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("resolved = %+v, want empty for an empty email", groups)
	}
}

func TestAddMember_DuplicateEmailConflicts(t *testing.T) {
	ctx := context.Background()
	eng, remoteStore, _ := newTestEngine(t, true)

	if err := remoteStore.SetDocument(ctx, remote.MembersPath("g1"), "u-bob",
		model.GroupMember{ID: "u-bob", Name: "Bob", Email: "bob@example.com"}.Fields()); err != nil {
		t.Fatalf("seeding member: %v", err)
	}

	_, err := eng.AddMember(ctx, "g1", model.GroupMember{Name: "Bobby", Email: "Bob@Example.com"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("error = %v, want ErrConflict for a duplicate email", err)
	}
}

func TestAddMember_OfflineAppliesSameConflictRule(t *testing.T) {
	ctx := context.Background()
	eng, _, state := newTestEngine(t, false)

	existing := model.GroupMember{ID: "u-bob", Name: "Bob", Email: "bob@example.com"}
	if err := state.SetGroups(ctx, []model.Group{{ID: "g1", Name: "Study", Members: []model.GroupMember{existing}}}); err != nil {
		t.Fatalf("SetGroups: %v", err)
	}

	// Duplicate email is a business rule, not a transport concern — it must
	// hold offline too.
	_, err := eng.AddMember(ctx, "g1", model.GroupMember{Name: "Bobby", Email: "BOB@example.com"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("error = %v, want ErrConflict offline as well", err)
	}

	added, err := eng.AddMember(ctx, "g1", model.GroupMember{Name: "Carol", Email: "carol@example.com"})
	if err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	if added.ID == "" {
		t.Error("AddMember() did not assign an ID")
	}

	cached, _ := state.Groups(ctx)
	if len(cached[0].Members) != 2 {
		t.Errorf("cached members = %+v, want bob + carol", cached[0].Members)
	}
}

func TestAddMember_OfflineUncachedGroupIsNotFound(t *testing.T) {
	eng, _, _ := newTestEngine(t, false)

	_, err := eng.AddMember(context.Background(), "never-cached",
		model.GroupMember{Name: "Carol", Email: "carol@example.com"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRemoveMember_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	eng, remoteStore, _ := newTestEngine(t, true)

	if err := remoteStore.SetDocument(ctx, remote.MembersPath("g1"), "u-bob",
		model.GroupMember{ID: "u-bob", Name: "Bob", Email: "bob@example.com"}.Fields()); err != nil {
		t.Fatalf("seeding member: %v", err)
	}

	if err := eng.RemoveMember(ctx, "g1", "u-bob"); err != nil {
		t.Fatalf("RemoveMember() error = %v", err)
	}
	// Removing again: the desired end state already holds, so no error.
	if err := eng.RemoveMember(ctx, "g1", "u-bob"); err != nil {
		t.Errorf("second RemoveMember() error = %v, want nil", err)
	}
	// Same offline, for a group that was never cached.
	engOff, _, _ := newTestEngine(t, false)
	if err := engOff.RemoveMember(ctx, "never-cached", "u-bob"); err != nil {
		t.Errorf("offline RemoveMember() on uncached group error = %v, want nil", err)
	}
}

func TestFetchGroupMembers_WritesThroughForOffline(t *testing.T) {
	ctx := context.Background()
	eng, remoteStore, state := newTestEngine(t, true)

	if err := remoteStore.SetDocument(ctx, remote.MembersPath("g1"), "u-bob",
		model.GroupMember{ID: "u-bob", Name: "Bob", Email: "bob@example.com"}.Fields()); err != nil {
		t.Fatalf("seeding member: %v", err)
	}

	members, err := eng.FetchGroupMembers(ctx, "g1")
	if err != nil {
		t.Fatalf("FetchGroupMembers() error = %v", err)
	}
	if len(members) != 1 || members[0].ID != "u-bob" {
		t.Fatalf("members = %+v, want bob", members)
	}

	// The group document itself was never cached; the write-through member
	// category must carry the list across to offline mode.
	if err := state.SetOfflineMode(ctx, true); err != nil {
		t.Fatalf("SetOfflineMode: %v", err)
	}
	offline, err := eng.FetchGroupMembers(ctx, "g1")
	if err != nil {
		t.Fatalf("offline FetchGroupMembers() error = %v", err)
	}
	if len(offline) != 1 || offline[0].ID != "u-bob" {
		t.Errorf("offline members = %+v, want bob from the write-through cache", offline)
	}
}

func TestFetchGroupMembers_OfflineAbsenceIsEmptyNotError(t *testing.T) {
	eng, _, _ := newTestEngine(t, false)

	members, err := eng.FetchGroupMembers(context.Background(), "never-cached")
	if err != nil {
		t.Fatalf("FetchGroupMembers() error = %v, offline absence must not fail", err)
	}
	if len(members) != 0 {
		t.Errorf("members = %+v, want empty", members)
	}
}

func TestValidateGroupExists(t *testing.T) {
	ctx := context.Background()
	eng, remoteStore, _ := newTestEngine(t, true)

	if err := remoteStore.SetDocument(ctx, remote.GroupsPath, "g1",
		map[string]any{"id": "g1", "name": "Go Study"}); err != nil {
		t.Fatalf("seeding group: %v", err)
	}

	exists, err := eng.ValidateGroupExists(ctx, "g1")
	if err != nil || !exists {
		t.Errorf("ValidateGroupExists(g1) = %v, %v, want true, nil", exists, err)
	}
	exists, err = eng.ValidateGroupExists(ctx, "g2")
	if err != nil || exists {
		t.Errorf("ValidateGroupExists(g2) = %v, %v, want false, nil", exists, err)
	}
}

func TestGetGroupDetails(t *testing.T) {
	ctx := context.Background()
	eng, remoteStore, _ := newTestEngine(t, true)

	if err := remoteStore.SetDocument(ctx, remote.GroupsPath, "g1",
		map[string]any{"id": "g1", "name": "Go Study"}); err != nil {
		t.Fatalf("seeding group: %v", err)
	}
	seedRemoteSet(t, remoteStore, "g1", "s1", "Basics")

	details, sets, err := eng.GetGroupDetails(ctx, "g1")
	if err != nil {
		t.Fatalf("GetGroupDetails() error = %v", err)
	}
	if details.Name != "Go Study" {
		t.Errorf("details.Name = %q, want Go Study", details.Name)
	}
	if len(sets) != 1 || sets[0].ID != "s1" {
		t.Errorf("sets = %+v, want s1", sets)
	}

	// An explicit lookup of a missing group IS an error.
	_, _, err = eng.GetGroupDetails(ctx, "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
