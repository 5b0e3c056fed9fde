package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/qliu/flashsync/internal/apperror"
	"github.com/qliu/flashsync/internal/auth"
	"github.com/qliu/flashsync/internal/cache"
	"github.com/qliu/flashsync/internal/model"
	"github.com/qliu/flashsync/internal/remote"
)

func findGroup(groups []model.Group, groupID string) int {
	for i, g := range groups {
		if g.ID == groupID {
			return i
		}
	}
	return -1
}

// CreateGroup creates a group owned by the caller.
//
// Offline: the group (creator + provided members, deduped) is appended to
// the cached groups and persisted — it lives locally until connectivity
// allows a future push.
//
// Online: the group document is written first, then the creator's member
// record (both hard failures if the remote rejects them), then the
// remaining members fan out concurrently. The fan-out joins on ALL
// completions; per-member failures are collected and returned together with
// the created group — one member's failure never aborts the others already
// in flight.
func (e *Engine) CreateGroup(ctx context.Context, identity auth.Identity, name string, members []model.GroupMember) (model.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Group{}, apperror.ValidationFailed("name", "group name is required")
	}

	groupID := xid.New().String()
	creator := model.GroupMember{
		ID:    identity.ID,
		Name:  e.creatorName(ctx, identity),
		Email: strings.ToLower(identity.Email),
	}

	if e.offlineFor(ModeAuto) {
		group := model.Group{
			ID:      groupID,
			Name:    name,
			Members: model.DedupeMembers(append([]model.GroupMember{creator}, members...)),
		}

		unlock := e.locks.lock(cache.KeyOfflineGroups)
		defer unlock()
		groups, err := e.session.Groups(ctx)
		if err != nil {
			return model.Group{}, fmt.Errorf("engine: reading cached groups: %w", err)
		}
		if err := e.session.SetGroups(ctx, append(groups, group)); err != nil {
			return model.Group{}, fmt.Errorf("engine: caching new group: %w", err)
		}
		e.logger.Info("group saved locally in offline mode",
			slog.String("id", groupID), slog.String("name", name))
		return group, nil
	}

	fields := map[string]any{
		"id":        groupID,
		"name":      name,
		"createdAt": time.Now().UTC().Format(time.RFC3339),
	}
	if err := e.remote.SetDocument(ctx, remote.GroupsPath, groupID, fields); err != nil {
		return model.Group{}, apperror.RemoteUnavailable("create group", err)
	}
	if err := e.remote.SetDocument(ctx, remote.MembersPath(groupID), creator.ID, creator.Fields()); err != nil {
		return model.Group{}, apperror.RemoteUnavailable("add group creator", err)
	}

	// Fan out the remaining member writes; wait for all, collect failures.
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		memberMu sync.Mutex
		failures []error
	)
	added := []model.GroupMember{creator}
	for _, m := range model.DedupeMembers(members) {
		if m.ID == creator.ID {
			continue
		}
		wg.Add(1)
		go func(m model.GroupMember) {
			defer wg.Done()
			if err := e.remote.SetDocument(ctx, remote.MembersPath(groupID), m.ID, m.Fields()); err != nil {
				mu.Lock()
				failures = append(failures, fmt.Errorf("adding member %s: %w", m.Email, err))
				mu.Unlock()
				return
			}
			memberMu.Lock()
			added = append(added, m)
			memberMu.Unlock()
		}(m)
	}
	wg.Wait()

	group := model.Group{ID: groupID, Name: name, Members: added}
	if len(failures) > 0 {
		e.logger.Warn("group created with partial member failures",
			slog.String("id", groupID), slog.Int("failed", len(failures)))
		return group, errors.Join(failures...)
	}

	e.logger.Info("group created",
		slog.String("id", groupID), slog.String("name", name),
		slog.Int("members", len(added)))
	return group, nil
}

// creatorName resolves the caller's display name from the remote users
// collection, falling back to the local part of their email. The lookup is
// best-effort — group creation should not fail because a profile read did.
func (e *Engine) creatorName(ctx context.Context, identity auth.Identity) string {
	fallback := identity.Email
	if at := strings.Index(fallback, "@"); at > 0 {
		fallback = fallback[:at]
	}
	if fallback == "" {
		fallback = "Unknown"
	}

	if e.offlineFor(ModeAuto) {
		if name := e.session.Username(); name != "" {
			return name
		}
		return fallback
	}

	docs, err := e.remote.GetDocuments(ctx, remote.UsersPath, remote.Filter{Field: "id", Value: identity.ID})
	if err != nil || len(docs) == 0 {
		if err != nil {
			e.logger.Warn("creator profile lookup failed",
				slog.String("userID", identity.ID), slog.String("error", err.Error()))
		}
		return fallback
	}
	if name, ok := docs[0].Fields["username"].(string); ok && name != "" {
		return name
	}
	return fallback
}

// ResolveUserGroups finds every group the caller belongs to.
//
// Online this is an O(G) fan-out: list all groups, then check each group's
// member sub-collection for the caller's normalized email concurrently,
// joining on all completions. Results are accumulated keyed by group ID —
// dedup by identity, not insertion, since a retried completion could
// otherwise match the same group twice. Per-group check failures are
// collected and returned alongside the groups that did resolve.
func (e *Engine) ResolveUserGroups(ctx context.Context, identity auth.Identity) ([]model.Group, error) {
	if e.offlineFor(ModeAuto) {
		groups, err := e.session.Groups(ctx)
		if err != nil {
			return nil, fmt.Errorf("engine: reading cached groups: %w", err)
		}
		return groups, nil
	}

	email := strings.ToLower(strings.TrimSpace(identity.Email))
	if email == "" {
		return []model.Group{}, nil
	}

	docs, err := e.remote.GetDocuments(ctx, remote.GroupsPath)
	if err != nil {
		e.logger.Warn("remote group listing failed, serving cached groups",
			slog.String("error", err.Error()))
		groups, cacheErr := e.session.Groups(ctx)
		if cacheErr != nil {
			return nil, fmt.Errorf("engine: reading cached groups: %w", cacheErr)
		}
		return groups, apperror.RemoteUnavailable("resolve user groups", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		matched  = make(map[string]model.Group)
		failures []error
	)
	for _, doc := range docs {
		groupID := doc.ID
		groupName, _ := doc.Fields["name"].(string)
		if groupName == "" {
			groupName = "Unknown Group"
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			members, err := e.remote.GetDocuments(ctx, remote.MembersPath(groupID),
				remote.Filter{Field: "email", Value: email})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, fmt.Errorf("checking members of group %s: %w", groupID, err))
				return
			}
			if len(members) > 0 {
				matched[groupID] = model.Group{ID: groupID, Name: groupName}
			}
		}()
	}
	wg.Wait()

	// Deterministic order: follow the listing order of the groups query.
	groups := make([]model.Group, 0, len(matched))
	for _, doc := range docs {
		if g, ok := matched[doc.ID]; ok {
			groups = append(groups, g)
		}
	}

	e.cacheResolvedGroups(ctx, groups)

	if len(failures) > 0 {
		return groups, errors.Join(failures...)
	}
	return groups, nil
}

// cacheResolvedGroups upserts resolved groups into the offline cache.
// Existing cached entries keep their member lists and flashcards — a
// resolve returns bare group headers, and overwriting would destroy
// offline-only sub-collection data. Cache failures here only warn; the
// resolve itself succeeded.
func (e *Engine) cacheResolvedGroups(ctx context.Context, resolved []model.Group) {
	if len(resolved) == 0 {
		return
	}
	unlock := e.locks.lock(cache.KeyOfflineGroups)
	defer unlock()

	cached, err := e.session.Groups(ctx)
	if err != nil {
		e.logger.Warn("failed to read cached groups for write-through", slog.String("error", err.Error()))
		return
	}
	for _, g := range resolved {
		if idx := findGroup(cached, g.ID); idx >= 0 {
			cached[idx].Name = g.Name
		} else {
			cached = append(cached, g)
		}
	}
	if err := e.session.SetGroups(ctx, cached); err != nil {
		e.logger.Warn("failed to cache resolved groups", slog.String("error", err.Error()))
	}
}

// FetchGroupMembers returns a group's members, deduplicated by member ID —
// a collection that suffered retried writes can hold the same user twice.
//
// Offline, the cached Group's member list is the source; if the group was
// never cached, the write-through member category stands in; if neither
// exists the result is empty. Absence is valid, never an error.
func (e *Engine) FetchGroupMembers(ctx context.Context, groupID string) ([]model.GroupMember, error) {
	if e.offlineFor(ModeAuto) {
		return e.cachedMembers(ctx, groupID)
	}

	docs, err := e.remote.GetDocuments(ctx, remote.MembersPath(groupID))
	if err != nil {
		e.logger.Warn("remote member fetch failed, serving cached members",
			slog.String("groupID", groupID), slog.String("error", err.Error()))
		members, cacheErr := e.cachedMembers(ctx, groupID)
		if cacheErr != nil {
			return nil, cacheErr
		}
		return members, apperror.RemoteUnavailable("fetch group members", err)
	}

	members := make([]model.GroupMember, 0, len(docs))
	for _, doc := range docs {
		if m, ok := remote.DecodeGroupMember(doc); ok {
			members = append(members, m)
		}
	}
	members = model.DedupeMembers(members)

	e.writeThroughMembers(ctx, groupID, members)
	return members, nil
}

func (e *Engine) cachedMembers(ctx context.Context, groupID string) ([]model.GroupMember, error) {
	groups, err := e.session.Groups(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: reading cached groups: %w", err)
	}
	if idx := findGroup(groups, groupID); idx >= 0 && len(groups[idx].Members) > 0 {
		return model.DedupeMembers(groups[idx].Members), nil
	}

	byGroup, err := e.session.GroupMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: reading cached members: %w", err)
	}
	if members, ok := byGroup[groupID]; ok {
		return model.DedupeMembers(members), nil
	}
	return []model.GroupMember{}, nil
}

// writeThroughMembers records a freshly fetched member list for offline use:
// both the per-group member category and, when the group itself is cached,
// the group's own member list.
func (e *Engine) writeThroughMembers(ctx context.Context, groupID string, members []model.GroupMember) {
	unlock := e.locks.lock(cache.KeyOfflineGroupMembers)
	byGroup, err := e.session.GroupMembers(ctx)
	if err == nil {
		byGroup[groupID] = members
		err = e.session.SetGroupMembers(ctx, byGroup)
	}
	unlock()
	if err != nil {
		e.logger.Warn("failed to write through group members",
			slog.String("groupID", groupID), slog.String("error", err.Error()))
	}

	unlock = e.locks.lock(cache.KeyOfflineGroups)
	defer unlock()
	groups, err := e.session.Groups(ctx)
	if err != nil {
		return
	}
	if idx := findGroup(groups, groupID); idx >= 0 {
		groups[idx].Members = members
		if err := e.session.SetGroups(ctx, groups); err != nil {
			e.logger.Warn("failed to mirror members into cached group",
				slog.String("groupID", groupID), slog.String("error", err.Error()))
		}
	}
}

// AddMember adds a user to a group.
//
// The duplicate-email check is a business rule, not a transport concern, so
// it applies on both paths: a member whose email is already present is a
// Conflict, surfaced and never retried automatically.
//
// Online, the remote write must acknowledge BEFORE the cache updates —
// caching state the remote store rejected would wedge the local view.
func (e *Engine) AddMember(ctx context.Context, groupID string, member model.GroupMember) (model.GroupMember, error) {
	member.Email = strings.ToLower(strings.TrimSpace(member.Email))
	if member.Email == "" {
		return model.GroupMember{}, apperror.ValidationFailed("email", "member email is required")
	}
	if member.ID == "" {
		member.ID = xid.New().String()
	}

	if e.offlineFor(ModeAuto) {
		unlock := e.locks.lock(cache.KeyOfflineGroups)
		defer unlock()

		groups, err := e.session.Groups(ctx)
		if err != nil {
			return model.GroupMember{}, fmt.Errorf("engine: reading cached groups: %w", err)
		}
		idx := findGroup(groups, groupID)
		if idx < 0 {
			return model.GroupMember{}, apperror.NotFound("group", groupID)
		}
		for _, m := range groups[idx].Members {
			if m.ID == member.ID || strings.EqualFold(m.Email, member.Email) {
				return model.GroupMember{}, apperror.Conflict("member", member.Email+" already in group")
			}
		}
		groups[idx].Members = append(groups[idx].Members, member)
		if err := e.session.SetGroups(ctx, groups); err != nil {
			return model.GroupMember{}, fmt.Errorf("engine: caching member: %w", err)
		}
		return member, nil
	}

	existing, err := e.remote.GetDocuments(ctx, remote.MembersPath(groupID),
		remote.Filter{Field: "email", Value: member.Email})
	if err != nil {
		return model.GroupMember{}, apperror.RemoteUnavailable("check existing members", err)
	}
	if len(existing) > 0 {
		return model.GroupMember{}, apperror.Conflict("member", member.Email+" already in group")
	}

	if err := e.remote.SetDocument(ctx, remote.MembersPath(groupID), member.ID, member.Fields()); err != nil {
		return model.GroupMember{}, apperror.RemoteUnavailable("add member", err)
	}

	e.mirrorMemberAdd(ctx, groupID, member)
	e.logger.Info("member added",
		slog.String("groupID", groupID), slog.String("email", member.Email))
	return member, nil
}

func (e *Engine) mirrorMemberAdd(ctx context.Context, groupID string, member model.GroupMember) {
	unlock := e.locks.lock(cache.KeyOfflineGroups)
	defer unlock()
	groups, err := e.session.Groups(ctx)
	if err != nil {
		return
	}
	idx := findGroup(groups, groupID)
	if idx < 0 {
		return
	}
	groups[idx].Members = model.DedupeMembers(append(groups[idx].Members, member))
	if err := e.session.SetGroups(ctx, groups); err != nil {
		e.logger.Warn("failed to mirror member add into cache",
			slog.String("groupID", groupID), slog.String("error", err.Error()))
	}
}

// RemoveMember removes a member from a group. Removal is idempotent:
// removing an absent member (or from an uncached group offline) is a no-op
// success — the desired end state is already true.
func (e *Engine) RemoveMember(ctx context.Context, groupID, memberID string) error {
	if memberID == "" {
		return apperror.ValidationFailed("memberID", "member ID is required")
	}

	if e.offlineFor(ModeAuto) {
		unlock := e.locks.lock(cache.KeyOfflineGroups)
		defer unlock()

		groups, err := e.session.Groups(ctx)
		if err != nil {
			return fmt.Errorf("engine: reading cached groups: %w", err)
		}
		idx := findGroup(groups, groupID)
		if idx < 0 {
			return nil
		}
		kept := groups[idx].Members[:0:0]
		for _, m := range groups[idx].Members {
			if m.ID != memberID {
				kept = append(kept, m)
			}
		}
		groups[idx].Members = kept
		if err := e.session.SetGroups(ctx, groups); err != nil {
			return fmt.Errorf("engine: caching member removal: %w", err)
		}
		return nil
	}

	if err := e.remote.DeleteDocument(ctx, remote.MembersPath(groupID), memberID); err != nil {
		return apperror.RemoteUnavailable("remove member", err)
	}

	unlock := e.locks.lock(cache.KeyOfflineGroups)
	defer unlock()
	groups, err := e.session.Groups(ctx)
	if err != nil {
		return nil
	}
	if idx := findGroup(groups, groupID); idx >= 0 {
		kept := groups[idx].Members[:0:0]
		for _, m := range groups[idx].Members {
			if m.ID != memberID {
				kept = append(kept, m)
			}
		}
		groups[idx].Members = kept
		if err := e.session.SetGroups(ctx, groups); err != nil {
			e.logger.Warn("failed to mirror member removal into cache",
				slog.String("groupID", groupID), slog.String("error", err.Error()))
		}
	}
	return nil
}

// ValidateGroupExists reports whether a group exists in the active source
// of truth. A remote failure degrades to the cached answer plus a soft
// warning.
func (e *Engine) ValidateGroupExists(ctx context.Context, groupID string) (bool, error) {
	cachedExists := func() (bool, error) {
		groups, err := e.session.Groups(ctx)
		if err != nil {
			return false, fmt.Errorf("engine: reading cached groups: %w", err)
		}
		return findGroup(groups, groupID) >= 0, nil
	}

	if e.offlineFor(ModeAuto) {
		return cachedExists()
	}

	docs, err := e.remote.GetDocuments(ctx, remote.GroupsPath, remote.Filter{Field: "id", Value: groupID})
	if err != nil {
		exists, cacheErr := cachedExists()
		if cacheErr != nil {
			return false, cacheErr
		}
		return exists, apperror.RemoteUnavailable("validate group", err)
	}
	return len(docs) > 0, nil
}

// GetGroupDetails returns a group's header plus its flashcard sets.
// Unlike the read collections, an explicit lookup of a missing group IS an
// error — the caller asked about one specific group.
func (e *Engine) GetGroupDetails(ctx context.Context, groupID string) (model.GroupDetails, []model.FlashcardSet, error) {
	if e.offlineFor(ModeAuto) {
		groups, err := e.session.Groups(ctx)
		if err != nil {
			return model.GroupDetails{}, nil, fmt.Errorf("engine: reading cached groups: %w", err)
		}
		idx := findGroup(groups, groupID)
		if idx < 0 {
			return model.GroupDetails{}, nil, apperror.NotFound("group", groupID)
		}
		sets, err := e.cachedSetsFor(ctx, groupID)
		if err != nil {
			return model.GroupDetails{}, nil, err
		}
		return model.GroupDetails{ID: groupID, Name: groups[idx].Name}, sets, nil
	}

	docs, err := e.remote.GetDocuments(ctx, remote.GroupsPath, remote.Filter{Field: "id", Value: groupID})
	if err != nil {
		return model.GroupDetails{}, nil, apperror.RemoteUnavailable("get group details", err)
	}
	if len(docs) == 0 {
		return model.GroupDetails{}, nil, apperror.NotFound("group", groupID)
	}
	name, _ := docs[0].Fields["name"].(string)

	sets, err := e.FetchFlashcardSets(ctx, groupID, ModeAuto)
	if err != nil && !errors.Is(err, apperror.ErrRemoteUnavailable) {
		return model.GroupDetails{}, nil, err
	}
	return model.GroupDetails{ID: groupID, Name: name}, sets, err
}
