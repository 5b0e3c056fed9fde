package engine

import "github.com/qliu/flashsync/internal/model"

// MergeSets reconciles the cached and remote views of one group scope.
//
// The merge law:
//  1. Cached entries OUTSIDE the scope pass through unchanged — another
//     group's offline-only data is never silently dropped by fetching
//     this group.
//  2. In-scope cached entries and remote entries are deduplicated by ID.
//     The remote entry wins a tie, because the remote store is
//     authoritative once reachable; the winner keeps the FIRST-SEEN
//     position of its ID, so winning on content never reorders the list.
//
// Replacing in place (rather than "last concatenated element wins") is what
// makes the merge idempotent: MergeSets(MergeSets(A,B,s), B, s) equals
// MergeSets(A,B,s), element for element.
func MergeSets(cached, remoteSets []model.FlashcardSet, scope string) []model.FlashcardSet {
	out := make([]model.FlashcardSet, 0, len(cached)+len(remoteSets))

	// Out-of-scope survivors first, in their cached order.
	for _, s := range cached {
		if s.GroupID != scope {
			out = append(out, s)
		}
	}

	// Dedupe in-scope ∪ remote; later occurrences overwrite at the
	// first-seen index.
	index := make(map[string]int)
	upsert := func(s model.FlashcardSet) {
		if i, ok := index[s.ID]; ok {
			out[i] = s
			return
		}
		index[s.ID] = len(out)
		out = append(out, s)
	}

	for _, s := range cached {
		if s.GroupID == scope {
			upsert(s)
		}
	}
	for _, s := range remoteSets {
		upsert(s)
	}

	return out
}

// filterScope returns the subset of sets belonging to scope, preserving order.
func filterScope(sets []model.FlashcardSet, scope string) []model.FlashcardSet {
	out := make([]model.FlashcardSet, 0, len(sets))
	for _, s := range sets {
		if s.GroupID == scope {
			out = append(out, s)
		}
	}
	return out
}
