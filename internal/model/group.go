package model

// GroupMember is a user's membership record inside a group.
//
// Equality is defined by ID alone — two members with the same ID are the
// same person even if the cached name or email has drifted. Deduplication
// by ID is mandatory whenever members are loaded from a collection that may
// contain re-added duplicates (e.g. the same user joined twice through a
// retried write).
type GroupMember struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Fields returns the member as a remote-store document body.
func (m GroupMember) Fields() map[string]any {
	return map[string]any{
		"id":    m.ID,
		"name":  m.Name,
		"email": m.Email,
	}
}

// Group is a study group: a member list plus an optional collection of
// individual (unset) flashcards shared into the group.
//
// Members are unique by ID. A write to any sub-collection (members, cards)
// replaces the whole cached Group atomically — the cache never holds a
// partially-updated parent.
type Group struct {
	ID                   string        `json:"id"`
	Name                 string        `json:"name"`
	Members              []GroupMember `json:"members"`
	IndividualFlashcards []Flashcard   `json:"individualFlashcards,omitempty"`
}

// GroupDetails is the lightweight header returned by a group lookup —
// enough for a caller to render a title without pulling sub-collections.
type GroupDetails struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DedupeMembers returns members with duplicates (by ID) removed,
// keeping the first occurrence of each ID in its original position.
func DedupeMembers(members []GroupMember) []GroupMember {
	seen := make(map[string]bool, len(members))
	out := make([]GroupMember, 0, len(members))
	for _, m := range members {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	return out
}
