// Package cache defines the local durable storage contract.
//
// The local cache is a key-scoped byte store: every structured entity
// (groups, flashcard sets, individual flashcards, member lists) is encoded
// as one serialized collection under a fixed key per category. The engine
// and session layers never see SQL — they see Get/Set/Delete, the same way
// the service layer of a web app sees a repository interface rather than a
// database handle.
package cache

import "context"

// Category keys. All durable state lives under these names; session.LogOut
// deletes every Key* category in one sweep.
const (
	KeyOfflineMode          = "offlineMode"
	KeyLoggedIn             = "loggedIn"
	KeyUsername             = "username"
	KeyOfflineGroups        = "offlineGroups"
	KeyOfflineFlashcardSets = "offlineFlashcardSets"
	KeyOfflineIndividual    = "offlineIndividualFlashcards"
	KeyOfflineGroupMembers  = "offlineGroupMembers"
)

// AccountKey returns the key under which a registered account is stored.
// Accounts are keyed by normalized email so login is a single Get.
func AccountKey(email string) string {
	return "user:" + email
}

// Store is the durable key/value contract.
//
// Get returns (nil, nil) for an absent key — absence is a valid state, not
// an error. Set must be all-or-nothing per key: a failed write never leaves
// the key holding partial bytes. Delete of an absent key is a no-op.
//
// Local storage is synchronous and effectively always available; no timeout
// or retry discipline applies here (unlike the remote store).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
