// Package remote defines the contract the reconciliation engine consumes
// from the authoritative backing store.
//
// The remote store is an external system (a document database). The engine
// only needs collection-scoped document CRUD plus equality-filtered queries,
// so that is all this interface exposes. Concrete implementations live in
// the sub-packages: memory (tests, development) and httpdoc (a REST client).
package remote

import "context"

// Document is one record in a collection: its ID plus an untyped field map.
// The store is schemaless; package-level decode helpers (decode.go) turn
// field maps into typed models, dropping malformed records individually.
type Document struct {
	ID     string
	Fields map[string]any
}

// Filter is an equality filter on a single field, e.g. {"email", "a@b.com"}.
type Filter struct {
	Field string
	Value any
}

// Store is the remote document-store contract.
//
// All calls may block on the network; every method takes a context and
// implementations are expected to honor its deadline. A timed-out call is
// an ordinary error — the engine maps it to its offline fallback path, it
// is never a special state.
type Store interface {
	// GetDocuments returns every document in the collection at path,
	// optionally narrowed by equality filters. An empty collection is a
	// valid result, not an error.
	GetDocuments(ctx context.Context, path string, filters ...Filter) ([]Document, error)

	// SetDocument creates or replaces the document with the given ID.
	SetDocument(ctx context.Context, path, id string, fields map[string]any) error

	// DeleteDocument removes the document with the given ID. Deleting an
	// absent document succeeds — the desired end state is reached.
	DeleteDocument(ctx context.Context, path, id string) error
}

// Collection paths. Kept as functions so every caller builds the exact
// layout the mobile clients wrote.
const GroupsPath = "groups"

// UsersPath is the account-profile collection (display names).
const UsersPath = "users"

func MembersPath(groupID string) string {
	return "groups/" + groupID + "/members"
}

func GroupFlashcardsPath(groupID string) string {
	return "groups/" + groupID + "/flashcards"
}

func FlashcardSetsPath(groupID string) string {
	return "groups/" + groupID + "/flashcardSets"
}

func UserFlashcardsPath(userID string) string {
	return "users/" + userID + "/flashcards"
}
