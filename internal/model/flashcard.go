// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — plain values with no behaviour
// beyond what the methods below add. Go favours composition over inheritance.
package model

// Flashcard is a single question/answer pair.
//
// The `json:"..."` struct tags control how encoding/json serializes these
// fields — both for the local cache (JSON blobs in SQLite) and for the HTTP
// API. Identity is the ID field; content is treated as immutable once cached,
// and a conflicting write to the same ID is resolved last-write-wins.
type Flashcard struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Fields returns the flashcard as a remote-store document body.
// The remote contract is untyped (field name → value), so each model knows
// how to flatten itself into one.
func (f Flashcard) Fields() map[string]any {
	return map[string]any{
		"id":       f.ID,
		"question": f.Question,
		"answer":   f.Answer,
	}
}

// FlashcardSet is a named, ordered collection of flashcards scoped to a group.
//
// GroupID is the partition key: an empty GroupID means the set is personal
// (ungrouped). The ID is globally unique across both the local cache and the
// remote store — a set with the same ID in both places is the SAME logical
// set and must collapse to one entry after a merge, never two.
type FlashcardSet struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	GroupID    string      `json:"groupID"`
	Flashcards []Flashcard `json:"flashcards"`
}

// Fields returns the set as a remote-store document body. Flashcards are
// nested as a list of documents, matching the layout the mobile clients wrote.
func (s FlashcardSet) Fields() map[string]any {
	cards := make([]map[string]any, 0, len(s.Flashcards))
	for _, f := range s.Flashcards {
		cards = append(cards, f.Fields())
	}
	return map[string]any{
		"id":         s.ID,
		"name":       s.Name,
		"groupID":    s.GroupID,
		"flashcards": cards,
	}
}
