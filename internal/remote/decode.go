package remote

import "github.com/qliu/flashsync/internal/model"

// Decoding is best-effort by design: the store is schemaless and the mobile
// clients wrote documents with drifting shapes over time. Each DecodeX
// helper returns (value, false) for a malformed record so the caller can
// drop JUST that record and keep the rest — an explicit, testable filter
// rather than a silent catch-all. Callers count the drops and log them.

func str(fields map[string]any, key string) (string, bool) {
	v, ok := fields[key].(string)
	return v, ok
}

// DecodeFlashcard decodes a flashcard document body.
func DecodeFlashcard(fields map[string]any) (model.Flashcard, bool) {
	id, okID := str(fields, "id")
	question, okQ := str(fields, "question")
	answer, okA := str(fields, "answer")
	if !okID || !okQ || !okA {
		return model.Flashcard{}, false
	}
	return model.Flashcard{ID: id, Question: question, Answer: answer}, true
}

// DecodeFlashcardSet decodes a flashcard-set document. The document ID wins
// over any "id" field in the body — the ID is the document's identity in the
// store, and the two drifted apart in old client writes.
//
// Malformed nested flashcards are dropped individually; a set with a valid
// name but a corrupt card list still decodes with the surviving cards.
func DecodeFlashcardSet(doc Document) (model.FlashcardSet, bool) {
	name, okName := str(doc.Fields, "name")
	groupID, okGroup := str(doc.Fields, "groupID")
	if !okName || !okGroup {
		return model.FlashcardSet{}, false
	}

	var cards []model.Flashcard
	if raw, ok := doc.Fields["flashcards"].([]any); ok {
		cards = make([]model.Flashcard, 0, len(raw))
		for _, item := range raw {
			fields, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if card, ok := DecodeFlashcard(fields); ok {
				cards = append(cards, card)
			}
		}
	}

	return model.FlashcardSet{
		ID:         doc.ID,
		Name:       name,
		GroupID:    groupID,
		Flashcards: cards,
	}, true
}

// DecodeGroupMember decodes a member document. The document ID is the
// member's identity; name and email are required content.
func DecodeGroupMember(doc Document) (model.GroupMember, bool) {
	name, okName := str(doc.Fields, "name")
	email, okEmail := str(doc.Fields, "email")
	if !okName || !okEmail {
		return model.GroupMember{}, false
	}
	return model.GroupMember{ID: doc.ID, Name: name, Email: email}, true
}

// DecodeUserFlashcard decodes a document from the per-user flashcards
// collection, which uses the older term/explanation field names.
func DecodeUserFlashcard(fields map[string]any) (question, answer string, ok bool) {
	question, okT := str(fields, "term")
	answer, okE := str(fields, "explanation")
	if !okT || !okE {
		return "", "", false
	}
	return question, answer, true
}
