package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/qliu/flashsync/internal/apperror"
	"github.com/qliu/flashsync/internal/auth"
	"github.com/qliu/flashsync/internal/engine"
	"github.com/qliu/flashsync/internal/model"
)

// FlashcardHandler serves the flashcard-set and personal-flashcard endpoints.
type FlashcardHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewFlashcardHandler(eng *engine.Engine, logger *slog.Logger) *FlashcardHandler {
	return &FlashcardHandler{engine: eng, logger: logger}
}

// HandleListSets returns a group's flashcard sets.
// GET /api/groups/{groupID}/sets?mode=auto|offline|online
//
// The mode parameter lets a client force the source of truth: "offline"
// reads cache only, "online" skips the connectivity check and lets the
// call degrade on its own.
func (h *FlashcardHandler) HandleListSets(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	mode, err := engine.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, err)
		return
	}

	sets, err := h.engine.FetchFlashcardSets(r.Context(), groupID, mode)
	if sets == nil && err != nil {
		writeError(w, err)
		return
	}
	if sets == nil {
		sets = []model.FlashcardSet{}
	}

	writeMaybeDegraded(w, err, func(warning string) any {
		return struct {
			Sets    []model.FlashcardSet `json:"sets"`
			Warning string               `json:"warning,omitempty"`
		}{Sets: sets, Warning: warning}
	})
}

// HandleShareSet shares a flashcard set into a group.
// POST /api/groups/{groupID}/sets
func (h *FlashcardHandler) HandleShareSet(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	var set model.FlashcardSet
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	shared, err := h.engine.ShareFlashcardSet(r.Context(), groupID, set)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, shared)
}

// HandleSync imports the caller's personal flashcards from the remote
// collection, replacing the cached personal category.
// POST /api/flashcards/sync
func (h *FlashcardHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	cards, err := h.engine.SyncUserFlashcards(r.Context(), id.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("personal flashcards synced via API",
		slog.String("userID", id.ID), slog.Int("count", len(cards)))
	writeJSON(w, http.StatusOK, struct {
		Flashcards []model.Flashcard `json:"flashcards"`
	}{Flashcards: cards})
}

// HandleListPersonal returns the cached personal flashcards.
// GET /api/flashcards
func (h *FlashcardHandler) HandleListPersonal(w http.ResponseWriter, r *http.Request) {
	cards, err := h.engine.LoadIndividualFlashcards(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if cards == nil {
		cards = []model.Flashcard{}
	}
	writeJSON(w, http.StatusOK, struct {
		Flashcards []model.Flashcard `json:"flashcards"`
	}{Flashcards: cards})
}

type savePersonalRequest struct {
	Flashcards []model.Flashcard `json:"flashcards"`
}

// HandleSavePersonal appends cards to the cached personal category.
// POST /api/flashcards
func (h *FlashcardHandler) HandleSavePersonal(w http.ResponseWriter, r *http.Request) {
	var req savePersonalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}
	if len(req.Flashcards) == 0 {
		writeError(w, apperror.ValidationFailed("flashcards", "at least one flashcard is required"))
		return
	}

	if err := h.engine.SaveIndividualFlashcards(r.Context(), req.Flashcards); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"saved": len(req.Flashcards)})
}
