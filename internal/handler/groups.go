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

// GroupHandler serves the group endpoints. All of them require an
// authenticated identity — the engine needs the caller's email for
// membership resolution.
type GroupHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewGroupHandler(eng *engine.Engine, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{engine: eng, logger: logger}
}

type createGroupRequest struct {
	Name    string              `json:"name"`
	Members []model.GroupMember `json:"members,omitempty"`
}

type groupsResponse struct {
	Groups  []model.Group `json:"groups"`
	Warning string        `json:"warning,omitempty"`
}

// HandleCreate creates a group owned by the caller. POST /api/groups
//
// A 201 with a warning means the group exists but some member writes
// failed — the client should retry adding those members, not re-create
// the group.
func (h *GroupHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	group, err := h.engine.CreateGroup(r.Context(), id, req.Name, req.Members)
	if err != nil && group.ID == "" {
		writeError(w, err)
		return
	}

	resp := struct {
		Group   model.Group `json:"group"`
		Warning string      `json:"warning,omitempty"`
	}{Group: group}
	if err != nil {
		// Partial member failures: the group was created.
		resp.Warning = "some members could not be added: " + err.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

// HandleList returns the caller's groups. GET /api/groups
func (h *GroupHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	groups, err := h.engine.ResolveUserGroups(r.Context(), id)
	if groups == nil && err != nil {
		writeError(w, err)
		return
	}
	if groups == nil {
		groups = []model.Group{}
	}

	resp := groupsResponse{Groups: groups}
	if err != nil {
		// Degraded or partially-resolved result: the data is usable.
		resp.Warning = degradedWarning
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleDetails returns a group's header and flashcard sets.
// GET /api/groups/{groupID}
func (h *GroupHandler) HandleDetails(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	details, sets, err := h.engine.GetGroupDetails(r.Context(), groupID)
	if err != nil && details.ID == "" {
		writeError(w, err)
		return
	}
	if sets == nil {
		sets = []model.FlashcardSet{}
	}

	resp := struct {
		Group   model.GroupDetails   `json:"group"`
		Sets    []model.FlashcardSet `json:"sets"`
		Warning string               `json:"warning,omitempty"`
	}{Group: details, Sets: sets}
	if err != nil {
		resp.Warning = degradedWarning
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleValidate reports whether a group exists.
// GET /api/groups/{groupID}/exists
func (h *GroupHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	exists, err := h.engine.ValidateGroupExists(r.Context(), groupID)
	writeMaybeDegraded(w, err, func(warning string) any {
		return struct {
			Exists  bool   `json:"exists"`
			Warning string `json:"warning,omitempty"`
		}{Exists: exists, Warning: warning}
	})
}

// HandleMembers returns a group's members. GET /api/groups/{groupID}/members
func (h *GroupHandler) HandleMembers(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	members, err := h.engine.FetchGroupMembers(r.Context(), groupID)
	if members == nil && err != nil {
		writeError(w, err)
		return
	}
	if members == nil {
		members = []model.GroupMember{}
	}

	writeMaybeDegraded(w, err, func(warning string) any {
		return struct {
			Members []model.GroupMember `json:"members"`
			Warning string              `json:"warning,omitempty"`
		}{Members: members, Warning: warning}
	})
}

// HandleAddMember adds a member. POST /api/groups/{groupID}/members
func (h *GroupHandler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	var member model.GroupMember
	if err := json.NewDecoder(r.Body).Decode(&member); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	added, err := h.engine.AddMember(r.Context(), groupID, member)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

// HandleRemoveMember removes a member.
// DELETE /api/groups/{groupID}/members/{memberID}
func (h *GroupHandler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	memberID := chi.URLParam(r, "memberID")

	if err := h.engine.RemoveMember(r.Context(), groupID, memberID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGroupFlashcards returns a group's individual flashcards.
// GET /api/groups/{groupID}/flashcards
func (h *GroupHandler) HandleGroupFlashcards(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	cards, err := h.engine.FetchGroupFlashcards(r.Context(), groupID)
	if cards == nil && err != nil {
		writeError(w, err)
		return
	}
	if cards == nil {
		cards = []model.Flashcard{}
	}

	writeMaybeDegraded(w, err, func(warning string) any {
		return struct {
			Flashcards []model.Flashcard `json:"flashcards"`
			Warning    string            `json:"warning,omitempty"`
		}{Flashcards: cards, Warning: warning}
	})
}

// HandleAddGroupFlashcard adds one card to a group.
// POST /api/groups/{groupID}/flashcards
func (h *GroupHandler) HandleAddGroupFlashcard(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	var card model.Flashcard
	if err := json.NewDecoder(r.Body).Decode(&card); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	added, err := h.engine.AddGroupFlashcard(r.Context(), groupID, card)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}
