package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/qliu/flashsync/internal/apperror"
	"github.com/qliu/flashsync/internal/connectivity"
	"github.com/qliu/flashsync/internal/session"
)

// SessionHandler exposes the session flags: the user-forced offline toggle
// and the current connectivity reading.
type SessionHandler struct {
	session *session.State
	monitor *connectivity.Monitor
	logger  *slog.Logger
}

func NewSessionHandler(st *session.State, mon *connectivity.Monitor, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{session: st, monitor: mon, logger: logger}
}

type sessionStatusResponse struct {
	LoggedIn    bool   `json:"loggedIn"`
	Username    string `json:"username,omitempty"`
	OfflineMode bool   `json:"offlineMode"`
	RemoteUp    bool   `json:"remoteUp"`
}

// HandleStatus reports the session flags. GET /api/session
func (h *SessionHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionStatusResponse{
		LoggedIn:    h.session.LoggedIn(),
		Username:    h.session.Username(),
		OfflineMode: h.session.OfflineMode(),
		RemoteUp:    h.monitor.IsAvailable(),
	})
}

type offlineModeRequest struct {
	OfflineMode *bool `json:"offlineMode"`
}

// HandleSetOfflineMode flips the offline toggle. PUT /api/session/offline-mode
//
// The toggle is independent of connectivity — forcing offline with the
// network up is a supported state (the user wants to study from cache).
func (h *SessionHandler) HandleSetOfflineMode(w http.ResponseWriter, r *http.Request) {
	var req offlineModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OfflineMode == nil {
		writeError(w, apperror.ValidationFailed("offlineMode", "offlineMode boolean is required"))
		return
	}

	if err := h.session.SetOfflineMode(r.Context(), *req.OfflineMode); err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("offline mode set via API", slog.Bool("on", *req.OfflineMode))
	writeJSON(w, http.StatusOK, map[string]bool{"offlineMode": *req.OfflineMode})
}
