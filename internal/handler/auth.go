package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/qliu/flashsync/internal/apperror"
	"github.com/qliu/flashsync/internal/auth"
	"github.com/qliu/flashsync/internal/session"
)

// AuthHandler serves registration, login, and logout.
//
// Login does two things at once: it issues the JWT cookie AND flips the
// session's logged-in flag. Logout clears the cookie AND purges the offline
// cache through the session — the cookie alone going away must not leave
// another account's cached data behind on a shared device.
type AuthHandler struct {
	accounts *auth.Accounts
	tokens   *auth.TokenService
	session  *session.State
	logger   *slog.Logger
}

func NewAuthHandler(accounts *auth.Accounts, tokens *auth.TokenService, st *session.State, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, tokens: tokens, session: st, logger: logger}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// HandleRegister creates an account. POST /api/auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	user, err := h.accounts.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("account registered", slog.String("email", user.Email))
	writeJSON(w, http.StatusCreated, userResponse{ID: user.ID, Username: user.Username, Email: user.Email})
}

// HandleLogin verifies credentials, sets the token cookie, and marks the
// session logged in. POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	user, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := h.tokens.Generate(auth.Identity{ID: user.ID, Email: user.Email})
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.session.LogIn(r.Context(), user.Username); err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(24 * time.Hour),
	})
	writeJSON(w, http.StatusOK, userResponse{ID: user.ID, Username: user.Username, Email: user.Email})
}

// HandleLogout clears the cookie and purges the offline cache.
// POST /api/auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.LogOut(r.Context()); err != nil {
		writeError(w, err)
		return
	}

	// Expire the cookie by setting MaxAge < 0.
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}
