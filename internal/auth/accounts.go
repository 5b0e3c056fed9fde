package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/qliu/flashsync/internal/apperror"
	"github.com/qliu/flashsync/internal/cache"
	"github.com/qliu/flashsync/internal/model"
)

// Accounts is the local account registry. Accounts live in the same durable
// key-value cache as the offline data — one record per normalized email —
// which is what lets a user who registered while online still log in with
// no connectivity at all.
type Accounts struct {
	store     cache.Store
	passwords *PasswordService
}

// NewAccounts creates an account registry over the given cache store.
func NewAccounts(store cache.Store, passwords *PasswordService) *Accounts {
	return &Accounts{store: store, passwords: passwords}
}

// storedUser is the persisted envelope. The password hash never leaves this
// package: model.User tags it json:"-", and Accounts only ever hands back
// model.User values.
type storedUser struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (s storedUser) user() model.User {
	return model.User{
		ID:        s.ID,
		Username:  s.Username,
		Email:     s.Email,
		CreatedAt: s.CreatedAt,
	}
}

// Register creates a new account. The email is normalized to lower case
// before use — it is the account key, and "A@b.c" and "a@B.C" must be the
// same account. A duplicate email is a Conflict.
func (a *Accounts) Register(ctx context.Context, username, email, password string) (model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if username == "" {
		return model.User{}, apperror.ValidationFailed("username", "username is required")
	}
	if email == "" || !strings.Contains(email, "@") {
		return model.User{}, apperror.ValidationFailed("email", "a valid email is required")
	}
	if len(password) < 6 {
		return model.User{}, apperror.ValidationFailed("password", "password must be at least 6 characters")
	}

	existing, err := a.store.Get(ctx, cache.AccountKey(email))
	if err != nil {
		return model.User{}, fmt.Errorf("auth: checking existing account: %w", err)
	}
	if existing != nil {
		return model.User{}, apperror.Conflict("account", email+" is already registered")
	}

	hash, err := a.passwords.Hash(password)
	if err != nil {
		return model.User{}, err
	}

	rec := storedUser{
		ID:           xid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return model.User{}, fmt.Errorf("auth: encoding account: %w", err)
	}
	if err := a.store.Set(ctx, cache.AccountKey(email), raw); err != nil {
		return model.User{}, fmt.Errorf("auth: storing account: %w", err)
	}

	return rec.user(), nil
}

// Authenticate verifies an email/password pair and returns the account.
//
// An unknown email and a wrong password both come back as the same
// Unauthorized error — the response must not reveal which half was wrong.
func (a *Accounts) Authenticate(ctx context.Context, email, password string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	raw, err := a.store.Get(ctx, cache.AccountKey(email))
	if err != nil {
		return model.User{}, fmt.Errorf("auth: loading account: %w", err)
	}
	if raw == nil {
		return model.User{}, apperror.Unauthorized("invalid email or password")
	}

	var rec storedUser
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.User{}, fmt.Errorf("auth: decoding account: %w", err)
	}

	if err := a.passwords.Verify(rec.PasswordHash, password); err != nil {
		return model.User{}, apperror.Unauthorized("invalid email or password")
	}

	return rec.user(), nil
}

// Lookup returns the account for a normalized email, or NotFound.
func (a *Accounts) Lookup(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	raw, err := a.store.Get(ctx, cache.AccountKey(email))
	if err != nil {
		return model.User{}, fmt.Errorf("auth: loading account: %w", err)
	}
	if raw == nil {
		return model.User{}, apperror.NotFound("account", email)
	}

	var rec storedUser
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.User{}, fmt.Errorf("auth: decoding account: %w", err)
	}
	return rec.user(), nil
}
