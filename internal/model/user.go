package model

import "time"

// User is a registered account.
//
// The identity-provider contract the engine consumes is just {id, email};
// Username is the display name shown to group members and is what gets
// resolved from the remote users collection when a group is created.
//
// PasswordHash is a bcrypt hash — never the plaintext — and is tagged
// `json:"-"` so it cannot leak through an API response. The cache layer
// persists accounts with its own envelope type instead (see auth.Accounts).
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}
