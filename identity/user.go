// Package identity defines the user record shared by the auth engine and the
// credential stores that persist it.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by a Store when no user matches the lookup key.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned by Store.Create when the normalized email is already registered.
	ErrEmailTaken = errors.New("email already registered")
)

// Preferences holds per-user settings. TOTPSecret is credential material and
// is never serialized.
type Preferences struct {
	EnableMFA          bool   `json:"enable2FA"`
	EmailNotifications bool   `json:"emailNotifications"`
	TOTPSecret         string `json:"-"`
}

// User is the identity record. PasswordHash is never serialized.
type User struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Email         string      `json:"email"`
	PasswordHash  string      `json:"-"`
	EmailVerified bool        `json:"isEmailVerified"`
	Preferences   Preferences `json:"userPreferences"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// NewUser carries the fields required to create a user. Email must already
// be normalized and PasswordHash must already be hashed.
type NewUser struct {
	Name         string
	Email        string
	PasswordHash string
}

// Store is the durable credential store. Implementations must enforce email
// uniqueness and return ErrNotFound / ErrEmailTaken for the matching cases.
type Store interface {
	Create(ctx context.Context, u NewUser) (*User, error)
	ByID(ctx context.Context, id string) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	MarkEmailVerified(ctx context.Context, id string) (*User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	SetTOTPSecret(ctx context.Context, id, secret string) error
	EnableMFA(ctx context.Context, id string) error
	// DisableMFA turns MFA off and clears the stored TOTP secret.
	DisableMFA(ctx context.Context, id string) error
}

// NormalizeEmail trims and lower-cases an email so uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
