// Package identity resolves who the current user of a session is and manages
// local and federated accounts.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Storage keys.
const (
	UsersKey             = "tueje_users"
	currentUserKeyPrefix = "tueje_current_user:"
)

const minPasswordLen = 6

var (
	ErrMissingFields      = errors.New("all fields are required")
	ErrPasswordTooShort   = errors.New("password must be at least 6 characters")
	ErrEmailTaken         = errors.New("this email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidSession     = errors.New("invalid session")
)

// User is a row of the credential table.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Name         string    `json:"name"`
	Image        string    `json:"image,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Snapshot is the lightweight identity kept for a session.
type Snapshot struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (u User) Snapshot() Snapshot {
	return Snapshot{ID: u.ID, Email: u.Email, Name: u.Name}
}

// Federated reports whether the account was created by an SSO sign-in.
func (u User) Federated() bool {
	return u.PasswordHash == unusablePassword
}

// Profile is what a federated provider tells us about a user.
type Profile struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// Resolver answers "who is the current user" for a request or job.
type Resolver interface {
	CurrentUser(ctx context.Context) (Snapshot, bool)
}

// Fixed always resolves to the same user. Background jobs use it.
type Fixed string

func (f Fixed) CurrentUser(context.Context) (Snapshot, bool) {
	if f == "" {
		return Snapshot{}, false
	}
	return Snapshot{ID: string(f)}, true
}

type sessionKey struct{}

// WithSession binds a session id to ctx.
func WithSession(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sid)
}

// SessionFrom returns the session id bound to ctx.
func SessionFrom(ctx context.Context) (string, bool) {
	sid, ok := ctx.Value(sessionKey{}).(string)
	return sid, ok && sid != ""
}

func currentUserKey(sid string) string {
	return currentUserKeyPrefix + sid
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
