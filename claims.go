package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims is the read-side view of a session token's payload.
type AuthClaims interface {
	Subject() string
	AccountID() string
	Role() string
	DisplayName() string
	HasRole(role string) bool
	Expires() time.Time
	IssuedAt() time.Time
}

// SessionClaims is the concrete token payload. Identity, display name, and
// role are snapshotted at login; a role change takes effect when the session
// is next established, never mid-session.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID      string `json:"uid,omitempty"`
	UserRole string `json:"role,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Verify interface compliance
var _ AuthClaims = (*SessionClaims)(nil)

// Subject returns the subject claim
func (c *SessionClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// AccountID returns the account identifier
func (c *SessionClaims) AccountID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Role returns the role snapshotted at login
func (c *SessionClaims) Role() string {
	return c.UserRole
}

// DisplayName returns the name snapshotted at login
func (c *SessionClaims) DisplayName() string {
	return c.Name
}

// HasRole checks role membership. The role set is closed, there is no
// hierarchy to walk.
func (c *SessionClaims) HasRole(role string) bool {
	return c.UserRole == role
}

// IsAdmin reports whether the session carries the admin role.
func (c *SessionClaims) IsAdmin() bool {
	role, ok := ParseRole(c.UserRole)
	return ok && role.IsAdmin()
}

// Expires returns the expiration time
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *SessionClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
