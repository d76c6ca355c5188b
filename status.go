package auth

// UserStatus tracks where an account is in its lifecycle.
type UserStatus string

const (
	// UserStatusPending is the state between registration and passcode
	// verification. Pending accounts cannot log in.
	UserStatusPending UserStatus = "pending"
	// UserStatusActive accounts can authenticate.
	UserStatusActive UserStatus = "active"
	// UserStatusDisabled accounts are blocked until an admin re-enables them.
	UserStatusDisabled UserStatus = "disabled"
)

// IsValid checks the status against the known lifecycle states.
func (s UserStatus) IsValid() bool {
	switch s {
	case UserStatusPending, UserStatusActive, UserStatusDisabled:
		return true
	default:
		return false
	}
}

// Toggled returns the status an admin toggle moves this status to. Active
// accounts are disabled; everything else becomes active, which gives admins
// a way to force-activate a stuck pending account.
func (s UserStatus) Toggled() UserStatus {
	if s == UserStatusActive {
		return UserStatusDisabled
	}
	return UserStatusActive
}

// statusAuthError maps a lifecycle state to the login gate error, nil when
// the account may authenticate.
func statusAuthError(status UserStatus) error {
	switch status {
	case UserStatusActive:
		return nil
	case UserStatusPending:
		return ErrAccountPending
	default:
		return ErrAccountDisabled
	}
}
