package auth

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

// Plain sentinels used by the session helpers.
var (
	// ErrIdentityNotFound is the error we return for non found identities
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrUnableToFindSession is the error when our request has no cookie
	ErrUnableToFindSession = errors.New("unable to find session")

	// ErrUnableToDecodeSession unable to decode the session cookie payload
	ErrUnableToDecodeSession = errors.New("unable to decode session")

	// ErrUnableToMapClaims unable to get claims from token
	ErrUnableToMapClaims = errors.New("unable to map claims")

	// ErrNoEmptyString guards helpers that refuse empty input
	ErrNoEmptyString = errors.New("value should not be an empty string")
)

// ErrMismatchedHashAndPassword is the single failure we expose for bad
// credentials. Unknown identifier and wrong password produce the same value
// so callers cannot enumerate accounts.
var ErrMismatchedHashAndPassword = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode("INVALID_CREDENTIALS").
	WithCode(goerrors.CodeUnauthorized)

// ErrUsernameTaken is returned when registering a username that exists.
var ErrUsernameTaken = goerrors.New("username already exists", goerrors.CategoryConflict).
	WithTextCode("USERNAME_TAKEN").
	WithCode(goerrors.CodeConflict)

// ErrEmailTaken is returned when registering an email that exists.
var ErrEmailTaken = goerrors.New("email already registered", goerrors.CategoryConflict).
	WithTextCode("EMAIL_TAKEN").
	WithCode(goerrors.CodeConflict)

// ErrAccountPending blocks logins for accounts that never verified.
var ErrAccountPending = goerrors.New("account is pending verification", goerrors.CategoryAuth).
	WithTextCode("ACCOUNT_PENDING").
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountDisabled blocks logins for disabled accounts.
var ErrAccountDisabled = goerrors.New("account is disabled", goerrors.CategoryAuth).
	WithTextCode("ACCOUNT_DISABLED").
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned for sessions past their expiry.
var ErrTokenExpired = goerrors.New("session token is expired", goerrors.CategoryAuth).
	WithTextCode("TOKEN_EXPIRED").
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned for cookies that fail signature or shape checks.
var ErrTokenMalformed = goerrors.New("session token is malformed", goerrors.CategoryAuth).
	WithTextCode("TOKEN_MALFORMED").
	WithCode(goerrors.CodeUnauthorized)

// ErrPasscodeDelivery wraps notifier failures. The account and passcode are
// already committed when this fires; the caller should point the user to the
// resend flow.
var ErrPasscodeDelivery = goerrors.New("failed to deliver verification code", goerrors.CategoryOperation).
	WithTextCode("PASSCODE_DELIVERY_FAILED").
	WithCode(goerrors.CodeInternal)

// IsConflictError reports whether err carries a uniqueness conflict.
func IsConflictError(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryConflict
}

// IsAuthenticationError reports whether err should render the generic
// credential failure message.
func IsAuthenticationError(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryAuth
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenExpired) {
		return true
	}
	return hasTextCode(err, ErrTokenExpired.TextCode)
}

// IsMalformedError will check for tokens that failed signature or shape checks
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenMalformed) {
		return true
	}
	return hasTextCode(err, ErrTokenMalformed.TextCode)
}

// hasTextCode matches on the structured code rather than the rendered
// message, which is sanitized and not stable across configurations.
func hasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}
