package auth

import (
	"crypto/rand"
	"math/big"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// PasscodeLength is the number of digits in a verification code.
	PasscodeLength = 4
	// PasscodeTTL is how long an issued code stays redeemable.
	PasscodeTTL = 15 * time.Minute
)

// Passcode is a single-use verification code bound to one account. At most
// one outstanding row exists per account; issuing a new code replaces any
// previous ones in the same transaction.
type Passcode struct {
	bun.BaseModel `bun:"table:passcodes,alias:otp"`
	ID            int64     `bun:"id,pk,autoincrement" json:"id,omitempty"`
	UserID        uuid.UUID `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Code          string    `bun:"code,notnull" json:"-"`
	Email         string    `bun:"email,notnull" json:"email,omitempty"`
	Used          bool      `bun:"used,notnull" json:"used,omitempty"`
	ExpiresAt     time.Time `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`
}

// ExpiredAt reports whether the code is past its TTL at the given instant.
func (p *Passcode) ExpiredAt(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}

// GeneratePasscode returns a fixed-length numeric code drawn from a
// cryptographic source. Leading zeros are valid, codes are compared as
// strings.
func GeneratePasscode() (string, error) {
	digits := make([]byte, PasscodeLength)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate passcode")
		}
		digits[i] = '0' + byte(n.Int64())
	}
	return string(digits), nil
}

// VerifyOutcome is the internal result of a verification attempt. Handlers
// collapse every non-verified outcome into one generic user-facing message.
type VerifyOutcome int

const (
	// PasscodeInvalid means no code matched the submitted value.
	PasscodeInvalid VerifyOutcome = iota
	// PasscodeExpired means the code matched but its TTL elapsed.
	PasscodeExpired
	// PasscodeConsumed means the code matched but was already redeemed.
	PasscodeConsumed
	// PasscodeVerified means the code was redeemed by this attempt.
	PasscodeVerified
)

// Verified reports whether the attempt consumed the code.
func (o VerifyOutcome) Verified() bool {
	return o == PasscodeVerified
}

func (o VerifyOutcome) String() string {
	switch o {
	case PasscodeExpired:
		return "expired"
	case PasscodeConsumed:
		return "consumed"
	case PasscodeVerified:
		return "verified"
	default:
		return "invalid"
	}
}
