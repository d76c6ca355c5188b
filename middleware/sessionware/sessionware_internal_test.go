package sessionware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClaims struct {
	subject string
	role    string
}

func (c stubClaims) Subject() string     { return c.subject }
func (c stubClaims) AccountID() string   { return c.subject }
func (c stubClaims) Role() string        { return c.role }
func (c stubClaims) DisplayName() string { return c.subject }

func (c stubClaims) HasRole(role string) bool { return c.role == role }

func TestGetExtractorsParsesLookupList(t *testing.T) {
	extractors := GetExtractors("cookie:session_token,header:Authorization,query:token")
	assert.Len(t, extractors, 3)

	extractors = GetExtractors("cookie: session_token , header: Authorization")
	assert.Len(t, extractors, 2)

	extractors = GetExtractors("bogus:whatever")
	assert.Empty(t, extractors)
}

func TestCheckRoleMembership(t *testing.T) {
	admin := stubClaims{subject: "a", role: "admin"}
	user := stubClaims{subject: "u", role: "user"}

	// Empty set means any authenticated session.
	assert.NoError(t, checkRoleMembership(user, nil))

	assert.NoError(t, checkRoleMembership(admin, []string{"admin"}))
	assert.NoError(t, checkRoleMembership(user, []string{"admin", "user"}))

	// Membership only, no hierarchy: admin is not in {user}.
	err := checkRoleMembership(admin, []string{"user"})
	assert.ErrorIs(t, err, ErrSessionRoleForbidden)
}

func TestGetDefaultConfigDefaults(t *testing.T) {
	validator := TokenValidatorFunc(func(token string) (Claims, error) {
		return stubClaims{subject: "a", role: "user"}, nil
	})

	cfg := GetDefaultConfig(Config{TokenValidator: validator})

	assert.Equal(t, "user", cfg.ContextKey)
	assert.Equal(t, defaultTokenLookup, cfg.TokenLookup)
	assert.Equal(t, "Bearer", cfg.AuthScheme)
	assert.Equal(t, "current_user", cfg.TemplateUserKey)
	assert.NotNil(t, cfg.SuccessHandler)
	assert.NotNil(t, cfg.ErrorHandler)
}

func TestGetDefaultConfigRequiresValidator(t *testing.T) {
	assert.Panics(t, func() {
		GetDefaultConfig(Config{})
	})
}

func TestTokenValidatorFunc(t *testing.T) {
	validator := TokenValidatorFunc(func(token string) (Claims, error) {
		require.Equal(t, "raw-token", token)
		return stubClaims{subject: "a", role: "admin"}, nil
	})

	claims, err := validator.Validate("raw-token")
	require.NoError(t, err)
	assert.Equal(t, "a", claims.Subject())
	assert.True(t, claims.HasRole("admin"))
}
