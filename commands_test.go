package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	auth "github.com/JOHN-REY-CARLO-A-GEMAO/gemao-finals"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingNotifier captures deliveries so tests can assert on the code that
// went out.
type recordingNotifier struct {
	mu    sync.Mutex
	sends []sentCode
	fail  error
}

type sentCode struct {
	destination string
	code        string
	displayName string
}

func (n *recordingNotifier) Send(_ context.Context, destination, code, displayName string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.sends = append(n.sends, sentCode{destination, code, displayName})
	return nil
}

func (n *recordingNotifier) last() (sentCode, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sends) == 0 {
		return sentCode{}, false
	}
	return n.sends[len(n.sends)-1], true
}

func registrationMessage() auth.RegisterUserMessage {
	return auth.RegisterUserMessage{
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Username:        "ada",
		Email:           "ada@example.com",
		Password:        "secret-password",
		ConfirmPassword: "secret-password",
		MobileNumber:    "+12025550123",
		Address:         "Ockham Park",
	}
}

func TestRegisterUserCreatesPendingAccountWithPasscode(t *testing.T) {
	repo, _ := setupTestDB(t)
	notifier := &recordingNotifier{}
	sink := &memorySink{}

	handler := auth.NewRegisterUserHandler(repo, notifier, sink, nil)

	var res *auth.RegisterUserResponse
	msg := registrationMessage()
	msg.OnResponse = func(r *auth.RegisterUserResponse) { res = r }

	require.NoError(t, handler.Execute(context.Background(), msg))
	require.NotNil(t, res)
	assert.True(t, res.Delivered)
	assert.Equal(t, "ada@example.com", res.Destination)

	user, err := repo.Users().GetByIdentifier(context.Background(), "ada")
	require.NoError(t, err)
	assert.Equal(t, auth.UserStatusPending, user.Status)
	assert.Equal(t, auth.RoleUser, user.Role)

	outstanding, err := repo.Passcodes().Outstanding(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, outstanding)

	delivered, ok := notifier.last()
	require.True(t, ok)
	assert.Equal(t, outstanding.Code, delivered.code)
	assert.Equal(t, "Ada Lovelace", delivered.displayName)

	assert.Len(t, sink.ByAction(auth.ActivityRegistration), 1)
}

func TestRegisterUserSurvivesDeliveryFailure(t *testing.T) {
	repo, _ := setupTestDB(t)
	notifier := &recordingNotifier{fail: errors.New("smtp unreachable")}

	handler := auth.NewRegisterUserHandler(repo, notifier, nil, nil)

	var res *auth.RegisterUserResponse
	msg := registrationMessage()
	msg.OnResponse = func(r *auth.RegisterUserResponse) { res = r }

	require.NoError(t, handler.Execute(context.Background(), msg))
	require.NotNil(t, res)
	assert.False(t, res.Delivered)

	// Account and code are committed regardless; the resend flow recovers.
	user, err := repo.Users().GetByIdentifier(context.Background(), "ada")
	require.NoError(t, err)

	outstanding, err := repo.Passcodes().Outstanding(context.Background(), user.ID)
	require.NoError(t, err)
	assert.NotNil(t, outstanding)
}

func TestRegisterUserValidationOrder(t *testing.T) {
	repo, _ := setupTestDB(t)
	handler := auth.NewRegisterUserHandler(repo, nil, nil, nil)
	ctx := context.Background()

	seed := registrationMessage()
	require.NoError(t, handler.Execute(ctx, seed))

	tests := []struct {
		name     string
		mutate   func(*auth.RegisterUserMessage)
		textCode string
	}{
		{
			name:     "username format first",
			mutate:   func(m *auth.RegisterUserMessage) { m.Username = "bad name!" },
			textCode: "INVALID_USERNAME",
		},
		{
			name: "email format before uniqueness",
			mutate: func(m *auth.RegisterUserMessage) {
				m.Username = "grace"
				m.Email = "not-an-email"
			},
			textCode: "INVALID_EMAIL",
		},
		{
			name: "username taken before email taken",
			mutate: func(m *auth.RegisterUserMessage) {
				m.Username = "ada"
				m.Email = "ada@example.com"
			},
			textCode: "USERNAME_TAKEN",
		},
		{
			name: "email taken before password checks",
			mutate: func(m *auth.RegisterUserMessage) {
				m.Username = "grace"
				m.Email = "ada@example.com"
				m.ConfirmPassword = "different"
			},
			textCode: "EMAIL_TAKEN",
		},
		{
			name: "password mismatch before length",
			mutate: func(m *auth.RegisterUserMessage) {
				m.Username = "grace"
				m.Email = "grace@example.com"
				m.Password = "abc"
				m.ConfirmPassword = "xyz"
			},
			textCode: "PASSWORD_MISMATCH",
		},
		{
			name: "password length",
			mutate: func(m *auth.RegisterUserMessage) {
				m.Username = "grace"
				m.Email = "grace@example.com"
				m.Password = "abc"
				m.ConfirmPassword = "abc"
			},
			textCode: "PASSWORD_TOO_SHORT",
		},
		{
			name: "mobile number last",
			mutate: func(m *auth.RegisterUserMessage) {
				m.Username = "grace"
				m.Email = "grace@example.com"
				m.MobileNumber = "not-a-number"
			},
			textCode: "INVALID_MOBILE_NUMBER",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg := registrationMessage()
			tc.mutate(&msg)

			err := handler.Execute(ctx, msg)
			require.Error(t, err)

			var richErr *goerrors.Error
			require.True(t, goerrors.As(err, &richErr))
			assert.Equal(t, tc.textCode, richErr.TextCode)
		})
	}
}

func TestVerifyPasscodeActivatesAccount(t *testing.T) {
	repo, _ := setupTestDB(t)
	sink := &memorySink{}
	ctx := context.Background()

	register := auth.NewRegisterUserHandler(repo, nil, nil, nil)
	require.NoError(t, register.Execute(ctx, registrationMessage()))

	user, err := repo.Users().GetByIdentifier(ctx, "ada")
	require.NoError(t, err)

	code, err := repo.Passcodes().Outstanding(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, code)

	verify := auth.NewVerifyPasscodeHandler(repo, sink, nil)

	// Wrong code first: account stays pending, code stays live.
	var res *auth.VerifyPasscodeResponse
	wrong := "0000"
	if code.Code == wrong {
		wrong = "1111"
	}
	require.NoError(t, verify.Execute(ctx, auth.VerifyPasscodeMessage{
		UserID:     user.ID.String(),
		Code:       wrong,
		OnResponse: func(r *auth.VerifyPasscodeResponse) { res = r },
	}))
	require.NotNil(t, res)
	assert.Equal(t, auth.PasscodeInvalid, res.Outcome)
	assert.False(t, res.Activated)

	// Right code: pending flips to active with a verification timestamp.
	require.NoError(t, verify.Execute(ctx, auth.VerifyPasscodeMessage{
		UserID:     user.ID.String(),
		Code:       code.Code,
		OnResponse: func(r *auth.VerifyPasscodeResponse) { res = r },
	}))
	require.NotNil(t, res)
	assert.Equal(t, auth.PasscodeVerified, res.Outcome)
	assert.True(t, res.Activated)

	activated, err := repo.Users().GetByIdentifier(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, auth.UserStatusActive, activated.Status)
	assert.NotNil(t, activated.VerifiedAt)

	assert.Len(t, sink.ByAction(auth.ActivityPasscodeVerify), 1)

	// The activated account can now log in.
	provider := auth.NewUserProvider(auth.UserStoreFromRepository(repo.Users()))
	auther := auth.NewAuthenticator(provider, newTestAuthConfig())

	token, err := auther.Login(ctx, "ada", "secret-password")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestVerifyPasscodeRejectsBadAccountID(t *testing.T) {
	repo, _ := setupTestDB(t)
	verify := auth.NewVerifyPasscodeHandler(repo, nil, nil)

	var res *auth.VerifyPasscodeResponse
	require.NoError(t, verify.Execute(context.Background(), auth.VerifyPasscodeMessage{
		UserID:     "not-a-uuid",
		Code:       "1234",
		OnResponse: func(r *auth.VerifyPasscodeResponse) { res = r },
	}))
	require.NotNil(t, res)
	assert.Equal(t, auth.PasscodeInvalid, res.Outcome)
	assert.False(t, res.Activated)
}

func TestResendPasscodeReissuesForPendingAccount(t *testing.T) {
	repo, _ := setupTestDB(t)
	notifier := &recordingNotifier{}
	ctx := context.Background()

	register := auth.NewRegisterUserHandler(repo, nil, nil, nil)
	require.NoError(t, register.Execute(ctx, registrationMessage()))

	user, err := repo.Users().GetByIdentifier(ctx, "ada")
	require.NoError(t, err)

	resend := auth.NewResendPasscodeHandler(repo, notifier, nil)

	var res *auth.ResendPasscodeResponse
	require.NoError(t, resend.Execute(ctx, auth.ResendPasscodeMessage{
		UserID:     user.ID.String(),
		OnResponse: func(r *auth.ResendPasscodeResponse) { res = r },
	}))
	require.NotNil(t, res)
	assert.True(t, res.Sent)
	assert.Equal(t, "ada@example.com", res.Destination)

	delivered, ok := notifier.last()
	require.True(t, ok)

	outstanding, err := repo.Passcodes().Outstanding(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, outstanding)
	assert.Equal(t, outstanding.Code, delivered.code)
}

func TestResendPasscodeIgnoresActiveAccount(t *testing.T) {
	repo, _ := setupTestDB(t)
	notifier := &recordingNotifier{}
	ctx := context.Background()

	user, err := repo.Users().Register(ctx, newPendingUser(t, "ada", "ada@example.com"))
	require.NoError(t, err)

	_, err = repo.Users().UpdateStatus(ctx, user.ID, auth.UserStatusActive)
	require.NoError(t, err)

	resend := auth.NewResendPasscodeHandler(repo, notifier, nil)

	var res *auth.ResendPasscodeResponse
	require.NoError(t, resend.Execute(ctx, auth.ResendPasscodeMessage{
		UserID:     user.ID.String(),
		OnResponse: func(r *auth.ResendPasscodeResponse) { res = r },
	}))
	require.NotNil(t, res)
	assert.False(t, res.Sent)

	_, ok := notifier.last()
	assert.False(t, ok)
}

func TestResendPasscodeUnknownAccountIsNeutral(t *testing.T) {
	repo, _ := setupTestDB(t)
	resend := auth.NewResendPasscodeHandler(repo, &recordingNotifier{}, nil)

	var res *auth.ResendPasscodeResponse
	require.NoError(t, resend.Execute(context.Background(), auth.ResendPasscodeMessage{
		UserID:     uuid.NewString(),
		OnResponse: func(r *auth.ResendPasscodeResponse) { res = r },
	}))
	require.NotNil(t, res)
	assert.False(t, res.Sent)
}
