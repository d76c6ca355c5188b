package auth_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	auth "github.com/JOHN-REY-CARLO-A-GEMAO/gemao-finals"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPAuthenticator(t *testing.T) {
	httpAuth, err := auth.NewHTTPAuthenticator(new(MockAuthenticator), newTestAuthConfig())

	require.NoError(t, err)
	require.NotNil(t, httpAuth)
	assert.Equal(t, 30*time.Minute, httpAuth.GetCookieDuration())
}

func TestRouteAuthenticatorLogin(t *testing.T) {
	mockAuth := new(MockAuthenticator)
	mockCtx := new(MockContext)

	mockAuth.On("Login", mock.Anything, "ada@example.com", "secret-password").
		Return("signed.session.token", nil)

	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("IP").Return("203.0.113.9")
	mockCtx.On("GetString", "User-Agent", "").Return("go-test")
	mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == "session_token" &&
			c.Value == "signed.session.token" &&
			c.HTTPOnly &&
			c.SameSite == "Lax"
	})).Return()

	httpAuth, err := auth.NewHTTPAuthenticator(mockAuth, newTestAuthConfig())
	require.NoError(t, err)

	payload := MockLoginPayload{Identifier: "ada@example.com", Password: "secret-password"}
	require.NoError(t, httpAuth.Login(mockCtx, payload))

	mockAuth.AssertExpectations(t)
	mockCtx.AssertExpectations(t)
}

func TestRouteAuthenticatorLoginError(t *testing.T) {
	mockAuth := new(MockAuthenticator)
	mockCtx := new(MockContext)

	mockAuth.On("Login", mock.Anything, "ada@example.com", "wrong-password").
		Return("", auth.ErrMismatchedHashAndPassword)

	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("IP").Return("203.0.113.9")
	mockCtx.On("GetString", "User-Agent", "").Return("go-test")

	httpAuth, err := auth.NewHTTPAuthenticator(mockAuth, newTestAuthConfig())
	require.NoError(t, err)

	payload := MockLoginPayload{Identifier: "ada@example.com", Password: "wrong-password"}
	err = httpAuth.Login(mockCtx, payload)

	require.Error(t, err)
	assert.True(t, auth.IsAuthenticationError(err))
	mockCtx.AssertNotCalled(t, "Cookie", mock.Anything)

	mockAuth.AssertExpectations(t)
}

func TestRouteAuthenticatorLogout(t *testing.T) {
	t.Run("records activity for a valid session", func(t *testing.T) {
		mockAuth := new(MockAuthenticator)
		mockCtx := new(MockContext)
		sink := &memorySink{}

		userID := uuid.NewString()
		session := &auth.SessionObject{
			UserID:      userID,
			DisplayName: "Ada Lovelace",
			Role:        auth.RoleUser,
		}

		mockAuth.On("SessionFromToken", "signed.session.token").Return(session, nil)

		mockCtx.On("Cookies", "session_token").Return("signed.session.token")
		mockCtx.On("Context").Return(context.Background())
		mockCtx.On("IP").Return("203.0.113.9")
		mockCtx.On("GetString", "User-Agent", "").Return("go-test")
		mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "session_token" && c.Value == "" && c.Expires.Before(time.Now())
		})).Return()

		httpAuth, err := auth.NewHTTPAuthenticator(mockAuth, newTestAuthConfig())
		require.NoError(t, err)
		httpAuth.WithActivitySink(sink)

		httpAuth.Logout(mockCtx)

		events := sink.ByAction(auth.ActivityLogout)
		require.Len(t, events, 1)
		assert.Equal(t, userID, events[0].UserID)

		mockAuth.AssertExpectations(t)
		mockCtx.AssertExpectations(t)
	})

	t.Run("skips activity for sessions without an account id", func(t *testing.T) {
		mockAuth := new(MockAuthenticator)
		mockCtx := new(MockContext)
		sink := &memorySink{}

		session := &auth.SessionObject{UserID: "not-an-account", Role: auth.RoleUser}
		mockAuth.On("SessionFromToken", "signed.session.token").Return(session, nil)

		mockCtx.On("Cookies", "session_token").Return("signed.session.token")
		mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "session_token" && c.Value == ""
		})).Return()

		httpAuth, err := auth.NewHTTPAuthenticator(mockAuth, newTestAuthConfig())
		require.NoError(t, err)
		httpAuth.WithActivitySink(sink)

		httpAuth.Logout(mockCtx)

		assert.Empty(t, sink.Events())
		mockCtx.AssertExpectations(t)
	})

	t.Run("missing cookie is a no-op", func(t *testing.T) {
		mockAuth := new(MockAuthenticator)
		mockCtx := new(MockContext)

		mockCtx.On("Cookies", "session_token").Return("")
		mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "session_token" && c.Value == "" && c.Expires.Before(time.Now())
		})).Return()

		httpAuth, err := auth.NewHTTPAuthenticator(mockAuth, newTestAuthConfig())
		require.NoError(t, err)

		httpAuth.Logout(mockCtx)

		mockAuth.AssertNotCalled(t, "SessionFromToken", mock.Anything)
		mockCtx.AssertExpectations(t)
	})
}

func TestRouteAuthenticatorRedirects(t *testing.T) {
	httpAuth, err := auth.NewHTTPAuthenticator(new(MockAuthenticator), newTestAuthConfig())
	require.NoError(t, err)

	t.Run("SetRedirect", func(t *testing.T) {
		mockCtx := new(MockContext)

		mockCtx.On("OriginalURL").Return("/profile")
		mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "rejected_route" && c.Value == "/profile" && c.HTTPOnly
		})).Return()

		httpAuth.SetRedirect(mockCtx)

		mockCtx.AssertExpectations(t)
	})

	t.Run("GetRedirect", func(t *testing.T) {
		mockCtx := new(MockContext)

		mockCtx.On("Cookies", "rejected_route").Return("/profile")
		mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "rejected_route" && c.Value == "" && c.Expires.Before(time.Now())
		})).Return()

		redirect := httpAuth.GetRedirect(mockCtx, "/dashboard")
		assert.Equal(t, "/profile", redirect)

		mockCtx.AssertExpectations(t)
	})

	t.Run("GetRedirectOrDefault", func(t *testing.T) {
		mockCtx := new(MockContext)

		mockCtx.On("Referer").Return("/came-from")
		mockCtx.On("Cookies", "rejected_route", "/came-from").Return("")
		mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "rejected_route" && c.Value == "" && c.Expires.Before(time.Now())
		})).Return()

		redirect := httpAuth.GetRedirectOrDefault(mockCtx)
		assert.Equal(t, "/dashboard", redirect)

		mockCtx.AssertExpectations(t)
	})
}

func TestMakeClientRouteAuthErrorHandler(t *testing.T) {
	t.Run("optional auth proceeds to the next handler", func(t *testing.T) {
		mockCtx := new(MockContext)

		httpAuth, err := auth.NewHTTPAuthenticator(new(MockAuthenticator), newTestAuthConfig())
		require.NoError(t, err)

		handler := httpAuth.MakeClientRouteAuthErrorHandler(true)

		require.NoError(t, handler(mockCtx, auth.ErrTokenMalformed))
		assert.True(t, mockCtx.NextCalled, "next handler should run for optional routes")
	})

	t.Run("required auth routes through the error handler", func(t *testing.T) {
		mockCtx := new(MockContext)

		httpAuth, err := auth.NewHTTPAuthenticator(new(MockAuthenticator), newTestAuthConfig())
		require.NoError(t, err)

		var got error
		httpAuth.ErrorHandler = func(c router.Context, err error) error {
			got = err
			return nil
		}

		handler := httpAuth.MakeClientRouteAuthErrorHandler(false)

		require.NoError(t, handler(mockCtx, auth.ErrTokenExpired))
		assert.True(t, auth.IsTokenExpiredError(got))
		assert.False(t, mockCtx.NextCalled)
	})
}

func TestAuthControllerLoginPostRendersGenericError(t *testing.T) {
	repo, _ := setupTestDB(t)

	mockAuth := new(MockAuthenticator)
	mockAuth.On("Login", mock.Anything, "ada", "wrong-password").
		Return("", auth.ErrMismatchedHashAndPassword)

	httpAuth, err := auth.NewHTTPAuthenticator(mockAuth, newTestAuthConfig())
	require.NoError(t, err)

	controller := auth.NewAuthController(
		auth.WithControllerRepo(repo),
		auth.WithControllerAuther(httpAuth),
		auth.WithControllerConfig(newTestAuthConfig()),
	)

	mockCtx := new(MockContext)
	mockCtx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*auth.LoginRequest)
		payload.Identifier = "ada"
		payload.Password = "wrong-password"
	}).Return(nil)
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("IP").Return("203.0.113.9")
	mockCtx.On("GetString", "User-Agent", "").Return("go-test")
	mockCtx.On("Render", "login", mock.MatchedBy(func(vc router.ViewContext) bool {
		errs, ok := vc["errors"].(map[string]string)
		return ok && errs["authentication"] == "Invalid credentials or inactive account"
	})).Return(nil)

	require.NoError(t, controller.LoginPost(mockCtx))

	mockAuth.AssertExpectations(t)
	mockCtx.AssertExpectations(t)
	mockCtx.AssertNotCalled(t, "Redirect", mock.Anything, mock.Anything)
}

func TestAuthControllerVerifyPost(t *testing.T) {
	t.Run("activates the account with a valid code", func(t *testing.T) {
		repo, _ := setupTestDB(t)
		notifier := &recordingNotifier{}

		handler := auth.NewRegisterUserHandler(repo, notifier, nil, nil)
		require.NoError(t, handler.Execute(context.Background(), registrationMessage()))

		user, err := repo.Users().GetByIdentifier(context.Background(), "ada")
		require.NoError(t, err)

		delivered, ok := notifier.last()
		require.True(t, ok)

		httpAuth, err := auth.NewHTTPAuthenticator(new(MockAuthenticator), newTestAuthConfig())
		require.NoError(t, err)

		controller := auth.NewAuthController(
			auth.WithControllerRepo(repo),
			auth.WithControllerAuther(httpAuth),
			auth.WithControllerConfig(newTestAuthConfig()),
		)

		mockCtx := new(MockContext)
		mockCtx.On("Param", "account_id", "").Return(user.ID.String())
		mockCtx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
			payload := args.Get(0).(*auth.VerifyPayload)
			payload.Code = delivered.code
		}).Return(nil)
		mockCtx.On("Context").Return(context.Background())
		mockCtx.On("IP").Return("203.0.113.9")
		mockCtx.On("GetString", "User-Agent", "").Return("go-test")
		mockCtx.On("Locals", mock.Anything).Return(nil)
		mockCtx.On("Locals", mock.Anything, mock.Anything).Return(nil)
		mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "router-app-flash"
		})).Return()
		mockCtx.On("Redirect", "/login", []int{http.StatusSeeOther}).Return(nil)

		require.NoError(t, controller.VerifyPost(mockCtx))

		refreshed, err := repo.Users().GetByIdentifier(context.Background(), user.ID.String())
		require.NoError(t, err)
		assert.Equal(t, auth.UserStatusActive, refreshed.Status)

		mockCtx.AssertExpectations(t)
	})

	t.Run("renders the generic message for a malformed code", func(t *testing.T) {
		repo, _ := setupTestDB(t)

		httpAuth, err := auth.NewHTTPAuthenticator(new(MockAuthenticator), newTestAuthConfig())
		require.NoError(t, err)

		controller := auth.NewAuthController(
			auth.WithControllerRepo(repo),
			auth.WithControllerAuther(httpAuth),
			auth.WithControllerConfig(newTestAuthConfig()),
		)

		accountID := uuid.NewString()

		mockCtx := new(MockContext)
		mockCtx.On("Param", "account_id", "").Return(accountID)
		mockCtx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
			payload := args.Get(0).(*auth.VerifyPayload)
			payload.Code = "12"
		}).Return(nil)
		mockCtx.On("Render", "verify_otp", mock.MatchedBy(func(vc router.ViewContext) bool {
			errs, ok := vc["errors"].(map[string]string)
			return ok && errs["code"] == "Invalid or expired verification code"
		})).Return(nil)

		require.NoError(t, controller.VerifyPost(mockCtx))

		mockCtx.AssertExpectations(t)
		mockCtx.AssertNotCalled(t, "Redirect", mock.Anything, mock.Anything)
	})
}

func TestAuthControllerResendPost(t *testing.T) {
	t.Run("sends a fresh code to a pending account", func(t *testing.T) {
		repo, _ := setupTestDB(t)

		user := newPendingUser(t, "pia", "pia@example.com")
		_, err := repo.Users().Register(context.Background(), user)
		require.NoError(t, err)

		mockNotifier := new(MockNotifier)
		mockNotifier.On("Send", mock.Anything, "pia@example.com", mock.Anything, "Test User").
			Return(nil)

		httpAuth, err := auth.NewHTTPAuthenticator(new(MockAuthenticator), newTestAuthConfig())
		require.NoError(t, err)

		controller := auth.NewAuthController(
			auth.WithControllerRepo(repo),
			auth.WithControllerAuther(httpAuth),
			auth.WithControllerConfig(newTestAuthConfig()),
			auth.WithControllerNotifier(mockNotifier),
		)

		mockCtx := new(MockContext)
		mockCtx.On("Param", "account_id", "").Return(user.ID.String())
		mockCtx.On("Context").Return(context.Background())
		mockCtx.On("IP").Return("203.0.113.9")
		mockCtx.On("GetString", "User-Agent", "").Return("go-test")
		mockCtx.On("Locals", mock.Anything).Return(nil)
		mockCtx.On("Locals", mock.Anything, mock.Anything).Return(nil)
		mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "router-app-flash"
		})).Return()
		mockCtx.On("Redirect", "/verify-otp/"+user.ID.String(), []int{http.StatusSeeOther}).
			Return(nil)

		require.NoError(t, controller.ResendPost(mockCtx))

		mockNotifier.AssertExpectations(t)
		mockCtx.AssertExpectations(t)
	})

	t.Run("unknown account gets the same neutral response", func(t *testing.T) {
		repo, _ := setupTestDB(t)

		mockNotifier := new(MockNotifier)

		httpAuth, err := auth.NewHTTPAuthenticator(new(MockAuthenticator), newTestAuthConfig())
		require.NoError(t, err)

		controller := auth.NewAuthController(
			auth.WithControllerRepo(repo),
			auth.WithControllerAuther(httpAuth),
			auth.WithControllerConfig(newTestAuthConfig()),
			auth.WithControllerNotifier(mockNotifier),
		)

		accountID := uuid.NewString()

		mockCtx := new(MockContext)
		mockCtx.On("Param", "account_id", "").Return(accountID)
		mockCtx.On("Context").Return(context.Background())
		mockCtx.On("IP").Return("203.0.113.9")
		mockCtx.On("GetString", "User-Agent", "").Return("go-test")
		mockCtx.On("Locals", mock.Anything).Return(nil)
		mockCtx.On("Locals", mock.Anything, mock.Anything).Return(nil)
		mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "router-app-flash"
		})).Return()
		mockCtx.On("Redirect", "/verify-otp/"+accountID, []int{http.StatusSeeOther}).
			Return(nil)

		require.NoError(t, controller.ResendPost(mockCtx))

		mockNotifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		mockCtx.AssertExpectations(t)
	})
}
