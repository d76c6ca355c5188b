package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/JOHN-REY-CARLO-A-GEMAO/gemao-finals/middleware/sessionware"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteAuthenticator wires the Authenticator into HTTP routes: it sets and
// clears the session cookie and builds the middleware gates.
type RouteAuthenticator struct {
	auth             Authenticator
	cfg              Config
	cookieDuration   time.Duration
	activitySink     ActivitySink
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
	ErrorHandler     func(c router.Context, err error) error
}

var _ HTTPAuthenticator = (*RouteAuthenticator)(nil)

func NewHTTPAuthenticator(auther Authenticator, cfg Config) (*RouteAuthenticator, error) {
	cookieDuration := time.Duration(DefaultSessionDuration) * time.Minute
	if cfg.GetSessionDuration() > 0 {
		cookieDuration = time.Duration(cfg.GetSessionDuration()) * time.Minute
	}

	a := &RouteAuthenticator{
		cfg:            cfg,
		auth:           auther,
		Logger:         defLogger{},
		cookieDuration: cookieDuration,
		activitySink:   noopActivitySink{},
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

// WithActivitySink configures the sink used for logout events.
func (a *RouteAuthenticator) WithActivitySink(sink ActivitySink) *RouteAuthenticator {
	a.activitySink = normalizeActivitySink(sink)
	return a
}

func (a RouteAuthenticator) GetCookieDuration() time.Duration {
	return a.cookieDuration
}

// ProtectedRoute gates a route to any authenticated session.
func (a *RouteAuthenticator) ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	return a.RoleRoute(cfg, errorHandler)
}

// RoleRoute gates a route to sessions holding one of the given roles. With
// no roles it only requires a valid session.
func (a *RouteAuthenticator) RoleRoute(cfg Config, errorHandler func(router.Context, error) error, roles ...UserRole) router.MiddlewareFunc {
	allowed := make([]string, 0, len(roles))
	for _, role := range roles {
		allowed = append(allowed, string(role))
	}

	return sessionware.New(sessionware.Config{
		ErrorHandler:    errorHandler,
		ContextKey:      cfg.GetContextKey(),
		TokenLookup:     "cookie:" + cfg.GetContextKey(),
		AllowedRoles:    allowed,
		TokenValidator:  a.tokenValidator(),
		ContextEnricher: enrichRequestContext,
	})
}

// AdminRoute gates a route to admin sessions.
func (a *RouteAuthenticator) AdminRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	return a.RoleRoute(cfg, errorHandler, RoleAdmin)
}

func (a *RouteAuthenticator) tokenValidator() sessionware.TokenValidator {
	return sessionware.TokenValidatorFunc(func(token string) (sessionware.Claims, error) {
		session, err := a.auth.SessionFromToken(token)
		if err != nil {
			return nil, err
		}

		// SessionFromToken returns the parsed claims wrapped in a session
		// object; the middleware wants the claims view back.
		return sessionClaimsView(session), nil
	})
}

// Login authenticates the payload and sets the session cookie on success.
func (a *RouteAuthenticator) Login(ctx router.Context, payload LoginPayload) error {
	reqCtx := WithRequestMeta(ctx.Context(), RequestMeta{
		IPAddress: ctx.IP(),
		UserAgent: ctx.GetString("User-Agent", ""),
	})

	token, err := a.auth.Login(reqCtx, payload.GetIdentifier(), payload.GetPassword())
	if err != nil {
		a.Logger.Error("Login error: %s", err)
		return err
	}

	a.setCookieToken(ctx, token, a.cookieDuration)
	return nil
}

// Logout clears the session cookie. Deleting an absent cookie is a no-op so
// repeated logouts succeed.
func (a *RouteAuthenticator) Logout(ctx router.Context) {
	if raw := ctx.Cookies(a.cfg.GetContextKey()); raw != "" {
		if session, err := a.auth.SessionFromToken(raw); err == nil {
			a.emitLogout(ctx, session)
		}
	}

	a.cookieDel(ctx, a.cfg.GetContextKey())
}

func (a *RouteAuthenticator) emitLogout(ctx router.Context, session Session) {
	// Only sessions bound to a real account land in the activity log.
	if !HasUserUUID(session) {
		return
	}

	sink := normalizeActivitySink(a.activitySink)
	event := ActivityEvent{
		Action:      ActivityLogout,
		Actor:       ActorRef{ID: session.GetUserID(), Type: "user"},
		UserID:      session.GetUserID(),
		Description: "User logged out",
		IPAddress:   ctx.IP(),
		UserAgent:   ctx.GetString("User-Agent", ""),
		OccurredAt:  time.Now(),
	}

	if err := sink.Record(ctx.Context(), event); err != nil {
		a.Logger.Warn("logout activity sink error: %v", err)
	}
}

func (a *RouteAuthenticator) MakeClientRouteAuthErrorHandler(optional bool) func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *errors.Error

		if IsTokenExpiredError(err) {
			richErr = ErrTokenExpired
		} else if IsMalformedError(err) {
			richErr = ErrTokenMalformed
		} else {
			richErr = errors.Wrap(err, errors.CategoryAuth, "Invalid session").
				WithCode(errors.CodeUnauthorized)
		}

		if optional {
			a.Logger.Info("Optional auth failed, proceeding: %s", richErr.Message)
			return ctx.Next()
		}

		return a.ErrorHandler(ctx, richErr)
	}
}

func (a *RouteAuthenticator) GetRedirect(ctx router.Context, def ...string) string {
	rejectedRoute := a.cfg.GetRejectedRouteKey()
	r := ctx.Cookies(rejectedRoute)
	if r == "" {
		return def[0]
	}
	a.cookieDel(ctx, rejectedRoute)
	return r
}

func (a *RouteAuthenticator) GetRedirectOrDefault(ctx router.Context) string {
	rejectedRoute := a.cfg.GetRejectedRouteKey()
	refererHeader := string(ctx.Referer())

	r := ctx.Cookies(rejectedRoute, refererHeader)
	if r == "" {
		r = a.cfg.GetRejectedRouteDefault()
	}
	a.cookieDel(ctx, rejectedRoute)
	return r
}

func (a *RouteAuthenticator) SetRedirect(ctx router.Context) {
	rejectedRoute := a.cfg.GetRejectedRouteKey()

	a.Logger.Info("Setting redirect cookie, key=%s path=%s", rejectedRoute, ctx.OriginalURL())

	ctx.Cookie(&router.Cookie{
		Name:     rejectedRoute,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   a.cfg.GetSecureCookies(),
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) setCookieToken(c router.Context, val string, duration time.Duration) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetContextKey(),
		Value:    val,
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   a.cfg.GetSecureCookies(),
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   a.cfg.GetSecureCookies(),
		SameSite: "Lax",
	})
}

// defaultAuthErrHandler redirects to the login page. Authorization failures
// take the same path as authentication failures, no error page is rendered.
func (a *RouteAuthenticator) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "An unexpected authentication error").
			WithCode(errors.CodeUnauthorized)
	}

	a.Logger.Info(
		"Authentication error, redirecting to login: %s text_code=%s path=%s",
		richErr.Message,
		richErr.TextCode,
		c.OriginalURL(),
	)

	a.SetRedirect(c)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect("/login", statusCode)
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info(
		"Middleware error handler: %s category=%s details=%s",
		richErr.Message,
		richErr.Category,
		print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return a.AuthErrorHandler(c, richErr)
	default:
		return c.Status(richErr.Code).Render("errors/500", router.ViewContext{
			"error": richErr,
		})
	}
}

// enrichRequestContext mirrors the session claims into the request's
// standard context for handlers that only see a context.Context.
func enrichRequestContext(ctx context.Context, claims sessionware.Claims) context.Context {
	role, ok := ParseRole(claims.Role())
	if !ok {
		role = RoleUser
	}

	rc := RequestContext{
		AccountID:   claims.AccountID(),
		DisplayName: claims.DisplayName(),
		Role:        role,
	}

	if issuer, ok := claims.(interface{ GetIssuedAt() *time.Time }); ok {
		if at := issuer.GetIssuedAt(); at != nil {
			rc.IssuedAt = at.Unix()
		}
	}

	return WithRequestContext(ctx, rc)
}

// claimsView exposes a Session through the middleware's claims interface.
// It keeps the Session methods so route handlers can pull the session back
// out of locals.
type claimsView struct {
	Session
}

func sessionClaimsView(session Session) claimsView {
	return claimsView{Session: session}
}

func (v claimsView) Subject() string     { return v.GetUserID() }
func (v claimsView) AccountID() string   { return v.GetUserID() }
func (v claimsView) Role() string        { return string(v.GetRole()) }
func (v claimsView) DisplayName() string { return v.GetDisplayName() }

func (v claimsView) HasRole(role string) bool {
	return string(v.GetRole()) == role
}
