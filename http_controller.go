package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// genericLoginError is the only message the login form ever renders on
// failure. Wrong password, unknown account, and blocked account all look
// identical to the caller.
const genericLoginError = "Invalid credentials or inactive account"

// genericVerifyError covers wrong, expired, and already used codes alike.
const genericVerifyError = "Invalid or expired verification code"

// GetRouterSession retrieves the session the gate middleware stored in
// locals under the configured context key.
func GetRouterSession(c router.Context, key string) (*SessionObject, error) {
	val := c.Locals(key)
	if val == nil {
		return nil, ErrUnableToFindSession
	}

	if view, ok := val.(claimsView); ok {
		val = view.Session
	}

	session, ok := val.(*SessionObject)
	if session == nil || !ok {
		return nil, ErrUnableToDecodeSession
	}

	return session, nil
}

func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {

	controller := NewAuthController(opts...)

	protected := controller.Auther.ProtectedRoute(
		controller.Config,
		controller.Auther.MakeClientRouteAuthErrorHandler(false),
	)

	adminOnly := controller.Auther.AdminRoute(
		controller.Config,
		controller.Auther.MakeClientRouteAuthErrorHandler(false),
	)

	app.
		Get(controller.Routes.Login,
			controller.LoginShow,
		).
		SetName("sign-in.get")

	app.
		Post(
			controller.Routes.Login,
			controller.LoginPost,
		).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")

	app.Get(controller.Routes.Register, controller.RegistrationShow).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")

	app.Get(fmt.Sprintf("%s/:account_id", controller.Routes.Verify), controller.VerifyShow).
		SetName("verify-otp.get")
	app.Post(fmt.Sprintf("%s/:account_id", controller.Routes.Verify), controller.VerifyPost).
		SetName("verify-otp.post")

	app.Post(fmt.Sprintf("%s/:account_id", controller.Routes.Resend), controller.ResendPost).
		SetName("resend-otp.post")

	app.Get(controller.Routes.Dashboard, controller.Dashboard, protected).
		SetName("dashboard.get")

	app.Get(controller.Routes.Profile, controller.ProfileShow, protected).
		SetName("profile.get")
	app.Post(controller.Routes.Profile, controller.ProfilePost, protected).
		SetName("profile.post")

	app.Get(controller.Routes.AdminDashboard, controller.AdminDashboard, adminOnly).
		SetName("admin-dashboard.get")
	app.Get(fmt.Sprintf("%s/:account_id/toggle-status", controller.Routes.AdminUsers), controller.AdminToggleStatus, adminOnly).
		SetName("admin-toggle-status.get")
}

type AuthControllerRoutes struct {
	Login          string
	Logout         string
	Register       string
	Verify         string
	Resend         string
	Profile        string
	Dashboard      string
	AdminDashboard string
	AdminUsers     string
}

type AuthControllerViews struct {
	Login          string
	Register       string
	Verify         string
	Profile        string
	Dashboard      string
	AdminDashboard string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Routes       *AuthControllerRoutes
	Views        *AuthControllerViews
	Auther       HTTPAuthenticator
	Config       Config
	Notifier     Notifier
	Sink         ActivitySink
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &AuthControllerRoutes{
			Login:          "/login",
			Logout:         "/logout",
			Register:       "/register",
			Verify:         "/verify-otp",
			Resend:         "/resend-otp",
			Profile:        "/profile",
			Dashboard:      "/dashboard",
			AdminDashboard: "/admin/dashboard",
			AdminUsers:     "/admin/users",
		},
		Views: &AuthControllerViews{
			Login:          "login",
			Register:       "register",
			Verify:         "verify_otp",
			Profile:        "profile",
			Dashboard:      "dashboard",
			AdminDashboard: "admin_dashboard",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in auth controller...")
	}

	if c.Config == nil {
		panic("Missing Config in auth controller...")
	}

	return c
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = logger
		return c
	}
}

func WithControllerRepo(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

func WithControllerAuther(auther HTTPAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithControllerConfig(cfg Config) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Config = cfg
		return c
	}
}

func WithControllerNotifier(notifier Notifier) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Notifier = notifier
		return c
	}
}

func WithControllerSink(sink ActivitySink) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Sink = normalizeActivitySink(sink)
		return c
	}
}

func (a *AuthController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Identifier
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	errs := map[string]string{}

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		a.Logger.Debug("login payload: %s", print.MaybePrettyJSON(payload))
	}

	if err := a.Auther.Login(ctx, payload); err != nil {
		errs["authentication"] = genericLoginError
		return ctx.Render(a.Views.Login, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	redirect := a.Auther.GetRedirect(ctx, a.homePathFor(ctx, payload.Identifier))

	return ctx.Redirect(redirect, router.StatusSeeOther)
}

// homePathFor resolves the landing page from the account's role. Admins go
// to the admin dashboard, everyone else to theirs.
func (a *AuthController) homePathFor(ctx router.Context, identifier string) string {
	user, err := a.Repo.Users().GetByIdentifier(ctx.Context(), identifier)
	if err != nil {
		return RoleUser.HomePath()
	}
	return user.Role.HomePath()
}

func (a *AuthController) LogOut(ctx router.Context) error {
	a.Auther.Logout(ctx)
	return ctx.Redirect(a.Routes.Login, router.StatusSeeOther)
}

func (a *AuthController) RegistrationShow(ctx router.Context) error {
	return ctx.Render(a.Views.Register, router.ViewContext{
		"errors": map[string]string{},
		"record": RegisterUserMessage{},
	})
}

// RegistrationCreatePayload is the form payload
type RegistrationCreatePayload struct {
	FirstName       string `form:"first_name" json:"first_name"`
	MiddleName      string `form:"middle_name" json:"middle_name"`
	LastName        string `form:"last_name" json:"last_name"`
	Username        string `form:"username" json:"username"`
	Email           string `form:"email" json:"email"`
	MobileNumber    string `form:"mobile_number" json:"mobile_number"`
	Address         string `form:"address" json:"address"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate runs the cheap shape checks. Ordering-sensitive rules live in
// the register command so API callers get the same sequence.
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		errs := map[string]string{}
		errs["form"] = "Failed to parse form"
		a.Logger.Error("register user parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		errs := FormatValidationErrorToMap(err)
		a.Logger.Error("register user validate payload: %v", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Register, router.ViewContext{
			"record":     payload,
			"validation": errs,
		})
	}

	var res *RegisterUserResponse

	req := RegisterUserMessage{
		FirstName:       payload.FirstName,
		MiddleName:      payload.MiddleName,
		LastName:        payload.LastName,
		Username:        payload.Username,
		Email:           payload.Email,
		MobileNumber:    payload.MobileNumber,
		Address:         payload.Address,
		Password:        payload.Password,
		ConfirmPassword: payload.ConfirmPassword,
		OnResponse: func(resp *RegisterUserResponse) {
			res = resp
		},
	}

	registerUser := RegisterUserHandler{
		repo:     a.Repo,
		notifier: a.Notifier,
		sink:     a.Sink,
		logger:   a.Logger,
	}
	if err := registerUser.Execute(a.requestContext(ctx), req); err != nil {
		a.Logger.Error("register user error: %v", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  userFacingMessage(err),
			"system_message": "Registration failed",
		}).Render(a.Views.Register, router.ViewContext{
			"record": payload,
			"errors": map[string]string{"registration": userFacingMessage(err)},
		})
	}

	message := "Account created. We sent a verification code to your email."
	if res != nil && !res.Delivered {
		message = "Account created, but the verification email failed to send. Use the resend option."
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": message,
	}).Redirect(fmt.Sprintf("%s/%s", a.Routes.Verify, res.UserID), fiber.StatusSeeOther)
}

func (a *AuthController) VerifyShow(ctx router.Context) error {
	accountID := ctx.Param("account_id", "")
	return ctx.Render(a.Views.Verify, router.ViewContext{
		"errors":     map[string]string{},
		"account_id": accountID,
	})
}

// VerifyPayload carries the submitted passcode.
type VerifyPayload struct {
	Code string `form:"code" json:"code"`
}

// Validate will validate the payload
func (r VerifyPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Code,
			validation.Required,
			validation.Length(PasscodeLength, PasscodeLength),
			is.Digit,
		),
	)
}

func (a *AuthController) VerifyPost(ctx router.Context) error {
	accountID := ctx.Param("account_id", "")
	payload := new(VerifyPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("verify parse payload: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Verify, router.ViewContext{
			"errors":     map[string]string{"code": genericVerifyError},
			"account_id": accountID,
		})
	}

	var res *VerifyPasscodeResponse

	req := VerifyPasscodeMessage{
		UserID: accountID,
		Code:   payload.Code,
		OnResponse: func(resp *VerifyPasscodeResponse) {
			res = resp
		},
	}

	verify := VerifyPasscodeHandler{
		repo:   a.Repo,
		sink:   a.Sink,
		logger: a.Logger,
	}
	if err := verify.Execute(a.requestContext(ctx), req); err != nil {
		a.Logger.Error("verify passcode error: %v", err)
		return ctx.Render(a.Views.Verify, router.ViewContext{
			"errors":     map[string]string{"code": genericVerifyError},
			"account_id": accountID,
		})
	}

	if res == nil || !res.Activated {
		return ctx.Render(a.Views.Verify, router.ViewContext{
			"errors":     map[string]string{"code": genericVerifyError},
			"account_id": accountID,
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Account verified. You can now sign in.",
	}).Redirect(a.Routes.Login, fiber.StatusSeeOther)
}

func (a *AuthController) ResendPost(ctx router.Context) error {
	accountID := ctx.Param("account_id", "")

	req := ResendPasscodeMessage{
		UserID: accountID,
	}

	resend := ResendPasscodeHandler{
		repo:     a.Repo,
		notifier: a.Notifier,
		logger:   a.Logger,
	}
	if err := resend.Execute(a.requestContext(ctx), req); err != nil {
		a.Logger.Error("resend passcode error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"system_message": "Could not send a new code. Try again in a moment.",
		}).Redirect(fmt.Sprintf("%s/%s", a.Routes.Verify, accountID), fiber.StatusSeeOther)
	}

	// Same neutral message whether a code was sent or the account was not
	// eligible for one.
	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "If the account needs verification, a new code is on its way.",
	}).Redirect(fmt.Sprintf("%s/%s", a.Routes.Verify, accountID), fiber.StatusSeeOther)
}

func (a *AuthController) Dashboard(ctx router.Context) error {
	session, err := GetRouterSession(ctx, a.Config.GetContextKey())
	if err != nil {
		return a.Auther.MakeClientRouteAuthErrorHandler(false)(ctx, err)
	}

	return ctx.Render(a.Views.Dashboard, router.ViewContext{
		"session": session,
	})
}

func (a *AuthController) ProfileShow(ctx router.Context) error {
	user, err := a.currentUser(ctx)
	if err != nil {
		return a.Auther.MakeClientRouteAuthErrorHandler(false)(ctx, err)
	}

	return ctx.Render(a.Views.Profile, router.ViewContext{
		"record": user,
		"errors": map[string]string{},
	})
}

// ProfileUpdatePayload carries the editable, non-security fields. Email,
// username, password, role, and status are not updatable here.
type ProfileUpdatePayload struct {
	FirstName    string `form:"first_name" json:"first_name"`
	MiddleName   string `form:"middle_name" json:"middle_name"`
	LastName     string `form:"last_name" json:"last_name"`
	Address      string `form:"address" json:"address"`
	MobileNumber string `form:"mobile_number" json:"mobile_number"`
	AvatarURL    string `form:"avatar_url" json:"avatar_url"`
	Birthdate    string `form:"birthdate" json:"birthdate"`
}

// Validate will validate the payload
func (r ProfileUpdatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.AvatarURL, is.URL),
		validation.Field(&r.Birthdate, validation.Date("2006-01-02")),
	)
}

func (a *AuthController) ProfilePost(ctx router.Context) error {
	user, err := a.currentUser(ctx)
	if err != nil {
		return a.Auther.MakeClientRouteAuthErrorHandler(false)(ctx, err)
	}

	payload := new(ProfileUpdatePayload)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("profile parse payload: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Profile, router.ViewContext{
			"record":     user,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if payload.MobileNumber != "" {
		if err := validateMobileNumber(payload.MobileNumber); err != nil {
			return ctx.Render(a.Views.Profile, router.ViewContext{
				"record":     user,
				"validation": map[string]string{"mobile_number": userFacingMessage(err)},
			})
		}
	}

	fields := ProfileUpdate{
		FirstName:    payload.FirstName,
		MiddleName:   payload.MiddleName,
		LastName:     payload.LastName,
		Address:      payload.Address,
		MobileNumber: payload.MobileNumber,
		AvatarURL:    payload.AvatarURL,
	}

	if payload.Birthdate != "" {
		if at, err := time.Parse("2006-01-02", payload.Birthdate); err == nil {
			fields.Birthdate = &at
		}
	}

	updated, err := a.Repo.Users().UpdateProfile(ctx.Context(), user.ID, fields)
	if err != nil {
		a.Logger.Error("profile update error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"system_message": "Could not save your profile",
		}).Render(a.Views.Profile, router.ViewContext{
			"record": user,
			"errors": map[string]string{"profile": userFacingMessage(err)},
		})
	}

	a.recordProfileUpdate(ctx, updated)

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Profile updated",
	}).Redirect(a.Routes.Profile, fiber.StatusSeeOther)
}

func (a *AuthController) AdminDashboard(ctx router.Context) error {
	session, err := GetRouterSession(ctx, a.Config.GetContextKey())
	if err != nil {
		return a.Auther.MakeClientRouteAuthErrorHandler(false)(ctx, err)
	}

	users, err := a.Repo.Users().ListUsers(ctx.Context(), 100, 0)
	if err != nil {
		a.Logger.Error("admin dashboard list users: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Render(a.Views.AdminDashboard, router.ViewContext{
		"session": session,
		"users":   users,
	})
}

func (a *AuthController) AdminToggleStatus(ctx router.Context) error {
	session, err := GetRouterSession(ctx, a.Config.GetContextKey())
	if err != nil {
		return a.Auther.MakeClientRouteAuthErrorHandler(false)(ctx, err)
	}

	accountID := ctx.Param("account_id", "")

	user, err := a.Repo.Users().GetByIdentifier(ctx.Context(), accountID)
	if err != nil {
		a.Logger.Error("toggle status lookup: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"system_message": "Account not found",
		}).Redirect(a.Routes.AdminDashboard, fiber.StatusSeeOther)
	}

	actor := ActorRef{ID: session.GetUserID(), Type: "admin"}
	meta := RequestMeta{IPAddress: ctx.IP(), UserAgent: ctx.GetString("User-Agent", "")}

	if _, err := a.Repo.Users().ToggleStatus(WithRequestMeta(ctx.Context(), meta), actor, user); err != nil {
		a.Logger.Error("toggle status error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"system_message": "Could not change the account status",
		}).Redirect(a.Routes.AdminDashboard, fiber.StatusSeeOther)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": fmt.Sprintf("Status updated for %s", user.Username),
	}).Redirect(a.Routes.AdminDashboard, fiber.StatusSeeOther)
}

func (a *AuthController) currentUser(ctx router.Context) (*User, error) {
	session, err := GetRouterSession(ctx, a.Config.GetContextKey())
	if err != nil {
		return nil, err
	}

	id, err := session.GetUserUUID()
	if err != nil {
		return nil, err
	}

	return a.Repo.Users().GetByIdentifier(ctx.Context(), id.String())
}

func (a *AuthController) recordProfileUpdate(ctx router.Context, user *User) {
	sink := normalizeActivitySink(a.Sink)
	event := ActivityEvent{
		Action:      ActivityProfileUpdated,
		Actor:       ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:      user.ID.String(),
		Description: "Profile updated",
		IPAddress:   ctx.IP(),
		UserAgent:   ctx.GetString("User-Agent", ""),
		OccurredAt:  time.Now(),
	}

	if err := sink.Record(ctx.Context(), event); err != nil {
		a.Logger.Warn("profile update activity sink error: %v", err)
	}
}

// requestContext attaches client metadata so command handlers can stamp it
// onto audit entries.
func (a *AuthController) requestContext(ctx router.Context) context.Context {
	return WithRequestMeta(ctx.Context(), RequestMeta{
		IPAddress: ctx.IP(),
		UserAgent: ctx.GetString("User-Agent", ""),
	})
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field-to-message map for templates.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["form"] = err.Error()
	return out
}

// userFacingMessage prefers the rich error message when available.
func userFacingMessage(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Message
	}
	return err.Error()
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
