package auth

import (
	"context"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// DefaultPhoneRegion is the region used to parse mobile numbers submitted
// without a country prefix.
var DefaultPhoneRegion = "US"

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// MinPasswordLength is the minimum accepted secret length.
const MinPasswordLength = 6

type RegisterUserMessage struct {
	FirstName       string `json:"first_name"`
	MiddleName      string `json:"middle_name"`
	LastName        string `json:"last_name"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	MobileNumber    string `json:"mobile_number"`
	Address         string `json:"address"`
	Role            string `json:"role"`
	UseHashid       bool
	OnResponse      func(*RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// RegisterUserResponse reports the committed registration. Delivered is
// false when the account and passcode were stored but the notifier failed;
// the resend flow covers that case.
type RegisterUserResponse struct {
	UserID      uuid.UUID
	Destination string
	Delivered   bool
}

type RegisterUserHandler struct {
	repo     RepositoryManager
	notifier Notifier
	sink     ActivitySink
	logger   Logger
}

// NewRegisterUserHandler wires the registration command. Notifier, sink,
// and logger are optional.
func NewRegisterUserHandler(repo RepositoryManager, notifier Notifier, sink ActivitySink, logger Logger) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:     repo,
		notifier: notifier,
		sink:     normalizeActivitySink(sink),
		logger:   logger,
	}
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	logger := h.logger
	if logger == nil {
		logger = defLogger{}
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := h.validateRegistration(ctx, event); err != nil {
		return err
	}

	user := &User{}
	var passcode *Passcode

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Email = event.Email
		user.FirstName = event.FirstName
		user.MiddleName = event.MiddleName
		user.LastName = event.LastName
		user.Username = event.Username
		user.MobileNumber = event.MobileNumber
		user.Address = event.Address
		user.Status = UserStatusPending
		if role, ok := ParseRole(event.Role); ok {
			user.Role = role
		}
		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return err
		}

		if passcode, err = h.repo.Passcodes().IssueTx(ctx, tx, user.ID, user.Email); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	h.recordRegistration(ctx, user)

	response := &RegisterUserResponse{
		UserID:      user.ID,
		Destination: user.Email,
		Delivered:   true,
	}

	// The account and code are committed at this point; a delivery failure
	// leaves the user on the resend path instead of rolling anything back.
	if h.notifier != nil {
		if err := h.notifier.Send(ctx, user.Email, passcode.Code, user.DisplayName()); err != nil {
			logger.Error("registration passcode delivery failed, user=%s error=%v", user.ID, err)
			response.Delivered = false
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(response)
	}

	return nil
}

func (h *RegisterUserHandler) recordRegistration(ctx context.Context, user *User) {
	sink := normalizeActivitySink(h.sink)
	event := ActivityEvent{
		Action:      ActivityRegistration,
		Actor:       ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:      user.ID.String(),
		Description: "New account registered: " + user.Username,
		OccurredAt:  time.Now(),
	}
	applyRequestMeta(ctx, &event)

	if err := sink.Record(ctx, event); err != nil {
		logger := h.logger
		if logger == nil {
			logger = defLogger{}
		}
		logger.Warn("registration activity sink error: %v", err)
	}
}

// validateRegistration applies the ordered checks: username format, email
// format, username taken, email taken, confirm match, minimum length. The
// first failing check wins and nothing is written before all of them pass.
// The registration transaction re-checks uniqueness so a concurrent
// registration still cannot slip through.
func (h *RegisterUserHandler) validateRegistration(ctx context.Context, event RegisterUserMessage) error {
	if err := validation.Validate(event.Username,
		validation.Required,
		validation.Length(3, 20),
		validation.Match(usernamePattern),
	); err != nil {
		return goerrors.New(
			"Username must be 3-20 characters and contain only letters, numbers, and underscores",
			goerrors.CategoryValidation,
		).WithTextCode("INVALID_USERNAME").WithCode(goerrors.CodeBadRequest)
	}

	if err := validation.Validate(event.Email, validation.Required, is.Email); err != nil {
		return goerrors.New("Please enter a valid email address", goerrors.CategoryValidation).
			WithTextCode("INVALID_EMAIL").
			WithCode(goerrors.CodeBadRequest)
	}

	if taken, err := h.repo.Users().UsernameExists(ctx, event.Username); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check username availability")
	} else if taken {
		return ErrUsernameTaken
	}

	if taken, err := h.repo.Users().EmailExists(ctx, event.Email); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email availability")
	} else if taken {
		return ErrEmailTaken
	}

	if event.Password != event.ConfirmPassword {
		return goerrors.New("Passwords do not match", goerrors.CategoryValidation).
			WithTextCode("PASSWORD_MISMATCH").
			WithCode(goerrors.CodeBadRequest)
	}

	if len(event.Password) < MinPasswordLength {
		return goerrors.New("Password must be at least 6 characters long", goerrors.CategoryValidation).
			WithTextCode("PASSWORD_TOO_SHORT").
			WithCode(goerrors.CodeBadRequest)
	}

	if event.MobileNumber != "" {
		if err := validateMobileNumber(event.MobileNumber); err != nil {
			return err
		}
	}

	return nil
}

func validateMobileNumber(number string) error {
	parsed, err := phonenumbers.Parse(number, DefaultPhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return goerrors.New("Please enter a valid mobile number", goerrors.CategoryValidation).
			WithTextCode("INVALID_MOBILE_NUMBER").
			WithCode(goerrors.CodeBadRequest)
	}
	return nil
}
