package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type ResendPasscodeMessage struct {
	UserID     string `json:"user_id"`
	OnResponse func(*ResendPasscodeResponse)
}

func (e ResendPasscodeMessage) Type() string { return "passcode.resend" }

// ResendPasscodeResponse reports whether a new code went out. Sent stays
// false for unknown accounts and accounts that are not pending; callers
// render the same neutral message either way.
type ResendPasscodeResponse struct {
	Sent        bool
	Destination string
}

type ResendPasscodeHandler struct {
	repo     RepositoryManager
	notifier Notifier
	logger   Logger
}

// NewResendPasscodeHandler wires the resend command.
func NewResendPasscodeHandler(repo RepositoryManager, notifier Notifier, logger Logger) *ResendPasscodeHandler {
	return &ResendPasscodeHandler{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
	}
}

func (h *ResendPasscodeHandler) Execute(ctx context.Context, event ResendPasscodeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during passcode resend",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResendPasscodeHandler) execute(ctx context.Context, event ResendPasscodeMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	response := &ResendPasscodeResponse{}

	user, err := h.repo.Users().GetByIdentifier(ctx, event.UserID)
	if err != nil {
		if isNoRows(err) {
			if event.OnResponse != nil {
				event.OnResponse(response)
			}
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for resend")
	}

	user.EnsureStatus()
	if user.Status != UserStatusPending {
		if event.OnResponse != nil {
			event.OnResponse(response)
		}
		return nil
	}

	var passcode *Passcode
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var txErr error
		passcode, txErr = h.repo.Passcodes().IssueTx(ctx, tx, user.ID, user.Email)
		return txErr
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "passcode resend transaction failed")
	}

	if h.notifier != nil {
		if err := h.notifier.Send(ctx, user.Email, passcode.Code, user.DisplayName()); err != nil {
			logger := h.logger
			if logger == nil {
				logger = defLogger{}
			}
			logger.Error("passcode resend delivery failed, user=%s error=%v", user.ID, err)
			return err
		}
	}

	response.Sent = true
	response.Destination = user.Email

	if event.OnResponse != nil {
		event.OnResponse(response)
	}

	return nil
}
