package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type VerifyPasscodeMessage struct {
	UserID     string `json:"user_id"`
	Code       string `json:"code"`
	OnResponse func(*VerifyPasscodeResponse)
}

func (e VerifyPasscodeMessage) Type() string { return "passcode.verify" }

// VerifyPasscodeResponse reports the attempt. Activated is only true when
// this attempt consumed the code and flipped the account to active.
type VerifyPasscodeResponse struct {
	Outcome   VerifyOutcome
	Activated bool
}

type VerifyPasscodeHandler struct {
	repo   RepositoryManager
	sink   ActivitySink
	logger Logger
}

// NewVerifyPasscodeHandler wires the verification command.
func NewVerifyPasscodeHandler(repo RepositoryManager, sink ActivitySink, logger Logger) *VerifyPasscodeHandler {
	return &VerifyPasscodeHandler{
		repo:   repo,
		sink:   normalizeActivitySink(sink),
		logger: logger,
	}
}

func (h *VerifyPasscodeHandler) Execute(ctx context.Context, event VerifyPasscodeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during passcode verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyPasscodeHandler) execute(ctx context.Context, event VerifyPasscodeMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	response := &VerifyPasscodeResponse{Outcome: PasscodeInvalid}

	userID, err := uuid.Parse(event.UserID)
	if err != nil {
		// Unknown account ids degrade to the same generic failure a wrong
		// code produces.
		if event.OnResponse != nil {
			event.OnResponse(response)
		}
		return nil
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		outcome, err := h.repo.Passcodes().VerifyTx(ctx, tx, userID, event.Code)
		if err != nil {
			return err
		}

		response.Outcome = outcome
		if !outcome.Verified() {
			return nil
		}

		// Consume and activate commit together or not at all.
		now := time.Now()
		if _, err := h.repo.Users().UpdateStatusTx(ctx, tx, userID, UserStatusActive, WithVerifiedAt(&now)); err != nil {
			return err
		}

		response.Activated = true
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "passcode verification transaction failed")
	}

	if response.Activated {
		h.recordVerification(ctx, userID)
	}

	if event.OnResponse != nil {
		event.OnResponse(response)
	}

	return nil
}

func (h *VerifyPasscodeHandler) recordVerification(ctx context.Context, userID uuid.UUID) {
	sink := normalizeActivitySink(h.sink)
	event := ActivityEvent{
		Action:      ActivityPasscodeVerify,
		Actor:       ActorRef{ID: userID.String(), Type: "user"},
		UserID:      userID.String(),
		Description: "Account verified and activated",
		FromStatus:  UserStatusPending,
		ToStatus:    UserStatusActive,
		OccurredAt:  time.Now(),
	}
	applyRequestMeta(ctx, &event)

	if err := sink.Record(ctx, event); err != nil {
		logger := h.logger
		if logger == nil {
			logger = defLogger{}
		}
		logger.Warn("verification activity sink error: %v", err)
	}
}
