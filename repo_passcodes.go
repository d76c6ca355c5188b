package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Passcodes is the verification code ledger. Issue and Verify are the only
// write paths and both are transactional, which is what keeps the
// one-outstanding-code and redeem-once invariants intact under concurrency.
type Passcodes interface {
	Issue(ctx context.Context, userID uuid.UUID, destination string) (*Passcode, error)
	IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, destination string) (*Passcode, error)

	Verify(ctx context.Context, userID uuid.UUID, code string) (VerifyOutcome, error)
	VerifyTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, code string) (VerifyOutcome, error)

	Outstanding(ctx context.Context, userID uuid.UUID) (*Passcode, error)
	Reap(ctx context.Context) (int64, error)
}

type passcodes struct {
	db  *bun.DB
	ttl time.Duration
	now func() time.Time
}

var _ Passcodes = (*passcodes)(nil)

type PasscodesOption func(*passcodes)

// WithPasscodesClock injects a custom clock (useful for tests).
func WithPasscodesClock(clock func() time.Time) PasscodesOption {
	return func(p *passcodes) {
		if clock != nil {
			p.now = clock
		}
	}
}

// WithPasscodesTTL overrides the default code lifetime.
func WithPasscodesTTL(ttl time.Duration) PasscodesOption {
	return func(p *passcodes) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

func NewPasscodesRepository(db *bun.DB, opts ...PasscodesOption) Passcodes {
	repo := &passcodes{
		db:  db,
		ttl: PasscodeTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo
}

func (r *passcodes) Issue(ctx context.Context, userID uuid.UUID, destination string) (*Passcode, error) {
	var record *Passcode
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var txErr error
		record, txErr = r.IssueTx(ctx, tx, userID, destination)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// IssueTx replaces any outstanding codes for the account and inserts a fresh
// one. Delete and insert ride the caller's transaction so a concurrent
// issuance can never leave two redeemable codes behind.
func (r *passcodes) IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, destination string) (*Passcode, error) {
	code, err := GeneratePasscode()
	if err != nil {
		return nil, err
	}

	now := r.now()
	record := &Passcode{
		UserID:    userID,
		Code:      code,
		Email:     destination,
		ExpiresAt: now.Add(r.ttl),
		CreatedAt: now,
	}

	if _, err := tx.NewDelete().
		Model((*Passcode)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear outstanding passcodes")
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store passcode")
	}

	return record, nil
}

func (r *passcodes) Verify(ctx context.Context, userID uuid.UUID, code string) (VerifyOutcome, error) {
	outcome := PasscodeInvalid
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var txErr error
		outcome, txErr = r.VerifyTx(ctx, tx, userID, code)
		return txErr
	})
	return outcome, err
}

// VerifyTx checks the submitted code and consumes it in one step. The
// conditional update is what makes redemption atomic: if another attempt got
// there first, zero rows change and the outcome degrades to consumed.
func (r *passcodes) VerifyTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, code string) (VerifyOutcome, error) {
	record := &Passcode{}
	err := tx.NewSelect().
		Model(record).
		Where("user_id = ?", userID).
		Where("code = ?", code).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if isNoRows(err) {
			return PasscodeInvalid, nil
		}
		return PasscodeInvalid, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load passcode")
	}

	now := r.now()
	if record.Used {
		return PasscodeConsumed, nil
	}
	if record.ExpiredAt(now) {
		return PasscodeExpired, nil
	}

	res, err := tx.NewUpdate().
		Model((*Passcode)(nil)).
		Set("used = TRUE").
		Where("id = ?", record.ID).
		Where("used = FALSE").
		Where("expires_at > ?", now).
		Exec(ctx)
	if err != nil {
		return PasscodeInvalid, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume passcode")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return PasscodeConsumed, nil
	}

	return PasscodeVerified, nil
}

// Outstanding returns the newest unredeemed, unexpired code for the account.
func (r *passcodes) Outstanding(ctx context.Context, userID uuid.UUID) (*Passcode, error) {
	record := &Passcode{}
	err := r.db.NewSelect().
		Model(record).
		Where("user_id = ?", userID).
		Where("used = FALSE").
		Where("expires_at > ?", r.now()).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}

	return record, nil
}

// Reap deletes rows past their TTL. Expiry is already enforced at
// verification time, this just keeps the table from growing unbounded.
func (r *passcodes) Reap(ctx context.Context) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*Passcode)(nil)).
		Where("expires_at <= ?", r.now()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}
