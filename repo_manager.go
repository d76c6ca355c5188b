package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Passcodes() Passcodes
	ActivityLogs() ActivityLogs
}

type mngr struct {
	db           *bun.DB
	users        Users
	passcodes    Passcodes
	activityLogs ActivityLogs
}

type ManagerOption func(*mngr)

// WithManagerUsersOptions forwards options to the users repository.
func WithManagerUsersOptions(opts ...UsersOption) ManagerOption {
	return func(m *mngr) {
		m.users = NewUsersRepository(m.db, opts...)
	}
}

// WithManagerPasscodesOptions forwards options to the passcode ledger.
func WithManagerPasscodesOptions(opts ...PasscodesOption) ManagerOption {
	return func(m *mngr) {
		m.passcodes = NewPasscodesRepository(m.db, opts...)
	}
}

func NewRepositoryManager(db *bun.DB, opts ...ManagerOption) RepositoryManager {
	m := &mngr{
		db:           db,
		users:        NewUsersRepository(db),
		passcodes:    NewPasscodesRepository(db),
		activityLogs: NewActivityLogsRepository(db),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.passcodes == nil {
		return errors.New("repository passcodes should be initialized")
	}

	if m.activityLogs == nil {
		return errors.New("repository activityLogs should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Passcodes() Passcodes {
	return m.passcodes
}

func (m mngr) ActivityLogs() ActivityLogs {
	return m.activityLogs
}

func isNoRows(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}
