package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActivityLogs is the append-mostly audit store.
type ActivityLogs interface {
	Record(ctx context.Context, entry *ActivityLog) error
	RecordTx(ctx context.Context, tx bun.IDB, entry *ActivityLog) error
	ListRecent(ctx context.Context, limit int) ([]*ActivityLog, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*ActivityLog, error)
}

type activityLogs struct {
	db     *bun.DB
	logger Logger
}

var _ ActivityLogs = (*activityLogs)(nil)

type ActivityLogsOption func(*activityLogs)

func WithActivityLogsLogger(logger Logger) ActivityLogsOption {
	return func(a *activityLogs) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewActivityLogsRepository(db *bun.DB, opts ...ActivityLogsOption) ActivityLogs {
	repo := &activityLogs{
		db:     db,
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo
}

func (a *activityLogs) Record(ctx context.Context, entry *ActivityLog) error {
	return a.RecordTx(ctx, a.db, entry)
}

// RecordTx inserts an audit entry. Entries naming an actor that does not
// resolve to a stored account are dropped rather than failing the caller.
func (a *activityLogs) RecordTx(ctx context.Context, tx bun.IDB, entry *ActivityLog) error {
	if entry == nil {
		return nil
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	if entry.UserID != nil {
		exists, err := tx.NewSelect().
			Model((*User)(nil)).
			Where("?TableAlias.id = ?", *entry.UserID).
			Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			a.logger.Debug("activity log dropped, unknown user %s action=%s", entry.UserID, entry.Action)
			return nil
		}
	}

	_, err := tx.NewInsert().Model(entry).Exec(ctx)
	return err
}

func (a *activityLogs) ListRecent(ctx context.Context, limit int) ([]*ActivityLog, error) {
	return a.list(ctx, limit, nil)
}

func (a *activityLogs) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*ActivityLog, error) {
	return a.list(ctx, limit, &userID)
}

func (a *activityLogs) list(ctx context.Context, limit int, userID *uuid.UUID) ([]*ActivityLog, error) {
	entries := []*ActivityLog{}
	q := a.db.NewSelect().
		Model(&entries).
		Order("created_at DESC")

	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	return entries, nil
}

// NewActivityRecorder adapts the audit store into an ActivitySink. Errors
// are swallowed after logging so auditing never fails the operation that
// produced the event.
func NewActivityRecorder(store ActivityLogs, logger Logger) ActivitySink {
	if logger == nil {
		logger = defLogger{}
	}

	return ActivitySinkFunc(func(ctx context.Context, event ActivityEvent) error {
		entry := &ActivityLog{
			Action:      event.Action,
			Description: event.Description,
			IPAddress:   event.IPAddress,
			UserAgent:   event.UserAgent,
			CreatedAt:   event.OccurredAt,
		}

		if event.UserID != "" {
			if uid, err := uuid.Parse(event.UserID); err == nil {
				entry.UserID = &uid
			}
		}

		if entry.Description == "" {
			entry.Description = describeEvent(event)
		}

		if err := store.Record(ctx, entry); err != nil {
			logger.Warn("activity recorder error: %v", err)
		}
		return nil
	})
}

func describeEvent(event ActivityEvent) string {
	switch event.Action {
	case ActivityStatusChanged:
		return "Status changed from " + string(event.FromStatus) + " to " + string(event.ToStatus)
	case ActivityLoginFailed:
		if identifier, ok := event.Metadata["identifier"].(string); ok {
			return "Failed login attempt for: " + identifier
		}
		return "Failed login attempt"
	default:
		return string(event.Action)
	}
}
