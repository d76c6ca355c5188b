package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActivityAction enumerates supported audit actions.
type ActivityAction string

const (
	ActivityLoginSuccess   ActivityAction = "login_success"
	ActivityLoginFailed    ActivityAction = "login_failed"
	ActivityLogout         ActivityAction = "logout"
	ActivityRegistration   ActivityAction = "registration"
	ActivityPasscodeVerify ActivityAction = "otp_verified"
	ActivityProfileUpdated ActivityAction = "profile_updated"
	ActivityStatusChanged  ActivityAction = "status_changed"
)

// ActorRef identifies who/what triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	Action      ActivityAction
	Actor       ActorRef
	UserID      string
	Description string
	FromStatus  UserStatus
	ToStatus    UserStatus
	IPAddress   string
	UserAgent   string
	Metadata    map[string]any
	OccurredAt  time.Time
}

// ActivitySink consumes activity events for auditing purposes. Sinks are
// best-effort: errors are logged by the emitter and never fail the
// triggering operation.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// ActivityLog is a persisted audit entry. UserID is nullable so failed
// logins against unknown identifiers can still be recorded.
type ActivityLog struct {
	bun.BaseModel `bun:"table:activity_logs,alias:act"`
	ID            int64          `bun:"id,pk,autoincrement" json:"id,omitempty"`
	UserID        *uuid.UUID     `bun:"user_id,nullzero,type:uuid" json:"user_id,omitempty"`
	Action        ActivityAction `bun:"action,notnull" json:"action,omitempty"`
	Description   string         `bun:"description" json:"description,omitempty"`
	IPAddress     string         `bun:"ip_address" json:"ip_address,omitempty"`
	UserAgent     string         `bun:"user_agent" json:"user_agent,omitempty"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`
}

// RequestMeta carries the client network attributes the HTTP layer knows
// about into commands and the authenticator, so audit entries can record
// them without the domain layer depending on the router.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

type requestMetaKey struct{}

// WithRequestMeta attaches client metadata to the context.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext recovers client metadata, zero value when absent.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}

// applyRequestMeta fills the event's network fields from the context unless
// the emitter already set them.
func applyRequestMeta(ctx context.Context, event *ActivityEvent) {
	meta := RequestMetaFromContext(ctx)
	if event.IPAddress == "" {
		event.IPAddress = meta.IPAddress
	}
	if event.UserAgent == "" {
		event.UserAgent = meta.UserAgent
	}
}
