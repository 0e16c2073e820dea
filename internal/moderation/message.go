package moderation

import (
	"context"
	"time"

	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/types"
)

// Message is the platform-neutral view of an inbound chat message.
type Message struct {
	ID         string
	ServerID   string
	ServerName string
	ChannelID  string
	UserID     string
	Username   string
	Content    string
	Timestamp  time.Time
}

// ViolationStore is the violation persistence surface the engine needs.
type ViolationStore interface {
	Create(ctx context.Context, violation *types.Violation) error
	CountActiveWarnings(ctx context.Context, serverID, userID string, since time.Time) (int, error)
	ResolveActiveWarnings(ctx context.Context, serverID, userID string, since time.Time) (int, error)
	SetLogMessageID(ctx context.Context, violationID int64, messageID string) error
	GetByID(ctx context.Context, violationID int64) (*types.Violation, error)
	GetByLogMessageID(ctx context.Context, messageID string) (*types.Violation, error)
	SetFeedback(ctx context.Context, violationID int64, falsePositive bool) error
}

// ServerStore is the server aggregate surface used by feedback handling.
type ServerStore interface {
	IncrementFeedbackCount(ctx context.Context, serverID string, falsePositive bool) error
}

// MemberStore keeps per-user aggregates current as violations land.
type MemberStore interface {
	UpsertMember(ctx context.Context, memberID, username string) error
	IncrementViolationCount(ctx context.Context, memberID string) error
}

// AnalyticsStore tallies per-day moderation metrics.
type AnalyticsStore interface {
	IncrementDaily(ctx context.Context, serverID string, at time.Time, messages, violations, actions int) error
	IncrementFalsePositives(ctx context.Context, serverID string, at time.Time) error
}
