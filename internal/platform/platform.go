package platform

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidID is returned when an identifier cannot be parsed for
	// the underlying platform.
	ErrInvalidID = errors.New("invalid platform identifier")

	// ErrDirectMessageBlocked is returned when a user cannot receive
	// direct messages.
	ErrDirectMessageBlocked = errors.New("direct messages blocked")
)

// Embed colors for notices.
const (
	ColorInfo    = 0x3498DB
	ColorWarning = 0xF1C40F
	ColorDanger  = 0xE67E22
	ColorError   = 0xE74C3C
	ColorSuccess = 0x2ECC71
)

// NoticeField is a single labeled value inside a notice.
type NoticeField struct {
	Name   string
	Value  string
	Inline bool
}

// Notice is a platform-neutral rich message. The adapter renders it
// however the platform displays structured content.
type Notice struct {
	Title       string
	Description string
	Color       int
	Fields      []NoticeField
	Footer      string
}

// Adapter is the surface the moderation engine needs from the chat
// platform. Implementations must be safe for concurrent use.
type Adapter interface {
	// DeleteMessage removes a message from a channel.
	DeleteMessage(ctx context.Context, channelID, messageID string) error

	// TimeoutUser mutes a server member for the given duration.
	TimeoutUser(ctx context.Context, serverID, userID string, duration time.Duration) error

	// BanUser permanently removes a member from the server.
	BanUser(ctx context.Context, serverID, userID, reason string) error

	// KickUser removes a member from the server.
	KickUser(ctx context.Context, serverID, userID string) error

	// SendDirectMessage delivers a notice to a user's DMs.
	SendDirectMessage(ctx context.Context, userID string, notice Notice) error

	// SendChannelMessage posts a notice to a channel and returns the
	// created message's ID.
	SendChannelMessage(ctx context.Context, channelID string, notice Notice) (string, error)

	// AddReaction puts an emoji on a message.
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error

	// HasModerationAuthority reports whether the user may review
	// moderation decisions on the server.
	HasModerationAuthority(ctx context.Context, serverID, userID string) (bool, error)

	// GetChannelName resolves a channel's display name, returning the
	// ID itself when the lookup fails.
	GetChannelName(ctx context.Context, channelID string) string
}
