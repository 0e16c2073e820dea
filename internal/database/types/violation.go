package types

import (
	"time"

	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/types/enum"
	"github.com/uptrace/bun"
)

// MessageContentLimit bounds the message snapshot stored on a violation.
const MessageContentLimit = 500

// Violation is one enforcement event. Rows are append-only audit records:
// the only permitted mutations are the feedback fields set by a moderator
// review and the warn1/warn2 -> resolved flip when the third strike lands.
type Violation struct {
	bun.BaseModel `bun:"table:violations"`

	ID        int64  `bun:"id,pk,autoincrement"`
	ServerID  string `bun:"server_id,notnull"`
	UserID    string `bun:"user_id,notnull"`
	ChannelID string `bun:"channel_id,notnull"`

	ViolationType   enum.ViolationType `bun:"violation_type,notnull"`
	ConfidenceScore float64            `bun:"confidence_score,notnull"`
	ActionTaken     enum.Action        `bun:"action_taken,notnull"`

	// Snapshots for the dashboard and audit trail.
	MessageContent string `bun:"message_content,type:text"`
	ChannelName    string `bun:"channel_name"`

	// Moderator review. Nil means not yet reviewed.
	FalsePositive    *bool `bun:"false_positive"`
	Appealed         bool  `bun:"appealed,notnull,default:false"`
	AppealSuccessful *bool `bun:"appeal_successful"`

	// ID of the moderation alert message, used to correlate reaction
	// feedback back to this row.
	LogMessageID string `bun:"log_message_id,nullzero"`

	CreatedAt time.Time `bun:"created_at,notnull"`
}

// TruncateContent trims the stored message snapshot to its limit.
func (v *Violation) TruncateContent() {
	if len(v.MessageContent) > MessageContentLimit {
		v.MessageContent = v.MessageContent[:MessageContentLimit]
	}
}
