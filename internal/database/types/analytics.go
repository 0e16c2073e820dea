package types

import (
	"time"

	"github.com/uptrace/bun"
)

// ServerAnalytics holds one day of aggregated moderation metrics for a
// server. Rows are upserted by date; counters only ever increase.
type ServerAnalytics struct {
	bun.BaseModel `bun:"table:server_analytics"`

	ID       int64     `bun:"id,pk,autoincrement"`
	ServerID string    `bun:"server_id,notnull"`
	Date     time.Time `bun:"date,notnull"`

	MessagesProcessed  int `bun:"messages_processed,notnull"`
	ViolationsDetected int `bun:"violations_detected,notnull"`
	FalsePositives     int `bun:"false_positives,notnull"`
	ActionsTaken       int `bun:"actions_taken,notnull"`
}

// Day truncates a timestamp to the UTC date used as the analytics bucket.
func Day(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
