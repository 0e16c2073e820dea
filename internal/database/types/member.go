package types

import (
	"time"

	"github.com/uptrace/bun"
)

// Member is a chat user the system has seen at least once. Behavioral
// fields are aggregates only; no message history is retained here.
type Member struct {
	bun.BaseModel `bun:"table:members"`

	ID        string    `bun:"id,pk"`
	Username  string    `bun:"username,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`

	TotalViolations int     `bun:"total_violations,notnull"`
	TotalMessages   int64   `bun:"total_messages,notnull"`
	ReputationScore float64 `bun:"reputation_score,notnull,default:1.0"`
}
