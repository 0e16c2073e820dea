package models

import (
	"context"
	"fmt"
	"time"

	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/dbretry"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// MemberModel handles database operations for chat users.
type MemberModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewMember creates a new member model instance.
func NewMember(db *bun.DB, logger *zap.Logger) *MemberModel {
	return &MemberModel{
		db:     db,
		logger: logger.Named("db_member"),
	}
}

// UpsertMember creates the member row or refreshes its username.
func (m *MemberModel) UpsertMember(ctx context.Context, memberID, username string) error {
	now := time.Now()
	member := &types.Member{
		ID:              memberID,
		Username:        username,
		CreatedAt:       now,
		UpdatedAt:       now,
		ReputationScore: 1.0,
	}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(member).
			On("CONFLICT (id) DO UPDATE").
			Set("username = EXCLUDED.username").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert member: %w", err)
		}

		return nil
	})
}

// IncrementViolationCount tallies one violation against the member's
// aggregate behavioral stats.
func (m *MemberModel) IncrementViolationCount(ctx context.Context, memberID string) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewUpdate().
			Model((*types.Member)(nil)).
			Set("total_violations = total_violations + 1").
			Where("id = ?", memberID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to increment violation count: %w", err)
		}

		return nil
	})
}
