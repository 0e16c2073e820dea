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

// AnalyticsModel handles database operations for daily per-server metrics.
type AnalyticsModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewAnalytics creates a new analytics model instance.
func NewAnalytics(db *bun.DB, logger *zap.Logger) *AnalyticsModel {
	return &AnalyticsModel{
		db:     db,
		logger: logger.Named("db_analytics"),
	}
}

// IncrementDaily adds the given deltas to today's analytics bucket for the
// server, creating the row on first use.
func (m *AnalyticsModel) IncrementDaily(
	ctx context.Context, serverID string, at time.Time, messages, violations, actions int,
) error {
	row := &types.ServerAnalytics{
		ServerID:           serverID,
		Date:               types.Day(at),
		MessagesProcessed:  messages,
		ViolationsDetected: violations,
		ActionsTaken:       actions,
	}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(row).
			On("CONFLICT (server_id, date) DO UPDATE").
			Set("messages_processed = server_analytics.messages_processed + EXCLUDED.messages_processed").
			Set("violations_detected = server_analytics.violations_detected + EXCLUDED.violations_detected").
			Set("actions_taken = server_analytics.actions_taken + EXCLUDED.actions_taken").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to increment daily analytics: %w", err)
		}

		return nil
	})
}

// IncrementFalsePositives tallies one reviewed false positive into today's
// analytics bucket.
func (m *AnalyticsModel) IncrementFalsePositives(ctx context.Context, serverID string, at time.Time) error {
	row := &types.ServerAnalytics{
		ServerID:       serverID,
		Date:           types.Day(at),
		FalsePositives: 1,
	}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(row).
			On("CONFLICT (server_id, date) DO UPDATE").
			Set("false_positives = server_analytics.false_positives + EXCLUDED.false_positives").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to increment false positives: %w", err)
		}

		return nil
	})
}
