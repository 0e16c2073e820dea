package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/dbretry"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/types"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/types/enum"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ErrViolationNotFound is returned when a violation reference does not
// resolve to a stored row.
var ErrViolationNotFound = errors.New("violation not found")

// ViolationModel handles database operations for the violation audit trail.
type ViolationModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewViolation creates a new violation model instance.
func NewViolation(db *bun.DB, logger *zap.Logger) *ViolationModel {
	return &ViolationModel{
		db:     db,
		logger: logger.Named("db_violation"),
	}
}

// Create stores a new violation row and fills in its generated ID.
func (m *ViolationModel) Create(ctx context.Context, violation *types.Violation) error {
	if violation.CreatedAt.IsZero() {
		violation.CreatedAt = time.Now()
	}

	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(violation).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create violation: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Recorded violation",
		zap.Int64("id", violation.ID),
		zap.String("serverID", violation.ServerID),
		zap.String("userID", violation.UserID),
		zap.String("type", string(violation.ViolationType)),
		zap.String("action", string(violation.ActionTaken)))

	return nil
}

// CountActiveWarnings returns how many warn1/warn2 rows the user has
// accumulated on the server since the given time. Resolved and
// warn3_reset rows never count.
func (m *ViolationModel) CountActiveWarnings(
	ctx context.Context, serverID, userID string, since time.Time,
) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		count, err := m.db.NewSelect().
			Model((*types.Violation)(nil)).
			Where("server_id = ?", serverID).
			Where("user_id = ?", userID).
			Where("created_at >= ?", since).
			Where("action_taken IN (?)", bun.In([]enum.Action{enum.ActionWarn1, enum.ActionWarn2})).
			Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count active warnings: %w", err)
		}

		return count, nil
	})
}

// ResolveActiveWarnings flips the user's warn1/warn2 rows on the server to
// resolved, returning how many rows changed. Called when the third strike
// lands so the warning count starts over.
func (m *ViolationModel) ResolveActiveWarnings(
	ctx context.Context, serverID, userID string, since time.Time,
) (int, error) {
	affected, err := dbretry.Operation(ctx, func(ctx context.Context) (int64, error) {
		res, err := m.db.NewUpdate().
			Model((*types.Violation)(nil)).
			Set("action_taken = ?", enum.ActionResolved).
			Where("server_id = ?", serverID).
			Where("user_id = ?", userID).
			Where("created_at >= ?", since).
			Where("action_taken IN (?)", bun.In([]enum.Action{enum.ActionWarn1, enum.ActionWarn2})).
			Exec(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve active warnings: %w", err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read affected rows: %w", err)
		}

		return rows, nil
	})
	if err != nil {
		return 0, err
	}

	m.logger.Info("Resolved active warnings",
		zap.String("serverID", serverID),
		zap.String("userID", userID),
		zap.Int64("count", affected))

	return int(affected), nil
}

// SetLogMessageID stores the moderation alert's message ID on a violation
// so reaction feedback can find it later.
func (m *ViolationModel) SetLogMessageID(ctx context.Context, violationID int64, messageID string) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewUpdate().
			Model((*types.Violation)(nil)).
			Set("log_message_id = ?", messageID).
			Where("id = ?", violationID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to set log message ID: %w", err)
		}

		return nil
	})
}

// GetByID retrieves a single violation row.
func (m *ViolationModel) GetByID(ctx context.Context, violationID int64) (*types.Violation, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Violation, error) {
		var violation types.Violation

		err := m.db.NewSelect().
			Model(&violation).
			Where("id = ?", violationID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrViolationNotFound
			}

			return nil, fmt.Errorf("failed to get violation: %w", err)
		}

		return &violation, nil
	})
}

// GetByLogMessageID resolves a moderation alert message back to its
// violation row.
func (m *ViolationModel) GetByLogMessageID(ctx context.Context, messageID string) (*types.Violation, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Violation, error) {
		var violation types.Violation

		err := m.db.NewSelect().
			Model(&violation).
			Where("log_message_id = ?", messageID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrViolationNotFound
			}

			return nil, fmt.Errorf("failed to get violation by log message: %w", err)
		}

		return &violation, nil
	})
}

// SetFeedback records a moderator's judgment on a violation. The row is
// updated idempotently; only the latest review sticks.
func (m *ViolationModel) SetFeedback(ctx context.Context, violationID int64, falsePositive bool) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		res, err := m.db.NewUpdate().
			Model((*types.Violation)(nil)).
			Set("false_positive = ?", falsePositive).
			Where("id = ?", violationID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to set feedback: %w", err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}

		if rows == 0 {
			return ErrViolationNotFound
		}

		return nil
	})
}

// CountReviewed returns how many violations on the server have moderator
// feedback since the given time, and how many of those were marked false
// positive. This is the adaptive learner's input signal.
func (m *ViolationModel) CountReviewed(
	ctx context.Context, serverID string, since time.Time,
) (total, falsePositives int, err error) {
	type reviewCounts struct {
		Total          int `bun:"total"`
		FalsePositives int `bun:"false_positives"`
	}

	counts, err := dbretry.Operation(ctx, func(ctx context.Context) (reviewCounts, error) {
		var counts reviewCounts

		err := m.db.NewSelect().
			Model((*types.Violation)(nil)).
			ColumnExpr("COUNT(*) AS total").
			ColumnExpr("COUNT(*) FILTER (WHERE false_positive) AS false_positives").
			Where("server_id = ?", serverID).
			Where("false_positive IS NOT NULL").
			Where("created_at >= ?", since).
			Scan(ctx, &counts)
		if err != nil {
			return counts, fmt.Errorf("failed to count reviewed violations: %w", err)
		}

		return counts, nil
	})
	if err != nil {
		return 0, 0, err
	}

	return counts.Total, counts.FalsePositives, nil
}
