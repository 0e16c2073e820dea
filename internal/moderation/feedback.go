package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/models"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/types"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/platform"
	"go.uber.org/zap"
)

var (
	// ErrUnauthorized is returned when the reviewer lacks moderation
	// authority on the server.
	ErrUnauthorized = errors.New("reviewer lacks moderation authority")

	// ErrViolationNotFound is returned when the feedback reference does
	// not resolve to a violation row.
	ErrViolationNotFound = models.ErrViolationNotFound
)

// Recorder converts a moderator's judgment on a violation into
// persisted state and aggregate counters.
type Recorder struct {
	violations ViolationStore
	servers    ServerStore
	analytics  AnalyticsStore
	adapter    platform.Adapter
	logger     *zap.Logger
}

// NewRecorder creates a feedback recorder.
func NewRecorder(
	violations ViolationStore,
	servers ServerStore,
	analytics AnalyticsStore,
	adapter platform.Adapter,
	logger *zap.Logger,
) *Recorder {
	return &Recorder{
		violations: violations,
		servers:    servers,
		analytics:  analytics,
		adapter:    adapter,
		logger:     logger.Named("feedback"),
	}
}

// Record marks a violation as reviewed. The reviewer must hold
// moderation authority on the server. Counters increment once per
// reporting event; re-reviewing the same violation increments again.
func (r *Recorder) Record(
	ctx context.Context, violationID int64, falsePositive bool, reviewerID string,
) (*types.Violation, error) {
	violation, err := r.violations.GetByID(ctx, violationID)
	if err != nil {
		return nil, err
	}

	return r.record(ctx, violation, falsePositive, reviewerID)
}

// RecordByAlert resolves a moderation alert message back to its
// violation and records feedback against it. This is the reaction
// review path.
func (r *Recorder) RecordByAlert(
	ctx context.Context, alertMessageID string, falsePositive bool, reviewerID string,
) (*types.Violation, error) {
	violation, err := r.violations.GetByLogMessageID(ctx, alertMessageID)
	if err != nil {
		return nil, err
	}

	return r.record(ctx, violation, falsePositive, reviewerID)
}

func (r *Recorder) record(
	ctx context.Context, violation *types.Violation, falsePositive bool, reviewerID string,
) (*types.Violation, error) {
	authorized, err := r.adapter.HasModerationAuthority(ctx, violation.ServerID, reviewerID)
	if err != nil {
		return nil, fmt.Errorf("failed to check reviewer authority: %w", err)
	}

	if !authorized {
		return nil, ErrUnauthorized
	}

	if err := r.violations.SetFeedback(ctx, violation.ID, falsePositive); err != nil {
		return nil, err
	}

	if err := r.servers.IncrementFeedbackCount(ctx, violation.ServerID, falsePositive); err != nil {
		return nil, fmt.Errorf("failed to update feedback counters: %w", err)
	}

	if falsePositive {
		if err := r.analytics.IncrementFalsePositives(ctx, violation.ServerID, time.Now()); err != nil {
			r.logger.Warn("Failed to update analytics", zap.Error(err))
		}
	}

	violation.FalsePositive = &falsePositive

	r.logger.Info("Recorded moderator feedback",
		zap.Int64("violationID", violation.ID),
		zap.String("serverID", violation.ServerID),
		zap.String("reviewerID", reviewerID),
		zap.Bool("falsePositive", falsePositive))

	return violation, nil
}
