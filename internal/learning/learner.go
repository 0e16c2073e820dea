package learning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/types"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Control-loop constants. One bounded step per cycle in one direction,
// damped to avoid oscillation.
const (
	// TargetFalsePositiveRate is the rate the loop converges toward.
	TargetFalsePositiveRate = 0.10

	// AdjustmentStep is the per-cycle threshold delta.
	AdjustmentStep = 0.05

	// MinThreshold and MaxThreshold bound thresholds once the learner
	// has touched them. Administrators may set values outside this band
	// directly.
	MinThreshold = 0.40
	MaxThreshold = 0.95

	// MinFeedbackItems is the smallest review sample the loop acts on.
	MinFeedbackItems = 5

	// lowerFeedbackItems is the larger sample required before the loop
	// dares to lower a threshold.
	lowerFeedbackItems = 20

	// FeedbackWindow is the trailing period of reviews considered.
	FeedbackWindow = 30 * 24 * time.Hour

	// DefaultCycle is the period between adjustment passes.
	DefaultCycle = 6 * time.Hour
)

// ServerSource lists learning-enabled servers and persists threshold
// updates.
type ServerSource interface {
	GetLearningServers(ctx context.Context) ([]*types.Server, error)
	UpdateToxicityThreshold(ctx context.Context, serverID string, threshold float64) error
}

// FeedbackSource counts reviewed violations in a window.
type FeedbackSource interface {
	CountReviewed(ctx context.Context, serverID string, since time.Time) (total, falsePositives int, err error)
}

// Learner nudges each server's sensitivity threshold toward the target
// false-positive rate using only that server's own feedback.
type Learner struct {
	servers  ServerSource
	feedback FeedbackSource
	logger   *zap.Logger
}

// NewLearner creates an adaptive learner.
func NewLearner(servers ServerSource, feedback FeedbackSource, logger *zap.Logger) *Learner {
	return &Learner{
		servers:  servers,
		feedback: feedback,
		logger:   logger.Named("learner"),
	}
}

// Adjust applies one bounded adjustment step for a single server.
// Returns the resulting threshold and whether it changed.
func (l *Learner) Adjust(ctx context.Context, server *types.Server) (float64, bool, error) {
	current := server.ToxicityThreshold

	if !server.LearningEnabled {
		return current, false, nil
	}

	total, falsePositives, err := l.feedback.CountReviewed(ctx, server.ID, time.Now().Add(-FeedbackWindow))
	if err != nil {
		return current, false, fmt.Errorf("failed to count reviewed violations: %w", err)
	}

	if total < MinFeedbackItems {
		l.logger.Debug("Not enough feedback to adjust",
			zap.String("serverID", server.ID),
			zap.Int("reviewed", total))

		return current, false, nil
	}

	rate := float64(falsePositives) / float64(total)
	updated := current

	switch {
	case rate > TargetFalsePositiveRate:
		// Too many false positives, become less sensitive.
		updated = min(current+AdjustmentStep, MaxThreshold)
	case rate < TargetFalsePositiveRate/2 && total > lowerFeedbackItems:
		// Clean record over a large sample, become more sensitive.
		updated = max(current-AdjustmentStep, MinThreshold)
	}

	if updated == current {
		return current, false, nil
	}

	if err := l.servers.UpdateToxicityThreshold(ctx, server.ID, updated); err != nil {
		return current, false, fmt.Errorf("failed to persist threshold: %w", err)
	}

	server.ToxicityThreshold = updated

	l.logger.Info("Adjusted sensitivity threshold",
		zap.String("serverID", server.ID),
		zap.Float64("falsePositiveRate", rate),
		zap.Int("reviewed", total),
		zap.Float64("from", current),
		zap.Float64("to", updated))

	return updated, true, nil
}

// AdjustAll runs one adjustment pass over every learning-enabled
// server. A failure on one server never blocks the others.
func (l *Learner) AdjustAll(ctx context.Context) (int, error) {
	servers, err := l.servers.GetLearningServers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list learning servers: %w", err)
	}

	var (
		p        = pool.New().WithContext(ctx)
		mu       sync.Mutex
		adjusted int
	)

	for _, server := range servers {
		p.Go(func(ctx context.Context) error {
			_, changed, err := l.Adjust(ctx, server)
			if err != nil {
				l.logger.Error("Failed to adjust server",
					zap.String("serverID", server.ID),
					zap.Error(err))

				return nil
			}

			if changed {
				mu.Lock()
				adjusted++
				mu.Unlock()
			}

			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return 0, err
	}

	return adjusted, nil
}
