package learning

import (
	"context"
	"time"

	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/learning"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/setup"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/worker/core"
	"go.uber.org/zap"
)

// Worker periodically tunes per-server sensitivity thresholds from
// accumulated moderator feedback.
type Worker struct {
	learner  *learning.Learner
	reporter *core.StatusReporter
	interval time.Duration
	logger   *zap.Logger
}

// New creates a new adaptive learning worker.
func New(app *setup.App, logger *zap.Logger) *Worker {
	interval := learning.DefaultCycle
	if hours := app.Config.Worker.LearningIntervalHours; hours > 0 {
		interval = time.Duration(hours) * time.Hour
	}

	return &Worker{
		learner:  learning.NewLearner(app.DB.Model().Server(), app.DB.Model().Violation(), logger),
		reporter: core.NewStatusReporter(app.StatusClient, "learning", logger),
		interval: interval,
		logger:   logger,
	}
}

// Start begins the learning worker's main loop. It runs one adjustment
// pass immediately and then once per interval until the context ends.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Learning worker started",
		zap.String("workerID", w.reporter.GetWorkerID()),
		zap.Duration("interval", w.interval))

	w.reporter.Start(ctx)
	defer w.reporter.Stop()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runCycle(ctx)

	for {
		select {
		case <-ticker.C:
			w.runCycle(ctx)
		case <-ctx.Done():
			w.logger.Info("Learning worker stopped")
			return
		}
	}
}

func (w *Worker) runCycle(ctx context.Context) {
	w.reporter.SetHealthy(true)
	w.reporter.UpdateStatus("Adjusting thresholds", 50)

	adjusted, err := w.learner.AdjustAll(ctx)
	if err != nil {
		w.logger.Error("Learning cycle failed", zap.Error(err))
		w.reporter.SetHealthy(false)
		w.reporter.UpdateStatus("Cycle failed", 0)

		return
	}

	w.logger.Info("Learning cycle completed", zap.Int("adjusted", adjusted))
	w.reporter.UpdateStatus("Completed", 100)
}
