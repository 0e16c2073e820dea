package core_test

import (
	"testing"
	"time"

	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/worker/core"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTest(t *testing.T) (*core.Monitor, rueidis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	monitor := core.NewMonitor(client, logger)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return monitor, client, cleanup
}

func TestReportAndListStatuses(t *testing.T) {
	t.Parallel()

	monitor, _, cleanup := setupTest(t)
	defer cleanup()

	ctx := t.Context()

	err := monitor.ReportStatus(ctx, core.Status{
		WorkerID:    "worker-1",
		WorkerType:  "learning",
		CurrentTask: "adjusting thresholds",
		Progress:    50,
		IsHealthy:   true,
	})
	require.NoError(t, err)

	statuses, err := monitor.GetAllStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)

	assert.Equal(t, "worker-1", statuses[0].WorkerID)
	assert.Equal(t, "learning", statuses[0].WorkerType)
	assert.Equal(t, "adjusting thresholds", statuses[0].CurrentTask)
	assert.Equal(t, 50, statuses[0].Progress)
	assert.True(t, statuses[0].IsHealthy)
	assert.WithinDuration(t, time.Now(), statuses[0].LastSeen, time.Minute)
}

func TestReportOverwritesPreviousStatus(t *testing.T) {
	t.Parallel()

	monitor, _, cleanup := setupTest(t)
	defer cleanup()

	ctx := t.Context()

	status := core.Status{WorkerID: "worker-1", WorkerType: "learning", Progress: 10, IsHealthy: true}
	require.NoError(t, monitor.ReportStatus(ctx, status))

	status.Progress = 90
	status.IsHealthy = false
	require.NoError(t, monitor.ReportStatus(ctx, status))

	statuses, err := monitor.GetAllStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)

	assert.Equal(t, 90, statuses[0].Progress)
	assert.False(t, statuses[0].IsHealthy)
}

func TestReporterPublishesInitialStatus(t *testing.T) {
	t.Parallel()

	monitor, client, cleanup := setupTest(t)
	defer cleanup()

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	reporter := core.NewStatusReporter(client, "learning", logger)
	reporter.UpdateStatus("warming up", 0)
	reporter.Start(t.Context())

	defer reporter.Stop()

	require.Eventually(t, func() bool {
		statuses, err := monitor.GetAllStatuses(t.Context())

		return err == nil && len(statuses) == 1
	}, 5*time.Second, 50*time.Millisecond)

	statuses, err := monitor.GetAllStatuses(t.Context())
	require.NoError(t, err)
	assert.Equal(t, reporter.GetWorkerID(), statuses[0].WorkerID)
	assert.Equal(t, "warming up", statuses[0].CurrentTask)
}

func TestStaleDetection(t *testing.T) {
	t.Parallel()

	now := time.Now()

	fresh := core.Status{LastSeen: now.Add(-time.Second)}
	stale := core.Status{LastSeen: now.Add(-core.StaleThreshold - time.Second)}

	assert.False(t, fresh.IsStale(now))
	assert.True(t, stale.IsStale(now))
}
