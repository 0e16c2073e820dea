package learning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeServers struct {
	servers    []*types.Server
	thresholds map[string]float64
	failUpdate bool
}

func (f *fakeServers) GetLearningServers(_ context.Context) ([]*types.Server, error) {
	return f.servers, nil
}

func (f *fakeServers) UpdateToxicityThreshold(_ context.Context, serverID string, threshold float64) error {
	if f.failUpdate {
		return errors.New("database unavailable")
	}

	if f.thresholds == nil {
		f.thresholds = make(map[string]float64)
	}

	f.thresholds[serverID] = threshold

	return nil
}

type fakeFeedback struct {
	total          map[string]int
	falsePositives map[string]int
}

func (f *fakeFeedback) CountReviewed(_ context.Context, serverID string, _ time.Time) (int, int, error) {
	return f.total[serverID], f.falsePositives[serverID], nil
}

func setupLearner(t *testing.T, servers *fakeServers, feedback *fakeFeedback) *Learner {
	t.Helper()

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	return NewLearner(servers, feedback, logger)
}

func learningServer(threshold float64) *types.Server {
	server := types.NewServer("server-1", "Test Server", "owner-1")
	server.ToxicityThreshold = threshold

	return server
}

func TestNoOpBelowMinimumSamples(t *testing.T) {
	servers := &fakeServers{}
	feedback := &fakeFeedback{
		total:          map[string]int{"server-1": 4},
		falsePositives: map[string]int{"server-1": 4},
	}
	learner := setupLearner(t, servers, feedback)

	server := learningServer(0.6)

	threshold, changed, err := learner.Adjust(context.Background(), server)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.InDelta(t, 0.6, threshold, 0.001)
	assert.Empty(t, servers.thresholds)
}

func TestRaisesWhenFalsePositivesHigh(t *testing.T) {
	servers := &fakeServers{}
	feedback := &fakeFeedback{
		total:          map[string]int{"server-1": 10},
		falsePositives: map[string]int{"server-1": 3},
	}
	learner := setupLearner(t, servers, feedback)

	server := learningServer(0.6)

	threshold, changed, err := learner.Adjust(context.Background(), server)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.InDelta(t, 0.65, threshold, 0.001)
	assert.InDelta(t, 0.65, servers.thresholds["server-1"], 0.001)
	assert.InDelta(t, 0.65, server.ToxicityThreshold, 0.001)
}

func TestLowersOnCleanRecordWithLargeSample(t *testing.T) {
	servers := &fakeServers{}
	feedback := &fakeFeedback{
		total:          map[string]int{"server-1": 25},
		falsePositives: map[string]int{"server-1": 1},
	}
	learner := setupLearner(t, servers, feedback)

	server := learningServer(0.6)

	threshold, changed, err := learner.Adjust(context.Background(), server)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.InDelta(t, 0.55, threshold, 0.001)
}

func TestNoLoweringOnSmallSample(t *testing.T) {
	servers := &fakeServers{}

	// Zero false positives, but only 10 reviews. Not enough evidence
	// to become more aggressive.
	feedback := &fakeFeedback{
		total:          map[string]int{"server-1": 10},
		falsePositives: map[string]int{"server-1": 0},
	}
	learner := setupLearner(t, servers, feedback)

	server := learningServer(0.6)

	_, changed, err := learner.Adjust(context.Background(), server)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestNoChangeInsideTargetBand(t *testing.T) {
	servers := &fakeServers{}

	// 8% rate: below target, above target/2 with a large sample.
	feedback := &fakeFeedback{
		total:          map[string]int{"server-1": 25},
		falsePositives: map[string]int{"server-1": 2},
	}
	learner := setupLearner(t, servers, feedback)

	server := learningServer(0.6)

	_, changed, err := learner.Adjust(context.Background(), server)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestThresholdStaysWithinBounds(t *testing.T) {
	servers := &fakeServers{}
	feedback := &fakeFeedback{
		total:          map[string]int{"server-1": 10},
		falsePositives: map[string]int{"server-1": 10},
	}
	learner := setupLearner(t, servers, feedback)

	server := learningServer(0.93)

	// Repeated raising saturates at the ceiling.
	for range 5 {
		_, _, err := learner.Adjust(context.Background(), server)
		require.NoError(t, err)
	}

	assert.InDelta(t, MaxThreshold, server.ToxicityThreshold, 0.001)

	// Repeated lowering saturates at the floor.
	feedback.falsePositives["server-1"] = 0
	feedback.total["server-1"] = 25
	server.ToxicityThreshold = 0.42

	for range 5 {
		_, _, err := learner.Adjust(context.Background(), server)
		require.NoError(t, err)
	}

	assert.InDelta(t, MinThreshold, server.ToxicityThreshold, 0.001)
}

func TestLearningDisabledIsNoOp(t *testing.T) {
	servers := &fakeServers{}
	feedback := &fakeFeedback{
		total:          map[string]int{"server-1": 30},
		falsePositives: map[string]int{"server-1": 15},
	}
	learner := setupLearner(t, servers, feedback)

	server := learningServer(0.6)
	server.LearningEnabled = false

	_, changed, err := learner.Adjust(context.Background(), server)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestAdjustAllIsolatesFailures(t *testing.T) {
	healthy := learningServer(0.6)
	broken := types.NewServer("server-2", "Other Server", "owner-2")
	broken.ToxicityThreshold = 0.6

	servers := &fakeServers{servers: []*types.Server{broken, healthy}}
	feedback := &fakeFeedback{
		total: map[string]int{
			"server-1": 10,
			"server-2": 10,
		},
		falsePositives: map[string]int{
			"server-1": 3,
			"server-2": 3,
		},
	}
	learner := setupLearner(t, servers, feedback)

	// First pass with persistence down: nothing sticks, no error out.
	servers.failUpdate = true

	adjusted, err := learner.AdjustAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, adjusted)

	// Second pass adjusts both.
	servers.failUpdate = false

	adjusted, err = learner.AdjustAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, adjusted)
}
