package spam

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTracker(t *testing.T) *Tracker {
	t.Helper()

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	return NewTracker(logger)
}

func reasonsContain(reasons []string, substr string) bool {
	for _, reason := range reasons {
		if strings.Contains(reason, substr) {
			return true
		}
	}

	return false
}

func TestFirstMessageNeverScores(t *testing.T) {
	tracker := setupTracker(t)

	analysis := tracker.AddMessage("user1", "hello everyone", time.Now())
	assert.Zero(t, analysis.Score)
	assert.False(t, analysis.IsSpam)
	assert.Empty(t, analysis.Reasons)
}

func TestRapidFireBurst(t *testing.T) {
	tracker := setupTracker(t)
	base := time.Now()

	// Five one-character messages inside three seconds trip the rapid
	// fire, short spam, and consistent-short rules together.
	var analysis Analysis
	for i := range 5 {
		analysis = tracker.AddMessage("user1", "a", base.Add(time.Duration(i)*600*time.Millisecond))
	}

	assert.Equal(t, 105, analysis.Score)
	assert.True(t, analysis.IsSpam)
	assert.True(t, reasonsContain(analysis.Reasons, "rapid fire"))
	assert.True(t, reasonsContain(analysis.Reasons, "short spam"))
	assert.True(t, reasonsContain(analysis.Reasons, "consistent short"))
	assert.Equal(t, 5, analysis.Recent10sCount)
}

func TestRepeatedContent(t *testing.T) {
	tracker := setupTracker(t)
	base := time.Now()

	tracker.AddMessage("user1", "buy cheap coins here", base)
	analysis := tracker.AddMessage("user1", "buy cheap coins here", base.Add(15*time.Second))

	assert.Equal(t, 2, analysis.RepeatCount)
	assert.True(t, reasonsContain(analysis.Reasons, "duplicate content"))
	assert.False(t, analysis.IsSpam)

	analysis = tracker.AddMessage("user1", "buy cheap coins here", base.Add(30*time.Second))

	assert.Equal(t, 3, analysis.RepeatCount)
	assert.True(t, reasonsContain(analysis.Reasons, "repeated content"))
	assert.True(t, analysis.IsSpam)
}

func TestRepeatMatchingIsCaseInsensitive(t *testing.T) {
	tracker := setupTracker(t)
	base := time.Now()

	tracker.AddMessage("user1", "Buy Cheap Coins", base)
	analysis := tracker.AddMessage("user1", "buy cheap coins", base.Add(10*time.Second))

	assert.Equal(t, 2, analysis.RepeatCount)
}

func TestShortContentNotTrackedAsRepeat(t *testing.T) {
	tracker := setupTracker(t)
	base := time.Now()

	// "ok" repeats constantly in normal chat and must not count as
	// duplicated content.
	tracker.AddMessage("user1", "ok", base)
	analysis := tracker.AddMessage("user1", "ok", base.Add(40*time.Second))

	assert.Zero(t, analysis.RepeatCount)
	assert.False(t, reasonsContain(analysis.Reasons, "duplicate content"))
}

func TestHighFrequencyAloneReachesThreshold(t *testing.T) {
	tracker := setupTracker(t)
	base := time.Now()

	// Eight distinct normal-length messages spread over a minute fire
	// only the frequency rule, landing exactly on the spam threshold.
	messages := []string{
		"first message here", "second message here", "third message here",
		"fourth message here", "fifth message here", "sixth message here",
		"seventh message here", "eighth message here",
	}

	var analysis Analysis
	for i, content := range messages {
		analysis = tracker.AddMessage("user1", content, base.Add(time.Duration(i)*7*time.Second))
	}

	assert.Equal(t, SpamScoreThreshold, analysis.Score)
	assert.True(t, analysis.IsSpam)
	assert.True(t, reasonsContain(analysis.Reasons, "high frequency"))
	assert.Len(t, analysis.Reasons, 1)
}

func TestBelowThresholdIsNotSpam(t *testing.T) {
	tracker := setupTracker(t)
	base := time.Now()

	// Five distinct normal-length messages in a quick burst fire only
	// the rapid fire rule, which is below the spam threshold.
	messages := []string{
		"hey what's up", "did you see the match", "that was wild",
		"can't believe the ending", "anyway back to work",
	}

	var analysis Analysis
	for i, content := range messages {
		analysis = tracker.AddMessage("user1", content, base.Add(time.Duration(i)*time.Second))
	}

	assert.Equal(t, 40, analysis.Score)
	assert.False(t, analysis.IsSpam)
	assert.True(t, reasonsContain(analysis.Reasons, "rapid fire"))
	assert.Len(t, analysis.Reasons, 1)
}

func TestUsersAreIsolated(t *testing.T) {
	tracker := setupTracker(t)
	base := time.Now()

	for i := range 4 {
		tracker.AddMessage("user1", "a", base.Add(time.Duration(i)*time.Second))
	}

	// A different user's first burst message sees only its own history.
	analysis := tracker.AddMessage("user2", "a", base.Add(4*time.Second))
	assert.Zero(t, analysis.Score)
}

func TestHistoryCap(t *testing.T) {
	tracker := setupTracker(t)
	base := time.Now()

	for i := range 50 {
		tracker.AddMessage("user1", "spread out message", base.Add(time.Duration(i)*2*time.Minute))
	}

	tracker.mu.Lock()
	length := len(tracker.users["user1"].history)
	tracker.mu.Unlock()

	assert.Equal(t, HistoryLimit, length)
}

func TestCleanupDropsIdleUsers(t *testing.T) {
	tracker := setupTracker(t)
	base := time.Now()

	// Short messages never populate the content map, so this user is
	// fully droppable once the history ages out.
	tracker.AddMessage("idle", "hi", base)
	tracker.AddMessage("busy", "hello there friend", base.Add(9*time.Minute))

	removed := tracker.Cleanup(base.Add(11 * time.Minute))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, tracker.TrackedUsers())

	// Re-running immediately removes nothing.
	removed = tracker.Cleanup(base.Add(11 * time.Minute))
	assert.Zero(t, removed)
}

func TestCleanupPurgesOldHistory(t *testing.T) {
	tracker := setupTracker(t)
	base := time.Now()

	tracker.AddMessage("user1", "tracked message content", base)
	tracker.Cleanup(base.Add(11 * time.Minute))

	tracker.mu.Lock()
	state := tracker.users["user1"]
	historyLen := len(state.history)
	repeats := state.contents["tracked message content"]
	tracker.mu.Unlock()

	// History ages out, but the repetition record survives so slow
	// copy-paste spam is still caught.
	assert.Zero(t, historyLen)
	assert.Equal(t, 1, repeats)
}
