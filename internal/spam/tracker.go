package spam

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// HistoryLimit caps how many recent messages are retained per user.
	HistoryLimit = 20

	// SpamScoreThreshold is the minimum score at which a burst of
	// messages is treated as spam.
	SpamScoreThreshold = 50

	// HistoryTTL is how long individual history entries survive before
	// the cleanup sweep drops them.
	HistoryTTL = 10 * time.Minute

	// CleanupInterval is how often the background sweep runs.
	CleanupInterval = 5 * time.Minute

	// trackedContentMin is the minimum normalized length for content to
	// be counted toward repetition. Shorter strings are ordinary chat
	// reactions.
	trackedContentMin = 2

	// trackedContentMax bounds the normalized content key length.
	trackedContentMax = 50
)

// Scoring rules. Each rule contributes its weight when its condition
// holds; weights are additive across rules.
const (
	rapidFireWindow = 10 * time.Second
	rapidFireCount  = 5
	rapidFireScore  = 40

	repeatHighCount = 3
	repeatHighScore = 60
	repeatLowCount  = 2
	repeatLowScore  = 25

	shortWindow    = 30 * time.Second
	shortMaxLength = 2
	shortMinCount  = 3
	shortScore     = 35

	frequencyWindow = 60 * time.Second
	frequencyCount  = 8
	frequencyScore  = 50

	lowEffortMinMessages = 3
	lowEffortScore       = 30
)

// Analysis is the outcome of scoring one message against the sender's
// recent history.
type Analysis struct {
	Score          int
	Reasons        []string
	IsSpam         bool
	Recent10sCount int
	RepeatCount    int
	Recent30sCount int
}

type record struct {
	at     time.Time
	length int
}

type userState struct {
	history  []record
	contents map[string]int
}

// Tracker keeps a sliding window of recent messages per user and scores
// incoming messages for spam patterns. Safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	users  map[string]*userState
	logger *zap.Logger
}

// NewTracker creates an empty tracker.
func NewTracker(logger *zap.Logger) *Tracker {
	return &Tracker{
		users:  make(map[string]*userState),
		logger: logger.Named("spam"),
	}
}

// AddMessage records a message and scores it against the sender's recent
// history. The first message from a user never scores.
func (t *Tracker) AddMessage(userID, content string, at time.Time) Analysis {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.users[userID]
	if !ok {
		state = &userState{contents: make(map[string]int)}
		t.users[userID] = state
	}

	state.history = append(state.history, record{at: at, length: len(content)})
	if len(state.history) > HistoryLimit {
		state.history = state.history[len(state.history)-HistoryLimit:]
	}

	normalized := normalizeContent(content)
	if len(normalized) > trackedContentMin {
		state.contents[normalized]++
	}

	// A single message carries no burst signal.
	if len(state.history) < 2 {
		return Analysis{}
	}

	return t.analyze(state, content, normalized, at)
}

func (t *Tracker) analyze(state *userState, content, normalized string, at time.Time) Analysis {
	var (
		analysis Analysis

		recent10s   int
		recent30s   int
		recent60s   int
		short30s    int
		totalLen30s int
	)

	for _, r := range state.history {
		age := at.Sub(r.at)

		if age <= rapidFireWindow {
			recent10s++
		}

		if age <= shortWindow {
			recent30s++
			totalLen30s += r.length

			if r.length <= shortMaxLength {
				short30s++
			}
		}

		if age <= frequencyWindow {
			recent60s++
		}
	}

	repeats := state.contents[normalized]

	analysis.Recent10sCount = recent10s
	analysis.RepeatCount = repeats
	analysis.Recent30sCount = recent30s

	if recent10s >= rapidFireCount {
		analysis.Score += rapidFireScore
		analysis.Reasons = append(analysis.Reasons,
			fmt.Sprintf("rapid fire: %d messages in 10s", recent10s))
	}

	switch {
	case repeats >= repeatHighCount:
		analysis.Score += repeatHighScore
		analysis.Reasons = append(analysis.Reasons,
			fmt.Sprintf("repeated content: %q x%d", truncate(content, 30), repeats))
	case repeats >= repeatLowCount:
		analysis.Score += repeatLowScore
		analysis.Reasons = append(analysis.Reasons,
			fmt.Sprintf("duplicate content: %q x%d", truncate(content, 30), repeats))
	}

	if recent30s >= shortMinCount && short30s >= shortMinCount {
		analysis.Score += shortScore
		analysis.Reasons = append(analysis.Reasons,
			fmt.Sprintf("short spam: %d messages under 3 chars", short30s))
	}

	if recent60s >= frequencyCount {
		analysis.Score += frequencyScore
		analysis.Reasons = append(analysis.Reasons,
			fmt.Sprintf("high frequency: %d messages per minute", recent60s))
	}

	if recent30s >= lowEffortMinMessages {
		avg := float64(totalLen30s) / float64(recent30s)
		if avg <= shortMaxLength {
			analysis.Score += lowEffortScore
			analysis.Reasons = append(analysis.Reasons,
				fmt.Sprintf("consistent short messages: avg %.1f chars", avg))
		}
	}

	analysis.IsSpam = analysis.Score >= SpamScoreThreshold

	if analysis.IsSpam {
		t.logger.Debug("Spam pattern detected",
			zap.Int("score", analysis.Score),
			zap.Strings("reasons", analysis.Reasons))
	}

	return analysis
}

// Cleanup drops history entries older than the TTL and removes users
// with nothing tracked anymore. Idempotent.
func (t *Tracker) Cleanup(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-HistoryTTL)
	removed := 0

	for userID, state := range t.users {
		kept := state.history[:0]

		for _, r := range state.history {
			if r.at.After(cutoff) {
				kept = append(kept, r)
			}
		}

		state.history = kept

		if len(state.history) == 0 && len(state.contents) == 0 {
			delete(t.users, userID)

			removed++
		}
	}

	return removed
}

// TrackedUsers returns how many users currently have state retained.
func (t *Tracker) TrackedUsers() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.users)
}

// StartCleanup runs the periodic sweep until the context is cancelled.
func (t *Tracker) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := t.Cleanup(now); removed > 0 {
				t.logger.Debug("Cleaned up inactive spam histories", zap.Int("removed", removed))
			}
		}
	}
}

func normalizeContent(content string) string {
	normalized := strings.ToLower(strings.TrimSpace(content))
	return truncate(normalized, trackedContentMax)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	return s[:limit]
}
