package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/classifier"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/models"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/types"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/types/enum"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/platform"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/spam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errPlatformDown = errors.New("platform unavailable")

type fakeViolations struct {
	rows   []*types.Violation
	nextID int64
}

func (f *fakeViolations) Create(_ context.Context, violation *types.Violation) error {
	f.nextID++
	violation.ID = f.nextID
	f.rows = append(f.rows, violation)

	return nil
}

func (f *fakeViolations) CountActiveWarnings(_ context.Context, serverID, userID string, since time.Time) (int, error) {
	count := 0

	for _, row := range f.rows {
		if row.ServerID == serverID && row.UserID == userID &&
			!row.CreatedAt.Before(since) && row.ActionTaken.IsActiveWarning() {
			count++
		}
	}

	return count, nil
}

func (f *fakeViolations) ResolveActiveWarnings(_ context.Context, serverID, userID string, since time.Time) (int, error) {
	resolved := 0

	for _, row := range f.rows {
		if row.ServerID == serverID && row.UserID == userID &&
			!row.CreatedAt.Before(since) && row.ActionTaken.IsActiveWarning() {
			row.ActionTaken = enum.ActionResolved

			resolved++
		}
	}

	return resolved, nil
}

func (f *fakeViolations) SetLogMessageID(_ context.Context, violationID int64, messageID string) error {
	for _, row := range f.rows {
		if row.ID == violationID {
			row.LogMessageID = messageID
			return nil
		}
	}

	return models.ErrViolationNotFound
}

func (f *fakeViolations) GetByID(_ context.Context, violationID int64) (*types.Violation, error) {
	for _, row := range f.rows {
		if row.ID == violationID {
			return row, nil
		}
	}

	return nil, models.ErrViolationNotFound
}

func (f *fakeViolations) GetByLogMessageID(_ context.Context, messageID string) (*types.Violation, error) {
	for _, row := range f.rows {
		if row.LogMessageID == messageID {
			return row, nil
		}
	}

	return nil, models.ErrViolationNotFound
}

func (f *fakeViolations) SetFeedback(_ context.Context, violationID int64, falsePositive bool) error {
	for _, row := range f.rows {
		if row.ID == violationID {
			row.FalsePositive = &falsePositive
			return nil
		}
	}

	return models.ErrViolationNotFound
}

type fakeMembers struct {
	upserts    int
	violations int
}

func (f *fakeMembers) UpsertMember(_ context.Context, _, _ string) error {
	f.upserts++
	return nil
}

func (f *fakeMembers) IncrementViolationCount(_ context.Context, _ string) error {
	f.violations++
	return nil
}

type fakeAnalytics struct {
	violations     int
	falsePositives int
}

func (f *fakeAnalytics) IncrementDaily(_ context.Context, _ string, _ time.Time, _, violations, _ int) error {
	f.violations += violations
	return nil
}

func (f *fakeAnalytics) IncrementFalsePositives(_ context.Context, _ string, _ time.Time) error {
	f.falsePositives++
	return nil
}

type fakeServers struct {
	falsePositives int
	truePositives  int
}

func (f *fakeServers) IncrementFeedbackCount(_ context.Context, _ string, falsePositive bool) error {
	if falsePositive {
		f.falsePositives++
	} else {
		f.truePositives++
	}

	return nil
}

type fakeAdapter struct {
	failAll bool

	deleted      []string
	timeouts     []time.Duration
	dms          []platform.Notice
	alerts       []string
	alertNotices []platform.Notice
	reactions    []string
	banned       []string
	kicked       []string

	moderators    map[string]bool
	nextMessageID int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{moderators: make(map[string]bool)}
}

func (f *fakeAdapter) DeleteMessage(_ context.Context, channelID, messageID string) error {
	if f.failAll {
		return errPlatformDown
	}

	f.deleted = append(f.deleted, channelID+"/"+messageID)

	return nil
}

func (f *fakeAdapter) TimeoutUser(_ context.Context, _, _ string, duration time.Duration) error {
	if f.failAll {
		return errPlatformDown
	}

	f.timeouts = append(f.timeouts, duration)

	return nil
}

func (f *fakeAdapter) BanUser(_ context.Context, _, userID, _ string) error {
	if f.failAll {
		return errPlatformDown
	}

	f.banned = append(f.banned, userID)

	return nil
}

func (f *fakeAdapter) KickUser(_ context.Context, _, userID string) error {
	if f.failAll {
		return errPlatformDown
	}

	f.kicked = append(f.kicked, userID)

	return nil
}

func (f *fakeAdapter) SendDirectMessage(_ context.Context, _ string, notice platform.Notice) error {
	if f.failAll {
		return errPlatformDown
	}

	f.dms = append(f.dms, notice)

	return nil
}

func (f *fakeAdapter) SendChannelMessage(_ context.Context, channelID string, notice platform.Notice) (string, error) {
	if f.failAll {
		return "", errPlatformDown
	}

	f.alerts = append(f.alerts, channelID)
	f.alertNotices = append(f.alertNotices, notice)
	f.nextMessageID++

	return fmt.Sprintf("alert-%d", f.nextMessageID), nil
}

func (f *fakeAdapter) AddReaction(_ context.Context, _, messageID, emoji string) error {
	if f.failAll {
		return errPlatformDown
	}

	f.reactions = append(f.reactions, messageID+":"+emoji)

	return nil
}

func (f *fakeAdapter) HasModerationAuthority(_ context.Context, _, userID string) (bool, error) {
	return f.moderators[userID], nil
}

func (f *fakeAdapter) GetChannelName(_ context.Context, _ string) string {
	return "general"
}

type engineFixture struct {
	engine     *Engine
	violations *fakeViolations
	members    *fakeMembers
	analytics  *fakeAnalytics
	adapter    *fakeAdapter
}

func setupEngine(t *testing.T) *engineFixture {
	t.Helper()

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	f := &engineFixture{
		violations: &fakeViolations{},
		members:    &fakeMembers{},
		analytics:  &fakeAnalytics{},
		adapter:    newFakeAdapter(),
	}
	f.engine = NewEngine(f.violations, f.members, f.analytics, f.adapter, logger)

	return f
}

func testMessage(at time.Time) Message {
	return Message{
		ID:         "msg-1",
		ServerID:   "server-1",
		ServerName: "Test Server",
		ChannelID:  "channel-1",
		UserID:     "user-1",
		Username:   "offender",
		Content:    "flagged message content",
		Timestamp:  at,
	}
}

func flaggedResult(score float64) classifier.Result {
	return classifier.Result{
		Flagged:       true,
		MaxScore:      score,
		ViolationType: enum.ViolationTypeToxicity,
	}
}

func TestEvaluateThreshold(t *testing.T) {
	f := setupEngine(t)
	server := types.NewServer("server-1", "Test Server", "owner-1")
	server.ToxicityThreshold = 0.7

	assert.False(t, f.engine.Evaluate(flaggedResult(0.65), server))
	assert.True(t, f.engine.Evaluate(flaggedResult(0.75), server))
	assert.True(t, f.engine.Evaluate(flaggedResult(0.7), server))
}

func TestFirstViolationWarns(t *testing.T) {
	f := setupEngine(t)
	server := types.NewServer("server-1", "Test Server", "owner-1")
	now := time.Now()

	violation, err := f.engine.HandleViolation(context.Background(), testMessage(now), flaggedResult(0.75), server)
	require.NoError(t, err)

	assert.Equal(t, enum.ActionWarn1, violation.ActionTaken)
	assert.Nil(t, violation.FalsePositive)
	assert.Len(t, f.adapter.dms, 1)
	assert.Empty(t, f.adapter.deleted)
	assert.NotEmpty(t, violation.LogMessageID)
}

func TestWarningLadderCycles(t *testing.T) {
	f := setupEngine(t)
	server := types.NewServer("server-1", "Test Server", "owner-1")
	base := time.Now()

	expected := []enum.Action{
		enum.ActionWarn1, enum.ActionWarn2, enum.ActionWarn3Reset,
		enum.ActionWarn1, enum.ActionWarn2, enum.ActionWarn3Reset,
	}

	for i, want := range expected {
		at := base.Add(time.Duration(i) * time.Hour)
		msg := testMessage(at)
		msg.ID = fmt.Sprintf("msg-%d", i)

		count, err := f.violations.CountActiveWarnings(context.Background(), msg.ServerID, msg.UserID, at.Add(-WarningWindow))
		require.NoError(t, err)
		assert.Less(t, count, 3)

		violation, err := f.engine.HandleViolation(context.Background(), msg, flaggedResult(0.8), server)
		require.NoError(t, err)
		assert.Equal(t, want, violation.ActionTaken, "violation %d", i+1)
	}
}

func TestThirdStrikeResolvesAndEnforces(t *testing.T) {
	f := setupEngine(t)
	server := types.NewServer("server-1", "Test Server", "owner-1")
	server.AutoTimeout = true
	server.TimeoutDuration = 300

	base := time.Now()
	ctx := context.Background()

	for i := range 3 {
		msg := testMessage(base.Add(time.Duration(i) * time.Minute))
		msg.ID = fmt.Sprintf("msg-%d", i)

		_, err := f.engine.HandleViolation(ctx, msg, flaggedResult(0.8), server)
		require.NoError(t, err)
	}

	// The offending message was deleted and the configured timeout applied.
	assert.Equal(t, []string{"channel-1/msg-2"}, f.adapter.deleted)
	require.Len(t, f.adapter.timeouts, 1)
	assert.Equal(t, 300*time.Second, f.adapter.timeouts[0])

	// Prior warnings are resolved; the reset row itself never counts.
	count, err := f.violations.CountActiveWarnings(ctx, "server-1", "user-1", base.Add(-WarningWindow))
	require.NoError(t, err)
	assert.Zero(t, count)

	actions := make([]enum.Action, 0, len(f.violations.rows))
	for _, row := range f.violations.rows {
		actions = append(actions, row.ActionTaken)
	}

	assert.Equal(t, []enum.Action{enum.ActionResolved, enum.ActionResolved, enum.ActionWarn3Reset}, actions)
}

func TestThirdStrikeSkipsTimeoutWhenDisabled(t *testing.T) {
	f := setupEngine(t)
	server := types.NewServer("server-1", "Test Server", "owner-1")
	server.AutoTimeout = false

	base := time.Now()
	ctx := context.Background()

	for i := range 3 {
		msg := testMessage(base.Add(time.Duration(i) * time.Minute))
		msg.ID = fmt.Sprintf("msg-%d", i)

		_, err := f.engine.HandleViolation(ctx, msg, flaggedResult(0.8), server)
		require.NoError(t, err)
	}

	assert.Len(t, f.adapter.deleted, 1)
	assert.Empty(t, f.adapter.timeouts)
}

func TestThirdStrikeAlertShowsTimeoutAction(t *testing.T) {
	f := setupEngine(t)
	server := types.NewServer("server-1", "Test Server", "owner-1")
	server.AutoTimeout = true
	server.TimeoutDuration = 300

	base := time.Now()
	ctx := context.Background()

	for i := range 3 {
		msg := testMessage(base.Add(time.Duration(i) * time.Minute))
		msg.ID = fmt.Sprintf("msg-%d", i)

		_, err := f.engine.HandleViolation(ctx, msg, flaggedResult(0.8), server)
		require.NoError(t, err)
	}

	require.Len(t, f.adapter.alertNotices, 3)

	assert.Equal(t, "Warn1", alertAction(t, f.adapter.alertNotices[0]))
	assert.Equal(t, "Warn3 Reset + Timeout 300s", alertAction(t, f.adapter.alertNotices[2]))
}

func alertAction(t *testing.T, notice platform.Notice) string {
	t.Helper()

	for _, field := range notice.Fields {
		if field.Name == "Action" {
			return field.Value
		}
	}

	t.Fatal("alert has no action field")

	return ""
}

func TestLongContentTruncatedInAuditRow(t *testing.T) {
	f := setupEngine(t)
	server := types.NewServer("server-1", "Test Server", "owner-1")

	msg := testMessage(time.Now())
	msg.Content = strings.Repeat("a", types.MessageContentLimit+200)

	_, err := f.engine.HandleViolation(context.Background(), msg, flaggedResult(0.8), server)
	require.NoError(t, err)

	require.Len(t, f.violations.rows, 1)
	assert.Len(t, f.violations.rows[0].MessageContent, types.MessageContentLimit)
}

func TestViolationPersistedWhenPlatformFails(t *testing.T) {
	f := setupEngine(t)
	f.adapter.failAll = true

	server := types.NewServer("server-1", "Test Server", "owner-1")

	violation, err := f.engine.HandleViolation(context.Background(), testMessage(time.Now()), flaggedResult(0.8), server)
	require.NoError(t, err)

	require.Len(t, f.violations.rows, 1)
	assert.Equal(t, enum.ActionWarn1, violation.ActionTaken)
	assert.Empty(t, violation.LogMessageID)
}

func TestAlertGoesToLogChannel(t *testing.T) {
	f := setupEngine(t)
	server := types.NewServer("server-1", "Test Server", "owner-1")
	server.ViolationLogChannel = "mod-log"

	_, err := f.engine.HandleViolation(context.Background(), testMessage(time.Now()), flaggedResult(0.8), server)
	require.NoError(t, err)

	assert.Equal(t, []string{"mod-log"}, f.adapter.alerts)
}

func TestAlertFallsBackToOriginChannel(t *testing.T) {
	f := setupEngine(t)
	server := types.NewServer("server-1", "Test Server", "owner-1")

	_, err := f.engine.HandleViolation(context.Background(), testMessage(time.Now()), flaggedResult(0.8), server)
	require.NoError(t, err)

	assert.Equal(t, []string{"channel-1"}, f.adapter.alerts)
}

func TestAlertSeedsReviewReactions(t *testing.T) {
	f := setupEngine(t)
	server := types.NewServer("server-1", "Test Server", "owner-1")

	violation, err := f.engine.HandleViolation(context.Background(), testMessage(time.Now()), flaggedResult(0.8), server)
	require.NoError(t, err)

	assert.Equal(t, []string{
		violation.LogMessageID + ":" + ReactionConfirmed,
		violation.LogMessageID + ":" + ReactionFalsePositive,
	}, f.adapter.reactions)
}

func TestSpamAlwaysDeletes(t *testing.T) {
	f := setupEngine(t)
	server := types.NewServer("server-1", "Test Server", "owner-1")

	analysis := spam.Analysis{
		Score:   105,
		IsSpam:  true,
		Reasons: []string{"rapid fire: 5 messages in 10s", "short spam: 5 messages under 3 chars"},
	}

	violation, err := f.engine.HandleSpam(context.Background(), testMessage(time.Now()), analysis, nil, server)
	require.NoError(t, err)

	assert.Equal(t, []string{"channel-1/msg-1"}, f.adapter.deleted)
	assert.Equal(t, enum.ViolationTypeSpam, violation.ViolationType)
	assert.Equal(t, enum.ActionDelete, violation.ActionTaken)
	assert.InDelta(t, 1.0, violation.ConfidenceScore, 0.001)
	assert.Len(t, f.adapter.dms, 1)
	assert.Len(t, f.adapter.alerts, 1)
}

func TestSpamDoesNotTouchWarningLadder(t *testing.T) {
	f := setupEngine(t)
	server := types.NewServer("server-1", "Test Server", "owner-1")
	now := time.Now()

	analysis := spam.Analysis{Score: 75, IsSpam: true, Reasons: []string{"high frequency: 8 messages per minute"}}

	_, err := f.engine.HandleSpam(context.Background(), testMessage(now), analysis, nil, server)
	require.NoError(t, err)

	count, err := f.violations.CountActiveWarnings(context.Background(), "server-1", "user-1", now.Add(-WarningWindow))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestImageIgnoredWhenAllowed(t *testing.T) {
	f := setupEngine(t)
	server := types.NewServer("server-1", "Test Server", "owner-1")
	server.NSFWAllowed = true

	violation, err := f.engine.HandleImage(
		context.Background(), testMessage(time.Now()), "https://cdn.example/img.png",
		classifier.Result{Flagged: true, MaxScore: 0.95, ViolationType: enum.ViolationTypeNSFW}, server)
	require.NoError(t, err)

	assert.Nil(t, violation)
	assert.Empty(t, f.violations.rows)
}

func TestImageBanTakesPrecedence(t *testing.T) {
	f := setupEngine(t)
	server := types.NewServer("server-1", "Test Server", "owner-1")
	server.NSFWAutoBan = true
	server.NSFWAutoTimeout = true

	violation, err := f.engine.HandleImage(
		context.Background(), testMessage(time.Now()), "https://cdn.example/img.png",
		classifier.Result{Flagged: true, MaxScore: 0.95, ViolationType: enum.ViolationTypeNSFW}, server)
	require.NoError(t, err)

	assert.Equal(t, enum.ViolationTypeNSFWImage, violation.ViolationType)
	assert.Equal(t, []string{"user-1"}, f.adapter.banned)
	assert.Empty(t, f.adapter.timeouts)
	assert.Len(t, f.adapter.deleted, 1)
}
