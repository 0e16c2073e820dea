package moderation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/classifier"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/types"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/types/enum"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/platform"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/spam"
	"go.uber.org/zap"
)

// WarningWindow is the rolling period over which warn1/warn2 rows count
// toward a user's active warning total.
const WarningWindow = 30 * 24 * time.Hour

// Reactions seeded on moderation alerts so moderators can review
// decisions in place.
const (
	ReactionFalsePositive = "❌"
	ReactionConfirmed     = "✅"
)

// Engine turns classifier and spam verdicts into enforcement decisions
// and audit records. Platform side effects are best-effort; the audit
// write is not.
type Engine struct {
	violations ViolationStore
	members    MemberStore
	analytics  AnalyticsStore
	adapter    platform.Adapter
	logger     *zap.Logger
}

// NewEngine creates a moderation engine.
func NewEngine(
	violations ViolationStore,
	members MemberStore,
	analytics AnalyticsStore,
	adapter platform.Adapter,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		violations: violations,
		members:    members,
		analytics:  analytics,
		adapter:    adapter,
		logger:     logger.Named("engine"),
	}
}

// Evaluate decides whether a classifier verdict counts as a violation
// under the server's configuration. A single-axis comparison against the
// sensitivity threshold; category-specific thresholds are not consulted.
func (e *Engine) Evaluate(result classifier.Result, server *types.Server) bool {
	return result.MaxScore >= server.ToxicityThreshold
}

// HandleViolation walks the user one step up the warning ladder and
// executes the resulting enforcement. The violation row is persisted
// even when every platform action fails.
func (e *Engine) HandleViolation(
	ctx context.Context, msg Message, result classifier.Result, server *types.Server,
) (*types.Violation, error) {
	since := msg.Timestamp.Add(-WarningWindow)

	count, err := e.violations.CountActiveWarnings(ctx, msg.ServerID, msg.UserID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count warnings: %w", err)
	}

	newCount := count + 1
	action := enum.ActionLog

	switch {
	case newCount >= 3:
		action = enum.ActionWarn3Reset
		e.enforceThirdStrike(ctx, msg, server)
		e.sendWarningDM(ctx, msg, result, 3)
	case newCount == 1:
		action = enum.ActionWarn1
		e.sendWarningDM(ctx, msg, result, 1)
	case newCount == 2:
		action = enum.ActionWarn2
		e.sendWarningDM(ctx, msg, result, 2)
	}

	violationType := result.ViolationType
	if violationType == "" {
		violationType = enum.ViolationTypeToxicity
	}

	violation := &types.Violation{
		ServerID:        msg.ServerID,
		UserID:          msg.UserID,
		ChannelID:       msg.ChannelID,
		ViolationType:   violationType,
		ConfidenceScore: result.MaxScore,
		ActionTaken:     action,
		MessageContent:  msg.Content,
		ChannelName:     "#" + e.adapter.GetChannelName(ctx, msg.ChannelID),
		CreatedAt:       msg.Timestamp,
	}
	violation.TruncateContent()

	e.recordMember(ctx, msg)

	if err := e.violations.Create(ctx, violation); err != nil {
		return nil, fmt.Errorf("failed to record violation: %w", err)
	}

	details := alertDetails{
		title:        "🚨 Violation Detected",
		color:        platform.ColorError,
		warningCount: newCount,
	}

	if newCount >= 3 && server.AutoTimeout {
		details.actionOverride = titleCase(action.Display()) + " + " +
			titleCase(enum.ActionTimeout(server.TimeoutDuration).Display())
	}

	e.sendAlert(ctx, violation, msg, server, details)

	if newCount >= 3 {
		if _, err := e.violations.ResolveActiveWarnings(ctx, msg.ServerID, msg.UserID, since); err != nil {
			return nil, fmt.Errorf("failed to reset warnings: %w", err)
		}
	}

	e.recordAnalytics(ctx, msg)

	e.logger.Info("Handled violation",
		zap.String("serverID", msg.ServerID),
		zap.String("userID", msg.UserID),
		zap.String("action", string(action)),
		zap.Int("warningCount", newCount))

	return violation, nil
}

// HandleSpam enforces the always-delete spam policy, bypassing the
// warning ladder. The optional toxicity result enriches the alert when
// the classifier ran opportunistically.
func (e *Engine) HandleSpam(
	ctx context.Context, msg Message, analysis spam.Analysis, toxicity *classifier.Result, server *types.Server,
) (*types.Violation, error) {
	if err := e.adapter.DeleteMessage(ctx, msg.ChannelID, msg.ID); err != nil {
		e.logger.Warn("Failed to delete spam message",
			zap.String("messageID", msg.ID),
			zap.Error(err))
	}

	e.sendSpamDM(ctx, msg, analysis, toxicity)

	confidence := float64(analysis.Score) / 100
	if confidence > 1 {
		confidence = 1
	}

	violation := &types.Violation{
		ServerID:        msg.ServerID,
		UserID:          msg.UserID,
		ChannelID:       msg.ChannelID,
		ViolationType:   enum.ViolationTypeSpam,
		ConfidenceScore: confidence,
		ActionTaken:     enum.ActionDelete,
		MessageContent:  msg.Content,
		ChannelName:     "#" + e.adapter.GetChannelName(ctx, msg.ChannelID),
		CreatedAt:       msg.Timestamp,
	}
	violation.TruncateContent()

	e.recordMember(ctx, msg)

	if err := e.violations.Create(ctx, violation); err != nil {
		return nil, fmt.Errorf("failed to record spam violation: %w", err)
	}

	details := alertDetails{
		title: "🚫 Spam Detected & Removed",
		color: platform.ColorDanger,
		extra: []platform.NoticeField{
			{Name: "Spam Score", Value: fmt.Sprintf("%d/100", analysis.Score), Inline: true},
		},
	}

	if len(analysis.Reasons) > 0 {
		patterns := analysis.Reasons
		if len(patterns) > 2 {
			patterns = patterns[:2]
		}

		details.extra = append(details.extra, platform.NoticeField{
			Name:  "Patterns Detected",
			Value: "```" + strings.Join(patterns, "\n") + "```",
		})
	}

	if toxicity != nil && toxicity.Flagged {
		details.extra = append(details.extra, platform.NoticeField{
			Name:   "☠️ Toxic Content",
			Value:  fmt.Sprintf("⚠️ %s", toxicity.ViolationType.Display()),
			Inline: true,
		})
	}

	e.sendAlert(ctx, violation, msg, server, details)
	e.recordAnalytics(ctx, msg)

	return violation, nil
}

// HandleImage enforces the explicit-image policy. The server's NSFW
// flags choose between delete, ban, kick, and timeout; ban and kick are
// mutually exclusive with timeout.
func (e *Engine) HandleImage(
	ctx context.Context, msg Message, imageURL string, result classifier.Result, server *types.Server,
) (*types.Violation, error) {
	if server.NSFWAllowed {
		return nil, nil
	}

	violation := &types.Violation{
		ServerID:        msg.ServerID,
		UserID:          msg.UserID,
		ChannelID:       msg.ChannelID,
		ViolationType:   enum.ViolationTypeNSFWImage,
		ConfidenceScore: result.MaxScore,
		ActionTaken:     enum.ActionNSFWDetected,
		MessageContent:  msg.Content,
		ChannelName:     "#" + e.adapter.GetChannelName(ctx, msg.ChannelID),
		CreatedAt:       msg.Timestamp,
	}
	violation.TruncateContent()

	e.recordMember(ctx, msg)

	if err := e.violations.Create(ctx, violation); err != nil {
		return nil, fmt.Errorf("failed to record image violation: %w", err)
	}

	var actions []string

	if server.NSFWAutoDelete {
		if err := e.adapter.DeleteMessage(ctx, msg.ChannelID, msg.ID); err != nil {
			e.logger.Warn("Failed to delete image message", zap.Error(err))
		} else {
			actions = append(actions, "Deleted Message")
		}
	}

	switch {
	case server.NSFWAutoBan:
		if err := e.adapter.BanUser(ctx, msg.ServerID, msg.UserID, "Explicit content detected"); err != nil {
			e.logger.Warn("Failed to ban user", zap.Error(err))
		} else {
			actions = append(actions, "Banned User")
		}
	case server.NSFWAutoKick:
		if err := e.adapter.KickUser(ctx, msg.ServerID, msg.UserID); err != nil {
			e.logger.Warn("Failed to kick user", zap.Error(err))
		} else {
			actions = append(actions, "Kicked User")
		}
	case server.NSFWAutoTimeout:
		if err := e.adapter.TimeoutUser(ctx, msg.ServerID, msg.UserID, 10*time.Minute); err != nil {
			e.logger.Warn("Failed to timeout user", zap.Error(err))
		} else {
			actions = append(actions, "Timed Out (10m)")
		}
	}

	details := alertDetails{
		title: "🚨 Violation Detected",
		color: platform.ColorError,
	}
	if len(actions) > 0 {
		details.actionOverride = strings.Join(actions, " + ")
	}

	e.sendAlert(ctx, violation, msg, server, details)
	e.recordAnalytics(ctx, msg)

	return violation, nil
}

// enforceThirdStrike deletes the message and applies the configured
// timeout. Each action fails independently.
func (e *Engine) enforceThirdStrike(ctx context.Context, msg Message, server *types.Server) {
	if err := e.adapter.DeleteMessage(ctx, msg.ChannelID, msg.ID); err != nil {
		e.logger.Warn("Failed to delete violating message",
			zap.String("messageID", msg.ID),
			zap.Error(err))
	}

	if server.AutoTimeout {
		duration := time.Duration(server.TimeoutDuration) * time.Second
		if err := e.adapter.TimeoutUser(ctx, msg.ServerID, msg.UserID, duration); err != nil {
			e.logger.Warn("Failed to timeout user",
				zap.String("userID", msg.UserID),
				zap.Error(err))
		}
	}
}

func (e *Engine) sendWarningDM(ctx context.Context, msg Message, result classifier.Result, warningNum int) {
	var notice platform.Notice

	switch {
	case warningNum <= 2:
		notice = platform.Notice{
			Title:       fmt.Sprintf("⚠️ Warning %d/3", warningNum),
			Description: fmt.Sprintf("Your message in %s violated community guidelines.", msg.ServerName),
			Color:       platform.ColorWarning,
			Fields: []platform.NoticeField{
				{Name: "Type", Value: titleCase(result.ViolationType.Display()), Inline: true},
				{Name: "Confidence", Value: fmt.Sprintf("%.1f%%", result.MaxScore*100), Inline: true},
			},
			Footer: "Only serious violations count toward warnings",
		}

		if warningNum == 1 {
			notice.Fields = append(notice.Fields,
				platform.NoticeField{Name: "Next", Value: "2 more violations = action taken"})
		} else {
			notice.Fields = append(notice.Fields,
				platform.NoticeField{Name: "⚠️ FINAL WARNING", Value: "1 more violation = message deletion/timeout"})
		}
	default:
		notice = platform.Notice{
			Title:       "🚫 3rd Violation - Action Taken",
			Description: fmt.Sprintf("Your message in %s was your 3rd violation.", msg.ServerName),
			Color:       platform.ColorError,
			Fields: []platform.NoticeField{
				{Name: "Action", Value: "Message deleted and/or timeout applied", Inline: true},
				{Name: "Reset", Value: "Warning count reset to 0"},
			},
			Footer: "Serious violations have consequences",
		}
	}

	if err := e.adapter.SendDirectMessage(ctx, msg.UserID, notice); err != nil {
		e.logger.Warn("Could not send warning DM",
			zap.String("userID", msg.UserID),
			zap.Error(err))
	}
}

func (e *Engine) sendSpamDM(ctx context.Context, msg Message, analysis spam.Analysis, toxicity *classifier.Result) {
	reasons := analysis.Reasons
	if len(reasons) > 3 {
		reasons = reasons[:3]
	}

	notice := platform.Notice{
		Title:       "🚫 Spam Detected & Removed",
		Description: fmt.Sprintf("Your rapid messages in %s were detected as spam.", msg.ServerName),
		Color:       platform.ColorDanger,
		Fields: []platform.NoticeField{
			{Name: "Spam Score", Value: fmt.Sprintf("%d/100", analysis.Score), Inline: true},
			{Name: "Detected Patterns", Value: "• " + strings.Join(reasons, "\n• ")},
		},
		Footer: "CommunityClara AI • Anti-Spam Protection",
	}

	if toxicity != nil && toxicity.Flagged {
		notice.Fields = append(notice.Fields, platform.NoticeField{
			Name: "☠️ Toxic Content",
			Value: fmt.Sprintf("Category: %s\nConfidence: %.1f%%",
				toxicity.ViolationType.Display(), toxicity.MaxScore*100),
		})
	}

	if err := e.adapter.SendDirectMessage(ctx, msg.UserID, notice); err != nil {
		e.logger.Debug("Could not send spam DM", zap.Error(err))
	}
}

type alertDetails struct {
	title          string
	color          int
	warningCount   int
	actionOverride string
	extra          []platform.NoticeField
}

// sendAlert posts the moderation alert to the log channel (or the
// originating channel as fallback), seeds the review reactions, and
// stores the alert's message ID back onto the violation row.
func (e *Engine) sendAlert(
	ctx context.Context, violation *types.Violation, msg Message, server *types.Server, details alertDetails,
) {
	channelID := server.ViolationLogChannel
	if channelID == "" {
		channelID = msg.ChannelID
	}

	actionValue := titleCase(violation.ActionTaken.Display())
	if details.actionOverride != "" {
		actionValue = details.actionOverride
	}

	notice := platform.Notice{
		Title: details.title,
		Color: details.color,
		Fields: []platform.NoticeField{
			{Name: "User", Value: fmt.Sprintf("<@%s> (%s)", msg.UserID, msg.Username), Inline: true},
			{Name: "Channel", Value: fmt.Sprintf("<#%s>", msg.ChannelID), Inline: true},
			{Name: "Violation", Value: titleCase(violation.ViolationType.Display()), Inline: true},
			{Name: "Confidence", Value: fmt.Sprintf("%.1f%%", violation.ConfidenceScore*100), Inline: true},
			{Name: "Action", Value: actionValue, Inline: true},
		},
		Footer: "CommunityClara AI • Moderation System",
	}

	if details.warningCount > 0 {
		notice.Fields = append(notice.Fields,
			platform.NoticeField{Name: "Warning #", Value: fmt.Sprintf("%d/3", details.warningCount), Inline: true})
	}

	notice.Fields = append(notice.Fields, details.extra...)

	preview := msg.Content
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}

	if preview != "" {
		notice.Fields = append(notice.Fields,
			platform.NoticeField{Name: "Content", Value: "```" + preview + "```"})
	}

	messageID, err := e.adapter.SendChannelMessage(ctx, channelID, notice)
	if err != nil {
		e.logger.Warn("Failed to send moderation alert",
			zap.String("channelID", channelID),
			zap.Error(err))

		return
	}

	for _, emoji := range []string{ReactionConfirmed, ReactionFalsePositive} {
		if err := e.adapter.AddReaction(ctx, channelID, messageID, emoji); err != nil {
			e.logger.Debug("Failed to seed review reaction", zap.Error(err))
		}
	}

	if err := e.violations.SetLogMessageID(ctx, violation.ID, messageID); err != nil {
		e.logger.Warn("Failed to store alert message ID",
			zap.Int64("violationID", violation.ID),
			zap.Error(err))

		return
	}

	violation.LogMessageID = messageID
}

func (e *Engine) recordMember(ctx context.Context, msg Message) {
	if err := e.members.UpsertMember(ctx, msg.UserID, msg.Username); err != nil {
		e.logger.Warn("Failed to upsert member", zap.Error(err))
		return
	}

	if err := e.members.IncrementViolationCount(ctx, msg.UserID); err != nil {
		e.logger.Warn("Failed to update member violation count", zap.Error(err))
	}
}

func (e *Engine) recordAnalytics(ctx context.Context, msg Message) {
	if err := e.analytics.IncrementDaily(ctx, msg.ServerID, msg.Timestamp, 0, 1, 1); err != nil {
		e.logger.Warn("Failed to update analytics", zap.Error(err))
	}
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}

	return strings.Join(words, " ")
}
