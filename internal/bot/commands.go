package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/types"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/moderation"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/platform"
	"go.uber.org/zap"
)

// handleCommand dispatches prefix commands. Commands are never run
// through the moderation pipeline.
func (b *Bot) handleCommand(ctx context.Context, msg moderation.Message, server *types.Server) {
	args := strings.Fields(strings.TrimPrefix(msg.Content, b.prefix))

	command := "help"
	if len(args) > 0 {
		command = strings.ToLower(args[0])
	}

	var notice platform.Notice

	switch command {
	case "help":
		notice = b.helpNotice()
	case "status":
		notice = b.statusNotice(server)
	case "test":
		authorized, err := b.adapter.HasModerationAuthority(ctx, msg.ServerID, msg.UserID)
		if err != nil || !authorized {
			notice = platform.Notice{
				Title:       "⛔ Not Allowed",
				Description: "The test command requires moderation permissions.",
				Color:       platform.ColorError,
			}

			break
		}

		notice = b.testNotice(ctx, strings.Join(args[1:], " "), server)
	case "checkperms":
		notice = b.permsNotice(ctx, msg)
	default:
		notice = platform.Notice{
			Title:       "Unknown Command",
			Description: fmt.Sprintf("`%s %s` is not a command. Try `%s help`.", b.prefix, command, b.prefix),
			Color:       platform.ColorWarning,
		}
	}

	if _, err := b.adapter.SendChannelMessage(ctx, msg.ChannelID, notice); err != nil {
		b.logger.Warn("Failed to answer command",
			zap.String("command", command),
			zap.Error(err))
	}
}

func (b *Bot) helpNotice() platform.Notice {
	return platform.Notice{
		Title:       "🤖 CommunityClara Commands",
		Description: "AI-powered community moderation.",
		Color:       platform.ColorInfo,
		Fields: []platform.NoticeField{
			{Name: b.prefix + " help", Value: "Show this message"},
			{Name: b.prefix + " status", Value: "Show moderation status for this server"},
			{Name: b.prefix + " test <text>", Value: "Run the classifier on a sample (moderators only)"},
			{Name: b.prefix + " checkperms", Value: "Check your moderation permissions"},
		},
		Footer: "CommunityClara AI • Moderation System",
	}
}

func (b *Bot) statusNotice(server *types.Server) platform.Notice {
	return platform.Notice{
		Title: "📊 Moderation Status",
		Color: platform.ColorInfo,
		Fields: []platform.NoticeField{
			{Name: "Sensitivity", Value: fmt.Sprintf("%.2f", server.ToxicityThreshold), Inline: true},
			{Name: "Adaptive Learning", Value: onOff(server.LearningEnabled), Inline: true},
			{Name: "Warnings", Value: onOff(server.WarningEnabled), Inline: true},
			{Name: "Auto Timeout", Value: onOff(server.AutoTimeout), Inline: true},
			{Name: "Tracked Users", Value: fmt.Sprintf("%d", b.tracker.TrackedUsers()), Inline: true},
			{Name: "Messages Processed", Value: fmt.Sprintf("%d", server.TotalMessagesProcessed), Inline: true},
		},
		Footer: "CommunityClara AI • Moderation System",
	}
}

func (b *Bot) testNotice(ctx context.Context, sample string, server *types.Server) platform.Notice {
	if sample == "" {
		return platform.Notice{
			Title:       "Test",
			Description: fmt.Sprintf("Usage: `%s test <text>`", b.prefix),
			Color:       platform.ColorWarning,
		}
	}

	result := b.classifier.AnalyzeText(ctx, sample)

	verdict := "✅ Clean"
	color := platform.ColorSuccess

	if result.Flagged && result.MaxScore >= server.ToxicityThreshold {
		verdict = "🚨 Would be flagged"
		color = platform.ColorError
	} else if result.Flagged {
		verdict = "⚠️ Flagged below threshold"
		color = platform.ColorWarning
	}

	return platform.Notice{
		Title: "🧪 Classifier Test",
		Color: color,
		Fields: []platform.NoticeField{
			{Name: "Verdict", Value: verdict, Inline: true},
			{Name: "Category", Value: result.ViolationType.Display(), Inline: true},
			{Name: "Score", Value: fmt.Sprintf("%.1f%% (threshold %.0f%%)", result.MaxScore*100, server.ToxicityThreshold*100), Inline: true},
		},
	}
}

func (b *Bot) permsNotice(ctx context.Context, msg moderation.Message) platform.Notice {
	authorized, err := b.adapter.HasModerationAuthority(ctx, msg.ServerID, msg.UserID)
	if err != nil {
		return platform.Notice{
			Title:       "Permissions",
			Description: "Could not resolve your roles.",
			Color:       platform.ColorError,
		}
	}

	if authorized {
		return platform.Notice{
			Title:       "Permissions",
			Description: "You can review moderation alerts with ✅ and ❌ reactions.",
			Color:       platform.ColorSuccess,
		}
	}

	return platform.Notice{
		Title:       "Permissions",
		Description: "You do not have moderation permissions on this server.",
		Color:       platform.ColorWarning,
	}
}

func onOff(enabled bool) string {
	if enabled {
		return "Enabled"
	}

	return "Disabled"
}
