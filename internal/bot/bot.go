package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/classifier"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/models"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database/types"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/learning"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/moderation"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/platform"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/setup"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/spam"
)

// defaultRequestTimeout bounds the work done for a single gateway event
// when no timeout is configured.
const defaultRequestTimeout = 30 * time.Second

// Bot wires the gateway event stream into the moderation pipeline. Each
// message flows through spam tracking first, then image checks, then the
// text classifier; only one path produces a violation per message.
type Bot struct {
	db         database.Client
	client     bot.Client
	adapter    *platform.Discord
	engine     *moderation.Engine
	recorder   *moderation.Recorder
	learner    *learning.Learner
	tracker    *spam.Tracker
	classifier *classifier.Classifier
	prefix     string
	timeout    time.Duration
	logger     *zap.Logger
}

// New initializes the Discord bot and all moderation components. The
// gateway connection is not opened until Start is called.
func New(app *setup.App, logger *zap.Logger) (*Bot, error) {
	timeout := defaultRequestTimeout
	if ms := app.Config.Bot.RequestTimeout; ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	prefix := app.Config.Bot.Discord.CommandPrefix
	if prefix == "" {
		prefix = "!clara"
	}

	b := &Bot{
		db:         app.DB,
		tracker:    spam.NewTracker(logger),
		classifier: app.Classifier,
		prefix:     prefix,
		timeout:    timeout,
		logger:     logger,
	}

	client, err := disgo.New(app.Config.Bot.Discord.Token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMembers,
				gateway.IntentGuildMessages,
				gateway.IntentGuildMessageReactions,
				gateway.IntentMessageContent,
				gateway.IntentDirectMessages,
			),
		),
		bot.WithEventListeners(&events.ListenerAdapter{
			OnGuildMessageCreate:      b.handleMessage,
			OnGuildMessageReactionAdd: b.handleReaction,
			OnGuildReady:              b.handleGuildReady,
			OnGuildJoin:               b.handleGuildJoin,
			OnGuildMemberJoin:         b.handleMemberJoin,
		}),
	)
	if err != nil {
		return nil, err
	}

	b.client = client
	b.adapter = platform.NewDiscord(client, logger)

	repo := app.DB.Model()
	b.engine = moderation.NewEngine(repo.Violation(), repo.Member(), repo.Analytics(), b.adapter, logger)
	b.recorder = moderation.NewRecorder(repo.Violation(), repo.Server(), repo.Analytics(), b.adapter, logger)
	b.learner = learning.NewLearner(repo.Server(), repo.Violation(), logger)

	return b, nil
}

// Start opens the gateway connection and begins the background loops:
// the sweep of idle spam histories and the threshold adaptation cycle.
// Blocks until the connection is established.
func (b *Bot) Start(ctx context.Context) error {
	go b.tracker.StartCleanup(ctx)
	go b.runLearningLoop(ctx)

	b.logger.Info("Starting bot")

	return b.client.OpenGateway(ctx)
}

func (b *Bot) runLearningLoop(ctx context.Context) {
	ticker := time.NewTicker(learning.DefaultCycle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			adjusted, err := b.learner.AdjustAll(ctx)
			if err != nil {
				b.logger.Error("Learning cycle failed", zap.Error(err))
				continue
			}

			if adjusted > 0 {
				b.logger.Info("Adjusted sensitivity thresholds", zap.Int("servers", adjusted))
			}
		}
	}
}

// Close gracefully shuts down the gateway connection.
func (b *Bot) Close() {
	b.logger.Info("Closing bot")
	b.client.Close(context.Background())
}

// handleMessage runs the full moderation pipeline for one guild message.
func (b *Bot) handleMessage(event *events.GuildMessageCreate) {
	if event.Message.Author.Bot || event.Message.Author.System {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("Panic in message handler", zap.Any("panic", r))
			}
		}()

		server, err := b.getServer(ctx, event.GuildID)
		if err != nil {
			b.logger.Error("Failed to load server configuration",
				zap.String("serverID", event.GuildID.String()),
				zap.Error(err))

			return
		}

		msg := moderation.Message{
			ID:         event.MessageID.String(),
			ServerID:   event.GuildID.String(),
			ServerName: server.Name,
			ChannelID:  event.ChannelID.String(),
			UserID:     event.Message.Author.ID.String(),
			Username:   event.Message.Author.Username,
			Content:    event.Message.Content,
			Timestamp:  time.Now(),
		}

		if strings.HasPrefix(msg.Content, b.prefix) {
			b.handleCommand(ctx, msg, server)
			return
		}

		if err := b.db.Model().Server().IncrementMessageCount(ctx, msg.ServerID); err != nil {
			b.logger.Warn("Failed to count message", zap.Error(err))
		}

		if err := b.db.Model().Analytics().IncrementDaily(ctx, msg.ServerID, msg.Timestamp, 1, 0, 0); err != nil {
			b.logger.Warn("Failed to update daily analytics", zap.Error(err))
		}

		if !server.ModeratesChannel(msg.ChannelID) {
			return
		}

		if event.Message.Member != nil && server.ExemptsAnyRole(roleIDs(event.Message.Member.RoleIDs)) {
			return
		}

		// Spam first. A spam verdict removes the message and bypasses
		// every other check.
		analysis := b.tracker.AddMessage(msg.UserID, msg.Content, msg.Timestamp)
		if analysis.IsSpam {
			var toxicity *classifier.Result

			if msg.Content != "" {
				result := b.classifier.AnalyzeText(ctx, msg.Content)
				if result.Flagged {
					toxicity = &result
				}
			}

			if _, err := b.engine.HandleSpam(ctx, msg, analysis, toxicity, server); err != nil {
				b.logger.Error("Failed to handle spam", zap.Error(err))
			}

			return
		}

		// Image attachments next.
		for _, attachment := range event.Message.Attachments {
			if attachment.ContentType == nil || !strings.HasPrefix(*attachment.ContentType, "image/") {
				continue
			}

			result, ok := b.classifier.AnalyzeImage(ctx, attachment.URL)
			if !ok || !result.Flagged {
				continue
			}

			if _, err := b.engine.HandleImage(ctx, msg, attachment.URL, result, server); err != nil {
				b.logger.Error("Failed to handle image violation", zap.Error(err))
			}

			return
		}

		if msg.Content == "" {
			return
		}

		result := b.classifier.AnalyzeText(ctx, msg.Content)
		if !result.Flagged || !b.engine.Evaluate(result, server) {
			return
		}

		if _, err := b.engine.HandleViolation(ctx, msg, result, server); err != nil {
			b.logger.Error("Failed to handle violation", zap.Error(err))
		}
	}()
}

// handleReaction turns moderator reactions on alert messages into
// recorded feedback.
func (b *Bot) handleReaction(event *events.GuildMessageReactionAdd) {
	if event.Member.User.Bot {
		return
	}

	if event.Emoji.Name == nil {
		return
	}

	var falsePositive bool

	switch *event.Emoji.Name {
	case moderation.ReactionFalsePositive:
		falsePositive = true
	case moderation.ReactionConfirmed:
		falsePositive = false
	default:
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()

		_, err := b.recorder.RecordByAlert(ctx, event.MessageID.String(), falsePositive, event.UserID.String())
		if err != nil {
			// Reactions land on ordinary messages all the time; only log
			// real failures.
			if errors.Is(err, moderation.ErrViolationNotFound) || errors.Is(err, moderation.ErrUnauthorized) {
				b.logger.Debug("Ignored reaction", zap.Error(err))
			} else {
				b.logger.Error("Failed to record feedback", zap.Error(err))
			}

			return
		}

		b.logger.Info("Recorded reaction feedback",
			zap.String("messageID", event.MessageID.String()),
			zap.Bool("falsePositive", falsePositive))
	}()
}

func (b *Bot) handleGuildReady(event *events.GuildReady) {
	b.ensureServer(event.Guild.ID, event.Guild.Name, event.Guild.OwnerID)
}

func (b *Bot) handleGuildJoin(event *events.GuildJoin) {
	b.ensureServer(event.Guild.ID, event.Guild.Name, event.Guild.OwnerID)
}

// handleMemberJoin delivers the server's configured welcome message.
func (b *Bot) handleMemberJoin(event *events.GuildMemberJoin) {
	if event.Member.User.Bot {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()

		server, err := b.getServer(ctx, event.GuildID)
		if err != nil || server.WelcomeMessage == "" {
			return
		}

		userID := event.Member.User.ID.String()
		text := strings.NewReplacer(
			"{user}", "<@"+userID+">",
			"{username}", event.Member.User.Username,
			"{server}", server.Name,
		).Replace(server.WelcomeMessage)

		notice := platform.Notice{
			Title:       "👋 Welcome to " + server.Name,
			Description: text,
			Color:       platform.ColorInfo,
		}

		if channelID, ok := b.welcomeChannel(ctx, event.GuildID); ok {
			if _, err := b.adapter.SendChannelMessage(ctx, channelID, notice); err == nil {
				return
			}
		}

		if err := b.adapter.SendDirectMessage(ctx, userID, notice); err != nil {
			b.logger.Debug("Could not send welcome message", zap.Error(err))
		}
	}()
}

// welcomeChannel picks where welcome messages land: the guild's system
// channel, then a channel named general or welcome, then the first text
// channel.
func (b *Bot) welcomeChannel(ctx context.Context, guildID snowflake.ID) (string, bool) {
	if guild, ok := b.client.Caches().Guild(guildID); ok && guild.SystemChannelID != nil {
		return guild.SystemChannelID.String(), true
	}

	channels, err := b.client.Rest().GetGuildChannels(guildID, rest.WithCtx(ctx))
	if err != nil {
		b.logger.Debug("Failed to list guild channels", zap.Error(err))
		return "", false
	}

	var first string

	for _, channel := range channels {
		if channel.Type() != discord.ChannelTypeGuildText {
			continue
		}

		if first == "" {
			first = channel.ID().String()
		}

		name := strings.ToLower(channel.Name())
		if name == "general" || name == "welcome" {
			return channel.ID().String(), true
		}
	}

	return first, first != ""
}

// getServer loads the guild's configuration row, creating the stock one
// on first contact.
func (b *Bot) getServer(ctx context.Context, guildID snowflake.ID) (*types.Server, error) {
	server, err := b.db.Model().Server().GetServer(ctx, guildID.String())
	if err == nil {
		return server, nil
	}

	if !errors.Is(err, models.ErrServerNotFound) {
		return nil, err
	}

	name := "Unknown Server"
	ownerID := ""

	if guild, ok := b.client.Caches().Guild(guildID); ok {
		name = guild.Name
		ownerID = guild.OwnerID.String()
	}

	server = types.NewServer(guildID.String(), name, ownerID)
	if err := b.db.Model().Server().CreateServerIfNotExists(ctx, server); err != nil {
		return nil, err
	}

	return server, nil
}

func (b *Bot) ensureServer(guildID snowflake.ID, name string, ownerID snowflake.ID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()

		server := types.NewServer(guildID.String(), name, ownerID.String())
		if err := b.db.Model().Server().CreateServerIfNotExists(ctx, server); err != nil {
			b.logger.Error("Failed to register server",
				zap.String("serverID", guildID.String()),
				zap.Error(err))

			return
		}

		b.logger.Info("Registered server",
			zap.String("serverID", guildID.String()),
			zap.String("name", name))
	}()
}

func roleIDs(ids []snowflake.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}

	return out
}
