package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/json"
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"
)

// Discord adapts the moderation engine's actions onto the Discord REST
// API.
type Discord struct {
	client bot.Client
	logger *zap.Logger
}

// NewDiscord creates a Discord adapter around a connected client.
func NewDiscord(client bot.Client, logger *zap.Logger) *Discord {
	return &Discord{
		client: client,
		logger: logger.Named("discord"),
	}
}

// DeleteMessage removes a message from a channel.
func (d *Discord) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	channel, message, err := parseIDs(channelID, messageID)
	if err != nil {
		return err
	}

	if err := d.client.Rest().DeleteMessage(channel, message, rest.WithCtx(ctx)); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	return nil
}

// TimeoutUser mutes a server member for the given duration.
func (d *Discord) TimeoutUser(ctx context.Context, serverID, userID string, duration time.Duration) error {
	guild, user, err := parseIDs(serverID, userID)
	if err != nil {
		return err
	}

	until := json.NewNullable(time.Now().Add(duration))

	_, err = d.client.Rest().UpdateMember(guild, user, discord.MemberUpdate{
		CommunicationDisabledUntil: &until,
	}, rest.WithCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to timeout user: %w", err)
	}

	return nil
}

// BanUser permanently removes a member from the server.
func (d *Discord) BanUser(ctx context.Context, serverID, userID, reason string) error {
	guild, user, err := parseIDs(serverID, userID)
	if err != nil {
		return err
	}

	err = d.client.Rest().AddBan(guild, user, 0, rest.WithCtx(ctx), rest.WithReason(reason))
	if err != nil {
		return fmt.Errorf("failed to ban user: %w", err)
	}

	return nil
}

// KickUser removes a member from the server.
func (d *Discord) KickUser(ctx context.Context, serverID, userID string) error {
	guild, user, err := parseIDs(serverID, userID)
	if err != nil {
		return err
	}

	if err := d.client.Rest().RemoveMember(guild, user, rest.WithCtx(ctx)); err != nil {
		return fmt.Errorf("failed to kick user: %w", err)
	}

	return nil
}

// SendDirectMessage delivers a notice to a user's DMs.
func (d *Discord) SendDirectMessage(ctx context.Context, userID string, notice Notice) error {
	user, err := snowflake.Parse(userID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidID, userID)
	}

	channel, err := d.client.Rest().CreateDMChannel(user, rest.WithCtx(ctx))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrDirectMessageBlocked, err)
	}

	_, err = d.client.Rest().CreateMessage(channel.ID(), discord.NewMessageCreateBuilder().
		SetEmbeds(buildEmbed(notice)).
		Build(), rest.WithCtx(ctx))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrDirectMessageBlocked, err)
	}

	return nil
}

// SendChannelMessage posts a notice to a channel and returns the
// created message's ID.
func (d *Discord) SendChannelMessage(ctx context.Context, channelID string, notice Notice) (string, error) {
	channel, err := snowflake.Parse(channelID)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidID, channelID)
	}

	message, err := d.client.Rest().CreateMessage(channel, discord.NewMessageCreateBuilder().
		SetEmbeds(buildEmbed(notice)).
		Build(), rest.WithCtx(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to send channel message: %w", err)
	}

	return message.ID.String(), nil
}

// AddReaction puts an emoji on a message. Used to seed the review
// reactions on moderation alerts.
func (d *Discord) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	channel, message, err := parseIDs(channelID, messageID)
	if err != nil {
		return err
	}

	if err := d.client.Rest().AddReaction(channel, message, emoji, rest.WithCtx(ctx)); err != nil {
		return fmt.Errorf("failed to add reaction: %w", err)
	}

	return nil
}

// HasModerationAuthority reports whether the user holds a role with
// administrator or manage-messages permissions on the server.
func (d *Discord) HasModerationAuthority(ctx context.Context, serverID, userID string) (bool, error) {
	guild, user, err := parseIDs(serverID, userID)
	if err != nil {
		return false, err
	}

	member, err := d.client.Rest().GetMember(guild, user, rest.WithCtx(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to get member: %w", err)
	}

	roles, err := d.client.Rest().GetRoles(guild, rest.WithCtx(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to get roles: %w", err)
	}

	memberRoles := make(map[snowflake.ID]struct{}, len(member.RoleIDs))
	for _, roleID := range member.RoleIDs {
		memberRoles[roleID] = struct{}{}
	}

	for _, role := range roles {
		if _, ok := memberRoles[role.ID]; !ok {
			continue
		}

		if role.Permissions.Has(discord.PermissionAdministrator) ||
			role.Permissions.Has(discord.PermissionManageMessages) {
			return true, nil
		}
	}

	return false, nil
}

// GetChannelName resolves a channel's display name, returning the ID
// itself when the lookup fails.
func (d *Discord) GetChannelName(ctx context.Context, channelID string) string {
	channel, err := snowflake.Parse(channelID)
	if err != nil {
		return channelID
	}

	resolved, err := d.client.Rest().GetChannel(channel, rest.WithCtx(ctx))
	if err != nil {
		d.logger.Debug("Failed to resolve channel name",
			zap.String("channelID", channelID),
			zap.Error(err))

		return channelID
	}

	return resolved.Name()
}

func buildEmbed(notice Notice) discord.Embed {
	builder := discord.NewEmbedBuilder().
		SetTitle(notice.Title).
		SetDescription(notice.Description).
		SetColor(notice.Color).
		SetTimestamp(time.Now())

	for _, field := range notice.Fields {
		builder.AddField(field.Name, field.Value, field.Inline)
	}

	if notice.Footer != "" {
		builder.SetFooter(notice.Footer, "")
	}

	return builder.Build()
}

func parseIDs(first, second string) (snowflake.ID, snowflake.ID, error) {
	a, err := snowflake.Parse(first)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidID, first)
	}

	b, err := snowflake.Parse(second)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidID, second)
	}

	return a, b, nil
}
