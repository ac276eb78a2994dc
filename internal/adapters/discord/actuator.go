// Package discord connects the party lifecycle to a Discord guild: REST
// calls for provisioning and messages, gateway events for reactions, guild
// lifecycle and chat commands.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bnema/partybot/internal/domain"
	"github.com/bnema/partybot/internal/ports"
	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

// restClient is the subset of *discordgo.Session the actuator calls.
type restClient interface {
	GuildRoleCreate(guildID string, data *discordgo.RoleParams, options ...discordgo.RequestOption) (*discordgo.Role, error)
	GuildRoleDelete(guildID, roleID string, options ...discordgo.RequestOption) error
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	MessageReactionRemove(channelID, messageID, emojiID, userID string, options ...discordgo.RequestOption) error
}

// partyChannelAllow and partyChannelDeny are applied to the party role on
// both party channels.
const (
	partyChannelAllow = discordgo.PermissionViewChannel | discordgo.PermissionVoiceConnect
	partyChannelDeny  = discordgo.PermissionSendTTSMessages
)

type Actuator struct {
	rest    restClient
	limiter *rate.Limiter
}

var _ ports.Actuator = (*Actuator)(nil)

// NewActuator paces every REST call through a token bucket of the given
// rate and burst. A non-positive rate disables pacing.
func NewActuator(rest restClient, perSecond float64, burst int) *Actuator {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Actuator{rest: rest, limiter: rate.NewLimiter(limit, max(burst, 1))}
}

func (a *Actuator) wait(ctx context.Context) ([]discordgo.RequestOption, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return []discordgo.RequestOption{discordgo.WithContext(ctx)}, nil
}

func (a *Actuator) CreateRole(ctx context.Context, group domain.GroupID, name string) (domain.RoleID, error) {
	opts, err := a.wait(ctx)
	if err != nil {
		return "", err
	}
	mentionable := true
	role, err := a.rest.GuildRoleCreate(string(group), &discordgo.RoleParams{Name: name, Mentionable: &mentionable}, opts...)
	if err != nil {
		return "", fmt.Errorf("create role: %w", restError(err))
	}
	return domain.RoleID(role.ID), nil
}

func (a *Actuator) DeleteRole(ctx context.Context, group domain.GroupID, role domain.RoleID) error {
	opts, err := a.wait(ctx)
	if err != nil {
		return err
	}
	return restError(a.rest.GuildRoleDelete(string(group), string(role), opts...))
}

func (a *Actuator) CreateTextChannel(ctx context.Context, group domain.GroupID, name, topic string, role domain.RoleID) (domain.ChannelID, error) {
	return a.createChannel(ctx, group, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                topic,
		PermissionOverwrites: partyOverwrites(group, role),
	})
}

func (a *Actuator) CreateVoiceChannel(ctx context.Context, group domain.GroupID, name string, userLimit int, role domain.RoleID) (domain.ChannelID, error) {
	return a.createChannel(ctx, group, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildVoice,
		UserLimit:            userLimit,
		PermissionOverwrites: partyOverwrites(group, role),
	})
}

func (a *Actuator) createChannel(ctx context.Context, group domain.GroupID, data discordgo.GuildChannelCreateData) (domain.ChannelID, error) {
	opts, err := a.wait(ctx)
	if err != nil {
		return "", err
	}
	channel, err := a.rest.GuildChannelCreateComplex(string(group), data, opts...)
	if err != nil {
		return "", fmt.Errorf("create channel %q: %w", data.Name, restError(err))
	}
	return domain.ChannelID(channel.ID), nil
}

// partyOverwrites hides the channel from @everyone, whose role id equals the
// guild id, and opens it to the party role.
func partyOverwrites(group domain.GroupID, role domain.RoleID) []*discordgo.PermissionOverwrite {
	return []*discordgo.PermissionOverwrite{
		{ID: string(group), Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{ID: string(role), Type: discordgo.PermissionOverwriteTypeRole, Allow: partyChannelAllow, Deny: partyChannelDeny},
	}
}

func (a *Actuator) DeleteChannel(ctx context.Context, channel domain.ChannelID) error {
	opts, err := a.wait(ctx)
	if err != nil {
		return err
	}
	_, err = a.rest.ChannelDelete(string(channel), opts...)
	return restError(err)
}

func (a *Actuator) AddMemberRole(ctx context.Context, group domain.GroupID, user domain.UserID, role domain.RoleID) error {
	opts, err := a.wait(ctx)
	if err != nil {
		return err
	}
	return restError(a.rest.GuildMemberRoleAdd(string(group), string(user), string(role), opts...))
}

func (a *Actuator) RemoveMemberRole(ctx context.Context, group domain.GroupID, user domain.UserID, role domain.RoleID) error {
	opts, err := a.wait(ctx)
	if err != nil {
		return err
	}
	return restError(a.rest.GuildMemberRoleRemove(string(group), string(user), string(role), opts...))
}

func (a *Actuator) SendAnnouncement(ctx context.Context, channel domain.ChannelID, ann domain.Announcement) (domain.MessageID, error) {
	opts, err := a.wait(ctx)
	if err != nil {
		return "", err
	}
	msg, err := a.rest.ChannelMessageSendEmbed(string(channel), announcementEmbed(ann), opts...)
	if err != nil {
		return "", fmt.Errorf("send announcement: %w", restError(err))
	}
	return domain.MessageID(msg.ID), nil
}

func (a *Actuator) EditAnnouncement(ctx context.Context, channel domain.ChannelID, message domain.MessageID, ann domain.Announcement) error {
	opts, err := a.wait(ctx)
	if err != nil {
		return err
	}
	_, err = a.rest.ChannelMessageEditEmbed(string(channel), string(message), announcementEmbed(ann), opts...)
	return restError(err)
}

func (a *Actuator) SendNotice(ctx context.Context, channel domain.ChannelID, text string) (domain.MessageID, error) {
	opts, err := a.wait(ctx)
	if err != nil {
		return "", err
	}
	msg, err := a.rest.ChannelMessageSend(string(channel), text, opts...)
	if err != nil {
		return "", fmt.Errorf("send notice: %w", restError(err))
	}
	return domain.MessageID(msg.ID), nil
}

func (a *Actuator) DeleteMessage(ctx context.Context, channel domain.ChannelID, message domain.MessageID) error {
	opts, err := a.wait(ctx)
	if err != nil {
		return err
	}
	return restError(a.rest.ChannelMessageDelete(string(channel), string(message), opts...))
}

func (a *Actuator) AddReaction(ctx context.Context, channel domain.ChannelID, message domain.MessageID, marker string) error {
	opts, err := a.wait(ctx)
	if err != nil {
		return err
	}
	return restError(a.rest.MessageReactionAdd(string(channel), string(message), marker, opts...))
}

func (a *Actuator) RemoveReaction(ctx context.Context, channel domain.ChannelID, message domain.MessageID, marker string, user domain.UserID) error {
	opts, err := a.wait(ctx)
	if err != nil {
		return err
	}
	return restError(a.rest.MessageReactionRemove(string(channel), string(message), marker, string(user), opts...))
}

// restError maps REST failures onto the domain errors the retry policy
// understands. A 404 becomes domain.ErrResourceNotFound. Other client errors
// become domain.ErrPlatformRejected, except timeouts and rate limits, which
// stay retryable.
func restError(err error) error {
	var restErr *discordgo.RESTError
	if err == nil || !errors.As(err, &restErr) || restErr.Response == nil {
		return err
	}
	switch status := restErr.Response.StatusCode; {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %w", domain.ErrResourceNotFound, err)
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return err
	case status >= 400 && status < 500:
		return fmt.Errorf("%w: %w", domain.ErrPlatformRejected, err)
	}
	return err
}
