package discord

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bnema/partybot/internal/application"
	"github.com/bnema/partybot/internal/domain"
	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const commandTimeout = 2 * time.Minute

// PartyCommands is what the chat surface asks of the application.
type PartyCommands interface {
	CreateParty(ctx context.Context, cmd application.CreatePartyCommand) (domain.Party, error)
	StopParty(ctx context.Context, cmd application.StopPartyCommand) error
	GroupJoined(ctx context.Context, group domain.GroupID, admin domain.UserID) error
	GroupRemoved(ctx context.Context, group domain.GroupID) error
	Notify(ctx context.Context, channel domain.ChannelID, text string) (domain.MessageID, error)
	DeleteNotice(ctx context.Context, channel domain.ChannelID, message domain.MessageID) error
}

// directory resolves guild data from the gateway cache. *discordgo.State
// satisfies it.
type directory interface {
	Guild(guildID string) (*discordgo.Guild, error)
	Member(guildID, userID string) (*discordgo.Member, error)
}

type RouterConfig struct {
	Prefix    string
	Marker    string
	NoticeTTL time.Duration
}

// Router turns gateway events into application calls.
type Router struct {
	commands  PartyCommands
	signals   *SignalSource
	directory directory
	cfg       RouterConfig
	logger    zerolog.Logger

	mu     sync.RWMutex
	selfID string

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRouter(commands PartyCommands, signals *SignalSource, dir directory, cfg RouterConfig, logger zerolog.Logger) *Router {
	if cfg.Marker == "" {
		cfg.Marker = domain.DefaultJoinMarker
	}
	base, cancel := context.WithCancel(context.Background())
	return &Router{
		commands:  commands,
		signals:   signals,
		directory: dir,
		cfg:       cfg,
		logger:    logger,
		base:      base,
		cancel:    cancel,
	}
}

// Close cancels pending notice deletions and waits for them.
func (r *Router) Close() {
	r.cancel()
	r.wg.Wait()
}

func (r *Router) self() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selfID
}

func (r *Router) Ready(_ *discordgo.Session, e *discordgo.Ready) {
	if e.User == nil {
		return
	}
	r.mu.Lock()
	r.selfID = e.User.ID
	r.mu.Unlock()
	r.logger.Info().Str("user", e.User.Username).Str("id", e.User.ID).Int("guilds", len(e.Guilds)).Msg("gateway ready")
}

func (r *Router) GuildCreate(_ *discordgo.Session, e *discordgo.GuildCreate) {
	if e.Guild == nil || e.Unavailable {
		return
	}
	ctx, cancel := context.WithTimeout(r.base, commandTimeout)
	defer cancel()
	if err := r.commands.GroupJoined(ctx, domain.GroupID(e.ID), domain.UserID(e.OwnerID)); err != nil {
		r.logger.Error().Err(err).Str("group", e.ID).Msg("record joined group")
	}
}

func (r *Router) GuildDelete(_ *discordgo.Session, e *discordgo.GuildDelete) {
	if e.Guild == nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.base, commandTimeout)
	defer cancel()
	if err := r.commands.GroupRemoved(ctx, domain.GroupID(e.ID)); err != nil {
		r.logger.Error().Err(err).Str("group", e.ID).Msg("forget removed group")
		return
	}
	r.logger.Info().Str("group", e.ID).Bool("unavailable", e.Unavailable).Msg("group removed")
}

func (r *Router) ReactionAdd(_ *discordgo.Session, e *discordgo.MessageReactionAdd) {
	if e.MessageReaction == nil {
		return
	}
	r.dispatch(e.MessageReaction, domain.SignalGrant, r.displayName(e.GuildID, e.UserID, e.Member))
}

func (r *Router) ReactionRemove(_ *discordgo.Session, e *discordgo.MessageReactionRemove) {
	if e.MessageReaction == nil {
		return
	}
	r.dispatch(e.MessageReaction, domain.SignalRevoke, "")
}

func (r *Router) dispatch(reaction *discordgo.MessageReaction, kind domain.SignalKind, name string) {
	if reaction.UserID == "" || reaction.UserID == r.self() {
		return
	}
	sig := domain.Signal{
		Actor:     domain.UserID(reaction.UserID),
		ActorName: name,
		Kind:      kind,
		Marker:    reaction.Emoji.APIName(),
	}
	if !r.signals.Dispatch(domain.ChannelID(reaction.ChannelID), domain.MessageID(reaction.MessageID), sig) {
		return
	}
	r.logger.Debug().Str("actor", reaction.UserID).Str("kind", kind.String()).Str("message", reaction.MessageID).Msg("signal dispatched")
}

// displayName prefers the guild nickname, then the global display name,
// then the username.
func (r *Router) displayName(guildID, userID string, member *discordgo.Member) string {
	if member == nil && r.directory != nil {
		member, _ = r.directory.Member(guildID, userID)
	}
	if member != nil {
		if member.Nick != "" {
			return member.Nick
		}
		if u := member.User; u != nil {
			if u.GlobalName != "" {
				return u.GlobalName
			}
			if u.Username != "" {
				return u.Username
			}
		}
	}
	return userID
}

func (r *Router) guildOwner(guildID string) domain.UserID {
	if r.directory == nil {
		return ""
	}
	guild, err := r.directory.Guild(guildID)
	if err != nil || guild == nil {
		return ""
	}
	return domain.UserID(guild.OwnerID)
}

func (r *Router) MessageCreate(_ *discordgo.Session, e *discordgo.MessageCreate) {
	if e.Message == nil || e.Author == nil || e.Author.Bot || e.GuildID == "" {
		return
	}
	cmd, ok, parseErr := ParseCommand(r.cfg.Prefix, e.Content)
	if !ok {
		return
	}

	logger := r.logger.With().
		Str("invocation", uuid.NewString()).
		Str("group", e.GuildID).
		Str("actor", e.Author.ID).
		Str("command", cmd.Kind.String()).
		Logger()
	ctx, cancel := context.WithTimeout(r.base, commandTimeout)
	defer cancel()
	ctx = logger.WithContext(ctx)

	channel := domain.ChannelID(e.ChannelID)
	if parseErr != nil {
		r.reply(ctx, channel, parseErr)
		return
	}

	var err error
	switch cmd.Kind {
	case CommandPing:
		_, err = r.commands.Notify(ctx, channel, "Pong!")
	case CommandCreate:
		_, err = r.commands.CreateParty(ctx, application.CreatePartyCommand{
			Group:      domain.GroupID(e.GuildID),
			GroupAdmin: r.guildOwner(e.GuildID),
			Owner:      domain.UserID(e.Author.ID),
			OwnerName:  r.displayName(e.GuildID, e.Author.ID, e.Member),
			OwnerIcon:  e.Author.AvatarURL(""),
			Title:      cmd.Title,
			Game:       cmd.Game,
			Capacity:   cmd.Capacity,
			Channel:    channel,
			Command:    domain.MessageID(e.ID),
		})
	case CommandStop:
		err = r.commands.StopParty(ctx, application.StopPartyCommand{
			Group:     domain.GroupID(e.GuildID),
			Requester: domain.UserID(e.Author.ID),
		})
	}
	if err != nil {
		logger.Warn().Err(err).Msg("command failed")
		r.reply(ctx, channel, err)
		return
	}
	logger.Info().Msg("command handled")
}

// reply posts a notice describing err. Rejections are removed again after
// the notice TTL; unexpected failures stay visible.
func (r *Router) reply(ctx context.Context, channel domain.ChannelID, err error) {
	text, transient := noticeFor(err)
	id, notifyErr := r.commands.Notify(ctx, channel, text)
	if notifyErr != nil {
		zerolog.Ctx(ctx).Error().Err(notifyErr).Msg("post notice")
		return
	}
	if transient && r.cfg.NoticeTTL > 0 {
		r.expire(channel, id)
	}
}

func (r *Router) expire(channel domain.ChannelID, message domain.MessageID) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		timer := time.NewTimer(r.cfg.NoticeTTL)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-r.base.Done():
			return
		}
		ctx, cancel := context.WithTimeout(r.base, commandTimeout)
		defer cancel()
		if err := r.commands.DeleteNotice(ctx, channel, message); err != nil {
			r.logger.Warn().Err(err).Str("message", string(message)).Msg("delete expired notice")
		}
	}()
}

func noticeFor(err error) (text string, transient bool) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		return validation.Reason, true
	case errors.Is(err, domain.ErrPartyExists):
		return "You already have an active party. Stop it before creating another one.", true
	case errors.Is(err, domain.ErrPartyNotFound), errors.Is(err, domain.ErrGroupNotFound):
		return "You do not have an active party.", true
	default:
		return "Something went wrong: " + err.Error(), false
	}
}
